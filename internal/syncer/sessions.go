package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AjCodes/FocusUp-sub000/internal/constants"
	"github.com/AjCodes/FocusUp-sub000/internal/models"
)

var (
	// ErrInvalidTransition is returned when a session is not in a state that allows the request.
	ErrInvalidTransition = errors.New("invalid session state transition")
	// ErrCompletionInProgress is returned when another completion of the session is running.
	ErrCompletionInProgress = errors.New("session completion already in progress")
)

// Completion is everything CommitSessionCompletion applies in one step.
type Completion struct {
	SessionID         string
	At                time.Time
	ActualSeconds     int
	CompletedTaskIDs  []string
	PerformedHabitIDs []string
	Coins             int
	XP                models.AttributeXP
	Delta             models.StatsDelta
}

// CreateSession schedules a focus session starting at start.
func (c *Coordinator) CreateSession(ctx context.Context, ownerID string, start time.Time, planned time.Duration) (models.FocusSession, error) {
	if err := ctx.Err(); err != nil {
		return models.FocusSession{}, err
	}
	if planned <= 0 {
		return models.FocusSession{}, fmt.Errorf("planned duration must be positive, got %s", planned)
	}
	session := models.FocusSession{
		ID:             uuid.NewString(),
		UserID:         ownerID,
		StartTime:      start.UTC(),
		PlannedSeconds: int(planned / time.Second),
		State:          models.SessionScheduled,
		CreatedAt:      c.now().UTC(),
	}
	create(c, sessionKind, ownerID, session)
	return session, nil
}

// StartSession moves a scheduled session to active.
func (c *Coordinator) StartSession(ctx context.Context, ownerID, sessionID string) error {
	c.mu.Lock()
	e := sessionKind.lookup(c.state(ownerID), sessionID)
	if e == nil {
		c.mu.Unlock()
		return fmt.Errorf("session %s: %w", sessionID, ErrNoSuchRecord)
	}
	if !e.Record.State.CanTransition(models.SessionActive) {
		state := e.Record.State
		c.mu.Unlock()
		return fmt.Errorf("start session %s from %s: %w", sessionID, state, ErrInvalidTransition)
	}
	c.mu.Unlock()

	return update(ctx, c, sessionKind, ownerID, sessionID, func(s *models.FocusSession) {
		s.State = models.SessionActive
	})
}

// LinkTask attaches a task to a session. Linking the same pair twice
// returns the existing link.
func (c *Coordinator) LinkTask(ctx context.Context, ownerID, sessionID, taskID string) (models.SessionTaskLink, error) {
	if err := ctx.Err(); err != nil {
		return models.SessionTaskLink{}, err
	}
	c.mu.Lock()
	st := c.state(ownerID)
	sessionID, err := c.linkableSession(st, sessionID)
	if err != nil {
		c.mu.Unlock()
		return models.SessionTaskLink{}, err
	}
	task := taskKind.lookup(st, taskID)
	if task == nil {
		c.mu.Unlock()
		return models.SessionTaskLink{}, fmt.Errorf("task %s: %w", taskID, ErrNoSuchRecord)
	}
	taskID = task.Record.ID
	for _, e := range st.taskLinks.Items {
		if e.Record.SessionID == sessionID && e.Record.TaskID == taskID {
			c.mu.Unlock()
			return e.Record, nil
		}
	}
	link := models.SessionTaskLink{ID: uuid.NewString(), SessionID: sessionID, TaskID: taskID, UserID: ownerID}
	insertLocal(taskLinkKind, st, link)
	c.persist(ownerID, st, taskLinkKind.snapshot)
	c.mu.Unlock()

	c.background(func(ctx context.Context) {
		_ = flush(ctx, c, sessionKind, ownerID, sessionID)
		_ = flush(ctx, c, taskKind, ownerID, taskID)
		_ = pushCreate(ctx, c, taskLinkKind, ownerID, link.ID)
	})
	c.scheduleRefresh(ownerID)
	return link, nil
}

// LinkHabit attaches a habit to a session. Linking the same pair twice
// returns the existing link.
func (c *Coordinator) LinkHabit(ctx context.Context, ownerID, sessionID, habitID string) (models.SessionHabitLink, error) {
	if err := ctx.Err(); err != nil {
		return models.SessionHabitLink{}, err
	}
	c.mu.Lock()
	st := c.state(ownerID)
	sessionID, err := c.linkableSession(st, sessionID)
	if err != nil {
		c.mu.Unlock()
		return models.SessionHabitLink{}, err
	}
	habit := habitKind.lookup(st, habitID)
	if habit == nil {
		c.mu.Unlock()
		return models.SessionHabitLink{}, fmt.Errorf("habit %s: %w", habitID, ErrNoSuchRecord)
	}
	habitID = habit.Record.ID
	for _, e := range st.habitLinks.Items {
		if e.Record.SessionID == sessionID && e.Record.HabitID == habitID {
			c.mu.Unlock()
			return e.Record, nil
		}
	}
	link := models.SessionHabitLink{ID: uuid.NewString(), SessionID: sessionID, HabitID: habitID, UserID: ownerID}
	insertLocal(habitLinkKind, st, link)
	c.persist(ownerID, st, habitLinkKind.snapshot)
	c.mu.Unlock()

	c.background(func(ctx context.Context) {
		_ = flush(ctx, c, sessionKind, ownerID, sessionID)
		_ = flush(ctx, c, habitKind, ownerID, habitID)
		_ = pushCreate(ctx, c, habitLinkKind, ownerID, link.ID)
	})
	c.scheduleRefresh(ownerID)
	return link, nil
}

// linkableSession resolves sessionID and checks it can still take links. Caller holds c.mu.
func (c *Coordinator) linkableSession(st *ownerState, sessionID string) (string, error) {
	e := sessionKind.lookup(st, sessionID)
	if e == nil {
		return "", fmt.Errorf("session %s: %w", sessionID, ErrNoSuchRecord)
	}
	if e.Record.State == models.SessionCompleted || st.completing[e.Record.ID] {
		return "", fmt.Errorf("link to session %s in state %s: %w", sessionID, e.Record.State, ErrInvalidTransition)
	}
	return e.Record.ID, nil
}

// GetSession returns the session. A session between BeginCompletion and
// commit reports SessionCompleting.
func (c *Coordinator) GetSession(ownerID, sessionID string) (models.FocusSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state(ownerID)
	e := sessionKind.lookup(st, sessionID)
	if e == nil {
		return models.FocusSession{}, false
	}
	s := e.Record
	if st.completing[s.ID] {
		s.State = models.SessionCompleting
	}
	return s, true
}

func (c *Coordinator) ListSessions(ownerID string) []models.FocusSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state(ownerID)
	out := sessionKind.records(&st.sessions)
	for i := range out {
		if st.completing[out[i].ID] {
			out[i].State = models.SessionCompleting
		}
	}
	return out
}

// SessionLinks returns the task and habit links of a session.
func (c *Coordinator) SessionLinks(ownerID, sessionID string) ([]models.SessionTaskLink, []models.SessionHabitLink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state(ownerID)
	sessionID = resolve(st, sessionID)

	var tasks []models.SessionTaskLink
	for _, e := range st.taskLinks.Items {
		if e.Record.SessionID == sessionID {
			tasks = append(tasks, e.Record)
		}
	}
	var habits []models.SessionHabitLink
	for _, e := range st.habitLinks.Items {
		if e.Record.SessionID == sessionID {
			habits = append(habits, e.Record)
		}
	}
	return tasks, habits
}

// BeginCompletion moves an active session to completing. The completing
// state lives only in memory, so a crash leaves the session active. A
// completed session is returned unchanged with a nil error.
func (c *Coordinator) BeginCompletion(ownerID, sessionID string) (models.FocusSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state(ownerID)
	e := sessionKind.lookup(st, sessionID)
	if e == nil {
		return models.FocusSession{}, fmt.Errorf("session %s: %w", sessionID, ErrNoSuchRecord)
	}
	s := e.Record
	switch {
	case s.State == models.SessionCompleted:
		return s, nil
	case st.completing[s.ID]:
		return s, fmt.Errorf("session %s: %w", sessionID, ErrCompletionInProgress)
	case !s.State.CanTransition(models.SessionCompleting):
		return s, fmt.Errorf("complete session %s from %s: %w", sessionID, s.State, ErrInvalidTransition)
	}
	st.completing[s.ID] = true
	s.State = models.SessionCompleting
	return s, nil
}

// AbortCompletion returns a completing session to active.
func (c *Coordinator) AbortCompletion(ownerID, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state(ownerID)
	delete(st.completing, resolve(st, sessionID))
}

// CommitSessionCompletion marks the session completed, flags its links and
// applies the stats delta in one cache write. A session that is already
// completed is returned as recorded and applied is false, so a retried call
// never awards twice.
func (c *Coordinator) CommitSessionCompletion(ctx context.Context, ownerID string, comp Completion) (session models.FocusSession, applied bool, err error) {
	if err := ctx.Err(); err != nil {
		return models.FocusSession{}, false, err
	}

	c.mu.Lock()
	st := c.state(ownerID)
	e := sessionKind.lookup(st, comp.SessionID)
	if e == nil {
		c.mu.Unlock()
		return models.FocusSession{}, false, fmt.Errorf("session %s: %w", comp.SessionID, ErrNoSuchRecord)
	}
	if e.Record.State == models.SessionCompleted {
		c.mu.Unlock()
		return e.Record, false, nil
	}
	sessionID := e.Record.ID
	if !st.completing[sessionID] && e.Record.State != models.SessionActive {
		state := e.Record.State
		c.mu.Unlock()
		return models.FocusSession{}, false, fmt.Errorf("commit session %s from %s: %w", sessionID, state, ErrInvalidTransition)
	}

	at := comp.At.UTC()
	e.Record.State = models.SessionCompleted
	e.Record.CompletedAt = &at
	e.Record.ActualSeconds = comp.ActualSeconds
	e.Record.RewardCoins = comp.Coins
	e.Record.RewardXP = comp.XP
	touch(e)

	done := make(map[string]bool, len(comp.CompletedTaskIDs))
	for _, id := range comp.CompletedTaskIDs {
		done[resolve(st, id)] = true
	}
	for _, l := range st.taskLinks.Items {
		if l.Record.SessionID == sessionID && done[l.Record.TaskID] && !l.Record.Completed {
			l.Record.Completed = true
			touch(l)
		}
	}
	performed := make(map[string]bool, len(comp.PerformedHabitIDs))
	for _, id := range comp.PerformedHabitIDs {
		performed[resolve(st, id)] = true
	}
	for _, l := range st.habitLinks.Items {
		if l.Record.SessionID == sessionID && performed[l.Record.HabitID] && !l.Record.Performed {
			l.Record.Performed = true
			touch(l)
		}
	}

	stats := c.applyDelta(ownerID, st, comp.Delta, at)
	delete(st.completing, sessionID)
	c.persist(ownerID, st, constants.CollectionProgress)
	session = e.Record
	c.mu.Unlock()

	c.publishStats(stats)
	c.background(func(ctx context.Context) {
		_ = flush(ctx, c, sessionKind, ownerID, sessionID)
		_ = syncKind(ctx, c, taskLinkKind, ownerID)
		_ = syncKind(ctx, c, habitLinkKind, ownerID)
		_ = c.pushStats(ctx, ownerID)
	})
	c.scheduleRefresh(ownerID)
	return session, true, nil
}
