// Package session turns finished work into rewards.
//
// CompleteSession is the one path that awards a focus session. It computes
// every reward up front, records the awarded items with the daily tracker,
// then hands the session transition, link flags and stats delta to the sync
// coordinator as a single commit. A failed commit revokes the tracker
// record. A retried call finds the session completed and returns the
// recorded result without awarding again.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/AjCodes/FocusUp-sub000/internal/constants"
	"github.com/AjCodes/FocusUp-sub000/internal/daily"
	apperrors "github.com/AjCodes/FocusUp-sub000/internal/errors"
	"github.com/AjCodes/FocusUp-sub000/internal/logger"
	"github.com/AjCodes/FocusUp-sub000/internal/models"
	"github.com/AjCodes/FocusUp-sub000/internal/reward"
	"github.com/AjCodes/FocusUp-sub000/internal/syncer"
)

// Store is the part of the sync coordinator the orchestrator needs.
type Store interface {
	ResolveID(ownerID, id string) string
	GetTask(ownerID, id string) (models.Task, bool)
	GetHabit(ownerID, id string) (models.Habit, bool)
	UpdateTask(ctx context.Context, id string, patch models.TaskPatch, ownerID string) error
	ToggleHabitCompletion(ctx context.Context, ownerID, habitID string, at time.Time) (bool, error)
	GetStats(ownerID string) models.UserStats
	ApplyStatsDelta(ctx context.Context, ownerID string, delta models.StatsDelta, at time.Time) (models.UserStats, error)

	GetSession(ownerID, sessionID string) (models.FocusSession, bool)
	StartSession(ctx context.Context, ownerID, sessionID string) error
	SessionLinks(ownerID, sessionID string) ([]models.SessionTaskLink, []models.SessionHabitLink)
	BeginCompletion(ownerID, sessionID string) (models.FocusSession, error)
	AbortCompletion(ownerID, sessionID string)
	CommitSessionCompletion(ctx context.Context, ownerID string, comp syncer.Completion) (models.FocusSession, bool, error)
}

var _ Store = (*syncer.Coordinator)(nil)

// Request is one session completion as submitted by the UI.
type Request struct {
	SessionID         string
	DoneTaskIDs       []string
	PerformedHabitIDs []string
	UserID            string
	// Duration is the focused time. Zero uses the time since the session started.
	Duration time.Duration
}

// Result is what the completion earned. Messages is never nil.
type Result struct {
	Coins    int
	XP       models.AttributeXP
	Messages []string
}

type Orchestrator struct {
	store   Store
	tracker *daily.Tracker
	now     func() time.Time
}

func New(store Store, tracker *daily.Tracker, now func() time.Time) *Orchestrator {
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{store: store, tracker: tracker, now: now}
}

// CompleteSession completes the session and awards its linked items. Ids
// that are not linked to the session are ignored.
func (o *Orchestrator) CompleteSession(ctx context.Context, req Request) (Result, error) {
	if req.SessionID == "" || req.UserID == "" {
		return Result{}, fmt.Errorf("complete session: session id and user id are required")
	}
	owner := req.UserID

	current, ok := o.store.GetSession(owner, req.SessionID)
	if !ok {
		return Result{}, fmt.Errorf("session %s: %w", req.SessionID, syncer.ErrNoSuchRecord)
	}
	if current.State == models.SessionScheduled {
		if err := o.store.StartSession(ctx, owner, current.ID); err != nil && !apperrors.IsRecoverable(err) {
			return Result{}, err
		}
	}

	session, err := o.store.BeginCompletion(owner, req.SessionID)
	if err != nil {
		return Result{}, err
	}
	if session.State == models.SessionCompleted {
		logger.Debug("Session already completed, returning recorded reward", "session", session.ID)
		return recorded(session), nil
	}
	o.resolveRewarded(owner)

	now := o.now()
	today := now.Format(constants.DateFormat)
	stats := o.store.GetStats(owner)
	stats.MarkActive(today)
	streak := stats.CurrentStreak

	taskLinks, habitLinks := o.store.SessionLinks(owner, session.ID)
	linkedTasks := make(map[string]bool, len(taskLinks))
	for _, l := range taskLinks {
		linkedTasks[l.TaskID] = true
	}
	linkedHabits := make(map[string]bool, len(habitLinks))
	for _, l := range habitLinks {
		linkedHabits[l.HabitID] = true
	}

	var (
		coins     int
		xp        models.AttributeXP
		dampened  int
		grants    []daily.Grant
		doneTasks []string
		performed []string
	)

	counter := o.tracker.Snapshot(owner)
	taskOrdinal := counter.TaskCount
	seenTasks := make(map[string]bool)
	for _, raw := range req.DoneTaskIDs {
		id := o.store.ResolveID(owner, raw)
		if seenTasks[id] || !linkedTasks[id] {
			continue
		}
		seenTasks[id] = true
		task, ok := o.store.GetTask(owner, id)
		if !ok {
			continue
		}
		doneTasks = append(doneTasks, id)

		_, duplicate := counter.Rewarded[id]
		taskOrdinal++
		res := reward.CalculateTaskCoins(task.Priority, reward.Context{
			Ordinal:     taskOrdinal,
			DuringFocus: true,
			IsDuplicate: duplicate,
			HourOfDay:   now.Hour(),
			Streak:      streak,
		})
		if !res.Success {
			taskOrdinal--
			dampened++
			continue
		}
		coins += res.Amount
		grants = append(grants, daily.Grant{ItemID: id})
	}

	habitOrdinal := counter.HabitCount
	worked := make(map[models.Attribute]bool)
	for attr, n := range counter.AttributeCounts {
		if n > 0 {
			worked[attr] = true
		}
	}
	balanced := false
	seenHabits := make(map[string]bool)
	for _, raw := range req.PerformedHabitIDs {
		id := o.store.ResolveID(owner, raw)
		if seenHabits[id] || !linkedHabits[id] {
			continue
		}
		seenHabits[id] = true
		habit, ok := o.store.GetHabit(owner, id)
		if !ok {
			continue
		}
		performed = append(performed, id)

		_, duplicate := counter.Rewarded[id]
		habitOrdinal++
		allWorked := len(worked) == len(models.AllAttributes)
		res := reward.CalculateHabitXP(reward.Context{
			Ordinal:                  habitOrdinal,
			DuringFocus:              true,
			IsDuplicate:              duplicate,
			HourOfDay:                now.Hour(),
			Streak:                   streak,
			AllAttributesWorkedToday: allWorked,
			Attribute:                habit.Attribute,
		})
		if !res.Success {
			habitOrdinal--
			dampened++
			continue
		}
		balanced = balanced || allWorked
		xp.Add(habit.Attribute, res.Amount)
		worked[habit.Attribute] = true
		grants = append(grants, daily.Grant{ItemID: id, Habit: true, Attribute: habit.Attribute})
	}

	duration := req.Duration
	if duration <= 0 {
		duration = now.Sub(session.StartTime)
	}
	if duration < 0 {
		duration = 0
	}
	seconds := int(duration / time.Second)

	// Recorded ahead of the commit and revoked if it does not apply
	o.tracker.Record(owner, grants)
	done, applied, err := o.store.CommitSessionCompletion(ctx, owner, syncer.Completion{
		SessionID:         session.ID,
		At:                now,
		ActualSeconds:     seconds,
		CompletedTaskIDs:  doneTasks,
		PerformedHabitIDs: performed,
		Coins:             coins,
		XP:                xp,
		Delta: models.StatsDelta{
			Coins:        coins,
			XP:           xp,
			FocusSeconds: seconds,
			Sessions:     1,
			Sprints:      int(duration / constants.SprintLength),
			ActiveDay:    today,
		},
	})
	if err != nil {
		o.tracker.Revoke(owner, grants)
		o.store.AbortCompletion(owner, session.ID)
		return Result{}, err
	}
	if !applied {
		o.tracker.Revoke(owner, grants)
		return recorded(done), nil
	}

	logger.Info("Session completed", "session", done.ID, "owner", owner, "coins", coins, "xp", xp.Total(), "dampened", dampened)
	return Result{
		Coins: coins,
		XP:    xp,
		Messages: messages(reward.Summary{
			Coins:    coins,
			XP:       xp,
			Dampened: dampened,
			Balanced: balanced,
			Streak:   streak,
		}),
	}, nil
}

// CompleteTask marks a task done outside a focus session and awards coins.
// A task already done earns nothing.
func (o *Orchestrator) CompleteTask(ctx context.Context, ownerID, taskID string) (Result, error) {
	task, ok := o.store.GetTask(ownerID, taskID)
	if !ok {
		return Result{}, fmt.Errorf("task %s: %w", taskID, syncer.ErrNoSuchRecord)
	}
	if task.Done {
		return Result{Messages: []string{}}, nil
	}

	done := true
	if err := o.store.UpdateTask(ctx, task.ID, models.TaskPatch{Done: &done}, ownerID); err != nil {
		if !apperrors.IsRecoverable(err) {
			return Result{}, err
		}
		logger.Warn("Task completed locally, remote update pending", "task", task.ID, "error", err)
	}

	now := o.now()
	o.resolveRewarded(ownerID)
	_, duplicate := o.tracker.LastRewarded(ownerID, task.ID)
	stats := o.store.GetStats(ownerID)
	stats.MarkActive(now.Format(constants.DateFormat))

	res := reward.CalculateTaskCoins(task.Priority, reward.Context{
		Ordinal:           o.tracker.GetTaskCount(ownerID) + 1,
		IsDuplicate:       duplicate,
		IsRapidCompletion: now.Sub(task.CreatedAt) < constants.MinDwell,
		HourOfDay:         now.Hour(),
		Streak:            stats.CurrentStreak,
	})
	return o.settle(ctx, ownerID, task.ID, res, "", now, stats.CurrentStreak)
}

// ToggleHabit flips today's completion of a habit outside a focus session.
// Completing awards XP; un-completing takes nothing back, so redoing it the
// same day counts as a duplicate.
func (o *Orchestrator) ToggleHabit(ctx context.Context, ownerID, habitID string) (Result, bool, error) {
	habit, ok := o.store.GetHabit(ownerID, habitID)
	if !ok {
		return Result{}, false, fmt.Errorf("habit %s: %w", habitID, syncer.ErrNoSuchRecord)
	}

	now := o.now()
	completed, err := o.store.ToggleHabitCompletion(ctx, ownerID, habit.ID, now)
	if err != nil {
		return Result{}, false, err
	}
	if !completed {
		return Result{Messages: []string{}}, false, nil
	}

	o.resolveRewarded(ownerID)
	_, duplicate := o.tracker.LastRewarded(ownerID, habit.ID)
	stats := o.store.GetStats(ownerID)
	stats.MarkActive(now.Format(constants.DateFormat))

	res := reward.CalculateHabitXP(reward.Context{
		Ordinal:                  o.tracker.GetHabitCount(ownerID) + 1,
		IsDuplicate:              duplicate,
		IsRapidCompletion:        now.Sub(habit.CreatedAt) < constants.MinDwell,
		HourOfDay:                now.Hour(),
		Streak:                   stats.CurrentStreak,
		AllAttributesWorkedToday: o.tracker.AllAttributesWorkedToday(ownerID),
		Attribute:                habit.Attribute,
	})
	result, err := o.settle(ctx, ownerID, habit.ID, res, habit.Attribute, now, stats.CurrentStreak)
	return result, true, err
}

// settle applies a standalone reward. attr is empty for tasks.
func (o *Orchestrator) settle(ctx context.Context, ownerID, itemID string, res reward.Result, attr models.Attribute, now time.Time, streak int) (Result, error) {
	if !res.Success {
		return Result{Messages: messages(reward.Summary{Dampened: 1})}, nil
	}

	delta := models.StatsDelta{ActiveDay: now.Format(constants.DateFormat)}
	result := Result{}
	if attr == "" {
		delta.Coins = res.Amount
		result.Coins = res.Amount
	} else {
		delta.XP.Add(attr, res.Amount)
		result.XP = delta.XP
	}

	grants := []daily.Grant{{ItemID: itemID, Habit: attr != "", Attribute: attr}}
	o.tracker.Record(ownerID, grants)
	if _, err := o.store.ApplyStatsDelta(ctx, ownerID, delta, now); err != nil {
		if !apperrors.IsRecoverable(err) {
			o.tracker.Revoke(ownerID, grants)
			return Result{}, err
		}
		logger.Warn("Stats saved locally, remote update pending", "owner", ownerID, "error", err)
	}

	result.Messages = messages(reward.Summary{Coins: result.Coins, XP: result.XP, Streak: streak})
	return result, nil
}

// resolveRewarded moves today's rewarded marks onto the current ids of
// records the sync coordinator has re-keyed since they were rewarded.
func (o *Orchestrator) resolveRewarded(ownerID string) {
	o.tracker.Resolve(ownerID, func(id string) string {
		return o.store.ResolveID(ownerID, id)
	})
}

func recorded(s models.FocusSession) Result {
	return Result{
		Coins:    s.RewardCoins,
		XP:       s.RewardXP,
		Messages: messages(reward.Summary{Coins: s.RewardCoins, XP: s.RewardXP}),
	}
}

func messages(s reward.Summary) []string {
	if msgs := reward.Messages(s); msgs != nil {
		return msgs
	}
	return []string{}
}
