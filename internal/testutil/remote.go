// Package testutil provides an in-memory remote store with failure
// injection and a controllable clock for package tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/AjCodes/FocusUp-sub000/internal/errors"
	"github.com/AjCodes/FocusUp-sub000/internal/models"
	"github.com/AjCodes/FocusUp-sub000/internal/remote"
)

// Remote is an in-memory remote.Store. It starts online.
type Remote struct {
	mu      sync.Mutex
	offline bool
	remap   bool
	nextID  int
	calls   map[string]int
	gate    chan struct{}
	ackGate bool
	held    int
	unique  bool

	tasks         *memTable[models.Task]
	habits        *memTable[models.Habit]
	completions   *memTable[models.HabitCompletion]
	sessions      *memTable[models.FocusSession]
	sessionTasks  *memTable[models.SessionTaskLink]
	sessionHabits *memTable[models.SessionHabitLink]
	stats         map[string]models.UserStats
}

var _ remote.Store = (*Remote)(nil)

func NewRemote() *Remote {
	r := &Remote{calls: make(map[string]int), stats: make(map[string]models.UserStats)}
	r.tasks = newMemTable(r, "tasks",
		func(t models.Task) (string, string) { return t.ID, t.UserID },
		func(t models.Task, id, owner string) models.Task { t.ID, t.UserID = id, owner; return t })
	r.habits = newMemTable(r, "habits",
		func(h models.Habit) (string, string) { return h.ID, h.UserID },
		func(h models.Habit, id, owner string) models.Habit { h.ID, h.UserID = id, owner; return h })
	r.completions = newMemTable(r, "habit_completions",
		func(c models.HabitCompletion) (string, string) { return c.ID, c.UserID },
		func(c models.HabitCompletion, id, owner string) models.HabitCompletion { c.ID, c.UserID = id, owner; return c })
	r.completions.unique = func(c models.HabitCompletion) string { return c.UserID + "/" + c.HabitID + "/" + c.Day() }
	r.sessions = newMemTable(r, "focus_sessions",
		func(s models.FocusSession) (string, string) { return s.ID, s.UserID },
		func(s models.FocusSession, id, owner string) models.FocusSession { s.ID, s.UserID = id, owner; return s })
	r.sessionTasks = newMemTable(r, "session_tasks",
		func(l models.SessionTaskLink) (string, string) { return l.ID, l.UserID },
		func(l models.SessionTaskLink, id, owner string) models.SessionTaskLink { l.ID, l.UserID = id, owner; return l })
	r.sessionHabits = newMemTable(r, "session_habits",
		func(l models.SessionHabitLink) (string, string) { return l.ID, l.UserID },
		func(l models.SessionHabitLink, id, owner string) models.SessionHabitLink { l.ID, l.UserID = id, owner; return l })
	return r
}

// SetOffline makes every call fail with a network error until set back.
func (r *Remote) SetOffline(offline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offline = offline
}

// SetRemapIDs makes Insert assign server-side ids.
func (r *Remote) SetRemapIDs(remap bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remap = remap
}

// SetUniqueCompletionDays makes a completion insert for a habit and day
// that already has a row return that row, as the PostgreSQL store does.
func (r *Remote) SetUniqueCompletionDays(unique bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unique = unique
}

// Calls returns how many times op ("insert tasks", "reassign", ...) was attempted.
func (r *Remote) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

// enter records the call and reports the injected failure, if any. Caller holds r.mu.
func (r *Remote) enter(op, id string) error {
	r.calls[op]++
	if r.offline {
		return apperrors.Wrap(op, id, apperrors.ErrNetworkUnavailable)
	}
	return nil
}

// HoldInserts blocks every Insert until release is called.
func (r *Remote) HoldInserts() (release func()) {
	return r.hold(false)
}

// HoldInsertAcks lets every Insert store its row and then blocks the reply
// until release is called, as if the acknowledgement were slow.
func (r *Remote) HoldInsertAcks() (release func()) {
	return r.hold(true)
}

func (r *Remote) hold(afterWrite bool) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan struct{})
	r.gate = ch
	r.ackGate = afterWrite
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			if r.gate == ch {
				r.gate = nil
			}
			r.mu.Unlock()
			close(ch)
		})
	}
}

// Held returns how many inserts have waited on a hold.
func (r *Remote) Held() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.held
}

func (r *Remote) newID() string {
	r.nextID++
	return fmt.Sprintf("srv-%d", r.nextID)
}

func (r *Remote) Tasks() remote.Table[models.Task]                     { return r.tasks }
func (r *Remote) Habits() remote.Table[models.Habit]                   { return r.habits }
func (r *Remote) Completions() remote.Table[models.HabitCompletion]    { return r.completions }
func (r *Remote) Sessions() remote.Table[models.FocusSession]          { return r.sessions }
func (r *Remote) SessionTasks() remote.Table[models.SessionTaskLink]   { return r.sessionTasks }
func (r *Remote) SessionHabits() remote.Table[models.SessionHabitLink] { return r.sessionHabits }
func (r *Remote) Stats() remote.StatsTable                             { return (*memStats)(r) }

// PutTask stores a task directly, as if written by another device.
func (r *Remote) PutTask(t models.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks.rows[t.ID] = t
}

// RemoveTask deletes a task directly, as if deleted by another device.
func (r *Remote) RemoveTask(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks.rows, id)
}

// TaskRows returns a copy of every stored task.
func (r *Remote) TaskRows() []models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks.all()
}

// HabitRows returns a copy of every stored habit.
func (r *Remote) HabitRows() []models.Habit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.habits.all()
}

// CompletionRows returns a copy of every stored habit completion.
func (r *Remote) CompletionRows() []models.HabitCompletion {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completions.all()
}

// SessionRows returns a copy of every stored focus session.
func (r *Remote) SessionRows() []models.FocusSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions.all()
}

// SessionTaskRows returns a copy of every stored session task link.
func (r *Remote) SessionTaskRows() []models.SessionTaskLink {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionTasks.all()
}

// PutStats stores stats directly, as if written by another device.
func (r *Remote) PutStats(s models.UserStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats[s.UserID] = s
}

// StatsRow returns the stored stats for owner.
func (r *Remote) StatsRow(ownerID string) (models.UserStats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stats[ownerID]
	return s, ok
}

func (r *Remote) ReassignOwner(ctx context.Context, guestID, authID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("reassign", guestID); err != nil {
		return err
	}
	if guestID == authID {
		return nil
	}

	if guest, ok := r.stats[guestID]; ok {
		merged := r.stats[authID]
		merged.UserID = authID
		merged.Merge(guest)
		r.stats[authID] = merged
		delete(r.stats, guestID)
	}

	r.tasks.reassign(guestID, authID)
	r.habits.reassign(guestID, authID)
	r.completions.reassign(guestID, authID)
	r.sessions.reassign(guestID, authID)
	r.sessionTasks.reassign(guestID, authID)
	r.sessionHabits.reassign(guestID, authID)
	return nil
}

type memTable[T any] struct {
	r     *Remote
	name  string
	rows  map[string]T
	keys  func(T) (id, owner string)
	rekey func(T, string, string) T
	// unique keys rows for SetUniqueCompletionDays. Nil for other tables.
	unique func(T) string
}

func newMemTable[T any](r *Remote, name string, keys func(T) (string, string), rekey func(T, string, string) T) *memTable[T] {
	return &memTable[T]{r: r, name: name, rows: make(map[string]T), keys: keys, rekey: rekey}
}

func (t *memTable[T]) all() []T {
	ids := make([]string, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.rows[id])
	}
	return out
}

func (t *memTable[T]) reassign(from, to string) {
	for id, rec := range t.rows {
		if _, owner := t.keys(rec); owner == from {
			t.rows[id] = t.rekey(rec, id, to)
		}
	}
}

func (t *memTable[T]) Insert(ctx context.Context, rec T) (T, error) {
	var zero T
	wait := func(gate chan struct{}) error {
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return apperrors.Wrap("insert "+t.name, "", ctx.Err())
		}
	}

	t.r.mu.Lock()
	gate, afterWrite := t.r.gate, t.r.ackGate
	if gate != nil && !afterWrite {
		t.r.held++
		t.r.mu.Unlock()
		if err := wait(gate); err != nil {
			return zero, err
		}
		t.r.mu.Lock()
	}

	id, owner := t.keys(rec)
	if err := t.r.enter("insert "+t.name, id); err != nil {
		t.r.mu.Unlock()
		return zero, err
	}
	if existing, ok := t.sameKey(rec); ok {
		t.r.mu.Unlock()
		return existing, nil
	}
	if t.r.remap {
		if _, exists := t.rows[id]; !exists {
			rec = t.rekey(rec, t.r.newID(), owner)
			id, _ = t.keys(rec)
		}
	}
	t.rows[id] = rec
	if gate != nil && afterWrite {
		t.r.held++
		t.r.mu.Unlock()
		if err := wait(gate); err != nil {
			return zero, err
		}
		return rec, nil
	}
	t.r.mu.Unlock()
	return rec, nil
}

// sameKey finds a stored row sharing rec's unique key. Caller holds t.r.mu.
func (t *memTable[T]) sameKey(rec T) (T, bool) {
	var zero T
	if t.unique == nil || !t.r.unique {
		return zero, false
	}
	key := t.unique(rec)
	for _, row := range t.all() {
		if t.unique(row) == key {
			return row, true
		}
	}
	return zero, false
}

func (t *memTable[T]) Update(ctx context.Context, rec T) error {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	id, _ := t.keys(rec)
	if err := t.r.enter("update "+t.name, id); err != nil {
		return err
	}
	if _, ok := t.rows[id]; !ok {
		return apperrors.Wrap("update "+t.name, id, apperrors.ErrNotFound)
	}
	t.rows[id] = rec
	return nil
}

func (t *memTable[T]) Delete(ctx context.Context, id string) error {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	if err := t.r.enter("delete "+t.name, id); err != nil {
		return err
	}
	delete(t.rows, id)
	return nil
}

func (t *memTable[T]) SelectByOwner(ctx context.Context, ownerID string) ([]T, error) {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	if err := t.r.enter("select "+t.name, ""); err != nil {
		return nil, err
	}
	var out []T
	for _, rec := range t.all() {
		if _, owner := t.keys(rec); owner == ownerID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type memStats Remote

func (m *memStats) Get(ctx context.Context, ownerID string) (*models.UserStats, error) {
	r := (*Remote)(m)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("select user_stats", ownerID); err != nil {
		return nil, err
	}
	s, ok := r.stats[ownerID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memStats) Upsert(ctx context.Context, stats models.UserStats) error {
	r := (*Remote)(m)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("upsert user_stats", stats.UserID); err != nil {
		return err
	}
	stats.Normalize()
	r.stats[stats.UserID] = stats
	return nil
}
