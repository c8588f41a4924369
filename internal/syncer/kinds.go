package syncer

import (
	"time"

	"github.com/AjCodes/FocusUp-sub000/internal/constants"
	"github.com/AjCodes/FocusUp-sub000/internal/models"
	"github.com/AjCodes/FocusUp-sub000/internal/remote"
)

// closeInTime reports whether two creation times are within the natural-key window.
func closeInTime(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= constants.NaturalKeyWindow
}

var taskKind = kind[models.Task]{
	name:     "task",
	snapshot: constants.CollectionTasks,
	coll:     func(st *ownerState) *collection[models.Task] { return &st.tasks },
	table:    func(r remote.Store) remote.Table[models.Task] { return r.Tasks() },
	id:       func(t models.Task) string { return t.ID },
	setID:    func(t *models.Task, id string) { t.ID = id },
	setOwner: func(t *models.Task, owner string) { t.UserID = owner },
	sortKey:  func(t models.Task) time.Time { return t.CreatedAt },
	natural: func(local, remote models.Task) bool {
		return local.Title == remote.Title && closeInTime(local.CreatedAt, remote.CreatedAt)
	},
	rekeyed: func(st *ownerState, oldID, newID string) {
		for _, e := range st.taskLinks.Items {
			if e.Record.TaskID == oldID {
				e.Record.TaskID = newID
				touch(e)
			}
		}
	},
}

var habitKind = kind[models.Habit]{
	name:     "habit",
	snapshot: constants.CollectionHabits,
	coll:     func(st *ownerState) *collection[models.Habit] { return &st.habits },
	table:    func(r remote.Store) remote.Table[models.Habit] { return r.Habits() },
	id:       func(h models.Habit) string { return h.ID },
	setID:    func(h *models.Habit, id string) { h.ID = id },
	setOwner: func(h *models.Habit, owner string) { h.UserID = owner },
	sortKey:  func(h models.Habit) time.Time { return h.CreatedAt },
	natural: func(local, remote models.Habit) bool {
		return local.Title == remote.Title && closeInTime(local.CreatedAt, remote.CreatedAt)
	},
	rekeyed: func(st *ownerState, oldID, newID string) {
		for _, e := range st.completions.Items {
			if e.Record.HabitID == oldID {
				e.Record.HabitID = newID
				touch(e)
			}
		}
		for _, e := range st.habitLinks.Items {
			if e.Record.HabitID == oldID {
				e.Record.HabitID = newID
				touch(e)
			}
		}
	},
}

var completionKind = kind[models.HabitCompletion]{
	name:     "habit completion",
	snapshot: constants.CollectionCompletions,
	coll:     func(st *ownerState) *collection[models.HabitCompletion] { return &st.completions },
	table:    func(r remote.Store) remote.Table[models.HabitCompletion] { return r.Completions() },
	id:       func(c models.HabitCompletion) string { return c.ID },
	setID:    func(c *models.HabitCompletion, id string) { c.ID = id },
	setOwner: func(c *models.HabitCompletion, owner string) { c.UserID = owner },
	sortKey:  func(c models.HabitCompletion) time.Time { return c.CompletedAt },
	natural: func(local, remote models.HabitCompletion) bool {
		return local.HabitID == remote.HabitID && local.Day() == remote.Day()
	},
	unique: func(c models.HabitCompletion) string { return c.HabitID + "/" + c.Day() },
}

var sessionKind = kind[models.FocusSession]{
	name:     "focus session",
	snapshot: constants.CollectionProgress,
	coll:     func(st *ownerState) *collection[models.FocusSession] { return &st.sessions },
	table:    func(r remote.Store) remote.Table[models.FocusSession] { return r.Sessions() },
	id:       func(s models.FocusSession) string { return s.ID },
	setID:    func(s *models.FocusSession, id string) { s.ID = id },
	setOwner: func(s *models.FocusSession, owner string) { s.UserID = owner },
	sortKey:  func(s models.FocusSession) time.Time { return s.StartTime },
	natural: func(local, remote models.FocusSession) bool {
		return local.StartTime.Equal(remote.StartTime) && local.PlannedSeconds == remote.PlannedSeconds
	},
	rekeyed: func(st *ownerState, oldID, newID string) {
		if st.completing[oldID] {
			delete(st.completing, oldID)
			st.completing[newID] = true
		}
		for _, e := range st.taskLinks.Items {
			if e.Record.SessionID == oldID {
				e.Record.SessionID = newID
				touch(e)
			}
		}
		for _, e := range st.habitLinks.Items {
			if e.Record.SessionID == oldID {
				e.Record.SessionID = newID
				touch(e)
			}
		}
	},
}

var taskLinkKind = kind[models.SessionTaskLink]{
	name:     "session task",
	snapshot: constants.CollectionProgress,
	coll:     func(st *ownerState) *collection[models.SessionTaskLink] { return &st.taskLinks },
	table:    func(r remote.Store) remote.Table[models.SessionTaskLink] { return r.SessionTasks() },
	id:       func(l models.SessionTaskLink) string { return l.ID },
	setID:    func(l *models.SessionTaskLink, id string) { l.ID = id },
	setOwner: func(l *models.SessionTaskLink, owner string) { l.UserID = owner },
	natural: func(local, remote models.SessionTaskLink) bool {
		return local.SessionID == remote.SessionID && local.TaskID == remote.TaskID
	},
}

var habitLinkKind = kind[models.SessionHabitLink]{
	name:     "session habit",
	snapshot: constants.CollectionProgress,
	coll:     func(st *ownerState) *collection[models.SessionHabitLink] { return &st.habitLinks },
	table:    func(r remote.Store) remote.Table[models.SessionHabitLink] { return r.SessionHabits() },
	id:       func(l models.SessionHabitLink) string { return l.ID },
	setID:    func(l *models.SessionHabitLink, id string) { l.ID = id },
	setOwner: func(l *models.SessionHabitLink, owner string) { l.UserID = owner },
	natural: func(local, remote models.SessionHabitLink) bool {
		return local.SessionID == remote.SessionID && local.HabitID == remote.HabitID
	},
}
