package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/AjCodes/FocusUp-sub000/internal/models"
)

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

var taskSpec = tableSpec[models.Task]{
	name:    "tasks",
	columns: []string{"id", "user_id", "title", "description", "deadline", "priority", "done", "completed_at", "created_at"},
	orderBy: "created_at DESC",
	id:      func(t models.Task) string { return t.ID },
	withID:  func(t models.Task, id string) models.Task { t.ID = id; return t },
	values: func(t models.Task) ([]any, error) {
		return []any{t.ID, t.UserID, t.Title, nullableString(t.Description), nullableTime(t.Deadline),
			string(t.Priority), t.Done, nullableTime(t.CompletedAt), t.CreatedAt}, nil
	},
	scan: func(row scanner) (models.Task, error) {
		var t models.Task
		var desc sql.NullString
		var deadline, completedAt sql.NullTime
		var priority string
		if err := row.Scan(&t.ID, &t.UserID, &t.Title, &desc, &deadline, &priority, &t.Done, &completedAt, &t.CreatedAt); err != nil {
			return models.Task{}, err
		}
		t.Description = stringPtr(desc)
		t.Deadline = timePtr(deadline)
		t.CompletedAt = timePtr(completedAt)
		t.Priority = models.Priority(priority)
		return t, nil
	},
}

var habitSpec = tableSpec[models.Habit]{
	name:    "habits",
	columns: []string{"id", "user_id", "title", "cue", "attribute", "created_at"},
	orderBy: "created_at DESC",
	id:      func(h models.Habit) string { return h.ID },
	withID:  func(h models.Habit, id string) models.Habit { h.ID = id; return h },
	values: func(h models.Habit) ([]any, error) {
		return []any{h.ID, h.UserID, h.Title, nullableString(h.Cue), string(h.Attribute), h.CreatedAt}, nil
	},
	scan: func(row scanner) (models.Habit, error) {
		var h models.Habit
		var cue sql.NullString
		var attr string
		if err := row.Scan(&h.ID, &h.UserID, &h.Title, &cue, &attr, &h.CreatedAt); err != nil {
			return models.Habit{}, err
		}
		h.Cue = stringPtr(cue)
		h.Attribute = models.Attribute(attr)
		return h, nil
	},
}

var completionSpec = tableSpec[models.HabitCompletion]{
	name:     "habit_completions",
	columns:  []string{"id", "user_id", "habit_id", "completed_at", "day"},
	orderBy:  "completed_at DESC",
	conflict: "user_id, habit_id, day",
	id:       func(c models.HabitCompletion) string { return c.ID },
	withID:   func(c models.HabitCompletion, id string) models.HabitCompletion { c.ID = id; return c },
	values: func(c models.HabitCompletion) ([]any, error) {
		return []any{c.ID, c.UserID, c.HabitID, c.CompletedAt, c.Day()}, nil
	},
	scan: func(row scanner) (models.HabitCompletion, error) {
		var c models.HabitCompletion
		var day string
		err := row.Scan(&c.ID, &c.UserID, &c.HabitID, &c.CompletedAt, &day)
		return c, err
	},
}

var sessionSpec = tableSpec[models.FocusSession]{
	name: "focus_sessions",
	columns: []string{"id", "user_id", "start_time", "planned_seconds", "state", "completed_at",
		"actual_seconds", "reward_coins", "reward_xp", "created_at"},
	orderBy: "start_time DESC",
	id:      func(s models.FocusSession) string { return s.ID },
	withID:  func(s models.FocusSession, id string) models.FocusSession { s.ID = id; return s },
	values: func(s models.FocusSession) ([]any, error) {
		xp, err := json.Marshal(s.RewardXP)
		if err != nil {
			return nil, err
		}
		return []any{s.ID, s.UserID, s.StartTime, s.PlannedSeconds, string(s.State), nullableTime(s.CompletedAt),
			s.ActualSeconds, s.RewardCoins, xp, s.CreatedAt}, nil
	},
	scan: func(row scanner) (models.FocusSession, error) {
		var s models.FocusSession
		var state string
		var completedAt sql.NullTime
		var xp []byte
		if err := row.Scan(&s.ID, &s.UserID, &s.StartTime, &s.PlannedSeconds, &state, &completedAt,
			&s.ActualSeconds, &s.RewardCoins, &xp, &s.CreatedAt); err != nil {
			return models.FocusSession{}, err
		}
		s.State = models.SessionState(state)
		s.CompletedAt = timePtr(completedAt)
		if len(xp) > 0 {
			if err := json.Unmarshal(xp, &s.RewardXP); err != nil {
				return models.FocusSession{}, err
			}
		}
		return s, nil
	},
}

var sessionTaskSpec = tableSpec[models.SessionTaskLink]{
	name:    "session_tasks",
	columns: []string{"id", "user_id", "session_id", "task_id", "completed"},
	orderBy: "session_id, id",
	id:      func(l models.SessionTaskLink) string { return l.ID },
	withID:  func(l models.SessionTaskLink, id string) models.SessionTaskLink { l.ID = id; return l },
	values: func(l models.SessionTaskLink) ([]any, error) {
		return []any{l.ID, l.UserID, l.SessionID, l.TaskID, l.Completed}, nil
	},
	scan: func(row scanner) (models.SessionTaskLink, error) {
		var l models.SessionTaskLink
		err := row.Scan(&l.ID, &l.UserID, &l.SessionID, &l.TaskID, &l.Completed)
		return l, err
	},
}

var sessionHabitSpec = tableSpec[models.SessionHabitLink]{
	name:    "session_habits",
	columns: []string{"id", "user_id", "session_id", "habit_id", "performed"},
	orderBy: "session_id, id",
	id:      func(l models.SessionHabitLink) string { return l.ID },
	withID:  func(l models.SessionHabitLink, id string) models.SessionHabitLink { l.ID = id; return l },
	values: func(l models.SessionHabitLink) ([]any, error) {
		return []any{l.ID, l.UserID, l.SessionID, l.HabitID, l.Performed}, nil
	},
	scan: func(row scanner) (models.SessionHabitLink, error) {
		var l models.SessionHabitLink
		err := row.Scan(&l.ID, &l.UserID, &l.SessionID, &l.HabitID, &l.Performed)
		return l, err
	},
}
