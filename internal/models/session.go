package models

import "time"

type SessionState string

const (
	SessionScheduled  SessionState = "scheduled"
	SessionActive     SessionState = "active"
	SessionCompleting SessionState = "completing"
	SessionCompleted  SessionState = "completed"
)

// CanTransition reports whether the focus session state machine allows moving from s to next.
// Completing may fall back to Active when a completion attempt is abandoned.
func (s SessionState) CanTransition(next SessionState) bool {
	switch s {
	case SessionScheduled:
		return next == SessionActive
	case SessionActive:
		return next == SessionCompleting
	case SessionCompleting:
		return next == SessionCompleted || next == SessionActive
	default:
		return false
	}
}

type FocusSession struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	StartTime      time.Time    `json:"start_time"`
	PlannedSeconds int          `json:"planned_seconds"`
	State          SessionState `json:"state"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	ActualSeconds  int          `json:"actual_seconds"`
	RewardCoins    int          `json:"reward_coins"`
	RewardXP       AttributeXP  `json:"reward_xp"`
	CreatedAt      time.Time    `json:"created_at"`
}

// SessionTaskLink ties a task to a session. Completed is scoped to the session and
// independent of the task's own Done flag.
type SessionTaskLink struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	TaskID    string `json:"task_id"`
	UserID    string `json:"user_id"`
	Completed bool   `json:"completed"`
}

// SessionHabitLink ties a habit to a session. Performed is scoped to the session.
type SessionHabitLink struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	HabitID   string `json:"habit_id"`
	UserID    string `json:"user_id"`
	Performed bool   `json:"performed"`
}
