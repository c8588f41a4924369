package models

import (
	"fmt"
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

func ParsePriority(input string) (Priority, error) {
	p := Priority(strings.TrimSpace(strings.ToLower(input)))
	if p == "" {
		return PriorityMedium, nil
	}
	if !p.IsValid() {
		return "", fmt.Errorf("invalid priority: %q (expected low, medium or high)", input)
	}
	return p, nil
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Priority    Priority   `json:"priority"`
	Done        bool       `json:"done"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UserID      string     `json:"user_id"`
	CreatedAt   time.Time  `json:"created_at"`
}

// SetDone flips the done flag and keeps CompletedAt consistent with it.
func (t *Task) SetDone(done bool, at time.Time) {
	t.Done = done
	if done {
		if t.CompletedAt == nil {
			completed := at
			t.CompletedAt = &completed
		}
		return
	}
	t.CompletedAt = nil
}

// TaskFields are the user-supplied fields of a new task.
type TaskFields struct {
	Title       string
	Description *string
	Deadline    *time.Time
	Priority    Priority
}

// TaskPatch is a partial update. Nil fields are left unchanged.
type TaskPatch struct {
	Title         *string
	Description   *string
	Deadline      *time.Time
	ClearDeadline bool
	Priority      *Priority
	Done          *bool
}

// Apply applies the patch to t; at is used as the completion time when Done is set.
func (p TaskPatch) Apply(t *Task, at time.Time) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		if *p.Description == "" {
			t.Description = nil
		} else {
			desc := *p.Description
			t.Description = &desc
		}
	}
	if p.ClearDeadline {
		t.Deadline = nil
	} else if p.Deadline != nil {
		deadline := *p.Deadline
		t.Deadline = &deadline
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Done != nil {
		t.SetDone(*p.Done, at)
	}
}
