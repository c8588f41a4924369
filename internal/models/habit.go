package models

import "time"

// Habit is a repeatable practice that trains one attribute.
type Habit struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Cue       *string   `json:"cue,omitempty"`
	Attribute Attribute `json:"attribute"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type HabitFields struct {
	Title     string
	Cue       *string
	Attribute Attribute
}

type HabitPatch struct {
	Title     *string
	Cue       *string
	Attribute *Attribute
}

func (p HabitPatch) Apply(h *Habit) {
	if p.Title != nil {
		h.Title = *p.Title
	}
	if p.Cue != nil {
		if *p.Cue == "" {
			h.Cue = nil
		} else {
			cue := *p.Cue
			h.Cue = &cue
		}
	}
	if p.Attribute != nil {
		h.Attribute = *p.Attribute
	}
}

// HabitCompletion records that a habit was performed. There is at most one per habit and local day.
type HabitCompletion struct {
	ID          string    `json:"id"`
	HabitID     string    `json:"habit_id"`
	UserID      string    `json:"user_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// Day returns the local calendar day of the completion (YYYY-MM-DD).
func (c HabitCompletion) Day() string {
	return c.CompletedAt.Local().Format("2006-01-02")
}
