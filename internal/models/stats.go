package models

import "time"

type UserStats struct {
	UserID        string      `json:"user_id"`
	Coins         int         `json:"coins"`
	CurrentStreak int         `json:"current_streak"`
	LongestStreak int         `json:"longest_streak"`
	FocusSeconds  int         `json:"focus_seconds"`
	SessionCount  int         `json:"session_count"`
	SprintCount   int         `json:"sprint_count"`
	XP            AttributeXP `json:"xp"`
	LastActiveDay string      `json:"last_active_day,omitempty"` // YYYY-MM-DD format
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Normalize restores the invariants: no negative totals and longest >= current streak.
func (s *UserStats) Normalize() {
	if s.Coins < 0 {
		s.Coins = 0
	}
	if s.CurrentStreak < 0 {
		s.CurrentStreak = 0
	}
	if s.LongestStreak < s.CurrentStreak {
		s.LongestStreak = s.CurrentStreak
	}
}

// StatsDelta is an increment applied to UserStats.
type StatsDelta struct {
	Coins        int
	XP           AttributeXP
	FocusSeconds int
	Sessions     int
	Sprints      int
	// ActiveDay, when set, counts the day (YYYY-MM-DD) toward the streak.
	ActiveDay string
}

func (d StatsDelta) IsZero() bool {
	return d == StatsDelta{}
}

// Apply adds the delta and stamps UpdatedAt.
func (s *UserStats) Apply(d StatsDelta, at time.Time) {
	s.Coins += d.Coins
	s.XP = s.XP.Plus(d.XP)
	s.FocusSeconds += d.FocusSeconds
	s.SessionCount += d.Sessions
	s.SprintCount += d.Sprints
	if d.ActiveDay != "" {
		s.MarkActive(d.ActiveDay)
	}
	s.UpdatedAt = at
	s.Normalize()
}

// MarkActive advances the streak for day. The streak grows when day directly
// follows the last active day, restarts at 1 after a gap and is unchanged for
// a day already counted or earlier than the last one.
func (s *UserStats) MarkActive(day string) {
	d, err := time.Parse("2006-01-02", day)
	if err != nil {
		return
	}
	if s.LastActiveDay == "" {
		s.CurrentStreak = 1
		s.LastActiveDay = day
		s.Normalize()
		return
	}
	last, err := time.Parse("2006-01-02", s.LastActiveDay)
	if err != nil || d.After(last.AddDate(0, 0, 1)) {
		s.CurrentStreak = 1
	} else if d.Equal(last.AddDate(0, 0, 1)) {
		s.CurrentStreak++
	} else {
		return
	}
	s.LastActiveDay = day
	s.Normalize()
}

// Merge folds other's totals into s. Used when re-parenting guest stats onto an account.
func (s *UserStats) Merge(other UserStats) {
	s.Coins += other.Coins
	s.XP = s.XP.Plus(other.XP)
	s.FocusSeconds += other.FocusSeconds
	s.SessionCount += other.SessionCount
	s.SprintCount += other.SprintCount
	if other.CurrentStreak > s.CurrentStreak {
		s.CurrentStreak = other.CurrentStreak
	}
	if other.LongestStreak > s.LongestStreak {
		s.LongestStreak = other.LongestStreak
	}
	if other.LastActiveDay > s.LastActiveDay {
		s.LastActiveDay = other.LastActiveDay
	}
	if other.UpdatedAt.After(s.UpdatedAt) {
		s.UpdatedAt = other.UpdatedAt
	}
	s.Normalize()
}

// DailyCounter holds one owner's reward counts for a single local day.
type DailyCounter struct {
	UserID          string               `json:"user_id"`
	Day             string               `json:"day"` // YYYY-MM-DD format
	TaskCount       int                  `json:"task_count"`
	HabitCount      int                  `json:"habit_count"`
	AttributeCounts map[Attribute]int    `json:"attribute_counts"`
	Rewarded        map[string]time.Time `json:"rewarded,omitempty"`
}
