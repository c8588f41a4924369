package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AjCodes/FocusUp-sub000/internal/constants"
	"github.com/AjCodes/FocusUp-sub000/internal/models"
)

// ToggleHabitCompletion completes the habit for the local day of at, or
// removes that day's completion if one exists. It reports whether the habit
// is completed afterwards.
func (c *Coordinator) ToggleHabitCompletion(ctx context.Context, ownerID, habitID string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	day := at.Local().Format(constants.DateFormat)

	c.mu.Lock()
	st := c.state(ownerID)
	habit := habitKind.lookup(st, habitID)
	if habit == nil {
		c.mu.Unlock()
		return false, fmt.Errorf("habit %s: %w", habitID, ErrNoSuchRecord)
	}
	realHabitID := habit.Record.ID

	var existing string
	for _, e := range st.completions.Items {
		if e.Record.HabitID == realHabitID && e.Record.Day() == day {
			existing = e.Record.ID
			break
		}
	}

	if existing != "" {
		realID, needsRemote, _ := removeLocal(completionKind, st, existing)
		c.persist(ownerID, st, completionKind.snapshot)
		c.mu.Unlock()

		if needsRemote {
			c.background(func(ctx context.Context) {
				_ = pushDelete(ctx, c, completionKind, ownerID, realID)
			})
		}
		c.scheduleRefresh(ownerID)
		return false, nil
	}

	completion := models.HabitCompletion{
		ID:          uuid.NewString(),
		HabitID:     realHabitID,
		UserID:      ownerID,
		CompletedAt: at.UTC(),
	}
	insertLocal(completionKind, st, completion)
	completionKind.sort(st.completions.Items)
	c.persist(ownerID, st, completionKind.snapshot)
	c.mu.Unlock()

	c.background(func(ctx context.Context) {
		// The habit must exist remotely before its completion can
		_ = flush(ctx, c, habitKind, ownerID, realHabitID)
		_ = pushCreate(ctx, c, completionKind, ownerID, completion.ID)
	})
	c.scheduleRefresh(ownerID)
	return true, nil
}

// CompletionsOn returns the owner's completions for a local day (YYYY-MM-DD).
func (c *Coordinator) CompletionsOn(ownerID, day string) []models.HabitCompletion {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.HabitCompletion
	for _, e := range c.state(ownerID).completions.Items {
		if e.Record.Day() == day {
			out = append(out, e.Record)
		}
	}
	return out
}

// IsHabitCompletedOn reports whether habitID has a completion on day.
func (c *Coordinator) IsHabitCompletedOn(ownerID, habitID, day string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state(ownerID)
	habitID = resolve(st, habitID)
	for _, e := range st.completions.Items {
		if e.Record.HabitID == habitID && e.Record.Day() == day {
			return true
		}
	}
	return false
}

func (c *Coordinator) Completions(ownerID string) []models.HabitCompletion {
	return list(c, completionKind, ownerID)
}
