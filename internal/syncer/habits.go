package syncer

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/AjCodes/FocusUp-sub000/internal/models"
)

func (c *Coordinator) CreateHabit(ctx context.Context, ownerID string, f models.HabitFields) (models.Habit, error) {
	if err := c.validator.ValidateHabitFields(f); err != nil {
		return models.Habit{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.Habit{}, err
	}

	habit := models.Habit{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(f.Title),
		Cue:       f.Cue,
		Attribute: f.Attribute,
		UserID:    ownerID,
		CreatedAt: c.now().UTC(),
	}
	create(c, habitKind, ownerID, habit)
	return habit, nil
}

func (c *Coordinator) UpdateHabit(ctx context.Context, id string, patch models.HabitPatch, ownerID string) error {
	if err := c.validator.ValidateHabitPatch(patch); err != nil {
		return err
	}
	return update(ctx, c, habitKind, ownerID, id, patch.Apply)
}

// DeleteHabit removes the habit and its completions.
func (c *Coordinator) DeleteHabit(ctx context.Context, id, ownerID string) error {
	c.mu.Lock()
	st := c.state(ownerID)
	habitID := resolve(st, id)
	var completionIDs []string
	for _, e := range st.completions.Items {
		if e.Record.HabitID == habitID {
			completionIDs = append(completionIDs, e.Record.ID)
		}
	}
	c.mu.Unlock()

	var firstErr error
	for _, cid := range completionIDs {
		if err := remove(ctx, c, completionKind, ownerID, cid); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := remove(ctx, c, habitKind, ownerID, id); err != nil {
		return err
	}
	return firstErr
}

func (c *Coordinator) ListHabits(ownerID string) []models.Habit {
	return list(c, habitKind, ownerID)
}

func (c *Coordinator) GetHabit(ownerID, id string) (models.Habit, bool) {
	return get(c, habitKind, ownerID, id)
}
