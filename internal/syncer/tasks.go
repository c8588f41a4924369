package syncer

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/AjCodes/FocusUp-sub000/internal/models"
)

// CreateTask adds a task for ownerID. The task is visible and cached before
// this returns; the remote insert runs in the background.
func (c *Coordinator) CreateTask(ctx context.Context, ownerID string, f models.TaskFields) (models.Task, error) {
	if err := c.validator.ValidateTaskFields(f); err != nil {
		return models.Task{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.Task{}, err
	}
	if f.Priority == "" {
		f.Priority = models.PriorityMedium
	}

	task := models.Task{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(f.Title),
		Description: f.Description,
		Deadline:    f.Deadline,
		Priority:    f.Priority,
		UserID:      ownerID,
		CreatedAt:   c.now().UTC(),
	}
	create(c, taskKind, ownerID, task)
	return task, nil
}

// UpdateTask applies patch to the task. A remote failure is returned as a
// recoverable error and the local change stands.
func (c *Coordinator) UpdateTask(ctx context.Context, id string, patch models.TaskPatch, ownerID string) error {
	if err := c.validator.ValidateTaskPatch(patch); err != nil {
		return err
	}
	at := c.now().UTC()
	return update(ctx, c, taskKind, ownerID, id, func(t *models.Task) {
		patch.Apply(t, at)
	})
}

// DeleteTask removes the task. It never comes back, even when the remote
// delete fails.
func (c *Coordinator) DeleteTask(ctx context.Context, id, ownerID string) error {
	return remove(ctx, c, taskKind, ownerID, id)
}

// ListTasks returns the owner's tasks, newest first.
func (c *Coordinator) ListTasks(ownerID string) []models.Task {
	return list(c, taskKind, ownerID)
}

func (c *Coordinator) GetTask(ownerID, id string) (models.Task, bool) {
	return get(c, taskKind, ownerID, id)
}
