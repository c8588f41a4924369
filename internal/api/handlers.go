// Package api exposes session completion and progress reads over a local
// JSON HTTP API for UI clients.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/AjCodes/FocusUp-sub000/internal/errors"
	"github.com/AjCodes/FocusUp-sub000/internal/logger"
	"github.com/AjCodes/FocusUp-sub000/internal/models"
	"github.com/AjCodes/FocusUp-sub000/internal/session"
	"github.com/AjCodes/FocusUp-sub000/internal/syncer"
)

// Rewarder awards completed work.
type Rewarder interface {
	CompleteSession(ctx context.Context, req session.Request) (session.Result, error)
	CompleteTask(ctx context.Context, ownerID, taskID string) (session.Result, error)
	ToggleHabit(ctx context.Context, ownerID, habitID string) (session.Result, bool, error)
}

// Reader serves progress and list reads and explicit refreshes.
type Reader interface {
	GetStats(ownerID string) models.UserStats
	ListTasks(ownerID string) []models.Task
	ListHabits(ownerID string) []models.Habit
	RefreshAll(ctx context.Context, ownerID string) error
	PendingCount(ownerID string) int
}

// CompleteRequest is the body of POST /api/sessions/{id}/complete.
type CompleteRequest struct {
	DoneTaskIDs       []string `json:"doneTaskIds"`
	PerformedHabitIDs []string `json:"performedHabitIds"`
	UserID            string   `json:"userId"`
	// Duration is in seconds. Zero means time since the session started.
	Duration int `json:"duration"`
}

// RewardResponse reports what a completion earned.
type RewardResponse struct {
	Coins     int                `json:"coins"`
	XP        models.AttributeXP `json:"xp"`
	Messages  []string           `json:"messages"`
	Completed *bool              `json:"completed,omitempty"`
}

func newRewardResponse(r session.Result) RewardResponse {
	msgs := r.Messages
	if msgs == nil {
		msgs = []string{}
	}
	return RewardResponse{Coins: r.Coins, XP: r.XP, Messages: msgs}
}

type RewardHandler struct {
	Rewarder Rewarder
}

// CompleteSession handles POST /api/sessions/{id}/complete.
func (h *RewardHandler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Duration < 0 {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	res, err := h.Rewarder.CompleteSession(r.Context(), session.Request{
		SessionID:         chi.URLParam(r, "id"),
		DoneTaskIDs:       req.DoneTaskIDs,
		PerformedHabitIDs: req.PerformedHabitIDs,
		UserID:            req.UserID,
		Duration:          time.Duration(req.Duration) * time.Second,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRewardResponse(res))
}

// CompleteTask handles POST /api/tasks/{id}/complete?userId=.
func (h *RewardHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("userId")
	if owner == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}
	res, err := h.Rewarder.CompleteTask(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRewardResponse(res))
}

// ToggleHabit handles POST /api/habits/{id}/toggle?userId=.
func (h *RewardHandler) ToggleHabit(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("userId")
	if owner == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}
	res, completed, err := h.Rewarder.ToggleHabit(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	resp := newRewardResponse(res)
	resp.Completed = &completed
	writeJSON(w, http.StatusOK, resp)
}

type ReadHandler struct {
	Reader Reader
}

func ownerParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := r.URL.Query().Get("userId")
	if owner == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return "", false
	}
	return owner, true
}

// Stats handles GET /api/stats?userId=.
func (h *ReadHandler) Stats(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(w, r)
	if !ok {
		return
	}
	stats := h.Reader.GetStats(owner)
	stats.UserID = owner
	writeJSON(w, http.StatusOK, stats)
}

// Tasks handles GET /api/tasks?userId=.
func (h *ReadHandler) Tasks(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(w, r)
	if !ok {
		return
	}
	tasks := h.Reader.ListTasks(owner)
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// Habits handles GET /api/habits?userId=.
func (h *ReadHandler) Habits(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(w, r)
	if !ok {
		return
	}
	habits := h.Reader.ListHabits(owner)
	if habits == nil {
		habits = []models.Habit{}
	}
	writeJSON(w, http.StatusOK, habits)
}

// Refresh handles POST /api/refresh?userId=. A refresh that could not reach
// the remote store still answers 200 with the number of pending writes.
func (h *ReadHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(w, r)
	if !ok {
		return
	}
	err := h.Reader.RefreshAll(r.Context(), owner)
	if err != nil && !apperrors.IsRecoverable(err) {
		writeError(w, err)
		return
	}
	resp := map[string]any{
		"synced":  err == nil,
		"pending": h.Reader.PendingCount(owner),
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to write response", "error", err)
	}
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, syncer.ErrNoSuchRecord):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, syncer.ErrInvalidTransition), errors.Is(err, syncer.ErrCompletionInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
	case apperrors.Classify(err) == apperrors.KindNetworkUnavailable:
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		logger.Error("Request failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
