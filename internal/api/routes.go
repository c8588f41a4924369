package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/AjCodes/FocusUp-sub000/internal/logger"
)

// NewRouter mounts the API under /api.
//
// Routes:
//
//	POST /api/sessions/{id}/complete  → rewards.CompleteSession
//	POST /api/tasks/{id}/complete     → rewards.CompleteTask
//	POST /api/habits/{id}/toggle      → rewards.ToggleHabit
//	GET  /api/stats                   → reads.Stats
//	GET  /api/tasks                   → reads.Tasks
//	GET  /api/habits                  → reads.Habits
//	POST /api/refresh                 → reads.Refresh
func NewRouter(rewards *RewardHandler, reads *ReadHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	// Bodyless requests pass; anything with a body must be JSON
	r.Use(chiMiddleware.AllowContentType("application/json"))
	r.Use(requestLogging)

	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions/{id}/complete", rewards.CompleteSession)
		r.Post("/tasks/{id}/complete", rewards.CompleteTask)
		r.Post("/habits/{id}/toggle", rewards.ToggleHabit)

		r.Get("/stats", reads.Stats)
		r.Get("/tasks", reads.Tasks)
		r.Get("/habits", reads.Habits)
		r.Post("/refresh", reads.Refresh)
	})

	return r
}

func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug("Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}
