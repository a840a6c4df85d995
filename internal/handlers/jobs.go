package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"chatforms-backend/internal/middleware"
	"chatforms-backend/internal/models"
)

type jobLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// JobHandler exposes the status of background form forwards.
type JobHandler struct {
	jobRepo jobLookup
}

func NewJobHandler(jobRepo jobLookup) *JobHandler {
	return &JobHandler{jobRepo: jobRepo}
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "job")
	if !ok {
		return
	}

	job, err := h.jobRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Job not found", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if job.UserID != userID && !middleware.IsAdmin(r.Context()) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	writeJSON(w, http.StatusOK, job)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type sessionCounter interface {
	Len() int
}

// HealthHandler reports dependency reachability.
type HealthHandler struct {
	postgres pinger
	redis    pinger
	sessions sessionCounter
}

func NewHealthHandler(postgres, redis pinger, sessions sessionCounter) *HealthHandler {
	return &HealthHandler{postgres: postgres, redis: redis, sessions: sessions}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"postgres": "ok", "redis": "ok"}
	status := http.StatusOK
	if err := h.postgres.Ping(ctx); err != nil {
		checks["postgres"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.redis.Ping(ctx); err != nil {
		checks["redis"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]interface{}{
		"status":   overall,
		"checks":   checks,
		"sessions": h.sessions.Len(),
	})
}
