package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"tripflow/internal/config"
	"tripflow/internal/models"
	"tripflow/internal/ratelimit"
	"tripflow/internal/store"
	"tripflow/internal/telemetry"
)

// Shown to users on accepted requests. A static product string, not derived
// from queue depth.
const estimatedCompletion = "2-3 minutes"

const maxTripDays = 7

type itineraryStore interface {
	CreatePending(ctx context.Context, p store.CreatePendingParams) (models.Itinerary, error)
	Get(ctx context.Context, id string) (models.Itinerary, error)
	SetFailed(ctx context.Context, id, lastError string) error
}

type enqueuer interface {
	Enqueue(ctx context.Context, itineraryID string) error
}

type limiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Result, error)
	Limit() int
}

// Server wires HTTP handlers for the itinerary producer API.
type Server struct {
	cfg     config.Config
	store   itineraryStore
	queue   enqueuer
	limiter limiter
	logger  *zap.Logger
}

// New constructs the API server.
func New(cfg config.Config, st itineraryStore, q enqueuer, limiter limiter, logger *zap.Logger) *Server {
	return &Server{
		cfg:     cfg,
		store:   st,
		queue:   q,
		limiter: limiter,
		logger:  logger,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/itineraries", s.handleCreate)
	r.Get("/itineraries/{id}", s.handleGet)
	return r
}

type createRequest struct {
	Destination string   `json:"destination"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	Budget      string   `json:"budget"`
	Interests   []string `json:"interests"`
}

type createResponse struct {
	Itinerary           models.Itinerary `json:"itinerary"`
	EstimatedCompletion string           `json:"estimated_completion"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	start, end, errMsg := validateRequest(req)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	userID := userFromRequest(r)
	res, err := s.limiter.Allow(r.Context(), ratelimit.Key("itinerary", userID))
	if err != nil {
		// Fail closed: an unreachable limiter store rejects admission.
		s.logger.Error("rate limiter unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "rate limiter unavailable")
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.limiter.Limit()))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
	if !res.Allowed {
		telemetry.RateLimitRejects.Inc()
		limErr := &ratelimit.LimitError{Key: userID, Limit: s.limiter.Limit(), ResetAt: res.ResetAt}
		writeError(w, http.StatusTooManyRequests, limErr.Error())
		return
	}

	it, err := s.store.CreatePending(r.Context(), store.CreatePendingParams{
		UserID:      userID,
		Destination: req.Destination,
		StartDate:   start,
		EndDate:     end,
		Budget:      req.Budget,
		Interests:   req.Interests,
	})
	if err != nil {
		s.logger.Error("create itinerary failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create itinerary")
		return
	}

	if err := s.queue.Enqueue(r.Context(), it.ID); err != nil {
		s.logger.Error("enqueue failed", zap.String("itinerary_id", it.ID), zap.Error(err))
		_ = s.store.SetFailed(r.Context(), it.ID, fmt.Sprintf("enqueue: %s", err))
		writeError(w, http.StatusInternalServerError, "could not enqueue itinerary")
		return
	}
	telemetry.EnqueueCounter.Inc()
	s.logger.Info("itinerary accepted",
		zap.String("itinerary_id", it.ID),
		zap.String("destination", it.Destination),
		zap.String("user_id", userID))

	writeJSON(w, http.StatusAccepted, createResponse{
		Itinerary:           it,
		EstimatedCompletion: estimatedCompletion,
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	it, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "itinerary not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// validateRequest enforces the request policy: dates parse, the trip spans
// 1..7 inclusive days, and the trip does not start in the past.
func validateRequest(req createRequest) (start, end time.Time, errMsg string) {
	if req.Destination == "" {
		return start, end, "destination is required"
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return start, end, "start_date must be YYYY-MM-DD"
	}
	end, err = time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		return start, end, "end_date must be YYYY-MM-DD"
	}

	days := models.InclusiveDays(start, end)
	if days <= 0 {
		return start, end, "end_date must not be before start_date"
	}
	if days > maxTripDays {
		return start, end, fmt.Sprintf("trips are limited to %d days", maxTripDays)
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if start.Before(today) {
		return start, end, "start_date must not be in the past"
	}
	return start, end, ""
}

func userFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-User-ID"); v != "" {
		return v
	}
	return "anonymous"
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
