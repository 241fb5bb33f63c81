package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"daily-tracker/internal/logger"
	"daily-tracker/internal/service"
)

var validate = validator.New()

// Sessions opens the per-user session that serves a request.
type Sessions interface {
	Open(ctx context.Context, userID string) (*service.Session, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	sessions Sessions
}

func NewHandler(sessions Sessions) *Handler {
	return &Handler{sessions: sessions}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListTasks returns the user's tasks in creation order.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toTaskDTOs(s.Tasks()))
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	task, err := s.Add(r.Context(), req.Title)
	if err != nil {
		writeServiceError(w, "Failed to create task", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskDTO(task))
}

func (h *Handler) ToggleTask(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	task, err := s.Toggle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "Failed to toggle task", err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskDTO(task))
}

func (h *Handler) ToggleRecurring(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	task, err := s.ToggleRecurring(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "Failed to toggle recurring", err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskDTO(task))
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if _, err := s.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, "Failed to delete task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetCalendar returns the month's completion stats. Without year and month
// the current month is used.
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	today := s.Today()
	now := today.Date.Time(time.UTC)
	year, month := now.Year(), now.Month()
	if raw := r.URL.Query().Get("year"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = v
	}
	if raw := r.URL.Query().Get("month"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 12 {
			writeError(w, http.StatusBadRequest, "Invalid month", err)
			return
		}
		month = time.Month(v)
	}

	stats, err := s.Calendar(r.Context(), year, month)
	if err != nil {
		writeServiceError(w, "Failed to load calendar", err)
		return
	}

	days := make([]DayDTO, len(stats))
	for i, st := range stats {
		days[i] = toDayDTO(st)
	}
	writeJSON(w, http.StatusOK, CalendarDTO{
		Year:  year,
		Month: int(month),
		Days:  days,
		Today: toDayDTO(today),
	})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*service.Session, bool) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if _, err := uuid.Parse(userID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id", err)
		return nil, false
	}
	s, err := h.sessions.Open(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "Failed to open session", err)
		return nil, false
	}
	return s, true
}

func writeServiceError(w http.ResponseWriter, message string, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr) && verr.Field == "id":
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, service.ErrStore):
		logger.Warn("store call failed", "error", err)
		writeError(w, http.StatusBadGateway, message, err)
	case errors.Is(err, service.ErrSessionClosed):
		writeError(w, http.StatusServiceUnavailable, message, err)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, message, err)
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
