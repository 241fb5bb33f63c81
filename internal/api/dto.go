package api

import (
	"time"

	"daily-tracker/internal/model"
	"daily-tracker/internal/service"
)

// TaskDTO is a task as returned to clients.
type TaskDTO struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	Recurring bool      `json:"recurring"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateTaskRequest is the body of POST /tasks.
type CreateTaskRequest struct {
	Title string `json:"title" validate:"required,max=500"`
}

// DayDTO is one calendar cell.
type DayDTO struct {
	Date           model.Date `json:"date"`
	CompletedCount int        `json:"completed_count"`
	TotalCount     int        `json:"total_count"`
	Rate           float64    `json:"rate"`
	Band           string     `json:"band"`
}

// CalendarDTO is a month of completion stats plus today's live progress.
type CalendarDTO struct {
	Year  int      `json:"year"`
	Month int      `json:"month"`
	Days  []DayDTO `json:"days"`
	Today DayDTO   `json:"today"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toTaskDTO(t model.Task) TaskDTO {
	return TaskDTO{
		ID:        t.ID,
		Title:     t.Title,
		Completed: t.Completed,
		Recurring: t.Recurring,
		CreatedAt: t.CreatedAt,
	}
}

func toTaskDTOs(tasks []model.Task) []TaskDTO {
	dtos := make([]TaskDTO, len(tasks))
	for i, t := range tasks {
		dtos[i] = toTaskDTO(t)
	}
	return dtos
}

func toDayDTO(s service.DailyStat) DayDTO {
	return DayDTO{
		Date:           s.Date,
		CompletedCount: s.CompletedCount,
		TotalCount:     s.TotalCount,
		Rate:           s.Rate(),
		Band:           s.Band().String(),
	}
}
