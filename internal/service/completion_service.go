package service

import (
	"context"
	"fmt"
	"time"

	"daily-tracker/internal/model"
	"daily-tracker/internal/store"
)

// CompletionService reads and writes the per-day completion records.
type CompletionService struct {
	records store.CompletionStore
	tasks   store.TaskStore
}

func NewCompletionService(records store.CompletionStore, tasks store.TaskStore) *CompletionService {
	return &CompletionService{records: records, tasks: tasks}
}

// LoadMonth fetches the month's records into agg and returns the folded stats.
func (s *CompletionService) LoadMonth(ctx context.Context, userID string, year int, month time.Month, agg *Aggregator) ([]DailyStat, error) {
	from, to := model.MonthRange(year, month)
	records, err := s.records.ListRange(ctx, userID, from, to)
	if err != nil {
		return nil, &StoreError{Op: "list completions", Err: err}
	}
	agg.Load(from, to, records)
	return agg.Stats(), nil
}

// CloseDay stores how many of the user's tasks were completed on day.
// Writing the same day again overwrites its counts.
func (s *CompletionService) CloseDay(ctx context.Context, userID string, day model.Date) error {
	tasks, err := s.tasks.Query(ctx, model.TaskFilter{UserID: userID})
	if err != nil {
		return fmt.Errorf("query tasks: %w", err)
	}
	stat := Live(day, tasks)
	_, err = s.records.Record(ctx, model.CompletionRecord{
		UserID:         userID,
		Date:           model.DayStart(day),
		CompletedCount: stat.CompletedCount,
		TotalCount:     stat.TotalCount,
	})
	if err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	return nil
}
