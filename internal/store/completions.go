package store

import (
	"context"

	"daily-tracker/internal/feed"
	"daily-tracker/internal/logger"
	"daily-tracker/internal/model"
	"daily-tracker/internal/repository"
)

// Completions implements CompletionStore.
type Completions struct {
	repo *repository.CompletionRepository
	feed feed.Broker[model.CompletionEvent]
}

func NewCompletions(repo *repository.CompletionRepository, broker feed.Broker[model.CompletionEvent]) *Completions {
	return &Completions{repo: repo, feed: broker}
}

// Record upserts the record for (user, day) and announces it as INSERT or UPDATE.
func (s *Completions) Record(ctx context.Context, rec model.CompletionRecord) (model.CompletionRecord, error) {
	if rec.UserID == "" {
		return model.CompletionRecord{}, ErrOwnerRequired
	}
	created, err := s.repo.Upsert(ctx, &rec)
	if err != nil {
		return model.CompletionRecord{}, err
	}
	ev := model.CompletionEvent{EventType: model.EventUpdate, New: &rec}
	if created {
		ev.EventType = model.EventInsert
	}
	if err := s.feed.Publish(context.WithoutCancel(ctx), rec.UserID, ev); err != nil {
		logger.Warn("publish completion change", "user_id", rec.UserID, "record_id", rec.ID, "error", err)
	}
	return rec, nil
}

func (s *Completions) ListRange(ctx context.Context, userID string, from, to model.Date) ([]model.CompletionRecord, error) {
	if userID == "" {
		return nil, ErrOwnerRequired
	}
	return s.repo.ListRange(ctx, userID, model.DayStart(from), model.DayStart(to))
}

func (s *Completions) Subscribe(ctx context.Context, userID string) (feed.Subscription[model.CompletionEvent], error) {
	if userID == "" {
		return nil, ErrOwnerRequired
	}
	return s.feed.Subscribe(ctx, userID)
}
