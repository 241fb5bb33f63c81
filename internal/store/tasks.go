package store

import (
	"context"
	"fmt"

	"daily-tracker/internal/feed"
	"daily-tracker/internal/logger"
	"daily-tracker/internal/model"
	"daily-tracker/internal/repository"
)

// Tasks implements TaskStore. Each successful write is followed by the
// matching change event on the feed.
type Tasks struct {
	repo *repository.TaskRepository
	feed feed.Broker[model.ChangeEvent]
}

func NewTasks(repo *repository.TaskRepository, broker feed.Broker[model.ChangeEvent]) *Tasks {
	return &Tasks{repo: repo, feed: broker}
}

func (s *Tasks) Create(ctx context.Context, task model.Task) (model.Task, error) {
	if task.UserID == "" {
		return model.Task{}, ErrOwnerRequired
	}
	if err := s.repo.Create(ctx, &task); err != nil {
		return model.Task{}, err
	}
	s.publish(ctx, task.UserID, model.Inserted(task))
	return task, nil
}

func (s *Tasks) Update(ctx context.Context, userID, id string, patch model.TaskPatch) (model.Task, error) {
	if userID == "" {
		return model.Task{}, ErrOwnerRequired
	}
	if patch.Empty() {
		task, err := s.repo.FindByID(ctx, userID, id)
		if err != nil {
			return model.Task{}, fmt.Errorf("find task: %w", err)
		}
		return *task, nil
	}
	task, err := s.repo.Update(ctx, userID, id, patch)
	if err != nil {
		return model.Task{}, err
	}
	s.publish(ctx, userID, model.Updated(*task))
	return *task, nil
}

func (s *Tasks) Delete(ctx context.Context, userID, id string) error {
	if userID == "" {
		return ErrOwnerRequired
	}
	removed, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return err
	}
	if removed {
		s.publish(ctx, userID, model.Deleted(id))
	}
	return nil
}

func (s *Tasks) Query(ctx context.Context, filter model.TaskFilter) ([]model.Task, error) {
	if filter.UserID == "" {
		return nil, ErrOwnerRequired
	}
	return s.repo.List(ctx, filter)
}

func (s *Tasks) BulkResetRecurring(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrOwnerRequired
	}
	changed, err := s.repo.ResetRecurring(ctx, userID)
	if err != nil {
		return 0, err
	}
	for _, task := range changed {
		s.publish(ctx, userID, model.Updated(task))
	}
	return int64(len(changed)), nil
}

func (s *Tasks) Subscribe(ctx context.Context, userID string) (feed.Subscription[model.ChangeEvent], error) {
	if userID == "" {
		return nil, ErrOwnerRequired
	}
	return s.feed.Subscribe(ctx, userID)
}

// publish never fails the write it follows; a lost notification is repaired by resync.
func (s *Tasks) publish(ctx context.Context, userID string, ev model.ChangeEvent) {
	if err := s.feed.Publish(context.WithoutCancel(ctx), userID, ev); err != nil {
		logger.Warn("publish task change", "user_id", userID, "event", ev.EventType, "task_id", ev.TaskID(), "error", err)
	}
}
