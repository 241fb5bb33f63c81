package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"daily-tracker/internal/model"
)

// TaskRepository handles CRUD for tasks. Every statement is scoped by user_id.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// List returns the user's tasks in creation order.
func (r *TaskRepository) List(ctx context.Context, filter model.TaskFilter) ([]model.Task, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", filter.UserID)
	if filter.Completed != nil {
		q = q.Where("completed = ?", *filter.Completed)
	}
	if filter.Recurring != nil {
		q = q.Where("recurring = ?", *filter.Recurring)
	}
	var tasks []model.Task
	if err := q.Order("created_at ASC, id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) FindByID(ctx context.Context, userID, taskID string) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// Update applies a partial update and returns the stored post-image.
// A missing row yields gorm.ErrRecordNotFound.
func (r *TaskRepository) Update(ctx context.Context, userID, taskID string, patch model.TaskPatch) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Task{}).Where("user_id = ? AND id = ?", userID, taskID).Updates(patch.Columns())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("user_id = ? AND id = ?", userID, taskID).First(&task).Error
	})
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return &task, nil
}

// Delete removes a task for the given user. Deleting a missing task is not an error;
// the returned flag tells whether a row was removed.
func (r *TaskRepository) Delete(ctx context.Context, userID, taskID string) (bool, error) {
	res := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).Delete(&model.Task{})
	if res.Error != nil {
		return false, fmt.Errorf("delete task: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ResetRecurring clears the completion flag on the user's recurring tasks and
// returns the post-images of the rows it changed. Rows that are already
// incomplete are left untouched, so running it twice is harmless.
func (r *TaskRepository) ResetRecurring(ctx context.Context, userID string) ([]model.Task, error) {
	var changed []model.Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&model.Task{}).
			Where("user_id = ? AND recurring = ? AND completed = ?", userID, true, true).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Model(&model.Task{}).
			Where("user_id = ? AND recurring = ? AND id IN ?", userID, true, ids).
			Update("completed", false).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ? AND id IN ?", userID, ids).Order("created_at ASC, id ASC").Find(&changed).Error
	})
	if err != nil {
		return nil, fmt.Errorf("reset recurring tasks: %w", err)
	}
	return changed, nil
}
