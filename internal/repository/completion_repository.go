package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"daily-tracker/internal/model"
)

// CompletionRepository stores per-day completion records for the calendar.
type CompletionRepository struct {
	db *gorm.DB
}

func NewCompletionRepository(db *gorm.DB) *CompletionRepository {
	return &CompletionRepository{db: db}
}

// Upsert writes the record for (user, day), replacing the counts of an existing one.
// It reports whether a new row was inserted.
func (r *CompletionRepository) Upsert(ctx context.Context, rec *model.CompletionRecord) (bool, error) {
	var existing model.CompletionRecord
	db := r.db.WithContext(ctx)
	err := db.Where("user_id = ? AND date = ?", rec.UserID, rec.Date).First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"completed_count": rec.CompletedCount,
			"total_count":     rec.TotalCount,
		}
		if err := db.Model(&existing).Updates(updates).Error; err != nil {
			return false, fmt.Errorf("update completion record: %w", err)
		}
		existing.CompletedCount = rec.CompletedCount
		existing.TotalCount = rec.TotalCount
		*rec = existing
		return false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := db.Create(rec).Error; err != nil {
			return false, fmt.Errorf("create completion record: %w", err)
		}
		return true, nil
	default:
		return false, fmt.Errorf("find completion record: %w", err)
	}
}

// ListRange returns the user's records with from <= date <= to.
func (r *CompletionRepository) ListRange(ctx context.Context, userID string, from, to time.Time) ([]model.CompletionRecord, error) {
	var records []model.CompletionRecord
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND date >= ? AND date <= ?", userID, from, to).
		Order("date ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list completion records: %w", err)
	}
	return records, nil
}
