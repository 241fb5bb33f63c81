package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"daily-tracker/internal/model"
)

// MarkerRepository keeps rollover markers in the client-local database.
type MarkerRepository struct {
	db *gorm.DB
}

func NewMarkerRepository(db *gorm.DB) *MarkerRepository {
	return &MarkerRepository{db: db}
}

// Get returns the stored date; ok is false when the user has no marker yet.
func (r *MarkerRepository) Get(ctx context.Context, userID string) (model.Date, bool, error) {
	var marker model.RolloverMarker
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&marker).Error
	switch {
	case err == nil:
		return marker.Date, true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "", false, nil
	default:
		return "", false, fmt.Errorf("find marker: %w", err)
	}
}

func (r *MarkerRepository) Set(ctx context.Context, userID string, date model.Date) error {
	marker := model.RolloverMarker{UserID: userID, Date: date}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"date", "updated_at"}),
	}).Create(&marker).Error
	if err != nil {
		return fmt.Errorf("save marker: %w", err)
	}
	return nil
}
