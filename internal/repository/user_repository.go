package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"daily-tracker/internal/model"
)

// UserRepository stores the Telegram accounts that own task lists.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert saves the profile keyed by Telegram id and returns the stored user.
// The owner id assigned on first contact is never changed.
func (r *UserRepository) Upsert(ctx context.Context, profile model.TelegramProfile) (*model.User, error) {
	db := r.db.WithContext(ctx)
	user := model.User{
		TelegramID: profile.TelegramID,
		FirstName:  profile.FirstName,
		LastName:   profile.LastName,
		Username:   profile.Username,
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "username", "updated_at"}),
	}).Create(&user).Error
	if err != nil {
		return nil, fmt.Errorf("upsert user %d: %w", profile.TelegramID, err)
	}

	var stored model.User
	if err := db.Where("telegram_id = ?", profile.TelegramID).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("load user %d: %w", profile.TelegramID, err)
	}
	return &stored, nil
}

// List returns every known user, oldest first.
func (r *UserRepository) List(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
