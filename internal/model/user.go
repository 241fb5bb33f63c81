package model

import (
	"time"

	"gorm.io/gorm"
)

// User links a Telegram account to the owner id its tasks are stored under.
type User struct {
	ID         string `gorm:"primaryKey;size:36"`
	TelegramID int64  `gorm:"uniqueIndex"`
	FirstName  string
	LastName   string
	Username   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = NewID()
	}
	return nil
}

// DisplayName is the name used to greet the user.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return "@" + u.Username
	default:
		return ""
	}
}

// TelegramProfile is the account data a Telegram update carries.
type TelegramProfile struct {
	TelegramID int64
	FirstName  string
	LastName   string
	Username   string
}
