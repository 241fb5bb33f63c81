package model

import (
	"time"

	"gorm.io/gorm"
)

// CompletionRecord is a stat-bearing row describing how many tasks were done on a day.
// Readers sum rows that share a date; this store writes one per user and day.
type CompletionRecord struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	UserID         string    `gorm:"index:idx_completion_user_date,unique;size:36;not null" json:"user_id"`
	Date           time.Time `gorm:"index:idx_completion_user_date,unique" json:"date"`
	CompletedCount int       `json:"completed_count"`
	TotalCount     int       `json:"total_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (CompletionRecord) TableName() string {
	return "todo_completions"
}

func (r *CompletionRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	return nil
}

// DayStart returns the value stored in CompletionRecord.Date for d:
// midnight UTC of that calendar day, so rows compare and sort as plain days.
func DayStart(d Date) time.Time {
	return d.Time(time.UTC)
}

// Day returns the calendar day the record describes, read in the record's own offset.
func (r CompletionRecord) Day() Date {
	return Date(r.Date.Format(DateLayout))
}

// RolloverMarker is the durable "last reset" date of one user.
type RolloverMarker struct {
	UserID    string `gorm:"primaryKey;size:36"`
	Date      Date   `gorm:"size:10;not null"`
	UpdatedAt time.Time
}

func (RolloverMarker) TableName() string {
	return "rollover_markers"
}
