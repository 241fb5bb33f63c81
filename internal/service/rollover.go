package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"daily-tracker/internal/logger"
	"daily-tracker/internal/model"
)

// RolloverState is the per-session state of the daily reset.
type RolloverState int

const (
	StateUninitialized RolloverState = iota
	StateIdle
	StateRollingOver
)

func (s RolloverState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateIdle:
		return "idle"
	case StateRollingOver:
		return "rolling_over"
	default:
		return "unknown"
	}
}

var errRolloverNotStarted = errors.New("rollover not started")

// MarkerStore persists the last day a user's recurring tasks were reset.
type MarkerStore interface {
	Get(ctx context.Context, userID string) (model.Date, bool, error)
	Set(ctx context.Context, userID string, date model.Date) error
}

// Resetter clears completion on all recurring tasks of a user.
type Resetter interface {
	BulkResetRecurring(ctx context.Context, userID string) (int64, error)
}

// DayCloser records the outcome of a day before its tasks are reset.
type DayCloser interface {
	CloseDay(ctx context.Context, userID string, day model.Date) error
}

// RolloverConfig wires a RolloverScheduler. Closer, Now and Location are optional.
type RolloverConfig struct {
	UserID   string
	Markers  MarkerStore
	Resetter Resetter
	Closer   DayCloser
	Now      func() time.Time
	Location *time.Location
}

// RolloverScheduler performs the recurring-task reset once per calendar day.
//
// The marker only advances after a successful reset, so a failed or
// interrupted cycle is retried on the next check: every missed day gets at
// least one reset, possibly more, which the idempotent reset tolerates.
type RolloverScheduler struct {
	userID   string
	markers  MarkerStore
	resetter Resetter
	closer   DayCloser
	now      func() time.Time
	loc      *time.Location
	state    RolloverState
	log      *slog.Logger
}

func NewRolloverScheduler(cfg RolloverConfig) *RolloverScheduler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &RolloverScheduler{
		userID:   cfg.UserID,
		markers:  cfg.Markers,
		resetter: cfg.Resetter,
		closer:   cfg.Closer,
		now:      cfg.Now,
		loc:      cfg.Location,
		state:    StateUninitialized,
		log:      logger.ForUser(cfg.UserID).With("component", "rollover"),
	}
}

func (s *RolloverScheduler) State() RolloverState {
	return s.state
}

// Start moves the scheduler to Idle and runs the first boundary check.
func (s *RolloverScheduler) Start(ctx context.Context) error {
	if s.state == StateUninitialized {
		s.state = StateIdle
	}
	return s.Check(ctx)
}

// Check compares the stored marker with today and resets recurring tasks
// when the calendar day changed.
func (s *RolloverScheduler) Check(ctx context.Context) error {
	if s.state == StateUninitialized {
		return errRolloverNotStarted
	}

	today := model.DateOf(s.now(), s.loc)
	last, ok, err := s.markers.Get(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("read marker: %w", err)
	}

	if !ok {
		// First run for this user counts as already rolled over.
		if err := s.markers.Set(ctx, s.userID, today); err != nil {
			return fmt.Errorf("write marker: %w", err)
		}
		s.state = StateIdle
		s.log.Info("rollover marker initialized", "date", today)
		return nil
	}

	switch {
	case last == today:
		s.state = StateIdle
		return nil
	case today.Before(last):
		s.log.Warn("clock is behind rollover marker, skipping", "marker", last, "today", today)
		s.state = StateIdle
		return nil
	}

	s.state = StateRollingOver
	s.log.Info("day boundary detected", "marker", last, "today", today)

	if s.closer != nil {
		if err := s.closer.CloseDay(ctx, s.userID, last); err != nil {
			return fmt.Errorf("close day %s: %w", last, err)
		}
	}

	n, err := s.resetter.BulkResetRecurring(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("reset recurring tasks: %w", err)
	}

	if err := s.markers.Set(ctx, s.userID, today); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}

	s.state = StateIdle
	s.log.Info("rollover complete", "date", today, "reset", n)
	return nil
}
