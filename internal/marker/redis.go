// Package marker keeps the per-user "last rollover" date in Redis, as an
// alternative to the local SQLite marker table when several processes on
// one machine should share it.
package marker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"daily-tracker/internal/logger"
	"daily-tracker/internal/model"
)

// KeyPrefix namespaces marker keys per user.
const KeyPrefix = "lastReset_"

// Key returns the storage key of userID's marker.
func Key(userID string) string {
	return KeyPrefix + userID
}

// Redis stores markers as plain ISO date strings without expiry.
type Redis struct {
	rdb *redis.Client
}

// NewRedis connects to url (redis://host:port/db) and checks the connection.
func NewRedis(url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	logger.Info("redis connected", "url", opt.Addr)
	return &Redis{rdb: rdb}, nil
}

func (r *Redis) Get(ctx context.Context, userID string) (model.Date, bool, error) {
	raw, err := r.rdb.Get(ctx, Key(userID)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("get marker: %w", err)
	}
	date, err := model.ParseDate(raw)
	if err != nil {
		return "", false, err
	}
	return date, true, nil
}

func (r *Redis) Set(ctx context.Context, userID string, date model.Date) error {
	if err := r.rdb.Set(ctx, Key(userID), date.String(), 0).Err(); err != nil {
		return fmt.Errorf("set marker: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
