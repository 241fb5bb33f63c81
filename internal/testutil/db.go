// Package testutil holds helpers shared by package tests.
package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"daily-tracker/internal/repository"
)

// NewDB opens a private in-memory task database for one test.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	return open(t, repository.NewDB)
}

// NewLocalDB opens a private in-memory marker database for one test.
func NewLocalDB(t testing.TB) *gorm.DB {
	t.Helper()
	return open(t, repository.NewLocalDB)
}

func open(t testing.TB, openFn func(string) (*gorm.DB, error)) *gorm.DB {
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := openFn(dsn)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the shared in-memory database alive and serialized
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}
