package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-tracker/internal/model"
	"daily-tracker/internal/repository"
	"daily-tracker/internal/testutil"
)

func TestCompletionRepository_UpsertByUserAndDay(t *testing.T) {
	repo := repository.NewCompletionRepository(testutil.NewDB(t))
	ctx := context.Background()

	rec := model.CompletionRecord{UserID: "u1", Date: model.DayStart("2024-03-01"), CompletedCount: 1, TotalCount: 4}
	created, err := repo.Upsert(ctx, &rec)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotEmpty(t, rec.ID)
	firstID := rec.ID

	again := model.CompletionRecord{UserID: "u1", Date: model.DayStart("2024-03-01"), CompletedCount: 3, TotalCount: 4}
	created, err = repo.Upsert(ctx, &again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, firstID, again.ID)
	assert.Equal(t, 3, again.CompletedCount)

	records, err := repo.ListRange(ctx, "u1", model.DayStart("2024-03-01"), model.DayStart("2024-03-31"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 3, records[0].CompletedCount)
	assert.Equal(t, model.Date("2024-03-01"), records[0].Day())
}

func TestCompletionRepository_ListRangeBounds(t *testing.T) {
	repo := repository.NewCompletionRepository(testutil.NewDB(t))
	ctx := context.Background()

	for _, day := range []model.Date{"2024-02-29", "2024-03-01", "2024-03-31", "2024-04-01"} {
		rec := model.CompletionRecord{UserID: "u1", Date: model.DayStart(day), CompletedCount: 1, TotalCount: 2}
		_, err := repo.Upsert(ctx, &rec)
		require.NoError(t, err)
	}
	foreign := model.CompletionRecord{UserID: "u2", Date: model.DayStart("2024-03-10"), TotalCount: 1}
	_, err := repo.Upsert(ctx, &foreign)
	require.NoError(t, err)

	records, err := repo.ListRange(ctx, "u1", model.DayStart("2024-03-01"), model.DayStart("2024-03-31"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, model.Date("2024-03-01"), records[0].Day())
	assert.Equal(t, model.Date("2024-03-31"), records[1].Day())
}
