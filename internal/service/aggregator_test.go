package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-tracker/internal/model"
)

func record(id string, day model.Date, completed, total int) model.CompletionRecord {
	return model.CompletionRecord{ID: id, UserID: "u1", Date: model.DayStart(day), CompletedCount: completed, TotalCount: total}
}

func insertEvent(rec model.CompletionRecord) model.CompletionEvent {
	return model.CompletionEvent{EventType: model.EventInsert, New: &rec}
}

func updateEvent(rec model.CompletionRecord) model.CompletionEvent {
	return model.CompletionEvent{EventType: model.EventUpdate, New: &rec}
}

func deleteEvent(id string) model.CompletionEvent {
	return model.CompletionEvent{EventType: model.EventDelete, Old: &model.RecordKey{ID: id}}
}

func TestDailyStat_Rate(t *testing.T) {
	assert.Zero(t, DailyStat{}.Rate())
	assert.Zero(t, DailyStat{CompletedCount: 3}.Rate(), "zero total rates 0")
	assert.InDelta(t, 75.0, DailyStat{CompletedCount: 3, TotalCount: 4}.Rate(), 0.001)
	assert.InDelta(t, 100.0, DailyStat{CompletedCount: 2, TotalCount: 2}.Rate(), 0.001)
}

func TestDailyStat_Band(t *testing.T) {
	tests := []struct {
		stat DailyStat
		want Band
	}{
		{DailyStat{}, BandNone},
		{DailyStat{CompletedCount: 0, TotalCount: 5}, BandNone},
		{DailyStat{CompletedCount: 1, TotalCount: 4}, BandLow},
		{DailyStat{CompletedCount: 2, TotalCount: 4}, BandMid},
		{DailyStat{CompletedCount: 3, TotalCount: 4}, BandMid},
		{DailyStat{CompletedCount: 4, TotalCount: 4}, BandFull},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.stat.Band(), "%d/%d", tt.stat.CompletedCount, tt.stat.TotalCount)
	}
	assert.Equal(t, "mid", BandMid.String())
}

func TestLive(t *testing.T) {
	done := model.NewTask("u1", "a", day1)
	done.Completed = true
	open := model.NewTask("u1", "b", day1)

	stat := Live("2024-03-01", []model.Task{done, open})
	assert.Equal(t, DailyStat{Date: "2024-03-01", CompletedCount: 1, TotalCount: 2}, stat)
	assert.Equal(t, DailyStat{Date: "2024-03-01"}, Live("2024-03-01", nil))
}

func TestAggregator_LoadSumsRowsPerDay(t *testing.T) {
	a := NewAggregator()
	a.Load("2024-03-01", "2024-03-31", []model.CompletionRecord{
		record("r1", "2024-03-02", 1, 2),
		record("r2", "2024-03-02", 2, 3),
		record("r3", "2024-03-05", 0, 4),
		record("r4", "2024-04-01", 9, 9),
	})

	stats := a.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, DailyStat{Date: "2024-03-02", CompletedCount: 3, TotalCount: 5}, stats[0])
	assert.Equal(t, DailyStat{Date: "2024-03-05", CompletedCount: 0, TotalCount: 4}, stats[1])
	assert.Equal(t, DailyStat{Date: "2024-03-20"}, a.Stat("2024-03-20"))
}

func TestAggregator_LoadCountsRepeatedRecordOnce(t *testing.T) {
	a := NewAggregator()
	a.Load("2024-03-01", "2024-03-31", []model.CompletionRecord{
		record("r1", "2024-03-02", 1, 2),
		record("r1", "2024-03-02", 2, 2),
		record("r2", "2024-03-02", 1, 1),
	})
	assert.Equal(t, DailyStat{Date: "2024-03-02", CompletedCount: 3, TotalCount: 3}, a.Stat("2024-03-02"))

	assert.True(t, a.Apply(deleteEvent("r1")))
	assert.Equal(t, DailyStat{Date: "2024-03-02", CompletedCount: 1, TotalCount: 1}, a.Stat("2024-03-02"))

	assert.True(t, a.Apply(deleteEvent("r2")))
	assert.Empty(t, a.Stats())
}

func TestAggregator_IncrementalUpdates(t *testing.T) {
	a := NewAggregator()
	a.Load("2024-03-01", "2024-03-31", []model.CompletionRecord{record("r1", "2024-03-02", 1, 2)})

	assert.True(t, a.Apply(insertEvent(record("r2", "2024-03-02", 1, 1))))
	assert.Equal(t, DailyStat{Date: "2024-03-02", CompletedCount: 2, TotalCount: 3}, a.Stat("2024-03-02"))

	assert.True(t, a.Apply(updateEvent(record("r1", "2024-03-02", 2, 2))))
	assert.Equal(t, DailyStat{Date: "2024-03-02", CompletedCount: 3, TotalCount: 3}, a.Stat("2024-03-02"))

	assert.True(t, a.Apply(deleteEvent("r2")))
	assert.Equal(t, DailyStat{Date: "2024-03-02", CompletedCount: 2, TotalCount: 2}, a.Stat("2024-03-02"))

	assert.True(t, a.Apply(deleteEvent("r1")))
	assert.Empty(t, a.Stats())

	assert.False(t, a.Apply(deleteEvent("r1")), "unknown delete changes nothing")
}

func TestAggregator_UpdateMovingRecordBetweenDays(t *testing.T) {
	a := NewAggregator()
	a.Load("2024-03-01", "2024-03-31", []model.CompletionRecord{record("r1", "2024-03-02", 1, 2)})

	assert.True(t, a.Apply(updateEvent(record("r1", "2024-03-03", 1, 2))))
	assert.Equal(t, DailyStat{Date: "2024-03-02"}, a.Stat("2024-03-02"))
	assert.Equal(t, DailyStat{Date: "2024-03-03", CompletedCount: 1, TotalCount: 2}, a.Stat("2024-03-03"))

	assert.True(t, a.Apply(updateEvent(record("r1", "2024-04-03", 1, 2))), "moving out of range retracts")
	assert.Empty(t, a.Stats())
}

func TestAggregator_OutOfRangeIgnored(t *testing.T) {
	a := NewAggregator()
	assert.False(t, a.Apply(insertEvent(record("r0", "2024-03-02", 1, 1))), "nothing displayed yet")

	a.Load("2024-03-01", "2024-03-31", nil)
	assert.False(t, a.Apply(insertEvent(record("r1", "2024-02-29", 1, 1))))
	assert.False(t, a.Apply(insertEvent(record("r2", "2024-04-01", 1, 1))))
	assert.False(t, a.Apply(model.CompletionEvent{EventType: model.EventInsert}))
	assert.Empty(t, a.Stats())

	assert.True(t, a.Apply(insertEvent(record("r3", "2024-03-31", 1, 1))))
	assert.True(t, a.Apply(insertEvent(record("r4", "2024-03-01", 1, 1))))
	assert.Len(t, a.Stats(), 2)
}

func TestAggregator_RecordDayIgnoresLocation(t *testing.T) {
	rec := model.CompletionRecord{ID: "r1", Date: time.Date(2024, 3, 2, 0, 0, 0, 0, time.FixedZone("UTC+3", 3*3600))}
	assert.Equal(t, model.Date("2024-03-02"), rec.Day())
}
