package service

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDailySpec(t *testing.T) {
	cases := map[string]string{
		"00:00":    "0 0 0 * * *",
		"21:05":    "0 5 21 * * *",
		"7:30":     "0 30 7 * * *",
		"23:59:30": "30 59 23 * * *",
	}
	for clock, want := range cases {
		spec, err := buildDailySpec(clock)
		require.NoError(t, err, clock)
		assert.Equal(t, want, spec, clock)
	}

	for _, bad := range []string{"", "24:00", "12:60", "noon", "1:2:3", "12:00:61"} {
		_, err := buildDailySpec(bad)
		assert.Error(t, err, bad)
	}
}

func TestEveryRoundsToSeconds(t *testing.T) {
	assert.Equal(t, time.Second, every(10*time.Millisecond))
	assert.Equal(t, 2*time.Second, every(1600*time.Millisecond))
	assert.Equal(t, time.Minute, every(time.Minute))
}

func TestSchedulerService_Entries(t *testing.T) {
	s := NewSchedulerService(nil)

	id, err := s.ScheduleInterval(time.Minute, func() {})
	require.NoError(t, err)
	_, err = s.ScheduleDaily("08:30", func() {})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Entries())

	s.Remove(id)
	assert.Equal(t, 1, s.Entries())
	s.Remove(id)
	assert.Equal(t, 1, s.Entries())

	_, err = s.ScheduleInterval(0, func() {})
	assert.Error(t, err)
	_, err = s.ScheduleDaily("25:00", func() {})
	assert.Error(t, err)
}

func TestSchedulerService_DailyNextRun(t *testing.T) {
	s := NewSchedulerService(time.UTC)
	id, err := s.ScheduleDaily("00:00", func() {})
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	next := s.Next(id)
	require.False(t, next.IsZero())
	assert.Equal(t, 0, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.True(t, next.After(time.Now()))
}

func TestSchedulerService_SurvivesPanickingJob(t *testing.T) {
	s := NewSchedulerService(time.UTC)
	var runs atomic.Int32
	fired := make(chan struct{}, 1)
	_, err := s.ScheduleInterval(time.Second, func() {
		if runs.Add(1) == 1 {
			panic(errors.New("boom"))
		}
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run again after a panic")
	}
}
