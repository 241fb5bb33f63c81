package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-tracker/internal/feed"
	"daily-tracker/internal/model"
	"daily-tracker/internal/repository"
	"daily-tracker/internal/store"
	"daily-tracker/internal/testutil"
)

type harness struct {
	deps    SessionDeps
	clock   *clock
	markers *repository.MarkerRepository
	records *repository.CompletionRepository
	taskHub *feed.Hub[model.ChangeEvent]
	statHub *feed.Hub[model.CompletionEvent]
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithBuffer(t, 64)
}

// newHarnessWithBuffer sizes the feed buffers; small buffers make the hub
// drop subscribers that fall behind.
func newHarnessWithBuffer(t *testing.T, buffer int) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	taskHub := feed.NewHub[model.ChangeEvent](buffer)
	statHub := feed.NewHub[model.CompletionEvent](buffer)
	t.Cleanup(func() {
		_ = taskHub.Close()
		_ = statHub.Close()
	})

	c := newClock(day1)
	markers := repository.NewMarkerRepository(testutil.NewLocalDB(t))
	records := repository.NewCompletionRepository(db)
	return &harness{
		clock:   c,
		markers: markers,
		records: records,
		taskHub: taskHub,
		statHub: statHub,
		deps: SessionDeps{
			Tasks:       store.NewTasks(repository.NewTaskRepository(db), taskHub),
			Completions: store.NewCompletions(records, statHub),
			Markers:     markers,
			Location:    time.UTC,
			Now:         c.Now,
		},
	}
}

func (h *harness) start(t *testing.T, userID string) *Session {
	t.Helper()
	s := NewSession(userID, h.deps)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)
	return s
}

func TestSession_StartInitializesMarker(t *testing.T) {
	h := newHarness(t)
	s := h.start(t, "u1")
	ctx := context.Background()

	state, err := s.RolloverState(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, state)

	date, ok, err := h.markers.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.Date("2024-03-01"), date)
	assert.Empty(t, s.Tasks())
}

func TestSession_AddEchoesOnce(t *testing.T) {
	h := newHarness(t)
	s := h.start(t, "u1")
	ctx := context.Background()

	task, err := s.Add(ctx, "Buy milk")
	require.NoError(t, err)
	require.Len(t, s.Tasks(), 1)

	// the echo is applied on a later reaction; a resync is queued behind it
	require.NoError(t, s.Resync(ctx))
	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, task.ID, tasks[0].ID)
	assert.False(t, tasks[0].Completed)
	assert.True(t, tasks[0].Recurring)
}

func TestSession_SeesChangesFromAnotherSession(t *testing.T) {
	h := newHarness(t)
	a := h.start(t, "u1")
	b := h.start(t, "u1")
	other := h.start(t, "u2")
	ctx := context.Background()

	task, err := b.Add(ctx, "water plants")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(a.Tasks()) == 1 }, time.Second, 10*time.Millisecond)

	_, err = b.Toggle(ctx, task.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		tasks := a.Tasks()
		return len(tasks) == 1 && tasks[0].Completed
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, a.Today().CompletedCount)

	_, err = b.Delete(ctx, task.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(a.Tasks()) == 0 }, time.Second, 10*time.Millisecond)

	assert.Empty(t, other.Tasks())
}

func TestSession_RolloverEndToEnd(t *testing.T) {
	h := newHarness(t)
	s := h.start(t, "u1")
	ctx := context.Background()

	daily, err := s.Add(ctx, "meditate")
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	oneOff, err := s.Add(ctx, "call bank")
	require.NoError(t, err)
	_, err = s.Apply(ctx, SetRecurring(oneOff.ID, false))
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	_, err = s.Add(ctx, "read")
	require.NoError(t, err)

	_, err = s.Toggle(ctx, daily.ID)
	require.NoError(t, err)
	_, err = s.Toggle(ctx, oneOff.ID)
	require.NoError(t, err)

	stats, err := s.Calendar(ctx, 2024, time.March)
	require.NoError(t, err)
	assert.Empty(t, stats)

	h.clock.Set(time.Date(2024, 3, 2, 0, 0, 5, 0, time.UTC))
	require.NoError(t, s.CheckRollover(ctx))

	date, _, err := h.markers.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.Date("2024-03-02"), date)

	require.Eventually(t, func() bool {
		for _, task := range s.Tasks() {
			if task.ID == daily.ID {
				return !task.Completed
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	for _, task := range s.Tasks() {
		if task.ID == oneOff.ID {
			assert.True(t, task.Completed, "one-off tasks are not reset")
		}
	}

	// the closed day arrives through the completion feed
	require.Eventually(t, func() bool {
		stats, err := s.Stats(ctx)
		return err == nil && len(stats) == 1
	}, time.Second, 10*time.Millisecond)
	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, DailyStat{Date: "2024-03-01", CompletedCount: 2, TotalCount: 3}, stats[0])

	require.NoError(t, s.CheckRollover(ctx))
	records, err := h.records.ListRange(ctx, "u1", model.DayStart("2024-03-01"), model.DayStart("2024-03-31"))
	require.NoError(t, err)
	assert.Len(t, records, 1, "same day closes only once")
}

func TestSession_RecoversDroppedTaskFeed(t *testing.T) {
	h := newHarnessWithBuffer(t, 1)
	ctx := context.Background()

	for _, title := range []string{"meditate", "stretch", "read", "journal"} {
		task := model.NewTask("u1", title, h.clock.Now())
		task.Completed = true
		_, err := h.deps.Tasks.Create(ctx, task)
		require.NoError(t, err)
		h.clock.Advance(time.Second)
	}
	require.NoError(t, h.markers.Set(ctx, "u1", "2024-02-29"))

	// the reset publishes one update per task while the session is busy
	// running the rollover, which overflows the feed
	s := h.start(t, "u1")

	require.Eventually(t, func() bool {
		tasks := s.Tasks()
		if len(tasks) != 4 {
			return false
		}
		for _, task := range tasks {
			if task.Completed {
				return false
			}
		}
		return h.taskHub.Subscribers("u1") == 1
	}, 5*time.Second, 20*time.Millisecond)

	date, _, err := h.markers.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.Date("2024-03-01"), date)
}

func TestSession_RecoversDroppedCompletionFeed(t *testing.T) {
	h := newHarnessWithBuffer(t, 1)
	s := h.start(t, "u1")
	ctx := context.Background()

	stats, err := s.Calendar(ctx, 2024, time.March)
	require.NoError(t, err)
	assert.Empty(t, stats)

	// two records written while the loop is busy overflow the feed
	require.NoError(t, s.call(ctx, func(ctx context.Context) error {
		for i, day := range []model.Date{"2024-03-02", "2024-03-03"} {
			_, err := h.deps.Completions.Record(ctx, model.CompletionRecord{
				UserID:         "u1",
				Date:           model.DayStart(day),
				CompletedCount: i + 1,
				TotalCount:     3,
			})
			if err != nil {
				return err
			}
		}
		return nil
	}))

	require.Eventually(t, func() bool {
		stats, err := s.Stats(ctx)
		return err == nil && len(stats) == 2 && h.statHub.Subscribers("u1") == 1
	}, 5*time.Second, 20*time.Millisecond)

	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []DailyStat{
		{Date: "2024-03-02", CompletedCount: 1, TotalCount: 3},
		{Date: "2024-03-03", CompletedCount: 2, TotalCount: 3},
	}, stats)
}

func TestSession_ValidationAndUnknownIDs(t *testing.T) {
	h := newHarness(t)
	s := h.start(t, "u1")
	ctx := context.Background()

	_, err := s.Add(ctx, "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = s.Toggle(ctx, "missing")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = s.Delete(ctx, "missing")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSession_StopIsIdempotent(t *testing.T) {
	h := newHarness(t)
	s := NewSession("u1", h.deps)
	ctx := context.Background()

	_, err := s.Add(ctx, "before start")
	assert.ErrorIs(t, err, ErrSessionClosed)

	require.NoError(t, s.Start(ctx))
	s.Stop()
	s.Stop()

	select {
	case <-s.Done():
	default:
		t.Fatal("session not done after Stop")
	}
	_, err = s.Add(ctx, "after stop")
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, s.Start(ctx), ErrSessionClosed)
}

func TestSession_RegistersAndRemovesRolloverJobs(t *testing.T) {
	h := newHarness(t)
	h.deps.Scheduler = NewSchedulerService(time.UTC)
	s := NewSession("u1", h.deps)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 2, h.deps.Scheduler.Entries())

	s.Stop()
	assert.Equal(t, 0, h.deps.Scheduler.Entries())
}

func TestSessionManager(t *testing.T) {
	h := newHarness(t)
	m := NewSessionManager(h.deps)
	t.Cleanup(m.CloseAll)
	ctx := context.Background()

	_, err := m.Open(ctx, "")
	assert.ErrorIs(t, err, ErrValidation)

	a, err := m.Open(ctx, "u1")
	require.NoError(t, err)
	again, err := m.Open(ctx, "u1")
	require.NoError(t, err)
	assert.Same(t, a, again)

	_, err = m.Open(ctx, "u2")
	require.NoError(t, err)

	count := 0
	m.Each(func(*Session) { count++ })
	assert.Equal(t, 2, count)

	m.ResyncAll()

	m.Close("u1")
	_, ok := m.Get("u1")
	assert.False(t, ok)
	<-a.Done()

	m.CloseAll()
	_, ok = m.Get("u2")
	assert.False(t, ok)
}
