package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"daily-tracker/internal/feed"
	"daily-tracker/internal/model"
)

var errBoom = errors.New("boom")

// fakeStore is an in-memory TaskStore whose calls can be made to fail.
type fakeStore struct {
	mu     sync.Mutex
	tasks  map[string]model.Task
	fail   error
	resets int
	calls  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[string]model.Task)}
}

func (f *fakeStore) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

func (f *fakeStore) Create(_ context.Context, task model.Task) (model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create")
	if f.fail != nil {
		return model.Task{}, f.fail
	}
	f.tasks[task.ID] = task
	return task, nil
}

func (f *fakeStore) Update(_ context.Context, _ string, id string, patch model.TaskPatch) (model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "update")
	if f.fail != nil {
		return model.Task{}, f.fail
	}
	task, ok := f.tasks[id]
	if !ok {
		return model.Task{}, errors.New("not found")
	}
	task = patch.Apply(task)
	f.tasks[id] = task
	return task, nil
}

func (f *fakeStore) Delete(_ context.Context, _ string, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete")
	if f.fail != nil {
		return f.fail
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeStore) Query(_ context.Context, filter model.TaskFilter) ([]model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	var out []model.Task
	for _, t := range f.tasks {
		if t.UserID == filter.UserID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) BulkResetRecurring(_ context.Context, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	if f.fail != nil {
		return 0, f.fail
	}
	var n int64
	for id, t := range f.tasks {
		if t.Recurring && t.Completed {
			t.Completed = false
			f.tasks[id] = t
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) Subscribe(context.Context, string) (feed.Subscription[model.ChangeEvent], error) {
	return nil, errors.New("not supported")
}

// fakeMarkers is an in-memory MarkerStore.
type fakeMarkers struct {
	mu      sync.Mutex
	dates   map[string]model.Date
	failGet error
	failSet error
}

func newFakeMarkers() *fakeMarkers {
	return &fakeMarkers{dates: make(map[string]model.Date)}
}

func (m *fakeMarkers) Get(_ context.Context, userID string) (model.Date, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return "", false, m.failGet
	}
	d, ok := m.dates[userID]
	return d, ok, nil
}

func (m *fakeMarkers) Set(_ context.Context, userID string, date model.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return m.failSet
	}
	m.dates[userID] = date
	return nil
}

func (m *fakeMarkers) get(userID string) model.Date {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dates[userID]
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock {
	return &clock{now: t}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
