package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"daily-tracker/internal/feed"
	"daily-tracker/internal/logger"
	"daily-tracker/internal/model"
	"daily-tracker/internal/store"
)

const (
	defaultQueueSize     = 32
	defaultCheckInterval = time.Minute
	maxResubscribeDelay  = 30 * time.Second
)

// SessionDeps are the collaborators shared by every session of a process.
type SessionDeps struct {
	Tasks         store.TaskStore
	Completions   store.CompletionStore
	Markers       MarkerStore
	Scheduler     *SchedulerService
	Location      *time.Location
	Now           func() time.Time
	CheckInterval time.Duration
	QueueSize     int
}

type reaction func(ctx context.Context)

// Session binds one user to a reconciler, a rollover scheduler and a
// calendar aggregator. Local mutations, feed events, rollover ticks and
// resyncs all run as reactions on a single goroutine, one at a time, so the
// collection needs no lock. Readers use the snapshot published after each
// reaction.
type Session struct {
	userID string
	deps   SessionDeps
	log    *slog.Logger

	reconciler  *Reconciler
	rollover    *RolloverScheduler
	calendar    *Aggregator
	completions *CompletionService

	queue    chan reaction
	snapshot atomic.Pointer[[]model.Task]

	// owned by the loop goroutine once started
	taskSub  feed.Subscription[model.ChangeEvent]
	statSub  feed.Subscription[model.CompletionEvent]
	attempts int

	cronIDs []cron.EntryID

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
}

func NewSession(userID string, deps SessionDeps) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.CheckInterval <= 0 {
		deps.CheckInterval = defaultCheckInterval
	}
	if deps.QueueSize <= 0 {
		deps.QueueSize = defaultQueueSize
	}

	s := &Session{
		userID:     userID,
		deps:       deps,
		log:        logger.ForUser(userID).With("component", "session"),
		reconciler: NewReconciler(userID, deps.Tasks, deps.Now),
		calendar:   NewAggregator(),
		queue:      make(chan reaction, deps.QueueSize),
		done:       make(chan struct{}),
	}
	s.completions = NewCompletionService(deps.Completions, deps.Tasks)
	s.rollover = NewRolloverScheduler(RolloverConfig{
		UserID:   userID,
		Markers:  deps.Markers,
		Resetter: deps.Tasks,
		Closer:   s.completions,
		Now:      deps.Now,
		Location: deps.Location,
	})
	empty := []model.Task{}
	s.snapshot.Store(&empty)
	return s
}

func (s *Session) UserID() string {
	return s.userID
}

// Start subscribes to the change feeds, loads the initial collection, runs
// the first rollover check and registers the periodic ones.
func (s *Session) Start(ctx context.Context) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	taskSub, err := s.deps.Tasks.Subscribe(ctx, s.userID)
	if err != nil {
		return &StoreError{Op: "subscribe tasks", Err: err}
	}
	statSub, err := s.deps.Completions.Subscribe(ctx, s.userID)
	if err != nil {
		_ = taskSub.Close()
		return &StoreError{Op: "subscribe completions", Err: err}
	}

	tasks, err := s.deps.Tasks.Query(ctx, model.TaskFilter{UserID: s.userID})
	if err != nil {
		_ = taskSub.Close()
		_ = statSub.Close()
		return &StoreError{Op: "query tasks", Err: err}
	}

	s.taskSub, s.statSub = taskSub, statSub
	s.reconciler.Resync(tasks)
	s.publish()

	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	go s.run()

	s.trySubmit(func(ctx context.Context) {
		if err := s.rollover.Start(ctx); err != nil {
			s.log.Warn("rollover check failed", "error", err)
		}
	})

	if s.deps.Scheduler != nil {
		tick := func() { s.trySubmit(s.checkRollover) }
		id, err := s.deps.Scheduler.ScheduleInterval(s.deps.CheckInterval, tick)
		if err != nil {
			s.Stop()
			return fmt.Errorf("schedule rollover check: %w", err)
		}
		s.cronIDs = append(s.cronIDs, id)
		id, err = s.deps.Scheduler.ScheduleDaily("00:00", tick)
		if err != nil {
			s.Stop()
			return fmt.Errorf("schedule midnight check: %w", err)
		}
		s.cronIDs = append(s.cronIDs, id)
	}

	s.log.Info("session started", "tasks", len(tasks))
	return nil
}

// Stop ends the session: the loop exits after its current reaction, the
// feeds are unsubscribed and the rollover jobs removed. Safe to call more
// than once; must not be called from inside a reaction.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		if s.deps.Scheduler != nil {
			for _, id := range s.cronIDs {
				s.deps.Scheduler.Remove(id)
			}
		}
		if s.cancel != nil {
			s.cancel()
			<-s.done
		} else {
			close(s.done)
		}
		if s.taskSub != nil {
			_ = s.taskSub.Close()
		}
		if s.statSub != nil {
			_ = s.statSub.Close()
		}
		s.log.Info("session stopped")
	})
}

// Done is closed once the session has stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Apply runs one local mutation and waits for its result.
func (s *Session) Apply(ctx context.Context, in Intent) (model.Task, error) {
	return s.mutate(ctx, func(ctx context.Context) (model.Task, error) {
		return s.reconciler.ApplyLocal(ctx, in)
	})
}

func (s *Session) Add(ctx context.Context, title string) (model.Task, error) {
	return s.Apply(ctx, CreateTask(title))
}

func (s *Session) Toggle(ctx context.Context, id string) (model.Task, error) {
	return s.mutate(ctx, func(ctx context.Context) (model.Task, error) {
		return s.reconciler.Toggle(ctx, id)
	})
}

func (s *Session) ToggleRecurring(ctx context.Context, id string) (model.Task, error) {
	return s.mutate(ctx, func(ctx context.Context) (model.Task, error) {
		return s.reconciler.ToggleRecurring(ctx, id)
	})
}

func (s *Session) Delete(ctx context.Context, id string) (model.Task, error) {
	return s.Apply(ctx, DeleteTask(id))
}

// Resync reloads the whole collection from the store.
func (s *Session) Resync(ctx context.Context) error {
	return s.call(ctx, s.resync)
}

// RequestResync queues a resync without waiting for it.
func (s *Session) RequestResync() {
	s.trySubmit(func(ctx context.Context) {
		if err := s.resync(ctx); err != nil {
			s.log.Warn("resync failed", "error", err)
		}
	})
}

// CheckRollover runs a boundary check now and returns its error.
func (s *Session) CheckRollover(ctx context.Context) error {
	return s.call(ctx, s.rollover.Check)
}

// RolloverState returns the state of the rollover scheduler.
func (s *Session) RolloverState(ctx context.Context) (RolloverState, error) {
	var state RolloverState
	err := s.call(ctx, func(context.Context) error {
		state = s.rollover.State()
		return nil
	})
	return state, err
}

// Calendar loads the month into the session's aggregator. Later completion
// events for that month update it incrementally; see Stats.
func (s *Session) Calendar(ctx context.Context, year int, month time.Month) ([]DailyStat, error) {
	var stats []DailyStat
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		stats, err = s.completions.LoadMonth(ctx, s.userID, year, month, s.calendar)
		return err
	})
	return stats, err
}

// Stats returns the currently displayed month as kept up to date by events.
func (s *Session) Stats(ctx context.Context) ([]DailyStat, error) {
	var stats []DailyStat
	err := s.call(ctx, func(context.Context) error {
		stats = s.calendar.Stats()
		return nil
	})
	return stats, err
}

// Tasks returns the latest published collection in creation order.
func (s *Session) Tasks() []model.Task {
	return slices.Clone(*s.snapshot.Load())
}

// Today returns today's live completion stat from the current collection.
func (s *Session) Today() DailyStat {
	return Live(model.DateOf(s.deps.Now(), s.deps.Location), *s.snapshot.Load())
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case fn := <-s.queue:
			fn(context.WithoutCancel(s.ctx))
		case ev, ok := <-s.taskEvents():
			if !ok {
				s.taskSub = nil
				s.log.Warn("task feed dropped")
				s.scheduleResubscribe()
				continue
			}
			s.reconciler.ApplyRemote(ev)
		case ev, ok := <-s.statEvents():
			if !ok {
				s.statSub = nil
				s.log.Warn("completion feed dropped")
				s.scheduleResubscribe()
				continue
			}
			s.calendar.Apply(ev)
		}
		s.publish()
	}
}

func (s *Session) taskEvents() <-chan model.ChangeEvent {
	if s.taskSub == nil {
		return nil
	}
	return s.taskSub.Events()
}

func (s *Session) statEvents() <-chan model.CompletionEvent {
	if s.statSub == nil {
		return nil
	}
	return s.statSub.Events()
}

// scheduleResubscribe retries the lost feeds with exponential backoff. The
// retry itself runs as a reaction so it never races the loop.
func (s *Session) scheduleResubscribe() {
	delay := time.Second << min(s.attempts, 5)
	if delay > maxResubscribeDelay {
		delay = maxResubscribeDelay
	}
	s.attempts++
	time.AfterFunc(delay, func() {
		s.trySubmit(s.resubscribe)
	})
}

func (s *Session) resubscribe(ctx context.Context) {
	if s.taskSub != nil && s.statSub != nil {
		return
	}
	if s.taskSub == nil {
		sub, err := s.deps.Tasks.Subscribe(ctx, s.userID)
		if err != nil {
			s.log.Warn("resubscribe tasks failed", "attempt", s.attempts, "error", err)
			s.scheduleResubscribe()
			return
		}
		s.taskSub = sub
		// Events missed while disconnected are recovered by a full reload.
		if err := s.resync(ctx); err != nil {
			s.log.Warn("resync after resubscribe failed", "error", err)
		}
	}
	if s.statSub == nil {
		sub, err := s.deps.Completions.Subscribe(ctx, s.userID)
		if err != nil {
			s.log.Warn("resubscribe completions failed", "attempt", s.attempts, "error", err)
			s.scheduleResubscribe()
			return
		}
		s.statSub = sub
		if from, to := s.calendar.Range(); !from.IsZero() {
			if records, err := s.deps.Completions.ListRange(ctx, s.userID, from, to); err == nil {
				s.calendar.Load(from, to, records)
			}
		}
	}
	s.attempts = 0
	s.log.Info("feeds resubscribed")
}

func (s *Session) resync(ctx context.Context) error {
	tasks, err := s.deps.Tasks.Query(ctx, model.TaskFilter{UserID: s.userID})
	if err != nil {
		return &StoreError{Op: "query tasks", Err: err}
	}
	s.reconciler.Resync(tasks)
	return nil
}

func (s *Session) checkRollover(ctx context.Context) {
	if err := s.rollover.Check(ctx); err != nil {
		s.log.Warn("rollover check failed", "state", s.rollover.State().String(), "error", err)
	}
}

func (s *Session) publish() {
	tasks := s.reconciler.Tasks()
	s.snapshot.Store(&tasks)
}

func (s *Session) mutate(ctx context.Context, fn func(context.Context) (model.Task, error)) (model.Task, error) {
	var task model.Task
	// The store call uses the caller's context, not the session's.
	err := s.call(ctx, func(context.Context) error {
		var err error
		task, err = fn(ctx)
		return err
	})
	return task, err
}

// call runs fn as a reaction and waits for it. If the caller gives up or the
// session stops first, fn may still run; its result is discarded.
func (s *Session) call(ctx context.Context, fn func(context.Context) error) error {
	reply := make(chan error, 1)
	if err := s.submit(ctx, func(rctx context.Context) {
		err := fn(rctx)
		// callers read the snapshot as soon as they get the reply
		s.publish()
		reply <- err
	}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *Session) submit(ctx context.Context, fn reaction) error {
	if !s.started.Load() {
		return ErrSessionClosed
	}
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.queue <- fn:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// trySubmit queues fn unless the queue is full or the session is gone.
// Periodic work dropped here is picked up by the next tick.
func (s *Session) trySubmit(fn reaction) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.queue <- fn:
		return true
	default:
		s.log.Debug("session queue full, dropping background work")
		return false
	}
}
