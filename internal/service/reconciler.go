package service

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"daily-tracker/internal/logger"
	"daily-tracker/internal/model"
	"daily-tracker/internal/store"
)

// IntentKind names the local mutations a user can make.
type IntentKind int

const (
	IntentCreate IntentKind = iota
	IntentSetCompleted
	IntentSetRecurring
	IntentDelete
)

func (k IntentKind) String() string {
	switch k {
	case IntentCreate:
		return "create"
	case IntentSetCompleted:
		return "set_completed"
	case IntentSetRecurring:
		return "set_recurring"
	case IntentDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Intent is one user-initiated mutation.
type Intent struct {
	Kind   IntentKind
	TaskID string
	Title  string
	Value  bool
}

func CreateTask(title string) Intent {
	return Intent{Kind: IntentCreate, Title: title}
}

func SetCompleted(id string, completed bool) Intent {
	return Intent{Kind: IntentSetCompleted, TaskID: id, Value: completed}
}

func SetRecurring(id string, recurring bool) Intent {
	return Intent{Kind: IntentSetRecurring, TaskID: id, Value: recurring}
}

func DeleteTask(id string) Intent {
	return Intent{Kind: IntentDelete, TaskID: id}
}

type entry struct {
	task model.Task
	// pending marks an optimistic value the store has not confirmed yet.
	pending bool
}

// Reconciler owns one user's in-memory task collection. It is not safe for
// concurrent use; a Session serializes every call onto one goroutine.
//
// Local mutations are applied optimistically, then replaced by the store's
// confirmed record, or rolled back if the store fails. Remote events replace
// whole records and always win over local state for the same id.
type Reconciler struct {
	userID  string
	store   store.TaskStore
	now     func() time.Time
	log     *slog.Logger
	entries []entry
}

func NewReconciler(userID string, st store.TaskStore, now func() time.Time) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		userID: userID,
		store:  st,
		now:    now,
		log:    logger.ForUser(userID),
	}
}

// ApplyLocal performs one mutation against the store and reflects it locally.
// Failures leave the collection exactly as it was before the call.
func (r *Reconciler) ApplyLocal(ctx context.Context, in Intent) (model.Task, error) {
	switch in.Kind {
	case IntentCreate:
		return r.create(ctx, in.Title)
	case IntentSetCompleted:
		return r.update(ctx, in.TaskID, in.Kind, model.TaskPatch{Completed: model.Bool(in.Value)})
	case IntentSetRecurring:
		return r.update(ctx, in.TaskID, in.Kind, model.TaskPatch{Recurring: model.Bool(in.Value)})
	case IntentDelete:
		return r.delete(ctx, in.TaskID)
	default:
		return model.Task{}, &ValidationError{Field: "intent", Reason: "unknown mutation"}
	}
}

// Toggle flips the completion flag of a known task.
func (r *Reconciler) Toggle(ctx context.Context, id string) (model.Task, error) {
	task, ok := r.Get(id)
	if !ok {
		return model.Task{}, &ValidationError{Field: "id", Reason: "unknown task " + id}
	}
	return r.ApplyLocal(ctx, SetCompleted(id, !task.Completed))
}

// ToggleRecurring flips the recurring flag of a known task.
func (r *Reconciler) ToggleRecurring(ctx context.Context, id string) (model.Task, error) {
	task, ok := r.Get(id)
	if !ok {
		return model.Task{}, &ValidationError{Field: "id", Reason: "unknown task " + id}
	}
	return r.ApplyLocal(ctx, SetRecurring(id, !task.Recurring))
}

func (r *Reconciler) create(ctx context.Context, title string) (model.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.Task{}, &ValidationError{Field: "title", Reason: "must not be empty"}
	}

	task := model.NewTask(r.userID, title, r.now())
	r.upsert(task, true)

	confirmed, err := r.store.Create(ctx, task)
	if err != nil {
		if i := r.indexOf(task.ID); i >= 0 {
			r.removeAt(i)
		}
		r.log.Warn("create task rejected", "task_id", task.ID, "error", err)
		return model.Task{}, &StoreError{Op: "create", Err: err}
	}

	r.upsert(confirmed, false)
	r.log.Info("task created", "task_id", confirmed.ID, "recurring", confirmed.Recurring)
	return confirmed, nil
}

func (r *Reconciler) update(ctx context.Context, id string, kind IntentKind, patch model.TaskPatch) (model.Task, error) {
	i := r.indexOf(id)
	if i < 0 {
		return model.Task{}, &ValidationError{Field: "id", Reason: "unknown task " + id}
	}

	prev := r.entries[i]
	r.entries[i] = entry{task: patch.Apply(prev.task), pending: true}

	confirmed, err := r.store.Update(ctx, r.userID, id, patch)
	if err != nil {
		r.restore(prev, i)
		r.log.Warn("update task rejected", "task_id", id, "op", kind.String(), "error", err)
		return model.Task{}, &StoreError{Op: kind.String(), Err: err}
	}

	r.upsert(confirmed, false)
	r.log.Info("task updated", "task_id", id, "op", kind.String(), "completed", confirmed.Completed, "recurring", confirmed.Recurring)
	return confirmed, nil
}

func (r *Reconciler) delete(ctx context.Context, id string) (model.Task, error) {
	i := r.indexOf(id)
	if i < 0 {
		return model.Task{}, &ValidationError{Field: "id", Reason: "unknown task " + id}
	}

	prev := r.entries[i]
	r.removeAt(i)

	if err := r.store.Delete(ctx, r.userID, id); err != nil {
		r.restore(prev, i)
		r.log.Warn("delete task rejected", "task_id", id, "error", err)
		return model.Task{}, &StoreError{Op: "delete", Err: err}
	}

	r.log.Info("task deleted", "task_id", id)
	return prev.task, nil
}

// ApplyRemote merges one change-feed event. Unknown ids on update become
// inserts and deletes of absent ids are no-ops, so duplicate or missed
// deliveries heal themselves.
func (r *Reconciler) ApplyRemote(ev model.ChangeEvent) {
	switch ev.EventType {
	case model.EventInsert, model.EventUpdate:
		if ev.New == nil || ev.New.ID == "" {
			r.log.Debug("ignore event without post-image", "event", ev.EventType)
			return
		}
		if ev.New.UserID != r.userID {
			r.log.Debug("ignore event for another owner", "task_id", ev.New.ID)
			return
		}
		if ev.EventType == model.EventUpdate && r.indexOf(ev.New.ID) < 0 {
			r.log.Debug("update for unknown task, inserting", "task_id", ev.New.ID)
		}
		r.upsert(*ev.New, false)
	case model.EventDelete:
		id := ev.TaskID()
		i := r.indexOf(id)
		if i < 0 {
			r.log.Debug("delete for absent task ignored", "task_id", id)
			return
		}
		r.removeAt(i)
	default:
		r.log.Debug("ignore unknown event type", "event", ev.EventType)
	}
}

// Resync replaces the whole collection with an authoritative snapshot.
func (r *Reconciler) Resync(snapshot []model.Task) {
	byID := make(map[string]int, len(snapshot))
	entries := make([]entry, 0, len(snapshot))
	for _, task := range snapshot {
		if task.ID == "" || task.UserID != r.userID {
			continue
		}
		if j, ok := byID[task.ID]; ok {
			entries[j] = entry{task: task}
			continue
		}
		byID[task.ID] = len(entries)
		entries = append(entries, entry{task: task})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return createdBefore(entries[i].task, entries[j].task)
	})
	r.entries = entries
	r.log.Debug("collection resynced", "tasks", len(entries))
}

// Tasks returns a copy of the collection in creation order.
func (r *Reconciler) Tasks() []model.Task {
	tasks := make([]model.Task, len(r.entries))
	for i, e := range r.entries {
		tasks[i] = e.task
	}
	return tasks
}

func (r *Reconciler) Get(id string) (model.Task, bool) {
	i := r.indexOf(id)
	if i < 0 {
		return model.Task{}, false
	}
	return r.entries[i].task, true
}

// Pending reports whether the entry for id holds an unconfirmed optimistic value.
func (r *Reconciler) Pending(id string) bool {
	i := r.indexOf(id)
	return i >= 0 && r.entries[i].pending
}

func (r *Reconciler) Len() int {
	return len(r.entries)
}

func (r *Reconciler) indexOf(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(r.entries, func(e entry) bool { return e.task.ID == id })
}

// upsert replaces an existing entry in place or inserts a new one at its
// creation-order position.
func (r *Reconciler) upsert(task model.Task, pending bool) {
	if i := r.indexOf(task.ID); i >= 0 {
		r.entries[i] = entry{task: task, pending: pending}
		return
	}
	i := sort.Search(len(r.entries), func(i int) bool {
		return createdBefore(task, r.entries[i].task)
	})
	r.insertAt(i, entry{task: task, pending: pending})
}

// restore puts prev back, at index i when its id is gone.
func (r *Reconciler) restore(prev entry, i int) {
	if j := r.indexOf(prev.task.ID); j >= 0 {
		r.entries[j] = prev
		return
	}
	if i > len(r.entries) {
		i = len(r.entries)
	}
	r.insertAt(i, prev)
}

func (r *Reconciler) insertAt(i int, e entry) {
	r.entries = slices.Insert(r.entries, i, e)
}

func (r *Reconciler) removeAt(i int) {
	r.entries = slices.Delete(r.entries, i, i+1)
}

func createdBefore(a, b model.Task) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
