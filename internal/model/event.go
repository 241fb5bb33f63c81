package model

// EventType is the change kind reported by the change feed.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// RecordKey carries the identity of a deleted row.
type RecordKey struct {
	ID string `json:"id"`
}

// ChangeEvent is one notification about a task row. New is set for INSERT and
// UPDATE, Old (identity only) for DELETE.
type ChangeEvent struct {
	EventType EventType  `json:"eventType"`
	New       *Task      `json:"new"`
	Old       *RecordKey `json:"old"`
}

func Inserted(t Task) ChangeEvent {
	return ChangeEvent{EventType: EventInsert, New: &t}
}

func Updated(t Task) ChangeEvent {
	return ChangeEvent{EventType: EventUpdate, New: &t}
}

func Deleted(id string) ChangeEvent {
	return ChangeEvent{EventType: EventDelete, Old: &RecordKey{ID: id}}
}

// TaskID returns the id the event refers to, or "" for a malformed event.
func (e ChangeEvent) TaskID() string {
	switch {
	case e.New != nil:
		return e.New.ID
	case e.Old != nil:
		return e.Old.ID
	default:
		return ""
	}
}

// CompletionEvent is the change notification for completion records.
type CompletionEvent struct {
	EventType EventType         `json:"eventType"`
	New       *CompletionRecord `json:"new"`
	Old       *RecordKey        `json:"old"`
}

// RecordID returns the id the event refers to, or "".
func (e CompletionEvent) RecordID() string {
	switch {
	case e.New != nil:
		return e.New.ID
	case e.Old != nil:
		return e.Old.ID
	default:
		return ""
	}
}
