package models

import "time"

type TaskKind string

const (
	TaskReindex     TaskKind = "reindex"
	TaskUploadIndex TaskKind = "upload_index"
	TaskURLIndex    TaskKind = "url_index"
)

func (k TaskKind) Valid() bool {
	switch k {
	case TaskReindex, TaskUploadIndex, TaskURLIndex:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// TaskRecord tracks one background job from submission to a terminal state.
// StartedAt stays nil for a job that was cancelled before it ever ran.
type TaskRecord struct {
	ID         string         `json:"task_id"`
	Scope      string         `json:"-"`
	Kind       TaskKind       `json:"task_type"`
	Status     TaskStatus     `json:"status"`
	Progress   int            `json:"progress"`
	Message    string         `json:"message"`
	Result     map[string]any `json:"result"`
	Error      string         `json:"error"`
	CreatedAt  time.Time      `json:"created_at"`
	StartedAt  *time.Time     `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at"`
	UpdatedAt  time.Time      `json:"-"`
}

// Clone returns a copy that shares no mutable state with r.
func (r TaskRecord) Clone() TaskRecord {
	out := r
	if r.Result != nil {
		out.Result = make(map[string]any, len(r.Result))
		for k, v := range r.Result {
			out.Result[k] = v
		}
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		out.FinishedAt = &t
	}
	return out
}
