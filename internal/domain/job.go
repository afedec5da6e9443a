package domain

import "time"

// JobStatus represents the lifecycle state of an import job. Transitions
// are monotonic: queued→active→{completed|failed}, or queued→cancelled.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Priority is one of the three scheduling lanes.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// ParsePriority maps a user-supplied string onto a lane, defaulting to
// normal for empty input.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return Priority(s), true
	case "":
		return PriorityNormal, true
	default:
		return PriorityNormal, false
	}
}

// Lane returns the lane index for the priority; lower index dequeues first.
func (p Priority) Lane() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Job is one scheduled unit of file-ingestion work. It lives only in the
// coordinator's memory: queued in a lane, then active, then retained in a
// bounded recent-completed ring. The coordinator is its sole mutator.
type Job struct {
	ID           string     `json:"id"`
	Station      string     `json:"station"`
	FilePath     string     `json:"filePath"`
	Priority     Priority   `json:"priority"`
	Status       JobStatus  `json:"status"`
	EnqueuedAt   time.Time  `json:"enqueuedAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	RowsInserted int        `json:"rowsInserted"`
	RowErrors    int        `json:"rowErrors"`
	Errors       []string   `json:"errors,omitempty"`
}

// Clone returns a copy safe to hand out while the coordinator keeps
// mutating the original.
func (j *Job) Clone() *Job {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	c.Errors = append([]string(nil), j.Errors...)
	return &c
}
