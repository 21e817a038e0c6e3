package models

import "time"

// Dispatch job statuses.
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusCancelled = "cancelled"
	JobStatusFailed    = "failed"
)

// DispatchJob is the persisted record of one batch dispatch run. It carries
// enough state (chunk index, stats) for an operator to inspect or cancel an
// in-flight run.
type DispatchJob struct {
	ID               string     `json:"id"`
	MessageTemplate  string     `json:"message_template"`
	ReminderTemplate string     `json:"reminder_template"`
	Status           string     `json:"status"`
	Total            int        `json:"total"`   // contacts claimed by this job
	Batches          int        `json:"batches"` // ceil(total / batch size)
	ChunkIndex       int        `json:"chunk_index"`
	Stats            JobStats   `json:"stats"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// JobStats aggregates per-contact outcomes of a dispatch run.
type JobStats struct {
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`  // unusable phone numbers
	Deferred int `json:"deferred"` // transport errors and quota denials, retried next run
}

// JobListFilter for filtering dispatch jobs.
type JobListFilter struct {
	Status string
	Limit  int
	Offset int
}
