package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gdewata/wablast/internal/models"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create creates a new dispatch job in the queued state.
func (r *JobRepository) Create(job *models.DispatchJob) error {
	job.ID = uuid.New().String()
	job.Status = models.JobStatusQueued
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt

	statsJSON, _ := json.Marshal(job.Stats)

	_, err := r.db.Exec(`
		INSERT INTO dispatch_jobs (id, message_template, reminder_template, status, total, batches, chunk_index, stats, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.MessageTemplate, job.ReminderTemplate, job.Status,
		job.Total, job.Batches, job.ChunkIndex, string(statsJSON), job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create dispatch job: %w", err)
	}
	return nil
}

// GetByID returns a job by ID, or nil when not found.
func (r *JobRepository) GetByID(id string) (*models.DispatchJob, error) {
	row := r.db.QueryRow(`
		SELECT id, message_template, reminder_template, status, total, batches, chunk_index,
			COALESCE(stats, '{}'), started_at, completed_at, created_at, updated_at
		FROM dispatch_jobs WHERE id = ?`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// List returns jobs with optional status filtering, newest first.
func (r *JobRepository) List(filter models.JobListFilter) ([]models.DispatchJob, error) {
	query := `
		SELECT id, message_template, reminder_template, status, total, batches, chunk_index,
			COALESCE(stats, '{}'), started_at, completed_at, created_at, updated_at
		FROM dispatch_jobs WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []models.DispatchJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}

	return jobs, rows.Err()
}

// SetTotals records how many contacts the job claimed and the resulting
// batch count.
func (r *JobRepository) SetTotals(id string, total, batches int) error {
	_, err := r.db.Exec(`
		UPDATE dispatch_jobs SET total = ?, batches = ?, updated_at = ? WHERE id = ?`,
		total, batches, time.Now(), id)
	return err
}

// UpdateStatus updates job status, stamping started_at on the transition
// to running and completed_at on any terminal status.
func (r *JobRepository) UpdateStatus(id, status string) error {
	now := time.Now()
	var startedAt, completedAt *time.Time

	switch status {
	case models.JobStatusRunning:
		startedAt = &now
	case models.JobStatusCompleted, models.JobStatusCancelled, models.JobStatusFailed:
		completedAt = &now
	}

	_, err := r.db.Exec(`
		UPDATE dispatch_jobs
		SET status = ?, started_at = COALESCE(?, started_at), completed_at = COALESCE(?, completed_at), updated_at = ?
		WHERE id = ?`,
		status, startedAt, completedAt, now, id,
	)
	return err
}

// UpdateProgress persists the chunk index and running stats so an
// in-flight job can be inspected.
func (r *JobRepository) UpdateProgress(id string, chunkIndex int, stats models.JobStats) error {
	statsJSON, _ := json.Marshal(stats)
	_, err := r.db.Exec(`
		UPDATE dispatch_jobs SET chunk_index = ?, stats = ?, updated_at = ? WHERE id = ?`,
		chunkIndex, string(statsJSON), time.Now(), id)
	return err
}

// HasActive reports whether any job is queued or running.
func (r *JobRepository) HasActive() (bool, error) {
	var n int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM dispatch_jobs WHERE status IN ('queued', 'running')`).Scan(&n)
	return n > 0, err
}

// Delete removes a job record.
func (r *JobRepository) Delete(id string) error {
	_, err := r.db.Exec(`DELETE FROM dispatch_jobs WHERE id = ?`, id)
	return err
}

func scanJob(s rowScanner) (*models.DispatchJob, error) {
	job := &models.DispatchJob{}
	var statsJSON string
	var startedAt, completedAt sql.NullTime

	err := s.Scan(&job.ID, &job.MessageTemplate, &job.ReminderTemplate, &job.Status,
		&job.Total, &job.Batches, &job.ChunkIndex, &statsJSON, &startedAt, &completedAt,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(statsJSON), &job.Stats); err != nil {
		job.Stats = models.JobStats{}
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}

	return job, nil
}
