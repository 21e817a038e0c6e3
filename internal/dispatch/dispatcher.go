// Package dispatch implements the batch dispatcher: it claims every
// eligible contact for a job in one atomic step, then works through them
// in fixed-size chunks with gateway-mandated pacing, off the request path.
package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gdewata/wablast/internal/gateway"
	"github.com/gdewata/wablast/internal/metrics"
	"github.com/gdewata/wablast/internal/models"
	"github.com/gdewata/wablast/internal/phone"
	"github.com/gdewata/wablast/internal/quota"
	"github.com/gdewata/wablast/internal/repository"
	"github.com/gdewata/wablast/internal/template"
)

var (
	ErrDispatchRunning    = errors.New("a dispatch job is already in progress")
	ErrNoEligibleContacts = errors.New("no eligible contacts to send")
	ErrJobNotRunning      = errors.New("job is not running")
)

// Sender delivers one message through the gateway.
type Sender interface {
	Send(ctx context.Context, target, message string) (*gateway.SendResult, error)
}

// Config holds dispatcher pacing configuration. The defaults are the
// gateway's rate-limit contract; shrink them only in tests.
type Config struct {
	BatchSize    int
	MessageDelay time.Duration
	BatchDelay   time.Duration
}

// DefaultConfig returns the production pacing contract: chunks of 20,
// 2 seconds between messages, 5 minutes between chunks.
func DefaultConfig() Config {
	return Config{
		BatchSize:    20,
		MessageDelay: 2 * time.Second,
		BatchDelay:   5 * time.Minute,
	}
}

// Receipt is returned to the caller immediately when a dispatch starts.
type Receipt struct {
	JobID    string `json:"job_id"`
	Contacts int    `json:"contacts"`
	Batches  int    `json:"batches"`
}

// Dispatcher runs at most one dispatch job at a time.
type Dispatcher struct {
	contacts *repository.ContactRepository
	messages *repository.MessageRepository
	jobs     *repository.JobRepository
	sender   Sender
	guard    *quota.Guard
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cfg      Config

	mu      sync.Mutex
	running bool
	jobID   string
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new dispatcher
func New(db *sql.DB, sender Sender, guard *quota.Guard, m *metrics.Metrics, logger *slog.Logger, cfg Config) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}

	return &Dispatcher{
		contacts: repository.NewContactRepository(db),
		messages: repository.NewMessageRepository(db),
		jobs:     repository.NewJobRepository(db),
		sender:   sender,
		guard:    guard,
		metrics:  m,
		logger:   logger.With("component", "dispatcher"),
		cfg:      cfg,
	}
}

// Recover cleans up jobs interrupted by a crash or restart: their claimed
// contacts go back to pending and the job is marked failed. Called once at
// startup before any new dispatch can begin.
func (d *Dispatcher) Recover() error {
	for _, status := range []string{models.JobStatusQueued, models.JobStatusRunning} {
		jobs, err := d.jobs.List(models.JobListFilter{Status: status})
		if err != nil {
			return err
		}
		for _, job := range jobs {
			released, err := d.contacts.ReleaseJob(job.ID)
			if err != nil {
				return err
			}
			if err := d.jobs.UpdateStatus(job.ID, models.JobStatusFailed); err != nil {
				return err
			}
			d.logger.Warn("recovered interrupted dispatch job", "job_id", job.ID, "released", released)
		}
	}
	return nil
}

// Start claims all pending/failed contacts for a new job and launches the
// background send loop. It returns immediately with the claimed contact
// and batch counts. Only one job may be in flight at a time.
func (d *Dispatcher) Start(messageTemplate, reminderTemplate string) (*Receipt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil, ErrDispatchRunning
	}
	// Belt and braces: the DB check also refuses when another process
	// (or a bug) left an active job behind.
	active, err := d.jobs.HasActive()
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrDispatchRunning
	}

	job := &models.DispatchJob{
		MessageTemplate:  messageTemplate,
		ReminderTemplate: reminderTemplate,
	}
	if err := d.jobs.Create(job); err != nil {
		return nil, err
	}

	total, err := d.contacts.ClaimEligible(job.ID)
	if err != nil {
		d.jobs.Delete(job.ID)
		return nil, err
	}
	if total == 0 {
		d.jobs.Delete(job.ID)
		return nil, ErrNoEligibleContacts
	}

	batches := (total + d.cfg.BatchSize - 1) / d.cfg.BatchSize
	if err := d.jobs.SetTotals(job.ID, total, batches); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.running = true
	d.jobID = job.ID
	d.cancel = cancel
	d.metrics.DispatchRunning.Set(1)

	d.wg.Add(1)
	go d.run(ctx, job.ID, messageTemplate, reminderTemplate)

	d.logger.Info("dispatch started", "job_id", job.ID, "contacts", total, "batches", batches)

	return &Receipt{JobID: job.ID, Contacts: total, Batches: batches}, nil
}

// Cancel aborts the in-flight job. Contacts not yet processed are released
// back to pending.
func (d *Dispatcher) Cancel(jobID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running || d.jobID != jobID {
		return ErrJobNotRunning
	}
	d.cancel()
	return nil
}

// Running reports whether a job is in flight and which one.
func (d *Dispatcher) Running() (bool, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running, d.jobID
}

// Stop cancels any in-flight job and waits for the send loop to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.running {
		d.cancel()
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Wait blocks until the current send loop exits. Test helper.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, jobID, messageTemplate, reminderTemplate string) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		d.running = false
		d.jobID = ""
		d.mu.Unlock()
		d.metrics.DispatchRunning.Set(0)
	}()

	if err := d.jobs.UpdateStatus(jobID, models.JobStatusRunning); err != nil {
		d.logger.Error("failed to mark job running", "job_id", jobID, "error", err)
	}

	claimed, err := d.contacts.ClaimedByJob(jobID)
	if err != nil {
		d.logger.Error("failed to load claimed contacts", "job_id", jobID, "error", err)
		d.contacts.ReleaseJob(jobID)
		d.jobs.UpdateStatus(jobID, models.JobStatusFailed)
		return
	}

	var stats models.JobStats
	batches := (len(claimed) + d.cfg.BatchSize - 1) / d.cfg.BatchSize

	for chunk := 0; chunk < batches; chunk++ {
		lo := chunk * d.cfg.BatchSize
		hi := lo + d.cfg.BatchSize
		if hi > len(claimed) {
			hi = len(claimed)
		}

		d.logger.Info("processing batch", "job_id", jobID, "batch", chunk+1, "of", batches, "size", hi-lo)

		for _, contact := range claimed[lo:hi] {
			if ctx.Err() != nil {
				d.abort(jobID, stats)
				return
			}

			d.processContact(ctx, contact, messageTemplate, reminderTemplate, &stats)

			if !sleepCtx(ctx, d.cfg.MessageDelay) {
				d.abort(jobID, stats)
				return
			}
		}

		if err := d.jobs.UpdateProgress(jobID, chunk+1, stats); err != nil {
			d.logger.Error("failed to update job progress", "job_id", jobID, "error", err)
		}

		if chunk+1 < batches {
			if !sleepCtx(ctx, d.cfg.BatchDelay) {
				d.abort(jobID, stats)
				return
			}
		}
	}

	status := models.JobStatusCompleted
	if stats.Sent == 0 && stats.Failed > 0 {
		status = models.JobStatusFailed
	}
	if err := d.jobs.UpdateStatus(jobID, status); err != nil {
		d.logger.Error("failed to finalize job", "job_id", jobID, "error", err)
	}

	d.logger.Info("dispatch finished", "job_id", jobID, "status", status,
		"sent", stats.Sent, "failed", stats.Failed, "skipped", stats.Skipped, "deferred", stats.Deferred)
}

// abort releases every contact still claimed by the job and marks it
// cancelled.
func (d *Dispatcher) abort(jobID string, stats models.JobStats) {
	released, err := d.contacts.ReleaseJob(jobID)
	if err != nil {
		d.logger.Error("failed to release claimed contacts", "job_id", jobID, "error", err)
	}
	if err := d.jobs.UpdateStatus(jobID, models.JobStatusCancelled); err != nil {
		d.logger.Error("failed to mark job cancelled", "job_id", jobID, "error", err)
	}
	d.logger.Info("dispatch cancelled", "job_id", jobID, "released", released, "sent", stats.Sent)
}

func (d *Dispatcher) processContact(ctx context.Context, contact models.Contact, messageTemplate, reminderTemplate string, stats *models.JobStats) {
	target, ok := phone.Normalize(contact.Phone)
	if !ok {
		// Unusable row: release the claim so behavior matches a plain
		// skip, and move on.
		d.contacts.Release(contact.ID)
		stats.Skipped++
		d.logger.Debug("skipping contact with unusable phone", "contact_id", contact.ID)
		return
	}

	msg := template.Render(messageTemplate, contact.Name)

	now := time.Now()
	if !d.guard.Allow(now) {
		d.contacts.Release(contact.ID)
		stats.Deferred++
		d.logger.Warn("send quota exhausted, deferring contact", "contact_id", contact.ID)
		return
	}

	start := time.Now()
	result, err := d.sender.Send(ctx, target, msg)
	d.metrics.GatewayRequestSeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		// Transport error: the gateway never gave a verdict, so the
		// contact stays eligible for the next run.
		d.contacts.Release(contact.ID)
		stats.Deferred++
		d.metrics.MessagesFailedTotal.WithLabelValues("transport").Inc()
		d.logger.Warn("gateway unreachable", "contact_id", contact.ID, "error", err)
		return
	}

	if !result.OK {
		if err := d.contacts.MarkFailed(contact.ID); err != nil {
			d.logger.Error("failed to mark contact failed", "contact_id", contact.ID, "error", err)
		}
		stats.Failed++
		d.metrics.MessagesFailedTotal.WithLabelValues("rejected").Inc()
		d.logger.Warn("gateway rejected send", "contact_id", contact.ID, "reason", result.Reason)
		return
	}

	if err := d.contacts.MarkSent(contact.ID, reminderTemplate, now); err != nil {
		d.logger.Error("failed to mark contact sent", "contact_id", contact.ID, "error", err)
		return
	}
	if err := d.messages.Create(&models.Message{
		ContactID:       contact.ID,
		Type:            models.MessageTypeInitial,
		Body:            msg,
		GatewayResponse: result.Raw,
	}); err != nil {
		d.logger.Error("failed to log message", "contact_id", contact.ID, "error", err)
	}

	stats.Sent++
	d.metrics.MessagesSentTotal.WithLabelValues(models.MessageTypeInitial).Inc()
	d.logger.Info("message sent", "contact_id", contact.ID, "name", contact.Name)
}

// sleepCtx sleeps for d unless the context is cancelled first. Returns
// false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
