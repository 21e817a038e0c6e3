// Package reminder implements the hourly follow-up scheduler. Each cycle
// it selects contacts whose initial message went unanswered past the
// threshold and re-sends their stored reminder text, capped per contact.
package reminder

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdewata/wablast/internal/dispatch"
	"github.com/gdewata/wablast/internal/metrics"
	"github.com/gdewata/wablast/internal/models"
	"github.com/gdewata/wablast/internal/phone"
	"github.com/gdewata/wablast/internal/quota"
	"github.com/gdewata/wablast/internal/repository"
	"github.com/gdewata/wablast/internal/template"
)

// FallbackTemplate is used when a contact was sent without a reminder
// template.
const FallbackTemplate = "Halo {name}, ini pengingat dari kami 🙏"

// Config holds scheduler tuning.
type Config struct {
	Interval     time.Duration // how often to scan for due contacts
	MaxReminders int           // per-contact cap
	Threshold    time.Duration // quiet period after the last send
	SendDelay    time.Duration // pacing between reminders in one cycle
}

// DefaultConfig returns the production schedule: hourly scan, at most two
// reminders per contact, 24 hours between touches, 3 seconds between sends.
func DefaultConfig() Config {
	return Config{
		Interval:     time.Hour,
		MaxReminders: 2,
		Threshold:    24 * time.Hour,
		SendDelay:    3 * time.Second,
	}
}

// Scheduler periodically sends follow-up reminders.
type Scheduler struct {
	contacts *repository.ContactRepository
	messages *repository.MessageRepository
	sender   dispatch.Sender
	guard    *quota.Guard
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cfg      Config

	paused atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new scheduler
func New(db *sql.DB, sender dispatch.Sender, guard *quota.Guard, m *metrics.Metrics, logger *slog.Logger, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.MaxReminders <= 0 {
		cfg.MaxReminders = 2
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 24 * time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		contacts: repository.NewContactRepository(db),
		messages: repository.NewMessageRepository(db),
		sender:   sender,
		guard:    guard,
		metrics:  m,
		logger:   logger.With("component", "reminder"),
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the background scan loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
	s.logger.Info("reminder scheduler started",
		"interval", s.cfg.Interval, "max_reminders", s.cfg.MaxReminders, "threshold", s.cfg.Threshold)
}

// Stop shuts down the scan loop and waits for an in-progress cycle.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info("reminder scheduler stopped")
}

// Pause suspends reminder cycles. The loop keeps ticking so Resume takes
// effect on the next tick.
func (s *Scheduler) Pause() {
	s.paused.Store(true)
	s.metrics.ReminderPaused.Set(1)
	s.logger.Info("reminder scheduler paused")
}

// Resume re-enables reminder cycles.
func (s *Scheduler) Resume() {
	s.paused.Store(false)
	s.metrics.ReminderPaused.Set(0)
	s.logger.Info("reminder scheduler resumed")
}

// Paused reports whether cycles are currently suspended.
func (s *Scheduler) Paused() bool {
	return s.paused.Load()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.paused.Load() {
				continue
			}
			s.RunCycle(time.Now())
		}
	}
}

// RunCycle performs one reminder pass. Exposed so tests and the serve
// command can trigger a cycle without waiting for the ticker.
func (s *Scheduler) RunCycle(now time.Time) {
	due, err := s.contacts.RemindersDue(now, s.cfg.MaxReminders, s.cfg.Threshold)
	if err != nil {
		s.logger.Error("failed to query due reminders", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	s.logger.Info("reminder cycle started", "due", len(due))

	var sent, failed int
	for i, contact := range due {
		if s.ctx.Err() != nil {
			return
		}
		if i > 0 && !sleepCtx(s.ctx, s.cfg.SendDelay) {
			return
		}
		if s.remind(contact) {
			sent++
		} else {
			failed++
		}
	}

	s.logger.Info("reminder cycle finished", "sent", sent, "failed", failed)
}

func (s *Scheduler) remind(contact models.Contact) bool {
	target, ok := phone.Normalize(contact.Phone)
	if !ok {
		s.logger.Debug("skipping reminder for unusable phone", "contact_id", contact.ID)
		return false
	}

	tpl := contact.ReminderMessage
	if tpl == "" {
		tpl = FallbackTemplate
	}
	msg := template.Render(tpl, contact.Name)

	now := time.Now()
	if !s.guard.Allow(now) {
		s.logger.Warn("send quota exhausted, skipping reminder cycle contact", "contact_id", contact.ID)
		return false
	}

	start := time.Now()
	result, err := s.sender.Send(s.ctx, target, msg)
	s.metrics.GatewayRequestSeconds.Observe(time.Since(start).Seconds())

	if err != nil || !result.OK {
		// Bump last_sent so the contact backs off a full threshold
		// instead of retrying every cycle.
		if terr := s.contacts.TouchLastSent(contact.ID, now); terr != nil {
			s.logger.Error("failed to bump last_sent", "contact_id", contact.ID, "error", terr)
		}
		s.metrics.MessagesFailedTotal.WithLabelValues("reminder").Inc()
		if err != nil {
			s.logger.Warn("reminder send failed", "contact_id", contact.ID, "error", err)
		} else {
			s.logger.Warn("gateway rejected reminder", "contact_id", contact.ID, "reason", result.Reason)
		}
		return false
	}

	updated, err := s.contacts.MarkReminded(contact.ID, now)
	if err != nil {
		s.logger.Error("failed to mark contact reminded", "contact_id", contact.ID, "error", err)
		return false
	}
	if !updated {
		// A reply raced in after selection. The reminder already went
		// out, but the contact stays replied and the log entry is
		// skipped.
		s.logger.Info("reply arrived during reminder send", "contact_id", contact.ID)
		return true
	}

	if err := s.messages.Create(&models.Message{
		ContactID:       contact.ID,
		Type:            models.MessageTypeReminder,
		Body:            msg,
		GatewayResponse: result.Raw,
	}); err != nil {
		s.logger.Error("failed to log reminder", "contact_id", contact.ID, "error", err)
	}

	s.metrics.MessagesSentTotal.WithLabelValues(models.MessageTypeReminder).Inc()
	s.logger.Info("reminder sent", "contact_id", contact.ID, "count", contact.ReminderCount+1)
	return true
}

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
