// Package webhook ingests inbound reply notifications from the delivery
// gateway. Payloads are acknowledged unconditionally; only replies that
// match a known contact change any state.
package webhook

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/gdewata/wablast/internal/metrics"
	"github.com/gdewata/wablast/internal/models"
	"github.com/gdewata/wablast/internal/phone"
	"github.com/gdewata/wablast/internal/repository"
)

// Payload is an inbound gateway notification. The gateway is inconsistent
// about field names, so both spellings of each are accepted.
type Payload struct {
	Phone   string `json:"phone"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
	Text    string `json:"text"`
}

func (p Payload) phoneValue() string {
	if p.Phone != "" {
		return p.Phone
	}
	return p.Sender
}

func (p Payload) messageValue() string {
	if p.Message != "" {
		return p.Message
	}
	return p.Text
}

// Ingestor records inbound replies against contacts.
type Ingestor struct {
	contacts *repository.ContactRepository
	messages *repository.MessageRepository
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a new ingestor
func New(db *sql.DB, m *metrics.Metrics, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		contacts: repository.NewContactRepository(db),
		messages: repository.NewMessageRepository(db),
		metrics:  m,
		logger:   logger.With("component", "webhook"),
	}
}

// Process handles one inbound notification. Payloads without a usable
// phone or message, or from numbers that match no contact, are dropped
// silently; the gateway retries on errors we cannot act on anyway.
func (i *Ingestor) Process(p Payload) error {
	raw := p.phoneValue()
	body := p.messageValue()
	if raw == "" || body == "" {
		i.logger.Debug("dropping webhook payload without phone or message")
		return nil
	}

	canonical, ok := phone.Normalize(raw)
	if !ok {
		i.logger.Debug("dropping webhook payload with unusable phone", "phone", raw)
		return nil
	}

	contact, err := i.contacts.GetByPhone(canonical)
	if err != nil {
		return err
	}
	if contact == nil {
		i.logger.Debug("dropping reply from unknown number", "phone", canonical)
		return nil
	}

	now := time.Now()
	if err := i.contacts.MarkReplied(contact.ID, now); err != nil {
		return err
	}
	if err := i.messages.Create(&models.Message{
		ContactID: contact.ID,
		Type:      models.MessageTypeReply,
		Body:      body,
	}); err != nil {
		return err
	}

	i.metrics.RepliesTotal.Inc()
	i.logger.Info("reply recorded", "contact_id", contact.ID, "name", contact.Name)
	return nil
}
