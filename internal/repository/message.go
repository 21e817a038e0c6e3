package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gdewata/wablast/internal/models"
)

type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create appends a message log entry. The log is append-only; entries are
// never updated or deleted by the core.
func (r *MessageRepository) Create(msg *models.Message) error {
	msg.ID = uuid.New().String()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(`
		INSERT INTO messages (id, contact_id, type, body, gateway_response, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ContactID, msg.Type, msg.Body, msg.GatewayResponse, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// LatestReply returns the most recent inbound reply for a contact, or nil.
func (r *MessageRepository) LatestReply(contactID string) (*models.Message, error) {
	msg := &models.Message{}
	err := r.db.QueryRow(`
		SELECT id, contact_id, type, body, gateway_response, created_at
		FROM messages
		WHERE contact_id = ? AND type = 'reply'
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, contactID,
	).Scan(&msg.ID, &msg.ContactID, &msg.Type, &msg.Body, &msg.GatewayResponse, &msg.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListByContact returns the full message history for a contact, oldest
// first.
func (r *MessageRepository) ListByContact(contactID string) ([]models.Message, error) {
	rows, err := r.db.Query(`
		SELECT id, contact_id, type, body, gateway_response, created_at
		FROM messages
		WHERE contact_id = ?
		ORDER BY created_at ASC, id ASC`, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		err := rows.Scan(&msg.ID, &msg.ContactID, &msg.Type, &msg.Body, &msg.GatewayResponse, &msg.CreatedAt)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
