package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gdewata/wablast/internal/models"
)

type ContactRepository struct {
	db *sql.DB
}

func NewContactRepository(db *sql.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

const contactColumns = `id, nik, name, phone, status, reminder_count, reminder_message, job_id, last_sent, last_reply, created_at`

// Upsert inserts a contact or, when the NIK already exists, resets it to a
// fresh pending state: new name/phone, zero reminders, cleared send and
// reply timestamps. Re-import is the only way back out of 'replied'.
func (r *ContactRepository) Upsert(row models.ImportRow) error {
	_, err := r.db.Exec(`
		INSERT INTO contacts (id, nik, name, phone, status, reminder_count, created_at)
		VALUES (?, ?, ?, ?, 'pending', 0, ?)
		ON CONFLICT(nik) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			status = 'pending',
			reminder_count = 0,
			reminder_message = '',
			job_id = '',
			last_sent = NULL,
			last_reply = NULL`,
		uuid.New().String(), row.NIK, row.Name, row.Phone, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert contact: %w", err)
	}
	return nil
}

// GetByID returns a contact by ID, or nil when not found.
func (r *ContactRepository) GetByID(id string) (*models.Contact, error) {
	row := r.db.QueryRow(`SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id)
	return scanContact(row)
}

// GetByPhone returns the contact with the given canonical phone, or nil.
func (r *ContactRepository) GetByPhone(phone string) (*models.Contact, error) {
	row := r.db.QueryRow(`SELECT `+contactColumns+` FROM contacts WHERE phone = ? LIMIT 1`, phone)
	return scanContact(row)
}

// Count returns the total number of contacts.
func (r *ContactRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM contacts`).Scan(&n)
	return n, err
}

// List returns all contacts, newest first, each joined with its most
// recent inbound reply.
func (r *ContactRepository) List() ([]models.ContactWithReply, error) {
	rows, err := r.db.Query(`
		SELECT c.id, c.nik, c.name, c.phone, c.status, c.reminder_count, c.reminder_message,
			c.job_id, c.last_sent, c.last_reply, c.created_at, m.body, m.created_at
		FROM contacts c
		LEFT JOIN messages m ON m.id = (
			SELECT id FROM messages
			WHERE contact_id = c.id AND type = 'reply'
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		)
		ORDER BY c.created_at DESC, c.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []models.ContactWithReply{}
	for rows.Next() {
		var c models.ContactWithReply
		var lastSent, lastReply, replyTime sql.NullTime
		var replyBody sql.NullString

		err := rows.Scan(&c.ID, &c.NIK, &c.Name, &c.Phone, &c.Status, &c.ReminderCount, &c.ReminderMessage,
			&c.JobID, &lastSent, &lastReply, &c.CreatedAt, &replyBody, &replyTime)
		if err != nil {
			return nil, err
		}

		if lastSent.Valid {
			c.LastSent = &lastSent.Time
		}
		if lastReply.Valid {
			c.LastReply = &lastReply.Time
		}
		if replyBody.Valid {
			c.LastReplyMessage = replyBody.String
		}
		if replyTime.Valid {
			c.LastReplyTime = &replyTime.Time
		}

		contacts = append(contacts, c)
	}

	return contacts, rows.Err()
}

// ClaimEligible atomically claims every pending or failed contact for the
// given dispatch job by moving it to 'sending'. The single UPDATE makes the
// claim a barrier: a second overlapping dispatch sees nothing to claim.
func (r *ContactRepository) ClaimEligible(jobID string) (int, error) {
	res, err := r.db.Exec(`
		UPDATE contacts SET status = 'sending', job_id = ?
		WHERE status IN ('pending', 'failed')`, jobID)
	if err != nil {
		return 0, fmt.Errorf("failed to claim contacts: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ClaimedByJob returns the contacts claimed by a job, earliest-imported
// first for deterministic processing order.
func (r *ContactRepository) ClaimedByJob(jobID string) ([]models.Contact, error) {
	rows, err := r.db.Query(`
		SELECT `+contactColumns+` FROM contacts
		WHERE job_id = ? AND status = 'sending'
		ORDER BY created_at ASC, id ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContacts(rows)
}

// Release returns a single claimed contact to 'pending' so the next
// dispatch run picks it up again.
func (r *ContactRepository) Release(id string) error {
	_, err := r.db.Exec(`
		UPDATE contacts SET status = 'pending', job_id = ''
		WHERE id = ? AND status = 'sending'`, id)
	return err
}

// ReleaseJob releases every contact still claimed by the job. Used when a
// dispatch run is cancelled mid-flight.
func (r *ContactRepository) ReleaseJob(jobID string) (int, error) {
	res, err := r.db.Exec(`
		UPDATE contacts SET status = 'pending', job_id = ''
		WHERE job_id = ? AND status = 'sending'`, jobID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// MarkSent finalizes a successful initial send: the reminder template text
// is captured on the contact for later follow-ups and the reminder counter
// restarts.
func (r *ContactRepository) MarkSent(id, reminderTemplate string, at time.Time) error {
	_, err := r.db.Exec(`
		UPDATE contacts
		SET status = 'sent', last_sent = ?, reminder_message = ?, reminder_count = 0, job_id = ''
		WHERE id = ?`, at, reminderTemplate, id)
	return err
}

// MarkFailed records an explicit gateway rejection. The contact stays
// eligible for the next dispatch run.
func (r *ContactRepository) MarkFailed(id string) error {
	_, err := r.db.Exec(`
		UPDATE contacts SET status = 'failed', job_id = '' WHERE id = ?`, id)
	return err
}

// RemindersDue returns contacts eligible for a follow-up reminder: a
// message went out, no reply has been recorded, the reminder cap is not
// reached, and the threshold has elapsed since the last send. The
// last_reply IS NULL check is deliberate; status alone is not trusted.
func (r *ContactRepository) RemindersDue(now time.Time, cap int, threshold time.Duration) ([]models.Contact, error) {
	cutoff := now.Add(-threshold)
	rows, err := r.db.Query(`
		SELECT `+contactColumns+` FROM contacts
		WHERE status IN ('sent', 'reminded')
		  AND last_reply IS NULL
		  AND reminder_count < ?
		  AND last_sent IS NOT NULL AND last_sent <= ?
		ORDER BY last_sent ASC, id ASC`, cap, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContacts(rows)
}

// MarkReminded records a delivered reminder. The WHERE clause re-checks
// eligibility so a reply that raced in between selection and update wins;
// the caller must skip its message log entry when no row was updated.
func (r *ContactRepository) MarkReminded(id string, at time.Time) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE contacts
		SET status = 'reminded', reminder_count = reminder_count + 1, last_sent = ?
		WHERE id = ? AND status IN ('sent', 'reminded') AND last_reply IS NULL`, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// TouchLastSent bumps the last_sent timestamp without changing status.
// Applied after a failed reminder attempt so the contact does not become
// re-eligible on the very next cycle.
func (r *ContactRepository) TouchLastSent(id string, at time.Time) error {
	_, err := r.db.Exec(`UPDATE contacts SET last_sent = ? WHERE id = ?`, at, id)
	return err
}

// MarkReplied transitions a contact to the terminal replied state from any
// prior state.
func (r *ContactRepository) MarkReplied(id string, at time.Time) error {
	_, err := r.db.Exec(`
		UPDATE contacts SET status = 'replied', last_reply = ? WHERE id = ?`, at, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContactInto(s rowScanner, c *models.Contact) error {
	var lastSent, lastReply sql.NullTime

	err := s.Scan(&c.ID, &c.NIK, &c.Name, &c.Phone, &c.Status, &c.ReminderCount,
		&c.ReminderMessage, &c.JobID, &lastSent, &lastReply, &c.CreatedAt)
	if err != nil {
		return err
	}

	if lastSent.Valid {
		c.LastSent = &lastSent.Time
	}
	if lastReply.Valid {
		c.LastReply = &lastReply.Time
	}
	return nil
}

func scanContact(row *sql.Row) (*models.Contact, error) {
	c := &models.Contact{}
	err := scanContactInto(row, c)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func scanContacts(rows *sql.Rows) ([]models.Contact, error) {
	contacts := []models.Contact{}
	for rows.Next() {
		var c models.Contact
		if err := scanContactInto(rows, &c); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
