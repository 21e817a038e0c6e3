package models

import "time"

// Contact statuses. A contact moves pending -> sending -> sent -> reminded
// and ends up replied once an inbound message arrives. Failed sends go back
// to failed and are picked up again by the next dispatch.
const (
	ContactStatusPending  = "pending"
	ContactStatusSending  = "sending" // claimed by an in-flight dispatch job
	ContactStatusSent     = "sent"
	ContactStatusFailed   = "failed"
	ContactStatusReminded = "reminded"
	ContactStatusReplied  = "replied"
)

// Contact represents an outreach recipient imported from a spreadsheet,
// keyed by the national ID (NIK).
type Contact struct {
	ID              string     `json:"id"`
	NIK             string     `json:"nik"`
	Name            string     `json:"name"`
	Phone           string     `json:"phone"` // canonical 62-prefixed form
	Status          string     `json:"status"`
	ReminderCount   int        `json:"reminder_count"`
	ReminderMessage string     `json:"reminder_message,omitempty"` // captured at send time
	JobID           string     `json:"job_id,omitempty"`           // dispatch job holding the claim
	LastSent        *time.Time `json:"last_sent,omitempty"`
	LastReply       *time.Time `json:"last_reply,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ContactWithReply is a contact joined with its most recent inbound reply.
// LastReplyLocal is filled in by the API layer using the configured timezone.
type ContactWithReply struct {
	Contact
	LastReplyMessage string     `json:"last_reply_message,omitempty"`
	LastReplyTime    *time.Time `json:"last_reply_time,omitempty"`
	LastReplyLocal   string     `json:"last_reply_local,omitempty"`
}

// Message types.
const (
	MessageTypeInitial  = "initial"
	MessageTypeReminder = "reminder"
	MessageTypeReply    = "reply"
)

// Message is one append-only log entry for a contact: an outbound initial
// send, an outbound reminder, or an inbound reply.
type Message struct {
	ID              string    `json:"id"`
	ContactID       string    `json:"contact_id"`
	Type            string    `json:"type"`
	Body            string    `json:"body"`
	GatewayResponse string    `json:"gateway_response,omitempty"` // raw gateway reply for outbound messages
	CreatedAt       time.Time `json:"created_at"`
}

// ImportRow is one parsed spreadsheet row.
type ImportRow struct {
	NIK   string
	Name  string
	Phone string
}

// ImportResult holds the outcome of a spreadsheet upload.
type ImportResult struct {
	Total    int      `json:"total"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}
