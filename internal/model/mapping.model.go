package model

import "time"

// MappingStatus is the lifecycle state of a phone-to-ticket binding.
type MappingStatus string

const (
	// MappingStatusOpen marks the active routing target for a phone.
	// At most one mapping per phone may be open at any instant.
	MappingStatusOpen MappingStatus = "open"
	// MappingStatusInactive is a mapping switched away from; it can be
	// reactivated by a later switch back.
	MappingStatusInactive MappingStatus = "inactive"
	MappingStatusClosed   MappingStatus = "closed"
	// MappingStatusUnlinked means the ticket stays open in the backend but
	// no longer receives messages from this phone; the next inbound message
	// creates a fresh ticket.
	MappingStatusUnlinked MappingStatus = "unlinked"
)

// Mapping binds a canonical phone number to a ticket.
type Mapping struct {
	ID             int64         `json:"id"`
	Phone          string        `json:"phone"`
	PhoneFormatted string        `json:"phone_formatted"`
	ContactName    string        `json:"contact_name"`
	TicketID       int64         `json:"ticket_id"`
	TicketNumber   string        `json:"ticket_number"`
	UserID         *int64        `json:"user_id,omitempty"`
	Status         MappingStatus `json:"status"`
	Created        time.Time     `json:"created"`
	Updated        time.Time     `json:"updated"`
}

func (m *Mapping) IsOpen() bool {
	return m != nil && m.Status == MappingStatusOpen
}

// Direction of a logged message relative to the bridge.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Log entry statuses. The column is free-form; these are the values the
// bridge writes itself.
const (
	LogStatusReceived      = "received"
	LogStatusSent          = "sent"
	LogStatusMediaRejected = "media_rejected"
	LogStatusClosed        = "closed"
	LogStatusError         = "error"
)

// MessageLogEntry is an append-only audit record owned by its Mapping.
type MessageLogEntry struct {
	ID        int64     `json:"id"`
	MappingID int64     `json:"mapping_id"`
	MessageID *string   `json:"message_id,omitempty"`
	Direction Direction `json:"direction"`
	Content   string    `json:"content"`
	Status    string    `json:"status"`
	Created   time.Time `json:"created"`
}

// LogMessageRequest is the input for appending to the message log.
type LogMessageRequest struct {
	MessageID *string
	Direction Direction
	Content   string
	Status    string
}

// CleanupStats is the result of an orphaned-mapping sweep.
type CleanupStats struct {
	Checked int `json:"checked"`
	Cleaned int `json:"cleaned"`
	Errors  int `json:"errors"`
}
