package model

import "errors"

// MessageType is the channel-side payload kind of an inbound message.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeVideo    MessageType = "video"
	TypeAudio    MessageType = "audio"
	TypeDocument MessageType = "document"
	TypeSticker  MessageType = "sticker"
	TypeContact  MessageType = "contact"
	TypeLocation MessageType = "location"
)

// IsMedia reports whether the type carries an attachment the bridge cannot
// ingest into a ticket thread.
func (t MessageType) IsMedia() bool {
	switch t {
	case TypeImage, TypeVideo, TypeAudio, TypeDocument, TypeSticker:
		return true
	}
	return false
}

// InboundMessage is one webhook delivery from the messaging channel.
type InboundMessage struct {
	Phone             string
	Text              string
	Type              MessageType
	ExternalMessageID string
	DisplayName       string
}

func (m InboundMessage) Validate() error {
	if m.Phone == "" {
		return errors.New("phone is required")
	}
	if !m.Type.IsMedia() && m.Text == "" {
		return errors.New("text is required")
	}
	return nil
}

// Router actions, one per decision-tree outcome.
const (
	ActionCreated          = "created"
	ActionUpdated          = "updated"
	ActionTicketClosed     = "ticket_closed"
	ActionCloseDeferred    = "close_deferred"
	ActionTicketSwitched   = "ticket_switched"
	ActionMediaResponse    = "media_response_sent"
	ActionMappingUnlinked  = "mapping_unlinked"
	ActionTicketsListed    = "tickets_listed"
	ActionFormatError      = "control_word_format_error"
	ActionNoOpenTicket     = "no_open_ticket"
	ActionDuplicateIgnored = "duplicate_ignored"
)

// RouterResult is the structured outcome returned to the webhook boundary.
type RouterResult struct {
	Success      bool   `json:"success"`
	Action       string `json:"action"`
	TicketID     int64  `json:"ticket_id,omitempty"`
	TicketNumber string `json:"ticket_number,omitempty"`
	Error        string `json:"error,omitempty"`
}
