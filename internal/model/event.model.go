package model

import "errors"

// Agent-side ticket events relayed back to the messaging channel.
const (
	EventReplyCreated = "reply.created"
	EventTicketClosed = "ticket.closed"
)

// AgentEvent is published to the relay stream when the ticketing backend
// reports agent activity on a bridged ticket.
type AgentEvent struct {
	Event        string `json:"event"`
	TicketID     int64  `json:"ticket_id"`
	TicketNumber string `json:"ticket_number"`
	Subject      string `json:"subject"`
	AgentName    string `json:"agent_name,omitempty"`
	Body         string `json:"body,omitempty"`
}

func (e AgentEvent) Validate() error {
	if e.Event != EventReplyCreated && e.Event != EventTicketClosed {
		return errors.New("unknown event")
	}
	if e.TicketID == 0 {
		return errors.New("ticket_id is required")
	}
	if e.Event == EventReplyCreated && e.Body == "" {
		return errors.New("body is required")
	}
	return nil
}
