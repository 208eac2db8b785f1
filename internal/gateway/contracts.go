// Package gateway holds the bridge's outward-facing clients: the ticketing
// backend and the WhatsApp transport. The router depends only on the
// interfaces below.
package gateway

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrUserNotFound   = errors.New("user not found")
)

// Ticket statuses as reported by the backend.
const (
	TicketStatusOpen   = "open"
	TicketStatusClosed = "closed"
)

type Ticket struct {
	ID      int64     `json:"id"`
	Number  string    `json:"number"`
	Subject string    `json:"subject"`
	Status  string    `json:"status"`
	UserID  int64     `json:"user_id"`
	Created time.Time `json:"created"`
}

func (t *Ticket) IsClosed() bool {
	return t == nil || t.Status == TicketStatusClosed
}

type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type CreateTicketRequest struct {
	UserID  int64  `json:"user_id"`
	Subject string `json:"subject"`
	Message string `json:"message"`
	TopicID int64  `json:"topic_id,omitempty"`
	DeptID  int64  `json:"dept_id,omitempty"`
	Source  string `json:"source"`
}

type CreateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// TicketGateway is the backend surface the router needs: lookups, thread
// appends, internal notes, creation and closing. PostNote writes to the
// agent-visible note thread; it is the fallback when a customer-visible
// append or an automatic close fails.
type TicketGateway interface {
	GetTicket(ctx context.Context, id int64) (*Ticket, error)
	GetTicketByNumber(ctx context.Context, number string) (*Ticket, error)
	ListOpenTickets(ctx context.Context, userID int64) ([]*Ticket, error)
	CreateTicket(ctx context.Context, req CreateTicketRequest) (*Ticket, error)
	PostMessage(ctx context.Context, ticketID int64, body string) error
	PostNote(ctx context.Context, ticketID int64, note string) error
	CloseTicket(ctx context.Context, ticketID int64) error
}

// UserDirectory resolves and creates backend users for channel identities.
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*User, error)
	FindUserByPhone(ctx context.Context, variants []string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
}

// MessagingGateway delivers outbound texts to the customer's phone.
type MessagingGateway interface {
	SendText(ctx context.Context, phone, text string) error
}
