package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/tickethub/whatsapp-bridge/pkg/logger"
	"github.com/valyala/fasthttp"
)

var errStatusNotFound = errors.New("resource not found")

// TicketingClient implements TicketGateway and UserDirectory against the
// ticketing backend's HTTP API.
type TicketingClient struct {
	url     string
	apiKey  string
	timeout time.Duration
	client  *fasthttp.Client
}

type TicketingConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

func NewTicketingClient(cfg TicketingConfig) *TicketingClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &TicketingClient{
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		client: &fasthttp.Client{
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
		},
	}
}

func (c *TicketingClient) GetTicket(ctx context.Context, id int64) (*Ticket, error) {
	var t Ticket
	err := c.doRequest(ctx, "GET", "/api/tickets/"+strconv.FormatInt(id, 10), nil, &t)
	if err != nil {
		if errors.Is(err, errStatusNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (c *TicketingClient) GetTicketByNumber(ctx context.Context, number string) (*Ticket, error) {
	var t Ticket
	err := c.doRequest(ctx, "GET", "/api/tickets/by-number/"+url.PathEscape(number), nil, &t)
	if err != nil {
		if errors.Is(err, errStatusNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return &t, nil
}

// ListOpenTickets returns the user's open tickets straight from the backend,
// including ones that never passed through the bridge.
func (c *TicketingClient) ListOpenTickets(ctx context.Context, userID int64) ([]*Ticket, error) {
	var tickets []*Ticket
	err := c.doRequest(ctx, "GET", "/api/users/"+strconv.FormatInt(userID, 10)+"/tickets?status=open", nil, &tickets)
	if err != nil {
		if errors.Is(err, errStatusNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return tickets, nil
}

func (c *TicketingClient) CreateTicket(ctx context.Context, req CreateTicketRequest) (*Ticket, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var t Ticket
	if err := c.doRequest(ctx, "POST", "/api/tickets", body, &t); err != nil {
		return nil, err
	}

	logger.Info("ticket created", "ticket_id", t.ID, "number", t.Number)
	return &t, nil
}

func (c *TicketingClient) PostMessage(ctx context.Context, ticketID int64, msg string) error {
	body, err := json.Marshal(map[string]string{"message": msg})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	err = c.doRequest(ctx, "POST", "/api/tickets/"+strconv.FormatInt(ticketID, 10)+"/messages", body, nil)
	if errors.Is(err, errStatusNotFound) {
		return ErrTicketNotFound
	}
	return err
}

// PostNote writes to the ticket's internal note thread. Notes are only
// visible to agents, so they can carry verbatim customer text when the
// public thread rejects it.
func (c *TicketingClient) PostNote(ctx context.Context, ticketID int64, note string) error {
	body, err := json.Marshal(map[string]string{"note": note})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	err = c.doRequest(ctx, "POST", "/api/tickets/"+strconv.FormatInt(ticketID, 10)+"/notes", body, nil)
	if errors.Is(err, errStatusNotFound) {
		return ErrTicketNotFound
	}
	return err
}

func (c *TicketingClient) CloseTicket(ctx context.Context, ticketID int64) error {
	err := c.doRequest(ctx, "POST", "/api/tickets/"+strconv.FormatInt(ticketID, 10)+"/close", nil, nil)
	if errors.Is(err, errStatusNotFound) {
		return ErrTicketNotFound
	}
	return err
}

func (c *TicketingClient) GetUser(ctx context.Context, id int64) (*User, error) {
	var u User
	err := c.doRequest(ctx, "GET", "/api/users/"+strconv.FormatInt(id, 10), nil, &u)
	if err != nil {
		if errors.Is(err, errStatusNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// FindUserByPhone tries each phone variant in order and returns the first
// user the backend knows.
func (c *TicketingClient) FindUserByPhone(ctx context.Context, variants []string) (*User, error) {
	for _, v := range variants {
		var u User
		err := c.doRequest(ctx, "GET", "/api/users/by-phone/"+url.PathEscape(v), nil, &u)
		if err == nil {
			return &u, nil
		}
		if !errors.Is(err, errStatusNotFound) {
			return nil, err
		}
	}
	return nil, ErrUserNotFound
}

func (c *TicketingClient) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := c.doRequest(ctx, "GET", "/api/users/by-email/"+url.PathEscape(email), nil, &u)
	if err != nil {
		if errors.Is(err, errStatusNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (c *TicketingClient) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var u User
	if err := c.doRequest(ctx, "POST", "/api/users", body, &u); err != nil {
		return nil, err
	}

	logger.Info("user created", "user_id", u.ID, "email", u.Email)
	return &u, nil
}

func (c *TicketingClient) doRequest(ctx context.Context, method, path string, body []byte, out interface{}) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}

	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	statusCode := resp.StatusCode()
	switch {
	case statusCode == fasthttp.StatusNotFound:
		return errStatusNotFound
	case statusCode != fasthttp.StatusOK && statusCode != fasthttp.StatusCreated:
		return fmt.Errorf("unexpected status code: %d, body: %s", statusCode, resp.Body())
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}
