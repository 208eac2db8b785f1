package handlers

import (
	"context"
	"crypto/subtle"

	"github.com/fasthttp/router"
	"github.com/tickethub/whatsapp-bridge/internal/model"
	xhttp "github.com/tickethub/whatsapp-bridge/pkg/http"
)

// EventPublisher appends one agent event to the relay stream.
type EventPublisher interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

// EventHandler accepts agent-side ticket events (reply created, ticket
// closed) from the ticketing backend and queues them for the relay.
type EventHandler struct {
	queue  EventPublisher
	secret string
}

func RegisterEventRoutes(e *router.Group, h *EventHandler) {
	e.POST("/events", h.CreateEvent)
}

func NewEventHandler(queue EventPublisher, secret string) *EventHandler {
	return &EventHandler{queue: queue, secret: secret}
}

type createEventResponse struct {
	Queued    bool   `json:"queued"`
	MessageID string `json:"message_id"`
}

func (h *EventHandler) CreateEvent(ctx *xhttp.RequestCtx) {
	if h.secret != "" {
		provided := ctx.Request.Header.Peek("X-Webhook-Secret")
		if subtle.ConstantTimeCompare(provided, []byte(h.secret)) != 1 {
			writeError(ctx, 401, "invalid webhook secret")
			return
		}
	}

	var event model.AgentEvent
	if err := readJSON(ctx, &event); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	if err := event.Validate(); err != nil {
		writeError(ctx, 400, err.Error())
		return
	}

	id, err := h.queue.PublishJSON(ctx, event, map[string]string{"event": event.Event})
	if err != nil {
		writeError(ctx, 500, "failed to queue event")
		return
	}

	writeJSON(ctx, 202, createEventResponse{Queued: true, MessageID: id})
}
