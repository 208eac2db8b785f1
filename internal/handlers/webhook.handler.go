package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"

	"github.com/fasthttp/router"
	"github.com/tickethub/whatsapp-bridge/internal/model"
	xhttp "github.com/tickethub/whatsapp-bridge/pkg/http"
)

// InboundRouter decides what one inbound customer message does.
type InboundRouter interface {
	Route(ctx context.Context, msg model.InboundMessage) model.RouterResult
}

// CleanupRunner sweeps open mappings whose ticket is gone.
type CleanupRunner interface {
	Run(ctx context.Context) model.CleanupStats
}

type WebhookHandler struct {
	router  InboundRouter
	cleaner CleanupRunner
	secret  string
}

func RegisterWebhookRoutes(e *router.Group, h *WebhookHandler) {
	e.POST("/webhook", h.HandleWebhook)
}

func NewWebhookHandler(inbound InboundRouter, cleaner CleanupRunner, secret string) *WebhookHandler {
	return &WebhookHandler{
		router:  inbound,
		cleaner: cleaner,
		secret:  secret,
	}
}

const (
	eventMessageReceived    = "message.received"
	eventMaintenanceCleanup = "maintenance.cleanup"
)

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Phone     string `json:"phone"`
		Text      string `json:"text"`
		Type      string `json:"type"`
		Name      string `json:"name"`
		MessageID string `json:"messageId"`
	} `json:"data"`
}

func (h *WebhookHandler) HandleWebhook(ctx *xhttp.RequestCtx) {
	if !h.authorized(ctx) {
		writeError(ctx, 401, "invalid webhook secret")
		return
	}

	var payload webhookPayload
	if err := readJSON(ctx, &payload); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	switch payload.Event {
	case eventMessageReceived:
		h.handleMessage(ctx, payload)
	case eventMaintenanceCleanup:
		stats := h.cleaner.Run(ctx)
		writeJSON(ctx, 200, stats)
	default:
		writeError(ctx, 400, "unknown event: "+payload.Event)
	}
}

func (h *WebhookHandler) handleMessage(ctx *xhttp.RequestCtx, payload webhookPayload) {
	if payload.Data.Phone == "" {
		writeError(ctx, 400, "phone is required")
		return
	}

	messageType := model.MessageType(payload.Data.Type)
	if messageType == "" {
		messageType = model.TypeText
	}

	result := h.router.Route(ctx, model.InboundMessage{
		Phone:             payload.Data.Phone,
		Text:              payload.Data.Text,
		Type:              messageType,
		ExternalMessageID: payload.Data.MessageID,
		DisplayName:       payload.Data.Name,
	})

	status := 200
	if !result.Success {
		status = 400
	}
	writeJSON(ctx, status, result)
}

// authorized compares the shared secret in constant time. An empty configured
// secret disables the check (local development).
func (h *WebhookHandler) authorized(ctx *xhttp.RequestCtx) bool {
	if h.secret == "" {
		return true
	}
	provided := ctx.Request.Header.Peek("X-Webhook-Secret")
	return subtle.ConstantTimeCompare(provided, []byte(h.secret)) == 1
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}
