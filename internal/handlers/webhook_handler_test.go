package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tickethub/whatsapp-bridge/internal/model"
	xhttp "github.com/tickethub/whatsapp-bridge/pkg/http"
)

type stubRouter struct {
	got    *model.InboundMessage
	result model.RouterResult
}

func (s *stubRouter) Route(_ context.Context, msg model.InboundMessage) model.RouterResult {
	s.got = &msg
	return s.result
}

type stubCleaner struct {
	ran   bool
	stats model.CleanupStats
}

func (s *stubCleaner) Run(_ context.Context) model.CleanupStats {
	s.ran = true
	return s.stats
}

func newRequestCtx(body string, headers map[string]string) *xhttp.RequestCtx {
	ctx := &xhttp.RequestCtx{}
	ctx.Request.Header.SetMethod("POST")
	ctx.Request.SetRequestURI("/api/v1/webhook")
	ctx.Request.SetBodyString(body)
	for k, v := range headers {
		ctx.Request.Header.Set(k, v)
	}
	return ctx
}

func messagePayload(phone, text string) string {
	b, _ := json.Marshal(map[string]any{
		"event": "message.received",
		"data": map[string]any{
			"phone":     phone,
			"text":      text,
			"type":      "text",
			"name":      "Max Mustermann",
			"messageId": "wamid.1",
		},
	})
	return string(b)
}

func TestWebhookHandler_MessageReceived(t *testing.T) {
	t.Run("routes the message and returns the result", func(t *testing.T) {
		r := &stubRouter{result: model.RouterResult{
			Success: true, Action: model.ActionCreated, TicketID: 42, TicketNumber: "100042",
		}}
		h := NewWebhookHandler(r, &stubCleaner{}, "")

		ctx := newRequestCtx(messagePayload("+49 151 12345678", "Mein Drucker streikt"), nil)
		h.HandleWebhook(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		require.NotNil(t, r.got)
		assert.Equal(t, "+49 151 12345678", r.got.Phone)
		assert.Equal(t, "Mein Drucker streikt", r.got.Text)
		assert.Equal(t, model.TypeText, r.got.Type)
		assert.Equal(t, "Max Mustermann", r.got.DisplayName)
		assert.Equal(t, "wamid.1", r.got.ExternalMessageID)

		var result model.RouterResult
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &result))
		assert.Equal(t, model.ActionCreated, result.Action)
		assert.Equal(t, "100042", result.TicketNumber)
	})

	t.Run("failed routing returns 400 with the result body", func(t *testing.T) {
		r := &stubRouter{result: model.RouterResult{
			Success: false, Action: model.ActionCreated, Error: "ticket creation failed",
		}}
		h := NewWebhookHandler(r, &stubCleaner{}, "")

		ctx := newRequestCtx(messagePayload("4915112345678", "Hallo"), nil)
		h.HandleWebhook(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})

	t.Run("missing type defaults to text", func(t *testing.T) {
		r := &stubRouter{result: model.RouterResult{Success: true, Action: model.ActionUpdated}}
		h := NewWebhookHandler(r, &stubCleaner{}, "")

		ctx := newRequestCtx(`{"event":"message.received","data":{"phone":"4915112345678","text":"Hallo"}}`, nil)
		h.HandleWebhook(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		require.NotNil(t, r.got)
		assert.Equal(t, model.TypeText, r.got.Type)
	})

	t.Run("missing phone is rejected", func(t *testing.T) {
		r := &stubRouter{}
		h := NewWebhookHandler(r, &stubCleaner{}, "")

		ctx := newRequestCtx(`{"event":"message.received","data":{"text":"Hallo"}}`, nil)
		h.HandleWebhook(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
		assert.Nil(t, r.got)
	})
}

func TestWebhookHandler_Secret(t *testing.T) {
	t.Run("wrong secret is rejected", func(t *testing.T) {
		r := &stubRouter{}
		h := NewWebhookHandler(r, &stubCleaner{}, "s3cret")

		ctx := newRequestCtx(messagePayload("4915112345678", "Hallo"),
			map[string]string{"X-Webhook-Secret": "wrong"})
		h.HandleWebhook(ctx)

		assert.Equal(t, 401, ctx.Response.StatusCode())
		assert.Nil(t, r.got)
	})

	t.Run("missing secret header is rejected", func(t *testing.T) {
		h := NewWebhookHandler(&stubRouter{}, &stubCleaner{}, "s3cret")

		ctx := newRequestCtx(messagePayload("4915112345678", "Hallo"), nil)
		h.HandleWebhook(ctx)

		assert.Equal(t, 401, ctx.Response.StatusCode())
	})

	t.Run("matching secret passes", func(t *testing.T) {
		r := &stubRouter{result: model.RouterResult{Success: true, Action: model.ActionUpdated}}
		h := NewWebhookHandler(r, &stubCleaner{}, "s3cret")

		ctx := newRequestCtx(messagePayload("4915112345678", "Hallo"),
			map[string]string{"X-Webhook-Secret": "s3cret"})
		h.HandleWebhook(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
	})
}

func TestWebhookHandler_Cleanup(t *testing.T) {
	c := &stubCleaner{stats: model.CleanupStats{Checked: 4, Cleaned: 2, Errors: 1}}
	h := NewWebhookHandler(&stubRouter{}, c, "")

	ctx := newRequestCtx(`{"event":"maintenance.cleanup"}`, nil)
	h.HandleWebhook(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())
	assert.True(t, c.ran)

	var stats model.CleanupStats
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &stats))
	assert.Equal(t, 2, stats.Cleaned)
}

func TestWebhookHandler_BadRequests(t *testing.T) {
	h := NewWebhookHandler(&stubRouter{}, &stubCleaner{}, "")

	t.Run("malformed JSON", func(t *testing.T) {
		ctx := newRequestCtx(`{not json`, nil)
		h.HandleWebhook(ctx)
		assert.Equal(t, 400, ctx.Response.StatusCode())
	})

	t.Run("unknown event", func(t *testing.T) {
		ctx := newRequestCtx(`{"event":"message.deleted","data":{}}`, nil)
		h.HandleWebhook(ctx)
		assert.Equal(t, 400, ctx.Response.StatusCode())
	})
}
