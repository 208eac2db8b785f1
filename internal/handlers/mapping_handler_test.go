package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tickethub/whatsapp-bridge/internal/model"
	"github.com/tickethub/whatsapp-bridge/internal/repository"
	xhttp "github.com/tickethub/whatsapp-bridge/pkg/http"
)

type stubMappingStore struct {
	mappings []*model.Mapping
	entries  []*model.MessageLogEntry

	findPhone       string
	deletedID       int64
	deletedTicketID int64
	deleteErr       error
}

func (s *stubMappingStore) FindActive(_ context.Context, phone string) ([]*model.Mapping, error) {
	s.findPhone = phone
	return s.mappings, nil
}

func (s *stubMappingStore) GetLog(_ context.Context, _ int64) ([]*model.MessageLogEntry, error) {
	return s.entries, nil
}

func (s *stubMappingStore) Delete(_ context.Context, id int64) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deletedID = id
	return nil
}

func (s *stubMappingStore) DeleteByTicketID(_ context.Context, ticketID int64) error {
	s.deletedTicketID = ticketID
	return nil
}

func adminCtx(method, uri string, params map[string]string) *xhttp.RequestCtx {
	ctx := &xhttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	for k, v := range params {
		ctx.SetUserValue(k, v)
	}
	return ctx
}

func TestMappingHandler_ListMappings(t *testing.T) {
	t.Run("returns the phone's active mappings", func(t *testing.T) {
		store := &stubMappingStore{mappings: []*model.Mapping{
			{ID: 1, Phone: "4915112345678", TicketNumber: "100001", Status: model.MappingStatusOpen},
		}}
		h := NewMappingHandler(store, "")

		ctx := adminCtx("GET", "/api/v1/mappings?phone=%2B49%20151%2012345678", nil)
		h.ListMappings(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		// Query phone is canonicalized before the lookup.
		assert.Equal(t, "4915112345678", store.findPhone)

		var got []*model.Mapping
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "100001", got[0].TicketNumber)
	})

	t.Run("missing phone is rejected", func(t *testing.T) {
		h := NewMappingHandler(&stubMappingStore{}, "")

		ctx := adminCtx("GET", "/api/v1/mappings", nil)
		h.ListMappings(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})
}

func TestMappingHandler_GetMappingLog(t *testing.T) {
	store := &stubMappingStore{entries: []*model.MessageLogEntry{
		{ID: 1, MappingID: 7, Direction: model.DirectionIn, Content: "Hallo", Status: model.LogStatusReceived},
	}}
	h := NewMappingHandler(store, "")

	ctx := adminCtx("GET", "/api/v1/mappings/7/log", map[string]string{"id": "7"})
	h.GetMappingLog(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())
	var got []*model.MessageLogEntry
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Hallo", got[0].Content)
}

func TestMappingHandler_DeleteMapping(t *testing.T) {
	t.Run("deletes by id", func(t *testing.T) {
		store := &stubMappingStore{}
		h := NewMappingHandler(store, "")

		ctx := adminCtx("DELETE", "/api/v1/mappings/7", map[string]string{"id": "7"})
		h.DeleteMapping(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		assert.Equal(t, int64(7), store.deletedID)
	})

	t.Run("unknown mapping is 404", func(t *testing.T) {
		store := &stubMappingStore{deleteErr: repository.ErrNotFound}
		h := NewMappingHandler(store, "")

		ctx := adminCtx("DELETE", "/api/v1/mappings/99", map[string]string{"id": "99"})
		h.DeleteMapping(ctx)

		assert.Equal(t, 404, ctx.Response.StatusCode())
	})

	t.Run("store failure is 500", func(t *testing.T) {
		store := &stubMappingStore{deleteErr: errors.New("db down")}
		h := NewMappingHandler(store, "")

		ctx := adminCtx("DELETE", "/api/v1/mappings/7", map[string]string{"id": "7"})
		h.DeleteMapping(ctx)

		assert.Equal(t, 500, ctx.Response.StatusCode())
	})

	t.Run("garbage id is rejected", func(t *testing.T) {
		h := NewMappingHandler(&stubMappingStore{}, "")

		ctx := adminCtx("DELETE", "/api/v1/mappings/abc", map[string]string{"id": "abc"})
		h.DeleteMapping(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})
}

func TestMappingHandler_DeleteTicketMappings(t *testing.T) {
	store := &stubMappingStore{}
	h := NewMappingHandler(store, "")

	ctx := adminCtx("DELETE", "/api/v1/tickets/42/mappings", map[string]string{"ticket_id": "42"})
	h.DeleteTicketMappings(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())
	assert.Equal(t, int64(42), store.deletedTicketID)
}

func TestMappingHandler_Secret(t *testing.T) {
	store := &stubMappingStore{}
	h := NewMappingHandler(store, "s3cret")

	ctx := adminCtx("DELETE", "/api/v1/mappings/7", map[string]string{"id": "7"})
	h.DeleteMapping(ctx)

	assert.Equal(t, 401, ctx.Response.StatusCode())
	assert.Zero(t, store.deletedID)

	ctx = adminCtx("DELETE", "/api/v1/mappings/7", map[string]string{"id": "7"})
	ctx.Request.Header.Set("X-Webhook-Secret", "s3cret")
	h.DeleteMapping(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())
	assert.Equal(t, int64(7), store.deletedID)
}
