package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"

	"github.com/fasthttp/router"
	"github.com/tickethub/whatsapp-bridge/internal/model"
	"github.com/tickethub/whatsapp-bridge/internal/repository"
	xhttp "github.com/tickethub/whatsapp-bridge/pkg/http"
	"github.com/tickethub/whatsapp-bridge/pkg/phone"
)

// MappingAdminStore is the slice of the mapping store the admin surface
// needs: inspection and hard removal with log cascade.
type MappingAdminStore interface {
	FindActive(ctx context.Context, phone string) ([]*model.Mapping, error)
	GetLog(ctx context.Context, mappingID int64) ([]*model.MessageLogEntry, error)
	Delete(ctx context.Context, id int64) error
	DeleteByTicketID(ctx context.Context, ticketID int64) error
}

// MappingHandler exposes the operator endpoints for inspecting a phone's
// mappings and removing them when the backend deletes a ticket outright.
type MappingHandler struct {
	store  MappingAdminStore
	secret string
}

func RegisterMappingRoutes(e *router.Group, h *MappingHandler) {
	e.GET("/mappings", h.ListMappings)
	e.GET("/mappings/{id}/log", h.GetMappingLog)
	e.DELETE("/mappings/{id}", h.DeleteMapping)
	e.DELETE("/tickets/{ticket_id}/mappings", h.DeleteTicketMappings)
}

func NewMappingHandler(store MappingAdminStore, secret string) *MappingHandler {
	return &MappingHandler{store: store, secret: secret}
}

func (h *MappingHandler) ListMappings(ctx *xhttp.RequestCtx) {
	if !h.authorized(ctx) {
		writeError(ctx, 401, "invalid webhook secret")
		return
	}

	p := phone.Canonical(string(ctx.QueryArgs().Peek("phone")))
	if !phone.Valid(p) {
		writeError(ctx, 400, "valid phone is required")
		return
	}

	mappings, err := h.store.FindActive(ctx, p)
	if err != nil {
		writeError(ctx, 500, "failed to list mappings")
		return
	}
	writeJSON(ctx, 200, mappings)
}

func (h *MappingHandler) GetMappingLog(ctx *xhttp.RequestCtx) {
	if !h.authorized(ctx) {
		writeError(ctx, 401, "invalid webhook secret")
		return
	}

	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid mapping id")
		return
	}

	entries, err := h.store.GetLog(ctx, id)
	if err != nil {
		writeError(ctx, 500, "failed to read message log")
		return
	}
	writeJSON(ctx, 200, entries)
}

func (h *MappingHandler) DeleteMapping(ctx *xhttp.RequestCtx) {
	if !h.authorized(ctx) {
		writeError(ctx, 401, "invalid webhook secret")
		return
	}

	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid mapping id")
		return
	}

	switch err := h.store.Delete(ctx, id); {
	case errors.Is(err, repository.ErrNotFound):
		writeError(ctx, 404, "mapping not found")
	case err != nil:
		writeError(ctx, 500, "failed to delete mapping")
	default:
		writeJSON(ctx, 200, map[string]bool{"deleted": true})
	}
}

func (h *MappingHandler) DeleteTicketMappings(ctx *xhttp.RequestCtx) {
	if !h.authorized(ctx) {
		writeError(ctx, 401, "invalid webhook secret")
		return
	}

	ticketID, err := pathInt64(ctx, "ticket_id")
	if err != nil {
		writeError(ctx, 400, "invalid ticket id")
		return
	}

	if err := h.store.DeleteByTicketID(ctx, ticketID); err != nil {
		writeError(ctx, 500, "failed to delete mappings")
		return
	}
	writeJSON(ctx, 200, map[string]bool{"deleted": true})
}

func (h *MappingHandler) authorized(ctx *xhttp.RequestCtx) bool {
	if h.secret == "" {
		return true
	}
	provided := ctx.Request.Header.Peek("X-Webhook-Secret")
	return subtle.ConstantTimeCompare(provided, []byte(h.secret)) == 1
}

func pathInt64(ctx *xhttp.RequestCtx, name string) (int64, error) {
	v, _ := ctx.UserValue(name).(string)
	return strconv.ParseInt(v, 10, 64)
}
