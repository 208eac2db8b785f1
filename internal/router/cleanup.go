package router

import (
	"context"

	"github.com/tickethub/whatsapp-bridge/internal/gateway"
	"github.com/tickethub/whatsapp-bridge/internal/model"
	"github.com/tickethub/whatsapp-bridge/pkg/logger"
)

// CleanupStore is the slice of the mapping store the sweep needs.
type CleanupStore interface {
	ListActive(ctx context.Context) ([]*model.Mapping, error)
	UpdateStatus(ctx context.Context, id int64, status model.MappingStatus) error
}

// Cleaner retires open and inactive mappings whose backend ticket was closed
// or deleted out-of-band, so stale mappings cannot swallow new requests
// forever.
type Cleaner struct {
	mappings CleanupStore
	tickets  gateway.TicketGateway
}

func NewCleaner(mappings CleanupStore, tickets gateway.TicketGateway) *Cleaner {
	return &Cleaner{mappings: mappings, tickets: tickets}
}

func (c *Cleaner) Run(ctx context.Context) model.CleanupStats {
	stats := model.CleanupStats{}

	active, err := c.mappings.ListActive(ctx)
	if err != nil {
		logger.Error("cleanup sweep failed to list mappings", "error", err)
		stats.Errors++
		return stats
	}

	for _, m := range active {
		stats.Checked++

		ticket, err := c.tickets.GetTicket(ctx, m.TicketID)
		switch {
		case err == gateway.ErrTicketNotFound:
			// ticket is gone, retire the mapping below
		case err != nil:
			logger.Warn("cleanup could not check ticket", "ticket_id", m.TicketID, "error", err)
			stats.Errors++
			continue
		case !ticket.IsClosed():
			continue
		}

		if err := c.mappings.UpdateStatus(ctx, m.ID, model.MappingStatusClosed); err != nil {
			logger.Warn("cleanup could not close mapping", "mapping_id", m.ID, "error", err)
			stats.Errors++
			continue
		}
		stats.Cleaned++
		logger.Info("cleanup closed orphaned mapping",
			"mapping_id", m.ID, "phone", m.Phone, "ticket_id", m.TicketID)
	}

	logger.Info("cleanup sweep finished",
		"checked", stats.Checked, "cleaned", stats.Cleaned, "errors", stats.Errors)
	return stats
}
