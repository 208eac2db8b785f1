// Package relay delivers agent-side ticket activity back to the customer's
// phone. The API publishes AgentEvents to a Redis stream; this processor
// consumes them, formats the outbound text and hands it to the WhatsApp
// transport.
package relay

import (
	"context"
	"encoding/json"

	"github.com/tickethub/whatsapp-bridge/internal/config"
	"github.com/tickethub/whatsapp-bridge/internal/gateway"
	"github.com/tickethub/whatsapp-bridge/internal/model"
	"github.com/tickethub/whatsapp-bridge/internal/queue"
	"github.com/tickethub/whatsapp-bridge/internal/template"
	"github.com/tickethub/whatsapp-bridge/pkg/logger"
	"github.com/tickethub/whatsapp-bridge/pkg/prom"
)

const (
	outcomeDelivered = "delivered"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
)

// MappingLookup is the slice of the mapping store the relay needs.
type MappingLookup interface {
	FindByTicketID(ctx context.Context, ticketID int64) (*model.Mapping, error)
	UpdateStatus(ctx context.Context, id int64, status model.MappingStatus) error
	LogMessage(ctx context.Context, mappingID int64, req model.LogMessageRequest) (*model.MessageLogEntry, error)
}

type Processor struct {
	mappings MappingLookup
	sender   gateway.MessagingGateway
	render   *template.Renderer
}

func NewProcessor(mappings MappingLookup, sender gateway.MessagingGateway, bridge config.Bridge) *Processor {
	return &Processor{
		mappings: mappings,
		sender:   sender,
		render:   template.NewRenderer(bridge),
	}
}

// Process handles one queued agent event. A nil return acks the message;
// an error leaves it pending for redelivery.
func (p *Processor) Process(ctx context.Context, queueMessage *queue.Message) error {
	var event model.AgentEvent
	if err := json.Unmarshal(queueMessage.Data, &event); err != nil {
		// Malformed payloads can never succeed; ack and count them.
		logger.Error("failed to unmarshal agent event", "message_id", queueMessage.ID, "error", err)
		prom.IncCounterVec(prom.SystemRelay, prom.MetricRelayDelivered, "invalid", outcomeSkipped)
		return nil
	}
	if err := event.Validate(); err != nil {
		logger.Error("invalid agent event", "message_id", queueMessage.ID, "error", err)
		prom.IncCounterVec(prom.SystemRelay, prom.MetricRelayDelivered, event.Event, outcomeSkipped)
		return nil
	}

	mapping, err := p.mappings.FindByTicketID(ctx, event.TicketID)
	if err != nil {
		prom.IncCounterVec(prom.SystemRelay, prom.MetricRelayDelivered, event.Event, outcomeFailed)
		return err
	}
	if mapping == nil {
		// Ticket was never bridged to a phone; nothing to deliver.
		logger.Debug("agent event for unbridged ticket", "ticket_id", event.TicketID, "event", event.Event)
		prom.IncCounterVec(prom.SystemRelay, prom.MetricRelayDelivered, event.Event, outcomeSkipped)
		return nil
	}

	switch event.Event {
	case model.EventReplyCreated:
		err = p.deliverReply(ctx, mapping, event)
	case model.EventTicketClosed:
		err = p.deliverClose(ctx, mapping, event)
	}

	if err != nil {
		prom.IncCounterVec(prom.SystemRelay, prom.MetricRelayDelivered, event.Event, outcomeFailed)
		return err
	}
	prom.IncCounterVec(prom.SystemRelay, prom.MetricRelayDelivered, event.Event, outcomeDelivered)
	return nil
}

// deliverReply forwards an agent reply to the customer. Only the currently
// open mapping receives replies; a customer who switched away gets them
// once they switch back and an agent answers again.
func (p *Processor) deliverReply(ctx context.Context, mapping *model.Mapping, event model.AgentEvent) error {
	if !mapping.IsOpen() {
		logger.Debug("reply for non-open mapping skipped",
			"ticket_id", event.TicketID, "mapping_status", mapping.Status)
		return nil
	}

	text := p.render.AgentReply(event.TicketNumber, event.Subject, event.Body)
	if err := p.sender.SendText(ctx, mapping.Phone, text); err != nil {
		return err
	}

	if _, err := p.mappings.LogMessage(ctx, mapping.ID, model.LogMessageRequest{
		Direction: model.DirectionOut,
		Content:   text,
		Status:    model.LogStatusSent,
	}); err != nil {
		logger.Warn("failed to log agent reply", "mapping_id", mapping.ID, "error", err)
	}

	logger.Info("agent reply delivered",
		"ticket_number", event.TicketNumber, "phone", mapping.Phone, "agent", event.AgentName)
	return nil
}

// deliverClose retires the mapping when an agent closes the ticket and
// tells the customer.
func (p *Processor) deliverClose(ctx context.Context, mapping *model.Mapping, event model.AgentEvent) error {
	if mapping.Status == model.MappingStatusClosed {
		return nil
	}

	if err := p.mappings.UpdateStatus(ctx, mapping.ID, model.MappingStatusClosed); err != nil {
		return err
	}

	text := p.render.ClosedTicket(event.TicketNumber, event.Subject)
	if err := p.sender.SendText(ctx, mapping.Phone, text); err != nil {
		// The mapping is already closed; a lost notification is acceptable.
		logger.Warn("close notification failed", "ticket_number", event.TicketNumber, "error", err)
		return nil
	}

	if _, err := p.mappings.LogMessage(ctx, mapping.ID, model.LogMessageRequest{
		Direction: model.DirectionOut,
		Content:   text,
		Status:    model.LogStatusClosed,
	}); err != nil {
		logger.Warn("failed to log close notification", "mapping_id", mapping.ID, "error", err)
	}

	logger.Info("ticket close relayed", "ticket_number", event.TicketNumber, "phone", mapping.Phone)
	return nil
}
