// Package router implements the inbound decision tree: every webhook
// message from the channel ends in exactly one action, from rejecting an
// attachment to creating a fresh ticket.
package router

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tickethub/whatsapp-bridge/internal/command"
	"github.com/tickethub/whatsapp-bridge/internal/config"
	"github.com/tickethub/whatsapp-bridge/internal/gateway"
	"github.com/tickethub/whatsapp-bridge/internal/model"
	"github.com/tickethub/whatsapp-bridge/internal/template"
	"github.com/tickethub/whatsapp-bridge/pkg/logger"
	"github.com/tickethub/whatsapp-bridge/pkg/phone"
	"github.com/tickethub/whatsapp-bridge/pkg/prom"
)

const (
	fallbackContactName = "WhatsApp User"
	subjectPrefix       = "WhatsApp Anfrage von "
	closedByCustomer    = "[Ticket geschlossen durch Kunde]"
	closeFailedNote     = "[WhatsApp: Kunde hat SCHLIESSEN gesendet, automatisches Schliessen ist fehlgeschlagen. Bitte manuell schliessen.]"
)

// MappingStore is the persistence surface the router needs. Read methods
// return nil (not an error) when nothing matches.
type MappingStore interface {
	FindOpen(ctx context.Context, phone string) (*model.Mapping, error)
	FindActive(ctx context.Context, phone string) ([]*model.Mapping, error)
	FindByTicketNumber(ctx context.Context, phone, ticketNumber string) (*model.Mapping, error)
	Create(ctx context.Context, m *model.Mapping) (*model.Mapping, error)
	UpdateStatus(ctx context.Context, id int64, status model.MappingStatus) error
	Touch(ctx context.Context, id int64) error
	SwitchActiveTicket(ctx context.Context, phone string, targetID int64) error
	LogMessage(ctx context.Context, mappingID int64, req model.LogMessageRequest) (*model.MessageLogEntry, error)
}

// OwnershipVerifier decides whether a phone may act on a ticket.
type OwnershipVerifier interface {
	Owns(ctx context.Context, senderPhone string, m *model.Mapping, owner *gateway.User) bool
}

type Router struct {
	mappings MappingStore
	tickets  gateway.TicketGateway
	users    gateway.UserDirectory
	sender   gateway.MessagingGateway
	owns     OwnershipVerifier
	render   *template.Renderer
	bridge   config.Bridge
	dedup    *Deduper
	locks    *phoneLocks
}

func New(
	mappings MappingStore,
	tickets gateway.TicketGateway,
	users gateway.UserDirectory,
	sender gateway.MessagingGateway,
	owns OwnershipVerifier,
	bridge config.Bridge,
	dedup *Deduper,
) *Router {
	return &Router{
		mappings: mappings,
		tickets:  tickets,
		users:    users,
		sender:   sender,
		owns:     owns,
		render:   template.NewRenderer(bridge),
		bridge:   bridge,
		dedup:    dedup,
		locks:    newPhoneLocks(),
	}
}

// Route processes one inbound message end to end. It never panics outward
// and always returns a result describing what happened.
func (r *Router) Route(ctx context.Context, msg model.InboundMessage) model.RouterResult {
	start := time.Now()

	if err := msg.Validate(); err != nil {
		return fail("", err.Error())
	}
	msg.Phone = phone.Canonical(msg.Phone)
	if !phone.Valid(msg.Phone) {
		return fail("", "invalid phone number")
	}

	if !r.dedup.Acquire(msg.ExternalMessageID) {
		logger.Info("duplicate delivery ignored", "message_id", msg.ExternalMessageID, "phone", msg.Phone)
		return model.RouterResult{Success: true, Action: model.ActionDuplicateIgnored}
	}

	r.locks.Lock(msg.Phone)
	defer r.locks.Unlock(msg.Phone)

	res := r.route(ctx, msg)
	if !res.Success {
		r.dedup.Release(msg.ExternalMessageID)
	}

	prom.IncCounterVec(prom.SystemRouter, prom.MetricInboundActions, res.Action, strconv.FormatBool(res.Success))
	prom.ObserveHistogramVec(prom.SystemRouter, prom.MetricInboundDuration, time.Since(start).Seconds(), res.Action)

	logger.Info("inbound message routed",
		"phone", msg.Phone,
		"action", res.Action,
		"success", res.Success,
		"ticket_number", res.TicketNumber,
		"duration_ms", time.Since(start).Milliseconds())

	return res
}

// route is the ordered decision tree. The rules are checked top to bottom;
// the first match wins.
func (r *Router) route(ctx context.Context, msg model.InboundMessage) model.RouterResult {
	open, err := r.mappings.FindOpen(ctx, msg.Phone)
	if err != nil {
		return fail("", "mapping lookup failed: "+err.Error())
	}

	switch {
	case msg.Type.IsMedia():
		return r.handleMedia(ctx, msg, open)
	case command.IsKeyword(msg.Text, r.bridge.CloseKeyword):
		return r.handleClose(ctx, msg, open)
	case command.IsKeyword(msg.Text, r.bridge.NewKeyword):
		return r.handleNew(ctx, msg, open)
	case command.IsKeyword(msg.Text, r.bridge.ListKeyword):
		return r.handleList(ctx, msg)
	}

	if number := command.ParseSwitch(msg.Text, r.bridge.SwitchKeyword); number != "" {
		return r.handleSwitch(ctx, msg, number)
	}
	for _, kw := range []string{
		r.bridge.SwitchKeyword, r.bridge.CloseKeyword, r.bridge.NewKeyword, r.bridge.ListKeyword,
	} {
		// A control word followed by trailing text is a malformed command,
		// not ticket content.
		if command.StartsWithControlWord(msg.Text, kw) {
			return r.handleFormatError(ctx, msg, kw)
		}
	}

	if open == nil && command.IsSignalWord(msg.Text, r.bridge.SignalWords,
		r.bridge.CloseKeyword, r.bridge.NewKeyword, r.bridge.ListKeyword) {
		// "Danke" after a close must not open a fresh ticket.
		logger.Debug("signal word ignored", "phone", msg.Phone, "text", msg.Text)
		return model.RouterResult{Success: true, Action: model.ActionNoOpenTicket}
	}

	if open != nil {
		return r.handleUpdate(ctx, msg, open)
	}
	return r.handleCreate(ctx, msg)
}

func (r *Router) handleMedia(ctx context.Context, msg model.InboundMessage, open *model.Mapping) model.RouterResult {
	// Without a mapping the NEU keyword stands in for the ticket number, in
	// the reply and in the result alike.
	ticketNumber := r.bridge.NewKeyword
	res := model.RouterResult{Success: true, Action: model.ActionMediaResponse}

	if open != nil {
		ticketNumber = open.TicketNumber
		res.TicketID = open.TicketID
		r.logIn(ctx, open.ID, msg.ExternalMessageID,
			"[Medien-Nachricht: "+string(msg.Type)+"]", model.LogStatusMediaRejected)
	}
	res.TicketNumber = ticketNumber

	r.send(ctx, mappingID(open), msg.Phone, r.render.MediaResponse(ticketNumber))
	return res
}

func (r *Router) handleClose(ctx context.Context, msg model.InboundMessage, open *model.Mapping) model.RouterResult {
	if open == nil {
		r.send(ctx, 0, msg.Phone, r.render.NoOpenTicket())
		return model.RouterResult{Success: true, Action: model.ActionNoOpenTicket}
	}

	ticket, err := r.tickets.GetTicket(ctx, open.TicketID)
	if err == gateway.ErrTicketNotFound {
		// The backend lost the ticket; drop the mapping so the phone is not
		// stuck, but report the failure.
		r.closeMapping(ctx, open.ID)
		return failTicket(model.ActionTicketClosed, "ticket no longer exists", open)
	}
	if err != nil {
		return failTicket(model.ActionCloseDeferred, err.Error(), open)
	}

	if err := r.tickets.CloseTicket(ctx, open.TicketID); err != nil {
		// Keep the mapping open so the customer can try again; the note
		// puts the failed attempt in front of an agent meanwhile.
		if nerr := r.tickets.PostNote(ctx, open.TicketID, closeFailedNote); nerr != nil {
			logger.Warn("failed to note deferred close", "ticket_id", open.TicketID, "error", nerr)
		}
		r.logIn(ctx, open.ID, msg.ExternalMessageID, msg.Text, model.LogStatusError)
		r.send(ctx, open.ID, msg.Phone, r.render.CloseDeferred(open.TicketNumber))
		return failTicket(model.ActionCloseDeferred, err.Error(), open)
	}

	r.closeMapping(ctx, open.ID)
	r.logIn(ctx, open.ID, msg.ExternalMessageID, closedByCustomer, model.LogStatusClosed)
	r.send(ctx, open.ID, msg.Phone, r.render.ClosedTicket(open.TicketNumber, ticket.Subject))

	return model.RouterResult{
		Success:      true,
		Action:       model.ActionTicketClosed,
		TicketID:     open.TicketID,
		TicketNumber: open.TicketNumber,
	}
}

func (r *Router) handleNew(ctx context.Context, msg model.InboundMessage, open *model.Mapping) model.RouterResult {
	if open == nil {
		r.send(ctx, 0, msg.Phone, r.render.NoOpenTicket())
		return model.RouterResult{Success: true, Action: model.ActionNoOpenTicket}
	}

	if err := r.mappings.UpdateStatus(ctx, open.ID, model.MappingStatusUnlinked); err != nil {
		return failTicket(model.ActionMappingUnlinked, err.Error(), open)
	}
	r.logIn(ctx, open.ID, msg.ExternalMessageID, msg.Text, model.LogStatusReceived)
	r.send(ctx, open.ID, msg.Phone, r.render.Unlinked(open.TicketNumber))

	return model.RouterResult{
		Success:      true,
		Action:       model.ActionMappingUnlinked,
		TicketID:     open.TicketID,
		TicketNumber: open.TicketNumber,
	}
}

// handleList gathers every open ticket reachable for the phone: the bridged
// ones via active mappings and, through the backend, tickets owned by the
// user behind the phone that never passed through the bridge. Deduplicated
// by ticket id, oldest ticket first.
func (r *Router) handleList(ctx context.Context, msg model.InboundMessage) model.RouterResult {
	active, err := r.mappings.FindActive(ctx, msg.Phone)
	if err != nil {
		return fail(model.ActionTicketsListed, err.Error())
	}

	seen := make(map[int64]*gateway.Ticket)
	for _, m := range active {
		ticket, err := r.tickets.GetTicket(ctx, m.TicketID)
		if err == gateway.ErrTicketNotFound {
			continue
		}
		if err != nil {
			logger.Warn("listing could not check ticket", "ticket_id", m.TicketID, "error", err)
			continue
		}
		if ticket.IsClosed() {
			continue
		}
		seen[ticket.ID] = ticket
	}

	user, err := r.users.FindUserByPhone(ctx, phone.Variants(msg.Phone))
	switch {
	case err == gateway.ErrUserNotFound:
	case err != nil:
		logger.Warn("listing could not resolve user", "phone", msg.Phone, "error", err)
	default:
		owned, err := r.tickets.ListOpenTickets(ctx, user.ID)
		if err != nil {
			logger.Warn("listing could not fetch backend tickets", "user_id", user.ID, "error", err)
		}
		for _, t := range owned {
			if _, ok := seen[t.ID]; !ok && !t.IsClosed() {
				seen[t.ID] = t
			}
		}
	}

	tickets := make([]*gateway.Ticket, 0, len(seen))
	for _, t := range seen {
		tickets = append(tickets, t)
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].Created.Before(tickets[j].Created) })

	r.send(ctx, 0, msg.Phone, r.render.TicketList(tickets))
	return model.RouterResult{Success: true, Action: model.ActionTicketsListed}
}

func (r *Router) handleSwitch(ctx context.Context, msg model.InboundMessage, number string) model.RouterResult {
	target, err := r.mappings.FindByTicketNumber(ctx, msg.Phone, number)
	if err != nil {
		return fail(model.ActionTicketSwitched, err.Error())
	}

	if target != nil {
		return r.switchToMapping(ctx, msg, target)
	}

	// The phone never messaged this ticket before. Allow attaching to it
	// when the backend confirms the ticket belongs to the sender.
	ticket, err := r.tickets.GetTicketByNumber(ctx, number)
	if err == gateway.ErrTicketNotFound {
		r.send(ctx, 0, msg.Phone, r.render.SwitchError(number))
		return fail(model.ActionTicketSwitched, "ticket not found")
	}
	if err != nil {
		return fail(model.ActionTicketSwitched, err.Error())
	}
	if ticket.IsClosed() {
		r.send(ctx, 0, msg.Phone, r.render.SwitchClosed(number))
		return fail(model.ActionTicketSwitched, "ticket is closed")
	}
	if !r.owns.Owns(ctx, msg.Phone, nil, r.lookupOwner(ctx, ticket.UserID)) {
		logger.Warn("switch refused, ticket not owned by sender", "phone", msg.Phone, "ticket_number", number)
		r.send(ctx, 0, msg.Phone, r.render.SwitchError(number))
		return fail(model.ActionTicketSwitched, "ticket not owned by sender")
	}

	created, err := r.mappings.Create(ctx, &model.Mapping{
		Phone:          msg.Phone,
		PhoneFormatted: phone.Format(msg.Phone),
		ContactName:    sanitizeName(msg.DisplayName),
		TicketID:       ticket.ID,
		TicketNumber:   ticket.Number,
		UserID:         &ticket.UserID,
		Status:         model.MappingStatusInactive,
	})
	if err != nil {
		return fail(model.ActionTicketSwitched, err.Error())
	}
	return r.finishSwitch(ctx, msg, created, ticket)
}

func (r *Router) switchToMapping(ctx context.Context, msg model.InboundMessage, target *model.Mapping) model.RouterResult {
	ticket, err := r.tickets.GetTicket(ctx, target.TicketID)
	if err == gateway.ErrTicketNotFound {
		r.closeMapping(ctx, target.ID)
		r.send(ctx, 0, msg.Phone, r.render.SwitchError(target.TicketNumber))
		return failTicket(model.ActionTicketSwitched, "ticket no longer exists", target)
	}
	if err != nil {
		return failTicket(model.ActionTicketSwitched, err.Error(), target)
	}
	if ticket.IsClosed() {
		r.closeMapping(ctx, target.ID)
		r.send(ctx, 0, msg.Phone, r.render.SwitchClosed(target.TicketNumber))
		return failTicket(model.ActionTicketSwitched, "ticket is closed", target)
	}
	if !r.owns.Owns(ctx, msg.Phone, target, r.lookupOwner(ctx, ticket.UserID)) {
		r.send(ctx, 0, msg.Phone, r.render.SwitchError(target.TicketNumber))
		return failTicket(model.ActionTicketSwitched, "ticket not owned by sender", target)
	}
	return r.finishSwitch(ctx, msg, target, ticket)
}

func (r *Router) finishSwitch(ctx context.Context, msg model.InboundMessage, target *model.Mapping, ticket *gateway.Ticket) model.RouterResult {
	if err := r.mappings.SwitchActiveTicket(ctx, msg.Phone, target.ID); err != nil {
		return failTicket(model.ActionTicketSwitched, err.Error(), target)
	}

	r.logIn(ctx, target.ID, msg.ExternalMessageID, msg.Text, model.LogStatusReceived)
	r.send(ctx, target.ID, msg.Phone, r.render.SwitchSuccess(target.TicketNumber, ticket.Subject))

	return model.RouterResult{
		Success:      true,
		Action:       model.ActionTicketSwitched,
		TicketID:     target.TicketID,
		TicketNumber: target.TicketNumber,
	}
}

// lookupOwner fetches the full owner record so the verifier can compare
// the stored phone and email, not just the id.
func (r *Router) lookupOwner(ctx context.Context, userID int64) *gateway.User {
	owner, err := r.users.GetUser(ctx, userID)
	if err != nil {
		if err != gateway.ErrUserNotFound {
			logger.Warn("owner lookup failed", "user_id", userID, "error", err)
		}
		return &gateway.User{ID: userID}
	}
	return owner
}

func (r *Router) handleFormatError(ctx context.Context, msg model.InboundMessage, keyword string) model.RouterResult {
	expected := keyword
	if keyword == r.bridge.SwitchKeyword {
		expected = keyword + " #[Ticketnummer]"
	}
	r.send(ctx, 0, msg.Phone, r.render.FormatError(keyword, expected))
	return model.RouterResult{Success: true, Action: model.ActionFormatError}
}

func (r *Router) handleUpdate(ctx context.Context, msg model.InboundMessage, open *model.Mapping) model.RouterResult {
	ticket, err := r.tickets.GetTicket(ctx, open.TicketID)
	if err == gateway.ErrTicketNotFound || (err == nil && ticket.IsClosed()) {
		// The agent closed or deleted the ticket out-of-band. Retire the
		// stale mapping and treat the message as the start of a new request.
		logger.Info("open mapping points at dead ticket, creating new one",
			"phone", msg.Phone, "ticket_id", open.TicketID)
		r.closeMapping(ctx, open.ID)
		return r.handleCreate(ctx, msg)
	}
	if err != nil {
		return failTicket(model.ActionUpdated, err.Error(), open)
	}

	if err := r.tickets.PostMessage(ctx, open.TicketID, msg.Text); err != nil {
		// Fall back to an internal note so the customer's text is not lost
		// when the public thread rejects the append.
		if nerr := r.tickets.PostNote(ctx, open.TicketID, msg.Text); nerr != nil {
			return failTicket(model.ActionUpdated, err.Error(), open)
		}
		logger.Warn("thread append failed, posted as internal note",
			"ticket_id", open.TicketID, "error", err)
	}

	if err := r.mappings.Touch(ctx, open.ID); err != nil {
		logger.Warn("failed to touch mapping", "mapping_id", open.ID, "error", err)
	}
	r.logIn(ctx, open.ID, msg.ExternalMessageID, msg.Text, model.LogStatusReceived)

	if r.bridge.AckOnUpdate {
		r.send(ctx, open.ID, msg.Phone, r.render.UpdateAck(open.TicketNumber))
	}

	return model.RouterResult{
		Success:      true,
		Action:       model.ActionUpdated,
		TicketID:     open.TicketID,
		TicketNumber: open.TicketNumber,
	}
}

func (r *Router) handleCreate(ctx context.Context, msg model.InboundMessage) model.RouterResult {
	name := sanitizeName(msg.DisplayName)
	user, err := r.resolveUser(ctx, msg, name)
	if err != nil {
		return fail(model.ActionCreated, "user resolution failed: "+err.Error())
	}

	ticket, err := r.tickets.CreateTicket(ctx, gateway.CreateTicketRequest{
		UserID:  user.ID,
		Subject: subjectPrefix + name,
		Message: msg.Text,
		TopicID: r.bridge.DefaultTopicID,
		DeptID:  r.bridge.DefaultDeptID,
		Source:  "API",
	})
	if err != nil {
		return fail(model.ActionCreated, "ticket creation failed: "+err.Error())
	}

	created, err := r.mappings.Create(ctx, &model.Mapping{
		Phone:          msg.Phone,
		PhoneFormatted: phone.Format(msg.Phone),
		ContactName:    name,
		TicketID:       ticket.ID,
		TicketNumber:   ticket.Number,
		UserID:         &user.ID,
		Status:         model.MappingStatusOpen,
	})
	if err != nil {
		return fail(model.ActionCreated, "mapping creation failed: "+err.Error())
	}

	r.logIn(ctx, created.ID, msg.ExternalMessageID, msg.Text, model.LogStatusReceived)

	if r.bridge.AutoResponse {
		r.send(ctx, created.ID, msg.Phone, r.render.Confirmation(name, ticket.Number))
	}

	return model.RouterResult{
		Success:      true,
		Action:       model.ActionCreated,
		TicketID:     ticket.ID,
		TicketNumber: ticket.Number,
	}
}

// resolveUser finds the backend user for a phone: by phone variants first,
// then by the synthesized channel address, creating one as a last resort.
func (r *Router) resolveUser(ctx context.Context, msg model.InboundMessage, name string) (*gateway.User, error) {
	user, err := r.users.FindUserByPhone(ctx, phone.Variants(msg.Phone))
	if err == nil {
		return user, nil
	}
	if err != gateway.ErrUserNotFound {
		return nil, err
	}

	address := r.bridge.ChannelAddress(msg.Phone)
	user, err = r.users.FindUserByEmail(ctx, address)
	if err == nil {
		return user, nil
	}
	if err != gateway.ErrUserNotFound {
		return nil, err
	}

	return r.users.CreateUser(ctx, gateway.CreateUserRequest{
		Name:  name,
		Email: address,
		Phone: "+" + msg.Phone,
	})
}

// send delivers an outbound text best-effort and logs it against the
// mapping when there is one. Delivery failures never fail the routing.
func (r *Router) send(ctx context.Context, mappingID int64, phoneNumber, text string) {
	if err := r.sender.SendText(ctx, phoneNumber, text); err != nil {
		if mappingID != 0 {
			_, _ = r.mappings.LogMessage(ctx, mappingID, model.LogMessageRequest{
				Direction: model.DirectionOut,
				Content:   text,
				Status:    model.LogStatusError,
			})
		}
		return
	}
	if mappingID != 0 {
		_, _ = r.mappings.LogMessage(ctx, mappingID, model.LogMessageRequest{
			Direction: model.DirectionOut,
			Content:   text,
			Status:    model.LogStatusSent,
		})
	}
}

func (r *Router) logIn(ctx context.Context, mappingID int64, externalID, content, status string) {
	var msgID *string
	if externalID != "" {
		msgID = &externalID
	}
	if _, err := r.mappings.LogMessage(ctx, mappingID, model.LogMessageRequest{
		MessageID: msgID,
		Direction: model.DirectionIn,
		Content:   content,
		Status:    status,
	}); err != nil {
		logger.Warn("failed to log message", "mapping_id", mappingID, "error", err)
	}
}

func (r *Router) closeMapping(ctx context.Context, id int64) {
	if err := r.mappings.UpdateStatus(ctx, id, model.MappingStatusClosed); err != nil {
		logger.Warn("failed to close mapping", "mapping_id", id, "error", err)
	}
}

func mappingID(m *model.Mapping) int64 {
	if m == nil {
		return 0
	}
	return m.ID
}

func fail(action, msg string) model.RouterResult {
	return model.RouterResult{Success: false, Action: action, Error: msg}
}

func failTicket(action, msg string, m *model.Mapping) model.RouterResult {
	return model.RouterResult{
		Success:      false,
		Action:       action,
		TicketID:     m.TicketID,
		TicketNumber: m.TicketNumber,
		Error:        msg,
	}
}

var (
	nameSpaceRe   = regexp.MustCompile(`\s+`)
	nameInvalidRe = regexp.MustCompile(`[^\p{L}\p{N}\s\-_.@]`)
)

// sanitizeName normalizes a channel display name for the backend: collapsed
// whitespace, a conservative character set and a 64 rune cap.
func sanitizeName(name string) string {
	n := nameInvalidRe.ReplaceAllString(name, "")
	n = nameSpaceRe.ReplaceAllString(strings.TrimSpace(n), " ")
	if runes := []rune(n); len(runes) > 64 {
		n = string(runes[:64])
	}
	if n == "" {
		return fallbackContactName
	}
	return n
}
