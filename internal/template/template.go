// Package template renders the outbound message texts. Each action has its
// own renderer over a closed placeholder set, so a template can never ask
// for a variable the action does not provide.
package template

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/tickethub/whatsapp-bridge/internal/config"
	"github.com/tickethub/whatsapp-bridge/internal/gateway"
)

// Render substitutes {name}-style placeholders. Unknown placeholders are
// left in place so a typo in a custom template stays visible instead of
// silently disappearing.
func Render(tpl string, vars map[string]string) string {
	if len(vars) == 0 {
		return tpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}

type Renderer struct {
	bridge config.Bridge
}

func NewRenderer(b config.Bridge) *Renderer {
	return &Renderer{bridge: b}
}

func (r *Renderer) Confirmation(contactName, ticketNumber string) string {
	return Render(r.bridge.Templates.Confirmation, map[string]string{
		"name":           contactName,
		"ticket_number":  ticketNumber,
		"switch_keyword": r.bridge.SwitchKeyword,
		"close_keyword":  r.bridge.CloseKeyword,
	})
}

func (r *Renderer) ClosedTicket(ticketNumber, subject string) string {
	return Render(r.bridge.Templates.ClosedTicket, map[string]string{
		"ticket_number":  ticketNumber,
		"ticket_subject": subject,
	})
}

func (r *Renderer) CloseDeferred(ticketNumber string) string {
	return Render(r.bridge.Templates.CloseDeferred, map[string]string{
		"ticket_number": ticketNumber,
		"signature":     r.bridge.Signature,
	})
}

func (r *Renderer) NoOpenTicket() string {
	return r.bridge.Templates.NoOpenTicket
}

func (r *Renderer) SwitchSuccess(ticketNumber, subject string) string {
	return Render(r.bridge.Templates.SwitchSuccess, map[string]string{
		"ticket_number":  ticketNumber,
		"ticket_subject": subject,
	})
}

func (r *Renderer) SwitchError(ticketNumber string) string {
	return Render(r.bridge.Templates.SwitchError, map[string]string{
		"ticket_number": ticketNumber,
	})
}

func (r *Renderer) SwitchClosed(ticketNumber string) string {
	return Render(r.bridge.Templates.SwitchClosed, map[string]string{
		"ticket_number": ticketNumber,
	})
}

func (r *Renderer) Unlinked(ticketNumber string) string {
	return Render(r.bridge.Templates.Unlinked, map[string]string{
		"ticket_number": ticketNumber,
	})
}

// MediaResponse tells the customer how to submit an attachment by email.
// ticketNumber may be the new-ticket placeholder when the phone has no
// open mapping yet.
func (r *Renderer) MediaResponse(ticketNumber string) string {
	return Render(r.bridge.Templates.MediaResponse, map[string]string{
		"ticket_number": ticketNumber,
		"support_email": r.bridge.SupportEmail,
		"email_link":    r.MailtoLink(ticketNumber),
	})
}

// MailtoLink builds the prefilled attachment email link, subject and body
// encoded for direct use inside a message body. The prefilled body carries
// the ticket number so inbound mail processing can thread the attachment.
func (r *Renderer) MailtoLink(ticketNumber string) string {
	subject := "Anhang zu Ticket #" + ticketNumber
	body := "Ticketnummer: #" + ticketNumber
	return "mailto:" + r.bridge.SupportEmail +
		"?subject=" + url.PathEscape(subject) +
		"&body=" + url.PathEscape(body)
}

// TicketList renders the numbered overview of the customer's open tickets,
// in the order given.
func (r *Renderer) TicketList(tickets []*gateway.Ticket) string {
	if len(tickets) == 0 {
		return r.bridge.Templates.TicketListEmpty
	}
	var b strings.Builder
	for i, t := range tickets {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". #")
		b.WriteString(t.Number)
		if t.Subject != "" {
			b.WriteString(" - ")
			b.WriteString(t.Subject)
		}
		b.WriteString("\n")
	}
	return Render(r.bridge.Templates.TicketList, map[string]string{
		"ticket_list":    strings.TrimRight(b.String(), "\n"),
		"switch_keyword": r.bridge.SwitchKeyword,
	})
}

func (r *Renderer) FormatError(keyword, expectedFormat string) string {
	return Render(r.bridge.Templates.FormatError, map[string]string{
		"keyword":         keyword,
		"expected_format": expectedFormat,
	})
}

func (r *Renderer) UpdateAck(ticketNumber string) string {
	return Render(r.bridge.Templates.UpdateAck, map[string]string{
		"ticket_number": ticketNumber,
	})
}

func (r *Renderer) AgentReply(ticketNumber, subject, body string) string {
	return Render(r.bridge.Templates.AgentReply, map[string]string{
		"ticket_number":  ticketNumber,
		"ticket_subject": subject,
		"message":        body,
		"signature":      r.bridge.Signature,
	})
}
