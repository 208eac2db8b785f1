package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tickethub/whatsapp-bridge/internal/config"
	"github.com/tickethub/whatsapp-bridge/internal/gateway"
)

func testBridge() config.Bridge {
	c := &config.Config{}
	return c.Bridge()
}

func TestRender(t *testing.T) {
	t.Run("substitutes placeholders", func(t *testing.T) {
		got := Render("Hallo {name}, Ticket #{ticket_number}", map[string]string{
			"name":          "Max",
			"ticket_number": "123",
		})
		assert.Equal(t, "Hallo Max, Ticket #123", got)
	})

	t.Run("unknown placeholder stays visible", func(t *testing.T) {
		got := Render("Hallo {nmae}", map[string]string{"name": "Max"})
		assert.Equal(t, "Hallo {nmae}", got)
	})

	t.Run("no vars", func(t *testing.T) {
		assert.Equal(t, "plain", Render("plain", nil))
	})
}

func TestRenderer_Confirmation(t *testing.T) {
	r := NewRenderer(testBridge())

	got := r.Confirmation("Max", "100001")
	assert.Contains(t, got, "Max")
	assert.Contains(t, got, "#100001")
	assert.Contains(t, got, config.DefaultSwitchKeyword)
	assert.Contains(t, got, config.DefaultCloseKeyword)
	assert.NotContains(t, got, "{")
}

func TestRenderer_MediaResponse(t *testing.T) {
	r := NewRenderer(testBridge())

	got := r.MediaResponse("100001")
	assert.Contains(t, got, config.DefaultSupportEmail)
	assert.Contains(t, got, "#100001")
	assert.Contains(t, got, "mailto:"+config.DefaultSupportEmail)
	assert.Contains(t, got, "Anhang%20zu%20Ticket%20%23100001")
}

func TestRenderer_MailtoLink(t *testing.T) {
	r := NewRenderer(testBridge())

	link := r.MailtoLink("NEU")
	assert.Equal(t, "mailto:"+config.DefaultSupportEmail+
		"?subject=Anhang%20zu%20Ticket%20%23NEU"+
		"&body=Ticketnummer:%20%23NEU", link)
}

func TestRenderer_TicketList(t *testing.T) {
	r := NewRenderer(testBridge())

	t.Run("empty list", func(t *testing.T) {
		got := r.TicketList(nil)
		assert.Equal(t, testBridge().Templates.TicketListEmpty, got)
	})

	t.Run("numbers tickets in order", func(t *testing.T) {
		got := r.TicketList([]*gateway.Ticket{
			{Number: "100001", Subject: "Druckerproblem"},
			{Number: "100002", Subject: "Monitor flackert"},
		})
		assert.Contains(t, got, "1. #100001 - Druckerproblem")
		assert.Contains(t, got, "2. #100002 - Monitor flackert")
		assert.Contains(t, got, config.DefaultSwitchKeyword)
	})

	t.Run("missing subject leaves a bare number", func(t *testing.T) {
		got := r.TicketList([]*gateway.Ticket{{Number: "100003"}})
		assert.Contains(t, got, "1. #100003\n")
		assert.NotContains(t, got, "100003 -")
	})
}

func TestRenderer_AgentReply(t *testing.T) {
	r := NewRenderer(testBridge())

	got := r.AgentReply("100001", "Druckerproblem", "Bitte starten Sie den Drucker neu.")
	assert.Contains(t, got, "*Antwort zu Ticket #100001 - Druckerproblem*")
	assert.Contains(t, got, "Bitte starten Sie den Drucker neu.")
	assert.Contains(t, got, config.DefaultSignature)
}
