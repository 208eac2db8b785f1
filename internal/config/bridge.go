package config

import (
	"github.com/tickethub/whatsapp-bridge/pkg/phone"
)

// Defaults mirror the keywords and texts the support team has been running
// with since the original plugin; everything is overridable via env.
const (
	DefaultCloseKeyword  = "SCHLIESSEN"
	DefaultSwitchKeyword = "Ticket-Wechsel"
	DefaultNewKeyword    = "NEU"
	DefaultListKeyword   = "OFFEN"
	DefaultSupportEmail  = "support@example.com"
	DefaultSignature     = "Ihr Support-Team"
	DefaultAddressPrefix = "whatsapp+"
	DefaultAddressDomain = "tickets.local"
)

var DefaultSignalWords = []string{"ok", "okay", "danke", "vielen dank", "thx", "thanks", "super", "alles klar"}

// Templates are the outbound message texts per router action. Placeholders
// are rendered through the template package, which only accepts the closed
// variable set each action defines.
type Templates struct {
	Confirmation    string
	ClosedTicket    string
	CloseDeferred   string
	NoOpenTicket    string
	SwitchSuccess   string
	SwitchError     string
	SwitchClosed    string
	Unlinked        string
	MediaResponse   string
	TicketList      string
	TicketListEmpty string
	FormatError     string
	UpdateAck       string
	AgentReply      string
}

func defaultTemplates() Templates {
	return Templates{
		Confirmation: "Vielen Dank fuer Ihre Nachricht, {name}!\n\n" +
			"Ihr Ticket wurde erstellt.\nTicket-Nummer: #{ticket_number}\n\n" +
			"*Wichtig:* Sie koennen via WhatsApp immer nur ein Ticket gleichzeitig bearbeiten. " +
			"Alle Ihre Nachrichten werden diesem Ticket zugeordnet.\n\n" +
			"Um zu einem anderen Ticket zu wechseln, senden Sie:\n{switch_keyword} #[Ihre-Ticketnummer]\n\n" +
			"Um dieses Ticket zu schliessen, senden Sie:\n{close_keyword}\n\n" +
			"Wir melden uns schnellstmoeglich bei Ihnen.",
		ClosedTicket: "Ihr Ticket #{ticket_number} - {ticket_subject} wurde geschlossen.\n\n" +
			"Falls Sie weitere Fragen haben, senden Sie uns einfach eine neue Nachricht.",
		CloseDeferred: "Ihr Ticket #{ticket_number} konnte gerade nicht automatisch geschlossen werden. " +
			"Ein Mitarbeiter kuemmert sich darum.\n\n{signature}",
		NoOpenTicket: "Sie haben derzeit kein offenes Ticket.\n\n" +
			"Senden Sie uns einfach Ihre Anfrage, um ein neues Ticket zu erstellen.",
		SwitchSuccess: "Ticket gewechselt!\n\nSie bearbeiten jetzt:\n" +
			"Ticket #{ticket_number} - {ticket_subject}\n\n" +
			"Alle Ihre Nachrichten werden diesem Ticket zugeordnet.",
		SwitchError: "Ticket #{ticket_number} wurde nicht gefunden oder gehoert nicht zu Ihrer Telefonnummer.\n\n" +
			"Bitte pruefen Sie die Ticketnummer.",
		SwitchClosed: "Ticket #{ticket_number} ist bereits geschlossen.\n\n" +
			"Senden Sie eine neue Nachricht um ein neues Ticket zu erstellen.",
		Unlinked: "Ihr Ticket #{ticket_number} bleibt offen, wird aber nicht mehr mit WhatsApp verknuepft.\n\n" +
			"Ihre naechste Nachricht erstellt ein neues Ticket.",
		MediaResponse: "Dateien (Bilder, Dokumente, Videos) koennen leider nicht via WhatsApp eingereicht werden.\n\n" +
			"Bitte senden Sie Ihre Datei per Email an:\n{support_email}\n\n" +
			"Oder klicken Sie hier:\n{email_link}\n\n" +
			"Ihre Ticketnummer #{ticket_number} wird automatisch zugeordnet.",
		TicketList:      "Ihre offenen Tickets:\n\n{ticket_list}\n\nZum Wechseln senden Sie:\n{switch_keyword} #[Ticketnummer]",
		TicketListEmpty: "Sie haben derzeit keine offenen Tickets.",
		FormatError: "Der Befehl \"{keyword}\" wurde erkannt, aber das Format ist ungueltig.\n\n" +
			"Erwartet: {expected_format}",
		UpdateAck:  "Nachricht zu Ticket #{ticket_number} hinzugefuegt.",
		AgentReply: "*Antwort zu Ticket #{ticket_number} - {ticket_subject}*\n\n{message}\n\n_{signature}_",
	}
}

// Bridge is the per-invocation configuration snapshot handed to the Router.
// It is assembled once at startup and passed explicitly, never read from
// globals inside the decision tree.
type Bridge struct {
	CloseKeyword  string
	SwitchKeyword string
	NewKeyword    string
	ListKeyword   string
	SignalWords   []string

	SupportEmail string
	Signature    string

	AddressPrefix string
	AddressDomain string

	DefaultTopicID int64
	DefaultDeptID  int64

	AutoResponse    bool
	AckOnUpdate     bool
	OwnershipStrict bool

	Templates Templates
}

// ChannelAddress synthesizes the email-shaped identity used when the
// ticketing backend requires one for channel-originated users.
func (b Bridge) ChannelAddress(p string) string {
	return b.AddressPrefix + phone.Canonical(p) + "@" + b.AddressDomain
}

// Bridge builds the router configuration snapshot from the environment,
// falling back to the shipped defaults for anything unset.
func (c *Config) Bridge() Bridge {
	b := Bridge{
		CloseKeyword:    orDefault(c.BridgeCloseKeyword, DefaultCloseKeyword),
		SwitchKeyword:   orDefault(c.BridgeSwitchKeyword, DefaultSwitchKeyword),
		NewKeyword:      orDefault(c.BridgeNewKeyword, DefaultNewKeyword),
		ListKeyword:     orDefault(c.BridgeListKeyword, DefaultListKeyword),
		SignalWords:     c.BridgeSignalWords,
		SupportEmail:    orDefault(c.BridgeSupportEmail, DefaultSupportEmail),
		Signature:       orDefault(c.BridgeSignature, DefaultSignature),
		AddressPrefix:   orDefault(c.BridgeAddressPrefix, DefaultAddressPrefix),
		AddressDomain:   orDefault(c.BridgeAddressDomain, DefaultAddressDomain),
		DefaultTopicID:  c.BridgeDefaultTopicID,
		DefaultDeptID:   c.BridgeDefaultDeptID,
		AutoResponse:    c.BridgeAutoResponse,
		AckOnUpdate:     c.BridgeAckOnUpdate,
		OwnershipStrict: c.BridgeOwnershipStrict,
		Templates:       defaultTemplates(),
	}
	if len(b.SignalWords) == 0 {
		b.SignalWords = DefaultSignalWords
	}
	return b
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
