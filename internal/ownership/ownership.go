// Package ownership decides whether a phone number may act on a ticket.
// A switch command must never let a customer attach to someone else's
// ticket, so every rule here errs on the side of refusing.
package ownership

import (
	"context"
	"strings"

	"github.com/tickethub/whatsapp-bridge/internal/config"
	"github.com/tickethub/whatsapp-bridge/internal/gateway"
	"github.com/tickethub/whatsapp-bridge/internal/model"
	"github.com/tickethub/whatsapp-bridge/pkg/logger"
	"github.com/tickethub/whatsapp-bridge/pkg/phone"
)

type Verifier struct {
	users  gateway.UserDirectory
	bridge config.Bridge
}

func NewVerifier(users gateway.UserDirectory, b config.Bridge) *Verifier {
	return &Verifier{users: users, bridge: b}
}

// Owns reports whether the sender phone owns the mapped ticket. The checks
// run cheapest first; the backend directory is only consulted when the
// local evidence is inconclusive.
func (v *Verifier) Owns(ctx context.Context, senderPhone string, m *model.Mapping, owner *gateway.User) bool {
	canonical := phone.Canonical(senderPhone)

	// The mapping itself records which phone created it.
	if m != nil && m.Phone == canonical {
		return true
	}

	if owner != nil {
		if v.phoneMatches(owner.Phone, canonical) {
			return true
		}
		// Channel-created users carry the synthesized address.
		if strings.EqualFold(owner.Email, v.bridge.ChannelAddress(senderPhone)) {
			return true
		}
	}

	// Last resort: ask the backend who this phone belongs to.
	found, err := v.users.FindUserByPhone(ctx, phone.Variants(canonical))
	if err != nil {
		if err != gateway.ErrUserNotFound {
			logger.Warn("ownership lookup failed", "phone", canonical, "error", err)
		}
		return false
	}
	if owner != nil && found.ID == owner.ID {
		return true
	}
	if m != nil && m.UserID != nil && found.ID == *m.UserID {
		return true
	}
	return false
}

// phoneMatches compares a stored phone with the canonical sender phone.
// Stored numbers come in every imaginable format, so the lenient mode
// accepts a substring match in either direction once both sides are
// reduced to digits.
func (v *Verifier) phoneMatches(stored, canonical string) bool {
	s := phone.Canonical(stored)
	if s == "" || canonical == "" {
		return false
	}
	if s == canonical {
		return true
	}
	if v.bridge.OwnershipStrict {
		return false
	}
	return strings.Contains(s, canonical) || strings.Contains(canonical, s)
}
