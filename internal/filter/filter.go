// Package filter decides whether an inbound webhook event reaches the
// agent. Every rejection still acks the webhook with 200; the reason is
// for logs and metrics only.
package filter

import (
	"time"

	"github.com/vlogdigital3/agendia-de-viagem/internal/domain"
)

// DuplicateWindow is the interval inside which an identical user message
// is treated as a gateway redelivery.
const DuplicateWindow = 5 * time.Second

// Reason classifies why an event was dropped.
type Reason string

const (
	ReasonSelfEcho       Reason = "self_echo"
	ReasonGroup          Reason = "group"
	ReasonInactive       Reason = "inactive"
	ReasonNotWhitelisted Reason = "not_whitelisted"
	ReasonBlacklisted    Reason = "blacklisted"
	ReasonNoContent      Reason = "no_content"
	ReasonDuplicate      Reason = "duplicate"
)

// Result is the filter verdict for one event.
type Result struct {
	Accepted bool
	Reason   Reason
}

func accept() Result         { return Result{Accepted: true} }
func reject(r Reason) Result { return Result{Reason: r} }

// Evaluate applies the inbound rules in fixed order. lastUser is the
// newest stored user turn for the session (nil when the conversation is
// new); it drives the duplicate check, which fires on an identical user
// message inside DuplicateWindow.
func Evaluate(ev domain.InboundEvent, cfg *domain.ChannelConfig, lastUser *domain.TurnRecord, now time.Time) Result {
	if ev.IsFromSelf {
		return reject(ReasonSelfEcho)
	}
	if ev.IsGroup && cfg.IgnoreGroups {
		return reject(ReasonGroup)
	}
	if !cfg.Active {
		return reject(ReasonInactive)
	}

	// A non-empty whitelist is exclusive: the blacklist is not consulted.
	if len(cfg.Whitelist) > 0 {
		if !cfg.Whitelisted(ev.Phone) {
			return reject(ReasonNotWhitelisted)
		}
	} else {
		for _, p := range cfg.Blacklist {
			if p == ev.Phone {
				return reject(ReasonBlacklisted)
			}
		}
	}

	if ev.Text == "" && !ev.HasMedia {
		return reject(ReasonNoContent)
	}

	if lastUser != nil &&
		lastUser.Turn.Role == domain.RoleUser &&
		lastUser.Turn.Content == ev.Text &&
		ev.Text != "" &&
		now.Sub(lastUser.CreatedAt) < DuplicateWindow {
		return reject(ReasonDuplicate)
	}

	return accept()
}
