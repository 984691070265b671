package filter

import (
	"testing"
	"time"

	"github.com/vlogdigital3/agendia-de-viagem/internal/domain"
)

func activeConfig() *domain.ChannelConfig {
	return &domain.ChannelConfig{
		InstanceName: "vlog-main",
		Active:       true,
		IgnoreGroups: true,
	}
}

func event(text string) domain.InboundEvent {
	return domain.InboundEvent{
		InstanceName: "vlog-main",
		RemoteJid:    "5585999990000@s.whatsapp.net",
		Phone:        "5585999990000",
		Text:         text,
	}
}

func TestEvaluate_Accepts(t *testing.T) {
	res := Evaluate(event("oi"), activeConfig(), nil, time.Now())
	if !res.Accepted {
		t.Fatalf("expected accept, got %q", res.Reason)
	}
}

func TestEvaluate_SelfEcho(t *testing.T) {
	ev := event("oi")
	ev.IsFromSelf = true
	res := Evaluate(ev, activeConfig(), nil, time.Now())
	if res.Accepted || res.Reason != ReasonSelfEcho {
		t.Errorf("expected self_echo, got %+v", res)
	}
}

func TestEvaluate_GroupSuppression(t *testing.T) {
	ev := event("oi")
	ev.IsGroup = true

	res := Evaluate(ev, activeConfig(), nil, time.Now())
	if res.Accepted || res.Reason != ReasonGroup {
		t.Errorf("expected group rejection, got %+v", res)
	}

	cfg := activeConfig()
	cfg.IgnoreGroups = false
	if res := Evaluate(ev, cfg, nil, time.Now()); !res.Accepted {
		t.Errorf("groups allowed but rejected: %+v", res)
	}
}

func TestEvaluate_InactiveInstance(t *testing.T) {
	cfg := activeConfig()
	cfg.Active = false
	res := Evaluate(event("oi"), cfg, nil, time.Now())
	if res.Accepted || res.Reason != ReasonInactive {
		t.Errorf("expected inactive, got %+v", res)
	}
}

func TestEvaluate_WhitelistExclusive(t *testing.T) {
	// When a whitelist exists the blacklist must not be consulted, even
	// for a number present in both lists.
	cfg := activeConfig()
	cfg.Whitelist = []string{"5585999990000"}
	cfg.Blacklist = []string{"5585999990000"}

	if res := Evaluate(event("oi"), cfg, nil, time.Now()); !res.Accepted {
		t.Errorf("whitelisted number rejected: %+v", res)
	}

	other := event("oi")
	other.Phone = "5511888880000"
	res := Evaluate(other, cfg, nil, time.Now())
	if res.Accepted || res.Reason != ReasonNotWhitelisted {
		t.Errorf("expected not_whitelisted, got %+v", res)
	}
}

func TestEvaluate_BlacklistWithoutWhitelist(t *testing.T) {
	cfg := activeConfig()
	cfg.Blacklist = []string{"5585999990000"}
	res := Evaluate(event("oi"), cfg, nil, time.Now())
	if res.Accepted || res.Reason != ReasonBlacklisted {
		t.Errorf("expected blacklisted, got %+v", res)
	}
}

func TestEvaluate_NoContent(t *testing.T) {
	res := Evaluate(event(""), activeConfig(), nil, time.Now())
	if res.Accepted || res.Reason != ReasonNoContent {
		t.Errorf("expected no_content, got %+v", res)
	}

	// A captionless media message still counts as content.
	ev := event("")
	ev.HasMedia = true
	if res := Evaluate(ev, activeConfig(), nil, time.Now()); !res.Accepted {
		t.Errorf("media-only event rejected: %+v", res)
	}
}

func TestEvaluate_DuplicateWindow(t *testing.T) {
	now := time.Now()
	last := &domain.TurnRecord{
		Turn:      domain.Turn{Role: domain.RoleUser, Content: "oi"},
		CreatedAt: now.Add(-2 * time.Second),
	}

	res := Evaluate(event("oi"), activeConfig(), last, now)
	if res.Accepted || res.Reason != ReasonDuplicate {
		t.Errorf("expected duplicate, got %+v", res)
	}

	// Same text outside the window is a legitimate repeat.
	old := &domain.TurnRecord{
		Turn:      domain.Turn{Role: domain.RoleUser, Content: "oi"},
		CreatedAt: now.Add(-10 * time.Second),
	}
	if res := Evaluate(event("oi"), activeConfig(), old, now); !res.Accepted {
		t.Errorf("repeat outside window rejected: %+v", res)
	}

	// A recent assistant turn never blocks the user.
	asst := &domain.TurnRecord{
		Turn:      domain.Turn{Role: domain.RoleAssistant, Content: "oi"},
		CreatedAt: now.Add(-1 * time.Second),
	}
	if res := Evaluate(event("oi"), activeConfig(), asst, now); !res.Accepted {
		t.Errorf("assistant turn blocked user: %+v", res)
	}
}
