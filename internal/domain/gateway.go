package domain

import "context"

// MediaKind selects the gateway media endpoint payload type.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Presence states understood by the gateway.
const (
	PresenceComposing = "composing"
	PresenceAvailable = "available"
)

// Gateway sends outbound messages through the external messaging provider.
// Every call is fire-and-forget from the pipeline's perspective: errors are
// logged by the caller and never abort a webhook.
type Gateway interface {
	SendText(ctx context.Context, to, text string) error
	SendMedia(ctx context.Context, to, url string, kind MediaKind, caption string) error
	SendAudio(ctx context.Context, to, audioBase64 string) error
	SetPresence(ctx context.Context, to, state string) error
}
