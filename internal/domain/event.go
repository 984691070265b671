package domain

// Platform identifies which surface a conversation runs on.
type Platform string

const (
	PlatformWhatsApp Platform = "whatsapp"
	PlatformWeb      Platform = "web"
)

// InboundEvent is one normalized webhook delivery from the messaging
// gateway. It is built per request and never persisted; its text becomes a
// user Turn once the event is accepted.
type InboundEvent struct {
	InstanceName string
	RemoteJid    string
	Phone        string // remoteJid before the "@", used as the session key
	IsGroup      bool
	IsFromSelf   bool
	SenderName   string
	Text         string
	HasMedia     bool // image attachments without a caption still count as content
}
