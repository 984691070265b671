package domain

// Control markers the model embeds in its reply text. Both are stripped
// before anything is persisted or shown to the end user.
const (
	// NotifyHumanMarker prefixes a reply that qualified a lead. It is
	// optionally followed by a structured summary, a "---" delimiter, and
	// the user-facing goodbye text.
	NotifyHumanMarker = "AUTO_NOTIFY_HUMAN_MARKER"

	// GalleryMarker appears inline as AUTO_SEND_GALLERY_MARKER[<name>];
	// the argument is matched fuzzily against catalog titles.
	GalleryMarker = "AUTO_SEND_GALLERY_MARKER"
)

// AgentReply is the transient output of one agent invocation. The marker
// post-processor consumes it immediately; markers never reach storage.
type AgentReply struct {
	Text     string    // raw model text, may contain control markers
	Handoff  bool      // request_human_assistance was invoked this turn
	Summary  string    // structured qualification summary (when Handoff)
	Packages []Package // catalog hits from search_packages, for web rendering
}
