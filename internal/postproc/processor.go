package postproc

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/vlogdigital3/agendia-de-viagem/internal/domain"
)

// Synthesizer turns short replies into voice-note audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Notifier pushes a qualified-lead alert to the operator channel.
type Notifier interface {
	LeadQualified(ctx context.Context, name, phone, summary string) error
}

// LeadPublisher emits the lead.qualified integration event.
type LeadPublisher interface {
	PublishLead(ctx context.Context, name, phone string, platform domain.Platform, summary string) error
}

// Session is the conversation context one Process call runs in.
type Session struct {
	Phone         string
	Name          string
	Platform      domain.Platform
	UserText      string // the inbound message that produced this reply
	LastAssistant string // previous assistant text, for the mention heuristic
}

const defaultGalleryDelay = 1500 * time.Millisecond

// Processor executes the side effects encoded in an agent reply and
// delivers the visible message. Every external call is best-effort: a
// failed send is logged and the pipeline moves on.
type Processor struct {
	catalog      domain.CatalogStore
	tts          Synthesizer
	notifier     Notifier
	publisher    LeadPublisher
	galleryDelay time.Duration
	ttsMaxChars  int
	logger       *slog.Logger
}

type Options struct {
	Catalog      domain.CatalogStore
	TTS          Synthesizer   // nil disables voice notes
	Notifier     Notifier      // nil disables operator alerts
	Publisher    LeadPublisher // nil disables integration events
	GalleryDelay time.Duration
	TTSMaxChars  int
	Logger       *slog.Logger
}

func New(opts Options) *Processor {
	if opts.GalleryDelay == 0 {
		opts.GalleryDelay = defaultGalleryDelay
	}
	return &Processor{
		catalog:      opts.Catalog,
		tts:          opts.TTS,
		notifier:     opts.Notifier,
		publisher:    opts.Publisher,
		galleryDelay: opts.GalleryDelay,
		ttsMaxChars:  opts.TTSMaxChars,
		logger:       opts.Logger,
	}
}

// Process resolves markers, fires side effects and delivers the reply
// through gw. It returns the marker-free text that gets persisted as the
// assistant turn. A nil gateway runs the web path: markers are resolved
// and handoff notifications fire, but nothing is sent.
func (p *Processor) Process(ctx context.Context, gw domain.Gateway, sess Session, cfg *domain.ChannelConfig, reply *domain.AgentReply) string {
	galleries, text := ExtractGalleries(reply.Text)
	summary, visible, marked := ParseNotify(text)
	visible = StripMarkdownImages(visible)

	if marked || reply.Handoff {
		if summary == "" {
			summary = reply.Summary
		}
		p.notifyHuman(ctx, gw, sess, cfg, summary)
	}

	sent := p.sendGalleries(ctx, gw, sess, galleries)

	if gw != nil && sess.Platform == domain.PlatformWhatsApp {
		p.sendMentionMedia(ctx, gw, sess, visible, p.mentionCandidates(ctx, reply.Packages), sent)
		p.deliver(ctx, gw, sess, visible)
	}

	return visible
}

// notifyHuman fans the qualification summary out to the human agent's
// WhatsApp, the operator alert channel and the event bus. All three are
// independent and best-effort.
func (p *Processor) notifyHuman(ctx context.Context, gw domain.Gateway, sess Session, cfg *domain.ChannelConfig, summary string) {
	name := sess.Name
	if name == "" {
		name = "(sem nome)"
	}

	if gw != nil && cfg != nil && cfg.HumanAgentPhone != "" {
		msg := fmt.Sprintf("🔔 LEAD QUALIFICADO\nNome: %s\nTelefone: %s\n\n%s", name, sess.Phone, summary)
		if err := gw.SendText(ctx, cfg.HumanAgentPhone, msg); err != nil {
			p.logger.Error("human agent notification failed", "error", err)
		}
	}

	if p.notifier != nil {
		if err := p.notifier.LeadQualified(ctx, name, sess.Phone, summary); err != nil {
			p.logger.Error("operator alert failed", "error", err)
		}
	}

	if p.publisher != nil {
		if err := p.publisher.PublishLead(ctx, name, sess.Phone, sess.Platform, summary); err != nil {
			p.logger.Error("lead event publish failed", "error", err)
		}
	}
}

// sendGalleries dispatches the full image set of each explicitly requested
// package, sequentially with a fixed delay so the gateway renders them in
// order. Returns the IDs of packages whose media already went out.
func (p *Processor) sendGalleries(ctx context.Context, gw domain.Gateway, sess Session, names []string) map[int64]bool {
	sent := make(map[int64]bool)
	if gw == nil {
		return sent
	}
	for _, name := range names {
		pkg, err := p.catalog.FindPackageByTitle(ctx, name)
		if err != nil {
			p.logger.Error("gallery lookup failed", "name", name, "error", err)
			continue
		}
		if pkg == nil {
			p.logger.Warn("gallery marker for unknown package", "name", name)
			continue
		}
		p.sendImages(ctx, gw, sess.Phone, pkg, len(pkg.Images))
		sent[pkg.ID] = true
	}
	return sent
}

const mentionCatalogLimit = 100

// mentionCandidates is the package set the mention heuristic scans. The
// whole active catalog is eligible, not just this turn's search hits, so a
// follow-up reply answered from conversation memory still gets its media.
func (p *Processor) mentionCandidates(ctx context.Context, searchHits []domain.Package) []domain.Package {
	active, err := p.catalog.ActivePackages(ctx, mentionCatalogLimit)
	if err != nil {
		p.logger.Error("active catalog load failed", "error", err)
		return searchHits
	}
	seen := make(map[int64]bool, len(active))
	for _, pkg := range active {
		seen[pkg.ID] = true
	}
	for _, pkg := range searchHits {
		if !seen[pkg.ID] {
			active = append(active, pkg)
		}
	}
	return active
}

// sendMentionMedia applies the mention heuristic to the visible reply and
// sends a card (or full gallery) for each newly discussed package.
func (p *Processor) sendMentionMedia(ctx context.Context, gw domain.Gateway, sess Session, visible string, packages []domain.Package, already map[int64]bool) {
	for _, m := range DetectMentions(visible, sess.LastAssistant, sess.UserText, packages) {
		if already[m.Package.ID] {
			continue
		}
		pkg := m.Package
		if m.DeepDive {
			p.sendImages(ctx, gw, sess.Phone, &pkg, len(pkg.Images))
			for _, v := range pkg.Videos {
				p.pace(ctx)
				if err := gw.SendMedia(ctx, sess.Phone, v, domain.MediaVideo, ""); err != nil {
					p.logger.Error("video send failed", "package", pkg.Title, "error", err)
				}
			}
		} else {
			p.sendImages(ctx, gw, sess.Phone, &pkg, 1)
		}
	}
}

// sendImages sends up to n images of pkg, captioning the first with the
// package title.
func (p *Processor) sendImages(ctx context.Context, gw domain.Gateway, to string, pkg *domain.Package, n int) {
	for i, url := range pkg.Images {
		if i >= n {
			break
		}
		if i > 0 {
			p.pace(ctx)
		}
		caption := ""
		if i == 0 {
			caption = pkg.Title
		}
		if err := gw.SendMedia(ctx, to, url, domain.MediaImage, caption); err != nil {
			p.logger.Error("image send failed", "package", pkg.Title, "error", err)
		}
	}
}

func (p *Processor) pace(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.galleryDelay):
	}
}

// deliver sends the visible reply, as a voice note when it is short enough
// and synthesis is available. Synthesis failure falls back to text.
func (p *Processor) deliver(ctx context.Context, gw domain.Gateway, sess Session, visible string) {
	if visible == "" {
		return
	}

	if p.tts != nil && p.ttsMaxChars > 0 && len([]rune(visible)) < p.ttsMaxChars {
		audio, err := p.tts.Synthesize(ctx, visible)
		if err == nil {
			enc := base64.StdEncoding.EncodeToString(audio)
			if err := gw.SendAudio(ctx, sess.Phone, enc); err == nil {
				return
			}
			p.logger.Error("voice note send failed, falling back to text")
		} else {
			p.logger.Error("voice synthesis failed, falling back to text", "error", err)
		}
	}

	if err := gw.SendText(ctx, sess.Phone, visible); err != nil {
		p.logger.Error("reply send failed", "error", err)
	}
}
