package postproc

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/vlogdigital3/agendia-de-viagem/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type sentCall struct {
	kind    string // text | media | audio
	to      string
	payload string
	caption string
}

type recordingGateway struct {
	calls    []sentCall
	audioErr error
}

func (g *recordingGateway) SendText(_ context.Context, to, text string) error {
	g.calls = append(g.calls, sentCall{kind: "text", to: to, payload: text})
	return nil
}

func (g *recordingGateway) SendMedia(_ context.Context, to, url string, kind domain.MediaKind, caption string) error {
	g.calls = append(g.calls, sentCall{kind: "media", to: to, payload: url, caption: caption})
	return nil
}

func (g *recordingGateway) SendAudio(_ context.Context, to, audio string) error {
	if g.audioErr != nil {
		return g.audioErr
	}
	g.calls = append(g.calls, sentCall{kind: "audio", to: to, payload: audio})
	return nil
}

func (g *recordingGateway) SetPresence(_ context.Context, _, _ string) error { return nil }

type stubCatalog struct {
	pkg    *domain.Package
	active []domain.Package
}

func (c *stubCatalog) SearchPackages(_ context.Context, _ []string, _ string, _ int) ([]domain.Package, error) {
	return nil, nil
}

func (c *stubCatalog) FindPackageByTitle(_ context.Context, name string) (*domain.Package, error) {
	if c.pkg != nil && strings.Contains(strings.ToLower(c.pkg.Title), strings.ToLower(name)) {
		return c.pkg, nil
	}
	return nil, nil
}

func (c *stubCatalog) ActivePackages(_ context.Context, _ int) ([]domain.Package, error) {
	return c.active, nil
}

type stubTTS struct {
	audio []byte
	err   error
	calls int
}

func (s *stubTTS) Synthesize(_ context.Context, _ string) ([]byte, error) {
	s.calls++
	return s.audio, s.err
}

type stubNotifier struct {
	summaries []string
}

func (n *stubNotifier) LeadQualified(_ context.Context, _, _, summary string) error {
	n.summaries = append(n.summaries, summary)
	return nil
}

type stubPublisher struct {
	leads int
}

func (p *stubPublisher) PublishLead(_ context.Context, _, _ string, _ domain.Platform, _ string) error {
	p.leads++
	return nil
}

var jeriPkg = domain.Package{
	ID:     7,
	Title:  "Jericoacoara Essencial",
	Images: []string{"https://cdn/jeri1.jpg", "https://cdn/jeri2.jpg", "https://cdn/jeri3.jpg"},
	Videos: []string{"https://cdn/jeri.mp4"},
	Active: true,
}

func newProcessor(cat domain.CatalogStore, tts Synthesizer, n Notifier, pub LeadPublisher) *Processor {
	return New(Options{
		Catalog:      cat,
		TTS:          tts,
		Notifier:     n,
		Publisher:    pub,
		GalleryDelay: 1, // nanosecond, keeps tests fast
		TTSMaxChars:  130,
		Logger:       testLogger(),
	})
}

func waSession() Session {
	return Session{Phone: "5585999990000", Name: "Carlos", Platform: domain.PlatformWhatsApp}
}

func TestExtractGalleries(t *testing.T) {
	names, cleaned := ExtractGalleries("Olha só! AUTO_SEND_GALLERY_MARKER[Jericoacoara Essencial]\nQuando você quer ir?")
	if len(names) != 1 || names[0] != "Jericoacoara Essencial" {
		t.Fatalf("names = %v", names)
	}
	if strings.Contains(cleaned, domain.GalleryMarker) {
		t.Errorf("marker survived: %q", cleaned)
	}

	// Bare marker without brackets is still stripped.
	_, cleaned = ExtractGalleries("texto AUTO_SEND_GALLERY_MARKER final")
	if strings.Contains(cleaned, domain.GalleryMarker) {
		t.Errorf("bare marker survived: %q", cleaned)
	}
}

func TestParseNotify(t *testing.T) {
	summary, goodbye, found := ParseNotify("AUTO_NOTIFY_HUMAN_MARKER\nDestino: Jeri\nPeríodo: julho\n---\nJá te passo para um consultor! 😊")
	if !found {
		t.Fatal("marker not detected")
	}
	if !strings.Contains(summary, "Destino: Jeri") || strings.Contains(summary, "---") {
		t.Errorf("summary = %q", summary)
	}
	if !strings.Contains(goodbye, "consultor") || strings.Contains(goodbye, domain.NotifyHumanMarker) {
		t.Errorf("goodbye = %q", goodbye)
	}
}

func TestParseNotify_MissingDelimiterUsesDefaultGoodbye(t *testing.T) {
	summary, goodbye, found := ParseNotify("AUTO_NOTIFY_HUMAN_MARKER\nDestino: Jeri")
	if !found || summary == "" {
		t.Fatalf("summary = %q found = %v", summary, found)
	}
	if goodbye != defaultGoodbye {
		t.Errorf("goodbye = %q", goodbye)
	}
}

func TestParseNotify_NoMarker(t *testing.T) {
	_, text, found := ParseNotify("resposta normal")
	if found || text != "resposta normal" {
		t.Errorf("got %q found=%v", text, found)
	}
}

func TestStripMarkdownImages(t *testing.T) {
	got := StripMarkdownImages("Veja: ![praia](https://cdn/jeri1.jpg) incrível!")
	if strings.Contains(got, "![") || strings.Contains(got, "https://") {
		t.Errorf("markdown image survived: %q", got)
	}
}

func TestDetectMentions_NewMentionSendsCard(t *testing.T) {
	ms := DetectMentions("O *Jericoacoara* Essencial é perfeito para vocês!", "", "", []domain.Package{jeriPkg})
	if len(ms) != 1 || ms[0].DeepDive {
		t.Fatalf("mentions = %+v", ms)
	}
}

func TestDetectMentions_RepeatSuppressedUnlessAsked(t *testing.T) {
	last := "Já te falei do Jericoacoara Essencial."
	now := "Sim, Jericoacoara tem passeio de buggy!"

	if ms := DetectMentions(now, last, "legal", []domain.Package{jeriPkg}); len(ms) != 0 {
		t.Errorf("repeat mention should be suppressed: %+v", ms)
	}
	if ms := DetectMentions(now, last, "me mostra as fotos", []domain.Package{jeriPkg}); len(ms) != 1 {
		t.Errorf("explicit ask should send card: %+v", ms)
	}
}

func TestDetectMentions_DeepDiveOnUserDetailRequest(t *testing.T) {
	ms := DetectMentions("O Jericoacoara Essencial é incrível!", "", "como é o roteiro, o que está incluso?", []domain.Package{jeriPkg})
	if len(ms) != 1 || !ms[0].DeepDive {
		t.Errorf("detail request should deep dive: %+v", ms)
	}

	// Detail vocabulary in the assistant's own wording does not escalate.
	ms = DetectMentions("O roteiro inclui hospedagem e passeios de Jericoacoara.", "", "legal", []domain.Package{jeriPkg})
	if len(ms) != 1 || ms[0].DeepDive {
		t.Errorf("assistant wording alone must stay a card: %+v", ms)
	}
}

func TestDetectMentions_CapsCardsPerTurn(t *testing.T) {
	pkgs := []domain.Package{
		{ID: 1, Title: "Jericoacoara Essencial"},
		{ID: 2, Title: "Gramado Romântico"},
		{ID: 3, Title: "Noronha Mergulho"},
	}
	ms := DetectMentions("Temos Jericoacoara, Gramado e Noronha te esperando!", "", "", pkgs)
	if len(ms) != 2 {
		t.Errorf("cards must cap at two per turn: %+v", ms)
	}
}

func TestDetectMentions_AccentInsensitive(t *testing.T) {
	pkg := domain.Package{ID: 9, Title: "Fernando de Noronha Mergulho", Active: true}
	ms := DetectMentions("NORONHA é um paraíso!", "", "", []domain.Package{pkg})
	if len(ms) != 1 {
		t.Errorf("case/accent-normalized match failed: %+v", ms)
	}
}

func TestProcess_GalleryDispatchAndStripping(t *testing.T) {
	gw := &recordingGateway{}
	p := newProcessor(&stubCatalog{pkg: &jeriPkg}, nil, nil, nil)

	reply := &domain.AgentReply{Text: "Olha que lindo!\nAUTO_SEND_GALLERY_MARKER[Jericoacoara]\nQuando você pensa em ir?"}
	visible := p.Process(context.Background(), gw, waSession(), &domain.ChannelConfig{}, reply)

	if strings.Contains(visible, domain.GalleryMarker) {
		t.Errorf("marker persisted: %q", visible)
	}

	var media, text int
	for _, c := range gw.calls {
		switch c.kind {
		case "media":
			media++
		case "text":
			text++
		}
	}
	if media != 3 {
		t.Errorf("expected 3 gallery images, got %d", media)
	}
	if text != 1 {
		t.Errorf("expected exactly one visible reply, got %d", text)
	}
	if gw.calls[0].caption != "Jericoacoara Essencial" {
		t.Errorf("first image must carry the title caption, got %q", gw.calls[0].caption)
	}
}

func TestProcess_MentionFromCatalogWithoutSearchHit(t *testing.T) {
	// The model answered from conversation memory, so the reply carries no
	// search hits; the card must still come from the active catalog.
	gw := &recordingGateway{}
	p := newProcessor(&stubCatalog{active: []domain.Package{jeriPkg}}, nil, nil, nil)

	sess := waSession()
	sess.UserText = "me mostra as fotos de Jericoacoara"
	reply := &domain.AgentReply{Text: "O Jericoacoara Essencial tem praias incríveis! Quer que eu veja as datas?"}
	p.Process(context.Background(), gw, sess, &domain.ChannelConfig{}, reply)

	var media int
	for _, c := range gw.calls {
		if c.kind == "media" {
			media++
		}
	}
	if media != 1 {
		t.Errorf("expected one card from the catalog, got %d media sends", media)
	}
}

func TestProcess_HandoffNotifiesEverywhere(t *testing.T) {
	gw := &recordingGateway{}
	notifier := &stubNotifier{}
	publisher := &stubPublisher{}
	p := newProcessor(&stubCatalog{}, nil, notifier, publisher)

	cfg := &domain.ChannelConfig{HumanAgentPhone: "5585988887777"}
	reply := &domain.AgentReply{
		Text:    "AUTO_NOTIFY_HUMAN_MARKER\nDestino: Jeri\nViajantes: 2\n---\nJá te conecto com um consultor! 😊",
		Handoff: true,
		Summary: "Destino: Jeri",
	}
	visible := p.Process(context.Background(), gw, waSession(), cfg, reply)

	if strings.Contains(visible, domain.NotifyHumanMarker) || strings.Contains(visible, "Destino:") {
		t.Errorf("summary leaked into visible reply: %q", visible)
	}

	var operatorMsg string
	for _, c := range gw.calls {
		if c.kind == "text" && c.to == "5585988887777" {
			operatorMsg = c.payload
		}
	}
	if !strings.Contains(operatorMsg, "Carlos") || !strings.Contains(operatorMsg, "5585999990000") || !strings.Contains(operatorMsg, "Destino: Jeri") {
		t.Errorf("operator message incomplete: %q", operatorMsg)
	}
	if len(notifier.summaries) != 1 || publisher.leads != 1 {
		t.Errorf("alert fan-out incomplete: notifier=%d publisher=%d", len(notifier.summaries), publisher.leads)
	}
}

func TestProcess_HandoffWithoutMarkerStillNotifies(t *testing.T) {
	// The model invoked the tool but forgot the marker; the structured
	// summary from the tool call still reaches the operator.
	gw := &recordingGateway{}
	p := newProcessor(&stubCatalog{}, nil, nil, nil)

	cfg := &domain.ChannelConfig{HumanAgentPhone: "5585988887777"}
	reply := &domain.AgentReply{Text: "Um consultor vai te chamar!", Handoff: true, Summary: "Destino: Gramado"}
	p.Process(context.Background(), gw, waSession(), cfg, reply)

	found := false
	for _, c := range gw.calls {
		if c.to == "5585988887777" && strings.Contains(c.payload, "Destino: Gramado") {
			found = true
		}
	}
	if !found {
		t.Error("operator notification missing")
	}
}

func TestProcess_ShortReplyBecomesVoiceNote(t *testing.T) {
	gw := &recordingGateway{}
	tts := &stubTTS{audio: []byte("opus")}
	p := newProcessor(&stubCatalog{}, tts, nil, nil)

	reply := &domain.AgentReply{Text: "Oi, Carlos! Para onde vamos?"}
	p.Process(context.Background(), gw, waSession(), &domain.ChannelConfig{}, reply)

	if len(gw.calls) != 1 || gw.calls[0].kind != "audio" {
		t.Fatalf("expected one audio send, got %+v", gw.calls)
	}
	if gw.calls[0].payload != "b3B1cw==" {
		t.Errorf("audio not base64-encoded: %q", gw.calls[0].payload)
	}
}

func TestProcess_LongReplyStaysText(t *testing.T) {
	gw := &recordingGateway{}
	tts := &stubTTS{audio: []byte("opus")}
	p := newProcessor(&stubCatalog{}, tts, nil, nil)

	reply := &domain.AgentReply{Text: strings.Repeat("muito texto ", 20)}
	p.Process(context.Background(), gw, waSession(), &domain.ChannelConfig{}, reply)

	if tts.calls != 0 {
		t.Error("long reply must not be synthesized")
	}
	if len(gw.calls) != 1 || gw.calls[0].kind != "text" {
		t.Fatalf("expected text send, got %+v", gw.calls)
	}
}

func TestProcess_SynthesisFailureFallsBackToText(t *testing.T) {
	gw := &recordingGateway{}
	tts := &stubTTS{err: errors.New("quota")}
	p := newProcessor(&stubCatalog{}, tts, nil, nil)

	reply := &domain.AgentReply{Text: "Oi!"}
	p.Process(context.Background(), gw, waSession(), &domain.ChannelConfig{}, reply)

	if len(gw.calls) != 1 || gw.calls[0].kind != "text" {
		t.Fatalf("expected text fallback, got %+v", gw.calls)
	}
}

func TestProcess_WebPathSendsNothing(t *testing.T) {
	notifier := &stubNotifier{}
	p := newProcessor(&stubCatalog{}, nil, notifier, nil)

	sess := Session{Phone: "web-123", Name: "Ana", Platform: domain.PlatformWeb}
	reply := &domain.AgentReply{
		Text:    "AUTO_NOTIFY_HUMAN_MARKER\nDestino: Jeri\n---\nUm consultor vai te contatar!",
		Handoff: true,
	}
	visible := p.Process(context.Background(), nil, sess, nil, reply)

	if strings.Contains(visible, domain.NotifyHumanMarker) {
		t.Errorf("marker leaked: %q", visible)
	}
	if len(notifier.summaries) != 1 {
		t.Error("web handoff must still alert the operator")
	}
}
