// Package postproc turns raw agent output into user-visible messages:
// marker parsing, mention-driven media dispatch, human handoff and
// voice-note synthesis. Markers never survive into storage or the wire.
package postproc

import (
	"regexp"
	"strings"

	"github.com/vlogdigital3/agendia-de-viagem/internal/domain"
)

var (
	galleryPattern   = regexp.MustCompile(regexp.QuoteMeta(domain.GalleryMarker) + `\[([^\]]*)\]`)
	markdownImage    = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	blankLinePattern = regexp.MustCompile(`\n{3,}`)
)

const defaultGoodbye = "Perfeito! Já passei seus dados para um dos nossos consultores, que vai falar com você em instantes. Obrigada pela confiança! 😊"

// ExtractGalleries pulls every gallery marker out of the text. It returns
// the requested package names and the text with all markers removed,
// including malformed bare markers without an argument.
func ExtractGalleries(text string) ([]string, string) {
	var names []string
	for _, m := range galleryPattern.FindAllStringSubmatch(text, -1) {
		if name := strings.TrimSpace(m[1]); name != "" {
			names = append(names, name)
		}
	}
	cleaned := galleryPattern.ReplaceAllString(text, "")
	cleaned = strings.ReplaceAll(cleaned, domain.GalleryMarker, "")
	return names, tidy(cleaned)
}

// ParseNotify splits a handoff reply into the operator summary and the
// user-visible goodbye. The grammar is marker, summary, a line containing
// only "---", goodbye. A missing delimiter treats everything after the
// marker as summary and falls back to the default goodbye.
func ParseNotify(text string) (summary, goodbye string, found bool) {
	idx := strings.Index(text, domain.NotifyHumanMarker)
	if idx < 0 {
		return "", text, false
	}

	before := text[:idx]
	after := text[idx+len(domain.NotifyHumanMarker):]

	if s, g, ok := strings.Cut(after, "\n---\n"); ok {
		summary, goodbye = s, g
	} else if s, g, ok := strings.Cut(after, "---"); ok {
		summary, goodbye = s, g
	} else {
		summary = after
	}

	summary = tidy(summary)
	goodbye = tidy(before + goodbye)
	if goodbye == "" {
		goodbye = defaultGoodbye
	}
	return summary, goodbye, true
}

// StripMarkdownImages removes residual ![alt](url) syntax the model
// sometimes emits despite the persona. Image dispatch goes through the
// gateway, never through inline markdown.
func StripMarkdownImages(text string) string {
	return tidy(markdownImage.ReplaceAllString(text, ""))
}

func tidy(s string) string {
	s = blankLinePattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
