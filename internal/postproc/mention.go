package postproc

import (
	"regexp"
	"strings"

	"github.com/vlogdigital3/agendia-de-viagem/internal/domain"
)

// Mention is one catalog package the assistant talked about this turn,
// with the media depth the conversation calls for.
type Mention struct {
	Package  domain.Package
	DeepDive bool // send the full gallery and videos, not just the card
}

const (
	deepDiveLength  = 500
	maxMentionCards = 2
)

var (
	wantsMorePattern = regexp.MustCompile(`(?i)\b(fotos?|imagens?|videos?|vídeos?|me mostra|quero ver|mais detalhes|pode mostrar)\b`)
	detailPattern    = regexp.MustCompile(`(?i)\b(roteiro|incluso|inclui|hospedagem|dia a dia|passeios|completo)\b`)
)

// genericTokens never identify a package on their own.
var genericTokens = map[string]bool{
	"pacote": true, "viagem": true, "praia": true, "serra": true,
	"dias": true, "noites": true, "essencial": true, "completo": true,
	"nacional": true, "internacional": true, "promocional": true,
}

var accentReplacer = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a", "ä", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"í", "i", "ì", "i", "î", "i", "ï", "i",
	"ó", "o", "ò", "o", "ô", "o", "õ", "o", "ö", "o",
	"ú", "u", "ù", "u", "û", "u", "ü", "u",
	"ç", "c", "ñ", "n",
)

// normalize lowercases, strips accents and keeps only alphanumerics and
// spaces, so "Jericoacoara!" and "jericoacoara" compare equal.
func normalize(s string) string {
	s = accentReplacer.Replace(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return b.String()
}

// nameTokens derives the identifying tokens of a package title: the main
// name before any dash-separated subtitle, split into words longer than
// three characters, minus the generic vocabulary.
func nameTokens(title string) []string {
	main := title
	for _, sep := range []string{"–", " - "} {
		if i := strings.Index(main, sep); i >= 0 {
			main = main[:i]
		}
	}
	var out []string
	for _, tok := range strings.Fields(normalize(main)) {
		if len(tok) > 3 && !genericTokens[tok] {
			out = append(out, tok)
		}
	}
	return out
}

func mentions(normalizedText string, pkg domain.Package) bool {
	for _, tok := range nameTokens(pkg.Title) {
		if strings.Contains(normalizedText, tok) {
			return true
		}
	}
	return false
}

// DetectMentions is the pure decision function for media dispatch. A card
// goes out when the assistant names a package it had not named in its
// previous message, or when the user explicitly asked to see more, capped
// at two packages per turn. The deep dive escalation fires on a long reply
// or when the user's message carries detail vocabulary.
func DetectMentions(assistantText, lastAssistant, userText string, packages []domain.Package) []Mention {
	normNow := normalize(assistantText)
	normLast := normalize(lastAssistant)
	wantsMore := wantsMorePattern.MatchString(userText)
	deepDive := len([]rune(assistantText)) > deepDiveLength || detailPattern.MatchString(userText)

	var out []Mention
	for _, pkg := range packages {
		if !mentions(normNow, pkg) {
			continue
		}
		justMentioned := mentions(normLast, pkg)
		if justMentioned && !wantsMore {
			continue
		}
		out = append(out, Mention{Package: pkg, DeepDive: deepDive})
		if len(out) == maxMentionCards {
			break
		}
	}
	return out
}
