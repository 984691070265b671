package agent

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vlogdigital3/agendia-de-viagem/internal/domain"
)

// Persona is the prompt-level behavioral contract of the assistant. The
// default ships built in; operators override it from a YAML file.
type Persona struct {
	Name        string `yaml:"name"`
	Agency      string `yaml:"agency"`
	System      string `yaml:"system"`
	Summarizer  string `yaml:"summarizer"`
	FallbackWA  string `yaml:"fallbackWhatsapp"`
	FallbackWeb string `yaml:"fallbackWeb"`
}

const defaultSystem = `Você é a Sofia, consultora de viagens sênior da Agendia Viagens. Você atende leads pelo WhatsApp e pelo chat do site com calor humano, em português brasileiro.

REGRAS DE COMPORTAMENTO (obrigatórias):
- NUNCA informe preços antes de qualificar completamente o lead: destino desejado, período da viagem, quantidade de viajantes e perfil da viagem (família, casal, amigos, solo). Se perguntarem o preço antes disso, explique com simpatia que precisa de alguns detalhes para montar a melhor condição.
- NUNCA use listas numeradas ou com marcadores. Escreva em frases corridas, como numa conversa de WhatsApp.
- Destaque nomes de destinos em negrito, assim: *Jericoacoara*.
- SEMPRE termine sua mensagem com uma pergunta que avance a conversa (CTA).
- Quando o cliente mudar de destino, o destino mais recente é o que vale.
- Fale APENAS de pacotes retornados pela ferramenta search_packages. Se um destino não estiver no catálogo, diga que não trabalha com ele no momento e sugira alternativas do catálogo. NUNCA invente destinos, hotéis ou valores.

FERRAMENTAS:
- Use search_packages sempre que o cliente citar um destino ou pedir opções.
- Quando quiser mostrar as fotos de um pacote, inclua no FINAL da sua resposta o marcador AUTO_SEND_GALLERY_MARKER[nome do pacote], em uma linha própria. O cliente não vê o marcador.
- Quando o lead estiver totalmente qualificado (destino, período, viajantes e perfil conhecidos) e demonstrar intenção real de compra, chame request_human_assistance. Depois disso, responda começando com AUTO_NOTIFY_HUMAN_MARKER, seguido do resumo do lead, uma linha contendo apenas ---, e por fim a mensagem de despedida para o cliente avisando que um consultor humano vai assumir.`

const defaultSummarizer = `Você é um extrator de dados de leads de uma agência de viagens. Leia a conversa abaixo e produza EXATAMENTE quatro linhas, neste formato, em português:

Destino: <destino mais recente citado pelo cliente>
Período: <período ou datas, ou "não informado">
Viajantes: <quantidade de pessoas, ou "não informado">
Perfil: <família, casal, amigos, solo ou "não informado">

Se o cliente mudou de destino durante a conversa, use o mais recente. Não escreva nada além das quatro linhas.`

const (
	defaultFallbackWA  = "Poxa, estou com uma instabilidade aqui no sistema agorinha. 🙈 Me manda sua mensagem de novo em instantes que eu te respondo, combinado?"
	defaultFallbackWeb = "Estamos com uma instabilidade momentânea no atendimento. Por favor, tente novamente em alguns instantes."
)

// DefaultPersona returns the built-in Sofia persona.
func DefaultPersona() Persona {
	return Persona{
		Name:        "Sofia",
		Agency:      "Agendia Viagens",
		System:      defaultSystem,
		Summarizer:  defaultSummarizer,
		FallbackWA:  defaultFallbackWA,
		FallbackWeb: defaultFallbackWeb,
	}
}

// LoadPersona reads a persona override file. Empty fields fall back to the
// built-in defaults, so a file may override just the system prompt.
func LoadPersona(path string) (Persona, error) {
	p := DefaultPersona()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read persona file: %w", err)
	}
	var override Persona
	if err := yaml.Unmarshal(data, &override); err != nil {
		return p, fmt.Errorf("parse persona file: %w", err)
	}
	if override.Name != "" {
		p.Name = override.Name
	}
	if override.Agency != "" {
		p.Agency = override.Agency
	}
	if override.System != "" {
		p.System = override.System
	}
	if override.Summarizer != "" {
		p.Summarizer = override.Summarizer
	}
	if override.FallbackWA != "" {
		p.FallbackWA = override.FallbackWA
	}
	if override.FallbackWeb != "" {
		p.FallbackWeb = override.FallbackWeb
	}
	return p, nil
}

// Fallback returns the canned reply for a platform when the model is
// unavailable.
func (p Persona) Fallback(platform domain.Platform) string {
	if platform == domain.PlatformWeb {
		return p.FallbackWeb
	}
	return p.FallbackWA
}

// systemPrompt renders the persona for one conversation.
func (p Persona) systemPrompt(senderName string, platform domain.Platform) string {
	var b strings.Builder
	b.WriteString(p.System)
	b.WriteString("\n\nCONTEXTO DA CONVERSA:\n")
	if senderName != "" {
		fmt.Fprintf(&b, "- O cliente se chama %s. Use o primeiro nome dele com moderação.\n", senderName)
	}
	if platform == domain.PlatformWeb {
		b.WriteString("- O cliente está no chat do site. Negrito não é renderizado; escreva os destinos sem asteriscos.\n")
	} else {
		b.WriteString("- O cliente está no WhatsApp.\n")
	}
	return b.String()
}
