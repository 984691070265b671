// Package agent runs the lead-qualification assistant: a bounded
// tool-calling loop over the model provider, grounded on the package
// catalog. The agent never returns a hard failure to the pipeline; a
// provider outage degrades into a canned reply.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vlogdigital3/agendia-de-viagem/internal/domain"
)

const (
	toolSearchPackages = "search_packages"
	toolRequestHuman   = "request_human_assistance"

	searchLimit      = 10
	fallbackPackages = 3
	minKeywordRunes  = 2
)

// Agent answers one conversation turn at a time.
type Agent struct {
	provider domain.Provider
	catalog  domain.CatalogStore
	persona  Persona
	maxIter  int
	logger   *slog.Logger
}

type Options struct {
	Provider          domain.Provider
	Catalog           domain.CatalogStore
	Persona           Persona
	MaxToolIterations int
	Logger            *slog.Logger
}

func New(opts Options) *Agent {
	if opts.MaxToolIterations <= 0 {
		opts.MaxToolIterations = 5
	}
	return &Agent{
		provider: opts.Provider,
		catalog:  opts.Catalog,
		persona:  opts.Persona,
		maxIter:  opts.MaxToolIterations,
		logger:   opts.Logger,
	}
}

func (a *Agent) tools() []domain.ToolDefinition {
	return []domain.ToolDefinition{
		{
			Name:        toolSearchPackages,
			Description: "Busca pacotes de viagem no catálogo da agência por palavras-chave. Use sempre que o cliente citar um destino ou pedir opções.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Destino ou termos de busca citados pelo cliente, por exemplo 'Jericoacoara' ou 'praia nordeste'.",
					},
					"category": map[string]any{
						"type":        "string",
						"description": "Categoria opcional: praia, serra, internacional, romântico, família.",
					},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        toolRequestHuman,
			Description: "Aciona um consultor humano quando o lead está totalmente qualificado (destino, período, viajantes e perfil) e demonstra intenção de compra.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"reason": map[string]any{
						"type":        "string",
						"description": "Motivo do acionamento.",
					},
					"user_details": map[string]any{
						"type":        "string",
						"description": "O que já se sabe sobre o lead.",
					},
				},
				"required": []string{"reason"},
			},
		},
	}
}

// Reply runs the tool loop for one inbound message. history already
// includes the new user turn. Provider failures degrade into the persona's
// canned fallback; the error return is reserved for context cancellation.
func (a *Agent) Reply(ctx context.Context, history []domain.Turn, senderName string, platform domain.Platform) (*domain.AgentReply, error) {
	msgs := make([]domain.Turn, 0, len(history)+1)
	msgs = append(msgs, domain.Turn{
		Role:    domain.RoleSystem,
		Content: a.persona.systemPrompt(senderName, platform),
	})
	msgs = append(msgs, history...)

	reply := &domain.AgentReply{}

	for i := 0; i < a.maxIter; i++ {
		req := domain.ChatRequest{Messages: msgs}
		if i < a.maxIter-1 {
			// The last iteration omits tools so the loop always
			// terminates with visible text.
			req.Tools = a.tools()
		}

		resp, err := a.provider.Chat(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Error("model call failed, using fallback", "error", err)
			reply.Text = a.persona.Fallback(platform)
			return reply, nil
		}

		if !resp.HasToolCalls() {
			reply.Text = resp.Content
			if strings.TrimSpace(reply.Text) == "" {
				reply.Text = a.persona.Fallback(platform)
			}
			return reply, nil
		}

		msgs = append(msgs, domain.Turn{
			Role:      domain.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, tc := range resp.ToolCalls {
			result := a.execute(ctx, tc, msgs, reply)
			msgs = append(msgs, domain.Turn{
				Role:       domain.RoleTool,
				Content:    result,
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
			})
		}
	}

	// Tool budget exhausted without a text reply.
	a.logger.Warn("tool iteration budget exhausted")
	reply.Text = a.persona.Fallback(platform)
	return reply, nil
}

func (a *Agent) execute(ctx context.Context, tc domain.ToolCall, history []domain.Turn, reply *domain.AgentReply) string {
	switch tc.Name {
	case toolSearchPackages:
		return a.searchPackages(ctx, tc.Arguments, reply)
	case toolRequestHuman:
		return a.requestHuman(ctx, tc.Arguments, history, reply)
	default:
		a.logger.Warn("model called unknown tool", "tool", tc.Name)
		return fmt.Sprintf("Ferramenta %q não existe.", tc.Name)
	}
}

// searchResult is the slim package view handed back to the model. Price is
// included so the model can answer once the lead is qualified; the persona
// gates when it may be disclosed.
type searchResult struct {
	Title       string `json:"titulo"`
	Description string `json:"descricao"`
	Price       string `json:"preco,omitempty"`
	Category    string `json:"categoria,omitempty"`
}

func (a *Agent) searchPackages(ctx context.Context, args map[string]any, reply *domain.AgentReply) string {
	query, _ := args["query"].(string)
	category, _ := args["category"].(string)
	keywords := extractKeywords(query)

	pkgs, err := a.catalog.SearchPackages(ctx, keywords, category, searchLimit)
	if err != nil {
		a.logger.Error("catalog search failed", "error", err)
		return "Erro temporário ao consultar o catálogo. Peça ao cliente para aguardar um instante."
	}

	if len(pkgs) == 0 {
		if len(keywords) == 0 {
			// Generic ask with nothing matched: surface a few actives
			// so the assistant has something real to offer.
			pkgs, err = a.catalog.ActivePackages(ctx, fallbackPackages)
			if err != nil {
				a.logger.Error("catalog fallback failed", "error", err)
			}
		}
		if len(pkgs) == 0 {
			return fmt.Sprintf("Nenhum pacote encontrado para %q. Este destino NÃO está no catálogo: diga ao cliente que não trabalha com ele no momento e ofereça apenas destinos retornados pela busca.", query)
		}
	}

	reply.Packages = appendUniquePackages(reply.Packages, pkgs)

	results := make([]searchResult, len(pkgs))
	for i, p := range pkgs {
		results[i] = searchResult{
			Title:       p.Title,
			Description: p.Description,
			Price:       p.Price,
			Category:    p.Category,
		}
	}
	// Plain marshalling HTML-escapes & and <, which garbles titles like
	// "Aventura & Charme" for the model.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(results); err != nil {
		return "Erro ao formatar o catálogo."
	}
	return strings.TrimSpace(buf.String())
}

func (a *Agent) requestHuman(ctx context.Context, args map[string]any, history []domain.Turn, reply *domain.AgentReply) string {
	summary := a.summarizeLead(ctx, history)
	if summary == "" {
		details, _ := args["user_details"].(string)
		reason, _ := args["reason"].(string)
		summary = strings.TrimSpace("Motivo: " + reason + "\n" + details)
	}

	reply.Handoff = true
	reply.Summary = summary

	return "Consultor humano acionado. Resumo do lead:\n" + summary +
		"\n\nResponda agora começando com " + domain.NotifyHumanMarker +
		", depois o resumo acima, uma linha contendo apenas ---, e por fim a despedida para o cliente."
}

// summarizeLead runs a second, independent model call with the summarizer
// persona over the visible conversation.
func (a *Agent) summarizeLead(ctx context.Context, history []domain.Turn) string {
	var transcript strings.Builder
	for _, t := range history {
		switch t.Role {
		case domain.RoleUser:
			transcript.WriteString("Cliente: " + t.Content + "\n")
		case domain.RoleAssistant:
			if t.Content != "" {
				transcript.WriteString("Sofia: " + t.Content + "\n")
			}
		}
	}

	resp, err := a.provider.Chat(ctx, domain.ChatRequest{
		Messages: []domain.Turn{
			{Role: domain.RoleSystem, Content: a.persona.Summarizer},
			{Role: domain.RoleUser, Content: transcript.String()},
		},
		Temperature: 0.2,
		MaxTokens:   300,
	})
	if err != nil {
		a.logger.Error("lead summarizer failed", "error", err)
		return ""
	}
	return strings.TrimSpace(resp.Content)
}

// extractKeywords lowercases the query and keeps tokens of at least two
// runes, so fillers like "e", "o", "a" never widen the OR filter.
func extractKeywords(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()")
		if len([]rune(f)) >= minKeywordRunes {
			out = append(out, f)
		}
	}
	return out
}

func appendUniquePackages(dst, src []domain.Package) []domain.Package {
	for _, p := range src {
		seen := false
		for _, d := range dst {
			if d.ID == p.ID {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, p)
		}
	}
	return dst
}
