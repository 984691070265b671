// Package webhook is the ingestion pipeline: it receives gateway
// deliveries and web-chat requests, runs the filter, the agent and the
// post-processor, and persists the resulting turns. Each delivery is one
// independent request-response cycle; all conversation state lives in the
// store.
package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vlogdigital3/agendia-de-viagem/internal/domain"
	"github.com/vlogdigital3/agendia-de-viagem/internal/filter"
	"github.com/vlogdigital3/agendia-de-viagem/internal/metrics"
	"github.com/vlogdigital3/agendia-de-viagem/internal/postproc"
)

// Replier is the agent surface the orchestrator depends on.
type Replier interface {
	Reply(ctx context.Context, history []domain.Turn, senderName string, platform domain.Platform) (*domain.AgentReply, error)
}

// GatewayFactory builds an outbound client for a channel config. Injected
// so tests can capture sends.
type GatewayFactory func(cfg *domain.ChannelConfig) domain.Gateway

// Orchestrator wires one webhook delivery through the full pipeline.
type Orchestrator struct {
	messages   domain.MessageStore
	configs    domain.ConfigStore
	agent      Replier
	processor  *postproc.Processor
	newGateway GatewayFactory

	bootstrap    domain.ChannelConfig // defaults for unknown instances
	historyLimit int
	llmTimeout   time.Duration
	fallback     func(domain.Platform) string
	logger       *slog.Logger
}

type Options struct {
	Messages     domain.MessageStore
	Configs      domain.ConfigStore
	Agent        Replier
	Processor    *postproc.Processor
	NewGateway   GatewayFactory
	Bootstrap    domain.ChannelConfig
	HistoryLimit int
	LLMTimeout   time.Duration
	Fallback     func(domain.Platform) string
	Logger       *slog.Logger
}

func NewOrchestrator(opts Options) *Orchestrator {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	if opts.LLMTimeout <= 0 {
		opts.LLMTimeout = 60 * time.Second
	}
	return &Orchestrator{
		messages:     opts.Messages,
		configs:      opts.Configs,
		agent:        opts.Agent,
		processor:    opts.Processor,
		newGateway:   opts.NewGateway,
		bootstrap:    opts.Bootstrap,
		historyLimit: opts.HistoryLimit,
		llmTimeout:   opts.LLMTimeout,
		fallback:     opts.Fallback,
		logger:       opts.Logger,
	}
}

// HandleInbound runs one WhatsApp delivery end to end. The error return is
// reserved for store failures that prevent classification; filtered events
// and downstream failures are handled states, not errors.
func (o *Orchestrator) HandleInbound(ctx context.Context, ev domain.InboundEvent) error {
	started := time.Now()
	metrics.WebhooksTotal.Inc()

	cfg, err := o.channelConfig(ctx, ev.InstanceName)
	if err != nil {
		return fmt.Errorf("resolve channel config: %w", err)
	}

	lastUser, err := o.messages.LastUserRecord(ctx, ev.Phone)
	if err != nil {
		return fmt.Errorf("load last user turn: %w", err)
	}

	if res := filter.Evaluate(ev, cfg, lastUser, time.Now()); !res.Accepted {
		metrics.WebhooksFiltered(string(res.Reason)).Inc()
		o.logger.Debug("event filtered", "reason", res.Reason, "phone", ev.Phone, "instance", ev.InstanceName)
		return nil
	}

	history, err := o.messages.LastTurns(ctx, ev.Phone, o.historyLimit)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	lastAssistant, err := o.messages.LastAssistantText(ctx, ev.Phone)
	if err != nil {
		return fmt.Errorf("load last assistant turn: %w", err)
	}

	userTurn := domain.Turn{Role: domain.RoleUser, Content: ev.Text}
	reply := o.invokeAgent(ctx, append(history, userTurn), ev.SenderName, domain.PlatformWhatsApp)

	sess := postproc.Session{
		Phone:         ev.Phone,
		Name:          ev.SenderName,
		Platform:      domain.PlatformWhatsApp,
		UserText:      ev.Text,
		LastAssistant: lastAssistant,
	}
	visible := o.processor.Process(ctx, o.newGateway(cfg), sess, cfg, reply)
	metrics.GatewaySends.Inc()
	if reply.Handoff {
		metrics.HandoffsTotal.Inc()
	}

	// Both turns land together so a crash cannot persist the question
	// without its answer.
	assistantTurn := domain.Turn{Role: domain.RoleAssistant, Content: visible}
	if err := o.messages.AppendTurns(ctx, ev.Phone, userTurn, assistantTurn); err != nil {
		o.logger.Error("history append failed", "phone", ev.Phone, "error", err)
	}

	metrics.PipelineLatency.Observe(time.Since(started).Seconds())
	return nil
}

// ChatRequest is the web-widget request body.
type ChatRequest struct {
	Messages  []domain.Turn `json:"messages,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	UserName  string        `json:"user_name,omitempty"`
	Content   string        `json:"content"`
}

// ChatResponse is the web-widget reply.
type ChatResponse struct {
	Content   string           `json:"content"`
	SessionID string           `json:"session_id"`
	Packages  []domain.Package `json:"packages,omitempty"`
}

// HandleChat serves one web-widget turn. When the client supplies no
// explicit message history, it is loaded from the store under the session
// key; a missing session id mints a new UUID.
func (o *Orchestrator) HandleChat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	history := req.Messages
	if len(history) == 0 {
		stored, err := o.messages.LastTurns(ctx, sessionID, o.historyLimit)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		history = stored
	}
	userTurn := domain.Turn{Role: domain.RoleUser, Content: req.Content}
	history = append(history, userTurn)

	reply := o.invokeAgent(ctx, history, req.UserName, domain.PlatformWeb)

	sess := postproc.Session{
		Phone:    sessionID,
		Name:     req.UserName,
		Platform: domain.PlatformWeb,
		UserText: req.Content,
	}
	visible := o.processor.Process(ctx, nil, sess, nil, reply)
	if reply.Handoff {
		metrics.HandoffsTotal.Inc()
	}

	assistantTurn := domain.Turn{Role: domain.RoleAssistant, Content: visible}
	if err := o.messages.AppendTurns(ctx, sessionID, userTurn, assistantTurn); err != nil {
		o.logger.Error("history append failed", "session", sessionID, "error", err)
	}

	return &ChatResponse{
		Content:   visible,
		SessionID: sessionID,
		Packages:  reply.Packages,
	}, nil
}

// invokeAgent runs the agent under the per-request model timeout. A
// timeout degrades into the canned fallback, same as a provider outage.
func (o *Orchestrator) invokeAgent(ctx context.Context, history []domain.Turn, senderName string, platform domain.Platform) *domain.AgentReply {
	llmCtx, cancel := context.WithTimeout(ctx, o.llmTimeout)
	defer cancel()

	started := time.Now()
	metrics.LLMRequestsTotal.Inc()
	reply, err := o.agent.Reply(llmCtx, history, senderName, platform)
	metrics.LLMLatency.Observe(time.Since(started).Seconds())

	if err != nil {
		o.logger.Error("agent invocation failed", "error", err)
		return &domain.AgentReply{Text: o.fallback(platform)}
	}
	return reply
}

// channelConfig loads the instance config, bootstrapping an unknown
// instance with the configured defaults.
func (o *Orchestrator) channelConfig(ctx context.Context, instanceName string) (*domain.ChannelConfig, error) {
	cfg, err := o.configs.GetChannelConfig(ctx, instanceName)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}

	defaults := o.bootstrap
	defaults.InstanceName = instanceName
	o.logger.Info("bootstrapping channel config", "instance", instanceName)
	return o.configs.EnsureChannelConfig(ctx, defaults)
}
