package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vlogdigital3/agendia-de-viagem/internal/agent"
	"github.com/vlogdigital3/agendia-de-viagem/internal/config"
	"github.com/vlogdigital3/agendia-de-viagem/internal/domain"
	"github.com/vlogdigital3/agendia-de-viagem/internal/events"
	"github.com/vlogdigital3/agendia-de-viagem/internal/gateway"
	"github.com/vlogdigital3/agendia-de-viagem/internal/notify"
	"github.com/vlogdigital3/agendia-de-viagem/internal/postproc"
	"github.com/vlogdigital3/agendia-de-viagem/internal/provider"
	"github.com/vlogdigital3/agendia-de-viagem/internal/retention"
	"github.com/vlogdigital3/agendia-de-viagem/internal/store"
	"github.com/vlogdigital3/agendia-de-viagem/internal/webhook"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook and chat server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}

	logger = buildLogger(cfg)

	db, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	persona, err := agent.LoadPersona(cfg.Agent.PersonaPath)
	if err != nil {
		logger.Warn("persona override not loaded, using built-in", "error", err)
	}

	prov := provider.NewOpenAI(provider.OpenAIConfig{
		APIBase:     cfg.Provider.APIBase,
		APIKey:      cfg.Provider.APIKey,
		Model:       cfg.Provider.Model,
		Temperature: cfg.Provider.Temperature,
		Timeout:     time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
		Logger:      logger,
	})

	ag := agent.New(agent.Options{
		Provider:          prov,
		Catalog:           db,
		Persona:           persona,
		MaxToolIterations: cfg.Agent.MaxToolIterations,
		Logger:            logger,
	})

	var tts postproc.Synthesizer
	if cfg.TTS.Enabled {
		key := cfg.TTS.APIKey
		if key == "" {
			key = cfg.Provider.APIKey
		}
		tts = provider.NewTTSClient(provider.TTSConfig{
			APIBase: cfg.Provider.APIBase,
			APIKey:  key,
			Model:   cfg.TTS.Model,
			Voice:   cfg.TTS.Voice,
			Logger:  logger,
		})
	}

	var notifier postproc.Notifier
	if cfg.Notify.Telegram.Enabled {
		tg, err := notify.NewTelegram(notify.TelegramConfig{
			Token:  cfg.Notify.Telegram.Token,
			ChatID: cfg.Notify.Telegram.ChatID,
			Logger: logger,
		})
		if err != nil {
			logger.Warn("telegram notifier disabled", "error", err)
		} else {
			notifier = tg
		}
	}

	var publisher postproc.LeadPublisher
	if cfg.Events.Enabled {
		pub, err := events.New(cfg.Events.URL, cfg.Events.Exchange, logger)
		if err != nil {
			logger.Warn("event publisher disabled", "error", err)
		} else {
			publisher = pub
			defer pub.Close()
		}
	}

	proc := postproc.New(postproc.Options{
		Catalog:     db,
		TTS:         tts,
		Notifier:    notifier,
		Publisher:   publisher,
		TTSMaxChars: cfg.TTS.MaxChars,
		Logger:      logger,
	})

	orch := webhook.NewOrchestrator(webhook.Options{
		Messages:  db,
		Configs:   db,
		Agent:     ag,
		Processor: proc,
		NewGateway: func(ch *domain.ChannelConfig) domain.Gateway {
			return gateway.ForChannel(ch, logger)
		},
		Bootstrap: domain.ChannelConfig{
			Active:          true,
			IgnoreGroups:    cfg.Gateway.IgnoreGroups,
			GatewayURL:      cfg.Gateway.URL,
			GatewayAPIKey:   cfg.Gateway.APIKey,
			HumanAgentPhone: cfg.Gateway.HumanAgentPhone,
		},
		HistoryLimit: cfg.Agent.HistoryLimit,
		LLMTimeout:   time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
		Fallback:     persona.Fallback,
		Logger:       logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Retention.Enabled {
		janitor := retention.New(db, cfg.Retention.Days, cfg.Retention.Schedule, logger)
		if err := janitor.Start(ctx); err != nil {
			logger.Warn("retention janitor disabled", "error", err)
		} else {
			defer janitor.Stop()
		}
	}

	srv := webhook.NewServer(webhook.ServerOptions{
		Addr:            fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Orchestrator:    orch,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
		Logger:          logger,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := os.Stderr
	if cfg.General.LogFile != "" {
		if f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			out = f
		}
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}
