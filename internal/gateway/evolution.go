// Package gateway implements the Evolution API adapter used to dispatch
// outbound WhatsApp messages. The gateway owns connection and session
// management (QR pairing, instance lifecycle); this client only sends.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vlogdigital3/agendia-de-viagem/internal/domain"
)

const defaultSendDelayMs = 1200

// Evolution implements domain.Gateway against an Evolution API instance.
type Evolution struct {
	baseURL  string
	apiKey   string
	instance string
	client   *http.Client
	logger   *slog.Logger
}

type Config struct {
	BaseURL  string
	APIKey   string
	Instance string
	Logger   *slog.Logger
}

func NewEvolution(cfg Config) *Evolution {
	return &Evolution{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		instance: cfg.Instance,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   cfg.Logger,
	}
}

// ForChannel builds a gateway client from a per-instance channel config.
func ForChannel(cfg *domain.ChannelConfig, logger *slog.Logger) *Evolution {
	return NewEvolution(Config{
		BaseURL:  cfg.GatewayURL,
		APIKey:   cfg.GatewayAPIKey,
		Instance: cfg.InstanceName,
		Logger:   logger,
	})
}

type sendTextPayload struct {
	Number  string      `json:"number"`
	Options sendOptions `json:"options"`
	Text    string      `json:"text"`
}

type sendOptions struct {
	Delay    int    `json:"delay"`
	Presence string `json:"presence"`
}

type sendMediaPayload struct {
	Number    string `json:"number"`
	Media     string `json:"media"`
	MediaType string `json:"mediatype"`
	Caption   string `json:"caption,omitempty"`
}

type sendAudioPayload struct {
	Number   string `json:"number"`
	Audio    string `json:"audio"`
	Encoding string `json:"encoding"`
}

type presencePayload struct {
	Number   string `json:"number"`
	Presence string `json:"presence"`
}

func (e *Evolution) SendText(ctx context.Context, to, text string) error {
	return e.post(ctx, "/message/sendText/"+e.instance, sendTextPayload{
		Number:  to,
		Options: sendOptions{Delay: defaultSendDelayMs, Presence: domain.PresenceComposing},
		Text:    text,
	})
}

func (e *Evolution) SendMedia(ctx context.Context, to, url string, kind domain.MediaKind, caption string) error {
	return e.post(ctx, "/message/sendMedia/"+e.instance, sendMediaPayload{
		Number:    to,
		Media:     url,
		MediaType: string(kind),
		Caption:   caption,
	})
}

func (e *Evolution) SendAudio(ctx context.Context, to, audioBase64 string) error {
	return e.post(ctx, "/message/sendWhatsAppAudio/"+e.instance, sendAudioPayload{
		Number:   to,
		Audio:    audioBase64,
		Encoding: "base64",
	})
}

func (e *Evolution) SetPresence(ctx context.Context, to, state string) error {
	return e.post(ctx, "/chat/retrivePresence/"+e.instance, presencePayload{
		Number:   to,
		Presence: state,
	})
}

// WebhookInfo is the gateway's webhook registration for this instance.
type WebhookInfo struct {
	URL     string   `json:"url"`
	Enabled bool     `json:"enabled"`
	Events  []string `json:"events,omitempty"`
}

// GetWebhook fetches the current webhook registration (used by `status`).
func (e *Evolution) GetWebhook(ctx context.Context) (*WebhookInfo, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", e.baseURL+"/webhook/find/"+e.instance, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gateway %d: %s", resp.StatusCode, string(body))
	}

	var info WebhookInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &info, nil
}

// SetWebhook points the gateway at our inbound webhook URL.
func (e *Evolution) SetWebhook(ctx context.Context, info WebhookInfo) error {
	return e.post(ctx, "/webhook/set/"+e.instance, map[string]any{"webhook": info})
}

func (e *Evolution) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gateway %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
