package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vlogdigital3/agendia-de-viagem/internal/metrics"
)

// Server exposes the pipeline over HTTP.
type Server struct {
	orch   *Orchestrator
	logger *slog.Logger
	srv    *http.Server
}

type ServerOptions struct {
	Addr            string
	Orchestrator    *Orchestrator
	MetricsEnabled  bool
	MetricsEndpoint string
	Logger          *slog.Logger
}

func NewServer(opts ServerOptions) *Server {
	s := &Server{orch: opts.Orchestrator, logger: opts.Logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/whatsapp", requireMethod(http.MethodPost, s.handleWhatsApp))
	mux.HandleFunc("/chat", requireMethod(http.MethodPost, s.handleChat))
	mux.HandleFunc("/healthz", requireMethod(http.MethodGet, s.handleHealth))
	if opts.MetricsEnabled {
		endpoint := opts.MetricsEndpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		mux.HandleFunc(endpoint, requireMethod(http.MethodGet, metrics.Collector.Handler()))
	}

	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.srv.Addr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type webhookAck struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// handleWhatsApp acks every classifiable delivery with 200. Only an
// unparseable payload gets 400, and only a store failure gets 500; the
// gateway retries those.
func (s *Server) handleWhatsApp(w http.ResponseWriter, r *http.Request) {
	ev, err := ParseInbound(r.Body)
	if err != nil {
		s.logger.Warn("unparseable webhook payload", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := s.orch.HandleInbound(r.Context(), ev); err != nil {
		s.logger.Error("webhook pipeline failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, webhookAck{Success: true})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("decode request: %v", err)})
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content is required"})
		return
	}

	resp, err := s.orch.HandleChat(r.Context(), req)
	if err != nil {
		s.logger.Error("chat pipeline failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireMethod emulates Go 1.22+ method-qualified mux patterns on the
// Go 1.21 ServeMux, which treats "POST /path" as a literal path.
func requireMethod(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
