package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/vlogdigital3/agendia-de-viagem/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestOpenAI_Chat_Text(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req oaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("expected default model, got %q", req.Model)
		}
		json.NewEncoder(w).Encode(oaiResponse{
			Choices: []oaiChoice{{
				Message:      oaiMessage{Role: "assistant", Content: "Olá, Carlos!"},
				FinishReason: "stop",
			}},
		})
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{APIBase: srv.URL, APIKey: "k", Logger: testLogger()})
	resp, err := o.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Turn{{Role: domain.RoleUser, Content: "oi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "Olá, Carlos!" {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.HasToolCalls() {
		t.Error("expected no tool calls")
	}
}

func TestOpenAI_Chat_ToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req oaiRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Tools) != 1 || req.Tools[0].Function.Name != "search_packages" {
			t.Errorf("tools not forwarded: %+v", req.Tools)
		}
		if req.ToolChoice != "auto" {
			t.Errorf("expected tool_choice auto, got %q", req.ToolChoice)
		}
		json.NewEncoder(w).Encode(oaiResponse{
			Choices: []oaiChoice{{
				Message: oaiMessage{
					Role: "assistant",
					ToolCalls: []oaiToolCall{{
						ID:   "call_1",
						Type: "function",
						Function: oaiToolCallFn{
							Name:      "search_packages",
							Arguments: `{"query": "Jericoacoara"}`,
						},
					}},
				},
				FinishReason: "tool_calls",
			}},
		})
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{APIBase: srv.URL, APIKey: "k", Logger: testLogger()})
	resp, err := o.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Turn{{Role: domain.RoleUser, Content: "quero Jeri"}},
		Tools:    []domain.ToolDefinition{{Name: "search_packages", Parameters: map[string]any{}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].Arguments["query"] != "Jericoacoara" {
		t.Errorf("arguments not decoded: %v", resp.ToolCalls[0].Arguments)
	}
}

func TestOpenAI_Chat_MalformedArgumentsTolerated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(oaiResponse{
			Choices: []oaiChoice{{
				Message: oaiMessage{
					Role: "assistant",
					ToolCalls: []oaiToolCall{{
						ID:       "call_1",
						Type:     "function",
						Function: oaiToolCallFn{Name: "search_packages", Arguments: `not json`},
					}},
				},
				FinishReason: "tool_calls",
			}},
		})
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{APIBase: srv.URL, APIKey: "k", Logger: testLogger()})
	resp, err := o.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Turn{{Role: domain.RoleUser, Content: "oi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.ToolCalls[0].Arguments == nil {
		t.Error("arguments should default to an empty map")
	}
}

func TestOpenAI_Chat_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{APIBase: srv.URL, APIKey: "bad", Logger: testLogger()})
	_, err := o.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Turn{{Role: domain.RoleUser, Content: "oi"}},
	})
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
}

func TestOpenAI_Chat_ToolTurnRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req oaiRequest
		json.NewDecoder(r.Body).Decode(&req)
		// history: user, assistant w/ tool call, tool result
		if len(req.Messages) != 3 {
			t.Fatalf("expected 3 messages, got %d", len(req.Messages))
		}
		toolMsg := req.Messages[2]
		if toolMsg.Role != "tool" || toolMsg.ToolCallID != "call_1" || toolMsg.Name != "search_packages" {
			t.Errorf("tool turn not serialized: %+v", toolMsg)
		}
		asst := req.Messages[1]
		if len(asst.ToolCalls) != 1 || asst.ToolCalls[0].Function.Name != "search_packages" {
			t.Errorf("assistant tool calls not serialized: %+v", asst)
		}
		json.NewEncoder(w).Encode(oaiResponse{
			Choices: []oaiChoice{{Message: oaiMessage{Role: "assistant", Content: "done"}, FinishReason: "stop"}},
		})
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{APIBase: srv.URL, APIKey: "k", Logger: testLogger()})
	_, err := o.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Turn{
			{Role: domain.RoleUser, Content: "quero Jeri"},
			{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{
				ID: "call_1", Name: "search_packages", Arguments: map[string]any{"query": "jeri"},
			}}},
			{Role: domain.RoleTool, Content: `[]`, ToolCallID: "call_1", ToolName: "search_packages"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
}
