package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOllamaClient_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("request asked for streaming")
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != RoleSystem {
			t.Errorf("messages = %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model":             req.Model,
			"message":           map[string]string{"role": "assistant", "content": "[WEATHER:Seoul]"},
			"done":              true,
			"prompt_eval_count": 42,
			"eval_count":        7,
		})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, 5*time.Second, nil)
	resp, err := c.Chat(context.Background(), "qwen2.5:7b", []Message{System("sys"), User("weather?")})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "[WEATHER:Seoul]" || resp.Message.Role != RoleAssistant {
		t.Errorf("message = %+v", resp.Message)
	}
	if resp.InputTokens != 42 || resp.OutputTokens != 7 {
		t.Errorf("tokens = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestOllamaClient_ChatError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, 5*time.Second, nil)
	_, err := c.Chat(context.Background(), "missing", []Message{User("hi")})
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("err = %v, want body in error", err)
	}
}

func TestOllamaClient_PingAndList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"qwen2.5:7b"},{"name":"llama3:8b"}]}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL+"/", 5*time.Second, nil)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 || models[1] != "llama3:8b" {
		t.Errorf("models = %v", models)
	}
}

type stubClient struct {
	name  string
	calls int
}

func (s *stubClient) Chat(_ context.Context, _ string, _ []Message) (*ChatResponse, error) {
	s.calls++
	return &ChatResponse{Message: Assistant(s.name)}, nil
}

func (s *stubClient) Ping(context.Context) error {
	if s.name == "down" {
		return errors.New("down")
	}
	return nil
}

func TestMultiClient_Routing(t *testing.T) {
	local := &stubClient{name: "local"}
	remote := &stubClient{name: "remote"}

	m := NewMultiClient(local)
	m.AddProvider("openai", remote)
	m.AddModel("gpt-4o-mini", "openai")
	m.AddModel("orphan", "unregistered")

	tests := []struct {
		model string
		want  string
	}{
		{"gpt-4o-mini", "remote"},
		{"qwen2.5:7b", "local"},
		{"orphan", "local"},
	}
	for _, tt := range tests {
		resp, err := m.Chat(context.Background(), tt.model, nil)
		if err != nil {
			t.Fatalf("Chat(%s): %v", tt.model, err)
		}
		if resp.Message.Content != tt.want {
			t.Errorf("Chat(%s) routed to %q, want %q", tt.model, resp.Message.Content, tt.want)
		}
	}

	if err := NewMultiClient(nil).Ping(context.Background()); err == nil {
		t.Error("Ping without a primary provider should error")
	}
}

func TestToOpenAIMessages(t *testing.T) {
	got := toOpenAIMessages([]Message{System("s"), User("u"), Assistant("a"), {Role: "tool", Content: "t"}})
	wantRoles := []string{"system", "user", "assistant", "user"}
	for i, m := range got {
		if m.Role != wantRoles[i] {
			t.Errorf("message %d role = %q, want %q", i, m.Role, wantRoles[i])
		}
	}
}
