package gpt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hammamikhairi/storyplated/internal/domain"
	"github.com/hammamikhairi/storyplated/internal/logger"
)

var samwise = domain.Character{
	Name:        "Samwise Gamgee",
	Description: "a loyal hobbit gardener",
	Personality: "Humble, hearty, fond of taters.",
}

func completionJSON(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(b)
}

type capturedRequest struct {
	path  string
	query string
	key   string
	body  map[string]any
}

func chatServer(t *testing.T, status int, reply string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	got := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.query = r.URL.Query().Get("api-version")
		got.key = r.Header.Get("api-key")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got.body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestClientChat(t *testing.T) {
	srv, got := chatServer(t, http.StatusOK, completionJSON("Crisp it till it curls."))
	c, err := NewClient(srv.URL+"/v1/", "sk-test", logger.New(logger.LevelOff, nil), WithModel("gpt-4o-mini"))
	if err != nil {
		t.Fatal(err)
	}

	reply, err := c.Chat(context.Background(), "be brief", "how crispy?")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply != "Crisp it till it curls." {
		t.Fatalf("reply = %q", reply)
	}
	if got.path != "/v1/chat/completions" {
		t.Fatalf("path = %q", got.path)
	}
	if got.body["model"] != "gpt-4o-mini" {
		t.Fatalf("model = %v", got.body["model"])
	}
	msgs, _ := got.body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system and user messages, got %v", got.body["messages"])
	}
}

func TestClientAzure(t *testing.T) {
	srv, got := chatServer(t, http.StatusOK, completionJSON("Aye."))
	c, err := NewClient(srv.URL, "az-key", logger.New(logger.LevelOff, nil),
		WithModel("cook-deploy"), WithAzure("2024-02-01"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Chat(context.Background(), "sys", "hi"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if got.path != "/openai/deployments/cook-deploy/chat/completions" {
		t.Fatalf("path = %q", got.path)
	}
	if got.query != "2024-02-01" || got.key != "az-key" {
		t.Fatalf("api-version=%q api-key=%q", got.query, got.key)
	}
}

func TestClientErrors(t *testing.T) {
	if _, err := NewClient("", "", logger.New(logger.LevelOff, nil)); err == nil {
		t.Fatal("expected error for empty key")
	}

	srv, _ := chatServer(t, http.StatusBadRequest, `{"error":{"message":"bad model","type":"invalid_request_error"}}`)
	c, err := NewClient(srv.URL+"/", "sk", logger.New(logger.LevelOff, nil))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Chat(context.Background(), "sys", "hi"); err == nil {
		t.Fatal("expected error for 400 response")
	}
}

type fakeChat struct {
	system, user string
	reply        string
	err          error
}

func (f *fakeChat) Chat(_ context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	return f.reply, f.err
}

func TestAgentAnswer(t *testing.T) {
	chat := &fakeChat{reply: "**Well**, Mr. Frodo,\n\nlow and slow."}
	a := NewAgent(chat, logger.New(logger.LevelOff, nil))

	answer, err := a.Answer(context.Background(), samwise, "  how hot is the pan?  ")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if answer != "Well, Mr. Frodo, low and slow." {
		t.Fatalf("answer = %q", answer)
	}
	if chat.user != "how hot is the pan?" {
		t.Fatalf("question sent = %q", chat.user)
	}
	if !strings.Contains(chat.system, "You are Samwise Gamgee") || !strings.Contains(chat.system, "fond of taters") {
		t.Fatalf("persona prompt missing character: %s", chat.system)
	}
}

func TestAgentAnswerErrors(t *testing.T) {
	tests := []struct {
		name     string
		chat     *fakeChat
		question string
	}{
		{"empty question", &fakeChat{reply: "x"}, "   "},
		{"chat failure", &fakeChat{err: errors.New("timeout")}, "why?"},
		{"blank answer", &fakeChat{reply: "```\n```"}, "why?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAgent(tt.chat, logger.New(logger.LevelOff, nil))
			if _, err := a.Answer(context.Background(), samwise, tt.question); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestPersonaPromptDefaults(t *testing.T) {
	p := PersonaPrompt(domain.Character{})
	if !strings.Contains(p, "a friendly cook") {
		t.Fatalf("prompt without character: %s", p)
	}
}

func TestEcho(t *testing.T) {
	e := NewEcho(10*time.Millisecond, logger.New(logger.LevelOff, nil))
	start := time.Now()
	answer, err := e.Answer(context.Background(), samwise, "More bacon?")
	if err != nil {
		t.Fatal(err)
	}
	if want := "I'm Samwise Gamgee, and I'd be happy to help you with that! More bacon?"; answer != want {
		t.Fatalf("answer = %q", answer)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatal("echo answered without delay")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewEcho(time.Hour, logger.New(logger.LevelOff, nil)).Answer(ctx, samwise, "q"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
