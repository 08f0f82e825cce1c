package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestConvertGeminiMessages(t *testing.T) {
	systemInstruction, contents := convertGeminiMessages([]Message{
		{Role: RoleSystem, Content: "reply in json"},
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi there"},
	})

	if systemInstruction == nil || systemInstruction.Parts[0].Text != "reply in json" {
		t.Fatalf("unexpected system instruction: %#v", systemInstruction)
	}
	if len(contents) != 2 {
		t.Fatalf("expected 2 conversation messages, got %d", len(contents))
	}
	if contents[0].Role != "user" || contents[1].Role != "model" {
		t.Fatalf("unexpected roles: %q %q", contents[0].Role, contents[1].Role)
	}
}

func geminiServer(t *testing.T, text string, check func(body map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if check != nil {
			check(body)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{{"text": text}},
					"role":  "model",
				},
				"finishReason": "STOP",
			}},
		})
	}))
}

func TestGemini_CompleteRequestsJSON(t *testing.T) {
	server := geminiServer(t, ` {"ok":true} `, func(body map[string]any) {
		cfg, _ := body["generationConfig"].(map[string]any)
		if cfg["responseMimeType"] != "application/json" {
			t.Fatalf("expected json mime type, got %#v", cfg)
		}
	})
	defer server.Close()

	client, err := NewClient("gemini", "test-key", "gemini-test", WithBaseURL(server.URL), WithJSONResponse())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	got, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hello"}})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != `{"ok":true}` {
		t.Fatalf("unexpected response %q", got)
	}
}

func TestGemini_Complete_EmptyResult(t *testing.T) {
	server := geminiServer(t, "", nil)
	defer server.Close()

	client, err := newGeminiClient("test-key", "gemini-test", &clientOptions{baseURL: server.URL})
	if err != nil {
		t.Fatalf("newGeminiClient failed: %v", err)
	}

	_, err = client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hello"}})
	if err == nil || !strings.Contains(err.Error(), "empty response") {
		t.Fatalf("expected 'empty response' error, got %v", err)
	}
}

func TestGemini_Complete_NoUserMessage(t *testing.T) {
	client, err := newGeminiClient("test-key", "gemini-test", &clientOptions{})
	if err != nil {
		t.Fatalf("newGeminiClient failed: %v", err)
	}
	if _, err := client.Complete(context.Background(), []Message{{Role: RoleSystem, Content: "x"}}); err == nil {
		t.Fatal("expected error without user messages")
	}
}
