package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewOpenAIClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		client := NewOpenAIClient(OpenAIConfig{
			APIKey: "test-key",
		})

		if client.model != "gpt-5-chat-latest" {
			t.Errorf("model = %q, want %q", client.model, "gpt-5-chat-latest")
		}

		if client.systemPrompt != TutorSystemPrompt {
			t.Error("systemPrompt should default to TutorSystemPrompt")
		}

		if client.baseURL != defaultOpenAIBaseURL {
			t.Errorf("baseURL = %q, want %q", client.baseURL, defaultOpenAIBaseURL)
		}
	})

	t.Run("custom model", func(t *testing.T) {
		client := NewOpenAIClient(OpenAIConfig{
			APIKey: "test-key",
			Model:  "gpt-4o",
		})

		if client.model != "gpt-4o" {
			t.Errorf("model = %q, want %q", client.model, "gpt-4o")
		}
	})
}

// planServer returns a test server that answers chat completions with the
// given assistant content.
func planServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		resp := map[string]any{
			"id":    "chatcmpl-test",
			"model": "gpt-5-chat-latest",
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
			"usage": map[string]any{
				"prompt_tokens":     12,
				"completion_tokens": 7,
				"total_tokens":      19,
				"completion_tokens_details": map[string]any{
					"reasoning_tokens": 2,
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestPlanReply(t *testing.T) {
	content := `{"speech_text":"Hello! Tell me about yourself.","hindi_line_to_read":"","ui_action":{"action":"NONE","payload":{}}}`
	srv := planServer(t, content)
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})

	reply, err := client.PlanReply(context.Background(), "Hi", nil)
	if err != nil {
		t.Fatalf("PlanReply: %v", err)
	}

	if reply.SpeechText != "Hello! Tell me about yourself." {
		t.Errorf("SpeechText = %q", reply.SpeechText)
	}
	if reply.UIAction.Action != "NONE" {
		t.Errorf("UIAction.Action = %q, want NONE", reply.UIAction.Action)
	}
	if reply.Usage.TotalTokens != 19 || reply.Usage.ReasoningTokens != 2 {
		t.Errorf("Usage = %+v", reply.Usage)
	}
	if reply.Model != "gpt-5-chat-latest" {
		t.Errorf("Model = %q", reply.Model)
	}
}

func TestPlanReplyMarkdownFence(t *testing.T) {
	content := "```json\n{\"speech_text\":\"Hi\",\"hindi_line_to_read\":\"\",\"ui_action\":{\"action\":\"NONE\",\"payload\":{}}}\n```"
	srv := planServer(t, content)
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})

	reply, err := client.PlanReply(context.Background(), "Hi", nil)
	if err != nil {
		t.Fatalf("PlanReply: %v", err)
	}
	if reply.SpeechText != "Hi" {
		t.Errorf("SpeechText = %q, want %q", reply.SpeechText, "Hi")
	}
}

func TestPlanReplyUnparseableContent(t *testing.T) {
	srv := planServer(t, "this is not json at all")
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})

	_, err := client.PlanReply(context.Background(), "Hi", nil)
	if err == nil {
		t.Fatal("expected parse error, got nil")
	}
	if !strings.Contains(err.Error(), "parse") {
		t.Errorf("error = %v, want parse error", err)
	}
}

func TestPlanReplyProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limit"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})

	_, err := client.PlanReply(context.Background(), "Hi", nil)
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestGenerateTitle(t *testing.T) {
	srv := planServer(t, "  Learning Hindi Basics \n")
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})

	title, err := client.GenerateTitle(context.Background(), "I want to learn Hindi")
	if err != nil {
		t.Fatalf("GenerateTitle: %v", err)
	}
	if title != "Learning Hindi Basics" {
		t.Errorf("title = %q", title)
	}
}
