package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient implements the Planner interface using OpenAI's chat
// completions API.
type OpenAIClient struct {
	apiKey       string
	model        string
	systemPrompt string
	baseURL      string
	httpClient   *http.Client
}

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey       string
	Model        string // e.g., "gpt-5-chat-latest"
	SystemPrompt string // Optional custom persona prompt
	BaseURL      string // Optional override, used by tests
	HTTPClient   *http.Client
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	model := cfg.Model
	if model == "" {
		model = "gpt-5-chat-latest"
	}
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = TutorSystemPrompt
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OpenAIClient{
		apiKey:       cfg.APIKey,
		model:        model,
		systemPrompt: systemPrompt,
		baseURL:      baseURL,
		httpClient:   httpClient,
	}
}

// chatRequest represents an OpenAI chat completion request.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse represents an OpenAI chat completion response.
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens            int `json:"prompt_tokens"`
		CompletionTokens        int `json:"completion_tokens"`
		TotalTokens             int `json:"total_tokens"`
		CompletionTokensDetails struct {
			ReasoningTokens int `json:"reasoning_tokens"`
		} `json:"completion_tokens_details"`
	} `json:"usage"`
}

// plannedReply is the JSON object the persona prompt demands from the model.
type plannedReply struct {
	SpeechText      string   `json:"speech_text"`
	HindiLineToRead string   `json:"hindi_line_to_read"`
	UIAction        UIAction `json:"ui_action"`
}

// PlanReply asks the model for the next scripted reply. The returned error is
// non-nil for transport failures, non-200 responses, and replies whose JSON
// payload cannot be parsed; callers substitute a fallback reply in all of
// those cases.
func (c *OpenAIClient) PlanReply(ctx context.Context, userText string, history []Message) (*Reply, error) {
	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: "system", Content: c.systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, Message{Role: "user", Content: userText})

	resp, err := c.complete(ctx, chatRequest{
		Model:          c.model,
		Messages:       messages,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	content := resp.Choices[0].Message.Content

	// Tolerate models that wrap the object in a markdown code fence.
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var planned plannedReply
	if err := json.Unmarshal([]byte(content), &planned); err != nil {
		return nil, fmt.Errorf("failed to parse planned reply: %w (content: %s)", err, content)
	}

	ui := planned.UIAction
	if ui.Action == "" {
		ui = UIAction{Action: "NONE", Payload: map[string]any{}}
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}

	return &Reply{
		SpeechText: planned.SpeechText,
		HindiLine:  planned.HindiLineToRead,
		UIAction:   ui,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			ReasoningTokens:  resp.Usage.CompletionTokensDetails.ReasoningTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Model: model,
	}, nil
}

// GenerateTitle asks for a 3-5 word conversation title.
func (c *OpenAIClient) GenerateTitle(ctx context.Context, firstUserMessage string) (string, error) {
	resp, err := c.complete(ctx, chatRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: TitleSystemPrompt},
			{Role: "user", Content: firstUserMessage},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) complete(ctx context.Context, req chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("OpenAI API error: %s - %s", resp.Status, string(respBody))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &chatResp, nil
}
