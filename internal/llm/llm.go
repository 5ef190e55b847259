package llm

import "context"

// Message represents a conversation message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// UIAction is a client-side action the planner wants rendered alongside the
// spoken reply.
type UIAction struct {
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload"`
}

// Usage holds token accounting from the provider, for audit logging.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	ReasoningTokens  int `json:"reasoning_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Reply is a planned response for one finalized user utterance.
type Reply struct {
	SpeechText string
	HindiLine  string
	UIAction   UIAction
	Usage      Usage
	Model      string
}

// Planner defines the interface for reply-planning providers.
type Planner interface {
	// PlanReply produces the next scripted reply given the user's utterance
	// and the running conversation history.
	PlanReply(ctx context.Context, userText string, history []Message) (*Reply, error)

	// GenerateTitle produces a short title for a conversation that begins
	// with the given user message.
	GenerateTitle(ctx context.Context, firstUserMessage string) (string, error)
}
