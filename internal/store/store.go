// Package store persists conversation history. Writes are append-only and
// keyed by the avatar session id; no cross-session mutation happens here.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mesepith/voice-avatar-heygen/internal/llm"
)

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Turn is one user/assistant exchange within a session.
type Turn struct {
	SessionID string
	UserText  string
	AIText    string
	Model     string
	Usage     llm.Usage
	CreatedAt time.Time
}

// AppendTurn inserts one exchange and returns the new chat row id.
func (s *Store) AppendTurn(ctx context.Context, t Turn) (string, error) {
	model := t.Model
	if model == "" {
		model = "gpt-5-chat-latest"
	}

	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO chats
			(id, guest_id, chat_session_id, user_message, ai_response, ai_model, service_by,
			 prompt_tokens, completion_tokens, reasoning_tokens, total_tokens, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $1, $2, $3, $4, 'open_ai', $5, $6, $7, $8, now(), now())
		RETURNING id
	`, t.SessionID, t.UserText, t.AIText, model,
		t.Usage.PromptTokens, t.Usage.CompletionTokens, t.Usage.ReasoningTokens, t.Usage.TotalTokens).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to append turn: %w", err)
	}
	return id, nil
}

// ReadHistory returns the session's conversation as ordered planner messages,
// oldest first. Empty messages are filtered out.
func (s *Store) ReadHistory(ctx context.Context, sessionID string) ([]llm.Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_message, ai_response
		FROM chats
		WHERE chat_session_id = $1
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	defer rows.Close()

	var turns []historyRow
	for rows.Next() {
		var r historyRow
		if err := rows.Scan(&r.UserMessage, &r.AIResponse); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		turns = append(turns, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return flattenHistory(turns), nil
}

// InsertChatTitle stores the generated title for a session's first exchange.
func (s *Store) InsertChatTitle(ctx context.Context, chatID, sessionID, title string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO chats_title (id, chat_id, chat_session_id, title, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, now(), now())
	`, chatID, sessionID, title)
	if err != nil {
		return fmt.Errorf("failed to insert chat title: %w", err)
	}
	return nil
}

type historyRow struct {
	UserMessage string
	AIResponse  string
}

// flattenHistory turns stored exchanges into alternating user/assistant
// messages, skipping empty sides.
func flattenHistory(turns []historyRow) []llm.Message {
	msgs := make([]llm.Message, 0, len(turns)*2)
	for _, t := range turns {
		if t.UserMessage != "" {
			msgs = append(msgs, llm.Message{Role: "user", Content: t.UserMessage})
		}
		if t.AIResponse != "" {
			msgs = append(msgs, llm.Message{Role: "assistant", Content: t.AIResponse})
		}
	}
	return msgs
}
