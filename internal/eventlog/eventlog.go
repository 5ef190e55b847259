// Package eventlog writes provider API-call audit rows and third-party error
// rows to the database. Logging is best-effort: a nil pool or a failed insert
// never affects request handling.
package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Provider names used in audit rows.
const (
	ProviderHeyGen   = "heygen"
	ProviderDeepgram = "deepgram"
	ProviderOpenAI   = "open_ai"
)

// ProviderCall is one audited request to an external provider.
type ProviderCall struct {
	SessionID       string
	Provider        string
	Endpoint        string // e.g., "streaming.task", "listen.live.open", "chat.completions"
	StatusCode      int
	ElapsedMs       int64
	StartedAt       *time.Time
	FinishedAt      *time.Time
	RequestPayload  any
	ResponsePayload any
	Notes           string
}

// ProviderError is one audited failure from an external provider.
type ProviderError struct {
	SessionID       string
	Provider        string
	Endpoint        string
	StatusCode      int
	ErrorCode       string
	ErrorType       string
	ErrorMessage    string
	RequestPayload  any
	ResponsePayload any
	ElapsedMs       int64
	StartedAt       *time.Time
	FinishedAt      *time.Time
}

// Logger provides audit logging to the database.
type Logger struct {
	db *pgxpool.Pool
}

// New creates a new audit logger. A nil pool yields a no-op logger.
func New(db *pgxpool.Pool) *Logger {
	return &Logger{db: db}
}

// LogCall writes a provider call audit row synchronously.
func (l *Logger) LogCall(ctx context.Context, call ProviderCall) error {
	if l.db == nil {
		return nil
	}

	_, err := l.db.Exec(ctx, `
		INSERT INTO provider_api_log
			(session_id, provider, endpoint, http_status_code, elapsed_ms,
			 started_at, finished_at, request_payload, response_payload, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, call.SessionID, call.Provider, call.Endpoint, call.StatusCode, call.ElapsedMs,
		call.StartedAt, call.FinishedAt, marshalPayload(call.RequestPayload),
		marshalPayload(call.ResponsePayload), call.Notes)
	return err
}

// LogCallAsync writes a provider call audit row without blocking the caller.
func (l *Logger) LogCallAsync(call ProviderCall) {
	if l.db == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.LogCall(ctx, call)
	}()
}

// LogError writes a third-party error audit row synchronously.
func (l *Logger) LogError(ctx context.Context, e ProviderError) error {
	if l.db == nil {
		return nil
	}

	_, err := l.db.Exec(ctx, `
		INSERT INTO third_party_api_error_log
			(session_id, provider, endpoint, http_status_code, error_code,
			 error_type, error_message, request_payload, response_payload,
			 elapsed_ms, started_at, finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, e.SessionID, e.Provider, e.Endpoint, e.StatusCode, e.ErrorCode, e.ErrorType,
		e.ErrorMessage, marshalPayload(e.RequestPayload), marshalPayload(e.ResponsePayload),
		e.ElapsedMs, e.StartedAt, e.FinishedAt)
	return err
}

// LogErrorAsync writes a third-party error audit row without blocking.
func (l *Logger) LogErrorAsync(e ProviderError) {
	if l.db == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.LogError(ctx, e)
	}()
}

func marshalPayload(v any) string {
	if v == nil {
		return "{}"
	}
	if raw, ok := v.(json.RawMessage); ok {
		if len(raw) == 0 || !json.Valid(raw) {
			return "{}"
		}
		return string(raw)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Timing captures the duration of one provider call for audit rows.
type Timing struct {
	ElapsedMs  int64
	StartedAt  time.Time
	FinishedAt time.Time
}

// Timer measures a provider call. Use StartTimer before the call and Done
// after it; Done may be called once.
type Timer struct {
	started time.Time
}

// StartTimer starts measuring a provider call.
func StartTimer() *Timer {
	return &Timer{started: time.Now().UTC()}
}

// Done returns the timing of the call.
func (t *Timer) Done() Timing {
	finished := time.Now().UTC()
	return Timing{
		ElapsedMs:  finished.Sub(t.started).Milliseconds(),
		StartedAt:  t.started,
		FinishedAt: finished,
	}
}

// Apply copies the timing onto a provider call row.
func (ti Timing) Apply(call *ProviderCall) {
	call.ElapsedMs = ti.ElapsedMs
	started, finished := ti.StartedAt, ti.FinishedAt
	call.StartedAt = &started
	call.FinishedAt = &finished
}

// ApplyError copies the timing onto an error row.
func (ti Timing) ApplyError(e *ProviderError) {
	e.ElapsedMs = ti.ElapsedMs
	started, finished := ti.StartedAt, ti.FinishedAt
	e.StartedAt = &started
	e.FinishedAt = &finished
}
