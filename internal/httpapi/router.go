package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/mesepith/voice-avatar-heygen/internal/avatar"
	"github.com/mesepith/voice-avatar-heygen/internal/dispatch"
	"github.com/mesepith/voice-avatar-heygen/internal/eventlog"
	"github.com/mesepith/voice-avatar-heygen/internal/llm"
	"github.com/mesepith/voice-avatar-heygen/internal/store"
	"github.com/mesepith/voice-avatar-heygen/internal/stt"
)

type RouterConfig struct {
	PublicBaseURL string

	// Voice AI providers
	DeepgramAPIKey string
	OpenAIAPIKey   string
	HeyGenAPIKey   string

	// Reply planner settings
	OpenAIModel string

	// Avatar defaults used when the client does not pick its own
	AvatarID string
	VoiceID  string

	// STT settings
	STTEndpointingMs int // Deepgram endpointing in ms (silence threshold)

	// Utterance finalization fallback (silence window after the last event)
	UtteranceFallback time.Duration

	// Relay WebSocket auth. Disabled when JWTSecret is empty.
	JWTSecret     string
	RelayTokenTTL time.Duration

	// CORS allow-list; empty means allow any origin
	AllowedOrigins []string

	// Shared HTTP client with connection pooling for provider calls
	HTTPClient *http.Client

	// Test overrides
	HeyGenBaseURL string
	OpenAIBaseURL string
}

// avatarAPI is the avatar session lifecycle the handlers need.
type avatarAPI interface {
	NewSession(ctx context.Context, avatarID, voiceID string) (*avatar.SessionInfo, error)
	Interrupt(ctx context.Context, sessionID string) error
	Stop(ctx context.Context, sessionID string) error
}

// utteranceDispatcher routes one finalized utterance through the reply pipeline.
type utteranceDispatcher interface {
	Dispatch(ctx context.Context, sessionID, userText string) dispatch.Response
}

// auditLog records provider calls and failures in the audit tables.
type auditLog interface {
	LogCallAsync(call eventlog.ProviderCall)
	LogErrorAsync(e eventlog.ProviderError)
}

// sttFactory opens a live transcription stream for one relay session.
type sttFactory func(ctx context.Context, sessionID string) (stt.Client, error)

type Router struct {
	cfg      RouterConfig
	logger   *log.Logger
	store    *store.Store
	eventLog auditLog

	avatar     avatarAPI
	dispatcher utteranceDispatcher
	newSTT     sttFactory

	mux *http.ServeMux
}

func NewRouter(cfg RouterConfig, logger *log.Logger, s *store.Store, eventLog *eventlog.Logger) http.Handler {
	heygen := avatar.NewHeyGenClient(avatar.HeyGenConfig{
		APIKey:     cfg.HeyGenAPIKey,
		BaseURL:    cfg.HeyGenBaseURL,
		HTTPClient: cfg.HTTPClient,
	}, eventLog)

	planner := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:     cfg.OpenAIAPIKey,
		Model:      cfg.OpenAIModel,
		BaseURL:    cfg.OpenAIBaseURL,
		HTTPClient: cfg.HTTPClient,
	})

	r := &Router{
		cfg:        cfg,
		logger:     logger,
		store:      s,
		eventLog:   eventLog,
		avatar:     heygen,
		dispatcher: dispatch.New(planner, heygen, s, eventLog, logger),
		mux:        http.NewServeMux(),
	}

	r.newSTT = func(ctx context.Context, _ string) (stt.Client, error) {
		return stt.NewDeepgramClient(ctx, stt.DeepgramConfig{
			APIKey:      cfg.DeepgramAPIKey,
			Model:       "nova-3",
			Language:    "multi",
			SampleRate:  16000,
			Encoding:    "linear16",
			Channels:    1,
			Punctuate:   true,
			SmartFormat: true,
			Interim:     true,
			Endpointing: cfg.STTEndpointingMs,
		})
	}

	r.routes()
	return withSentryRecovery(withCORS(cfg.AllowedOrigins, r.mux))
}

func (r *Router) routes() {
	// Health check
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)

	// Avatar session lifecycle
	r.mux.HandleFunc("POST /api/heygen/session", r.handleCreateAvatarSession)
	r.mux.HandleFunc("POST /api/heygen/interrupt", r.handleInterruptAvatar)
	r.mux.HandleFunc("POST /api/heygen/stop", r.handleStopAvatar)

	// HTTP reply path for clients that finalize utterances on their own
	r.mux.HandleFunc("POST /api/talk", r.handleTalk)

	// Audio relay (mic audio in, captions and replies out)
	r.mux.HandleFunc("GET /ws", r.handleRelayWS)
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		origin := req.Header.Get("Origin")
		if len(allowed) == 0 {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if originAllowed(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func originAllowed(allowed []string, origin string) bool {
	for _, a := range allowed {
		if a == origin {
			return true
		}
	}
	return false
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
