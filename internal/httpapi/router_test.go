package httpapi

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/mesepith/voice-avatar-heygen/internal/avatar"
	"github.com/mesepith/voice-avatar-heygen/internal/dispatch"
	"github.com/mesepith/voice-avatar-heygen/internal/eventlog"
	"github.com/mesepith/voice-avatar-heygen/internal/stt"
)

// fakeAvatarAPI records avatar calls and returns canned session info.
type fakeAvatarAPI struct {
	mu          sync.Mutex
	newCalls    []string // avatarID
	interrupted []string
	stopped     []string
	sessionErr  error
	callErr     error
}

func (f *fakeAvatarAPI) NewSession(ctx context.Context, avatarID, voiceID string) (*avatar.SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newCalls = append(f.newCalls, avatarID)
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	return &avatar.SessionInfo{
		SessionID:   "sess-1",
		URL:         "wss://media.example",
		AccessToken: "tok",
	}, nil
}

func (f *fakeAvatarAPI) Interrupt(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interrupted = append(f.interrupted, sessionID)
	return f.callErr
}

func (f *fakeAvatarAPI) Stop(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, sessionID)
	return f.callErr
}

// fakeRouterDispatcher records dispatched utterances and returns a canned
// response.
type fakeRouterDispatcher struct {
	mu       sync.Mutex
	sessions []string
	texts    []string
	resp     dispatch.Response
}

func (f *fakeRouterDispatcher) Dispatch(ctx context.Context, sessionID, userText string) dispatch.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, sessionID)
	f.texts = append(f.texts, userText)
	return f.resp
}

func (f *fakeRouterDispatcher) dispatched() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sessions := make([]string, len(f.sessions))
	copy(sessions, f.sessions)
	texts := make([]string, len(f.texts))
	copy(texts, f.texts)
	return sessions, texts
}

// fakeAuditLog records audit rows in memory.
type fakeAuditLog struct {
	mu    sync.Mutex
	calls []eventlog.ProviderCall
	errs  []eventlog.ProviderError
}

func (f *fakeAuditLog) LogCallAsync(call eventlog.ProviderCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAuditLog) LogErrorAsync(e eventlog.ProviderError) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, e)
}

func (f *fakeAuditLog) loggedCalls() []eventlog.ProviderCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]eventlog.ProviderCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeAuditLog) loggedErrors() []eventlog.ProviderError {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]eventlog.ProviderError, len(f.errs))
	copy(out, f.errs)
	return out
}

// fakeSTTClient lets tests inject recognition events and inspect forwarded
// audio.
type fakeSTTClient struct {
	mu      sync.Mutex
	audio   [][]byte
	results chan stt.RecognitionEvent
	errs    chan error
	closed  bool
}

func newFakeSTTClient() *fakeSTTClient {
	return &fakeSTTClient{
		results: make(chan stt.RecognitionEvent, 16),
		errs:    make(chan error, 1),
	}
}

func (f *fakeSTTClient) Send(ctx context.Context, audio []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return context.Canceled
	}
	buf := make([]byte, len(audio))
	copy(buf, audio)
	f.audio = append(f.audio, buf)
	return nil
}

func (f *fakeSTTClient) Results() <-chan stt.RecognitionEvent { return f.results }
func (f *fakeSTTClient) Errors() <-chan error                 { return f.errs }

func (f *fakeSTTClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.results)
		close(f.errs)
	}
	return nil
}

func (f *fakeSTTClient) sentAudio() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.audio))
	copy(out, f.audio)
	return out
}

// newTestRouter builds a Router around fakes, skipping NewRouter's real
// provider clients.
func newTestRouter(cfg RouterConfig, av avatarAPI, d utteranceDispatcher, newSTT sttFactory) *Router {
	r := &Router{
		cfg:        cfg,
		logger:     log.New(io.Discard, "", 0),
		eventLog:   &fakeAuditLog{},
		avatar:     av,
		dispatcher: d,
		newSTT:     newSTT,
		mux:        http.NewServeMux(),
	}
	r.routes()
	return r
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(RouterConfig{}, &fakeAvatarAPI{}, &fakeRouterDispatcher{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(RouterConfig{}, &fakeAvatarAPI{}, &fakeRouterDispatcher{}, nil)
	handler := withCORS([]string{"https://app.example"}, r.mux)

	req := httptest.NewRequest(http.MethodOptions, "/api/talk", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestCORSDisallowedOrigin(t *testing.T) {
	r := newTestRouter(RouterConfig{}, &fakeAvatarAPI{}, &fakeRouterDispatcher{}, nil)
	handler := withCORS([]string{"https://app.example"}, r.mux)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want unset", got)
	}
}
