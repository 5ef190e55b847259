package avatar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mesepith/voice-avatar-heygen/internal/eventlog"
)

func newTestClient(srvURL string) *HeyGenClient {
	return NewHeyGenClient(HeyGenConfig{APIKey: "test-key", BaseURL: srvURL}, eventlog.New(nil))
}

func TestNewSession(t *testing.T) {
	var gotPaths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPaths = append(gotPaths, r.URL.Path)

		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}

		switch r.URL.Path {
		case "/streaming.new":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["version"] != "v2" || body["avatar_id"] != "Wayne_20240711" {
				t.Errorf("streaming.new body = %v", body)
			}
			_, _ = w.Write([]byte(`{"data":{"session_id":"sess-1","url":"wss://media.example","access_token":"tok"}}`))
		case "/streaming.start":
			_, _ = w.Write([]byte(`{"data":{}}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)

	info, err := client.NewSession(context.Background(), "Wayne_20240711", "")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if info.SessionID != "sess-1" || info.URL != "wss://media.example" || info.AccessToken != "tok" {
		t.Errorf("SessionInfo = %+v", info)
	}
	if len(gotPaths) != 2 || gotPaths[0] != "/streaming.new" || gotPaths[1] != "/streaming.start" {
		t.Errorf("calls = %v, want [streaming.new streaming.start]", gotPaths)
	}
}

func TestNewSessionMissingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"session_id":"sess-1"}}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)

	if _, err := client.NewSession(context.Background(), "Wayne_20240711", ""); err == nil {
		t.Fatal("expected error for missing url/token")
	}
}

func TestSpeak(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/streaming.task" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["task_type"] != "repeat" || body["text"] != "Hello there" || body["session_id"] != "sess-1" {
			t.Errorf("streaming.task body = %v", body)
		}
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)

	if err := client.Speak(context.Background(), "sess-1", "Hello there"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
}

func TestSpeakNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota exceeded"}`, http.StatusPaymentRequired)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)

	if err := client.Speak(context.Background(), "sess-1", "Hello"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestInterruptAndStop(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)

	if err := client.Interrupt(context.Background(), "sess-1"); err != nil {
		t.Fatalf("Interrupt: %v", err)
	}
	if err := client.Stop(context.Background(), "sess-1"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(paths) != 2 || paths[0] != "/streaming.interrupt" || paths[1] != "/streaming.stop" {
		t.Errorf("paths = %v", paths)
	}
}
