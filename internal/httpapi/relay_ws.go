package httpapi

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mesepith/voice-avatar-heygen/internal/dispatch"
	"github.com/mesepith/voice-avatar-heygen/internal/eventlog"
	"github.com/mesepith/voice-avatar-heygen/internal/finalizer"
	"github.com/mesepith/voice-avatar-heygen/internal/stt"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// utteranceQueueSize bounds how many finalized utterances can wait for
// dispatch on one connection. The queue only backs up if the planner is
// slower than the user talks; beyond that, utterances are dropped.
const utteranceQueueSize = 16

// captionMessage mirrors the recognition-result shape clients already parse
// for live captions.
type captionMessage struct {
	Results []captionResult `json:"results"`
}

type captionResult struct {
	Alternatives []captionAlternative `json:"alternatives"`
	IsFinal      bool                 `json:"isFinal"`
	SpeechFinal  bool                 `json:"speechFinal"`
}

type captionAlternative struct {
	Transcript string `json:"transcript"`
}

// replyMessage carries one planned reply back over the relay connection.
type replyMessage struct {
	Type string `json:"type"`
	dispatch.Response
}

// relaySession owns one relay WebSocket connection: audio frames in, caption
// and reply JSON out. Sessions are fully isolated from each other.
type relaySession struct {
	connID    string // correlation id for logs
	sessionID string

	conn   *websocket.Conn
	connMu sync.Mutex

	sttClient  stt.Client // nil in degraded sessions
	acc        *finalizer.Accumulator
	dispatcher utteranceDispatcher

	utterances chan string

	logger *log.Logger
	audit  auditLog

	ctx    context.Context
	cancel context.CancelFunc
}

func (r *Router) handleRelayWS(w http.ResponseWriter, req *http.Request) {
	sessionID := req.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, `{"error": "session_id is required"}`, http.StatusBadRequest)
		return
	}

	if r.cfg.JWTSecret != "" {
		token := req.URL.Query().Get("token")
		if err := verifyRelayToken(r.cfg.JWTSecret, token, sessionID); err != nil {
			r.logger.Printf("relay_ws: rejected connection for %s: %v", sessionID, err)
			http.Error(w, `{"error": "invalid relay token"}`, http.StatusUnauthorized)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("relay_ws: upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(req.Context())

	session := &relaySession{
		connID:     uuid.NewString(),
		sessionID:  sessionID,
		conn:       conn,
		dispatcher: r.dispatcher,
		utterances: make(chan string, utteranceQueueSize),
		logger:     r.logger,
		audit:      r.eventLog,
		ctx:        ctx,
		cancel:     cancel,
	}
	session.acc = finalizer.New(r.cfg.UtteranceFallback, session.enqueueUtterance)

	// A failed STT connect leaves the session degraded but alive: audio is
	// dropped and no transcripts arrive, but the connection stays usable.
	timer := eventlog.StartTimer()
	sttClient, err := r.newSTT(ctx, sessionID)
	timing := timer.Done()
	if err != nil {
		r.logger.Printf("relay_ws: STT connect failed for %s, running degraded: %v", sessionID, err)
		captureError(req, err, "relay_ws: STT connect failed")
		sttErr := eventlog.ProviderError{
			SessionID:    sessionID,
			Provider:     eventlog.ProviderDeepgram,
			Endpoint:     "listen.live.open",
			ErrorMessage: err.Error(),
		}
		timing.ApplyError(&sttErr)
		r.eventLog.LogErrorAsync(sttErr)
	} else {
		session.sttClient = sttClient
		openCall := eventlog.ProviderCall{
			SessionID:  sessionID,
			Provider:   eventlog.ProviderDeepgram,
			Endpoint:   "listen.live.open",
			StatusCode: http.StatusSwitchingProtocols,
			Notes:      "conn " + session.connID,
		}
		timing.Apply(&openCall)
		r.eventLog.LogCallAsync(openCall)
		go session.processSTTEvents()
	}

	go session.dispatchLoop()

	r.logger.Printf("relay_ws: session %s connected (conn %s)", sessionID, session.connID)
	session.run()
}

// run is the connection read loop. It exits when the client disconnects or
// the connection errors, then tears the session down.
func (s *relaySession) run() {
	defer s.cleanup()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Printf("relay_ws: session %s disconnected", s.sessionID)
			} else {
				s.logger.Printf("relay_ws: read error for %s: %v", s.sessionID, err)
			}
			return
		}

		if msgType != websocket.BinaryMessage {
			continue
		}
		if s.sttClient == nil {
			// Degraded session: drop audio silently.
			continue
		}
		if err := s.sttClient.Send(s.ctx, data); err != nil {
			// Closed or failing upstream stream; frames are dropped without
			// breaking the connection.
			continue
		}
	}
}

// processSTTEvents forwards recognition events as live captions and feeds
// them to the utterance accumulator.
func (s *relaySession) processSTTEvents() {
	for {
		select {
		case <-s.ctx.Done():
			return

		case err, ok := <-s.sttClient.Errors():
			if !ok {
				return
			}
			s.logger.Printf("relay_ws: STT error for %s: %v", s.sessionID, err)
			s.audit.LogErrorAsync(eventlog.ProviderError{
				SessionID:    s.sessionID,
				Provider:     eventlog.ProviderDeepgram,
				Endpoint:     "listen.live.stream",
				ErrorMessage: err.Error(),
			})

		case ev, ok := <-s.sttClient.Results():
			if !ok {
				return
			}
			if strings.TrimSpace(ev.Transcript) != "" {
				s.writeCaption(ev)
				s.audit.LogCallAsync(eventlog.ProviderCall{
					SessionID:       s.sessionID,
					Provider:        eventlog.ProviderDeepgram,
					Endpoint:        "listen.live.transcript",
					StatusCode:      http.StatusOK,
					ResponsePayload: ev,
				})
			}
			s.acc.Process(ev)
		}
	}
}

// enqueueUtterance hands one finalized utterance to the dispatch loop. Called
// from the accumulator: synchronously on speech_final, from the timer
// goroutine on fallback timeouts.
func (s *relaySession) enqueueUtterance(text string) {
	select {
	case s.utterances <- text:
	default:
		s.logger.Printf("relay_ws: utterance queue full for %s, dropping utterance", s.sessionID)
	}
}

// dispatchLoop consumes finalized utterances serially so replies reach the
// client in utterance order.
func (s *relaySession) dispatchLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case text := <-s.utterances:
			s.logger.Printf("relay_ws: user said (session %s): %s", s.sessionID, text)
			// Background context: a dispatch in flight at disconnect runs to
			// completion (the turn is still persisted); only the reply write
			// is skipped.
			resp := s.dispatcher.Dispatch(context.Background(), s.sessionID, text)
			s.writeReply(resp)
		}
	}
}

func (s *relaySession) writeCaption(ev stt.RecognitionEvent) {
	msg := captionMessage{
		Results: []captionResult{{
			Alternatives: []captionAlternative{{Transcript: ev.Transcript}},
			IsFinal:      ev.IsFinal,
			SpeechFinal:  ev.SpeechFinal,
		}},
	}
	s.writeJSON(msg)
}

func (s *relaySession) writeReply(resp dispatch.Response) {
	select {
	case <-s.ctx.Done():
		// Connection already gone; the reply is discarded.
		return
	default:
	}
	s.writeJSON(replyMessage{Type: "reply", Response: resp})
}

func (s *relaySession) writeJSON(v any) {
	s.connMu.Lock()
	err := s.conn.WriteJSON(v)
	s.connMu.Unlock()
	if err != nil {
		s.logger.Printf("relay_ws: write failed for %s: %v", s.sessionID, err)
	}
}

func (s *relaySession) cleanup() {
	s.cancel()
	s.acc.Close()

	if s.sttClient != nil {
		_ = s.sttClient.Close()
		s.audit.LogCallAsync(eventlog.ProviderCall{
			SessionID:  s.sessionID,
			Provider:   eventlog.ProviderDeepgram,
			Endpoint:   "listen.live.close",
			StatusCode: http.StatusOK,
			Notes:      "conn " + s.connID,
		})
	}

	s.connMu.Lock()
	_ = s.conn.Close()
	s.connMu.Unlock()

	s.logger.Printf("relay_ws: session %s cleaned up (conn %s)", s.sessionID, s.connID)
}
