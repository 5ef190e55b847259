package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// handleCreateAvatarSession creates and starts a streaming-avatar session and
// returns the credentials the browser needs to join the media room, plus a
// relay token for the audio WebSocket when relay auth is enabled.
func (r *Router) handleCreateAvatarSession(w http.ResponseWriter, req *http.Request) {
	var body struct {
		AvatarID string `json:"avatar_id"`
		VoiceID  string `json:"voice_id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	avatarID := body.AvatarID
	if avatarID == "" {
		avatarID = r.cfg.AvatarID
	}
	voiceID := body.VoiceID
	if voiceID == "" {
		voiceID = r.cfg.VoiceID
	}
	if avatarID == "" {
		http.Error(w, `{"error": "avatar_id is required"}`, http.StatusBadRequest)
		return
	}

	info, err := r.avatar.NewSession(req.Context(), avatarID, voiceID)
	if err != nil {
		r.logger.Printf("heygen: failed to create session: %v", err)
		captureError(req, err, "heygen: session creation failed")
		http.Error(w, `{"error": "failed to create avatar session"}`, http.StatusBadGateway)
		return
	}

	resp := map[string]any{
		"session_id":   info.SessionID,
		"url":          info.URL,
		"access_token": info.AccessToken,
	}
	if r.cfg.PublicBaseURL != "" {
		resp["relay_url"] = relayWSURL(r.cfg.PublicBaseURL, info.SessionID)
	}

	if r.cfg.JWTSecret != "" {
		relayToken, err := mintRelayToken(r.cfg.JWTSecret, info.SessionID, r.cfg.RelayTokenTTL)
		if err != nil {
			r.logger.Printf("heygen: failed to mint relay token: %v", err)
			captureError(req, err, "heygen: relay token mint failed")
			http.Error(w, `{"error": "failed to create avatar session"}`, http.StatusInternalServerError)
			return
		}
		resp["relay_token"] = relayToken
	}

	r.logger.Printf("heygen: session %s started (avatar %s)", info.SessionID, avatarID)
	writeJSON(w, http.StatusOK, resp)
}

// handleInterruptAvatar cuts the avatar off mid-sentence.
func (r *Router) handleInterruptAvatar(w http.ResponseWriter, req *http.Request) {
	sessionID, ok := r.decodeSessionID(w, req)
	if !ok {
		return
	}

	if err := r.avatar.Interrupt(req.Context(), sessionID); err != nil {
		r.logger.Printf("heygen: failed to interrupt session %s: %v", sessionID, err)
		http.Error(w, `{"error": "failed to interrupt avatar"}`, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleStopAvatar tears the avatar session down.
func (r *Router) handleStopAvatar(w http.ResponseWriter, req *http.Request) {
	sessionID, ok := r.decodeSessionID(w, req)
	if !ok {
		return
	}

	if err := r.avatar.Stop(req.Context(), sessionID); err != nil {
		r.logger.Printf("heygen: failed to stop session %s: %v", sessionID, err)
		http.Error(w, `{"error": "failed to stop avatar"}`, http.StatusBadGateway)
		return
	}
	r.logger.Printf("heygen: session %s stopped", sessionID)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// relayWSURL turns the public base URL into the audio relay endpoint for one
// session: http(s)://host becomes ws(s)://host/ws?session_id=....
func relayWSURL(base, sessionID string) string {
	u := strings.TrimSuffix(base, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws?session_id=" + url.QueryEscape(sessionID)
}

func (r *Router) decodeSessionID(w http.ResponseWriter, req *http.Request) (string, bool) {
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return "", false
	}
	if body.SessionID == "" {
		http.Error(w, `{"error": "session_id is required"}`, http.StatusBadRequest)
		return "", false
	}
	return body.SessionID, true
}
