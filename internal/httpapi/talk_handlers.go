package httpapi

import (
	"encoding/json"
	"net/http"
)

// handleTalk is the HTTP reply path: the client sends an already-finalized
// utterance and gets the planned reply back in the response body. The relay
// WebSocket covers clients that stream raw audio instead.
func (r *Router) handleTalk(w http.ResponseWriter, req *http.Request) {
	var body struct {
		UserText  string `json:"userText"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	if body.UserText == "" || body.SessionID == "" {
		http.Error(w, `{"error": "userText and session_id are required"}`, http.StatusBadRequest)
		return
	}

	resp := r.dispatcher.Dispatch(req.Context(), body.SessionID, body.UserText)
	writeJSON(w, http.StatusOK, resp)
}
