// Package avatar talks to the HeyGen streaming-avatar API. Every call is
// written to the provider audit log; non-2xx responses are additionally
// recorded as third-party errors.
package avatar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mesepith/voice-avatar-heygen/internal/eventlog"
)

const defaultHeyGenBaseURL = "https://api.heygen.com/v1"

// SessionInfo identifies a live streaming-avatar session. URL and AccessToken
// let the browser join the underlying media room directly.
type SessionInfo struct {
	SessionID   string `json:"session_id"`
	URL         string `json:"url"`
	AccessToken string `json:"access_token"`
}

// HeyGenClient implements the avatar session lifecycle against HeyGen.
type HeyGenClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	audit      *eventlog.Logger
}

// HeyGenConfig holds configuration for the HeyGen client.
type HeyGenConfig struct {
	APIKey     string
	BaseURL    string // Optional override, used by tests
	HTTPClient *http.Client
}

// NewHeyGenClient creates a new HeyGen client. audit may be backed by a nil
// pool, in which case audit writes are no-ops.
func NewHeyGenClient(cfg HeyGenConfig, audit *eventlog.Logger) *HeyGenClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultHeyGenBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HeyGenClient{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		audit:      audit,
	}
}

// newSessionData is the payload of a streaming.new response.
type newSessionData struct {
	Data struct {
		SessionID   string `json:"session_id"`
		URL         string `json:"url"`
		AccessToken string `json:"access_token"`
	} `json:"data"`
}

// NewSession creates and starts a streaming-avatar session.
func (c *HeyGenClient) NewSession(ctx context.Context, avatarID, voiceID string) (*SessionInfo, error) {
	reqBody := map[string]any{
		"version":   "v2",
		"avatar_id": avatarID,
	}
	if voiceID != "" {
		reqBody["voice_id"] = voiceID
	}

	status, respBody, err := c.post(ctx, "streaming.new", "", reqBody)
	if err != nil {
		return nil, err
	}

	var parsed newSessionData
	if unmarshalErr := json.Unmarshal(respBody, &parsed); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to parse streaming.new response: %w", unmarshalErr)
	}

	d := parsed.Data
	if status != http.StatusOK || d.SessionID == "" || d.URL == "" || d.AccessToken == "" {
		return nil, fmt.Errorf("heygen session: missing url/token/session_id (status %d)", status)
	}

	// The session exists but will not render until started.
	startStatus, _, err := c.post(ctx, "streaming.start", d.SessionID, map[string]any{
		"session_id": d.SessionID,
	})
	if err != nil {
		return nil, err
	}
	if startStatus != http.StatusOK {
		return nil, fmt.Errorf("heygen streaming.start returned status %d", startStatus)
	}

	return &SessionInfo{
		SessionID:   d.SessionID,
		URL:         d.URL,
		AccessToken: d.AccessToken,
	}, nil
}

// Interrupt stops the avatar mid-sentence so it can speak the next reply.
func (c *HeyGenClient) Interrupt(ctx context.Context, sessionID string) error {
	status, _, err := c.post(ctx, "streaming.interrupt", sessionID, map[string]any{
		"session_id": sessionID,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("heygen streaming.interrupt returned status %d", status)
	}
	return nil
}

// Stop tears down the avatar session.
func (c *HeyGenClient) Stop(ctx context.Context, sessionID string) error {
	status, _, err := c.post(ctx, "streaming.stop", sessionID, map[string]any{
		"session_id": sessionID,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("heygen streaming.stop returned status %d", status)
	}
	return nil
}

// Speak asks the avatar to say the given text verbatim.
func (c *HeyGenClient) Speak(ctx context.Context, sessionID, text string) error {
	status, _, err := c.post(ctx, "streaming.task", sessionID, map[string]any{
		"session_id": sessionID,
		"task_type":  "repeat",
		"text":       text,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("heygen streaming.task returned status %d", status)
	}
	return nil
}

// post issues one HeyGen API call and audit-logs it. The response body is
// returned raw so callers can parse endpoint-specific payloads.
func (c *HeyGenClient) post(ctx context.Context, endpoint, sessionID string, reqBody map[string]any) (int, []byte, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	timer := eventlog.StartTimer()
	resp, err := c.httpClient.Do(httpReq)
	timing := timer.Done()

	if err != nil {
		e := eventlog.ProviderError{
			SessionID:      sessionID,
			Provider:       eventlog.ProviderHeyGen,
			Endpoint:       endpoint,
			ErrorType:      "transport_error",
			ErrorMessage:   err.Error(),
			RequestPayload: reqBody,
		}
		timing.ApplyError(&e)
		c.audit.LogErrorAsync(e)
		return 0, nil, fmt.Errorf("heygen %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	call := eventlog.ProviderCall{
		SessionID:       sessionID,
		Provider:        eventlog.ProviderHeyGen,
		Endpoint:        endpoint,
		StatusCode:      resp.StatusCode,
		RequestPayload:  reqBody,
		ResponsePayload: map[string]any{"data": string(respBody)},
		Notes:           callNotes(endpoint, resp.StatusCode),
	}
	timing.Apply(&call)
	c.audit.LogCallAsync(call)

	if resp.StatusCode != http.StatusOK {
		e := eventlog.ProviderError{
			SessionID:       sessionID,
			Provider:        eventlog.ProviderHeyGen,
			Endpoint:        endpoint,
			StatusCode:      resp.StatusCode,
			ErrorMessage:    string(respBody),
			RequestPayload:  reqBody,
			ResponsePayload: map[string]any{"data": string(respBody)},
		}
		timing.ApplyError(&e)
		c.audit.LogErrorAsync(e)
	}

	return resp.StatusCode, respBody, nil
}

func callNotes(endpoint string, status int) string {
	if status == http.StatusOK {
		return endpoint + " ok"
	}
	return fmt.Sprintf("%s failed with status %d", endpoint, status)
}
