package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const deepgramWSURL = "wss://api.deepgram.com/v1/listen"

// keepAliveInterval is how often a KeepAlive frame is sent to Deepgram to
// prevent the idle timeout from closing the stream between user utterances.
const keepAliveInterval = 10 * time.Second

// DeepgramClient implements the Client interface using Deepgram's streaming API.
type DeepgramClient struct {
	conn      *websocket.Conn
	results   chan RecognitionEvent
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	wg        sync.WaitGroup // Wait for readLoop and keepAlive to finish
}

// DeepgramConfig holds configuration for the Deepgram client.
type DeepgramConfig struct {
	APIKey      string
	Model       string // e.g., "nova-3"
	Language    string // "multi" enables the multiple-language hint
	SampleRate  int    // e.g., 16000 for browser PCM capture
	Encoding    string // e.g., "linear16"
	Channels    int    // 1 for mono
	Punctuate   bool
	SmartFormat bool
	Interim     bool   // interim (non-final) hypotheses
	Endpointing int    // milliseconds of silence for endpointing, 0 for default
	URL         string // Optional override, used by tests
}

// deepgramResponse represents a Deepgram WebSocket response.
type deepgramResponse struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal     bool `json:"is_final"`
	SpeechFinal bool `json:"speech_final"`
}

// NewDeepgramClient opens a Deepgram streaming connection and starts the
// read and keepalive loops.
func NewDeepgramClient(ctx context.Context, cfg DeepgramConfig) (*DeepgramClient, error) {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = deepgramWSURL
	}

	url := fmt.Sprintf("%s?model=%s&language=%s&encoding=%s&sample_rate=%d&channels=%d&punctuate=%t&interim_results=%t&smart_format=%t",
		baseURL,
		cfg.Model,
		cfg.Language,
		cfg.Encoding,
		cfg.SampleRate,
		cfg.Channels,
		cfg.Punctuate,
		cfg.Interim,
		cfg.SmartFormat,
	)

	if cfg.Endpointing > 0 {
		url += fmt.Sprintf("&endpointing=%d", cfg.Endpointing)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Deepgram: %w", err)
	}

	client := &DeepgramClient{
		conn:    conn,
		results: make(chan RecognitionEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}

	client.wg.Add(2)
	go client.readLoop()
	go client.keepAliveLoop()

	return client, nil
}

// Send forwards one binary audio frame to Deepgram.
func (c *DeepgramClient) Send(ctx context.Context, audio []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return fmt.Errorf("client is closed")
	default:
	}

	return c.conn.WriteMessage(websocket.BinaryMessage, audio)
}

// Results returns the channel for receiving recognition events.
func (c *DeepgramClient) Results() <-chan RecognitionEvent {
	return c.results
}

// Errors returns the channel for receiving errors.
func (c *DeepgramClient) Errors() <-chan error {
	return c.errors
}

// Close finishes the Deepgram stream. Calling it again is a no-op.
func (c *DeepgramClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		closeMsg := []byte(`{"type": "CloseStream"}`)
		_ = c.conn.WriteMessage(websocket.TextMessage, closeMsg)
		c.mu.Unlock()

		err = c.conn.Close()

		// Wait for the loops to finish before closing channels
		c.wg.Wait()
		close(c.results)
		close(c.errors)
	})
	return err
}

// keepAliveLoop pings Deepgram on a fixed interval so the stream survives
// silence between utterances. Stops as soon as the client closes.
func (c *DeepgramClient) keepAliveLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "KeepAlive"}`))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// readLoop reads responses from Deepgram and sends them to the results channel.
func (c *DeepgramClient) readLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			case c.errors <- fmt.Errorf("read error: %w", err):
			default:
			}
			return
		}

		var resp deepgramResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			log.Printf("deepgram: failed to parse response: %v", err)
			continue
		}

		// Skip non-results messages (Metadata, SpeechStarted, ...)
		if resp.Type != "Results" {
			continue
		}

		var transcript string
		if len(resp.Channel.Alternatives) > 0 {
			transcript = resp.Channel.Alternatives[0].Transcript
		}

		event := RecognitionEvent{
			Transcript:  transcript,
			IsFinal:     resp.IsFinal,
			SpeechFinal: resp.SpeechFinal,
		}

		// Emit events even if the transcript is empty when we have boundary
		// signals; pure keepalive echoes are dropped.
		if event.Transcript == "" && !event.IsFinal && !event.SpeechFinal {
			continue
		}

		select {
		case <-c.done:
			return
		case c.results <- event:
		}
	}
}
