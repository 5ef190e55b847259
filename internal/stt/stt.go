package stt

import "context"

// RecognitionEvent is one message from the transcription provider.
//
// IsFinal means the wording of this fragment is locked and will not be
// revised. SpeechFinal means the provider's endpointing decided the speaker
// finished the utterance. The two signals are independent: a final fragment
// does not imply the speaker has stopped talking.
type RecognitionEvent struct {
	Transcript  string
	IsFinal     bool
	SpeechFinal bool
}

// Client defines the interface for streaming speech-to-text providers.
type Client interface {
	// Send forwards one binary audio frame to the provider.
	Send(ctx context.Context, audio []byte) error

	// Results returns the channel of recognition events.
	Results() <-chan RecognitionEvent

	// Errors returns the channel of stream errors.
	Errors() <-chan error

	// Close finishes the stream and closes the connection. Safe to call
	// more than once.
	Close() error
}
