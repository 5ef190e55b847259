// Package finalizer reassembles streaming recognition events into complete
// user utterances.
//
// The provider reports two independent signals per event: is_final locks the
// wording of a fragment, speech_final reports acoustic end-of-utterance
// (endpointing). Endpointing is the primary finalization trigger because it
// is low latency; a fallback timer covers the cases where the provider never
// emits it and the conversation would otherwise hang in a listening state.
package finalizer

import (
	"strings"
	"sync"
	"time"

	"github.com/mesepith/voice-avatar-heygen/internal/stt"
)

// DefaultFallbackDelay is the silence window after the last event before an
// utterance is finalized without a speech_final signal. A tunable tradeoff
// between early cutoff and perceived responsiveness.
const DefaultFallbackDelay = 500 * time.Millisecond

// Accumulator turns a stream of recognition events into discrete utterances.
// One Accumulator per session; it is safe for use by the event-processing
// goroutine and the fallback timer concurrently.
//
// committed holds the space-joined text of all fragments marked is_final.
// pending holds the latest non-final hypothesis; each new hypothesis
// supersedes the previous one because the provider resends growing
// hypotheses rather than deltas.
type Accumulator struct {
	mu        sync.Mutex
	committed string
	pending   string
	timer     *time.Timer
	timerGen  uint64 // bumped on every arm/cancel so stale callbacks no-op
	delay     time.Duration
	emit      func(text string)
	closed    bool
}

// New creates an Accumulator that calls emit with each finalized utterance.
// emit is invoked synchronously from Process on speech_final events, and from
// the timer goroutine on fallback timeouts. Text passed to emit is trimmed
// and never empty.
func New(delay time.Duration, emit func(text string)) *Accumulator {
	if delay <= 0 {
		delay = DefaultFallbackDelay
	}
	return &Accumulator{
		delay: delay,
		emit:  emit,
	}
}

// Process consumes one recognition event. Events with empty or whitespace-only
// transcripts are ignored entirely: no state change, no timer side effects.
func (a *Accumulator) Process(ev stt.RecognitionEvent) {
	if strings.TrimSpace(ev.Transcript) == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}

	if ev.IsFinal {
		if a.committed == "" {
			a.committed = ev.Transcript
		} else {
			a.committed += " " + ev.Transcript
		}
		a.pending = ""
	} else {
		a.pending = ev.Transcript
	}

	if ev.SpeechFinal {
		a.finalizeLocked()
		return
	}

	// No endpointing signal: re-arm the fallback timer so the utterance
	// still finalizes if the provider goes quiet.
	a.cancelTimerLocked()
	if a.candidateLocked() != "" {
		gen := a.timerGen
		a.timer = time.AfterFunc(a.delay, func() { a.timerFired(gen) })
	}
}

// Preview returns the current candidate utterance (committed plus pending,
// trimmed). Used for live-caption style displays; it does not change state.
func (a *Accumulator) Preview() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.candidateLocked()
}

// Close cancels any armed timer and discards accumulated state. An utterance
// in flight at close time is lost, never finalized.
func (a *Accumulator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.cancelTimerLocked()
	a.committed = ""
	a.pending = ""
}

func (a *Accumulator) timerFired(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || gen != a.timerGen {
		// Lost the race against a speech_final finalization, a re-arm, or Close.
		return
	}
	a.timer = nil
	a.finalizeLocked()
}

// finalizeLocked emits the candidate utterance if non-empty and resets the
// accumulator to idle. The timer is cancelled first so the speech_final
// trigger and the fallback are mutually exclusive outcomes per utterance.
func (a *Accumulator) finalizeLocked() {
	a.cancelTimerLocked()

	text := a.candidateLocked()
	a.committed = ""
	a.pending = ""

	if text == "" {
		return
	}
	a.emit(text)
}

func (a *Accumulator) candidateLocked() string {
	return strings.TrimSpace(strings.TrimSpace(a.committed) + " " + a.pending)
}

func (a *Accumulator) cancelTimerLocked() {
	a.timerGen++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}
