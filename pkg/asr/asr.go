// Package asr defines the Provider interface for streaming speech-recognition
// backends.
//
// A provider wraps a real-time recognition service (a cloud streaming API, a
// local inference server, or a test double) and exposes a uniform
// stream-open/append/close protocol. The central abstraction is
// [StreamHandle]: once opened, a stream accepts raw PCM audio chunks and emits
// two streams of [Transcript] values — low-latency partials for
// responsiveness and authoritative finals — plus an error stream the caller
// classifies with [IsRetryable].
//
// Providers impose a maximum duration on a single open stream; callers that
// need continuous recognition tear streams down and reopen them before that
// limit. That restart choreography lives in the pipeline package, not here.
//
// Implementations must be safe for concurrent use.
package asr

import (
	"context"
	"errors"
	"time"
)

// StreamConfig describes the audio format and recognition hints for a new
// stream. All fields must be compatible with what the underlying provider
// supports.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Common value: 16000.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono (required by most
	// providers).
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// Empty lets the provider auto-detect, if supported.
	Language string

	// Phrases is a list of vocabulary hints that increase recognition
	// probability for expected words such as wake phrases.
	Phrases []string
}

// Transcript represents a recognition result from a backend. Both partial
// (interim) and final transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or partial
	// (interim) transcript.
	IsFinal bool

	// Confidence is the overall confidence score in [0.0, 1.0). May be zero
	// if the provider does not report confidence.
	Confidence float64

	// Timestamp marks when the utterance started, relative to stream start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// StreamHandle represents one open recognition stream. It is an interface so
// that test code can provide scripted implementations without a live provider
// connection.
//
// Callers must call Close when the stream is no longer needed; failing to do
// so may leak goroutines and network connections inside the provider.
// All methods must be safe for concurrent use.
type StreamHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes for recognition.
	// The chunk should match the SampleRate and Channels agreed in
	// StreamConfig. Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel emitting low-latency interim
	// transcripts. Closed when the stream ends.
	Partials() <-chan Transcript

	// Finals returns a read-only channel emitting authoritative transcripts.
	// Closed when the stream ends.
	Finals() <-chan Transcript

	// Errs returns a read-only channel emitting backend errors. At most one
	// error is delivered per stream; the channel is closed when the stream
	// ends. Use [IsRetryable] to classify delivered errors.
	Errs() <-chan error

	// Close terminates the stream, flushes pending audio, and releases all
	// associated resources. After Close returns the result channels are
	// closed. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any streaming recognition backend.
//
// Implementations must be safe for concurrent use; multiple streams may be
// open simultaneously across different pipeline stages.
type Provider interface {
	// OpenStream opens a new streaming recognition session. The returned
	// StreamHandle is ready to accept audio immediately. The caller owns the
	// handle and must call Close when done.
	OpenStream(ctx context.Context, cfg StreamConfig) (StreamHandle, error)
}

// Error is a classified backend failure. Providers wrap transport and
// protocol failures in this type so callers can distinguish transient
// conditions (reconnect and carry on) from terminal ones (surface to the
// host).
type Error struct {
	// Code is the provider-specific error code, if any.
	Code string

	// Retryable marks errors that a fresh stream is expected to clear:
	// rate limits, idle disconnects, transient transport failures.
	Retryable bool

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return "asr: " + e.Code + ": " + e.Err.Error()
	}
	return "asr: " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a backend error that a stream restart is
// expected to clear. Errors that are not [*Error] values are conservatively
// treated as terminal.
func IsRetryable(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.Retryable
}
