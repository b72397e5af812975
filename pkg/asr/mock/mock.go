// Package mock provides test doubles for the asr package interfaces.
//
// Use Provider to verify that streams are opened with the expected
// StreamConfig and to hand out scripted Stream values. Use Stream to inject
// partial/final transcripts and errors, and to inspect the audio that was
// sent.
//
// Example:
//
//	st := mock.NewStream()
//	prov := &mock.Provider{Stream: st}
//	handle, _ := prov.OpenStream(ctx, cfg)
//	st.EmitFinal(asr.Transcript{Text: "hey auricle", IsFinal: true})
package mock

import (
	"context"
	"sync"

	"github.com/auricle-dev/auricle/pkg/asr"
)

// OpenStreamCall records a single invocation of Provider.OpenStream.
type OpenStreamCall struct {
	// Cfg is the StreamConfig passed to OpenStream.
	Cfg asr.StreamConfig
}

// Provider is a mock implementation of [asr.Provider].
type Provider struct {
	mu sync.Mutex

	// Stream is the StreamHandle returned by OpenStream. If nil, OpenStream
	// returns a fresh default Stream each call.
	Stream asr.StreamHandle

	// StreamFactory, if non-nil, is called to produce each returned handle
	// and takes precedence over Stream. Useful for tests that need one
	// scripted stream per restart cycle.
	StreamFactory func() asr.StreamHandle

	// OpenStreamErr, if non-nil, is returned as the error from OpenStream.
	OpenStreamErr error

	// OpenStreamCalls records every call to OpenStream in order.
	OpenStreamCalls []OpenStreamCall
}

var _ asr.Provider = (*Provider)(nil)

// OpenStream records the call and returns the configured handle.
func (p *Provider) OpenStream(_ context.Context, cfg asr.StreamConfig) (asr.StreamHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenStreamCalls = append(p.OpenStreamCalls, OpenStreamCall{Cfg: cfg})
	if p.OpenStreamErr != nil {
		return nil, p.OpenStreamErr
	}
	if p.StreamFactory != nil {
		return p.StreamFactory(), nil
	}
	if p.Stream != nil {
		return p.Stream, nil
	}
	return NewStream(), nil
}

// OpenCount returns the number of OpenStream calls so far. Thread-safe.
func (p *Provider) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.OpenStreamCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenStreamCalls = nil
}

// Stream is a scriptable mock implementation of [asr.StreamHandle].
type Stream struct {
	mu sync.Mutex

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// CloseErr, if non-nil, is returned by the first Close call.
	CloseErr error

	// SentChunks records a copy of every chunk passed to SendAudio.
	SentChunks [][]byte

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	partials chan asr.Transcript
	finals   chan asr.Transcript
	errs     chan error
	done     chan struct{}
	closed   bool
}

var _ asr.StreamHandle = (*Stream)(nil)

// NewStream creates a Stream with buffered result channels ready for
// scripting.
func NewStream() *Stream {
	return &Stream{
		partials: make(chan asr.Transcript, 16),
		finals:   make(chan asr.Transcript, 16),
		errs:     make(chan error, 4),
		done:     make(chan struct{}),
	}
}

// SendAudio records the chunk and returns SendAudioErr.
func (s *Stream) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSendAfterClose
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SentChunks = append(s.SentChunks, cp)
	return s.SendAudioErr
}

// Partials implements [asr.StreamHandle].
func (s *Stream) Partials() <-chan asr.Transcript { return s.partials }

// Finals implements [asr.StreamHandle].
func (s *Stream) Finals() <-chan asr.Transcript { return s.finals }

// Errs implements [asr.StreamHandle].
func (s *Stream) Errs() <-chan error { return s.errs }

// Close records the call, closes the result channels once, and returns
// CloseErr on the first call only.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	close(s.partials)
	close(s.finals)
	close(s.errs)
	return s.CloseErr
}

// EmitPartial scripts an interim transcript. No-op after Close.
func (s *Stream) EmitPartial(t asr.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	t.IsFinal = false
	s.partials <- t
}

// EmitFinal scripts a final transcript. No-op after Close.
func (s *Stream) EmitFinal(t asr.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	t.IsFinal = true
	s.finals <- t
}

// EmitErr scripts a backend error. No-op after Close.
func (s *Stream) EmitErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.errs <- err
}

// SentCount returns the number of recorded SendAudio calls. Thread-safe.
func (s *Stream) SentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SentChunks)
}

// Closed reports whether Close has been called. Thread-safe.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var errSendAfterClose = &asr.Error{Code: "closed", Retryable: false, Err: errStreamClosed}

type staticErr string

func (e staticErr) Error() string { return string(e) }

const errStreamClosed = staticErr("mock stream is closed")
