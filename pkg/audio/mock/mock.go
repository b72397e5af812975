// Package mock provides an in-memory implementation of [audio.Source] for use
// in unit tests.
//
// The mock is safe for concurrent use. Tests push frames with [Source.Push]
// and end the stream with [Source.Finish]; call counts are recorded so tests
// can assert on lifecycle symmetry.
//
// Typical usage:
//
//	src := mock.NewSource(16)
//	_ = src.Start(ctx)
//	src.Push(audio.Frame{Data: silence})
//	src.Finish()
package mock

import (
	"context"
	"sync"

	"github.com/auricle-dev/auricle/pkg/audio"
)

// Source is a scriptable mock implementation of [audio.Source].
type Source struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// StopErr, if non-nil, is returned by Stop.
	StopErr error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	frames   chan audio.Frame
	started  bool
	finished bool
}

var _ audio.Source = (*Source)(nil)

// NewSource creates a mock source whose frame channel has the given buffer
// depth.
func NewSource(buffer int) *Source {
	return &Source{frames: make(chan audio.Frame, buffer)}
}

// Start records the call and returns StartErr.
func (s *Source) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	if s.StartErr != nil {
		return s.StartErr
	}
	s.started = true
	return nil
}

// Frames returns the frame channel regardless of started state so tests can
// pre-load frames before calling Start.
func (s *Source) Frames() <-chan audio.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Stop records the call, closes the frame channel if still open, and returns
// StopErr.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	if !s.finished {
		s.finished = true
		close(s.frames)
	}
	return s.StopErr
}

// Push delivers one frame to the pipeline. It blocks if the channel buffer is
// full. Pushing after Finish or Stop panics, as sending on a closed channel
// would in production code.
func (s *Source) Push(f audio.Frame) {
	s.frames <- f
}

// Finish closes the frame channel, signalling end of stream without a Stop
// call. Safe to call once; subsequent calls are no-ops.
func (s *Source) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished {
		s.finished = true
		close(s.frames)
	}
}
