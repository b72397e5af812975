// Package trigger implements the explicit activation-trigger stage:
// push-to-talk and programmatic activation for hosts that do not want a
// wakeword, or that combine both.
//
// The stage holds no backend session. Trigger performs the same
// compare-and-set activation handoff a wakeword match does; Release closes
// the window again. Frame processing is a pass-through.
package trigger

import (
	"context"
	"sync"

	"github.com/auricle-dev/auricle/pkg/audio"
	"github.com/auricle-dev/auricle/pkg/pipeline"
)

// Stage is the explicit activation trigger. It implements [pipeline.Stage].
type Stage struct {
	sc *pipeline.SharedContext

	mu      sync.Mutex
	started bool
}

var _ pipeline.Stage = (*Stage)(nil)

// New creates a trigger stage bound to sc.
func New(sc *pipeline.SharedContext) (*Stage, error) {
	if sc == nil {
		return nil, &pipeline.ConfigurationError{Field: "SharedContext", Reason: "must not be nil"}
	}
	return &Stage{sc: sc}, nil
}

// Name implements [pipeline.Stage].
func (s *Stage) Name() string { return "trigger" }

// StartStreaming implements [pipeline.Stage]. Idempotent.
func (s *Stage) StartStreaming(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

// StopStreaming implements [pipeline.Stage]. Safe when not started.
func (s *Stage) StopStreaming() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

// Process implements [pipeline.Stage]. The trigger consumes no audio.
func (s *Stage) Process(_ audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return &pipeline.StateError{Op: "trigger process", State: "stopped"}
	}
	return nil
}

// Trigger opens the recognition window if it is not already open. Returns
// true when this call performed the activation; false when the window was
// already open (no event is dispatched then).
func (s *Stage) Trigger() bool {
	if s.sc.Activate() {
		s.sc.Dispatch(pipeline.EventActivated)
		return true
	}
	return false
}

// Release closes the recognition window unconditionally.
func (s *Stage) Release() {
	s.sc.Deactivate()
	s.sc.Dispatch(pipeline.EventDeactivated)
}
