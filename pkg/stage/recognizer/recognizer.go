// Package recognizer implements the speech-recognizer stage.
//
// The stage transcribes the user's speech during an open recognition window.
// It is the mirror of the wakeword stage: dormant while the pipeline is
// inactive, it opens a [pipeline.Session] when activation is observed and
// tears it down when the window closes. Partial results update the shared
// transcript and dispatch partialRecognized; finals dispatch recognized. A
// configurable silence deadline bounds the window — when it expires without a
// result the stage dispatches timedOut and deactivates the pipeline.
package recognizer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/auricle-dev/auricle/pkg/asr"
	"github.com/auricle-dev/auricle/pkg/audio"
	"github.com/auricle-dev/auricle/pkg/pipeline"
)

// defaultSilenceTimeout bounds how long an activation window stays open with
// no recognition results before timing out.
const defaultSilenceTimeout = 8 * time.Second

// Config configures the recognizer stage.
type Config struct {
	// Stream is the backend stream configuration.
	Stream asr.StreamConfig

	// MaxStreamDuration is the provider's single-stream duration limit.
	MaxStreamDuration time.Duration

	// SilenceTimeout is the deadline for a result after activation; each
	// partial or final result re-arms it. Default 8s.
	SilenceTimeout time.Duration

	// LockTimeout bounds session lock acquisition. Defaults to
	// [pipeline.DefaultLockTimeout].
	LockTimeout time.Duration

	// RetryInterval is the session's retry delay. Defaults to one second.
	RetryInterval time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Stage is the speech-recognizer stage. It implements [pipeline.Stage].
type Stage struct {
	sc   *pipeline.SharedContext
	sess *pipeline.Session
	cfg  Config
	log  *slog.Logger

	mu        sync.Mutex
	started   bool
	listening bool // session requested for the current activation window
	ctx       context.Context
	silence   *time.Timer
}

var _ pipeline.Stage = (*Stage)(nil)

// New creates a recognizer stage bound to sc, using hw for exclusive
// hardware access and provider for the recognition backend.
func New(sc *pipeline.SharedContext, hw *pipeline.HardwareGuard, provider asr.Provider, cfg Config) (*Stage, error) {
	if sc == nil {
		return nil, &pipeline.ConfigurationError{Field: "SharedContext", Reason: "must not be nil"}
	}
	if provider == nil {
		return nil, &pipeline.ConfigurationError{Field: "Provider", Reason: "must not be nil"}
	}
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = defaultSilenceTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	st := &Stage{sc: sc, cfg: cfg, log: log.With("stage", "recognizer")}

	sess, err := pipeline.NewSession(pipeline.SessionConfig{
		Name: "recognizer",
		Open: func(ctx context.Context) (asr.StreamHandle, error) {
			return provider.OpenStream(ctx, cfg.Stream)
		},
		OnPartial:         st.onPartial,
		OnFinal:           st.onFinal,
		OnTerminalError:   st.onTerminalError,
		MaxStreamDuration: cfg.MaxStreamDuration,
		LockTimeout:       cfg.LockTimeout,
		RetryInterval:     cfg.RetryInterval,
		Hardware:          hw,
		Logger:            log,
	})
	if err != nil {
		return nil, err
	}
	st.sess = sess
	return st, nil
}

// Name implements [pipeline.Stage].
func (s *Stage) Name() string { return "recognizer" }

// StartStreaming implements [pipeline.Stage]. The backend session is not
// opened here — it opens lazily when an activation window does. Idempotent.
func (s *Stage) StartStreaming(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	s.listening = false
	s.ctx = ctx
	return nil
}

// StopStreaming implements [pipeline.Stage]. Safe when not started.
func (s *Stage) StopStreaming() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.listening = false
	s.stopSilenceLocked()
	s.mu.Unlock()
	return s.sess.Stop()
}

// Process implements [pipeline.Stage]. Activation-window transitions run off
// the frame path; frames are forwarded only while the window is open.
func (s *Stage) Process(frame audio.Frame) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return &pipeline.StateError{Op: "recognizer process", State: "stopped"}
	}
	active := s.sc.IsActive()
	switch {
	case active && !s.listening:
		s.listening = true
		ctx := s.ctx
		s.armSilenceLocked()
		s.mu.Unlock()
		go func() {
			if err := s.sess.Start(ctx); err != nil {
				s.log.Warn("recognition session start failed", "err", err)
			}
		}()
		return nil
	case !active && s.listening:
		s.listening = false
		s.stopSilenceLocked()
		s.mu.Unlock()
		go func() {
			if err := s.sess.Stop(); err != nil {
				s.log.Warn("recognition session stop failed", "err", err)
			}
		}()
		return nil
	case !active:
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	return s.sess.Feed(frame.Data)
}

// onPartial publishes an interim transcript.
func (s *Stage) onPartial(t asr.Transcript) {
	s.rearmSilence()
	s.sc.SetTranscript(t.Text, t.Confidence)
	s.sc.Dispatch(pipeline.EventPartialRecognized)
}

// onFinal publishes an authoritative transcript.
func (s *Stage) onFinal(t asr.Transcript) {
	s.rearmSilence()
	s.sc.SetTranscript(t.Text, t.Confidence)
	s.sc.Dispatch(pipeline.EventRecognized)
}

// onTerminalError surfaces a non-retryable backend failure exactly once.
func (s *Stage) onTerminalError(err error) {
	s.sc.SetPendingError(err)
	s.sc.Dispatch(pipeline.EventErrored)
}

// onSilenceTimeout closes an activation window that produced no results
// within the deadline.
func (s *Stage) onSilenceTimeout() {
	s.mu.Lock()
	expired := s.started && s.listening
	s.mu.Unlock()
	if !expired || !s.sc.IsActive() {
		return
	}
	s.log.Info("activation window timed out")
	s.sc.Dispatch(pipeline.EventTimedOut)
	s.sc.Deactivate()
	s.sc.Dispatch(pipeline.EventDeactivated)
}

// armSilenceLocked must be called with s.mu held.
func (s *Stage) armSilenceLocked() {
	s.stopSilenceLocked()
	s.silence = time.AfterFunc(s.cfg.SilenceTimeout, s.onSilenceTimeout)
}

// stopSilenceLocked must be called with s.mu held.
func (s *Stage) stopSilenceLocked() {
	if s.silence != nil {
		s.silence.Stop()
		s.silence = nil
	}
}

// rearmSilence resets the deadline after a result.
func (s *Stage) rearmSilence() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listening {
		s.armSilenceLocked()
	}
}
