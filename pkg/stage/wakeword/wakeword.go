// Package wakeword implements the wakeword-detection stage.
//
// The stage keeps a continuous recognition stream open through a
// [pipeline.Session] and matches every final transcript against the
// configured candidate phrase set, tolerating phonetic near-misses. On a
// match it flips the shared activation flag (first writer wins) and
// dispatches the activated event — the handoff that opens the recognition
// window for the speech-recognizer stage. While the pipeline is active the
// stage stops listening for its own wake phrase and re-arms once the window
// closes.
package wakeword

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/auricle-dev/auricle/pkg/asr"
	"github.com/auricle-dev/auricle/pkg/audio"
	"github.com/auricle-dev/auricle/pkg/pipeline"
)

// Config configures the wakeword stage.
type Config struct {
	// Phrases is the candidate wake-phrase set. Required.
	Phrases []string

	// PhoneticThreshold is the minimum Jaro-Winkler score for a phonetically
	// overlapping n-gram to count as a match. Default 0.70.
	PhoneticThreshold float64

	// FuzzyThreshold is the minimum Jaro-Winkler score when there is no
	// phonetic overlap. Default 0.85.
	FuzzyThreshold float64

	// Stream is the backend stream configuration. The wake phrases are
	// appended to its hint list automatically.
	Stream asr.StreamConfig

	// MaxStreamDuration is the provider's single-stream duration limit.
	MaxStreamDuration time.Duration

	// LockTimeout bounds session lock acquisition. Defaults to
	// [pipeline.DefaultLockTimeout].
	LockTimeout time.Duration

	// RetryInterval is the session's retry delay. Defaults to one second.
	RetryInterval time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Stage is the wakeword-detection stage. It implements [pipeline.Stage].
type Stage struct {
	sc      *pipeline.SharedContext
	matcher *matcher
	sess    *pipeline.Session
	log     *slog.Logger

	mu      sync.Mutex
	started bool
	paused  bool // true while the pipeline is active and the stage is muted
	ctx     context.Context
}

var _ pipeline.Stage = (*Stage)(nil)

// New creates a wakeword stage bound to sc, using hw for exclusive hardware
// access and provider for the recognition backend.
func New(sc *pipeline.SharedContext, hw *pipeline.HardwareGuard, provider asr.Provider, cfg Config) (*Stage, error) {
	if sc == nil {
		return nil, &pipeline.ConfigurationError{Field: "SharedContext", Reason: "must not be nil"}
	}
	if provider == nil {
		return nil, &pipeline.ConfigurationError{Field: "Provider", Reason: "must not be nil"}
	}
	if len(cfg.Phrases) == 0 {
		return nil, &pipeline.ConfigurationError{Field: "Phrases", Reason: "must not be empty"}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	streamCfg := cfg.Stream
	streamCfg.Phrases = append(append([]string(nil), streamCfg.Phrases...), cfg.Phrases...)

	st := &Stage{
		sc:      sc,
		matcher: newMatcher(cfg.Phrases, cfg.PhoneticThreshold, cfg.FuzzyThreshold),
		log:     log.With("stage", "wakeword"),
	}

	sess, err := pipeline.NewSession(pipeline.SessionConfig{
		Name: "wakeword",
		Open: func(ctx context.Context) (asr.StreamHandle, error) {
			return provider.OpenStream(ctx, streamCfg)
		},
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
func (s *Stage) Name() string { return "wakeword" }

// StartStreaming implements [pipeline.Stage]. Idempotent.
func (s *Stage) StartStreaming(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.paused = false
	s.ctx = ctx
	s.mu.Unlock()
	return s.sess.Start(ctx)
}

// StopStreaming implements [pipeline.Stage]. Safe when not started.
func (s *Stage) StopStreaming() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.paused = false
	s.mu.Unlock()
	return s.sess.Stop()
}

// Process implements [pipeline.Stage]. Frames are forwarded to the live
// stream while the pipeline is inactive; once activation opens the
// recognition window the stage mutes itself, and it re-arms when the window
// closes. The mute/re-arm transitions run off the frame path so Process
// never blocks on session locks.
func (s *Stage) Process(frame audio.Frame) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return &pipeline.StateError{Op: "wakeword process", State: "stopped"}
	}
	active := s.sc.IsActive()
	switch {
	case active && !s.paused:
		s.paused = true
		s.mu.Unlock()
		go func() {
			if err := s.sess.Stop(); err != nil {
				s.log.Warn("mute failed", "err", err)
			}
		}()
		return nil
	case !active && s.paused:
		s.paused = false
		ctx := s.ctx
		s.mu.Unlock()
		go func() {
			if err := s.sess.Start(ctx); err != nil {
				s.log.Warn("re-arm failed", "err", err)
			}
		}()
		return nil
	case active:
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	return s.sess.Feed(frame.Data)
}

// onFinal checks a final transcript for a wake phrase and performs the
// activation handoff on a hit.
func (s *Stage) onFinal(t asr.Transcript) {
	if s.sc.IsActive() {
		return
	}
	phrase, score, ok := s.matcher.match(t.Text)
	if !ok {
		return
	}
	if s.sc.Activate() {
		s.log.Info("wake phrase detected", "phrase", phrase, "score", score, "text", t.Text)
		s.sc.Dispatch(pipeline.EventActivated)
	}
}

// onTerminalError surfaces a non-retryable backend failure exactly once.
func (s *Stage) onTerminalError(err error) {
	s.sc.SetPendingError(err)
	s.sc.Dispatch(pipeline.EventErrored)
}
