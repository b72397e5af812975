package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/auricle-dev/auricle/pkg/asr"
)

// SessionState enumerates the lifecycle states of a [Session].
type SessionState int

const (
	// SessionIdle: no backend stream exists and none is being set up.
	SessionIdle SessionState = iota

	// SessionStarting: resources are being acquired and a stream opened.
	SessionStarting

	// SessionStreaming: a backend stream is open and accepting frames.
	SessionStreaming

	// SessionStopping: the current stream is being finalized and released.
	SessionStopping
)

// String returns the state name used in logs and errors.
func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionStarting:
		return "starting"
	case SessionStreaming:
		return "streaming"
	case SessionStopping:
		return "stopping"
	}
	return "unknown"
}

// defaultRetryInterval is how long a session waits before re-attempting a
// cycle that was skipped (lock timeout) or failed with a retryable error.
const defaultRetryInterval = time.Second

// SessionConfig configures a [Session].
type SessionConfig struct {
	// Name identifies the session in logs. Defaults to "session".
	Name string

	// Open opens a fresh backend stream. Required.
	Open func(ctx context.Context) (asr.StreamHandle, error)

	// OnPartial is invoked for each interim transcript from the live stream.
	// Optional.
	OnPartial func(asr.Transcript)

	// OnFinal is invoked for each final transcript from the live stream.
	// Optional.
	OnFinal func(asr.Transcript)

	// OnTerminalError is invoked exactly once per terminal backend failure.
	// Retryable failures never reach it. Optional.
	OnTerminalError func(error)

	// MaxStreamDuration is the provider's limit on how long a single stream
	// may stay open. The session proactively tears down and reopens the
	// stream at this deadline, transparently to the caller. Zero disables
	// the restart timer.
	MaxStreamDuration time.Duration

	// LockTimeout bounds every lock acquisition. Defaults to
	// [DefaultLockTimeout].
	LockTimeout time.Duration

	// RetryInterval is the delay before re-attempting a skipped or failed
	// cycle. Defaults to one second.
	RetryInterval time.Duration

	// Hardware is the exclusive audio-hardware capability lent by the
	// orchestrator. Required.
	Hardware *HardwareGuard

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Session is a reusable bounded-lifetime state machine managing a single
// in-flight streaming request to a recognition backend. Streaming stages
// compose a Session internally; it owns the restart choreography — the
// provider-imposed stream-duration limit, retryable-error recovery, and the
// mutual exclusion between timer-driven restart, explicit stop, and
// backend-callback-triggered restart.
//
// Two bounded mutual-exclusion domains order every transition: the hardware
// guard first, the session lock second, released in reverse. Acquisition
// timeouts degrade to a skipped cycle with a scheduled retry; state is never
// partially mutated.
//
// At most one backend stream is live at a time: an old stream is fully
// released before its replacement acquires anything. Callbacks from a stream
// that has been torn down are orphaned and become no-ops.
//
// All exported methods are safe for concurrent use.
type Session struct {
	cfg      SessionConfig
	sessLock *TimedMutex
	log      *slog.Logger

	// mu is a lightweight guard for the mutable fields below. It is never
	// held while acquiring the hardware or session locks.
	mu           sync.Mutex
	state        SessionState
	shouldStream bool
	gen          uint64
	handle       asr.StreamHandle
	watchDone    chan struct{}
	restartTimer *time.Timer
	retryTimer   *time.Timer
	baseCtx      context.Context
}

// NewSession validates cfg and returns a session in the idle state.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Open == nil {
		return nil, &ConfigurationError{Field: "Open", Reason: "must not be nil"}
	}
	if cfg.Hardware == nil {
		return nil, &ConfigurationError{Field: "Hardware", Reason: "must not be nil"}
	}
	if cfg.Name == "" {
		cfg.Name = "session"
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		cfg:      cfg,
		sessLock: NewTimedMutex("session"),
		log:      log.With("session", cfg.Name),
		baseCtx:  context.Background(),
	}, nil
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ShouldBeStreaming reports the desired state set by Start/Stop.
func (s *Session) ShouldBeStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shouldStream
}

// Start opens a backend stream and marks the session as wanting to stream.
// Calling Start while a stream is already live is a no-op: no duplicate
// session is opened and no resource leaks.
//
// The supplied ctx outlives this call — it bounds every stream the session
// opens, including timer-driven restarts.
func (s *Session) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	s.shouldStream = true
	s.baseCtx = ctx
	if s.state != SessionIdle {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.cycle("start")
}

// Stop tears down the live stream, cancels pending restarts, waits for any
// in-flight callback to finish, and releases all resources. Once Stop
// returns, no callback is running and none will fire: results from a
// torn-down stream are orphaned and mutate nothing. Safe to call when not
// started (no-op).
func (s *Session) Stop() error {
	s.mu.Lock()
	s.shouldStream = false
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	idle := s.state == SessionIdle && s.handle == nil
	s.mu.Unlock()
	if idle {
		return nil
	}

	if err := s.cfg.Hardware.Acquire(); err != nil {
		s.log.Warn("stop skipped: hardware lock timeout", "err", err)
		return err
	}
	defer s.cfg.Hardware.Release()
	if err := s.sessLock.Acquire(s.cfg.LockTimeout); err != nil {
		s.log.Warn("stop skipped: session lock timeout", "err", err)
		return err
	}
	defer s.sessLock.Release()

	s.teardown()
	return nil
}

// Feed forwards one PCM chunk to the live stream. Chunks arriving while no
// stream is live are dropped silently; frames race restarts, and a dropped
// chunk at a restart boundary is expected.
func (s *Session) Feed(chunk []byte) error {
	s.mu.Lock()
	h := s.handle
	streaming := s.state == SessionStreaming
	s.mu.Unlock()
	if !streaming || h == nil {
		return nil
	}
	return h.SendAudio(chunk)
}

// RequestRestart forces a stop-then-start cycle if the session wants to
// stream. Stages use it to resume after an externally imposed pause.
func (s *Session) RequestRestart() {
	s.mu.Lock()
	should := s.shouldStream
	s.mu.Unlock()
	if should {
		_ = s.cycle("requested")
	}
}

// ─── Internal transitions ─────────────────────────────────────────────────────

// cycle performs a full stop-then-start transition under both locks: tear
// down whatever stream is live, then — if the session still wants to stream —
// open a replacement. All restart paths (explicit start, deadline expiry,
// backend error, retry timer) funnel through here, which is what guarantees
// the old stream is fully released before the new one acquires resources.
func (s *Session) cycle(reason string) error {
	if err := s.cfg.Hardware.Acquire(); err != nil {
		s.log.Warn("cycle skipped: hardware lock timeout", "reason", reason, "err", err)
		s.scheduleRetry()
		return err
	}
	defer s.cfg.Hardware.Release()
	if err := s.sessLock.Acquire(s.cfg.LockTimeout); err != nil {
		s.log.Warn("cycle skipped: session lock timeout", "reason", reason, "err", err)
		s.scheduleRetry()
		return err
	}
	defer s.sessLock.Release()

	s.teardown()

	s.mu.Lock()
	if !s.shouldStream {
		s.mu.Unlock()
		return nil
	}
	s.state = SessionStarting
	ctx := s.baseCtx
	s.mu.Unlock()

	handle, err := s.cfg.Open(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = SessionIdle
		s.mu.Unlock()
		if asr.IsRetryable(err) {
			s.log.Warn("stream open failed, retrying", "reason", reason, "err", err)
			s.scheduleRetry()
			return nil
		}
		s.log.Error("stream open failed", "reason", reason, "err", err)
		if s.cfg.OnTerminalError != nil {
			s.cfg.OnTerminalError(err)
		}
		return err
	}

	s.mu.Lock()
	if !s.shouldStream {
		// Stop arrived while Open was in flight. The fresh stream was never
		// installed; discard it and settle back to idle.
		s.mu.Unlock()
		s.log.Debug("stop requested during open, discarding stream", "reason", reason)
		if cerr := handle.Close(); cerr != nil {
			s.log.Warn("stream close failed", "err", cerr)
		}
		s.mu.Lock()
		s.state = SessionIdle
		s.mu.Unlock()
		return nil
	}
	s.gen++
	gen := s.gen
	s.handle = handle
	done := make(chan struct{})
	s.watchDone = done
	s.state = SessionStreaming
	if s.cfg.MaxStreamDuration > 0 {
		s.restartTimer = time.AfterFunc(s.cfg.MaxStreamDuration, func() {
			s.deadlineRestart(gen)
		})
	}
	s.mu.Unlock()

	s.log.Debug("stream open", "reason", reason, "generation", gen)
	go s.watch(handle, gen, done)
	return nil
}

// teardown finalizes the current stream, if any, and cancels pending timers.
// Must be called with the session lock held (but not s.mu).
func (s *Session) teardown() {
	s.mu.Lock()
	h := s.handle
	done := s.watchDone
	s.handle = nil
	s.watchDone = nil
	if s.restartTimer != nil {
		s.restartTimer.Stop()
		s.restartTimer = nil
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	// Bump the generation so in-flight callbacks from the old stream are
	// orphaned before the handle is closed.
	s.gen++
	if h != nil {
		s.state = SessionStopping
	}
	s.mu.Unlock()

	if h != nil {
		if err := h.Close(); err != nil {
			s.log.Warn("stream close failed", "err", err)
		}
	}

	// Join the watcher so no callback is still in flight when teardown
	// returns. Close has closed the result channels, so the watcher drains
	// and exits; it signals done before it starts any follow-up cycle, so a
	// watcher-initiated teardown never waits on itself.
	if done != nil {
		<-done
	}

	s.mu.Lock()
	s.state = SessionIdle
	s.mu.Unlock()
}

// deadlineRestart fires when the provider's stream-duration limit is near.
func (s *Session) deadlineRestart(gen uint64) {
	s.mu.Lock()
	current := s.gen == gen && s.shouldStream
	s.mu.Unlock()
	if !current {
		return
	}
	_ = s.cycle("deadline")
}

// scheduleRetry arms the retry timer after a skipped or failed cycle. At most
// one retry is pending at a time.
func (s *Session) scheduleRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.shouldStream || s.retryTimer != nil {
		return
	}
	s.retryTimer = time.AfterFunc(s.cfg.RetryInterval, func() {
		s.mu.Lock()
		s.retryTimer = nil
		should := s.shouldStream
		s.mu.Unlock()
		if should {
			_ = s.cycle("retry")
		}
	})
}

// watch consumes one stream's result channels, signals done, and then runs
// any follow-up cycle. gen ties the goroutine to the stream it was spawned
// for; once the session moves on, the remaining events are discarded. done
// must be closed before the follow-up cycle, so that teardown can join the
// goroutine without a watcher-initiated restart waiting on itself.
func (s *Session) watch(h asr.StreamHandle, gen uint64, done chan struct{}) {
	reason := s.consume(h, gen)
	close(done)
	switch reason {
	case "":
		return
	case "backend-ended":
		s.mu.Lock()
		should := s.shouldStream
		s.mu.Unlock()
		if !should {
			return
		}
		s.log.Debug("backend ended stream, reopening")
	}
	_ = s.cycle(reason)
}

// consume drains h's result channels until they close or an error event
// arrives, delivering events that belong to the live generation. It returns
// the cycle reason for the follow-up restart, or "" when none is needed.
// Retryable backend errors are swallowed; terminal ones reach
// OnTerminalError exactly once before the restart.
func (s *Session) consume(h asr.StreamHandle, gen uint64) string {
	partials, finals, errs := h.Partials(), h.Finals(), h.Errs()
	for partials != nil || finals != nil || errs != nil {
		select {
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			if s.isCurrent(gen) && s.cfg.OnPartial != nil {
				s.cfg.OnPartial(t)
			}
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			if s.isCurrent(gen) && s.cfg.OnFinal != nil {
				s.cfg.OnFinal(t)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if !s.isCurrent(gen) {
				continue
			}
			if asr.IsRetryable(err) {
				s.log.Warn("retryable backend error, restarting", "err", err)
			} else {
				s.log.Error("terminal backend error", "err", err)
				if s.cfg.OnTerminalError != nil {
					s.cfg.OnTerminalError(err)
				}
			}
			return "backend-error"
		}
	}

	// All channels closed without an error event: the backend ended the
	// stream on its own, unless the session already moved past this one.
	if !s.isCurrent(gen) {
		return ""
	}
	return "backend-ended"
}

// isCurrent reports whether gen identifies the live stream.
func (s *Session) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}
