package pipeline

import (
	"errors"
	"sync"
)

// ErrErrorNotSet is the synthesized payload delivered when [EventErrored] is
// dispatched without a pending error having been set first. Stages are
// required to call [SharedContext.SetPendingError] before dispatching; this
// value surfaces the contract violation instead of delivering garbage.
var ErrErrorNotSet = errors.New("pipeline: errored dispatched with no pending error set")

// SharedContext holds the pipeline-wide mutable state — activation and
// speech-detected flags, the latest transcript, pending error/trace payloads
// — and the listener registry with its event-dispatch fan-out. One
// SharedContext exists per pipeline; the orchestrator owns it and every stage
// references it.
//
// All methods are safe for concurrent use. Flag reads and writes are guarded
// by an internal mutex; event delivery is serialized through the configured
// [Executor], which guarantees in-order delivery across listeners for a
// single dispatch but no ordering between dispatch calls racing from
// different goroutines.
type SharedContext struct {
	mu sync.Mutex

	active       bool
	speech       bool
	transcript   string
	confidence   float64
	pendingErr   error
	pendingTrace string
	hasTrace     bool

	listeners []Listener

	exec Executor
}

// ContextOption configures a [SharedContext] during construction.
type ContextOption func(*SharedContext)

// WithExecutor replaces the default serial delivery executor. The executor's
// lifetime becomes the caller's responsibility.
func WithExecutor(e Executor) ContextOption {
	return func(sc *SharedContext) { sc.exec = e }
}

// defaultQueueDepth is the delivery queue depth used when the caller does not
// specify one.
const defaultQueueDepth = 256

// NewSharedContext creates an empty context. Without [WithExecutor] a
// [SerialExecutor] with the given queue depth is created (256 when
// queueDepth <= 0); the orchestrator closes it when the pipeline is closed.
func NewSharedContext(queueDepth int, opts ...ContextOption) *SharedContext {
	if queueDepth <= 0 {
		queueDepth = defaultQueueDepth
	}
	sc := &SharedContext{}
	for _, o := range opts {
		o(sc)
	}
	if sc.exec == nil {
		sc.exec = NewSerialExecutor(queueDepth)
	}
	return sc
}

// ─── Listener registry ────────────────────────────────────────────────────────

// AddListener appends l to the registry unless the same listener identity is
// already present, in which case the call is a no-op. Listeners are compared
// by identity (pointer equality for pointer-typed listeners), never by value.
func (sc *SharedContext) AddListener(l Listener) {
	if l == nil {
		return
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for _, existing := range sc.listeners {
		if existing == l {
			return
		}
	}
	sc.listeners = append(sc.listeners, l)
}

// RemoveListener removes l from the registry by identity. Removing a
// listener that is not registered is a no-op.
func (sc *SharedContext) RemoveListener(l Listener) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for i, existing := range sc.listeners {
		if existing == l {
			sc.listeners = append(sc.listeners[:i], sc.listeners[i+1:]...)
			return
		}
	}
}

// RemoveAllListeners empties the registry.
func (sc *SharedContext) RemoveAllListeners() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.listeners = nil
}

// ListenerCount returns the current registry size.
func (sc *SharedContext) ListenerCount() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.listeners)
}

// ─── State accessors ──────────────────────────────────────────────────────────

// IsActive reports whether a recognition window is open.
func (sc *SharedContext) IsActive() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.active
}

// IsSpeechDetected reports whether voice activity is currently present.
func (sc *SharedContext) IsSpeechDetected() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.speech
}

// SetSpeechDetected records the current voice-activity state.
func (sc *SharedContext) SetSpeechDetected(v bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.speech = v
}

// Transcript returns the latest recognition result and its confidence.
func (sc *SharedContext) Transcript() (string, float64) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.transcript, sc.confidence
}

// SetTranscript overwrites the latest recognition result.
func (sc *SharedContext) SetTranscript(text string, confidence float64) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.transcript = text
	sc.confidence = confidence
}

// Activate opens the recognition window with compare-and-set semantics:
// the first writer wins and gets true, concurrent or repeated activation is a
// no-op returning false. Speech-detected is raised together with the flag so
// downstream stages see a consistent activation.
func (sc *SharedContext) Activate() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.active {
		return false
	}
	sc.active = true
	sc.speech = true
	return true
}

// Deactivate unconditionally closes the recognition window, clears the
// speech flag, and erases the transcript.
func (sc *SharedContext) Deactivate() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.active = false
	sc.speech = false
	sc.transcript = ""
	sc.confidence = 0
}

// SetPendingError stages err for the next [EventErrored] dispatch. The
// dispatch consumes it; dispatching again without a fresh set delivers the
// synthesized [ErrErrorNotSet] instead.
func (sc *SharedContext) SetPendingError(err error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.pendingErr = err
}

// SetPendingTrace stages a diagnostic message for the next [EventTraced]
// dispatch. The dispatch consumes it.
func (sc *SharedContext) SetPendingTrace(message string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.pendingTrace = message
	sc.hasTrace = true
}

// snapshot must be called with sc.mu held.
func (sc *SharedContext) snapshot() Snapshot {
	return Snapshot{
		IsActive:         sc.active,
		IsSpeechDetected: sc.speech,
		Transcript:       sc.transcript,
		Confidence:       sc.confidence,
	}
}

// ─── Dispatch ─────────────────────────────────────────────────────────────────

// Dispatch fans the event out to every registered listener, asynchronously,
// in registration order, on the delivery executor. The listener set and any
// pending payload are captured atomically at dispatch time, so listeners
// added afterwards do not receive the event and payload fields are
// read-and-cleared exactly once.
func (sc *SharedContext) Dispatch(kind EventKind) {
	sc.mu.Lock()
	targets := make([]Listener, len(sc.listeners))
	copy(targets, sc.listeners)

	var (
		snap  Snapshot
		err   error
		trace string
	)
	switch kind {
	case EventRecognized, EventPartialRecognized:
		snap = sc.snapshot()
	case EventErrored:
		err = sc.pendingErr
		sc.pendingErr = nil
		if err == nil {
			err = ErrErrorNotSet
		}
	case EventTraced:
		if !sc.hasTrace {
			// Nothing staged: deliver nothing rather than an empty trace.
			sc.mu.Unlock()
			return
		}
		trace = sc.pendingTrace
		sc.pendingTrace = ""
		sc.hasTrace = false
	}
	sc.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	sc.exec.Submit(func() {
		for _, l := range targets {
			deliver(l, kind, snap, err, trace)
		}
	})
}

// deliver invokes the event-kind-specific callback on a single listener.
func deliver(l Listener, kind EventKind, snap Snapshot, err error, trace string) {
	switch kind {
	case EventInitialized:
		l.OnInitialized()
	case EventStarted:
		l.OnStarted()
	case EventStopped:
		l.OnStopped()
	case EventActivated:
		l.OnActivated()
	case EventDeactivated:
		l.OnDeactivated()
	case EventRecognized:
		l.OnRecognized(snap)
	case EventPartialRecognized:
		l.OnPartialRecognized(snap)
	case EventTimedOut:
		l.OnTimedOut()
	case EventTraced:
		l.OnTraced(trace)
	case EventErrored:
		l.OnErrored(err)
	}
}

// closeExecutor shuts down the delivery executor if the context owns one.
func (sc *SharedContext) closeExecutor() {
	if se, ok := sc.exec.(*SerialExecutor); ok {
		se.Close()
	}
}
