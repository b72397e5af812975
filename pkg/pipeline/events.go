package pipeline

// EventKind enumerates the lifecycle and recognition events a pipeline emits
// to its listeners.
type EventKind int

const (
	// EventInitialized is dispatched once, after the pipeline is constructed.
	EventInitialized EventKind = iota

	// EventStarted is dispatched when the pipeline begins streaming.
	EventStarted

	// EventStopped is dispatched when the pipeline has fully stopped.
	EventStopped

	// EventActivated is dispatched when a recognition window opens.
	EventActivated

	// EventDeactivated is dispatched when the recognition window closes.
	EventDeactivated

	// EventRecognized is dispatched on a final recognition result.
	EventRecognized

	// EventPartialRecognized is dispatched on an interim recognition result.
	EventPartialRecognized

	// EventTimedOut is dispatched when an activation window expires without
	// a final result.
	EventTimedOut

	// EventTraced is dispatched with a diagnostic trace message.
	EventTraced

	// EventErrored is dispatched with a terminal error.
	EventErrored
)

// String returns the lower-camel event name used in logs.
func (k EventKind) String() string {
	switch k {
	case EventInitialized:
		return "initialized"
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventActivated:
		return "activated"
	case EventDeactivated:
		return "deactivated"
	case EventRecognized:
		return "recognized"
	case EventPartialRecognized:
		return "partialRecognized"
	case EventTimedOut:
		return "timedOut"
	case EventTraced:
		return "traced"
	case EventErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time copy of the shared pipeline state, handed to
// recognition callbacks so listeners never read mutable state directly.
type Snapshot struct {
	IsActive         bool
	IsSpeechDetected bool
	Transcript       string
	Confidence       float64
}

// Listener receives pipeline events. Every callback is invoked asynchronously
// on the pipeline's delivery executor, never on the caller's goroutine.
//
// Implementations should be pointer types: the listener registry deduplicates
// registrations by identity, which for pointer receivers is plain pointer
// equality. Use [Funcs] when only a subset of callbacks is interesting.
type Listener interface {
	OnInitialized()
	OnStarted()
	OnStopped()
	OnActivated()
	OnDeactivated()
	OnRecognized(s Snapshot)
	OnPartialRecognized(s Snapshot)
	OnTimedOut()
	OnTraced(message string)
	OnErrored(err error)
}

// Funcs adapts a set of optional callback functions into a [Listener]. Nil
// fields default to no-ops, so a host that only cares about final
// recognitions sets Recognized and nothing else.
type Funcs struct {
	Initialized       func()
	Started           func()
	Stopped           func()
	Activated         func()
	Deactivated       func()
	Recognized        func(Snapshot)
	PartialRecognized func(Snapshot)
	TimedOut          func()
	Traced            func(string)
	Errored           func(error)
}

var _ Listener = (*Funcs)(nil)

func (f *Funcs) OnInitialized() {
	if f.Initialized != nil {
		f.Initialized()
	}
}

func (f *Funcs) OnStarted() {
	if f.Started != nil {
		f.Started()
	}
}

func (f *Funcs) OnStopped() {
	if f.Stopped != nil {
		f.Stopped()
	}
}

func (f *Funcs) OnActivated() {
	if f.Activated != nil {
		f.Activated()
	}
}

func (f *Funcs) OnDeactivated() {
	if f.Deactivated != nil {
		f.Deactivated()
	}
}

func (f *Funcs) OnRecognized(s Snapshot) {
	if f.Recognized != nil {
		f.Recognized(s)
	}
}

func (f *Funcs) OnPartialRecognized(s Snapshot) {
	if f.PartialRecognized != nil {
		f.PartialRecognized(s)
	}
}

func (f *Funcs) OnTimedOut() {
	if f.TimedOut != nil {
		f.TimedOut()
	}
}

func (f *Funcs) OnTraced(message string) {
	if f.Traced != nil {
		f.Traced(message)
	}
}

func (f *Funcs) OnErrored(err error) {
	if f.Errored != nil {
		f.Errored(err)
	}
}
