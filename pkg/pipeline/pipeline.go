// Package pipeline implements the Auricle speech-input pipeline core: the
// shared mutable state and event fan-out ([SharedContext]), the ordered-stage
// lifecycle contract ([Stage]), the bounded recognition-session state machine
// ([Session]), and the orchestrator ([Pipeline]) that ties them to an audio
// source.
//
// The pipeline owns the "is the user talking to me" decision loop: frames
// from the source are fanned out to every stage in chain order, stages mutate
// the shared context (voice activity, activation, transcript), and the
// context dispatches lifecycle and recognition events to registered
// listeners, asynchronously, in registration order.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/auricle-dev/auricle/pkg/audio"
)

// Config holds the construction parameters for a [Pipeline].
type Config struct {
	// SampleRate is the PCM sample rate every frame must carry, in Hz.
	SampleRate int

	// FrameWidth is the fixed duration of one frame.
	FrameWidth time.Duration
}

// Option configures a [Pipeline] during construction.
type Option func(*Pipeline)

// WithLogger sets the pipeline's logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithListener registers l before the initialized event is dispatched, so it
// observes the full lifecycle. Listeners can also be added later via
// [SharedContext.AddListener], but miss events dispatched before then.
func WithListener(l Listener) Option {
	return func(p *Pipeline) { p.sc.AddListener(l) }
}

// WithFrameHook installs fn to be called once per pumped frame, after stage
// fan-out. Used for metrics; fn must not block.
func WithFrameHook(fn func(audio.Frame)) Option {
	return func(p *Pipeline) { p.frameHook = fn }
}

// Pipeline drives an ordered list of stages plus the shared context through
// the start/stop/activate/deactivate lifecycle. The stage list is fixed after
// construction; frames from the audio source are delivered to each stage's
// Process in list order.
//
// All exported methods are safe for concurrent use. Start and Stop are
// idempotent: repeated calls produce exactly one lifecycle event each.
type Pipeline struct {
	cfg       Config
	sc        *SharedContext
	stages    []Stage
	source    audio.Source
	log       *slog.Logger
	frameHook func(audio.Frame)

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	pumpDone chan struct{}
}

// New validates cfg, assembles the pipeline, and dispatches the initialized
// event. The shared context sc must be the same one the stages were
// constructed with; the pipeline takes ownership of it and shuts its delivery
// executor down on [Pipeline.Close].
func New(cfg Config, sc *SharedContext, source audio.Source, stages []Stage, opts ...Option) (*Pipeline, error) {
	if cfg.SampleRate <= 0 {
		return nil, &ConfigurationError{Field: "SampleRate", Reason: "must be positive"}
	}
	if cfg.FrameWidth <= 0 {
		return nil, &ConfigurationError{Field: "FrameWidth", Reason: "must be positive"}
	}
	if sc == nil {
		return nil, &ConfigurationError{Field: "SharedContext", Reason: "must not be nil"}
	}
	if source == nil {
		return nil, &ConfigurationError{Field: "Source", Reason: "must not be nil"}
	}
	if len(stages) == 0 {
		return nil, &ConfigurationError{Field: "Stages", Reason: "must not be empty"}
	}

	p := &Pipeline{
		cfg:    cfg,
		sc:     sc,
		stages: stages,
		source: source,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}

	p.sc.Dispatch(EventInitialized)
	return p, nil
}

// Context returns the shared context, e.g. to register listeners after
// construction.
func (p *Pipeline) Context() *SharedContext { return p.sc }

// IsStarted reports whether the pipeline is currently streaming.
func (p *Pipeline) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Start begins streaming: every stage's StartStreaming is invoked in list
// order, the audio source is started, the frame pump begins, and one started
// event is dispatched. A no-op when already started.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	for i, st := range p.stages {
		if err := st.StartStreaming(ctx); err != nil {
			// Roll back the stages already running, newest first.
			for j := i - 1; j >= 0; j-- {
				_ = p.stages[j].StopStreaming()
			}
			cancel()
			return fmt.Errorf("pipeline: start stage %s: %w", st.Name(), err)
		}
	}

	if err := p.source.Start(ctx); err != nil {
		for j := len(p.stages) - 1; j >= 0; j-- {
			_ = p.stages[j].StopStreaming()
		}
		cancel()
		return fmt.Errorf("pipeline: start source: %w", err)
	}

	p.cancel = cancel
	p.pumpDone = make(chan struct{})
	go p.pump(p.source.Frames(), p.pumpDone)

	p.started = true
	p.sc.Dispatch(EventStarted)
	p.log.Info("pipeline started", "stages", len(p.stages))
	return nil
}

// Stop tears down streaming: every stage's StopStreaming is invoked in list
// order, the source is stopped, the frame pump drained, and one stopped event
// is dispatched. Sessions are fully torn down before the stopped dispatch, so
// no late recognition event can follow it. A no-op when not started.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil
	}

	var firstErr error
	for _, st := range p.stages {
		if err := st.StopStreaming(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("pipeline: stop stage %s: %w", st.Name(), err)
		}
	}

	if err := p.source.Stop(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("pipeline: stop source: %w", err)
	}
	p.cancel()
	<-p.pumpDone

	p.started = false
	p.sc.Dispatch(EventStopped)
	p.log.Info("pipeline stopped")
	return firstErr
}

// Activate opens the recognition window explicitly — push-to-talk or
// multi-turn dialogue continuation rather than wakeword detection. A no-op
// when already active; exactly one activated event is dispatched per
// inactive-to-active transition.
func (p *Pipeline) Activate() {
	if p.sc.Activate() {
		p.sc.Dispatch(EventActivated)
	}
}

// Deactivate unconditionally closes the recognition window, clears the
// speech flag and transcript, and dispatches deactivated.
func (p *Pipeline) Deactivate() {
	p.sc.Deactivate()
	p.sc.Dispatch(EventDeactivated)
}

// Close stops the pipeline if running, clears the listener registry, and
// shuts down the delivery executor. The pipeline is unusable afterwards.
func (p *Pipeline) Close() error {
	err := p.Stop()
	p.sc.RemoveAllListeners()
	p.sc.closeExecutor()
	return err
}

// pump fans each frame out to every stage in chain order. Stage errors are
// logged and the frame continues down the chain: one misbehaving stage must
// not starve the others.
func (p *Pipeline) pump(frames <-chan audio.Frame, done chan<- struct{}) {
	defer close(done)
	for f := range frames {
		for _, st := range p.stages {
			if err := st.Process(f); err != nil {
				p.log.Warn("stage process failed", "stage", st.Name(), "err", err)
			}
		}
		if p.frameHook != nil {
			p.frameHook(f)
		}
	}
}
