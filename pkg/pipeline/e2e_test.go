package pipeline_test

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/auricle-dev/auricle/pkg/asr"
	asrmock "github.com/auricle-dev/auricle/pkg/asr/mock"
	"github.com/auricle-dev/auricle/pkg/audio"
	audiomock "github.com/auricle-dev/auricle/pkg/audio/mock"
	"github.com/auricle-dev/auricle/pkg/pipeline"
	"github.com/auricle-dev/auricle/pkg/stage/recognizer"
	"github.com/auricle-dev/auricle/pkg/stage/vad"
	"github.com/auricle-dev/auricle/pkg/stage/wakeword"
)

// eventRecorder counts delivered events and remembers recognition snapshots.
type eventRecorder struct {
	mu     sync.Mutex
	counts map[string]int
	snaps  []pipeline.Snapshot
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{counts: make(map[string]int)}
}

func (r *eventRecorder) bump(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name]++
}

func (r *eventRecorder) OnInitialized() { r.bump("initialized") }
func (r *eventRecorder) OnStarted()     { r.bump("started") }
func (r *eventRecorder) OnStopped()     { r.bump("stopped") }
func (r *eventRecorder) OnActivated()   { r.bump("activated") }
func (r *eventRecorder) OnDeactivated() { r.bump("deactivated") }
func (r *eventRecorder) OnTimedOut()    { r.bump("timedOut") }
func (r *eventRecorder) OnTraced(string) {
	r.bump("traced")
}
func (r *eventRecorder) OnErrored(error) {
	r.bump("errored")
}

func (r *eventRecorder) OnRecognized(s pipeline.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts["recognized"]++
	r.snaps = append(r.snaps, s)
}

func (r *eventRecorder) OnPartialRecognized(s pipeline.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts["partialRecognized"]++
	r.snaps = append(r.snaps, s)
}

func (r *eventRecorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name]
}

func (r *eventRecorder) lastSnap() (pipeline.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return pipeline.Snapshot{}, false
	}
	return r.snaps[len(r.snaps)-1], true
}

// streamPool is an asr mock factory remembering every opened stream.
type streamPool struct {
	mu      sync.Mutex
	streams []*asrmock.Stream
}

func (p *streamPool) factory() asr.StreamHandle {
	st := asrmock.NewStream()
	p.mu.Lock()
	p.streams = append(p.streams, st)
	p.mu.Unlock()
	return st
}

func (p *streamPool) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.streams)
}

func (p *streamPool) at(i int) *asrmock.Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i >= len(p.streams) {
		return nil
	}
	return p.streams[i]
}

// tone builds one 20 ms frame of constant-amplitude 16-bit PCM. Amplitude
// 6000 lands well above the default speech threshold; 0 is pure silence.
func tone(amplitude int16) audio.Frame {
	const samples = 320 // 20 ms at 16 kHz
	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(data[2*i:], uint16(amplitude))
	}
	return audio.Frame{Data: data, SampleRate: 16000, Channels: 1}
}

func await(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestPipeline_EndToEnd(t *testing.T) {
	sc := pipeline.NewSharedContext(64)
	hw := pipeline.NewHardwareGuard(500 * time.Millisecond)

	wakePool := &streamPool{}
	recogPool := &streamPool{}
	wakeProvider := &asrmock.Provider{StreamFactory: wakePool.factory}
	recogProvider := &asrmock.Provider{StreamFactory: recogPool.factory}

	vadStage, err := vad.New(sc, vad.Config{SpeechFrames: 2, SilenceFrames: 3})
	if err != nil {
		t.Fatalf("vad.New: %v", err)
	}
	wakeStage, err := wakeword.New(sc, hw, wakeProvider, wakeword.Config{
		Phrases: []string{"hey auricle"},
	})
	if err != nil {
		t.Fatalf("wakeword.New: %v", err)
	}
	recogStage, err := recognizer.New(sc, hw, recogProvider, recognizer.Config{
		SilenceTimeout: 150 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("recognizer.New: %v", err)
	}

	rec := newEventRecorder()
	src := audiomock.NewSource(256)

	p, err := pipeline.New(
		pipeline.Config{SampleRate: 16000, FrameWidth: 20 * time.Millisecond},
		sc, src,
		[]pipeline.Stage{vadStage, wakeStage, recogStage},
		pipeline.WithListener(rec),
	)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("pipeline.Start: %v", err)
	}
	defer p.Close()

	// Drive the frame path continuously so stage transitions keep happening.
	pumpStop := make(chan struct{})
	var pumpWG sync.WaitGroup
	pumpWG.Add(1)
	go func() {
		defer pumpWG.Done()
		tick := time.NewTicker(5 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-pumpStop:
				return
			case <-tick.C:
				src.Push(tone(6000))
			}
		}
	}()
	defer func() {
		close(pumpStop)
		pumpWG.Wait()
	}()

	// The wakeword session opens immediately with the pipeline.
	await(t, func() bool { return wakePool.len() == 1 }, "wakeword stream never opened")

	// VAD flips the speech flag after the required run of loud frames.
	await(t, sc.IsSpeechDetected, "speech never detected")

	// Ordinary speech does not open the recognition window.
	wakePool.at(0).EmitFinal(asr.Transcript{Text: "what is the weather like"})
	time.Sleep(50 * time.Millisecond)
	if got := rec.count("activated"); got != 0 {
		t.Fatalf("activated %d times without a wake phrase", got)
	}

	// The wake phrase opens the window exactly once.
	wakePool.at(0).EmitFinal(asr.Transcript{Text: "hey auricle"})
	await(t, func() bool { return rec.count("activated") == 1 }, "activation never happened")
	await(t, sc.IsActive, "shared context never became active")

	// The recognizer opens its backend session and the wakeword stage mutes.
	await(t, func() bool { return recogPool.len() == 1 }, "recognizer stream never opened")
	await(t, func() bool { return wakePool.at(0).Closed() }, "wakeword stream not muted while active")

	// Partial then final results flow out as recognition events.
	recogPool.at(0).EmitPartial(asr.Transcript{Text: "turn on"})
	await(t, func() bool { return rec.count("partialRecognized") == 1 }, "partial never delivered")

	recogPool.at(0).EmitFinal(asr.Transcript{Text: "turn on the lights", Confidence: 0.94})
	await(t, func() bool { return rec.count("recognized") == 1 }, "final never delivered")

	snap, ok := rec.lastSnap()
	if !ok || snap.Transcript != "turn on the lights" {
		t.Fatalf("snapshot = %+v, want final transcript", snap)
	}

	// With no further results the window times out and closes.
	await(t, func() bool { return rec.count("timedOut") == 1 }, "silence timeout never fired")
	await(t, func() bool { return rec.count("deactivated") == 1 }, "deactivation never happened")
	await(t, func() bool { return !sc.IsActive() }, "shared context still active")

	// The wakeword stage re-arms with a fresh stream and can activate again.
	await(t, func() bool { return wakePool.len() == 2 }, "wakeword never re-armed")
	wakePool.at(1).EmitFinal(asr.Transcript{Text: "hey auricle"})
	await(t, func() bool { return rec.count("activated") == 2 }, "second activation never happened")

	if got := rec.count("errored"); got != 0 {
		t.Errorf("unexpected errored events: %d", got)
	}
}

func TestPipeline_EndToEnd_PhoneticNearMiss(t *testing.T) {
	sc := pipeline.NewSharedContext(16)
	hw := pipeline.NewHardwareGuard(500 * time.Millisecond)

	pool := &streamPool{}
	provider := &asrmock.Provider{StreamFactory: pool.factory}

	wakeStage, err := wakeword.New(sc, hw, provider, wakeword.Config{
		Phrases: []string{"hey auricle"},
	})
	if err != nil {
		t.Fatalf("wakeword.New: %v", err)
	}

	rec := newEventRecorder()
	src := audiomock.NewSource(16)

	p, err := pipeline.New(
		pipeline.Config{SampleRate: 16000, FrameWidth: 20 * time.Millisecond},
		sc, src,
		[]pipeline.Stage{wakeStage},
		pipeline.WithListener(rec),
	)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("pipeline.Start: %v", err)
	}
	defer p.Close()

	await(t, func() bool { return pool.len() == 1 }, "wakeword stream never opened")

	// The backend mishears the phrase; the phonetic matcher still catches it.
	pool.at(0).EmitFinal(asr.Transcript{Text: "hey oracle"})
	await(t, func() bool { return rec.count("activated") == 1 }, "near-miss wake phrase not matched")
}
