package pipeline

import (
	"sync"
	"testing"
	"time"
)

// recordingListener captures delivered events in order, with their payloads.
type recordingListener struct {
	mu     sync.Mutex
	events []string
	snaps  []Snapshot
	errs   []error
	traces []string
}

func (r *recordingListener) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
}

func (r *recordingListener) OnInitialized() { r.record("initialized") }
func (r *recordingListener) OnStarted()     { r.record("started") }
func (r *recordingListener) OnStopped()     { r.record("stopped") }
func (r *recordingListener) OnActivated()   { r.record("activated") }
func (r *recordingListener) OnDeactivated() { r.record("deactivated") }
func (r *recordingListener) OnTimedOut()    { r.record("timedOut") }

func (r *recordingListener) OnRecognized(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "recognized")
	r.snaps = append(r.snaps, s)
}

func (r *recordingListener) OnPartialRecognized(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "partialRecognized")
	r.snaps = append(r.snaps, s)
}

func (r *recordingListener) OnTraced(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "traced")
	r.traces = append(r.traces, msg)
}

func (r *recordingListener) OnErrored(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "errored")
	r.errs = append(r.errs, err)
}

func (r *recordingListener) taken() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recordingListener) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == name {
			n++
		}
	}
	return n
}

// waitFor polls cond until it holds or two seconds elapse.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}
