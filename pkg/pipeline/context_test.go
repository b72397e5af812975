package pipeline

import (
	"errors"
	"sync"
	"testing"
)

func TestSharedContext_ListenerRegistry(t *testing.T) {
	t.Run("duplicate registration is a no-op", func(t *testing.T) {
		sc := NewSharedContext(4)
		defer sc.closeExecutor()

		l := &recordingListener{}
		sc.AddListener(l)
		sc.AddListener(l)

		if got := sc.ListenerCount(); got != 1 {
			t.Errorf("expected 1 listener, got %d", got)
		}

		sc.Dispatch(EventStarted)
		waitFor(t, func() bool { return l.count("started") == 1 }, "started never delivered")
		if got := l.count("started"); got != 1 {
			t.Errorf("expected exactly 1 started event, got %d", got)
		}
	})

	t.Run("distinct listeners both receive events", func(t *testing.T) {
		sc := NewSharedContext(4)
		defer sc.closeExecutor()

		a := &recordingListener{}
		b := &recordingListener{}
		sc.AddListener(a)
		sc.AddListener(b)

		if got := sc.ListenerCount(); got != 2 {
			t.Fatalf("expected 2 listeners, got %d", got)
		}

		sc.Dispatch(EventStarted)
		waitFor(t, func() bool { return a.count("started") == 1 && b.count("started") == 1 },
			"started not delivered to both listeners")
	})

	t.Run("remove by identity", func(t *testing.T) {
		sc := NewSharedContext(4)
		defer sc.closeExecutor()

		a := &recordingListener{}
		b := &recordingListener{}
		sc.AddListener(a)
		sc.AddListener(b)

		sc.RemoveListener(a)
		if got := sc.ListenerCount(); got != 1 {
			t.Errorf("expected 1 listener after remove, got %d", got)
		}

		// Removing an unregistered listener must not panic or change anything.
		sc.RemoveListener(a)
		if got := sc.ListenerCount(); got != 1 {
			t.Errorf("expected 1 listener after double remove, got %d", got)
		}

		sc.RemoveAllListeners()
		if got := sc.ListenerCount(); got != 0 {
			t.Errorf("expected 0 listeners, got %d", got)
		}
	})

	t.Run("nil listener is ignored", func(t *testing.T) {
		sc := NewSharedContext(4)
		defer sc.closeExecutor()

		sc.AddListener(nil)
		if got := sc.ListenerCount(); got != 0 {
			t.Errorf("expected 0 listeners, got %d", got)
		}
	})
}

func TestSharedContext_DispatchOrdering(t *testing.T) {
	t.Run("registration order within one dispatch", func(t *testing.T) {
		sc := NewSharedContext(4)
		defer sc.closeExecutor()

		var mu sync.Mutex
		var order []string
		mk := func(name string) *Funcs {
			return &Funcs{Started: func() {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
			}}
		}
		sc.AddListener(mk("first"))
		sc.AddListener(mk("second"))
		sc.AddListener(mk("third"))

		sc.Dispatch(EventStarted)
		waitFor(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(order) == 3
		}, "not all listeners invoked")

		mu.Lock()
		defer mu.Unlock()
		want := []string{"first", "second", "third"}
		for i, name := range want {
			if order[i] != name {
				t.Fatalf("delivery order %v, want %v", order, want)
			}
		}
	})

	t.Run("dispatches from one goroutine stay ordered", func(t *testing.T) {
		sc := NewSharedContext(16)
		defer sc.closeExecutor()

		l := &recordingListener{}
		sc.AddListener(l)

		sc.Dispatch(EventStarted)
		sc.Dispatch(EventActivated)
		sc.Dispatch(EventDeactivated)
		sc.Dispatch(EventStopped)

		waitFor(t, func() bool { return len(l.taken()) == 4 }, "events not delivered")

		got := l.taken()
		want := []string{"started", "activated", "deactivated", "stopped"}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("event order %v, want %v", got, want)
			}
		}
	})

	t.Run("listener added after dispatch misses the event", func(t *testing.T) {
		sc := NewSharedContext(4)
		defer sc.closeExecutor()

		early := &recordingListener{}
		sc.AddListener(early)
		sc.Dispatch(EventStarted)

		late := &recordingListener{}
		sc.AddListener(late)

		waitFor(t, func() bool { return early.count("started") == 1 }, "started never delivered")
		if got := late.count("started"); got != 0 {
			t.Errorf("late listener received %d started events, want 0", got)
		}
	})
}

func TestSharedContext_PendingError(t *testing.T) {
	t.Run("pending error is consumed by the dispatch", func(t *testing.T) {
		sc := NewSharedContext(4)
		defer sc.closeExecutor()

		l := &recordingListener{}
		sc.AddListener(l)

		boom := errors.New("backend exploded")
		sc.SetPendingError(boom)
		sc.Dispatch(EventErrored)

		waitFor(t, func() bool { return l.count("errored") == 1 }, "errored never delivered")
		l.mu.Lock()
		got := l.errs[0]
		l.mu.Unlock()
		if !errors.Is(got, boom) {
			t.Errorf("delivered error = %v, want %v", got, boom)
		}
	})

	t.Run("errored without pending synthesizes ErrErrorNotSet", func(t *testing.T) {
		sc := NewSharedContext(4)
		defer sc.closeExecutor()

		l := &recordingListener{}
		sc.AddListener(l)

		sc.Dispatch(EventErrored)
		waitFor(t, func() bool { return l.count("errored") == 1 }, "errored never delivered")

		l.mu.Lock()
		got := l.errs[0]
		l.mu.Unlock()
		if !errors.Is(got, ErrErrorNotSet) {
			t.Errorf("delivered error = %v, want ErrErrorNotSet", got)
		}
	})

	t.Run("second dispatch without a fresh set synthesizes", func(t *testing.T) {
		sc := NewSharedContext(4)
		defer sc.closeExecutor()

		l := &recordingListener{}
		sc.AddListener(l)

		boom := errors.New("once")
		sc.SetPendingError(boom)
		sc.Dispatch(EventErrored)
		sc.Dispatch(EventErrored)

		waitFor(t, func() bool { return l.count("errored") == 2 }, "errored events not delivered")
		l.mu.Lock()
		first, second := l.errs[0], l.errs[1]
		l.mu.Unlock()
		if !errors.Is(first, boom) {
			t.Errorf("first error = %v, want %v", first, boom)
		}
		if !errors.Is(second, ErrErrorNotSet) {
			t.Errorf("second error = %v, want ErrErrorNotSet", second)
		}
	})
}

func TestSharedContext_PendingTrace(t *testing.T) {
	t.Run("traced without staged message delivers nothing", func(t *testing.T) {
		sc := NewSharedContext(4)
		defer sc.closeExecutor()

		l := &recordingListener{}
		sc.AddListener(l)

		sc.Dispatch(EventTraced)
		// Deliver a sentinel afterwards to prove the traced dispatch was skipped.
		sc.Dispatch(EventStarted)

		waitFor(t, func() bool { return l.count("started") == 1 }, "sentinel never delivered")
		if got := l.count("traced"); got != 0 {
			t.Errorf("expected no traced events, got %d", got)
		}
	})

	t.Run("staged trace delivered once", func(t *testing.T) {
		sc := NewSharedContext(4)
		defer sc.closeExecutor()

		l := &recordingListener{}
		sc.AddListener(l)

		sc.SetPendingTrace("lock wait 12ms")
		sc.Dispatch(EventTraced)
		sc.Dispatch(EventTraced)
		sc.Dispatch(EventStarted)

		waitFor(t, func() bool { return l.count("started") == 1 }, "sentinel never delivered")
		if got := l.count("traced"); got != 1 {
			t.Fatalf("expected 1 traced event, got %d", got)
		}
		l.mu.Lock()
		msg := l.traces[0]
		l.mu.Unlock()
		if msg != "lock wait 12ms" {
			t.Errorf("trace message = %q", msg)
		}
	})
}

func TestSharedContext_Activation(t *testing.T) {
	t.Run("first writer wins", func(t *testing.T) {
		sc := NewSharedContext(4)
		defer sc.closeExecutor()

		if !sc.Activate() {
			t.Fatal("first Activate should return true")
		}
		if sc.Activate() {
			t.Error("second Activate should return false")
		}
		if !sc.IsActive() {
			t.Error("expected active state")
		}
		if !sc.IsSpeechDetected() {
			t.Error("activation should raise the speech flag")
		}
	})

	t.Run("concurrent activation admits exactly one", func(t *testing.T) {
		sc := NewSharedContext(4)
		defer sc.closeExecutor()

		const n = 32
		var wg sync.WaitGroup
		var mu sync.Mutex
		won := 0
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if sc.Activate() {
					mu.Lock()
					won++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if won != 1 {
			t.Errorf("expected exactly 1 winner, got %d", won)
		}
	})

	t.Run("deactivate clears state", func(t *testing.T) {
		sc := NewSharedContext(4)
		defer sc.closeExecutor()

		sc.Activate()
		sc.SetTranscript("turn on the lights", 0.93)
		sc.Deactivate()

		if sc.IsActive() {
			t.Error("expected inactive")
		}
		if sc.IsSpeechDetected() {
			t.Error("expected speech flag cleared")
		}
		if text, conf := sc.Transcript(); text != "" || conf != 0 {
			t.Errorf("expected cleared transcript, got %q/%v", text, conf)
		}

		// Window can be reopened afterwards.
		if !sc.Activate() {
			t.Error("expected reactivation to succeed")
		}
	})
}

func TestSharedContext_RecognitionSnapshot(t *testing.T) {
	sc := NewSharedContext(4)
	defer sc.closeExecutor()

	l := &recordingListener{}
	sc.AddListener(l)

	sc.Activate()
	sc.SetTranscript("what time is it", 0.87)
	sc.Dispatch(EventRecognized)

	waitFor(t, func() bool { return l.count("recognized") == 1 }, "recognized never delivered")

	l.mu.Lock()
	snap := l.snaps[0]
	l.mu.Unlock()
	if snap.Transcript != "what time is it" {
		t.Errorf("snapshot transcript = %q", snap.Transcript)
	}
	if snap.Confidence != 0.87 {
		t.Errorf("snapshot confidence = %v", snap.Confidence)
	}
	if !snap.IsActive {
		t.Error("snapshot should carry the active flag")
	}

	// Mutations after the dispatch must not leak into the captured snapshot.
	sc.SetTranscript("overwritten", 0.1)
	l.mu.Lock()
	still := l.snaps[0].Transcript
	l.mu.Unlock()
	if still != "what time is it" {
		t.Errorf("snapshot mutated after dispatch: %q", still)
	}
}
