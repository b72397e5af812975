package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/auricle-dev/auricle/pkg/audio"
	"github.com/auricle-dev/auricle/pkg/pipeline"
)

func TestStage_TriggerRelease(t *testing.T) {
	sc := pipeline.NewSharedContext(16)

	activated := make(chan struct{}, 4)
	deactivated := make(chan struct{}, 4)
	sc.AddListener(&pipeline.Funcs{
		Activated:   func() { activated <- struct{}{} },
		Deactivated: func() { deactivated <- struct{}{} },
	})

	s, err := New(sc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !s.Trigger() {
		t.Fatal("first trigger should win the activation")
	}
	if s.Trigger() {
		t.Error("second trigger should be a no-op")
	}
	if !sc.IsActive() {
		t.Error("expected active window")
	}

	select {
	case <-activated:
	case <-time.After(2 * time.Second):
		t.Fatal("activated never dispatched")
	}
	select {
	case <-activated:
		t.Error("activated dispatched twice")
	case <-time.After(30 * time.Millisecond):
	}

	s.Release()
	if sc.IsActive() {
		t.Error("expected closed window")
	}
	select {
	case <-deactivated:
	case <-time.After(2 * time.Second):
		t.Fatal("deactivated never dispatched")
	}

	// The window can be reopened.
	if !s.Trigger() {
		t.Error("re-trigger after release should win")
	}
}

func TestStage_Lifecycle(t *testing.T) {
	sc := pipeline.NewSharedContext(1)
	s, err := New(sc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	frame := audio.Frame{Data: []byte{0, 0}}

	err = s.Process(frame)
	var se *pipeline.StateError
	if !errors.As(err, &se) {
		t.Errorf("expected *pipeline.StateError before start, got %v", err)
	}

	if err := s.StartStreaming(context.Background()); err != nil {
		t.Fatalf("StartStreaming: %v", err)
	}
	if err := s.Process(frame); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := s.StopStreaming(); err != nil {
		t.Fatalf("StopStreaming: %v", err)
	}
}

func TestNew_NilContext(t *testing.T) {
	var ce *pipeline.ConfigurationError
	if _, err := New(nil); !errors.As(err, &ce) {
		t.Errorf("expected *ConfigurationError, got %v", err)
	}
}
