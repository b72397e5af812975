// Package vad implements the voice-activity-detection stage.
//
// The detector is a pure-Go RMS energy classifier with hysteresis: speech
// starts after a run of consecutive frames above the speech threshold and
// ends after a longer run below the silence threshold, so the state does not
// flicker on breaths and plosives. It runs synchronously in the frame path —
// no backend, no session — and its only side effect is flipping the shared
// context's speech-detected flag.
package vad

import (
	"context"
	"math"
	"sync"

	"github.com/auricle-dev/auricle/pkg/audio"
	"github.com/auricle-dev/auricle/pkg/pipeline"
)

// Defaults tuned for 16 kHz mono 20 ms frames.
const (
	defaultSpeechThreshold  = 0.015
	defaultSilenceThreshold = 0.008
	defaultSpeechFrames     = 3  // ~60 ms of speech to start
	defaultSilenceFrames    = 30 // ~600 ms of silence to end
)

// Config holds the detector thresholds. Zero values select the defaults.
type Config struct {
	// SpeechThreshold is the normalized RMS level at or above which a frame
	// counts as speech. Range (0, 1].
	SpeechThreshold float64

	// SilenceThreshold is the normalized RMS level below which a frame
	// counts as silence. Must be <= SpeechThreshold.
	SilenceThreshold float64

	// SpeechFrames is the number of consecutive speech frames required to
	// enter the speaking state.
	SpeechFrames int

	// SilenceFrames is the number of consecutive silence frames required to
	// leave the speaking state.
	SilenceFrames int
}

// Stage is the RMS-energy VAD stage. It implements [pipeline.Stage].
type Stage struct {
	sc  *pipeline.SharedContext
	cfg Config

	mu           sync.Mutex
	started      bool
	inSpeech     bool
	speechCount  int
	silenceCount int
}

var _ pipeline.Stage = (*Stage)(nil)

// New creates a VAD stage bound to sc.
func New(sc *pipeline.SharedContext, cfg Config) (*Stage, error) {
	if sc == nil {
		return nil, &pipeline.ConfigurationError{Field: "SharedContext", Reason: "must not be nil"}
	}
	if cfg.SpeechThreshold == 0 {
		cfg.SpeechThreshold = defaultSpeechThreshold
	}
	if cfg.SilenceThreshold == 0 {
		cfg.SilenceThreshold = defaultSilenceThreshold
	}
	if cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, &pipeline.ConfigurationError{Field: "SilenceThreshold", Reason: "must not exceed SpeechThreshold"}
	}
	if cfg.SpeechFrames <= 0 {
		cfg.SpeechFrames = defaultSpeechFrames
	}
	if cfg.SilenceFrames <= 0 {
		cfg.SilenceFrames = defaultSilenceFrames
	}
	return &Stage{sc: sc, cfg: cfg}, nil
}

// Name implements [pipeline.Stage].
func (s *Stage) Name() string { return "vad" }

// StartStreaming implements [pipeline.Stage]. It resets detection state so a
// restarted stream does not inherit counters from the previous segment.
func (s *Stage) StartStreaming(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	s.reset()
	return nil
}

// StopStreaming implements [pipeline.Stage].
func (s *Stage) StopStreaming() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	s.reset()
	s.sc.SetSpeechDetected(false)
	return nil
}

// Process implements [pipeline.Stage]. It classifies the frame and publishes
// speech-state transitions to the shared context.
func (s *Stage) Process(frame audio.Frame) error {
	level := rms(frame.Data)

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return &pipeline.StateError{Op: "vad process", State: "stopped"}
	}

	was := s.inSpeech
	if s.inSpeech {
		if level < s.cfg.SilenceThreshold {
			s.silenceCount++
			s.speechCount = 0
			if s.silenceCount >= s.cfg.SilenceFrames {
				s.inSpeech = false
				s.silenceCount = 0
			}
		} else {
			s.silenceCount = 0
		}
	} else {
		if level >= s.cfg.SpeechThreshold {
			s.speechCount++
			s.silenceCount = 0
			if s.speechCount >= s.cfg.SpeechFrames {
				s.inSpeech = true
				s.speechCount = 0
			}
		} else {
			s.speechCount = 0
		}
	}
	now := s.inSpeech
	s.mu.Unlock()

	if was != now {
		s.sc.SetSpeechDetected(now)
	}
	return nil
}

// reset must be called with s.mu held.
func (s *Stage) reset() {
	s.inSpeech = false
	s.speechCount = 0
	s.silenceCount = 0
}

// rms computes the normalized root-mean-square level of little-endian 16-bit
// PCM, in [0, 1].
func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		f := float64(v) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(n))
}
