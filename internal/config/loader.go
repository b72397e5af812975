package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [LoadFromReader] before validation.
const (
	defaultSampleRate       = 16000
	defaultFrameWidthMs     = 20
	defaultMaxStreamSeconds = 50
	defaultLockTimeoutSecs  = 3
	defaultSilenceTimeout   = 8
	defaultQueueDepth       = 256
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = defaultSampleRate
	}
	if cfg.Audio.FrameWidthMs == 0 {
		cfg.Audio.FrameWidthMs = defaultFrameWidthMs
	}
	if cfg.Backend.MaxStreamSeconds == 0 {
		cfg.Backend.MaxStreamSeconds = defaultMaxStreamSeconds
	}
	if cfg.Backend.LockTimeoutSeconds == 0 {
		cfg.Backend.LockTimeoutSeconds = defaultLockTimeoutSecs
	}
	if cfg.Recognizer.SilenceTimeoutSeconds == 0 {
		cfg.Recognizer.SilenceTimeoutSeconds = defaultSilenceTimeout
	}
	if cfg.Dispatch.QueueDepth == 0 {
		cfg.Dispatch.QueueDepth = defaultQueueDepth
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameWidthMs <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_width_ms must be positive, got %d", cfg.Audio.FrameWidthMs))
	}
	if cfg.Backend.Endpoint != "" &&
		!strings.HasPrefix(cfg.Backend.Endpoint, "ws://") &&
		!strings.HasPrefix(cfg.Backend.Endpoint, "wss://") {
		errs = append(errs, fmt.Errorf("backend.endpoint %q must be a ws:// or wss:// URL", cfg.Backend.Endpoint))
	}
	if cfg.Backend.Endpoint != "" && cfg.Backend.APIKey == "" {
		errs = append(errs, errors.New("backend.api_key is required when backend.endpoint is set"))
	}
	if cfg.Backend.MaxStreamSeconds < 0 {
		errs = append(errs, fmt.Errorf("backend.max_stream_seconds must not be negative, got %d", cfg.Backend.MaxStreamSeconds))
	}
	for _, p := range cfg.Wakeword.Phrases {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, errors.New("wakeword.phrases must not contain empty entries"))
			break
		}
	}
	if t := cfg.Wakeword.PhoneticThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("wakeword.phonetic_threshold must be in [0, 1], got %g", t))
	}
	if t := cfg.Wakeword.FuzzyThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("wakeword.fuzzy_threshold must be in [0, 1], got %g", t))
	}
	if cfg.VAD.SilenceThreshold > cfg.VAD.SpeechThreshold {
		errs = append(errs, fmt.Errorf("vad.silence_threshold (%g) must not exceed vad.speech_threshold (%g)",
			cfg.VAD.SilenceThreshold, cfg.VAD.SpeechThreshold))
	}
	if cfg.Dispatch.QueueDepth < 0 {
		errs = append(errs, fmt.Errorf("dispatch.queue_depth must not be negative, got %d", cfg.Dispatch.QueueDepth))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
