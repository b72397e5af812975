// Package config provides the configuration schema and loader for the
// Auricle speech-input pipeline.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Auricle.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Audio      AudioConfig      `yaml:"audio"`
	Backend    BackendConfig    `yaml:"backend"`
	Wakeword   WakewordConfig   `yaml:"wakeword"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	VAD        VADConfig        `yaml:"vad"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Transcript TranscriptConfig `yaml:"transcript"`
}

// ServerConfig holds logging and metrics settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address the Prometheus /metrics endpoint
	// listens on (e.g., ":9090"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// AudioConfig describes the PCM format the pipeline runs on.
type AudioConfig struct {
	// SampleRate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameWidthMs is the fixed frame duration in milliseconds. Default: 20.
	FrameWidthMs int `yaml:"frame_width_ms"`
}

// FrameWidth returns the frame duration.
func (a AudioConfig) FrameWidth() time.Duration {
	return time.Duration(a.FrameWidthMs) * time.Millisecond
}

// BackendConfig identifies the streaming recognition gateway.
type BackendConfig struct {
	// Endpoint is the ws:// or wss:// streaming URL.
	Endpoint string `yaml:"endpoint"`

	// APIKey authenticates against the gateway.
	APIKey string `yaml:"api_key"`

	// Model is the recognition model requested from the gateway.
	Model string `yaml:"model"`

	// Language is the BCP-47 recognition language (e.g., "en-US").
	Language string `yaml:"language"`

	// MaxStreamSeconds is the provider's limit on a single open stream.
	// Streams are torn down and reopened before this limit. Default: 50.
	MaxStreamSeconds int `yaml:"max_stream_seconds"`

	// LockTimeoutSeconds bounds lock acquisition in session transitions.
	// Default: 3.
	LockTimeoutSeconds int `yaml:"lock_timeout_seconds"`
}

// MaxStreamDuration returns the single-stream duration limit.
func (b BackendConfig) MaxStreamDuration() time.Duration {
	return time.Duration(b.MaxStreamSeconds) * time.Second
}

// LockTimeout returns the bounded-wait lock timeout.
func (b BackendConfig) LockTimeout() time.Duration {
	return time.Duration(b.LockTimeoutSeconds) * time.Second
}

// WakewordConfig configures the wakeword stage.
type WakewordConfig struct {
	// Phrases is the candidate wake-phrase set.
	Phrases []string `yaml:"phrases"`

	// PhoneticThreshold is the minimum similarity for a phonetic match.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`

	// FuzzyThreshold is the minimum similarity for a non-phonetic match.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}

// RecognizerConfig configures the speech-recognizer stage.
type RecognizerConfig struct {
	// SilenceTimeoutSeconds is the deadline for a result after activation.
	// Default: 8.
	SilenceTimeoutSeconds int `yaml:"silence_timeout_seconds"`
}

// SilenceTimeout returns the activation-window silence deadline.
func (r RecognizerConfig) SilenceTimeout() time.Duration {
	return time.Duration(r.SilenceTimeoutSeconds) * time.Second
}

// VADConfig configures the energy voice-activity detector.
type VADConfig struct {
	// SpeechThreshold is the normalized RMS level that counts as speech.
	SpeechThreshold float64 `yaml:"speech_threshold"`

	// SilenceThreshold is the normalized RMS level that counts as silence.
	SilenceThreshold float64 `yaml:"silence_threshold"`
}

// DispatchConfig configures the listener delivery queue.
type DispatchConfig struct {
	// QueueDepth bounds the number of pending event deliveries. Default: 256.
	QueueDepth int `yaml:"queue_depth"`
}

// TranscriptConfig configures optional transcript persistence.
type TranscriptConfig struct {
	// DatabaseURL is a PostgreSQL connection string. Empty disables
	// persistence.
	DatabaseURL string `yaml:"database_url"`
}
