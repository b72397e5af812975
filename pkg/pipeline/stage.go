package pipeline

import (
	"context"

	"github.com/auricle-dev/auricle/pkg/audio"
)

// Stage is one unit in the ordered processing chain: a voice-activity
// detector, a wakeword detector, a speech recognizer, or an explicit
// activation trigger. The orchestrator only knows this contract, never
// concrete stage types.
//
// Implementations must be safe for concurrent use: StartStreaming,
// StopStreaming, and Process may be called from different goroutines.
type Stage interface {
	// Name identifies the stage in logs and timeout errors.
	Name() string

	// StartStreaming allocates per-session resources and begins accepting
	// frames. It must be idempotent: calling it repeatedly while already
	// started leaks no resources and opens no duplicate session.
	StartStreaming(ctx context.Context) error

	// StopStreaming releases every resource acquired since the matching
	// StartStreaming. It must be safe to call when not started (no-op).
	StopStreaming() error

	// Process receives one fixed-size audio frame. Side effects are
	// stage-specific and may mutate the SharedContext. Process must not
	// block the calling path for longer than one frame period under normal
	// operation; long-running work belongs in the stage's
	// [Session] machinery, not inline.
	Process(frame audio.Frame) error
}
