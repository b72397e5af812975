// Package audio defines the types and interfaces for audio capture and frame
// transport within Auricle.
//
// The central abstraction is [Source] — anything that can produce a stream of
// fixed-width PCM [Frame] values: a microphone tap, a WAV file played back in
// real time, or a test double. The pipeline orchestrator calls Start and Stop
// on its Source symmetrically with its own lifecycle and pumps Frames to every
// stage in chain order.
//
// This package lives under pkg/ because external code (host applications with
// their own capture layers) is expected to implement [Source].
package audio

import "context"

// Source produces the frame stream the pipeline consumes.
//
// Implementations must be safe for concurrent use. The Frames channel is
// created by Start and closed when the source stops — either by an explicit
// Stop call, by cancellation of the Start context, or because the underlying
// input is exhausted (end of file).
type Source interface {
	// Start begins capture. The supplied ctx bounds the capture lifetime:
	// when it is cancelled the source shuts down as if Stop had been called.
	// Calling Start while already started is a no-op and returns nil.
	Start(ctx context.Context) error

	// Frames returns the channel on which captured frames are delivered.
	// The channel is closed when the source stops. Before the first Start
	// call the returned channel is nil.
	Frames() <-chan Frame

	// Stop halts capture and closes the Frames channel. Safe to call when
	// not started (no-op) and safe to call more than once.
	Stop() error
}
