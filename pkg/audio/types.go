package audio

import "time"

// Frame represents a single fixed-duration slice of PCM audio flowing through
// the pipeline. Frames are the atomic unit of streaming delivery — captured by
// a [Source], fanned out to every active stage, and forwarded to recognition
// backends.
type Frame struct {
	// Data is raw little-endian PCM. Sample width is 16-bit signed.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for speech recognition input).
	SampleRate int

	// Channels: 1 for mono (the pipeline default), 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the wall-clock length of the frame, derived from the
// payload size and format. Returns 0 for a malformed frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 || len(f.Data) == 0 {
		return 0
	}
	samples := len(f.Data) / (2 * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
