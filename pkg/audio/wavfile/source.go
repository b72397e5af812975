// Package wavfile provides an [audio.Source] backed by a WAV file on disk.
//
// The file is decoded up front and replayed as fixed-width PCM frames paced
// at the real frame period, so the pipeline observes the same timing it would
// from a live microphone. This is the source used by the demo binary and by
// end-to-end tests.
package wavfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"

	"github.com/auricle-dev/auricle/pkg/audio"
)

// Config describes how the WAV payload is sliced into frames.
type Config struct {
	// FrameWidth is the duration of each emitted frame. Must be > 0.
	FrameWidth time.Duration

	// Realtime paces frame delivery at FrameWidth intervals when true.
	// When false frames are emitted as fast as the consumer accepts them,
	// which is what tests want.
	Realtime bool
}

// Source replays a decoded WAV file as a stream of [audio.Frame] values.
// It implements [audio.Source].
type Source struct {
	cfg        Config
	pcm        []byte // mono 16-bit little-endian
	sampleRate int

	mu      sync.Mutex
	frames  chan audio.Frame
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

var _ audio.Source = (*Source)(nil)

// Open reads and decodes the WAV file at path. Stereo input is downmixed to
// mono; only 16-bit PCM is supported.
func Open(path string, cfg Config) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wavfile: %w", err)
	}
	defer f.Close()
	return decode(f, cfg)
}

// FromReader decodes WAV data from r. Useful for tests and embedded fixtures.
func FromReader(r io.ReadSeeker, cfg Config) (*Source, error) {
	return decode(r, cfg)
}

func decode(r io.ReadSeeker, cfg Config) (*Source, error) {
	if cfg.FrameWidth <= 0 {
		return nil, errors.New("wavfile: FrameWidth must be positive")
	}

	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("wavfile: not a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("wavfile: decode: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, errors.New("wavfile: empty PCM payload")
	}

	channels := 1
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	sr := int(dec.SampleRate)
	if sr == 0 && buf.Format != nil {
		sr = buf.Format.SampleRate
	}
	if sr <= 0 {
		return nil, errors.New("wavfile: missing sample rate")
	}

	// Downmix to mono and re-encode as 16-bit little-endian.
	samples := len(buf.Data) / channels
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		acc := 0
		for c := 0; c < channels; c++ {
			acc += buf.Data[i*channels+c]
		}
		v := int16(acc / channels)
		pcm[2*i] = byte(v)
		pcm[2*i+1] = byte(v >> 8)
	}

	return &Source{cfg: cfg, pcm: pcm, sampleRate: sr}, nil
}

// SampleRate reports the decoded file's sample rate in Hz.
func (s *Source) SampleRate() int { return s.sampleRate }

// Start implements [audio.Source]. It spawns the replay goroutine.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.frames = make(chan audio.Frame, 16)
	s.done = make(chan struct{})
	s.started = true
	go s.replay(ctx, s.frames, s.done)
	return nil
}

// Frames implements [audio.Source].
func (s *Source) Frames() <-chan audio.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Stop implements [audio.Source]. It cancels the replay goroutine and waits
// for the Frames channel to close.
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	return nil
}

func (s *Source) replay(ctx context.Context, out chan<- audio.Frame, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	bytesPerFrame := int(s.cfg.FrameWidth.Seconds()*float64(s.sampleRate)) * 2
	if bytesPerFrame <= 0 {
		return
	}

	var ticker *time.Ticker
	if s.cfg.Realtime {
		ticker = time.NewTicker(s.cfg.FrameWidth)
		defer ticker.Stop()
	}

	elapsed := time.Duration(0)
	for off := 0; off < len(s.pcm); off += bytesPerFrame {
		end := off + bytesPerFrame
		if end > len(s.pcm) {
			end = len(s.pcm) // final short frame
		}
		frame := audio.Frame{
			Data:       s.pcm[off:end],
			SampleRate: s.sampleRate,
			Channels:   1,
			Timestamp:  elapsed,
		}
		elapsed += s.cfg.FrameWidth

		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- frame:
		case <-ctx.Done():
			return
		}
	}
}
