// Package speechwire provides an [asr.Provider] that speaks the Speechwire
// streaming WebSocket protocol, a simple JSON-over-WebSocket recognition
// gateway protocol used by self-hosted ASR deployments.
//
// Audio is sent as binary frames; results and errors arrive as JSON text
// messages. A {"type":"close"} message flushes pending audio before the
// socket is torn down.
package speechwire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/auricle-dev/auricle/pkg/asr"
)

const (
	defaultModel      = "general"
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the recognition model requested from the gateway.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithSampleRate sets the provider-level default sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// Provider implements [asr.Provider] against a Speechwire gateway.
type Provider struct {
	endpoint   string
	apiKey     string
	model      string
	language   string
	sampleRate int
}

var _ asr.Provider = (*Provider)(nil)

// New creates a Provider for the gateway at endpoint (a ws:// or wss:// URL).
// endpoint and apiKey must be non-empty.
func New(endpoint, apiKey string, opts ...Option) (*Provider, error) {
	if endpoint == "" {
		return nil, errors.New("speechwire: endpoint must not be empty")
	}
	if apiKey == "" {
		return nil, errors.New("speechwire: apiKey must not be empty")
	}
	p := &Provider{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// OpenStream dials the gateway and returns a live recognition stream.
func (p *Provider) OpenStream(ctx context.Context, cfg asr.StreamConfig) (asr.StreamHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("speechwire: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, &asr.Error{Code: "dial", Retryable: true, Err: err}
	}

	st := &stream{
		conn:     conn,
		partials: make(chan asr.Transcript, 64),
		finals:   make(chan asr.Transcript, 64),
		errs:     make(chan error, 1),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
	}

	st.wg.Add(2)
	go st.readLoop(ctx)
	go st.writeLoop(ctx)

	return st, nil
}

// buildURL constructs the streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg asr.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("interim", "true")
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	for _, phrase := range cfg.Phrases {
		q.Add("phrase", phrase)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- stream ----

// wireMessage is the JSON structure the gateway sends for result and error
// events.
type wireMessage struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	IsFinal    bool    `json:"is_final"`
	StartMs    int64   `json:"start_ms"`
	DurationMs int64   `json:"duration_ms"`

	// Error fields, present when Type == "error".
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// stream is one live Speechwire recognition stream. It implements
// [asr.StreamHandle].
type stream struct {
	conn     *websocket.Conn
	partials chan asr.Transcript
	finals   chan asr.Transcript
	errs     chan error
	audio    chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

var _ asr.StreamHandle = (*stream)(nil)

// SendAudio queues a PCM audio chunk for delivery to the gateway.
func (s *stream) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("speechwire: stream is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("speechwire: stream is closed")
	}
}

// Partials returns the channel of interim transcripts.
func (s *stream) Partials() <-chan asr.Transcript { return s.partials }

// Finals returns the channel of final transcripts.
func (s *stream) Finals() <-chan asr.Transcript { return s.finals }

// Errs returns the channel of backend errors.
func (s *stream) Errs() <-chan error { return s.errs }

// Close terminates the stream cleanly.
func (s *stream) Close() error {
	s.once.Do(func() {
		close(s.done)
		// Ask the gateway to flush pending audio before closing the socket.
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"close"}`))
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "stream closed")
	})
	return nil
}

// writeLoop reads from the audio channel and sends binary messages to the
// gateway.
func (s *stream) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			// Drain queued audio before exiting so the flush is complete.
			for {
				select {
				case chunk, ok := <-s.audio:
					if !ok {
						return
					}
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// readLoop receives JSON messages from the gateway and dispatches them to the
// result channels.
func (s *stream) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)
	defer close(s.errs)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			s.deliverReadErr(err)
			return
		}

		t, werr, ok := parseWireMessage(msg)
		if !ok {
			continue
		}
		if werr != nil {
			select {
			case s.errs <- werr:
			case <-s.done:
			}
			continue
		}

		if t.IsFinal {
			select {
			case s.finals <- t:
			case <-s.done:
			}
		} else {
			select {
			case s.partials <- t:
			case <-s.done:
			}
		}
	}
}

// deliverReadErr classifies a socket read failure and forwards it unless the
// stream was closed deliberately.
func (s *stream) deliverReadErr(err error) {
	select {
	case <-s.done:
		// Close in progress; the read error is expected.
		return
	default:
	}

	// Abnormal closures and timeouts are transient: a fresh stream clears them.
	retryable := true
	if status := websocket.CloseStatus(err); status == websocket.StatusPolicyViolation ||
		status == websocket.StatusUnsupportedData {
		retryable = false
	}
	select {
	case s.errs <- &asr.Error{Code: "read", Retryable: retryable, Err: err}:
	case <-s.done:
	}
}

// parseWireMessage parses a raw gateway message. It returns a transcript, an
// error event, or ok=false if the message should be ignored.
func parseWireMessage(data []byte) (asr.Transcript, error, bool) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return asr.Transcript{}, nil, false
	}

	switch msg.Type {
	case "transcript":
		return asr.Transcript{
			Text:       msg.Text,
			IsFinal:    msg.IsFinal,
			Confidence: msg.Confidence,
			Timestamp:  time.Duration(msg.StartMs) * time.Millisecond,
			Duration:   time.Duration(msg.DurationMs) * time.Millisecond,
		}, nil, true
	case "error":
		return asr.Transcript{}, &asr.Error{
			Code:      msg.Code,
			Retryable: msg.Retryable,
			Err:       errors.New(msg.Message),
		}, true
	default:
		return asr.Transcript{}, nil, false
	}
}
