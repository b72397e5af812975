package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/auricle-dev/auricle/pkg/asr"
	"github.com/auricle-dev/auricle/pkg/pipeline"
)

// PipelineListener bridges pipeline events into metric instruments. Register
// it on the pipeline like any other listener; it never blocks the delivery
// queue beyond an instrument update.
type PipelineListener struct {
	m *Metrics

	mu          sync.Mutex
	activatedAt time.Time
}

var _ pipeline.Listener = (*PipelineListener)(nil)

// NewPipelineListener creates a listener recording into m. Pass
// [DefaultMetrics] for the global instruments.
func NewPipelineListener(m *Metrics) *PipelineListener {
	return &PipelineListener{m: m}
}

func (p *PipelineListener) OnInitialized() {
	p.m.RecordEvent(context.Background(), pipeline.EventInitialized)
}
func (p *PipelineListener) OnStarted() { p.m.RecordEvent(context.Background(), pipeline.EventStarted) }
func (p *PipelineListener) OnStopped() { p.m.RecordEvent(context.Background(), pipeline.EventStopped) }

func (p *PipelineListener) OnActivated() {
	ctx := context.Background()
	p.m.RecordEvent(ctx, pipeline.EventActivated)
	p.m.Activations.Add(ctx, 1)
	p.mu.Lock()
	p.activatedAt = time.Now()
	p.mu.Unlock()
}

func (p *PipelineListener) OnDeactivated() {
	ctx := context.Background()
	p.m.RecordEvent(ctx, pipeline.EventDeactivated)
	p.mu.Lock()
	opened := p.activatedAt
	p.activatedAt = time.Time{}
	p.mu.Unlock()
	if !opened.IsZero() {
		p.m.ActivationWindow.Record(ctx, time.Since(opened).Seconds())
	}
}

func (p *PipelineListener) OnRecognized(pipeline.Snapshot) {
	p.m.RecordEvent(context.Background(), pipeline.EventRecognized)
}

func (p *PipelineListener) OnPartialRecognized(pipeline.Snapshot) {
	p.m.RecordEvent(context.Background(), pipeline.EventPartialRecognized)
}

func (p *PipelineListener) OnTimedOut() {
	p.m.RecordEvent(context.Background(), pipeline.EventTimedOut)
}
func (p *PipelineListener) OnTraced(string) {
	p.m.RecordEvent(context.Background(), pipeline.EventTraced)
}
func (p *PipelineListener) OnErrored(err error) {
	ctx := context.Background()
	p.m.RecordEvent(ctx, pipeline.EventErrored)
	p.m.BackendErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("retryable", asr.IsRetryable(err)),
	))
}
