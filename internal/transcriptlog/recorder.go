package transcriptlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/auricle-dev/auricle/pkg/pipeline"
)

// writeTimeout bounds a single append so a slow database cannot back up the
// listener delivery queue indefinitely.
const writeTimeout = 5 * time.Second

// Recorder is a [pipeline.Listener] that appends every final recognition to a
// [Store]. Listener callbacks already run on the dispatch executor, so writes
// happen off the audio path; failures are logged and dropped rather than
// propagated.
type Recorder struct {
	store *Store
	runID string
	log   *slog.Logger
}

var _ pipeline.Listener = (*Recorder)(nil)

// NewRecorder creates a Recorder writing to store under a fresh random run ID.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		store: store,
		runID: uuid.NewString(),
		log:   logger.With("component", "transcriptlog"),
	}
	return r
}

// RunID returns the identifier rows written by this Recorder carry.
func (r *Recorder) RunID() string { return r.runID }

func (r *Recorder) OnRecognized(s pipeline.Snapshot) {
	r.append(Entry{
		RunID:      r.runID,
		Text:       s.Transcript,
		Confidence: s.Confidence,
	})
}

func (r *Recorder) append(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.Append(ctx, e); err != nil {
		r.log.Error("transcript append failed", "error", err)
	}
}

func (r *Recorder) OnInitialized()                        {}
func (r *Recorder) OnStarted()                            {}
func (r *Recorder) OnStopped()                            {}
func (r *Recorder) OnActivated()                          {}
func (r *Recorder) OnDeactivated()                        {}
func (r *Recorder) OnPartialRecognized(pipeline.Snapshot) {}
func (r *Recorder) OnTimedOut()                           {}
func (r *Recorder) OnTraced(string)                       {}
func (r *Recorder) OnErrored(error)                       {}
