package pipeline

import "sync"

// Executor delivers listener callbacks off the dispatching goroutine. The
// default is a [SerialExecutor], which preserves the order Dispatch calls were
// issued; hosts with their own delivery loop (a UI thread, an actor runtime)
// can supply an implementation that bridges to it.
type Executor interface {
	// Submit enqueues job for execution. Jobs submitted from a single
	// goroutine must run in submission order.
	Submit(job func())
}

// SerialExecutor runs submitted jobs one at a time, in order, on a single
// background goroutine. It is the default delivery executor for listener
// callbacks.
type SerialExecutor struct {
	jobs chan func()
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

var _ Executor = (*SerialExecutor)(nil)

// NewSerialExecutor creates a running executor whose queue holds up to depth
// pending jobs. A depth below 1 is raised to 1.
func NewSerialExecutor(depth int) *SerialExecutor {
	if depth < 1 {
		depth = 1
	}
	e := &SerialExecutor{jobs: make(chan func(), depth)}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for job := range e.jobs {
			job()
		}
	}()
	return e
}

// Submit implements [Executor]. It blocks while the queue is full so events
// are delayed under backpressure rather than dropped. Submitting to a closed
// executor discards the job.
func (e *SerialExecutor) Submit(job func()) {
	// The lock is held across the send so Close cannot close the channel
	// between the closed check and the send.
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.jobs <- job
}

// Close drains pending jobs and stops the worker. Safe to call more than
// once. Submit calls racing Close may be discarded.
func (e *SerialExecutor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.jobs)
	e.mu.Unlock()
	e.wg.Wait()
}
