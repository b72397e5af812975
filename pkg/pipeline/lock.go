package pipeline

import "time"

// DefaultLockTimeout is the wait bound applied to mutual-exclusion domains
// when a configuration does not specify one. A stuck backend or a stalled
// timer must never freeze audio delivery for longer than this.
const DefaultLockTimeout = 3 * time.Second

// TimedMutex is a mutual-exclusion lock whose acquisition is always bounded
// by a timeout. A wait that exceeds its bound fails with
// [*ResourceTimeoutError] and leaves the lock untouched, so callers degrade
// to a skipped cycle instead of blocking indefinitely.
//
// The zero value is not usable; construct with [NewTimedMutex].
type TimedMutex struct {
	name string
	ch   chan struct{}
}

// NewTimedMutex creates an unlocked mutex. The name identifies the
// mutual-exclusion domain in timeout errors and logs.
func NewTimedMutex(name string) *TimedMutex {
	return &TimedMutex{name: name, ch: make(chan struct{}, 1)}
}

// Acquire blocks until the lock is held or timeout elapses. A non-positive
// timeout falls back to [DefaultLockTimeout].
func (m *TimedMutex) Acquire(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	select {
	case m.ch <- struct{}{}:
		return nil
	default:
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case m.ch <- struct{}{}:
		return nil
	case <-t.C:
		return &ResourceTimeoutError{Resource: m.name, Timeout: timeout}
	}
}

// Release unlocks the mutex. Releasing an unheld mutex panics, matching the
// behaviour of sync.Mutex.
func (m *TimedMutex) Release() {
	select {
	case <-m.ch:
	default:
		panic("pipeline: release of unheld " + m.name + " lock")
	}
}

// HardwareGuard represents exclusive ownership of the audio-hardware
// resource. The orchestrator owns the guard and lends it to whichever stage
// currently needs exclusive hardware access; ownership transfer is an
// explicit Acquire/Release pair, never a process-wide singleton.
//
// HardwareGuard must always be acquired before any session lock and released
// after it, on every code path.
type HardwareGuard struct {
	mu      *TimedMutex
	timeout time.Duration
}

// NewHardwareGuard creates a guard whose acquisitions are bounded by timeout.
// A non-positive timeout falls back to [DefaultLockTimeout].
func NewHardwareGuard(timeout time.Duration) *HardwareGuard {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &HardwareGuard{mu: NewTimedMutex("hardware"), timeout: timeout}
}

// Acquire takes exclusive hardware ownership or fails with
// [*ResourceTimeoutError] after the guard's wait bound.
func (g *HardwareGuard) Acquire() error {
	return g.mu.Acquire(g.timeout)
}

// Release returns hardware ownership.
func (g *HardwareGuard) Release() {
	g.mu.Release()
}
