package service

import (
	"context"
	"sync"
	"time"

	"github.com/liveboard-app/liveboard-api/internal/observability"
)

// DefaultStreamTimeout bounds how long a live reader blocks before it is
// released to emit a heartbeat.
const DefaultStreamTimeout = 15 * time.Second

// LiveNotifier is the process-wide "a new message exists" signal. Producers
// bump a version counter after each accepted post; readers block until the
// counter moves past the version they last saw.
//
// One instance is constructed by the composition root and injected wherever
// needed; tests build their own isolated instances.
type LiveNotifier struct {
	mu      sync.Mutex
	version uint64
	changed chan struct{}
}

// NewLiveNotifier constructs a notifier with version 0 and no waiters.
func NewLiveNotifier() *LiveNotifier {
	return &LiveNotifier{changed: make(chan struct{})}
}

// Version returns the current counter value.
func (n *LiveNotifier) Version() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.version
}

// Notify increments the version by exactly 1 and wakes every blocked waiter.
// Closing the generation channel is the broadcast; a fresh channel is swapped
// in for the next generation under the same lock, so no waiter can observe a
// torn update.
func (n *LiveNotifier) Notify() {
	n.mu.Lock()
	n.version++
	close(n.changed)
	n.changed = make(chan struct{})
	version := n.version
	n.mu.Unlock()

	observability.NotifierVersion().Set(float64(version))
}

// Wait blocks until the version differs from lastSeen, the timeout elapses,
// or ctx is cancelled (a disconnecting reader simply abandons its wait; no
// Notify is needed to release it). It returns the current version and whether
// the wait ended by timeout.
//
// The comparison is plain inequality: a counter that somehow wrapped would
// still read as "changed".
func (n *LiveNotifier) Wait(ctx context.Context, lastSeen uint64, timeout time.Duration) (uint64, bool) {
	if timeout <= 0 {
		timeout = DefaultStreamTimeout
	}

	n.mu.Lock()
	if n.version != lastSeen {
		version := n.version
		n.mu.Unlock()
		return version, false
	}
	generation := n.changed
	n.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-generation:
		return n.Version(), false
	case <-timer.C:
		// A bump may have raced the timer; report it as a change.
		version := n.Version()
		return version, version == lastSeen
	case <-ctx.Done():
		return n.Version(), false
	}
}
