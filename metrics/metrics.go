// Package metrics adapts the connection engine's counters to an
// injectable Recorder interface, grounded on the teacher's own
// extra/redisprometheus module: the engine depends only on this
// interface, and Prometheus (below) is one concrete binding.
package metrics

import "time"

// Recorder observes engine-level events. Every method must be safe
// for concurrent use and must not block, since the engine's own
// goroutines call it inline.
type Recorder interface {
	CommandsSubmitted(n int)
	CommandsCompleted(n int)
	PendingDepth(n int)
	PushesReceived(n int)
	ReconnectAttempted()
	RoundTrip(d time.Duration)
}

// Noop discards every observation; it is the Recorder used when none
// is configured.
type Noop struct{}

func (Noop) CommandsSubmitted(int)   {}
func (Noop) CommandsCompleted(int)   {}
func (Noop) PendingDepth(int)        {}
func (Noop) PushesReceived(int)      {}
func (Noop) ReconnectAttempted()     {}
func (Noop) RoundTrip(time.Duration) {}

var _ Recorder = Noop{}
