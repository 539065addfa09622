package ann

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// State tags the adapter's last known reachability.
type State string

const (
	// StateUnknown means no probe has completed yet.
	StateUnknown State = "unknown"
	// StateLive means the last probe succeeded.
	StateLive State = "live"
	// StateUnavailable means the last probe or RPC failed.
	StateUnavailable State = "unavailable"
)

// Status is the liveness verdict plus the evidence behind it.
type Status struct {
	State     State
	CheckedAt time.Time
	Err       error
}

// Live reports whether the adapter should be offered traffic.
func (s Status) Live() bool {
	return s.State == StateLive
}

// LivenessCache answers liveness questions from a cached probe result.
// Readers never block on the network; a stale entry triggers one
// background refresh while the stale verdict is returned.
type LivenessCache struct {
	probe func(context.Context) error
	ttl   time.Duration

	mu         sync.RWMutex
	status     Status
	refreshing atomic.Bool
}

func NewLivenessCache(probe func(context.Context) error, ttl time.Duration) *LivenessCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &LivenessCache{
		probe:  probe,
		ttl:    ttl,
		status: Status{State: StateUnknown},
	}
}

// Status returns the cached verdict, kicking off an async refresh when
// the entry has expired. An unknown status means the first probe has
// not finished; callers should treat that as not live.
func (c *LivenessCache) Status() Status {
	c.mu.RLock()
	st := c.status
	c.mu.RUnlock()

	if st.State == StateUnknown || time.Since(st.CheckedAt) >= c.ttl {
		c.refreshAsync()
	}
	return st
}

// Check probes synchronously and updates the cache. Used at startup
// when the caller wants a definite answer before serving.
func (c *LivenessCache) Check(ctx context.Context) Status {
	st := c.runProbe(ctx)
	c.store(st)
	return st
}

// MarkDown records an observed RPC failure immediately so routing
// stops offering traffic before the next scheduled probe.
func (c *LivenessCache) MarkDown(err error) {
	c.store(Status{State: StateUnavailable, CheckedAt: time.Now(), Err: err})
}

func (c *LivenessCache) refreshAsync() {
	if !c.refreshing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer c.refreshing.Store(false)
		c.store(c.runProbe(context.Background()))
	}()
}

func (c *LivenessCache) runProbe(ctx context.Context) Status {
	err := c.probe(ctx)
	if err != nil {
		return Status{State: StateUnavailable, CheckedAt: time.Now(), Err: err}
	}
	return Status{State: StateLive, CheckedAt: time.Now()}
}

func (c *LivenessCache) store(st Status) {
	c.mu.Lock()
	c.status = st
	c.mu.Unlock()
}
