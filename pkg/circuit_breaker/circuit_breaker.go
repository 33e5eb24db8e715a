// Package circuit_breaker implements a closed/open/half-open breaker, used
// by internal/registry to stop retrying a plugin library after repeated
// load failures. Breaker state lives as long as the owning Registry, and
// internal/mainloop.Build creates a new Registry on every build attempt, so
// failures are not carried from one rebuild to the next.
package circuit_breaker

import (
	"sync"
	"time"

	"github.com/inivation/caer-mainloop/pkg/types"
)

const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

// Config tunes the breaker's trip and recovery thresholds.
type Config struct {
	MaxFailures  int64
	ResetTimeout time.Duration
}

type breaker struct {
	config Config

	mu            sync.RWMutex
	state         string
	failures      int64
	nextRetryTime time.Time
}

// New creates a breaker that starts closed.
func New(config Config) types.CircuitBreaker {
	if config.MaxFailures == 0 {
		config.MaxFailures = 3
	}
	if config.ResetTimeout == 0 {
		config.ResetTimeout = 30 * time.Second
	}
	return &breaker{config: config, state: StateClosed}
}

// Allow reports whether a call should be attempted. An open breaker past
// its retry deadline transitions to half-open and allows exactly one probe
// through.
func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if time.Now().Before(b.nextRetryTime) {
			return false
		}
		b.state = StateHalfOpen
	}
	return true
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
}

// RecordFailure counts a failure and trips the breaker open once the
// configured threshold is reached.
func (b *breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.config.MaxFailures {
		b.state = StateOpen
		b.nextRetryTime = time.Now().Add(b.config.ResetTimeout)
	}
}

// State returns the breaker's current state name.
func (b *breaker) State() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}
