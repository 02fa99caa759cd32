package rest

import (
	"sync"
	"time"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig controls the per-host circuit breaker. Zero values use defaults.
type BreakerConfig struct {
	Threshold int           // consecutive failures before opening (default: 5)
	Cooldown  time.Duration // time open before a probe is let through (default: 30s)
}

// breaker tracks consecutive server-side failures of one host.
type breaker struct {
	mu          sync.Mutex
	state       breakerState
	failures    int
	lastFailure time.Time
	cfg         BreakerConfig
	now         func() time.Time
}

func newBreaker(cfg BreakerConfig, now func() time.Time) *breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &breaker{cfg: cfg, now: now}
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateOpen {
		if b.now().Sub(b.lastFailure) <= b.cfg.Cooldown {
			return false
		}
		b.state = stateHalfOpen
	}
	return true
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = stateClosed
}

// failure reports whether this failure opened the circuit.
func (b *breaker) failure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()
	if b.state == stateHalfOpen || (b.state == stateClosed && b.failures >= b.cfg.Threshold) {
		b.state = stateOpen
		return true
	}
	return false
}

func (b *breaker) current() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// breakers hands out one breaker per host, created on first use.
type breakers struct {
	mu    sync.Mutex
	hosts map[string]*breaker
	cfg   BreakerConfig
	now   func() time.Time
}

func (r *breakers) get(host string) *breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hosts == nil {
		r.hosts = make(map[string]*breaker)
	}
	b, ok := r.hosts[host]
	if !ok {
		b = newBreaker(r.cfg, r.now)
		r.hosts[host] = b
	}
	return b
}
