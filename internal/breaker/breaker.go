// Package breaker bounds calls to upstream collaborators (database,
// geocoder) with a timeout and a circuit breaker, so a slow or failing
// upstream degrades into fast, classified failures instead of hung requests.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"hearthside/storefront/internal/metrics"

	"github.com/rs/zerolog/log"
)

// ErrOpen marks a call rejected because the circuit is open. Callers treat
// it as retryable: the client may try again after the cooldown.
var ErrOpen = errors.New("upstream circuit open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type Config struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes in half-open
	// before closing.
	SuccessThreshold int
	// Cooldown is how long to wait in open state before probing.
	Cooldown time.Duration
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
	}
}

type Breaker struct {
	name string
	cfg  Config

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	probes    int
	lastFail  time.Time
	nowFunc   func() time.Time
}

func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	b := &Breaker{
		name:    name,
		cfg:     cfg,
		state:   StateClosed,
		nowFunc: time.Now,
	}
	metrics.BreakerState.WithLabelValues(name).Set(float64(StateClosed))
	return b
}

// Do runs fn under the breaker with the given per-call timeout. A rejected
// call returns ErrOpen without invoking fn; fn's own error (including
// context.DeadlineExceeded) is returned as-is and counted as a failure.
func (b *Breaker) Do(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if !b.allow() {
		return ErrOpen
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := fn(ctx); err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.nowFunc().Sub(b.lastFail) >= b.cfg.Cooldown {
			b.transition(StateHalfOpen)
			b.probes = 1
			return true
		}
		return false
	case StateHalfOpen:
		// Cap concurrent probes so a recovering upstream is not stampeded.
		if b.probes >= b.cfg.SuccessThreshold {
			return false
		}
		b.probes++
		return true
	}
	return false
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
			log.Info().Str("upstream", b.name).Msg("circuit breaker recovered")
		}
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFail = b.nowFunc()
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
			metrics.BreakerOpens.WithLabelValues(b.name).Inc()
			log.Error().
				Str("upstream", b.name).
				Int("failures", b.failures).
				Msg("circuit breaker opened")
		}
	case StateHalfOpen:
		// Any failure during probing reopens immediately.
		b.transition(StateOpen)
		metrics.BreakerOpens.WithLabelValues(b.name).Inc()
		log.Warn().Str("upstream", b.name).Msg("circuit breaker reopened after half-open failure")
	}
}

// transition changes state; caller must hold mu.
func (b *Breaker) transition(next State) {
	b.state = next
	b.failures = 0
	b.successes = 0
	b.probes = 0
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(next))
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
