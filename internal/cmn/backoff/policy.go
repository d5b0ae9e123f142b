package backoff

import (
	"errors"
	"math"
	"sync"
	"time"
)

// ErrRetriesExhausted is returned when a policy refuses to schedule another attempt.
var ErrRetriesExhausted = errors.New("retries exhausted")

type (
	// Policy computes the delay before the next attempt.
	Policy interface {
		// NextInterval returns the wait before attempt number attempt+1, or an
		// error when no further attempt should be made.
		NextInterval(attempt int) (time.Duration, error)
	}

	// Retrier tracks how many attempts a Policy has been asked about.
	Retrier interface {
		Next() (time.Duration, error)
		Reset()
	}
)

const (
	defaultFactor      = 2.0
	defaultMaxInterval = 10 * time.Minute
)

// ExponentialPolicy grows the interval by Factor after each attempt, capped at MaxInterval.
type ExponentialPolicy struct {
	InitialInterval time.Duration `json:"initialInterval,omitempty"`
	Factor          float64       `json:"factor,omitempty"`
	MaxInterval     time.Duration `json:"maxInterval,omitempty"`
	// MaxRetries of 0 means unlimited.
	MaxRetries int `json:"maxRetries,omitempty"`
}

// NewExponentialPolicy returns an exponential policy doubling from initial.
func NewExponentialPolicy(initial time.Duration) *ExponentialPolicy {
	return &ExponentialPolicy{
		InitialInterval: initial,
		Factor:          defaultFactor,
		MaxInterval:     defaultMaxInterval,
	}
}

// NextInterval implements Policy.
func (p *ExponentialPolicy) NextInterval(attempt int) (time.Duration, error) {
	if p.MaxRetries > 0 && attempt >= p.MaxRetries {
		return 0, ErrRetriesExhausted
	}
	factor := p.Factor
	if factor <= 0 {
		factor = defaultFactor
	}
	interval := float64(p.InitialInterval) * math.Pow(factor, float64(attempt))
	if p.MaxInterval > 0 && interval > float64(p.MaxInterval) {
		interval = float64(p.MaxInterval)
	}
	return time.Duration(interval), nil
}

// ConstantPolicy waits the same Interval between attempts.
type ConstantPolicy struct {
	Interval time.Duration `json:"interval,omitempty"`
	// MaxRetries of 0 means unlimited.
	MaxRetries int `json:"maxRetries,omitempty"`
}

// NewConstantPolicy returns a policy that always waits interval.
func NewConstantPolicy(interval time.Duration) *ConstantPolicy {
	return &ConstantPolicy{Interval: interval}
}

// NextInterval implements Policy.
func (p *ConstantPolicy) NextInterval(attempt int) (time.Duration, error) {
	if p.MaxRetries > 0 && attempt >= p.MaxRetries {
		return 0, ErrRetriesExhausted
	}
	return p.Interval, nil
}

// PollPolicy is the policy used for status polling. With maxInterval greater
// than interval the wait doubles on every empty poll up to maxInterval,
// otherwise it stays at interval.
func PollPolicy(interval, maxInterval time.Duration) Policy {
	if maxInterval <= interval {
		return NewConstantPolicy(interval)
	}
	p := NewExponentialPolicy(interval)
	p.MaxInterval = maxInterval
	return p
}

// NewRetrier creates a Retrier for policy.
func NewRetrier(policy Policy) Retrier {
	return &retrier{policy: policy}
}

type retrier struct {
	mu      sync.Mutex
	policy  Policy
	attempt int
}

func (r *retrier) Next() (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	interval, err := r.policy.NextInterval(r.attempt)
	if err != nil {
		return 0, err
	}
	r.attempt++
	return interval, nil
}

func (r *retrier) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempt = 0
}
