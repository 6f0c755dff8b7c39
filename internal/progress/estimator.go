// Package progress computes a bounded, monotonic completion percentage for a
// provisioning request.
//
// The estimate blends wall-clock extrapolation against a nominal duration
// with provider-confirmed milestones. It never claims completion on its own:
// the time-based phase is capped strictly below 100, and only a confirmed
// ready state (applied by the caller, outside this package) yields 100.
package progress

import (
	"sync"
	"time"
)

// DefaultTimeCap is the highest percentage the time-based phase may report.
const DefaultTimeCap = 95

// confirmationCeiling is the highest percentage poll-driven increments may
// reach without provider confirmation.
const confirmationCeiling = 99

// Estimator produces a monotonic progress estimate for one request.
// It is safe for concurrent use by the progress ticker and the poll path.
type Estimator struct {
	mu        sync.Mutex
	startedAt time.Time
	nominal   time.Duration
	timeCap   int
	floor     int
	last      int
	frozen    bool
	now       func() time.Time
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithTimeCap overrides the time-phase cap. Values outside (0,100) are ignored.
func WithTimeCap(pct int) Option {
	return func(e *Estimator) {
		if pct > 0 && pct < 100 {
			e.timeCap = pct
		}
	}
}

// WithClock overrides the time source (useful for testing).
func WithClock(now func() time.Time) Option {
	return func(e *Estimator) {
		e.now = now
	}
}

// NewEstimator creates an estimator for a request started at startedAt with
// the given nominal provisioning duration.
func NewEstimator(startedAt time.Time, nominal time.Duration, opts ...Option) *Estimator {
	e := &Estimator{
		startedAt: startedAt,
		nominal:   nominal,
		timeCap:   DefaultTimeCap,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Current recomputes the time-based estimate and returns the value to show.
// The result never decreases across calls and never exceeds the time cap
// unless a provider-confirmed floor already pushed it higher.
func (e *Estimator) Current() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.frozen {
		return e.last
	}

	elapsed := e.now().Sub(e.startedAt)
	pct := 0
	if e.nominal > 0 {
		pct = int(float64(elapsed) / float64(e.nominal) * float64(e.timeCap))
	}
	if pct > e.timeCap {
		pct = e.timeCap
	}
	if pct < 0 {
		pct = 0
	}
	return e.publishLocked(pct)
}

// PollTick advances the confirmation phase: once the nominal duration has
// elapsed without the provider confirming readiness, each poll bumps the
// estimate by one point, up to 99.
func (e *Estimator) PollTick() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.frozen {
		return e.last
	}
	if e.now().Sub(e.startedAt) >= e.nominal && e.last < confirmationCeiling {
		return e.publishLocked(e.last + 1)
	}
	return e.publishLocked(e.last)
}

// ObserveFloor ratchets in a provider-implied milestone: once the provider
// reports progress, later estimates must not fall below it.
func (e *Estimator) ObserveFloor(pct int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if pct > confirmationCeiling {
		pct = confirmationCeiling
	}
	if pct > e.floor {
		e.floor = pct
	}
}

// Freeze pins the estimate at its current value. Used on cancellation so the
// shown progress stops moving while teardown runs.
func (e *Estimator) Freeze() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frozen = true
}

// Last returns the most recently published value without recomputing.
func (e *Estimator) Last() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// publishLocked applies the floor and monotonicity constraints and records
// the published value.
func (e *Estimator) publishLocked(pct int) int {
	if pct < e.floor {
		pct = e.floor
	}
	if pct < e.last {
		pct = e.last
	}
	e.last = pct
	return pct
}
