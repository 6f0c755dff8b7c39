package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// manualClock is a settable time source for driving the estimator.
type manualClock struct {
	t time.Time
}

func (c *manualClock) now() time.Time { return c.t }

func (c *manualClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEstimator(nominal time.Duration, opts ...Option) (*Estimator, *manualClock) {
	clock := &manualClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	opts = append(opts, WithClock(clock.now))
	return NewEstimator(clock.t, nominal, opts...), clock
}

func TestEstimator_TimePhase(t *testing.T) {
	e, clock := newTestEstimator(10 * time.Minute)

	assert.Equal(t, 0, e.Current())

	clock.advance(5 * time.Minute)
	assert.Equal(t, 47, e.Current(), "halfway through nominal gives ~half the cap")

	clock.advance(4 * time.Minute)
	assert.Equal(t, 85, e.Current())
}

func TestEstimator_CapsBeforeNominalElapses(t *testing.T) {
	e, clock := newTestEstimator(10 * time.Minute)

	// Even far past nominal, the time phase alone never exceeds the cap.
	clock.advance(3 * time.Hour)
	assert.Equal(t, DefaultTimeCap, e.Current())
	assert.Equal(t, DefaultTimeCap, e.Current(), "holds at cap on repeat")
}

func TestEstimator_Monotonic(t *testing.T) {
	e, clock := newTestEstimator(10 * time.Minute)

	clock.advance(8 * time.Minute)
	first := e.Current()

	// Clock regression (e.g. NTP step) must not lower the shown value.
	clock.advance(-4 * time.Minute)
	assert.GreaterOrEqual(t, e.Current(), first)
}

func TestEstimator_ConfirmationPhase(t *testing.T) {
	e, clock := newTestEstimator(10 * time.Minute)

	// Before nominal elapses, poll ticks add nothing.
	clock.advance(time.Minute)
	before := e.Current()
	assert.Equal(t, before, e.PollTick())

	// After nominal, each poll tick adds one point, up to 99.
	clock.advance(10 * time.Minute)
	assert.Equal(t, DefaultTimeCap, e.Current())
	for i := 1; i <= 3; i++ {
		assert.Equal(t, DefaultTimeCap+i, e.PollTick())
	}
	for i := 0; i < 20; i++ {
		e.PollTick()
	}
	assert.Equal(t, 99, e.Last(), "poll increments stop at 99")
}

func TestEstimator_ServerFloorRatchet(t *testing.T) {
	e, clock := newTestEstimator(10 * time.Minute)

	clock.advance(time.Minute)
	assert.Equal(t, 9, e.Current())

	// Provider reports a milestone further along than local extrapolation.
	e.ObserveFloor(60)
	assert.Equal(t, 60, e.Current())

	// The floor holds even though the clock barely moved.
	clock.advance(time.Second)
	assert.Equal(t, 60, e.Current())

	// A lower provider value never pulls the estimate back down.
	e.ObserveFloor(30)
	assert.Equal(t, 60, e.Current())
}

func TestEstimator_FloorClampedBelowHundred(t *testing.T) {
	e, _ := newTestEstimator(10 * time.Minute)

	e.ObserveFloor(100)
	assert.Equal(t, 99, e.Current(), "only confirmed ready may yield 100")
}

func TestEstimator_Freeze(t *testing.T) {
	e, clock := newTestEstimator(10 * time.Minute)

	clock.advance(3 * time.Minute)
	frozen := e.Current()
	e.Freeze()

	clock.advance(time.Hour)
	assert.Equal(t, frozen, e.Current())
	assert.Equal(t, frozen, e.PollTick())
}

func TestEstimator_CustomCap(t *testing.T) {
	e, clock := newTestEstimator(time.Minute, WithTimeCap(80))
	clock.advance(time.Hour)
	assert.Equal(t, 80, e.Current())
}
