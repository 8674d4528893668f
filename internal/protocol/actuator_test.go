package protocol

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "codeberg.org/meshalyzer/rigctl/internal/errors"
	"codeberg.org/meshalyzer/rigctl/internal/hardware"
	"codeberg.org/meshalyzer/rigctl/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingValve struct {
	mu       sync.Mutex
	state    hardware.ValveState
	neutrals int
	fail     error
}

func (v *countingValve) Supply() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.fail != nil {
		return v.fail
	}
	v.state = hardware.Supply
	return nil
}

func (v *countingValve) Vent() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = hardware.Vent
	return nil
}

func (v *countingValve) Neutral() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = hardware.Neutral
	v.neutrals++
	return nil
}

func (v *countingValve) State() hardware.ValveState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *countingValve) neutralCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.neutrals
}

// scriptedFeedback replays readings, repeating the last one, and records
// the state of valve while each reading is taken.
type scriptedFeedback struct {
	mu       sync.Mutex
	readings []float64
	calls    int
	valve    hardware.Valve
	seen     []hardware.ValveState
}

func (f *scriptedFeedback) Latest() (telemetry.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.readings) == 0 {
		return telemetry.Snapshot{}, false
	}
	i := min(f.calls, len(f.readings)-1)
	f.calls++
	if f.valve != nil {
		f.seen = append(f.seen, f.valve.State())
	}

	var s telemetry.Snapshot
	s.Calibrated[0] = f.readings[i]
	return s, true
}

type actuatorFixture struct {
	act      *Actuator
	v1, v2   *countingValve
	feedback *scriptedFeedback
	state    *telemetry.RunState
	holds    []time.Duration
	clock    time.Time
}

func newActuatorFixture(t *testing.T, cfg Config, readings ...float64) *actuatorFixture {
	t.Helper()

	f := &actuatorFixture{
		v1:    &countingValve{},
		v2:    &countingValve{},
		state: &telemetry.RunState{},
		clock: time.Unix(0, 0),
	}
	f.feedback = &scriptedFeedback{readings: readings, valve: f.v1}

	act, err := NewActuator(cfg, f.v1, f.v2, f.feedback, f.state)
	require.NoError(t, err)

	act.now = func() time.Time { return f.clock }
	act.after = func(d time.Duration) <-chan time.Time {
		f.holds = append(f.holds, d)
		f.clock = f.clock.Add(d)
		ch := make(chan time.Time, 1)
		ch <- f.clock
		return ch
	}
	f.act = act

	return f
}

func never() bool { return false }

func TestInflateToPressureNeutralsOnce(t *testing.T) {
	f := newActuatorFixture(t, DefaultConfig(), 10, 20, 35, 49.9, 50, 55)
	f.state.Begin()

	err := f.act.Actuate(context.Background(), Inflate, ModePressure, 50, hardware.Valve1, never)
	require.NoError(t, err)

	assert.Equal(t, 5, f.feedback.calls, "stops polling at the first reading >= target")
	for _, s := range f.feedback.seen {
		assert.Equal(t, hardware.Supply, s, "valve supplies until the target is reached")
	}
	assert.Equal(t, 1, f.v1.neutralCount())
	assert.Equal(t, 0, f.v2.neutralCount(), "unselected valve is untouched")
	assert.Equal(t, hardware.Neutral, f.v1.State())
	assert.Len(t, f.holds, 4)
	for _, d := range f.holds {
		assert.Equal(t, DefaultConfig().PollInterval, d)
	}

	view := f.state.Read()
	assert.Nil(t, view.TargetPressure, "targets are cleared when actuation ends")
}

func TestDeflateToPressure(t *testing.T) {
	f := newActuatorFixture(t, DefaultConfig(), 40, 25, 9)

	err := f.act.Actuate(context.Background(), Deflate, ModePressure, 10, hardware.Both, never)
	require.NoError(t, err)

	assert.Equal(t, 3, f.feedback.calls)
	assert.Equal(t, 1, f.v1.neutralCount())
	assert.Equal(t, 1, f.v2.neutralCount())
}

func TestTimeHold(t *testing.T) {
	f := newActuatorFixture(t, DefaultConfig())

	canceled := func() bool { return true }
	err := f.act.Actuate(context.Background(), Inflate, ModeTime, 2.5, hardware.Both, canceled)
	require.NoError(t, err, "a time hold is not interrupted by cancellation")

	assert.Equal(t, []time.Duration{2500 * time.Millisecond}, f.holds)
	assert.Equal(t, 1, f.v1.neutralCount())
	assert.Equal(t, 1, f.v2.neutralCount())
	assert.Zero(t, f.feedback.calls)
}

func TestTargetsPublishedDuringActuation(t *testing.T) {
	f := newActuatorFixture(t, DefaultConfig())
	f.state.Begin()

	var during telemetry.RunView
	f.act.after = func(time.Duration) <-chan time.Time {
		during = f.state.Read()
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}

	require.NoError(t, f.act.Actuate(context.Background(), Inflate, ModeTime, 3, hardware.Both, never))

	require.NotNil(t, during.TargetTime)
	assert.Equal(t, 3.0, *during.TargetTime)
	assert.Nil(t, during.TargetPressure)
}

func TestPressureTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ActuationTimeout = time.Second
	f := newActuatorFixture(t, cfg, 5)

	err := f.act.Actuate(context.Background(), Inflate, ModePressure, 50, hardware.Both, never)
	assert.True(t, apperrors.IsCode(err, ErrActuationTimeout), "got %v", err)
	assert.Len(t, f.holds, 50)
	assert.Equal(t, 1, f.v1.neutralCount())
	assert.Equal(t, 1, f.v2.neutralCount())
}

func TestPressureCanceled(t *testing.T) {
	f := newActuatorFixture(t, DefaultConfig(), 5)

	polls := 0
	canceled := func() bool {
		polls++
		return polls > 3
	}

	err := f.act.Actuate(context.Background(), Inflate, ModePressure, 50, hardware.Both, canceled)
	assert.True(t, apperrors.IsCode(err, ErrCanceled), "got %v", err)
	assert.Equal(t, 3, f.feedback.calls)
	assert.Equal(t, 1, f.v1.neutralCount())
}

func TestPressureWaitsForFirstSnapshot(t *testing.T) {
	f := newActuatorFixture(t, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	polls := 0
	f.act.after = func(time.Duration) <-chan time.Time {
		polls++
		if polls == 3 {
			cancel()
			return make(chan time.Time)
		}
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}

	err := f.act.Actuate(ctx, Inflate, ModePressure, 50, hardware.Both, never)
	assert.True(t, apperrors.IsCode(err, ErrCanceled), "got %v", err)
	assert.Equal(t, 3, polls)
	assert.Equal(t, 1, f.v1.neutralCount())
}

func TestSupplyFailureStillNeutrals(t *testing.T) {
	f := newActuatorFixture(t, DefaultConfig())
	f.v2.fail = errors.New("gpio write failed")

	err := f.act.Actuate(context.Background(), Inflate, ModeTime, 1, hardware.Both, never)
	assert.True(t, apperrors.IsCode(err, ErrActuationFailed))
	assert.Empty(t, f.holds)
	assert.Equal(t, 1, f.v1.neutralCount())
	assert.Equal(t, 1, f.v2.neutralCount())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.FeedbackChannel = 3
	assert.True(t, apperrors.IsCode(cfg.Validate(), ErrInvalidChannel))

	cfg = DefaultConfig()
	cfg.PollInterval = 0
	assert.True(t, apperrors.IsCode(cfg.Validate(), ErrInvalidInterval))

	cfg = DefaultConfig()
	cfg.ActuationTimeout = -time.Second
	assert.True(t, apperrors.IsCode(cfg.Validate(), ErrInvalidTimeout))
}
