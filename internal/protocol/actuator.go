package protocol

import (
	"context"
	"time"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
	"codeberg.org/meshalyzer/rigctl/internal/hardware"
	"codeberg.org/meshalyzer/rigctl/internal/logger"
	"codeberg.org/meshalyzer/rigctl/internal/telemetry"
)

// Feedback supplies the most recent snapshot of the acquisition loop.
type Feedback interface {
	Latest() (telemetry.Snapshot, bool)
}

type Direction int

const (
	Inflate Direction = iota
	Deflate
)

func (d Direction) String() string {
	if d == Deflate {
		return "deflate"
	}
	return "inflate"
}

// Actuator drives the valves in closed loop against a duration or the
// feedback channel.
type Actuator struct {
	cfg      Config
	valves   [2]hardware.Valve
	feedback Feedback
	state    *telemetry.RunState

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func NewActuator(cfg Config, valve1, valve2 hardware.Valve, feedback Feedback, state *telemetry.RunState) (*Actuator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if valve1 == nil || valve2 == nil || feedback == nil || state == nil {
		return nil, errors.New().WithMessage(errors.ErrInvalidArgument, "actuator requires both valves, feedback and run state")
	}

	return &Actuator{
		cfg:      cfg,
		valves:   [2]hardware.Valve{valve1, valve2},
		feedback: feedback,
		state:    state,
		now:      time.Now,
		after:    time.After,
	}, nil
}

func (a *Actuator) selected(sel hardware.ValveSelect) []hardware.Valve {
	switch sel {
	case hardware.Valve1:
		return a.valves[:1]
	case hardware.Valve2:
		return a.valves[1:]
	default:
		return a.valves[:]
	}
}

// Actuate opens the selected valves toward supply or vent until the target
// is met, then returns them to neutral exactly once. A time-bound hold is
// not interrupted by canceled; only ctx ends it early.
func (a *Actuator) Actuate(ctx context.Context, dir Direction, mode Mode, target float64, sel hardware.ValveSelect, canceled func() bool) (err error) {
	errFactory := errors.New()
	valves := a.selected(sel)

	if mode == ModePressure {
		a.state.SetTargets(&target, nil)
	} else {
		a.state.SetTargets(nil, &target)
	}

	defer func() {
		for _, v := range valves {
			if nerr := v.Neutral(); nerr != nil && err == nil {
				err = errFactory.Wrap(ErrActuationFailed, nerr)
			}
		}
		a.state.SetTargets(nil, nil)
	}()

	for _, v := range valves {
		if dir == Inflate {
			err = v.Supply()
		} else {
			err = v.Vent()
		}
		if err != nil {
			return errFactory.Wrap(ErrActuationFailed, err)
		}
	}

	logger.Debug().
		Str("direction", dir.String()).
		Str("mode", mode.String()).
		Float64("target", target).
		Str("valve", sel.String()).
		Msg("Actuation started")

	if mode == ModeTime {
		return a.hold(ctx, target)
	}
	return a.poll(ctx, dir, target, canceled)
}

func (a *Actuator) hold(ctx context.Context, seconds float64) error {
	if seconds <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return errors.New().Wrap(ErrCanceled, ctx.Err())
	case <-a.after(time.Duration(seconds * float64(time.Second))):
		return nil
	}
}

func (a *Actuator) reached(dir Direction, target float64) (float64, bool) {
	snap, ok := a.feedback.Latest()
	if !ok {
		return 0, false
	}

	reading := snap.Calibrated[a.cfg.FeedbackChannel]
	if dir == Inflate {
		return reading, reading >= target
	}
	return reading, reading <= target
}

func (a *Actuator) poll(ctx context.Context, dir Direction, target float64, canceled func() bool) error {
	errFactory := errors.New()
	started := a.now()

	for {
		if canceled != nil && canceled() {
			return errFactory.New(ErrCanceled)
		}

		if reading, ok := a.reached(dir, target); ok {
			logger.Debug().
				Float64("reading", reading).
				Float64("target", target).
				Dur("elapsed", a.now().Sub(started)).
				Msg("Pressure target reached")
			return nil
		}

		if a.cfg.ActuationTimeout > 0 && a.now().Sub(started) >= a.cfg.ActuationTimeout {
			return errFactory.WithData(ErrActuationTimeout, struct {
				Target  float64
				Timeout time.Duration
			}{target, a.cfg.ActuationTimeout})
		}

		select {
		case <-ctx.Done():
			return errFactory.Wrap(ErrCanceled, ctx.Err())
		case <-a.after(a.cfg.PollInterval):
		}
	}
}
