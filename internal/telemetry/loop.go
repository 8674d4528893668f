package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
	"codeberg.org/meshalyzer/rigctl/internal/hardware"
	"codeberg.org/meshalyzer/rigctl/internal/logger"
)

// Sources are the collaborators sampled on every tick. Clamp may be nil.
type Sources struct {
	Pressure  hardware.PressureSensor
	Ambient   hardware.AmbientSensor
	Converter hardware.Converter
	Valve1    hardware.Valve
	Valve2    hardware.Valve
	Clamp     hardware.Clamp
}

func (s Sources) validate() error {
	errFactory := errors.New()
	switch {
	case s.Pressure == nil:
		return errFactory.WithData(ErrMissingSource, "pressure")
	case s.Ambient == nil:
		return errFactory.WithData(ErrMissingSource, "ambient")
	case s.Converter == nil:
		return errFactory.WithData(ErrMissingSource, "converter")
	case s.Valve1 == nil, s.Valve2 == nil:
		return errFactory.WithData(ErrMissingSource, "valve")
	}
	return nil
}

// lastKnown carries readings forward across failed hardware reads.
type lastKnown struct {
	raw                [hardware.Channels]float64
	ambientPressure    float64
	ambientTemperature float64
}

// Loop samples the rig forever, publishing every snapshot to the bridge and
// recording it in the trace while a run is active.
type Loop struct {
	cfg    Config
	src    Sources
	state  *RunState
	trace  *Trace
	bridge *Bridge
	stats  *Stats
	now    func() time.Time

	// Owned by the loop goroutine.
	last           lastKnown
	runStart       time.Time
	calibrationBad bool

	latest atomic.Pointer[Snapshot]
}

func NewLoop(cfg Config, src Sources, state *RunState, trace *Trace, bridge *Bridge, stats *Stats) (*Loop, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := src.validate(); err != nil {
		return nil, err
	}
	if state == nil || trace == nil || bridge == nil {
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "loop requires run state, trace and bridge")
	}
	if stats == nil {
		stats = NewStats(nil)
	}

	return &Loop{
		cfg:    cfg,
		src:    src,
		state:  state,
		trace:  trace,
		bridge: bridge,
		stats:  stats,
		now:    time.Now,
	}, nil
}

// Run ticks until ctx is cancelled. Hardware failures never stop it.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	logger.Info().Dur("interval", l.cfg.Interval).Msg("Acquisition loop started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Acquisition loop stopped")
			return nil
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Latest returns the most recent snapshot.
func (l *Loop) Latest() (Snapshot, bool) {
	s := l.latest.Load()
	if s == nil {
		return Snapshot{}, false
	}
	return *s, true
}

// Tick performs one acquisition cycle, recovering from collaborator panics.
// Run calls it on every timer tick.
func (l *Loop) Tick() {
	defer func() {
		if r := recover(); r != nil {
			l.stats.HardwareErrors.WithLabelValues("panic").Inc()
			err := errors.New().WithData(ErrTickPanic, fmt.Sprint(r))
			logger.ErrorWithCode(err).Msg("Acquisition tick recovered")
		}
	}()

	l.tick()
}

func (l *Loop) tick() Snapshot {
	started := l.now()
	defer func() {
		l.stats.TickDuration.Observe(l.now().Sub(started).Seconds())
	}()

	snap := l.sample(started)
	view := l.state.claim()
	snap.Step = view.Step
	snap.TargetPressure = view.TargetPressure
	snap.TargetTime = view.TargetTime

	if view.Step > 0 {
		if view.Starting {
			l.runStart = started
			l.trace.reset(view.Run)
			logger.Debug().Uint64("run", view.Run).Msg("Run started, trace cleared")
		}
		snap.Elapsed = started.Sub(l.runStart).Seconds()
		rows := l.trace.append(snap)
		l.stats.TraceRows.Set(float64(rows))
	} else {
		snap.Elapsed = IdleElapsed
	}

	l.stats.Ticks.Inc()
	l.latest.Store(&snap)
	l.bridge.Publish(snap)

	return snap
}

// sample reads every collaborator, degrading to last-known values.
func (l *Loop) sample(now time.Time) Snapshot {
	if p, t, err := l.src.Ambient.ReadAmbient(); err != nil {
		l.hardwareError("ambient", err)
	} else {
		l.last.ambientPressure, l.last.ambientTemperature = p, t
	}

	if raw, err := l.src.Pressure.GetPressureSensors(); err != nil {
		l.hardwareError("pressure", err)
	} else {
		l.last.raw = raw
	}

	snap := Snapshot{
		Taken:              now,
		Raw:                l.last.raw,
		AmbientPressure:    l.last.ambientPressure,
		AmbientTemperature: l.last.ambientTemperature,
		Valve1:             l.src.Valve1.State(),
		Valve2:             l.src.Valve2.State(),
	}
	if l.src.Clamp != nil {
		snap.Clamp = l.src.Clamp.Engaged()
	}

	var raw [hardware.CalibratedChannels]float64
	copy(raw[:], l.last.raw[:hardware.CalibratedChannels])

	calibrated, err := l.src.Converter.Convert(raw, snap.AmbientPressure, snap.AmbientTemperature)
	if err != nil {
		l.stats.CalibrationFallbacks.Inc()
		if !l.calibrationBad {
			logger.Warn().Err(err).Msg("Calibration failed, recording raw values")
		}
		l.calibrationBad = true
		snap.Calibrated = raw
		return snap
	}

	if l.calibrationBad {
		logger.Info().Msg("Calibration recovered")
		l.calibrationBad = false
	}
	snap.Calibrated = calibrated
	snap.CalibrationOK = true

	return snap
}

func (l *Loop) hardwareError(source string, err error) {
	l.stats.HardwareErrors.WithLabelValues(source).Inc()
	logger.Debug().Err(errors.New().Wrap(hardware.ErrReadFailed, err)).Str("source", source).Msg("Sensor read failed")
}
