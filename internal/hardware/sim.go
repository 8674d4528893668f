package hardware

import (
	"math"
	"sync"
	"time"

	"codeberg.org/meshalyzer/rigctl/internal/logger"
)

const (
	defaultSupplyPressure = 50.0 // psi
	defaultTimeConstant   = 2 * time.Second
	ambientPressureHPa    = 1013.25
	ambientTemperatureC   = 22.0
)

// SimConfig tunes the simulated pneumatic plant.
type SimConfig struct {
	SupplyPressure float64
	TimeConstant   time.Duration
}

// Sim is a first-order model of the rig: each chamber relaxes towards the
// supply pressure while its valve supplies and towards zero gauge while it
// vents. Chamber 0 follows valve 1, chamber 1 follows valve 2, channel 2 is
// the manifold average and channel 3 reports the supply line.
type Sim struct {
	cfg      SimConfig
	now      func() time.Time
	mu       sync.Mutex
	pressure [2]float64
	states   [2]ValveState
	updated  time.Time
	clamp    bool
}

func NewSim(cfg SimConfig) *Sim {
	if cfg.SupplyPressure <= 0 {
		cfg.SupplyPressure = defaultSupplyPressure
	}
	if cfg.TimeConstant <= 0 {
		cfg.TimeConstant = defaultTimeConstant
	}

	s := &Sim{cfg: cfg, now: time.Now}
	s.updated = s.now()

	logger.Debug().
		Float64("supply_pressure", cfg.SupplyPressure).
		Dur("time_constant", cfg.TimeConstant).
		Msg("Simulated rig initialized")

	return s
}

// advance integrates the chamber pressures up to now. Caller holds mu.
func (s *Sim) advance() {
	now := s.now()
	dt := now.Sub(s.updated).Seconds()
	s.updated = now
	if dt <= 0 {
		return
	}

	decay := 1 - math.Exp(-dt/s.cfg.TimeConstant.Seconds())
	for i, state := range s.states {
		switch state {
		case Supply:
			s.pressure[i] += (s.cfg.SupplyPressure - s.pressure[i]) * decay
		case Vent:
			s.pressure[i] -= s.pressure[i] * decay
		}
	}
}

func (s *Sim) GetPressureSensors() ([Channels]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.advance()

	return [Channels]float64{
		s.pressure[0],
		s.pressure[1],
		(s.pressure[0] + s.pressure[1]) / 2,
		s.cfg.SupplyPressure,
	}, nil
}

func (*Sim) ReadAmbient() (float64, float64, error) {
	return ambientPressureHPa, ambientTemperatureC, nil
}

func (s *Sim) Engaged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clamp
}

// SetClamp toggles the simulated clamp.
func (s *Sim) SetClamp(engaged bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clamp = engaged
}

// Valve returns the simulated valve with the given index (0 or 1).
func (s *Sim) Valve(index int) Valve {
	return &simValve{sim: s, index: index}
}

func (s *Sim) set(index int, state ValveState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.advance()
	s.states[index] = state
}

type simValve struct {
	sim   *Sim
	index int
}

func (v *simValve) Supply() error {
	v.sim.set(v.index, Supply)
	return nil
}

func (v *simValve) Vent() error {
	v.sim.set(v.index, Vent)
	return nil
}

func (v *simValve) Neutral() error {
	v.sim.set(v.index, Neutral)
	return nil
}

func (v *simValve) State() ValveState {
	v.sim.mu.Lock()
	defer v.sim.mu.Unlock()
	return v.sim.states[v.index]
}
