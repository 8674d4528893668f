package telemetry

import (
	"time"

	"codeberg.org/meshalyzer/rigctl/internal/hardware"
)

// IdleElapsed marks a snapshot taken while no run is active.
const IdleElapsed = -1.0

// Snapshot is one acquisition tick. It is never modified after the loop
// builds it.
type Snapshot struct {
	Taken              time.Time
	Elapsed            float64
	Raw                [hardware.Channels]float64
	Calibrated         [hardware.CalibratedChannels]float64
	AmbientPressure    float64
	AmbientTemperature float64
	Valve1             hardware.ValveState
	Valve2             hardware.ValveState
	TargetPressure     *float64
	TargetTime         *float64
	Clamp              bool
	// Step is the protocol step that was executing, 0 when idle.
	Step uint32
	// CalibrationOK is false when Calibrated holds raw passthrough values.
	CalibrationOK bool
}

// Active reports whether the snapshot was taken during a run.
func (s Snapshot) Active() bool {
	return s.Step > 0
}
