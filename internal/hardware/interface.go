package hardware

import "strings"

// Channels is the number of raw pressure transducer channels on the ADC.
const Channels = 4

// CalibratedChannels is the number of channels the converter produces.
const CalibratedChannels = 3

// PressureSensor reads the raw transducer channels.
type PressureSensor interface {
	GetPressureSensors() ([Channels]float64, error)
}

// AmbientSensor reads the barometric reference.
type AmbientSensor interface {
	ReadAmbient() (pressure, temperature float64, err error)
}

// Converter turns raw readings into calibrated pressures.
type Converter interface {
	Convert(raw [CalibratedChannels]float64, ambientPressure, ambientTemperature float64) ([CalibratedChannels]float64, error)
}

// Valve drives one three-way pneumatic valve.
type Valve interface {
	Supply() error
	Vent() error
	Neutral() error
	State() ValveState
}

// Clamp reports whether the sample clamp is engaged.
type Clamp interface {
	Engaged() bool
}

type ValveState int

const (
	Neutral ValveState = iota
	Vent
	Supply
)

func (s ValveState) String() string {
	switch s {
	case Vent:
		return "vent"
	case Supply:
		return "supply"
	default:
		return "neutral"
	}
}

// ValveSelect names which valves an instruction drives.
type ValveSelect int

const (
	Both ValveSelect = iota
	Valve1
	Valve2
)

func (v ValveSelect) String() string {
	switch v {
	case Valve1:
		return "Valve1"
	case Valve2:
		return "Valve2"
	default:
		return "Both"
	}
}

// ParseValveSelect accepts Valve1, Valve2 and Both, case-insensitively.
func ParseValveSelect(s string) (ValveSelect, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "both":
		return Both, true
	case "valve1":
		return Valve1, true
	case "valve2":
		return Valve2, true
	default:
		return Both, false
	}
}
