package hardware

import (
	"math"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
)

// Valid barometric range for the ambient reference, in hPa.
const (
	minAmbientHPa = 260.0
	maxAmbientHPa = 1260.0
)

// LinearConverter applies a per-channel gain and offset. It refuses to
// calibrate against an implausible ambient reading so that the acquisition
// loop falls back to raw values instead of recording garbage.
type LinearConverter struct {
	Gain   [CalibratedChannels]float64
	Offset [CalibratedChannels]float64
}

// IdentityConverter returns a converter that passes raw readings through.
func IdentityConverter() *LinearConverter {
	return &LinearConverter{Gain: [CalibratedChannels]float64{1, 1, 1}}
}

// NewLinearConverter builds a converter from configured coefficients. Missing
// gains default to 1 and missing offsets to 0.
func NewLinearConverter(gain, offset []float64) (*LinearConverter, error) {
	errFactory := errors.New()
	if len(gain) > CalibratedChannels || len(offset) > CalibratedChannels {
		return nil, errFactory.WithData(errors.ErrInvalidConfig, "too many calibration coefficients")
	}

	c := IdentityConverter()
	copy(c.Gain[:], gain)
	copy(c.Offset[:], offset)

	return c, nil
}

func (c *LinearConverter) Convert(
	raw [CalibratedChannels]float64, ambientPressure, ambientTemperature float64,
) ([CalibratedChannels]float64, error) {
	errFactory := errors.New()

	if math.IsNaN(ambientPressure) || ambientPressure < minAmbientHPa || ambientPressure > maxAmbientHPa {
		return raw, errFactory.WithData(ErrCalibrationFailed, struct {
			AmbientPressure    float64
			AmbientTemperature float64
		}{ambientPressure, ambientTemperature})
	}

	var out [CalibratedChannels]float64
	for i, r := range raw {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return raw, errFactory.WithData(ErrCalibrationFailed, "non-finite raw reading")
		}
		out[i] = r*c.Gain[i] + c.Offset[i]
	}

	return out, nil
}
