package metrics

import (
	"codeberg.org/meshalyzer/rigctl/internal/errors"
	"codeberg.org/meshalyzer/rigctl/internal/hardware"
)

const (
	defaultForceChannel = 0
	defaultAngleChannel = 1
)

// Config selects which calibrated channels carry force and angle.
type Config struct {
	ForceChannel int
	AngleChannel int
}

func DefaultConfig() Config {
	return Config{
		ForceChannel: defaultForceChannel,
		AngleChannel: defaultAngleChannel,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.ForceChannel < 0 || c.ForceChannel >= hardware.CalibratedChannels {
		return errFactory.WithData(ErrInvalidChannel, struct {
			Field   string
			Channel int
		}{"force", c.ForceChannel})
	}
	if c.AngleChannel < 0 || c.AngleChannel >= hardware.CalibratedChannels {
		return errFactory.WithData(ErrInvalidChannel, struct {
			Field   string
			Channel int
		}{"angle", c.AngleChannel})
	}

	return nil
}
