package protocol

import (
	"time"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
	"codeberg.org/meshalyzer/rigctl/internal/hardware"
)

const (
	defaultPollInterval = 20 * time.Millisecond
	minPollInterval     = time.Millisecond
	maxPollInterval     = time.Second
)

type Config struct {
	// FeedbackChannel is the calibrated channel compared against pressure
	// targets.
	FeedbackChannel int
	PollInterval    time.Duration
	// ActuationTimeout bounds pressure-bound actuation; zero waits forever.
	ActuationTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		FeedbackChannel: 0,
		PollInterval:    defaultPollInterval,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.FeedbackChannel < 0 || c.FeedbackChannel >= hardware.CalibratedChannels {
		return errFactory.WithData(ErrInvalidChannel, c.FeedbackChannel)
	}
	if c.PollInterval < minPollInterval || c.PollInterval > maxPollInterval {
		return errFactory.WithData(ErrInvalidInterval, c.PollInterval)
	}
	if c.ActuationTimeout < 0 {
		return errFactory.WithData(ErrInvalidTimeout, c.ActuationTimeout)
	}

	return nil
}
