package telemetry

import (
	"time"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
)

const (
	defaultInterval       = 50 * time.Millisecond
	minInterval           = 10 * time.Millisecond
	maxInterval           = time.Second
	defaultBridgeCapacity = 256
)

type Config struct {
	Interval       time.Duration
	BridgeCapacity int
}

func DefaultConfig() Config {
	return Config{
		Interval:       defaultInterval,
		BridgeCapacity: defaultBridgeCapacity,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.Interval < minInterval || c.Interval > maxInterval {
		return errFactory.WithData(ErrInvalidInterval, c.Interval)
	}
	if c.BridgeCapacity <= 0 {
		return errFactory.WithData(ErrInvalidCapacity, c.BridgeCapacity)
	}
	return nil
}
