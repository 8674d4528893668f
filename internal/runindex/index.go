package runindex

import (
	"context"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
	"codeberg.org/meshalyzer/rigctl/internal/logger"
)

type noopIndex struct{}

// New opens the run index, or returns a no-op index when it is disabled.
func New(cfg Config, log logger.Logger) (Index, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Run index disabled, using no-op index")
		return noopIndex{}, nil
	}

	repo, err := newRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to open run index")
		return nil, err
	}

	return repo, nil
}

func (noopIndex) Record(_ context.Context, _ *Entry) error {
	return nil
}

func (noopIndex) List(_ context.Context, _ int) ([]Entry, error) {
	return nil, nil
}

func (noopIndex) Close() error {
	return nil
}
