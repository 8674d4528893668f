package persistence

import (
	"path/filepath"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
)

const (
	liveCSVName       = "data.csv"
	runsDirName       = "runs"
	unsavedDirName    = "unsaved"
	infoFileName      = "information.txt"
	variablesFileName = "variables.txt"
	defaultDirPerm    = 0o755
	defaultFilePerm   = 0o644
	maxTrial          = 999
	defaultAnimalID   = "0000"
)

type Config struct {
	// DataDir holds the live files and the runs directory.
	DataDir         string
	SampleName      string
	CalibrationFile string
}

func (c Config) Validate() error {
	if c.DataDir == "" {
		return errors.New().WithMessage(ErrInvalidConfig, "data directory is empty")
	}
	return nil
}

// LiveCSVPath is the file the trace is written to before it is copied
// into the run directory.
func (c Config) LiveCSVPath() string {
	return filepath.Join(c.DataDir, liveCSVName)
}

// VariablesLogPath is the live variables log.
func (c Config) VariablesLogPath() string {
	return filepath.Join(c.DataDir, variablesFileName)
}

func (c Config) RunsDir() string {
	return filepath.Join(c.DataDir, runsDirName)
}

// UnsavedDir holds live traces preserved after a failed save.
func (c Config) UnsavedDir() string {
	return filepath.Join(c.DataDir, unsavedDirName)
}
