package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
	"codeberg.org/meshalyzer/rigctl/internal/logger"
	"codeberg.org/meshalyzer/rigctl/internal/runindex"
	"codeberg.org/meshalyzer/rigctl/internal/telemetry"
	"codeberg.org/meshalyzer/rigctl/internal/variables"
	"github.com/spf13/afero"
)

// Run is everything persisted for one finished protocol run.
type Run struct {
	Rows      []telemetry.Snapshot
	Variables map[string]variables.Value
	// Names orders Variables in the log; missing names are skipped.
	Names        []string
	ProtocolName string
	ProtocolPath string
	Outcome      string
	Steps        int
	Started      time.Time
	Finished     time.Time
}

// RunRecord locates the files of a saved run.
type RunRecord struct {
	Dir           string
	CSVPath       string
	InfoPath      string
	VariablesPath string
	Trial         int
}

type Saver struct {
	cfg   Config
	fs    afero.Fs
	log   *variables.Log
	index runindex.Index
	now   func() time.Time
}

// NewSaver creates a saver. log and index may be nil.
func NewSaver(cfg Config, fs afero.Fs, log *variables.Log, index runindex.Index) (*Saver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}

	return &Saver{
		cfg:   cfg,
		fs:    fs,
		log:   log,
		index: index,
		now:   time.Now,
	}, nil
}

// Save writes the live CSV, moves it into a new run directory with
// copy-verify-truncate, then does the same for the variables log. A
// verification failure leaves the live file intact for a retry.
func (s *Saver) Save(ctx context.Context, run Run) (RunRecord, error) {
	if err := s.writeLive(run.Rows); err != nil {
		return RunRecord{}, err
	}

	animal := textVariable(run.Variables, "animal_id", defaultAnimalID)
	sample := textVariable(run.Variables, "sample_name", s.cfg.SampleName)

	dir, trial, err := s.createRunDir(animal, sample)
	if err != nil {
		return RunRecord{}, err
	}

	record := RunRecord{
		Dir:           dir,
		CSVPath:       filepath.Join(dir, filepath.Base(dir)+".csv"),
		InfoPath:      filepath.Join(dir, infoFileName),
		VariablesPath: filepath.Join(dir, variablesFileName),
		Trial:         trial,
	}

	if err := moveVerified(s.fs, s.cfg.LiveCSVPath(), s.fs, record.CSVPath); err != nil {
		return record, err
	}

	total := totalTime(run)
	if err := s.writeInfo(record.InfoPath, run, animal, sample, total); err != nil {
		return record, err
	}

	if err := s.saveVariables(run, record.VariablesPath); err != nil {
		return record, err
	}

	s.copyExtras(dir, run.ProtocolPath)

	logger.Info().
		Str("dir", dir).
		Int("rows", len(run.Rows)).
		Int("trial", trial).
		Msg("Run saved")

	if s.index != nil {
		err := s.index.Record(ctx, &runindex.Entry{
			Dir:       dir,
			Animal:    animal,
			Sample:    sample,
			Trial:     trial,
			Protocol:  run.ProtocolName,
			Outcome:   run.Outcome,
			Steps:     run.Steps,
			Rows:      len(run.Rows),
			Duration:  time.Duration(total * float64(time.Second)),
			CreatedAt: s.now(),
		})
		if err != nil {
			logger.Warn().Err(err).Str("dir", dir).Msg("Run saved but not indexed")
		}
	}

	return record, nil
}

func (s *Saver) writeLive(rows []telemetry.Snapshot) error {
	errFactory := errors.New()

	if err := s.fs.MkdirAll(s.cfg.DataDir, defaultDirPerm); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}
	if err := s.preserveUnsaved(); err != nil {
		return err
	}

	f, err := s.fs.OpenFile(s.cfg.LiveCSVPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, defaultFilePerm)
	if err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return errFactory.Wrap(ErrWriteFailed, err)
	}
	if err := f.Close(); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	return nil
}

// preserveUnsaved moves a non-empty live CSV left behind by a failed save
// into the unsaved directory before it is overwritten. If that move fails
// the save is refused and the live file stays untouched.
func (s *Saver) preserveUnsaved() error {
	errFactory := errors.New()
	live := s.cfg.LiveCSVPath()

	info, err := s.fs.Stat(live)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errFactory.Wrap(ErrWriteFailed, err)
	}
	if info.Size() == 0 {
		return nil
	}

	dir := s.cfg.UnsavedDir()
	if err := s.fs.MkdirAll(dir, defaultDirPerm); err != nil {
		return errFactory.Wrap(ErrUnsavedLive, err)
	}

	stamp := s.now().Format("20060102_150405")
	dst := filepath.Join(dir, stamp+".csv")
	for n := 2; ; n++ {
		exists, err := afero.Exists(s.fs, dst)
		if err != nil {
			return errFactory.Wrap(ErrUnsavedLive, err)
		}
		if !exists {
			break
		}
		dst = filepath.Join(dir, fmt.Sprintf("%s_%d.csv", stamp, n))
	}

	if err := moveVerified(s.fs, live, s.fs, dst); err != nil {
		return errFactory.Wrap(ErrUnsavedLive, err)
	}

	logger.Warn().
		Str("path", dst).
		Int64("bytes", info.Size()).
		Msg("Previous live trace was never saved, moved aside")

	return nil
}

// createRunDir scans trial numbers upward from 01 for a free directory.
// The scan is not atomic across processes; a directory created between the
// check and Mkdir fails the save with ErrDirectoryExists.
func (s *Saver) createRunDir(animal, sample string) (string, int, error) {
	errFactory := errors.New()

	runs := s.cfg.RunsDir()
	if err := s.fs.MkdirAll(runs, defaultDirPerm); err != nil {
		return "", 0, errFactory.Wrap(ErrWriteFailed, err)
	}

	parts := []string{s.now().Format("20060102")}
	if sample != "" {
		parts = append(parts, sanitize(sample))
	}
	parts = append(parts, sanitize(animal))
	base := strings.Join(parts, "_")

	for trial := 1; trial <= maxTrial; trial++ {
		dir := filepath.Join(runs, fmt.Sprintf("%s_%02d", base, trial))

		exists, err := afero.DirExists(s.fs, dir)
		if err != nil {
			return "", 0, errFactory.Wrap(ErrWriteFailed, err)
		}
		if exists {
			continue
		}

		if err := s.fs.Mkdir(dir, defaultDirPerm); err != nil {
			if os.IsExist(err) {
				return "", 0, errFactory.WithData(ErrDirectoryExists, dir)
			}
			return "", 0, errFactory.Wrap(ErrWriteFailed, err)
		}
		return dir, trial, nil
	}

	return "", 0, errFactory.WithData(ErrNoFreeTrial, base)
}

func (s *Saver) writeInfo(path string, run Run, animal, sample string, total float64) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Created on: %s\n", s.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Total time: %.3f s\n", total)
	fmt.Fprintf(&b, "Total steps: %d\n", run.Steps)
	fmt.Fprintf(&b, "Animal ID: %s\n", animal)
	fmt.Fprintf(&b, "Sample name: %s\n", sample)
	fmt.Fprintf(&b, "Protocol: %s\n", run.ProtocolName)
	fmt.Fprintf(&b, "Outcome: %s\n", run.Outcome)
	fmt.Fprintf(&b, "Rows: %d\n", len(run.Rows))

	if err := afero.WriteFile(s.fs, path, []byte(b.String()), defaultFilePerm); err != nil {
		return errors.New().Wrap(ErrWriteFailed, err)
	}
	return nil
}

// saveVariables appends the final values to the live log and moves it into
// the run directory. Without a log the values are written directly.
func (s *Saver) saveVariables(run Run, dst string) error {
	if s.log == nil {
		var b strings.Builder
		for _, name := range run.Names {
			if v, ok := run.Variables[name]; ok {
				fmt.Fprintf(&b, "%s, %s, %s\n", s.now().Format("2006-01-02 15:04:05"), name, v)
			}
		}
		if err := afero.WriteFile(s.fs, dst, []byte(b.String()), defaultFilePerm); err != nil {
			return errors.New().Wrap(ErrWriteFailed, err)
		}
		return nil
	}

	if err := s.log.AppendAll(run.Variables, run.Names); err != nil {
		return err
	}

	return s.log.Locked(func(fs afero.Fs, path string) error {
		exists, err := afero.Exists(fs, path)
		if err != nil {
			return errors.New().Wrap(ErrWriteFailed, err)
		}
		if !exists {
			if err := afero.WriteFile(s.fs, dst, nil, defaultFilePerm); err != nil {
				return errors.New().Wrap(ErrWriteFailed, err)
			}
			return nil
		}
		return moveVerified(fs, path, s.fs, dst)
	})
}

// copyExtras copies the protocol and calibration files. The run data is
// already safe at this point, so failures are only logged.
func (s *Saver) copyExtras(dir, protocolPath string) {
	for _, src := range []string{protocolPath, s.cfg.CalibrationFile} {
		if src == "" {
			continue
		}
		if ok, _ := afero.Exists(s.fs, src); !ok {
			logger.Debug().Str("path", src).Msg("Skipping missing run attachment")
			continue
		}
		if err := copyFile(s.fs, src, s.fs, filepath.Join(dir, filepath.Base(src))); err != nil {
			logger.Warn().Err(err).Str("path", src).Msg("Failed to copy run attachment")
		}
	}
}

func textVariable(vars map[string]variables.Value, name, fallback string) string {
	v, ok := vars[name]
	if !ok {
		return fallback
	}
	if s := strings.TrimSpace(v.String()); s != "" {
		return s
	}
	return fallback
}

// sanitize keeps operator input from escaping the runs directory.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', '\t', ':':
			return '-'
		}
		return r
	}, strings.TrimSpace(s))
}

// totalTime is the elapsed time of the last trace row, or the wall time of
// the run when nothing was recorded.
func totalTime(run Run) float64 {
	if n := len(run.Rows); n > 0 {
		return run.Rows[n-1].Elapsed
	}
	if run.Finished.After(run.Started) {
		return run.Finished.Sub(run.Started).Seconds()
	}
	return 0
}
