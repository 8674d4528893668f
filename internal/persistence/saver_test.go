package persistence

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
	"codeberg.org/meshalyzer/rigctl/internal/hardware"
	"codeberg.org/meshalyzer/rigctl/internal/runindex"
	"codeberg.org/meshalyzer/rigctl/internal/telemetry"
	"codeberg.org/meshalyzer/rigctl/internal/variables"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dataDir = "/srv/rig"

var fixedNow = time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)

// corruptFs flips the first byte of every write to copies under runs/.
type corruptFs struct {
	afero.Fs
}

func (c corruptFs) Create(name string) (afero.File, error) {
	f, err := c.Fs.Create(name)
	if err != nil || !strings.Contains(name, "/runs/") {
		return f, err
	}
	return corruptFile{f}, nil
}

type corruptFile struct {
	afero.File
}

func (f corruptFile) Write(p []byte) (int, error) {
	q := append([]byte(nil), p...)
	if len(q) > 0 {
		q[0] ^= 0xff
	}
	return f.File.Write(q)
}

// blindFs reports run directories as missing so the trial scan collides.
type blindFs struct {
	afero.Fs
}

func (b blindFs) Stat(name string) (os.FileInfo, error) {
	if strings.Contains(name, "/runs/") {
		return nil, os.ErrNotExist
	}
	return b.Fs.Stat(name)
}

type recordingIndex struct {
	entries []runindex.Entry
}

func (r *recordingIndex) Record(_ context.Context, e *runindex.Entry) error {
	r.entries = append(r.entries, *e)
	return nil
}

func (r *recordingIndex) List(context.Context, int) ([]runindex.Entry, error) {
	return r.entries, nil
}

func (*recordingIndex) Close() error { return nil }

func newSaver(t *testing.T, fs afero.Fs, log *variables.Log, index runindex.Index) *Saver {
	t.Helper()

	s, err := NewSaver(Config{DataDir: dataDir, CalibrationFile: dataDir + "/calibration.toml"}, fs, log, index)
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }

	return s
}

func sampleRows() []telemetry.Snapshot {
	target := 50.0
	rows := make([]telemetry.Snapshot, 3)
	for i := range rows {
		rows[i] = telemetry.Snapshot{
			Elapsed:            float64(i) * 0.05,
			AmbientPressure:    1013.25,
			AmbientTemperature: 22,
			Raw:                [hardware.Channels]float64{1, 2, 3, 4},
			Calibrated:         [hardware.CalibratedChannels]float64{10, 20, 30},
			Valve1:             hardware.Supply,
			TargetPressure:     &target,
			Step:               1,
		}
	}
	return rows
}

func sampleRun() Run {
	return Run{
		Rows: sampleRows(),
		Variables: map[string]variables.Value{
			"animal_id": variables.String("R042"),
			"peak":      variables.Float(12.5),
		},
		Names:        []string{"animal_id", "peak"},
		ProtocolName: "ramp.txt",
		ProtocolPath: dataDir + "/protocols/ramp.txt",
		Outcome:      "completed",
		Steps:        3,
	}
}

func expectedCSV(t *testing.T, rows []telemetry.Snapshot) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))
	return buf.Bytes()
}

func TestSaveMovesVerifiedCopy(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := newSaver(t, fs, nil, nil)
	run := sampleRun()

	rec, err := s.Save(context.Background(), run)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dataDir, "runs", "20240309_R042_01"), rec.Dir)
	assert.Equal(t, 1, rec.Trial)

	saved, err := afero.ReadFile(fs, rec.CSVPath)
	require.NoError(t, err)
	assert.Equal(t, expectedCSV(t, run.Rows), saved)

	info, err := fs.Stat(filepath.Join(dataDir, "data.csv"))
	require.NoError(t, err)
	assert.Zero(t, info.Size(), "live file is truncated after verification")
}

func TestSaveVerificationFailureKeepsLiveFile(t *testing.T) {
	mem := afero.NewMemMapFs()
	s := newSaver(t, corruptFs{mem}, nil, nil)
	run := sampleRun()

	_, err := s.Save(context.Background(), run)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, ErrVerificationFailed), "got %v", err)

	live, err := afero.ReadFile(mem, filepath.Join(dataDir, "data.csv"))
	require.NoError(t, err)
	assert.Equal(t, expectedCSV(t, run.Rows), live)
}

func TestSaveAfterVerificationFailurePreservesLiveTrace(t *testing.T) {
	mem := afero.NewMemMapFs()
	first := sampleRun()

	_, err := newSaver(t, corruptFs{mem}, nil, nil).Save(context.Background(), first)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, ErrVerificationFailed), "got %v", err)

	second := sampleRun()
	second.Rows = second.Rows[:2]
	rec, err := newSaver(t, mem, nil, nil).Save(context.Background(), second)
	require.NoError(t, err)

	kept, err := afero.ReadFile(mem, filepath.Join(dataDir, "unsaved", "20240309_140500.csv"))
	require.NoError(t, err)
	assert.Equal(t, expectedCSV(t, first.Rows), kept)

	saved, err := afero.ReadFile(mem, rec.CSVPath)
	require.NoError(t, err)
	assert.Equal(t, expectedCSV(t, second.Rows), saved)

	info, err := mem.Stat(filepath.Join(dataDir, "data.csv"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestSaveUnsavedNamesDoNotCollide(t *testing.T) {
	mem := afero.NewMemMapFs()

	for range 3 {
		_, err := newSaver(t, corruptFs{mem}, nil, nil).Save(context.Background(), sampleRun())
		require.Error(t, err)
	}

	for _, name := range []string{"20240309_140500.csv", "20240309_140500_2.csv"} {
		ok, err := afero.Exists(mem, filepath.Join(dataDir, "unsaved", name))
		require.NoError(t, err)
		assert.True(t, ok, name)
	}

	live, err := afero.ReadFile(mem, filepath.Join(dataDir, "data.csv"))
	require.NoError(t, err)
	assert.Equal(t, expectedCSV(t, sampleRows()), live)
}

// lockedUnsavedFs refuses to create the unsaved directory.
type lockedUnsavedFs struct {
	afero.Fs
}

func (l lockedUnsavedFs) MkdirAll(path string, perm os.FileMode) error {
	if strings.Contains(path, "/unsaved") {
		return os.ErrPermission
	}
	return l.Fs.MkdirAll(path, perm)
}

func TestSaveRefusedWhenLiveTraceCannotBePreserved(t *testing.T) {
	mem := afero.NewMemMapFs()
	first := sampleRun()

	_, err := newSaver(t, corruptFs{mem}, nil, nil).Save(context.Background(), first)
	require.Error(t, err)

	second := sampleRun()
	second.Rows = second.Rows[:1]
	_, err = newSaver(t, lockedUnsavedFs{mem}, nil, nil).Save(context.Background(), second)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, ErrUnsavedLive), "got %v", err)

	live, err := afero.ReadFile(mem, filepath.Join(dataDir, "data.csv"))
	require.NoError(t, err)
	assert.Equal(t, expectedCSV(t, first.Rows), live)
}

func TestSaveScansTrials(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := newSaver(t, fs, nil, nil)

	first, err := s.Save(context.Background(), sampleRun())
	require.NoError(t, err)
	second, err := s.Save(context.Background(), sampleRun())
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(first.Dir, "_01"))
	assert.True(t, strings.HasSuffix(second.Dir, "_02"))
	assert.Equal(t, 2, second.Trial)
}

func TestSaveDirectoryExists(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, mem.MkdirAll(filepath.Join(dataDir, "runs", "20240309_R042_01"), 0o755))
	s := newSaver(t, blindFs{mem}, nil, nil)

	_, err := s.Save(context.Background(), sampleRun())
	assert.True(t, errors.IsCode(err, ErrDirectoryExists), "got %v", err)
}

func TestSaveNamesDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := newSaver(t, fs, nil, nil)

	run := sampleRun()
	delete(run.Variables, "animal_id")
	run.Variables["sample_name"] = variables.String("left lung")

	rec, err := s.Save(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, "20240309_left-lung_0000_01", filepath.Base(rec.Dir))
	assert.Equal(t, filepath.Join(rec.Dir, "20240309_left-lung_0000_01.csv"), rec.CSVPath)
}

func TestSaveWritesInformationAndAttachments(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, dataDir+"/protocols/ramp.txt", []byte("End\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, dataDir+"/calibration.toml", []byte("gain = [1]\n"), 0o644))
	index := &recordingIndex{}
	s := newSaver(t, fs, nil, index)

	rec, err := s.Save(context.Background(), sampleRun())
	require.NoError(t, err)

	info, err := afero.ReadFile(fs, rec.InfoPath)
	require.NoError(t, err)
	assert.Contains(t, string(info), "Created on: 2024-03-09 14:05:00\n")
	assert.Contains(t, string(info), "Total time: 0.100 s\n")
	assert.Contains(t, string(info), "Total steps: 3\n")
	assert.Contains(t, string(info), "Animal ID: R042\n")
	assert.Contains(t, string(info), "Outcome: completed\n")

	protocol, err := afero.ReadFile(fs, filepath.Join(rec.Dir, "ramp.txt"))
	require.NoError(t, err)
	assert.Equal(t, "End\n", string(protocol))

	exists, err := afero.Exists(fs, filepath.Join(rec.Dir, "calibration.toml"))
	require.NoError(t, err)
	assert.True(t, exists)

	require.Len(t, index.entries, 1)
	assert.Equal(t, rec.Dir, index.entries[0].Dir)
	assert.Equal(t, 3, index.entries[0].Rows)
	assert.Equal(t, 100*time.Millisecond, index.entries[0].Duration)
}

func TestSaveMovesVariablesLog(t *testing.T) {
	fs := afero.NewMemMapFs()
	log := variables.NewLog(fs, dataDir+"/variables.txt")
	store := variables.NewStore(log)
	require.NoError(t, store.Set("peak", variables.Float(12.5)))

	s := newSaver(t, fs, log, nil)
	run := sampleRun()
	run.Variables = store.Snapshot()
	run.Names = store.Names()

	rec, err := s.Save(context.Background(), run)
	require.NoError(t, err)

	saved, err := afero.ReadFile(fs, rec.VariablesPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(saved)), "\n")
	require.Len(t, lines, 2, "the write during the run plus the final value")
	assert.True(t, strings.HasSuffix(lines[0], ", peak, 12.5"))
	assert.True(t, strings.HasSuffix(lines[1], ", peak, 12.5"))

	live, err := fs.Stat(dataDir + "/variables.txt")
	require.NoError(t, err)
	assert.Zero(t, live.Size())
}

func TestWriteCSV(t *testing.T) {
	rows := sampleRows()
	rows[0].Step = 0
	rows[0].TargetPressure = nil
	rows[0].Elapsed = telemetry.IdleElapsed

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows[:1]))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(Header, ","), lines[0])
	assert.Equal(t, "-1,1013.25,22,1,2,3,4,10,20,30,supply,neutral,,,false,", lines[1])
}

func TestConfigValidate(t *testing.T) {
	_, err := NewSaver(Config{}, afero.NewMemMapFs(), nil, nil)
	assert.True(t, errors.IsCode(err, ErrInvalidConfig))
}
