package rig_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codeberg.org/meshalyzer/rigctl/internal/config"
	"codeberg.org/meshalyzer/rigctl/internal/errors"
	"codeberg.org/meshalyzer/rigctl/internal/hardware"
	"codeberg.org/meshalyzer/rigctl/internal/protocol"
	"codeberg.org/meshalyzer/rigctl/internal/rig"
	"codeberg.org/meshalyzer/rigctl/internal/variables"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConfig(t *testing.T) *config.Config {
	t.Helper()

	dataDir := t.TempDir()

	return &config.Config{
		LogLevel:    "info",
		DataDir:     dataDir,
		ProtocolDir: filepath.Join(dataDir, "protocols"),
		SampleName:  "lung",
		Variables:   map[string]string{"animal_id": "R042", "gain": "2", "scale": "0.5"},
		Telemetry: config.TelemetryConfig{
			Interval:       10 * time.Millisecond,
			BridgeCapacity: 64,
			ForceChannel:   0,
			AngleChannel:   1,
		},
		Protocol: config.ProtocolConfig{
			PollInterval: 5 * time.Millisecond,
		},
		Console: config.ConsoleConfig{Interval: 100 * time.Millisecond},
		Index: config.IndexConfig{
			Enabled: true,
			Path:    filepath.Join(dataDir, "runs.db"),
		},
		Hardware: config.HardwareConfig{
			Backend:        "sim",
			SupplyPressure: 50,
			TimeConstant:   50 * time.Millisecond,
		},
	}
}

func startRig(t *testing.T, r *rig.Rig) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
		assert.NoError(t, r.Close())
	})
}

func TestRunProtocolEndToEnd(t *testing.T) {
	cfg := newConfig(t)
	require.NoError(t, os.MkdirAll(cfg.ProtocolDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ProtocolDir, "inflate.txt"), []byte(
		"Inflate: time, 0.2, Both, max_force, peak\n"+
			"Deflate: time, 0.1, Both\n"+
			"End\n"), 0o644))

	r, err := rig.New(cfg)
	require.NoError(t, err)
	startRig(t, r)

	prog, err := r.LoadProtocol("inflate.txt")
	require.NoError(t, err)

	require.NoError(t, r.Interpreter.Start(context.Background(), prog, protocol.Options{}))
	result := r.Interpreter.Wait()

	require.NoError(t, result.Err)
	require.NoError(t, result.SaveErr)
	assert.Equal(t, protocol.Completed, result.Outcome)
	assert.True(t, result.Saved)
	assert.Contains(t, filepath.Base(result.Record.Dir), "_lung_R042_01")
	assert.FileExists(t, result.Record.CSVPath)

	peak, ok := r.Store.Get("peak")
	require.True(t, ok, "max_force binds after the inflate step")
	n, _ := peak.Number()
	assert.Greater(t, n, 0.0)

	entries, err := r.Index.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "R042", entries[0].Animal)
	assert.Equal(t, "inflate.txt", entries[0].Protocol)
}

func TestPresetsAreTyped(t *testing.T) {
	cfg := newConfig(t)
	cfg.Index.Enabled = false

	r, err := rig.New(cfg, rig.WithFs(afero.NewMemMapFs()))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, r.Close()) })

	tests := map[string]variables.Value{
		"animal_id": variables.String("R042"),
		"gain":      variables.Int(2),
		"scale":     variables.Float(0.5),
	}
	for name, want := range tests {
		got, ok := r.Store.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
}

func TestLoadProtocolFallsBackToProtocolDir(t *testing.T) {
	cfg := newConfig(t)
	cfg.Index.Enabled = false
	cfg.ProtocolDir = "/protocols"

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/protocols/check.txt", []byte("no_save\nEnd\n"), 0o644))

	r, err := rig.New(cfg, rig.WithFs(fs))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, r.Close()) })

	prog, err := r.LoadProtocol("check.txt")
	require.NoError(t, err)
	assert.Equal(t, "/protocols/check.txt", prog.Path)
	assert.Len(t, prog.Steps, 2)

	_, err = r.LoadProtocol("missing.txt")
	assert.True(t, errors.IsCode(err, protocol.ErrReadFile))
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := newConfig(t)
	cfg.Hardware.Backend = "usb"

	_, err := rig.New(cfg)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrInvalidBackend))
}

func TestNetBackendReceivesPressure(t *testing.T) {
	cfg := newConfig(t)
	cfg.Index.Enabled = false
	cfg.Hardware.Backend = "net"
	cfg.Hardware.Listen = "127.0.0.1:0"

	r, err := rig.New(cfg)
	require.NoError(t, err)
	require.NotNil(t, r.NetSensor())
	startRig(t, r)

	var addr string
	require.Eventually(t, func() bool {
		if a := r.NetSensor().Addr(); a != nil {
			addr = a.String()
			return true
		}
		return false
	}, time.Second, 5*time.Millisecond)

	conn, err := dialTCP(addr)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(`{"sensors":{"channel_0":12.5}}` + "\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, ok := r.Loop.Latest()
		return ok && snap.Raw[0] == 12.5
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCloseStopsRunningProtocol(t *testing.T) {
	cfg := newConfig(t)
	cfg.Index.Enabled = false

	r, err := rig.New(cfg, rig.WithFs(afero.NewMemMapFs()))
	require.NoError(t, err)

	prog, err := protocol.Parse(strings.NewReader("no_save\nWait_for_user_input: Enter ID, animal_id, string\n"))
	require.NoError(t, err)
	require.NoError(t, r.Interpreter.Start(context.Background(), prog, protocol.Options{}))

	<-r.Interpreter.Prompts()
	require.NoError(t, r.Close())

	assert.False(t, r.Interpreter.Running())
	result := r.Interpreter.Wait()
	assert.Equal(t, protocol.Aborted, result.Outcome)
	assert.False(t, result.Saved)

	r.Loop.Tick()
	snap, ok := r.Loop.Latest()
	require.True(t, ok)
	assert.Equal(t, hardware.Neutral, snap.Valve1)
	assert.Equal(t, hardware.Neutral, snap.Valve2)
}

func TestMetricsHandler(t *testing.T) {
	cfg := newConfig(t)
	cfg.Index.Enabled = false

	r, err := rig.New(cfg, rig.WithFs(afero.NewMemMapFs()))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, r.Close()) })

	r.Loop.Tick()

	rec := httptest.NewRecorder()
	r.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "rigctl_telemetry_ticks_total 1"))
}

func dialTCP(addr string) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, time.Second)
}
