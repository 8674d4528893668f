package rig

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/meshalyzer/rigctl/internal/config"
	"codeberg.org/meshalyzer/rigctl/internal/errors"
	"codeberg.org/meshalyzer/rigctl/internal/hardware"
	"codeberg.org/meshalyzer/rigctl/internal/logger"
	"codeberg.org/meshalyzer/rigctl/internal/metrics"
	"codeberg.org/meshalyzer/rigctl/internal/persistence"
	"codeberg.org/meshalyzer/rigctl/internal/protocol"
	"codeberg.org/meshalyzer/rigctl/internal/runindex"
	"codeberg.org/meshalyzer/rigctl/internal/telemetry"
	"codeberg.org/meshalyzer/rigctl/internal/variables"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const (
	backendSim        = "sim"
	backendNet        = "net"
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Rig owns every long-lived collaborator of the controller: hardware, the
// acquisition loop, the variable store, persistence and the interpreter.
type Rig struct {
	cfg      *config.Config
	fs       afero.Fs
	registry *prometheus.Registry

	sim       *hardware.Sim
	netSensor *hardware.NetSensor
	valves    [2]hardware.Valve

	State       *telemetry.RunState
	Trace       *telemetry.Trace
	Bridge      *telemetry.Bridge
	Loop        *telemetry.Loop
	Store       *variables.Store
	Index       runindex.Index
	Interpreter *protocol.Interpreter
}

// New assembles a rig from cfg. Close must be called to release the run
// index.
func New(cfg *config.Config, opts ...Option) (*Rig, error) {
	errFactory := errors.New()

	if cfg == nil {
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "nil config")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.fs == nil {
		o.fs = afero.NewOsFs()
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
		o.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	r := &Rig{
		cfg:      cfg,
		fs:       o.fs,
		registry: o.registry,
		State:    &telemetry.RunState{},
		Trace:    telemetry.NewTrace(),
	}

	src, err := r.initHardware()
	if err != nil {
		return nil, err
	}

	telemetryStats := telemetry.NewStats(r.registry)
	r.Bridge = telemetry.NewBridge(cfg.Telemetry.BridgeCapacity, telemetryStats.BridgeDropped)

	r.Loop, err = telemetry.NewLoop(telemetry.Config{
		Interval:       cfg.Telemetry.Interval,
		BridgeCapacity: cfg.Telemetry.BridgeCapacity,
	}, src, r.State, r.Trace, r.Bridge, telemetryStats)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitFailed, err)
	}

	persistCfg := persistence.Config{
		DataDir:         cfg.DataDir,
		SampleName:      cfg.SampleName,
		CalibrationFile: cfg.CalibrationFile,
	}
	varLog := variables.NewLog(r.fs, persistCfg.VariablesLogPath())
	r.Store = variables.NewStore(varLog)
	if err := r.applyPresets(); err != nil {
		return nil, err
	}

	evaluator, err := metrics.NewEvaluator(metrics.Config{
		ForceChannel: cfg.Telemetry.ForceChannel,
		AngleChannel: cfg.Telemetry.AngleChannel,
	})
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitFailed, err)
	}

	actuator, err := protocol.NewActuator(protocol.Config{
		FeedbackChannel:  cfg.Protocol.FeedbackChannel,
		PollInterval:     cfg.Protocol.PollInterval,
		ActuationTimeout: cfg.Protocol.ActuationTimeout,
	}, r.valves[0], r.valves[1], r.Loop, r.State)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitFailed, err)
	}

	r.Index, err = runindex.New(IndexConfig(cfg), logger.Default())
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitFailed, err)
	}

	saver, err := persistence.NewSaver(persistCfg, r.fs, varLog, r.Index)
	if err != nil {
		_ = r.Index.Close()
		return nil, errFactory.Wrap(errors.ErrInitFailed, err)
	}

	r.Interpreter, err = protocol.NewInterpreter(protocol.Deps{
		State:     r.State,
		Trace:     r.Trace,
		Store:     r.Store,
		Evaluator: evaluator,
		Actuator:  actuator,
		Saver:     saver,
		Stats:     protocol.NewStats(r.registry),
	})
	if err != nil {
		_ = r.Index.Close()
		return nil, errFactory.Wrap(errors.ErrInitFailed, err)
	}

	logger.Info().
		Str("backend", cfg.Hardware.Backend).
		Str("data_dir", cfg.DataDir).
		Int("presets", len(cfg.Variables)).
		Msg("Rig initialized")

	return r, nil
}

// IndexConfig derives the run index settings from cfg.
func IndexConfig(cfg *config.Config) runindex.Config {
	indexCfg := runindex.DefaultConfig(cfg.DataDir)
	indexCfg.Enabled = cfg.Index.Enabled
	if cfg.Index.Path != "" {
		indexCfg.DBPath = cfg.Index.Path
	}
	return indexCfg
}

func (r *Rig) initHardware() (telemetry.Sources, error) {
	errFactory := errors.New()

	converter, err := hardware.NewLinearConverter(r.cfg.Calibration.Gain, r.cfg.Calibration.Offset)
	if err != nil {
		return telemetry.Sources{}, errFactory.Wrap(errors.ErrInitFailed, err)
	}

	// The valves and ambient reference are always simulated; the net
	// backend only replaces the pressure channels.
	r.sim = hardware.NewSim(hardware.SimConfig{
		SupplyPressure: r.cfg.Hardware.SupplyPressure,
		TimeConstant:   r.cfg.Hardware.TimeConstant,
	})
	r.valves = [2]hardware.Valve{r.sim.Valve(0), r.sim.Valve(1)}

	src := telemetry.Sources{
		Pressure:  r.sim,
		Ambient:   r.sim,
		Converter: converter,
		Valve1:    r.valves[0],
		Valve2:    r.valves[1],
		Clamp:     r.sim,
	}

	switch r.cfg.Hardware.Backend {
	case backendSim:
	case backendNet:
		r.netSensor = hardware.NewNetSensor(r.cfg.Hardware.Listen)
		src.Pressure = r.netSensor
	default:
		return telemetry.Sources{}, errFactory.WithData(errors.ErrInvalidBackend, r.cfg.Hardware.Backend)
	}

	return src, nil
}

// applyPresets loads configured variables. Numeric text becomes an Int or
// Float so protocols can do arithmetic on it.
func (r *Rig) applyPresets() error {
	for name, raw := range r.cfg.Variables {
		if err := r.Store.Preset(name, presetValue(raw)); err != nil {
			return errors.New().Wrap(errors.ErrInvalidConfig, err)
		}
	}
	return nil
}

func presetValue(raw string) variables.Value {
	if v, err := variables.Coerce(raw, variables.KindInt); err == nil {
		return v
	}
	if v, err := variables.Coerce(raw, variables.KindFloat); err == nil {
		return v
	}
	return variables.String(strings.TrimSpace(raw))
}

// Registry exposes the rig metrics.
func (r *Rig) Registry() *prometheus.Registry {
	return r.registry
}

// NetSensor returns the network pressure receiver, or nil on the sim
// backend.
func (r *Rig) NetSensor() *hardware.NetSensor {
	return r.netSensor
}

// Run drives the acquisition loop, the sensor receiver and the metrics
// endpoint until ctx is cancelled or one of them fails.
func (r *Rig) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return r.Loop.Run(gctx)
	})

	if r.netSensor != nil {
		g.Go(func() error {
			return r.netSensor.Serve(gctx)
		})
	}

	if r.cfg.Metrics.Address != "" {
		g.Go(func() error {
			return r.serveMetrics(gctx)
		})
	}

	return g.Wait()
}

func (r *Rig) serveMetrics(ctx context.Context) error {
	srv := &http.Server{
		Addr:              r.cfg.Metrics.Address,
		Handler:           r.MetricsHandler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("address", srv.Addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.New().Wrap(errors.ErrInitFailed, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}
	<-errCh

	return nil
}

// MetricsHandler serves the rig registry on /metrics.
func (r *Rig) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	return mux
}

// LoadProtocol parses the protocol at path. Relative paths that do not
// exist are looked up in the protocol directory.
func (r *Rig) LoadProtocol(path string) (*protocol.Program, error) {
	if !filepath.IsAbs(path) {
		if _, err := r.fs.Stat(path); os.IsNotExist(err) && r.cfg.ProtocolDir != "" {
			path = filepath.Join(r.cfg.ProtocolDir, path)
		}
	}
	return protocol.ParseFile(r.fs, path)
}

// Close stops any running protocol, parks the valves and closes the run
// index.
func (r *Rig) Close() error {
	errFactory := errors.New()

	if r.Interpreter.Running() {
		r.Interpreter.Cancel()
		r.Interpreter.Wait()
	}

	for i, v := range r.valves {
		if err := v.Neutral(); err != nil {
			logger.Warn().Err(err).Int("valve", i+1).Msg("Failed to park valve")
		}
	}

	if err := r.Index.Close(); err != nil {
		return errFactory.Wrap(errors.ErrShutdownFailed, err)
	}

	logger.Debug().Msg("Rig closed")

	return nil
}
