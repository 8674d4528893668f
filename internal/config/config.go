package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel     = LogLevelInfo
	DefaultDataDir      = "/var/lib/rigctl"
	DefaultBackend      = "sim"
	defaultEnvPrefix    = "RIGCTL"
	defaultConfigName   = "rigctl"
	configEnvVar        = "RIGCTL_CONFIG"
	calibratedChannels  = 3
	maxBridgeCapacity   = 1 << 16
	defaultListenAddr   = ":5005"
	defaultSupplyPSI    = 50.0
	defaultTimeConstant = 2000
)

type Config struct {
	LogLevel        string
	DataDir         string
	ProtocolDir     string
	SampleName      string
	CalibrationFile string
	// Variables are preset into the variable store before every run.
	Variables map[string]string

	Telemetry   TelemetryConfig
	Protocol    ProtocolConfig
	Console     ConsoleConfig
	Index       IndexConfig
	Metrics     MetricsConfig
	Calibration CalibrationConfig
	Hardware    HardwareConfig
}

type TelemetryConfig struct {
	Interval       time.Duration
	BridgeCapacity int
	ForceChannel   int
	AngleChannel   int
}

type ProtocolConfig struct {
	FeedbackChannel  int
	PollInterval     time.Duration
	ActuationTimeout time.Duration
}

type ConsoleConfig struct {
	Interval time.Duration
}

type IndexConfig struct {
	Enabled bool
	Path    string
}

type MetricsConfig struct {
	// Address serves /metrics when set.
	Address string
}

type CalibrationConfig struct {
	Gain   []float64
	Offset []float64
}

type HardwareConfig struct {
	Backend        string
	Listen         string
	SupplyPressure float64
	TimeConstant   time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", string(DefaultLogLevel))
	v.SetDefault("data_dir", DefaultDataDir)
	v.SetDefault("protocol_dir", "")
	v.SetDefault("sample_name", "")
	v.SetDefault("calibration_file", "")

	v.SetDefault("telemetry.interval", 50)
	v.SetDefault("telemetry.bridge_capacity", 256)
	v.SetDefault("telemetry.force_channel", 0)
	v.SetDefault("telemetry.angle_channel", 1)

	v.SetDefault("protocol.feedback_channel", 0)
	v.SetDefault("protocol.poll_interval", 20)
	v.SetDefault("protocol.actuation_timeout", 0)

	v.SetDefault("console.interval", 200)

	v.SetDefault("index.enabled", true)
	v.SetDefault("index.path", "")

	v.SetDefault("metrics.address", "")

	v.SetDefault("calibration.gain", []float64{})
	v.SetDefault("calibration.offset", []float64{})

	v.SetDefault("hardware.backend", DefaultBackend)
	v.SetDefault("hardware.listen", defaultListenAddr)
	v.SetDefault("hardware.supply_pressure", defaultSupplyPSI)
	v.SetDefault("hardware.time_constant", defaultTimeConstant)
}

// RegisterFlags adds the flags Load understands to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to the configuration file")
	flags.String("log-level", string(DefaultLogLevel), "Log level (debug, info, warn, error)")
	flags.String("data-dir", DefaultDataDir, "Directory for live files and saved runs")
	flags.String("sample", "", "Sample name used in run directory names")
	flags.String("backend", DefaultBackend, "Hardware backend (sim, net)")
	flags.String("listen", defaultListenAddr, "Listen address for the net pressure receiver")
	flags.String("metrics-address", "", "Serve Prometheus metrics on this address")
	flags.StringToString("var", nil, "Preset a variable (name=value), repeatable")
}

var flagKeys = map[string]string{
	"log-level":       "log_level",
	"data-dir":        "data_dir",
	"sample":          "sample_name",
	"backend":         "hardware.backend",
	"listen":          "hardware.listen",
	"metrics-address": "metrics.address",
}

// Load reads rigctl.toml, the environment and flags, in increasing order of
// precedence. flags may be nil.
func Load(flags *pflag.FlagSet, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: defaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v, o, flags); err != nil {
		return nil, err
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errFactory.Wrap(errors.ErrReadConfig, err)
				}
			}
		}
	}

	cfg := fromViper(v)

	presets, err := filePresets(v.ConfigFileUsed())
	if err != nil {
		return nil, err
	}
	if presets != nil {
		cfg.Variables = presets
	}

	if flags != nil && flags.Lookup("var") != nil {
		presets, err := flags.GetStringToString("var")
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
		for name, value := range presets {
			cfg.Variables[name] = value
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func readConfigFile(v *viper.Viper, o *options, flags *pflag.FlagSet) error {
	errFactory := errors.New()

	path := o.configPath
	if flags != nil {
		if p, err := flags.GetString("config"); err == nil && p != "" {
			path = p
		}
	}
	if path == "" {
		path = os.Getenv(configEnvVar)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(defaultConfigName)
		v.SetConfigType("toml")
		paths := o.searchPaths
		if paths == nil {
			paths = defaultSearchPaths()
		}
		for _, p := range paths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errFactory.Wrap(errors.ErrReadConfig, err)
	}

	return nil
}

// filePresets re-reads the [variables] table of a TOML config file. Viper
// lowercases map keys, but variable names are case-sensitive. It returns nil
// when no TOML file was read.
func filePresets(path string) (map[string]string, error) {
	if path == "" || !strings.EqualFold(filepath.Ext(path), ".toml") {
		return nil, nil
	}

	errFactory := errors.New()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	var doc struct {
		Variables map[string]any `toml:"variables"`
	}
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	presets := make(map[string]string, len(doc.Variables))
	for name, value := range doc.Variables {
		presets[name] = fmt.Sprint(value)
	}
	return presets, nil
}

func defaultSearchPaths() []string {
	paths := []string{"/etc/rigctl"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "rigctl"))
	}
	return append(paths, ".")
}

func millis(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt64(key)) * time.Millisecond
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		LogLevel:        strings.ToLower(v.GetString("log_level")),
		DataDir:         v.GetString("data_dir"),
		ProtocolDir:     v.GetString("protocol_dir"),
		SampleName:      v.GetString("sample_name"),
		CalibrationFile: v.GetString("calibration_file"),
		Variables:       map[string]string{},
		Telemetry: TelemetryConfig{
			Interval:       millis(v, "telemetry.interval"),
			BridgeCapacity: v.GetInt("telemetry.bridge_capacity"),
			ForceChannel:   v.GetInt("telemetry.force_channel"),
			AngleChannel:   v.GetInt("telemetry.angle_channel"),
		},
		Protocol: ProtocolConfig{
			FeedbackChannel:  v.GetInt("protocol.feedback_channel"),
			PollInterval:     millis(v, "protocol.poll_interval"),
			ActuationTimeout: time.Duration(v.GetFloat64("protocol.actuation_timeout") * float64(time.Second)),
		},
		Console: ConsoleConfig{
			Interval: millis(v, "console.interval"),
		},
		Index: IndexConfig{
			Enabled: v.GetBool("index.enabled"),
			Path:    v.GetString("index.path"),
		},
		Metrics: MetricsConfig{
			Address: v.GetString("metrics.address"),
		},
		Calibration: CalibrationConfig{
			Gain:   floats(v.Get("calibration.gain")),
			Offset: floats(v.Get("calibration.offset")),
		},
		Hardware: HardwareConfig{
			Backend:        strings.ToLower(v.GetString("hardware.backend")),
			Listen:         v.GetString("hardware.listen"),
			SupplyPressure: v.GetFloat64("hardware.supply_pressure"),
			TimeConstant:   millis(v, "hardware.time_constant"),
		},
	}

	for name, value := range v.GetStringMapString("variables") {
		cfg.Variables[name] = value
	}
	if cfg.ProtocolDir == "" {
		cfg.ProtocolDir = filepath.Join(cfg.DataDir, "protocols")
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = filepath.Join(cfg.DataDir, "runs.db")
	}

	return cfg
}

// floats accepts the []any a TOML array decodes to as well as []float64.
func floats(raw any) []float64 {
	switch vals := raw.(type) {
	case []float64:
		return vals
	case []any:
		out := make([]float64, 0, len(vals))
		for _, x := range vals {
			switch n := x.(type) {
			case float64:
				out = append(out, n)
			case int64:
				out = append(out, float64(n))
			case int:
				out = append(out, float64(n))
			}
		}
		return out
	default:
		return nil
	}
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.DataDir == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "data_dir must not be empty")
	}
	if c.Telemetry.Interval <= 0 || c.Protocol.PollInterval <= 0 || c.Console.Interval <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidInterval, "intervals must be positive")
	}
	if c.Telemetry.BridgeCapacity <= 0 || c.Telemetry.BridgeCapacity > maxBridgeCapacity {
		return errFactory.WithData(errors.ErrInvalidConfig, c.Telemetry.BridgeCapacity)
	}
	for _, ch := range []int{c.Telemetry.ForceChannel, c.Telemetry.AngleChannel, c.Protocol.FeedbackChannel} {
		if ch < 0 || ch >= calibratedChannels {
			return errFactory.WithData(errors.ErrInvalidChannel, ch)
		}
	}
	if c.Protocol.ActuationTimeout < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "protocol.actuation_timeout must not be negative")
	}
	if len(c.Calibration.Gain) > calibratedChannels || len(c.Calibration.Offset) > calibratedChannels {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "at most 3 calibration coefficients")
	}

	switch c.Hardware.Backend {
	case "sim":
	case "net":
		if c.Hardware.Listen == "" {
			return errFactory.WithMessage(errors.ErrInvalidConfig, "net backend requires hardware.listen")
		}
	default:
		return errFactory.WithData(errors.ErrInvalidBackend, c.Hardware.Backend)
	}

	return nil
}
