// Package config provides configuration and CLI argument parsing for the
// audio capture core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the capture core. Defaults are
// overlaid, in increasing priority, by an optional YAML file, a .env file,
// and CLI flags.
type Config struct {
	// MicDeviceID selects the capture device; empty uses the system default.
	MicDeviceID string `yaml:"mic_device_id"`

	// SysDeviceID selects the system-audio loopback/tap target. On darwin,
	// the sentinel "sck" forces the ScreenCaptureKit backend even when the
	// CoreAudio process tap would otherwise be tried first.
	SysDeviceID string `yaml:"sys_device_id"`

	// EnableMic and EnableSystem toggle each capture pipeline independently;
	// both may run at once.
	EnableMic    bool `yaml:"enable_mic"`
	EnableSystem bool `yaml:"enable_system"`

	// HighQualityResample swaps in the polyphase anti-aliasing resampler in
	// place of the default zero-latency streaming one.
	HighQualityResample bool `yaml:"high_quality_resample"`

	// MetricsAddr, if non-empty, serves Prometheus metrics at that address
	// (e.g. ":9090"). Empty disables the exporter.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`

	// ConfigFile is the path to an optional YAML overlay; set via
	// --config and not itself read from that file.
	ConfigFile string `yaml:"-"`

	// ListDevices, when set via --list-devices, tells the caller to print
	// available input/output devices and exit instead of starting capture.
	ListDevices bool `yaml:"-"`
}

// DefaultConfig returns a configuration with sensible defaults: microphone
// capture only, the zero-latency resampler, metrics disabled.
func DefaultConfig() *Config {
	return &Config{
		EnableMic:           true,
		EnableSystem:        false,
		HighQualityResample: false,
		MetricsAddr:         "",
		LogLevel:            "info",
	}
}

// ParseFlags builds a Config from defaults, an optional YAML file, a .env
// overlay, and CLI flags, in that priority order (later overrides earlier).
func ParseFlags(args []string) (*Config, error) {
	cfg := DefaultConfig()

	flags := pflag.NewFlagSet("sttcapture", pflag.ContinueOnError)

	configFile := flags.String("config", "", "Path to a YAML config file to overlay onto the defaults")
	envFile := flags.String("env-file", ".env", "Path to a .env file whose STTCAPTURE_* values overlay the YAML file (missing file is not an error)")

	micDevice := flags.String("mic-device", cfg.MicDeviceID, "Microphone device ID (empty uses the system default)")
	sysDevice := flags.String("sys-device", cfg.SysDeviceID, "System-audio device ID, or \"sck\" to force ScreenCaptureKit on macOS")
	enableMic := flags.Bool("mic", cfg.EnableMic, "Enable microphone capture")
	enableSystem := flags.Bool("system", cfg.EnableSystem, "Enable system-audio capture")
	hqResample := flags.Bool("hq-resample", cfg.HighQualityResample, "Use the polyphase anti-aliasing resampler instead of the zero-latency streaming one")
	metricsAddr := flags.String("metrics-addr", cfg.MetricsAddr, "Address to serve Prometheus metrics on (empty disables the exporter)")
	logLevel := flags.String("log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	listDevices := flags.Bool("list-devices", false, "List available input/output devices and exit")

	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load env file %s: %w", *envFile, err)
	}

	if *configFile != "" {
		if err := cfg.loadYAML(*configFile); err != nil {
			return nil, err
		}
		cfg.ConfigFile = *configFile
	}

	cfg.applyEnv()

	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "mic-device":
			cfg.MicDeviceID = *micDevice
		case "sys-device":
			cfg.SysDeviceID = *sysDevice
		case "mic":
			cfg.EnableMic = *enableMic
		case "system":
			cfg.EnableSystem = *enableSystem
		case "hq-resample":
			cfg.HighQualityResample = *hqResample
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	cfg.ListDevices = *listDevices
	if cfg.ListDevices {
		return cfg, nil
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overlays STTCAPTURE_* environment variables (populated either by
// the process environment or by the .env file ParseFlags already loaded)
// onto c, between the YAML file and CLI flags in priority order.
func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("STTCAPTURE_MIC_DEVICE"); ok {
		c.MicDeviceID = v
	}
	if v, ok := os.LookupEnv("STTCAPTURE_SYS_DEVICE"); ok {
		c.SysDeviceID = v
	}
	if v, ok := os.LookupEnv("STTCAPTURE_MIC"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.EnableMic = b
		}
	}
	if v, ok := os.LookupEnv("STTCAPTURE_SYSTEM"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.EnableSystem = b
		}
	}
	if v, ok := os.LookupEnv("STTCAPTURE_HQ_RESAMPLE"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.HighQualityResample = b
		}
	}
	if v, ok := os.LookupEnv("STTCAPTURE_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	if v, ok := os.LookupEnv("STTCAPTURE_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	if !c.EnableMic && !c.EnableSystem {
		return fmt.Errorf("at least one of mic or system capture must be enabled")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	return nil
}

// DefaultConfigPath returns the conventional per-user config file location,
// used when --config is not given and the caller wants to probe for one.
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".sttcapture", "config.yaml")
}
