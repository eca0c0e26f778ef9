package config

import (
	"net"
	"time"

	"github.com/go-i2p/go-apitransport/lib/jsonrpc"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
)

// DefaultIPCURL is the tunnel daemon's JSON-RPC endpoint.
const DefaultIPCURL = "ws://127.0.0.1:45871/jsonrpc"

// Config holds every setting of the daemon. The yaml tags match the viper
// keys so the effective configuration can be printed in file form.
type Config struct {
	// BaseDir is where the configuration file lives
	BaseDir string        `yaml:"base_dir"`
	Log     LogConfig     `yaml:"log"`
	Direct  DirectConfig  `yaml:"direct"`
	Relay   RelayConfig   `yaml:"relay"`
	Status  StatusConfig  `yaml:"status"`
	Probe   ProbeConfig   `yaml:"probe"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error
	// Default: warn
	Level string `yaml:"level"`
}

type DirectConfig struct {
	// Timeout of one direct round trip
	// Default: 10 seconds
	Timeout time.Duration `yaml:"timeout"`
}

type RelayConfig struct {
	// IPCURL is the tunnel daemon endpoint relayed requests are sent to
	IPCURL string `yaml:"ipc_url"`
	// Timeout of one relayed round trip
	// Default: 15 seconds
	Timeout time.Duration `yaml:"timeout"`
	// RateLimit in relayed requests per second, negative disables limiting
	// Default: 20
	RateLimit float64 `yaml:"rate_limit"`
	// Burst above RateLimit
	// Default: 5
	Burst int `yaml:"burst"`
}

type StatusConfig struct {
	// IPCURL is the tunnel daemon endpoint status is subscribed from
	IPCURL string `yaml:"ipc_url"`
	// ReconnectInterval between subscription attempts
	// Default: 5 seconds
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

type ProbeConfig struct {
	// URL requested periodically through the selected transport, empty disables probing
	URL string `yaml:"url"`
	// Interval between probes
	// Default: 30 seconds
	Interval time.Duration `yaml:"interval"`
}

type MetricsConfig struct {
	// Address of the Prometheus listener, empty disables it
	// Default: 127.0.0.1:9464
	Address string `yaml:"address"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		BaseDir: BuildConfigDirPath(),
		Log:     LogConfig{Level: "warn"},
		Direct:  DirectConfig{Timeout: 10 * time.Second},
		Relay: RelayConfig{
			IPCURL:    DefaultIPCURL,
			Timeout:   15 * time.Second,
			RateLimit: 20,
			Burst:     5,
		},
		Status: StatusConfig{
			IPCURL:            DefaultIPCURL,
			ReconnectInterval: 5 * time.Second,
		},
		Probe:   ProbeConfig{Interval: 30 * time.Second},
		Metrics: MetricsConfig{Address: "127.0.0.1:9464"},
	}
}

// Validate checks cfg and returns an error describing the first invalid
// value found.
func Validate(cfg *Config) error {
	if cfg == nil {
		return newValidationError("config is nil")
	}
	validators := []func() error{
		func() error { return validateLog(cfg.Log) },
		func() error { return validateDirect(cfg.Direct) },
		func() error { return validateRelay(cfg.Relay) },
		func() error { return validateStatus(cfg.Status) },
		func() error { return validateProbe(cfg.Probe) },
		func() error { return validateMetrics(cfg.Metrics) },
	}
	for _, validator := range validators {
		if err := validator(); err != nil {
			log.WithFields(logger.Fields{
				"at":     "config.Validate",
				"reason": "invalid_config",
				"error":  err.Error(),
			}).Error("configuration validation failed")
			return err
		}
	}
	return nil
}

func validateLog(l LogConfig) error {
	if _, err := logrus.ParseLevel(l.Level); err != nil {
		return newValidationError("log.level " + l.Level + " is not a log level")
	}
	return nil
}

func validateDirect(d DirectConfig) error {
	if d.Timeout <= 0 {
		return newValidationError("direct.timeout must be positive")
	}
	return nil
}

func validateRelay(r RelayConfig) error {
	if err := jsonrpc.ValidateURL(r.IPCURL); err != nil {
		return oops.Wrapf(err, "configuration validation failed: relay.ipc_url")
	}
	if r.Timeout <= 0 {
		return newValidationError("relay.timeout must be positive")
	}
	if r.RateLimit == 0 {
		return newValidationError("relay.rate_limit must not be zero, use a negative value to disable limiting")
	}
	if r.Burst < 1 {
		return newValidationError("relay.burst must be at least 1")
	}
	return nil
}

func validateStatus(s StatusConfig) error {
	if err := jsonrpc.ValidateURL(s.IPCURL); err != nil {
		return oops.Wrapf(err, "configuration validation failed: status.ipc_url")
	}
	if s.ReconnectInterval <= 0 {
		return newValidationError("status.reconnect_interval must be positive")
	}
	return nil
}

func validateProbe(p ProbeConfig) error {
	if p.URL != "" && p.Interval <= 0 {
		return newValidationError("probe.interval must be positive when probe.url is set")
	}
	return nil
}

func validateMetrics(m MetricsConfig) error {
	if m.Address == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.Address); err != nil {
		return newValidationError("metrics.address must be host:port")
	}
	return nil
}

// validationError is returned when configuration validation fails
type validationError struct {
	message string
}

func newValidationError(message string) error {
	return &validationError{message: message}
}

func (e *validationError) Error() string {
	return "configuration validation failed: " + e.message
}
