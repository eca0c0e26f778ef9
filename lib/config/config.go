package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/go-i2p/go-apitransport/lib/util"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"github.com/spf13/viper"
)

var (
	CfgFile string
	log     = logger.GetGoI2PLogger()
)

// BaseDirName is the per-user configuration directory below $HOME.
const BaseDirName = ".go-apitransport"

// InitConfig points viper at the configuration file, applies the defaults
// and reads the file, creating the default one when it does not exist yet.
func InitConfig() error {
	if CfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(CfgFile)
	} else {
		viper.AddConfigPath(BuildConfigDirPath())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	setDefaults()

	return handleConfigFile()
}

func setDefaults() {
	d := Defaults()
	viper.SetDefault("base_dir", d.BaseDir)
	viper.SetDefault("log.level", d.Log.Level)

	viper.SetDefault("direct.timeout", d.Direct.Timeout)

	viper.SetDefault("relay.ipc_url", d.Relay.IPCURL)
	viper.SetDefault("relay.timeout", d.Relay.Timeout)
	viper.SetDefault("relay.rate_limit", d.Relay.RateLimit)
	viper.SetDefault("relay.burst", d.Relay.Burst)

	viper.SetDefault("status.ipc_url", d.Status.IPCURL)
	viper.SetDefault("status.reconnect_interval", d.Status.ReconnectInterval)

	viper.SetDefault("probe.url", d.Probe.URL)
	viper.SetDefault("probe.interval", d.Probe.Interval)

	viper.SetDefault("metrics.address", d.Metrics.Address)
}

// NewConfigFromViper creates a Config from the current viper settings.
func NewConfigFromViper() *Config {
	return &Config{
		BaseDir: viper.GetString("base_dir"),
		Log: LogConfig{
			Level: viper.GetString("log.level"),
		},
		Direct: DirectConfig{
			Timeout: viper.GetDuration("direct.timeout"),
		},
		Relay: RelayConfig{
			IPCURL:    viper.GetString("relay.ipc_url"),
			Timeout:   viper.GetDuration("relay.timeout"),
			RateLimit: viper.GetFloat64("relay.rate_limit"),
			Burst:     viper.GetInt("relay.burst"),
		},
		Status: StatusConfig{
			IPCURL:            viper.GetString("status.ipc_url"),
			ReconnectInterval: viper.GetDuration("status.reconnect_interval"),
		},
		Probe: ProbeConfig{
			URL:      viper.GetString("probe.url"),
			Interval: viper.GetDuration("probe.interval"),
		},
		Metrics: MetricsConfig{
			Address: viper.GetString("metrics.address"),
		},
	}
}

// Reload re-reads the configuration file into viper.
func Reload() error {
	if err := viper.ReadInConfig(); err != nil {
		return oops.Wrapf(err, "unable to reload config file %s", viper.ConfigFileUsed())
	}
	log.WithFields(logger.Fields{
		"at":     "config.Reload",
		"reason": "config_reloaded",
		"file":   viper.ConfigFileUsed(),
	}).Debug("reloaded configuration")
	return nil
}

// Watch calls onChange after viper re-read the configuration file because
// it was written. Only write events are forwarded.
func Watch(onChange func()) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) {
			return
		}
		log.WithFields(logger.Fields{
			"at":     "config.Watch",
			"reason": "config_file_changed",
			"file":   e.Name,
		}).Debug("configuration file changed")
		onChange()
	})
	viper.WatchConfig()
}

func createDefaultConfig(defaultConfigDir string) error {
	defaultConfigFile := filepath.Join(defaultConfigDir, "config.yaml")
	if err := os.MkdirAll(defaultConfigDir, 0o755); err != nil {
		return oops.Wrapf(err, "could not create config directory %s", defaultConfigDir)
	}
	if err := viper.WriteConfigAs(defaultConfigFile); err != nil {
		return oops.Wrapf(err, "could not write default config file %s", defaultConfigFile)
	}
	viper.SetConfigFile(defaultConfigFile)
	log.WithFields(logger.Fields{
		"at":     "config.createDefaultConfig",
		"reason": "default_config_created",
		"file":   defaultConfigFile,
	}).Debug("created default configuration")
	return nil
}

func handleConfigFile() error {
	err := viper.ReadInConfig()
	if err == nil {
		log.WithFields(logger.Fields{
			"at":     "config.InitConfig",
			"reason": "config_loaded",
			"file":   viper.ConfigFileUsed(),
		}).Debug("using config file")
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if !errors.As(err, &notFound) {
		if CfgFile != "" && errors.Is(err, os.ErrNotExist) {
			return oops.Wrapf(err, "config file %s is not found", CfgFile)
		}
		return oops.Wrapf(err, "error reading config file")
	}
	if CfgFile != "" {
		return oops.Wrapf(err, "config file %s is not found", CfgFile)
	}
	return createDefaultConfig(BuildConfigDirPath())
}

// BuildConfigDirPath returns $HOME/.go-apitransport.
func BuildConfigDirPath() string {
	return filepath.Join(util.UserHome(), BaseDirName)
}
