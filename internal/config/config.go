// Package config loads runtime configuration for obssync, grounded on
// go-server-3/internal/config: viper defaults, overridden by an optional
// YAML file and OBSSYNC_* environment variables. cmd/obssync's
// command-line flags override the persisted settings record
// (internal/settings), not this Config.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for one obssync process.
type Config struct {
	Role    RoleConfig    `mapstructure:"role"`
	OBS     OBSConfig     `mapstructure:"obs"`
	Master  MasterConfig  `mapstructure:"master"`
	Slave   SlaveConfig   `mapstructure:"slave"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
	Boundary BoundaryConfig `mapstructure:"boundary"`
}

// RoleConfig selects master or slave operation and the settings file path.
type RoleConfig struct {
	Mode         string `mapstructure:"mode"`
	SettingsPath string `mapstructure:"settings_path"`
	TempDir      string `mapstructure:"temp_dir"`
}

// OBSConfig holds the local OBS WebSocket connection defaults.
type OBSConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
}

// MasterConfig holds master-role settings.
type MasterConfig struct {
	ListenAddr          string        `mapstructure:"listen_addr"`
	DefaultSyncTargets  []string      `mapstructure:"default_sync_targets"`
	HeartbeatInterval   time.Duration `mapstructure:"heartbeat_interval"`
}

// SlaveConfig holds slave-role settings.
type SlaveConfig struct {
	MasterHost string `mapstructure:"master_host"`
	MasterPort int    `mapstructure:"master_port"`
}

// MetricsConfig controls the Prometheus metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
	Endpoint   string `mapstructure:"endpoint"`
}

// LoggingConfig controls zap logger level/encoding.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// BoundaryConfig is loaded but not read: the shell-facing HTTP
// status/control server always binds boundary.DefaultAddr.
type BoundaryConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load reads defaults, then an optional obssync.yaml, then OBSSYNC_*
// environment variables, via a fresh viper instance.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("role.mode", "master")
	v.SetDefault("role.settings_path", "obssync-settings.yaml")
	v.SetDefault("role.temp_dir", "")

	v.SetDefault("obs.host", "localhost")
	v.SetDefault("obs.port", 4455)
	v.SetDefault("obs.password", "")

	v.SetDefault("master.listen_addr", ":7451")
	v.SetDefault("master.default_sync_targets", []string{"source", "program"})
	v.SetDefault("master.heartbeat_interval", 5*time.Second)

	v.SetDefault("slave.master_host", "localhost")
	v.SetDefault("slave.master_port", 7451)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen_addr", ":9469")
	v.SetDefault("metrics.endpoint", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetDefault("boundary.listen_addr", ":7450")

	v.SetConfigName("obssync")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.config/obssync")
	v.SetEnvPrefix("OBSSYNC")
	v.AutomaticEnv()

	_ = v.ReadInConfig() // optional: absence is not an error

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
