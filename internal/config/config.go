// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// GlobalConfig is the top-level static configuration, rooted at the
// `otus-tap:` key in YAML.
type GlobalConfig struct {
	General     GeneralConfig     `mapstructure:"general" yaml:"general"`
	Node        NodeConfig        `mapstructure:"node" yaml:"node"`
	Control     ControlConfig     `mapstructure:"control" yaml:"control"`
	Performance PerformanceConfig `mapstructure:"performance" yaml:"performance"`
	Protocols   ProtocolsConfig   `mapstructure:"protocols" yaml:"protocols"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
	Reporting   ReportingConfig   `mapstructure:"reporting" yaml:"reporting"`
}

// GeneralConfig holds the leader connection settings (§6).
type GeneralConfig struct {
	LeaderURI           string `mapstructure:"leader_uri" yaml:"leader_uri"`
	LeaderSecret        string `mapstructure:"leader_secret" yaml:"leader_secret"`
	AcceptInsecureCerts bool   `mapstructure:"accept_insecure_certs" yaml:"accept_insecure_certs"`
}

// NodeConfig identifies this tap instance.
type NodeConfig struct {
	ID       string `mapstructure:"id" yaml:"id"` // auto-generated UUID if empty
	Hostname string `mapstructure:"hostname" yaml:"hostname"`
}

// ControlConfig configures the local Unix-domain-socket control plane.
type ControlConfig struct {
	Socket string `mapstructure:"socket" yaml:"socket"`
}

// PerformanceConfig configures broker channel capacities (§6).
type PerformanceConfig struct {
	EthernetBrokerBufferCapacity int `mapstructure:"ethernet_broker_buffer_capacity" yaml:"ethernet_broker_buffer_capacity"`
	WifiBrokerBufferCapacity     int `mapstructure:"wifi_broker_buffer_capacity" yaml:"wifi_broker_buffer_capacity"`
}

// ProtocolsConfig groups per-protocol table tuning.
type ProtocolsConfig struct {
	TCP TCPConfig `mapstructure:"tcp" yaml:"tcp"`
	ARP ARPConfig `mapstructure:"arp" yaml:"arp"`
}

// TCPConfig configures the TCP session table (§6, §4.3.4).
type TCPConfig struct {
	ReassemblyBufferSize  int `mapstructure:"reassembly_buffer_size" yaml:"reassembly_buffer_size"`
	SessionTimeoutSeconds int `mapstructure:"session_timeout_seconds" yaml:"session_timeout_seconds"`
	PipelineSize          int `mapstructure:"pipeline_size" yaml:"pipeline_size"`
}

// ARPConfig configures the ARP table's bounded eviction policy.
// No eviction policy is dictated upstream; this resolves it.
type ARPConfig struct {
	MaxEntriesPerMAC int `mapstructure:"max_entries_per_mac" yaml:"max_entries_per_mac"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level   string         `mapstructure:"level" yaml:"level"`  // trace/debug/info/warn/error
	Format  string         `mapstructure:"format" yaml:"format"` // json / console
	Outputs LogFileOptions `mapstructure:"file" yaml:"file"`
}

// LogFileOptions configures rotating file output via lumberjack.
type LogFileOptions struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// ReportingConfig configures the periodic job runner (C5, §4.5).
type ReportingConfig struct {
	TickIntervalSeconds int `mapstructure:"tick_interval_seconds" yaml:"tick_interval_seconds"`
}

// configRoot matches the YAML root wrapper.
type configRoot struct {
	Tap GlobalConfig `mapstructure:"otus-tap" yaml:"otus-tap"`
}

// Load reads configuration from path, applies defaults/env overrides, and
// validates it.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Tap

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("otus-tap.general.accept_insecure_certs", false)

	v.SetDefault("otus-tap.control.socket", "/var/run/otus-tap.sock")

	v.SetDefault("otus-tap.performance.ethernet_broker_buffer_capacity", 8192)
	v.SetDefault("otus-tap.performance.wifi_broker_buffer_capacity", 4096)

	v.SetDefault("otus-tap.protocols.tcp.reassembly_buffer_size", 1048576)
	v.SetDefault("otus-tap.protocols.tcp.session_timeout_seconds", 120)
	v.SetDefault("otus-tap.protocols.tcp.pipeline_size", 8192)
	v.SetDefault("otus-tap.protocols.arp.max_entries_per_mac", 4096)

	v.SetDefault("otus-tap.metrics.enabled", true)
	v.SetDefault("otus-tap.metrics.listen", ":9091")
	v.SetDefault("otus-tap.metrics.path", "/metrics")

	v.SetDefault("otus-tap.log.level", "info")
	v.SetDefault("otus-tap.log.format", "console")
	v.SetDefault("otus-tap.log.file.max_size_mb", 100)
	v.SetDefault("otus-tap.log.file.max_age_days", 30)
	v.SetDefault("otus-tap.log.file.max_backups", 5)
	v.SetDefault("otus-tap.log.file.compress", true)

	v.SetDefault("otus-tap.reporting.tick_interval_seconds", 10)
}

// ValidateAndApplyDefaults validates configuration (leader URI present,
// log level and format, positive TCP limits) and fills in runtime-derived
// node identity (hostname, UUID). The leader URI is checked only for
// presence, not parsed.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	if cfg.General.LeaderURI == "" {
		return fmt.Errorf("general.leader_uri is required")
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json/console)", cfg.Log.Format)
	}

	if cfg.Node.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.Node.Hostname = hostname
	}

	if cfg.Node.ID == "" {
		cfg.Node.ID = uuid.NewString()
	}

	if cfg.Protocols.TCP.ReassemblyBufferSize <= 0 {
		return fmt.Errorf("protocols.tcp.reassembly_buffer_size must be positive")
	}
	if cfg.Protocols.TCP.SessionTimeoutSeconds <= 0 {
		return fmt.Errorf("protocols.tcp.session_timeout_seconds must be positive")
	}
	if cfg.Protocols.TCP.PipelineSize <= 0 {
		return fmt.Errorf("protocols.tcp.pipeline_size must be positive")
	}

	return nil
}
