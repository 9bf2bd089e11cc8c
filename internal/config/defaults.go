package config

import (
	"strings"
	"time"
)

// GetDefaultConfig returns a Config populated entirely with defaults.
// Used when no config file is found at all.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills any zero-valued fields of cfg with defaults.
// Explicit values loaded from file or environment are preserved.
func ApplyDefaults(cfg *Config) {
	applyNetBIOSDefaults(&cfg.NetBIOS)
	applyClusterDefaults(&cfg.Cluster)
	applyOpLockDefaults(&cfg.OpLock)
	applyLoggingDefaults(&cfg.Logging)
}

func applyNetBIOSDefaults(cfg *NetBIOSConfig) {
	if cfg.BindAddress == "" {
		cfg.BindAddress = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 137
	}
	if cfg.BroadcastSubnetMask == "" {
		cfg.BroadcastSubnetMask = "255.255.255.0"
	}
	if cfg.ServerName == "" {
		cfg.ServerName = "NBCLUSTER"
	}
	cfg.ServerName = strings.ToUpper(cfg.ServerName)
	for i, alias := range cfg.Aliases {
		cfg.Aliases[i] = strings.ToUpper(alias)
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = 4 * 24 * time.Hour
	}
	if cfg.NameTTL == 0 {
		cfg.NameTTL = 5 * 24 * time.Hour
	}
}

func applyClusterDefaults(cfg *ClusterConfig) {
	if cfg.MapName == "" {
		cfg.MapName = "nbcluster.filestate"
	}
	if cfg.TopicName == "" {
		cfg.TopicName = "nbcluster.events"
	}
	if cfg.RemoteTaskTimeout == 0 {
		cfg.RemoteTaskTimeout = 10 * time.Second
	}
}

func applyOpLockDefaults(cfg *OpLockConfig) {
	if cfg.BreakTimeout == 0 {
		cfg.BreakTimeout = 30 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}
