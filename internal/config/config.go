// Package config loads and validates the static configuration for a
// nbclusterd node: the NetBIOS name-service listener, the cluster
// transport bindings, oplock break policy, and logging.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (NBCLUSTER_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// No CLI flag is bound to a configuration key; cmd/nbclusterd only
// passes the --config path. When no configuration file is found, Load
// returns the defaults and does not consult the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for a cluster node.
type Config struct {
	NetBIOS NetBIOSConfig `mapstructure:"netbios" yaml:"netbios"`
	Cluster ClusterConfig `mapstructure:"cluster" yaml:"cluster"`
	OpLock  OpLockConfig  `mapstructure:"oplock" yaml:"oplock"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// NetBIOSConfig controls the name-service node: the socket it binds,
// the WINS servers it registers with, and the identity it advertises.
type NetBIOSConfig struct {
	BindAddress         string        `mapstructure:"bind_address" validate:"required" yaml:"bind_address"`
	Port                int           `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`
	PrimaryWINS         string        `mapstructure:"primary_wins" validate:"omitempty,ip" yaml:"primary_wins"`
	SecondaryWINS       string        `mapstructure:"secondary_wins" validate:"omitempty,ip" yaml:"secondary_wins"`
	BroadcastSubnetMask string        `mapstructure:"broadcast_subnet_mask" validate:"omitempty,ip" yaml:"broadcast_subnet_mask"`
	ServerName          string        `mapstructure:"server_name" validate:"required,max=15" yaml:"server_name"`
	Aliases             []string      `mapstructure:"aliases" validate:"dive,max=15" yaml:"aliases"`
	DomainName          string        `mapstructure:"domain_name" validate:"omitempty,max=15" yaml:"domain_name"`
	RefreshInterval     time.Duration `mapstructure:"refresh_interval" validate:"required,gt=0" yaml:"refresh_interval"`
	NameTTL             time.Duration `mapstructure:"name_ttl" validate:"required,gt=0" yaml:"name_ttl"`
}

// ClusterConfig names the distributed map the node's filestate facade
// submits to. TopicName and RemoteTaskTimeout are defaulted and
// validated but not applied: cmd/nbclusterd builds an unnamed
// in-process topic, and facade calls wait on Submit with no deadline.
type ClusterConfig struct {
	MapName           string        `mapstructure:"map_name" validate:"required" yaml:"map_name"`
	TopicName         string        `mapstructure:"topic_name" validate:"required" yaml:"topic_name"`
	RemoteTaskTimeout time.Duration `mapstructure:"remote_task_timeout" validate:"required,gt=0" yaml:"remote_task_timeout"`
}

// OpLockConfig controls the break coordinator.
type OpLockConfig struct {
	BreakTimeout time.Duration `mapstructure:"break_timeout" validate:"required,gt=0" yaml:"break_timeout"`
}

// LoggingConfig controls internal/logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// Load reads configuration from file, environment, and defaults, then
// validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := GetDefaultConfig()
	if !found {
		return cfg, nil
	}

	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path in YAML form with owner-only permissions.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper wires environment variable and config file lookup.
//
// Environment variables use the NBCLUSTER_ prefix with underscores in
// place of dots, e.g. NBCLUSTER_NETBIOS_PORT=137.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("NBCLUSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	configDir := getConfigDir()
	v.AddConfigPath(configDir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reads the configuration file if present. It returns
// (false, nil) when no file is found rather than an error, so callers
// can fall back to defaults.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		// SetConfigFile bypasses viper's search-path logic, so a missing
		// explicit path surfaces as a plain fs error rather than
		// ConfigFileNotFoundError.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func getConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "nbclusterd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "nbclusterd")
}

var validate = validator.New()

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	return validate.Struct(cfg)
}
