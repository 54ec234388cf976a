// Package config loads, defaults and validates the server configuration
// from file, environment and flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"sandgate/internal/gateway"
)

// Config is the complete server configuration.
//
// Sources, highest precedence first:
//  1. CLI flags
//  2. Environment variables (SANDGATE_*)
//  3. Configuration file (YAML or TOML)
//  4. Defaults
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains server-wide settings.
	Server ServerConfig `mapstructure:"server"`

	// Session controls bearer-token issuance.
	Session SessionConfig `mapstructure:"session"`

	// Sandbox locates the file tree served to users.
	Sandbox SandboxConfig `mapstructure:"sandbox"`

	// Credentials selects the credential store and its options.
	Credentials CredentialsConfig `mapstructure:"credentials"`

	// Adapters contains protocol adapter configurations.
	Adapters AdaptersConfig `mapstructure:"adapters"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN or ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// SessionConfig controls session tokens.
type SessionConfig struct {
	// TTL is the fixed session lifetime. There is no sliding expiry.
	TTL time.Duration `mapstructure:"ttl" validate:"required,gt=0"`
}

// SandboxConfig locates the served file tree.
type SandboxConfig struct {
	// Root is the directory holding every user's sandbox.
	Root string `mapstructure:"root" validate:"required"`

	// MappingFile is the side file persisting the folder mapping.
	MappingFile string `mapstructure:"mapping_file" validate:"required"`
}

// CredentialsConfig selects the credential store implementation.
//
// The Type field determines which implementation is used; only the matching
// type-specific section is read.
type CredentialsConfig struct {
	// Type is the store implementation. Valid values: memory.
	Type string `mapstructure:"type" validate:"required,oneof=memory"`

	// Memory contains memory-store options. Only used when Type = "memory".
	Memory map[string]any `mapstructure:"memory"`
}

// AdaptersConfig contains all protocol adapter configurations.
type AdaptersConfig struct {
	// Gateway is the HTTP file-gateway adapter configuration.
	Gateway gateway.Config `mapstructure:"gateway"`
}

// Load reads the configuration from file and environment, applies defaults
// and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the SANDGATE_ prefix with underscores,
	// e.g. SANDGATE_LOGGING_LEVEL=DEBUG.
	v.SetEnvPrefix("SANDGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The enabled flag defaults here rather than in ApplyDefaults so an
	// explicit false in the file is preserved.
	v.SetDefault("adapters.gateway.enabled", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		// No file is fine; defaults and environment apply. An explicitly
		// named missing file surfaces as a plain not-exist error rather
		// than viper's not-found type.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory, honoring
// XDG_CONFIG_HOME.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "sandgate")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "sandgate")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
