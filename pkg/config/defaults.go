package config

import (
	"strings"
	"time"

	"sandgate/pkg/session"
)

// ApplyDefaults fills in zero values with defaults. Explicit values are
// preserved; adapter-level defaults are applied by the adapter itself at
// construction.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applySessionDefaults(&cfg.Session)
	applySandboxDefaults(&cfg.Sandbox)
	applyCredentialsDefaults(&cfg.Credentials)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.TTL == 0 {
		cfg.TTL = session.DefaultTTL
	}
}

func applySandboxDefaults(cfg *SandboxConfig) {
	if cfg.Root == "" {
		cfg.Root = "./sandbox"
	}
	if cfg.MappingFile == "" {
		cfg.MappingFile = "folder-mapping.yaml"
	}
}

func applyCredentialsDefaults(cfg *CredentialsConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
}
