package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"sandgate/pkg/credentials"
)

// NewCredentialStore creates a credential store from configuration. The
// Type field selects the implementation; its option map is decoded into the
// implementation's own config type.
func NewCredentialStore(cfg *CredentialsConfig) (credentials.Store, error) {
	switch cfg.Type {
	case "memory":
		return newMemoryCredentialStore(cfg.Memory)
	default:
		return nil, fmt.Errorf("unknown credential store type: %q", cfg.Type)
	}
}

func newMemoryCredentialStore(options map[string]any) (credentials.Store, error) {
	type memoryCredentialsConfig struct {
		// Users seeds the store with username -> bcrypt hash pairs.
		Users map[string]string `mapstructure:"users"`

		// MaxFailures is the lockout threshold. 0 selects the default.
		MaxFailures int `mapstructure:"max_failures"`

		// Lockout is the lockout window, e.g. "15m". 0 selects the
		// default.
		Lockout time.Duration `mapstructure:"lockout"`
	}

	var storeCfg memoryCredentialsConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     &storeCfg,
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, fmt.Errorf("build memory credential store decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("decode memory credential store config: %w", err)
	}

	return credentials.NewMemoryStore(credentials.Options{
		Users:       storeCfg.Users,
		MaxFailures: storeCfg.MaxFailures,
		Lockout:     storeCfg.Lockout,
	}), nil
}
