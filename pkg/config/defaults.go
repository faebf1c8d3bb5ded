package config

import (
	"strings"
	"time"
)

// ApplyDefaults fills unspecified configuration fields with defaults. Zero
// values are replaced, explicit values preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyAuthDefaults(&cfg.Auth)
	applyMountsDefaults(&cfg.Mounts)
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
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.Realm == "" {
		cfg.Realm = "WebDAV"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = cfg.RateLimit.RequestsPerSecond
	}
}

func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.Policy == "" {
		cfg.Policy = "acl"
	}
	if cfg.UsersFile == "" {
		cfg.UsersFile = "users.yaml"
	}
}

func applyMountsDefaults(cfg *MountsConfig) {
	if cfg.Store.Type == "" {
		cfg.Store.Type = "static"
	}
	if cfg.Store.Badger == nil {
		cfg.Store.Badger = make(map[string]any)
	}
}
