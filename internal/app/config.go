package app

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/env"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/logger"
)

// Config holds the operational-shell settings. Values resolve in three
// layers: built-in defaults, then the optional CONFIG_FILE yaml, then
// environment variables.
type Config struct {
	LogMode              string `yaml:"log_mode"`
	Port                 string `yaml:"port"`
	ShutdownGraceSeconds int    `yaml:"shutdown_grace_seconds"`
	BlobDriver           string `yaml:"blob_driver"`
	EventsDriver         string `yaml:"events_driver"`
}

func (c Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		LogMode:              "development",
		Port:                 "8080",
		ShutdownGraceSeconds: 10,
		BlobDriver:           "memory",
		EventsDriver:         "none",
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warn("config file unreadable, continuing with defaults", "path", path, "error", err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Warn("config file invalid, continuing with defaults", "path", path, "error", err)
		} else {
			log.Info("config file loaded", "path", path)
		}
	}

	cfg.LogMode = env.Get("LOG_MODE", cfg.LogMode, log)
	cfg.Port = env.Get("PORT", cfg.Port, log)
	cfg.ShutdownGraceSeconds = env.GetInt("SHUTDOWN_GRACE_SECONDS", cfg.ShutdownGraceSeconds, log)
	cfg.BlobDriver = env.Get("BLOB_DRIVER", cfg.BlobDriver, log)
	cfg.EventsDriver = env.Get("EVENTS_DRIVER", cfg.EventsDriver, log)
	return cfg
}
