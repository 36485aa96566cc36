package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/astralis-bot/astralis/pkg/db"
	"github.com/astralis-bot/astralis/pkg/logger"
	"github.com/astralis-bot/astralis/pkg/platform"
	"github.com/astralis-bot/astralis/pkg/redis"
)

// config is the daemon's full environment configuration.
type config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	QueueWorkers    int           `env:"QUEUE_WORKERS" envDefault:"50"`
	DuelWinPoints   int64         `env:"DUELS_WIN_POINTS" envDefault:"10"`

	Logger logger.Config
	DB     db.Config
	Redis  redis.Config
	Chat   platform.RESTConfig
}

func loadConfig() (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
