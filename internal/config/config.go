package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080" validate:"required,numeric"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisAddr   string `env:"REDIS_ADDR"   envDefault:"localhost:6379" validate:"required,hostname_port"`
	NatsURL     string `env:"NATS_URL"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info" validate:"oneof=debug info warn error"`

	Marketplace Marketplace `envPrefix:"MARKETPLACE_"`
	Auction     Auction
	Session     Session
}

type Marketplace struct {
	APIURL      string        `env:"API_URL,required" validate:"url"`
	Timeout     time.Duration `env:"TIMEOUT"          envDefault:"10s" validate:"gt=0"`
	CarCacheTTL time.Duration `env:"CAR_CACHE_TTL"    envDefault:"30s" validate:"min=0"`
}

type Auction struct {
	// BidIncrement is added to the current price to get the minimum bid.
	BidIncrement float64       `env:"BID_MIN_INCREMENT" envDefault:"100" validate:"gt=0"`
	PollInterval time.Duration `env:"POLL_INTERVAL"     envDefault:"5s"  validate:"gte=1s"`
}

type Session struct {
	TTL time.Duration `env:"SESSION_TTL" envDefault:"24h" validate:"gt=0"`
}

func Load() (*Config, error) {
	// Load .env file if it exists (useful for local dev)
	if err := godotenv.Load(); err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}

// ZapLevel returns the configured log level, info when unparsable.
func (c *Config) ZapLevel() zapcore.Level {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}
