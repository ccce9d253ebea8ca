package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is loaded from environment variables, with an optional .env overlay
// for local development.
type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	// JWTSecret signs identity tokens. It has no default: an empty secret is
	// rejected at startup, not discovered at request time.
	JWTSecret         string        `env:"JWT_SECRET"`
	TokenTTL          time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	PasswordMinLength int           `env:"PASSWORD_MIN_LENGTH" envDefault:"6"`

	// RabbitMQURL is optional; without it, spending limit notifications are
	// only logged.
	RabbitMQURL string `env:"RABBITMQ_URL"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

func LoadConfig() (*Config, error) {
	// Missing .env is fine, real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}
