package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := LoadConfig()
	if err != nil {
		logger.Error("could not load config", "error", err)
		os.Exit(1)
	}

	// A missing signing secret is the one fatal misconfiguration; everything
	// else in the auth path is a per-request outcome.
	codec, err := NewTokenCodec(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		logger.Error("could not initialize token codec", "error", err)
		os.Exit(1)
	}

	store, err := NewPostgresStore(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to initialize store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var publisher NotificationPublisher
	if cfg.RabbitMQURL != "" {
		rabbit, err := NewRabbitMQPublisher(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Error("unable to connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		defer rabbit.Close()
		publisher = rabbit
	} else {
		logger.Info("RABBITMQ_URL not set, notifications will only be logged")
		publisher = &LogPublisher{logger: logger}
	}

	auth := NewAuthenticator(store, codec, cfg.PasswordMinLength)
	h := NewHandler(store, auth, publisher, logger)

	mux := chi.NewRouter()
	RegisterRouters(mux, h, codec, store, cfg)

	logger.Info("starting server", "addr", cfg.HTTPAddr)
	if err := http.ListenAndServe(cfg.HTTPAddr, mux); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
