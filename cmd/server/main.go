package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"prdgen/internal/app"
	"prdgen/internal/config"
	"prdgen/internal/server"
	"prdgen/internal/usertoken"
	"prdgen/internal/util"
	"prdgen/pkg/events"
	"prdgen/pkg/storage"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel)

	jwtLeeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		util.Fatal("failed to parse jwt leeway", "err", err)
	}
	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:    cfg.AuthJWKSURL,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		Leeway:     jwtLeeway,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	})
	if err != nil {
		util.Fatal("failed to init jwks verifier", "err", err)
	}

	var objectStore storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		minioStore, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			util.Fatal("failed to init object store", "err", err)
		}
		objectStore = minioStore
	}

	var publisher *events.Publisher
	if cfg.RabbitURL != "" {
		publisher, err = events.NewPublisher(events.PublisherConfig{
			URL:      cfg.RabbitURL,
			Exchange: cfg.RabbitExchange,
		})
		if err != nil {
			util.Fatal("failed to init event publisher", "err", err)
		}
		defer publisher.Close()
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:        cfg.DatabaseURL,
		GenerationProvider: cfg.GenerationProvider,
		GenerationBaseURL:  cfg.GenerationBaseURL,
		GenerationAPIKey:   cfg.GenerationAPIKey,
		GenerationModel:    cfg.GenerationModel,
		MaxOutputTokens:    cfg.MaxOutputTokens,
		Temperature:        cfg.Temperature,
		ObjectStore:        objectStore,
		Events:             publisher,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	httpServer, err := server.New(server.Config{
		App:                        appCore,
		TokenVerifier:              tokenVerifier,
		RedisAddr:                  cfg.RedisAddr,
		RedisPassword:              cfg.RedisPassword,
		GenerateRateLimitPerMinute: cfg.GenerateRateLimitPerMinute,
	})
	if err != nil {
		util.Fatal("failed to init server", "err", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("prdgen server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
