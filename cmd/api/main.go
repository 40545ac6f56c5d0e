package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-auth-otp/internal/application/otp"
	"github.com/go-auth-otp/internal/config"
	"github.com/go-auth-otp/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-auth-otp/internal/infrastructure/jwt"
	redisinfra "github.com/go-auth-otp/internal/infrastructure/redis"
	"github.com/go-auth-otp/internal/infrastructure/smtp"
	"github.com/go-auth-otp/internal/infrastructure/sns"
	"github.com/go-auth-otp/internal/metrics"
	transporthttp "github.com/go-auth-otp/internal/transport/http"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient, err := dynamo.NewClient(cfg)
	if err != nil {
		log.Fatalf("dynamo client: %v", err)
	}
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	codec, err := jwtinfra.NewCodec(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	// Credential store backend: DynamoDB by default, Redis when configured.
	var credStore otp.CredentialStore
	switch cfg.OTPStoreBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		credStore = redisinfra.NewCodeStore(rdb, cfg.OTPTTL)
	default:
		credStore = dynamo.NewCodeRepo(dynamoClient, cfg.DynamoTables.OTPCodes, cfg.OTPTTL)
	}
	slog.Info("credential store ready", "backend", cfg.OTPStoreBackend, "ttl", cfg.OTPTTL)

	// SMTP mailer.
	mailer := smtp.NewMailer(cfg)

	// SNS SMS sender (optional — graceful fallback).
	var smsSender sns.SMSSender
	if sender, err := sns.NewSender(cfg); err == nil {
		smsSender = sender
	} else {
		log.Printf("WARN: SNS sender not available: %v", err)
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	deps := &transporthttp.Deps{
		UserRepo:       dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users),
		CredStore:      credStore,
		SMSSender:      smsSender,
		Mailer:         mailer,
		Codec:          codec,
		Collector:      collector,
		MetricsHandler: metrics.Handler(registry),
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
