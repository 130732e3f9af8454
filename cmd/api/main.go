package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-passwordless/internal/application/session"
	"github.com/go-passwordless/internal/config"
	"github.com/go-passwordless/internal/infrastructure/dynamo"
	"github.com/go-passwordless/internal/infrastructure/logsender"
	"github.com/go-passwordless/internal/infrastructure/memory"
	redisinfra "github.com/go-passwordless/internal/infrastructure/redis"
	"github.com/go-passwordless/internal/infrastructure/smtp"
	"github.com/go-passwordless/internal/infrastructure/sns"
	transporthttp "github.com/go-passwordless/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	ctx := context.Background()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		log.Fatalf("dynamodb client: %v", err)
	}
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	userRepo := dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users)
	sessionRepo := dynamo.NewSessionRepo(dynamoClient, cfg.DynamoTables.Sessions)

	var verifications transporthttp.VerificationStore
	switch cfg.VerificationBackend {
	case config.VerificationBackendRedis:
		client, err := redisinfra.NewClient(ctx, cfg)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer client.Close()
		verifications = redisinfra.NewVerificationStore(client, cfg.RedisKeyPrefix, cfg.VerificationCodeTTL, cfg.VerificationMaxAttempts)
	default:
		verifications = memory.NewVerificationStore(cfg.VerificationCodeTTL, cfg.VerificationMaxAttempts)
	}

	var sender transporthttp.CodeSender
	switch cfg.DeliveryChannel {
	case config.DeliveryChannelSMTP:
		sender = smtp.NewMailer(cfg)
	case config.DeliveryChannelSNS:
		s, err := sns.NewSender(ctx, cfg)
		if err != nil {
			log.Fatalf("sns sender: %v", err)
		}
		sender = s
	default:
		sender = logsender.New(cfg.IsDevelopment())
	}
	if cfg.FixedVerificationCode != "" && cfg.IsDevelopment() {
		log.Printf("WARN: FIXED_VERIFICATION_CODE is set; every login code is %q", cfg.FixedVerificationCode)
	}

	sessions := session.NewService(session.ServiceDeps{
		SessionRepo:  sessionRepo,
		UserRepo:     userRepo,
		TouchTimeout: cfg.TouchTimeout,
		TouchRetries: cfg.TouchRetries,
	})

	router := transporthttp.NewRouter(cfg, &transporthttp.Deps{
		UserRepo:      userRepo,
		Verifications: verifications,
		Sender:        sender,
		Sessions:      sessions,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s, verification=%s, delivery=%s)",
			cfg.AppPort, cfg.AppEnv, cfg.VerificationBackend, cfg.DeliveryChannel)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
	sessions.Flush()
	log.Println("Server stopped")
}
