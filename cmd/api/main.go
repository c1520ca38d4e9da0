package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"

	"github.com/accountd/server/internal/auth"
	"github.com/accountd/server/internal/config"
	"github.com/accountd/server/internal/db"
	httphandler "github.com/accountd/server/internal/http"
	"github.com/accountd/server/internal/http/handlers"
	"github.com/accountd/server/internal/logging"
	"github.com/accountd/server/internal/middleware"
	"github.com/accountd/server/internal/notify"
	"github.com/accountd/server/internal/repo"
)

func main() {
	// Load .env if present; real env vars take precedence.
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := runMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Stores
	userRepo := repo.NewUserRepo(database)
	otpRepo := repo.NewOtpRepo(database)
	revocations := repo.RevocationRepo(repo.NewRevocationRepo(database))
	if cfg.RedisAddr != "" {
		revocations = repo.NewRedisRevocationRepo(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	}

	// Core services
	ledger := auth.NewOTPLedger(otpRepo, cfg.OTPSalt, cfg.OTPTTL)
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	gateway := notify.NewSMTPGateway(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	svc := auth.NewService(userRepo, ledger, revocations, jwtService, gateway, auth.DefaultPasswordPolicy(), logger)

	// Handlers and router
	authHandler := handlers.NewAuthHandler(svc, cfg.MaskAccountLookups)
	profileHandler := handlers.NewProfileHandler(svc)
	router := httphandler.NewRouter(authHandler, profileHandler, jwtService, userRepo)

	// Optional IP limiter in front of the public auth endpoints.
	limiter := middleware.NewRateLimiter(10*time.Minute, 30)
	defer limiter.Stop()
	handler := middleware.RateLimitMiddleware(limiter, middleware.GetIPKey)(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// runMigrations runs the embedded database migrations using goose.
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	goose.SetBaseFS(db.MigrationsFS)

	if err := goose.Up(database, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
