package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration.
type Config struct {
	DatabaseURL string
	Port        string
	JWTSecret   string
	OTPSalt     string

	// RedisAddr selects the Redis revocation list; empty falls back to the
	// Postgres-backed one.
	RedisAddr string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	OTPTTL          time.Duration

	// MaskAccountLookups hides whether an email is registered in
	// registration and password-reset responses.
	MaskAccountLookups bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            "8080",
		SMTPPort:        587,
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		OTPTTL:          10 * time.Minute,
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	cfg.OTPSalt = os.Getenv("OTP_SALT")
	if cfg.OTPSalt == "" {
		return nil, fmt.Errorf("OTP_SALT environment variable is required")
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SMTP_PORT %q: %w", v, err)
		}
		cfg.SMTPPort = port
	}
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPFrom = os.Getenv("SMTP_FROM")

	for _, d := range []struct {
		env string
		dst *time.Duration
	}{
		{"ACCESS_TOKEN_TTL", &cfg.AccessTokenTTL},
		{"REFRESH_TOKEN_TTL", &cfg.RefreshTokenTTL},
		{"OTP_TTL", &cfg.OTPTTL},
	} {
		if v := os.Getenv(d.env); v != "" {
			dur, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s %q: %w", d.env, v, err)
			}
			*d.dst = dur
		}
	}

	cfg.MaskAccountLookups = os.Getenv("MASK_ACCOUNT_LOOKUPS") == "true"

	return cfg, nil
}
