package config

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
)

// Config holds the notification service settings
type Config struct {
	DatabaseURL      string
	RabbitMQURL      string
	RedisURL         string
	HTTPAddr         string
	JWTPublicKeyPath string
	JWTIssuer        string
	MigrateOnStart   bool
	MigrationsDir    string
}

// Load reads .env.local and .env (local overrides .env) and then the process environment
func Load() (*Config, error) {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only
func FromEnv() (*Config, error) {
	cfg := &Config{
		DatabaseURL:      os.Getenv("NOTIFY_DB_URL"),
		RabbitMQURL:      os.Getenv("RABBITMQ_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		HTTPAddr:         os.Getenv("HTTP_ADDR"),
		JWTPublicKeyPath: os.Getenv("JWT_PUBLIC_KEY_PATH"),
		JWTIssuer:        os.Getenv("JWT_ISSUER"),
		MigrateOnStart:   os.Getenv("MIGRATE_ON_START") == "true",
		MigrationsDir:    os.Getenv("MIGRATIONS_DIR"),
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8081"
	}
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = "procura"
	}
	if cfg.MigrationsDir == "" {
		cfg.MigrationsDir = "migrations"
	}

	var errs []error
	if cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("NOTIFY_DB_URL is not set"))
	}
	if cfg.RabbitMQURL == "" {
		errs = append(errs, errors.New("RABBITMQ_URL is not set"))
	}
	if cfg.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is not set"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}
