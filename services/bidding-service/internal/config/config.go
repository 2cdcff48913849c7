package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the bidding service settings read from the environment
type Config struct {
	DatabaseURL      string
	RabbitMQURL      string
	RedisURL         string
	HTTPAddr         string
	JWTPublicKeyPath string
	JWTIssuer        string
	SweepInterval    time.Duration
	SweepBatchSize   int
	SchedulerEnabled bool
	LockTimeout      time.Duration
	NotifyTimeout    time.Duration
	MigrateOnStart   bool
	MigrationsDir    string
	InstanceID       string
}

// Load reads .env.local and .env (local overrides .env) and then the process
// environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only
func FromEnv() (*Config, error) {
	cfg := &Config{
		DatabaseURL:      os.Getenv("BID_DB_URL"),
		RabbitMQURL:      os.Getenv("RABBITMQ_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		HTTPAddr:         getString("HTTP_ADDR", ":8080"),
		JWTPublicKeyPath: os.Getenv("JWT_PUBLIC_KEY_PATH"),
		JWTIssuer:        getString("JWT_ISSUER", "procura"),
		MigrationsDir:    getString("MIGRATIONS_DIR", "migrations"),
		InstanceID:       os.Getenv("INSTANCE_ID"),
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", time.Minute)
	collect(err)
	cfg.SweepBatchSize, err = getInt("SWEEP_BATCH_SIZE", 100)
	collect(err)
	cfg.SchedulerEnabled, err = getBool("SCHEDULER_ENABLED", true)
	collect(err)
	cfg.LockTimeout, err = getDuration("LOCK_TIMEOUT", 3*time.Second)
	collect(err)
	cfg.NotifyTimeout, err = getDuration("NOTIFY_TIMEOUT", 10*time.Second)
	collect(err)
	cfg.MigrateOnStart, err = getBool("MIGRATE_ON_START", false)
	collect(err)

	if cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("BID_DB_URL is not set"))
	}
	if cfg.RabbitMQURL == "" {
		errs = append(errs, errors.New("RABBITMQ_URL is not set"))
	}
	if cfg.SweepInterval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must be positive"))
	}
	if cfg.SweepBatchSize <= 0 {
		errs = append(errs, errors.New("SWEEP_BATCH_SIZE must be positive"))
	}

	if cfg.InstanceID == "" {
		host, _ := os.Hostname()
		cfg.InstanceID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
