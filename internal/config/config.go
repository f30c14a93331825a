package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	AppEnv                   string
	AppName                  string
	AppPort                  string
	MetricsPort              string
	LogLevel                 string
	DBHost                   string
	DBPort                   string
	DBUser                   string
	DBPassword               string
	DBName                   string
	DBSSLMode                string
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	RedisPoolSize            int
	RedisMinIdleConns        int
	RedisMaxRetries          int
	JWTSecret                string
	EventSinkURL             string
	ReconcileSchedule        string // cron expression, e.g. "*/10 * * * *"
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:            os.Getenv("APP_ENV"),
		AppName:           os.Getenv("APP_NAME"),
		AppPort:           os.Getenv("APP_PORT"),
		MetricsPort:       os.Getenv("METRICS_PORT"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		DBHost:            os.Getenv("DB_HOST"),
		DBPort:            os.Getenv("DB_PORT"),
		DBUser:            os.Getenv("DB_USER"),
		DBPassword:        os.Getenv("DB_PASSWORD"),
		DBName:            os.Getenv("DB_NAME"),
		DBSSLMode:         os.Getenv("DB_SSL_MODE"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		EventSinkURL:      os.Getenv("EVENT_SINK_URL"),
		ReconcileSchedule: os.Getenv("RECONCILE_SCHEDULE"),
	}
	if cfg.AppName == "" {
		cfg.AppName = "agora"
	}
	if cfg.AppPort == "" {
		cfg.AppPort = "8080"
	}
	if cfg.MetricsPort == "" {
		cfg.MetricsPort = "9090"
	}
	if cfg.DBSSLMode == "" {
		cfg.DBSSLMode = "disable"
	}
	if cfg.ReconcileSchedule == "" {
		cfg.ReconcileSchedule = "*/10 * * * *"
	}
	var err error
	cfg.DBMaxOpenConns, err = intEnv("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, err
	}
	cfg.DBMaxIdleConns, err = intEnv("DB_MAX_IDLE_CONNS", 5)
	if err != nil {
		return nil, err
	}
	cfg.DBConnMaxLifetimeMinutes, err = intEnv("DB_CONN_MAX_LIFETIME_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	cfg.RedisDB, err = intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	cfg.RedisPoolSize, err = intEnv("REDIS_POOL_SIZE", 10)
	if err != nil {
		return nil, err
	}
	cfg.RedisMinIdleConns, err = intEnv("REDIS_MIN_IDLE_CONNS", 5)
	if err != nil {
		return nil, err
	}
	cfg.RedisMaxRetries, err = intEnv("REDIS_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	if cfg.DBHost == "" || cfg.DBPort == "" || cfg.DBUser == "" || cfg.DBPassword == "" || cfg.DBName == "" {
		return nil, fmt.Errorf("missing required database environment variables")
	}
	return cfg, nil
}

func intEnv(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return i, nil
}
