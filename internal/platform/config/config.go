package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type HTTPConfig struct {
	Addr string
}

type GRPCConfig struct {
	Addr string
}

// AppConfig holds the process-level settings shared by every service binary.
type AppConfig struct {
	ServiceName string
	LogLevel    string
	Env         string
	HTTP        HTTPConfig
	GRPC        GRPCConfig
}

// IsProduction reports whether APP_ENV is "production" (case-insensitive).
func (c AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func Load() (AppConfig, error) {
	cfg := AppConfig{
		ServiceName: Env("SERVICE_NAME"),
		LogLevel:    Env("LOG_LEVEL"),
		Env:         Env("APP_ENV"),
		HTTP: HTTPConfig{
			Addr: Env("HTTP_ADDR"),
		},
		GRPC: GRPCConfig{
			Addr: Env("GRPC_ADDR"),
		},
	}
	if cfg.ServiceName == "" {
		return AppConfig{}, errors.New("SERVICE_NAME is required")
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.GRPC.Addr == "" {
		cfg.GRPC.Addr = ":9090"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

// Env returns the trimmed value of an environment variable.
func Env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func EnvDefault(key, fallback string) string {
	if v := Env(key); v != "" {
		return v
	}
	return fallback
}

// EnvInt parses a positive integer, returning fallback when unset or invalid.
func EnvInt(key string, fallback int) int {
	v := Env(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func EnvDuration(key string, fallback time.Duration) time.Duration {
	v := Env(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
