// Package config reads server settings from the environment. cmd/server
// loads a .env file first, so either source works.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// KV backends for policies and overrides.
const (
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	MaxRetries  int
	DialTimeout time.Duration
	Timeout     time.Duration
	Prefix      string
}

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
	Prefix          string
	URLTTL          time.Duration
}

// Enabled reports whether statements are archived to S3 instead of disk.
func (c S3Config) Enabled() bool { return c.Endpoint != "" && c.Bucket != "" }

type DistanceAPIConfig struct {
	URL     string
	Key     string
	Timeout time.Duration
}

type AppConfig struct {
	Port      int
	DBPath    string
	LogLevel  string
	LogFormat string

	KVBackend   string
	Redis       RedisConfig
	PostgresDSN string

	S3                 S3Config
	ExportDir          string
	ExportPublicPrefix string

	DistanceAPI DistanceAPIConfig

	// RecomputeInterval 0 disables the periodic recompute.
	RecomputeInterval time.Duration
	AllowedOrigins    []string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parser collects every malformed value instead of stopping at the first.
type parser struct {
	errs []string
}

func (p *parser) int(key, def string) int {
	v := getenv(key, def)
	i, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s: invalid int %q", key, v))
	}
	return i
}

func (p *parser) bool(key, def string) bool {
	v := getenv(key, def)
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s: invalid bool %q", key, v))
	}
	return b
}

func (p *parser) duration(key, def string) time.Duration {
	v := getenv(key, def)
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s: invalid duration %q", key, v))
	}
	return d
}

// Load reads the environment. Every malformed value is reported in one error.
func Load() (AppConfig, error) {
	var p parser
	cfg := AppConfig{
		Port:      p.int("APP_PORT", "8080"),
		DBPath:    getenv("DB_PATH", "settlement.db"),
		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),

		KVBackend: strings.ToLower(getenv("KV_BACKEND", BackendSQLite)),
		Redis: RedisConfig{
			Addr:        getenv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:    getenv("REDIS_PASSWORD", ""),
			DB:          p.int("REDIS_DB", "0"),
			MaxRetries:  p.int("REDIS_MAX_RETRIES", "3"),
			DialTimeout: p.duration("REDIS_DIAL_TIMEOUT", "5s"),
			Timeout:     p.duration("REDIS_TIMEOUT", "3s"),
			Prefix:      getenv("REDIS_PREFIX", "settlement:"),
		},
		PostgresDSN: getenv("PG_DSN", ""),

		S3: S3Config{
			Endpoint:        getenv("S3_ENDPOINT", ""),
			AccessKeyID:     getenv("S3_ACCESS_KEY", ""),
			SecretAccessKey: getenv("S3_SECRET_KEY", ""),
			Bucket:          getenv("S3_BUCKET", ""),
			Region:          getenv("S3_REGION", "us-east-1"),
			UseSSL:          p.bool("S3_USE_SSL", "false"),
			Prefix:          getenv("S3_PREFIX", "statements/"),
			URLTTL:          p.duration("S3_URL_TTL", "48h"),
		},
		ExportDir:          getenv("EXPORT_DIR", "./exports"),
		ExportPublicPrefix: getenv("EXPORT_PUBLIC_PREFIX", "/files"),

		DistanceAPI: DistanceAPIConfig{
			URL:     getenv("DISTANCE_API_URL", ""),
			Key:     getenv("DISTANCE_API_KEY", ""),
			Timeout: p.duration("DISTANCE_API_TIMEOUT", "5s"),
		},

		RecomputeInterval: p.duration("RECOMPUTE_INTERVAL", "0s"),
		AllowedOrigins:    splitList(getenv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:8080")),
	}

	switch cfg.KVBackend {
	case BackendSQLite, BackendRedis, BackendPostgres, BackendMemory:
	default:
		p.errs = append(p.errs, fmt.Sprintf("KV_BACKEND: unknown backend %q", cfg.KVBackend))
	}
	if cfg.KVBackend == BackendPostgres && cfg.PostgresDSN == "" {
		p.errs = append(p.errs, "PG_DSN: required for the postgres backend")
	}
	if cfg.RecomputeInterval < 0 {
		p.errs = append(p.errs, "RECOMPUTE_INTERVAL: must not be negative")
	}

	if len(p.errs) > 0 {
		return cfg, fmt.Errorf("invalid configuration: %s", strings.Join(p.errs, "; "))
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
