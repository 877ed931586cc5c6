package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, BackendSQLite, cfg.KVBackend)
	assert.Equal(t, 48*time.Hour, cfg.S3.URLTTL)
	assert.False(t, cfg.S3.Enabled())
	assert.Zero(t, cfg.RecomputeInterval)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:8080"}, cfg.AllowedOrigins)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("APP_PORT", "9000")
	t.Setenv("KV_BACKEND", "Redis")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("S3_ENDPOINT", "minio:9000")
	t.Setenv("S3_BUCKET", "statements")
	t.Setenv("S3_USE_SSL", "true")
	t.Setenv("RECOMPUTE_INTERVAL", "15m")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://admin.example.com , ")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, BackendRedis, cfg.KVBackend)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.True(t, cfg.S3.Enabled())
	assert.True(t, cfg.S3.UseSSL)
	assert.Equal(t, 15*time.Minute, cfg.RecomputeInterval)
	assert.Equal(t, []string{"https://admin.example.com"}, cfg.AllowedOrigins)
}

func TestLoad_ReportsEveryBadValue(t *testing.T) {
	t.Setenv("APP_PORT", "eighty")
	t.Setenv("S3_USE_SSL", "maybe")
	t.Setenv("KV_BACKEND", "postgres")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_PORT")
	assert.Contains(t, err.Error(), "S3_USE_SSL")
	assert.Contains(t, err.Error(), "PG_DSN")
}
