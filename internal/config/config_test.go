package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	t.Setenv("DB_PATH", "/tmp/loans.db")
	t.Setenv("DB_MAX_OPEN_CONNS", "4")
	t.Setenv("DB_WAL", "false")
	t.Setenv("DB_READ_ONLY", "true")
	t.Setenv("DB_BUSY_TIMEOUT_MS", "250")
	t.Setenv("CACHE_METADATA_BACKEND", "redis")
	t.Setenv("CACHE_METADATA_QUOTA_BYTES", "1024")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("HTTP_BODY_LIMIT_BYTES", "2048")

	cfg := Load()

	assert.Equal(t, "/tmp/loans.db", cfg.Database.Path)
	assert.Equal(t, 4, cfg.Database.MaxOpenConns)
	assert.False(t, cfg.Database.WAL)
	assert.True(t, cfg.Database.ReadOnly)
	assert.Equal(t, 250, cfg.Database.BusyTimeoutMs)
	assert.Equal(t, BackendRedis, cfg.Cache.MetadataBackend)
	assert.Equal(t, 1024, cfg.Cache.MetadataQuotaBytes)
	assert.Equal(t, BackendSQLite, cfg.Cache.ContentBackend)
	assert.True(t, cfg.MinIO.UseSSL)
	assert.Equal(t, 2048, cfg.BodyLimitBytes)
}

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"DB_PATH", "DB_MAX_OPEN_CONNS", "DB_WAL", "DB_BACKUP_DIR", "APP_ENV", "HTTP_BODY_LIMIT_BYTES"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, "data/loandocs.db", cfg.Database.Path)
	assert.Equal(t, 1, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.Database.WAL)
	assert.Equal(t, "data/backups", cfg.Database.BackupDir)
	assert.Equal(t, DefaultBodyLimitBytes, cfg.BodyLimitBytes)
	assert.False(t, cfg.IsProduction())
}

func TestGetEnv(t *testing.T) {
	key := "TEST_ENV_VAR"
	os.Setenv(key, "value")
	defer os.Unsetenv(key)

	assert.Equal(t, "value", getEnv(key, "default"))
	assert.Equal(t, "default", getEnv("NON_EXISTENT", "default"))
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_BOOL_VAR"

	os.Setenv(key, "true")
	assert.True(t, getEnvBool(key, false))

	os.Setenv(key, "false")
	assert.False(t, getEnvBool(key, true))

	os.Setenv(key, "invalid")
	assert.True(t, getEnvBool(key, true))

	os.Unsetenv(key)
	assert.True(t, getEnvBool(key, true))
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_INT_VAR"

	os.Setenv(key, "123")
	assert.Equal(t, 123, getEnvInt(key, 0))

	os.Setenv(key, "invalid")
	assert.Equal(t, 10, getEnvInt(key, 10))

	os.Unsetenv(key)
	assert.Equal(t, 10, getEnvInt(key, 10))
}
