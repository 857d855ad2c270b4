package config

import (
	"os"
	"strconv"
)

// Supported backends for the client cache tier.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendObject = "object"
)

// DefaultBodyLimitBytes leaves room for base64-encoded document payloads.
const DefaultBodyLimitBytes = 64 * 1024 * 1024

// DatabaseConfig holds the relational store settings (a single SQLite file).
type DatabaseConfig struct {
	Path               string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
	WAL                bool
	ReadOnly           bool
	BusyTimeoutMs      int
	BackupDir          string
}

// CacheConfig holds settings for the offline client tier.
type CacheConfig struct {
	Path               string
	MetadataBackend    string
	MetadataQuotaBytes int
	ContentBackend     string
}

// RedisConfig holds connection settings for the optional Redis metadata medium.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string
	Format string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	Env     string
	AppHost string
	Port    string

	// BodyLimitBytes caps request bodies on both tiers.
	BodyLimitBytes int

	Database DatabaseConfig
	Cache    CacheConfig
	Redis    RedisConfig
	MinIO    MinIOConfig
	Log      LogConfig
}

// IsProduction reports whether APP_ENV is set to production.
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		Env:     getEnv("APP_ENV", "development"),
		AppHost: getEnv("APP_HOST", "localhost:8080"),
		Port:    getEnv("PORT", "8080"),

		BodyLimitBytes: getEnvInt("HTTP_BODY_LIMIT_BYTES", DefaultBodyLimitBytes),
		Database: DatabaseConfig{
			Path:               getEnv("DB_PATH", "data/loandocs.db"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 1),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 1),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 0),
			WAL:                getEnvBool("DB_WAL", true),
			ReadOnly:           getEnvBool("DB_READ_ONLY", false),
			BusyTimeoutMs:      getEnvInt("DB_BUSY_TIMEOUT_MS", 5000),
			BackupDir:          getEnv("DB_BACKUP_DIR", "data/backups"),
		},
		Cache: CacheConfig{
			Path:               getEnv("CACHE_PATH", "data/cache.db"),
			MetadataBackend:    getEnv("CACHE_METADATA_BACKEND", BackendSQLite),
			MetadataQuotaBytes: getEnvInt("CACHE_METADATA_QUOTA_BYTES", 5*1024*1024),
			ContentBackend:     getEnv("CACHE_CONTENT_BACKEND", BackendSQLite),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}
