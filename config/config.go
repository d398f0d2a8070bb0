package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

type Config struct {
	App      AppConfig
	Storage  StorageConfig
	Identity IdentityConfig
	Activity ActivityConfig
}

type AppConfig struct {
	ListenAddr         string
	LogLevel           string
	LogFormat          string
	CorsAllowedOrigins []string
	AuthTimeout        time.Duration
	StoreTimeout       time.Duration
}

type StorageConfig struct {
	Type             string
	LocalStoragePath string
	DataSourceName   string
	RedisURL         string
	S3BucketName     string
}

type IdentityConfig struct {
	JWTSecret        string
	OAuthUserInfoURL string
	CacheTTL         time.Duration
}

type ActivityConfig struct {
	NatsURL string
}

// Load reads .env (if present) and the environment, then applies command
// line flags from args on top.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using system environment")
	}

	cfg := &Config{
		App: AppConfig{
			ListenAddr:         getEnv("LISTEN_ADDR", ":3002"),
			LogLevel:           getEnv("LOG_LEVEL", "info"),
			LogFormat:          getEnv("LOG_FORMAT", "text"),
			CorsAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
			AuthTimeout:        getEnvAsDuration("AUTH_TIMEOUT", 10*time.Second),
			StoreTimeout:       getEnvAsDuration("STORE_TIMEOUT", 5*time.Second),
		},
		Storage: StorageConfig{
			Type:             getEnv("STORAGE_TYPE", "memory"),
			LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./data"),
			DataSourceName:   getEnv("DATA_SOURCE_NAME", "notes.db"),
			RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379"),
			S3BucketName:     getEnv("S3_BUCKET_NAME", ""),
		},
		Identity: IdentityConfig{
			JWTSecret:        getEnv("JWT_SECRET", ""),
			OAuthUserInfoURL: getEnv("OAUTH_USERINFO_URL", ""),
			CacheTTL:         getEnvAsDuration("IDENTITY_CACHE_TTL", time.Minute),
		},
		Activity: ActivityConfig{
			NatsURL: getEnv("NATS_URL", ""),
		},
	}

	flags := pflag.NewFlagSet("notes-collab", pflag.ContinueOnError)
	flags.StringVar(&cfg.App.ListenAddr, "listen", cfg.App.ListenAddr, "Set the server listen address")
	flags.StringVar(&cfg.App.LogLevel, "loglevel", cfg.App.LogLevel, "Set the logging level: debug, info, warn, error, fatal, panic")
	flags.StringVar(&cfg.Storage.Type, "storage", cfg.Storage.Type, "Document storage: memory, filesystem, sqlite, redis, s3")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		logrus.WithFields(logrus.Fields{"key": key, "value": value}).Warn("Invalid duration, using default")
		return fallback
	}
	return d
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
