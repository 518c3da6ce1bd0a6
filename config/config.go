package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration
//
//nolint:govet // Field alignment optimization would reduce readability
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Webhook       WebhookConfig
	MediaStorage  MediaStorageConfig
	Logging       LoggingConfig
	Observability ObservabilityConfig
	Profiling     ProfilingConfig
	Cache         CacheConfig
}

type ServerConfig struct {
	Port           string
	GinMode        string
	AppEnv         string
	BaseURL        string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
}

type WebhookConfig struct {
	// Secret is the pre-shared key the publishing platform signs payloads with.
	Secret string
	// DefaultPostType is used when no post_type setting has been stored.
	DefaultPostType string
	// MaxBodyBytes caps the webhook request body size.
	MaxBodyBytes int64
}

type MediaStorageConfig struct {
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Endpoint        string
	Region          string
	PublicURL       string
}

type LoggingConfig struct {
	Level string
	Dir   string
}

type ObservabilityConfig struct {
	ExporterEndpoint string
	ServiceName      string
	ServiceVersion   string
}

type ProfilingConfig struct {
	Enabled               bool
	Endpoint              string
	AppName               string
	SampleTypes           string
	UploadIntervalSeconds int
}

type CacheConfig struct {
	PostTTLSeconds int // Post permalink/status cache TTL in seconds
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("PORT", "8082")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("BASE_URL", "http://localhost:8082")
	v.SetDefault("ALLOWED_CORS_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DIR", "/app/logs")
	v.SetDefault("DEFAULT_POST_TYPE", "post")
	v.SetDefault("WEBHOOK_MAX_BODY_BYTES", 10*1024*1024)
	v.SetDefault("O11Y_EXPORTER_ENDPOINT", "") // OTLP over HTTP, empty disables tracing
	v.SetDefault("O11Y_SERVICE_NAME", "storysync-api")
	v.SetDefault("O11Y_SERVICE_VERSION", "1.0.0")
	v.SetDefault("PROFILING_ENABLED", false)
	v.SetDefault("PROFILING_APP_NAME", "storysync-api")
	v.SetDefault("PROFILING_SAMPLE_TYPES", "cpu,alloc_space,alloc_objects,goroutines,mutex,block")
	v.SetDefault("PROFILING_UPLOAD_INTERVAL_SECONDS", 15)
	v.SetDefault("POST_CACHE_TTL", 600) // 10 minutes in seconds
	v.SetDefault("MEDIA_STORAGE_REGION", "us-east-1")

	// Automatically read environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	_ = v.ReadInConfig() //nolint:errcheck // Ignore error if .env file doesn't exist

	// Parse allowed CORS origins (comma-separated)
	allowedOrigins := []string{}
	originsStr := v.GetString("ALLOWED_CORS_ORIGINS")
	if originsStr != "" {
		for _, origin := range strings.Split(originsStr, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins = append(allowedOrigins, origin)
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("PORT"),
			GinMode:        v.GetString("GIN_MODE"),
			AppEnv:         v.GetString("APP_ENV"),
			BaseURL:        strings.TrimRight(v.GetString("BASE_URL"), "/"),
			AllowedOrigins: allowedOrigins,
		},
		Database: DatabaseConfig{
			URL:      v.GetString("DATABASE_URL"),
			MaxConns: 20,
			MinConns: 2,
		},
		Webhook: WebhookConfig{
			Secret:          v.GetString("WEBHOOK_SECRET"),
			DefaultPostType: v.GetString("DEFAULT_POST_TYPE"),
			MaxBodyBytes:    v.GetInt64("WEBHOOK_MAX_BODY_BYTES"),
		},
		MediaStorage: MediaStorageConfig{
			AccessKeyID:     v.GetString("MEDIA_STORAGE_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("MEDIA_STORAGE_SECRET_ACCESS_KEY"),
			Bucket:          v.GetString("MEDIA_STORAGE_BUCKET"),
			Endpoint:        v.GetString("MEDIA_STORAGE_ENDPOINT"),
			Region:          v.GetString("MEDIA_STORAGE_REGION"),
			PublicURL:       v.GetString("MEDIA_STORAGE_PUBLIC_URL"),
		},
		Logging: LoggingConfig{
			Level: v.GetString("LOG_LEVEL"),
			Dir:   v.GetString("LOG_DIR"),
		},
		Observability: ObservabilityConfig{
			ExporterEndpoint: v.GetString("O11Y_EXPORTER_ENDPOINT"),
			ServiceName:      v.GetString("O11Y_SERVICE_NAME"),
			ServiceVersion:   v.GetString("O11Y_SERVICE_VERSION"),
		},
		Profiling: ProfilingConfig{
			Enabled:               v.GetBool("PROFILING_ENABLED"),
			Endpoint:              v.GetString("PROFILING_ENDPOINT"),
			AppName:               v.GetString("PROFILING_APP_NAME"),
			SampleTypes:           v.GetString("PROFILING_SAMPLE_TYPES"),
			UploadIntervalSeconds: v.GetInt("PROFILING_UPLOAD_INTERVAL_SECONDS"),
		},
		Cache: CacheConfig{
			PostTTLSeconds: v.GetInt("POST_CACHE_TTL"),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	// The body MAC is the only authorization on the webhook endpoint, so an
	// empty secret would make every request verifiable by anyone.
	if c.Webhook.Secret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required")
	}

	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("BASE_URL is required")
	}

	if c.Profiling.Enabled && c.Profiling.Endpoint == "" {
		return fmt.Errorf("PROFILING_ENDPOINT is required when profiling is enabled")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.AppEnv == "development" || c.Server.GinMode == "debug"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.AppEnv == "production"
}
