// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port                  string `mapstructure:"PORT"`
	Env                   string `mapstructure:"APP_ENV"`
	JWTSecret             string `mapstructure:"JWT_SECRET"`
	JWTIssuer             string `mapstructure:"JWT_ISSUER"`
	JWTAudience           string `mapstructure:"JWT_AUDIENCE"`
	JWTAccessTTLMinutes   int    `mapstructure:"JWT_ACCESS_TTL_MINUTES"`
	JWTRefreshTTLDays     int    `mapstructure:"JWT_REFRESH_TTL_DAYS"`
	DBDriver              string `mapstructure:"DB_DRIVER"`
	DBHost                string `mapstructure:"DB_HOST"`
	DBPort                string `mapstructure:"DB_PORT"`
	DBUser                string `mapstructure:"DB_USER"`
	DBPassword            string `mapstructure:"DB_PASSWORD"`
	DBName                string `mapstructure:"DB_NAME"`
	DBSSLMode             string `mapstructure:"DB_SSLMODE"`
	DBReadHost            string `mapstructure:"DB_READ_HOST"`
	DBMaxOpenConns        int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns        int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMin  int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`
	SQLitePath            string `mapstructure:"SQLITE_PATH"`
	RedisURL              string `mapstructure:"REDIS_URL"`
	AllowedOrigins        string `mapstructure:"ALLOWED_ORIGINS"`
	FrontendBaseURL       string `mapstructure:"FRONTEND_BASE_URL"`
	MediaRoot             string `mapstructure:"MEDIA_ROOT"`
	MediaURL              string `mapstructure:"MEDIA_URL"`
	AccountActivationDays int    `mapstructure:"ACCOUNT_ACTIVATION_DAYS"`
	MaxAvatarBytes        int    `mapstructure:"MAX_AVATAR_BYTES"`
	MaxCoverBytes         int    `mapstructure:"MAX_COVER_BYTES"`
	GraphQLMaxDepth       int    `mapstructure:"GRAPHQL_MAX_DEPTH"`
	GraphQLIntrospection  bool   `mapstructure:"GRAPHQL_INTROSPECTION"`
	RateLimitPerMinute    int    `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	OTelExporter          string `mapstructure:"OTEL_EXPORTER"`
	OTelEndpoint          string  `mapstructure:"OTEL_ENDPOINT"`
	OTelSampleRatio       float64 `mapstructure:"OTEL_SAMPLE_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// the base file is optional
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		slog.Info("Loaded profile-specific configuration", slog.String("file", "config."+env+".yml"))
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8000")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("JWT_SECRET", defaultJWTSecret)
	viper.SetDefault("JWT_ISSUER", "zola-api")
	viper.SetDefault("JWT_AUDIENCE", "zola-client")
	viper.SetDefault("JWT_ACCESS_TTL_MINUTES", 5)
	viper.SetDefault("JWT_REFRESH_TTL_DAYS", 7)
	viper.SetDefault("DB_DRIVER", "postgres")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "zola")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "zola")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_READ_HOST", "")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 10)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30)
	viper.SetDefault("SQLITE_PATH", "zola.db")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:3001,http://127.0.0.1:3001")
	viper.SetDefault("FRONTEND_BASE_URL", "http://localhost:3001")
	viper.SetDefault("MEDIA_ROOT", "medias")
	viper.SetDefault("MEDIA_URL", "/medias/")
	viper.SetDefault("ACCOUNT_ACTIVATION_DAYS", 7)
	viper.SetDefault("MAX_AVATAR_BYTES", 5*1024*1024)
	viper.SetDefault("MAX_COVER_BYTES", 5*1024*1024)
	viper.SetDefault("GRAPHQL_MAX_DEPTH", 12)
	viper.SetDefault("GRAPHQL_INTROSPECTION", true)
	viper.SetDefault("RATE_LIMIT_PER_MINUTE", 20)
	viper.SetDefault("OTEL_EXPORTER", "none")
	viper.SetDefault("OTEL_ENDPOINT", "localhost:4318")
	viper.SetDefault("OTEL_SAMPLE_RATIO", 1.0)
}

func (c *Config) normalize() {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.OTelExporter = strings.ToLower(strings.TrimSpace(c.OTelExporter))
	c.FrontendBaseURL = strings.TrimRight(c.FrontendBaseURL, "/")
	if !strings.HasSuffix(c.MediaURL, "/") {
		c.MediaURL += "/"
	}
}

// IsProduction reports whether strict production rules apply.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// AccessTTL is the lifetime of an access token.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

// RefreshTTL is the lifetime of a refresh token.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.JWTRefreshTTLDays) * 24 * time.Hour
}

// ActivationWindow is how long an activation key stays valid after registration.
func (c *Config) ActivationWindow() time.Duration {
	return time.Duration(c.AccountActivationDays) * 24 * time.Hour
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.JWTAccessTTLMinutes <= 0 || c.JWTRefreshTTLDays <= 0 {
		return errors.New("JWT_ACCESS_TTL_MINUTES and JWT_REFRESH_TTL_DAYS must be positive")
	}
	if c.DBDriver != "postgres" && c.DBDriver != "sqlite" {
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	if c.MaxAvatarBytes <= 0 || c.MaxCoverBytes <= 0 {
		return errors.New("MAX_AVATAR_BYTES and MAX_COVER_BYTES must be positive")
	}
	if c.AccountActivationDays <= 0 {
		return errors.New("ACCOUNT_ACTIVATION_DAYS must be positive")
	}
	switch c.OTelExporter {
	case "", "none", "stdout", "otlp":
	default:
		return fmt.Errorf("OTEL_EXPORTER must be none, stdout or otlp, got %q", c.OTelExporter)
	}
	if c.OTelSampleRatio < 0 || c.OTelSampleRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATIO must be between 0 and 1, got %v", c.OTelSampleRatio)
	}

	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBDriver == "postgres" && (c.DBPassword == "password" || c.DBPassword == "") {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBDriver == "postgres" && (c.DBSSLMode == "disable" || c.DBSSLMode == "") {
			return errors.New("DB_SSLMODE must not be disabled in production")
		}
		if c.AllowedOrigins == "*" {
			slog.Warn("ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		slog.Warn("JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
