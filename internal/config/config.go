// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config holds runtime configuration values loaded from file or environment variables.
type Config struct {
	Port           string `mapstructure:"PORT"`
	GraphQLURL     string `mapstructure:"GRAPHQL_URL"`
	GraphQLWSURL   string `mapstructure:"GRAPHQL_WS_URL"`
	AuthURL        string `mapstructure:"AUTH_URL"`
	AuthAPIKey     string `mapstructure:"AUTH_API_KEY"`
	UploadURL      string `mapstructure:"UPLOAD_URL"`
	UploadPreset   string `mapstructure:"UPLOAD_PRESET"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	Env            string `mapstructure:"APP_ENV"`
	FeedPageSize   int    `mapstructure:"FEED_PAGE_SIZE"`

	ImageMaxUploadSizeMB int `mapstructure:"IMAGE_MAX_UPLOAD_SIZE_MB"`

	TracingEnabled  bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint    string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampler  float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
}

// LoadConfig loads runtime configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional; env vars and defaults cover everything.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	viper.SetDefault("PORT", "8480")
	viper.SetDefault("GRAPHQL_URL", "http://localhost:8080/v1/graphql")
	viper.SetDefault("GRAPHQL_WS_URL", "ws://localhost:8080/v1/graphql")
	viper.SetDefault("AUTH_URL", "http://localhost:9099/identitytoolkit")
	viper.SetDefault("AUTH_API_KEY", "")
	viper.SetDefault("UPLOAD_URL", "http://localhost:8481/image/upload")
	viper.SetDefault("UPLOAD_PRESET", "photogram-dev")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("FEED_PAGE_SIZE", 2)
	viper.SetDefault("IMAGE_MAX_UPLOAD_SIZE_MB", 10)
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate ensures that required configuration values are present and sane.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.GraphQLURL == "" {
		return errors.New("GRAPHQL_URL is required")
	}
	if c.AuthURL == "" {
		return errors.New("AUTH_URL is required")
	}
	if c.FeedPageSize <= 0 {
		return errors.New("FEED_PAGE_SIZE must be positive")
	}

	isProduction := c.Env == "production" || c.Env == "prod"

	if isProduction {
		if c.AuthAPIKey == "" {
			return errors.New("AUTH_API_KEY is required in production")
		}
		if strings.HasPrefix(c.GraphQLURL, "http://") {
			log.Println("WARNING: GRAPHQL_URL uses plain HTTP in production. Use HTTPS.")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	}

	return nil
}
