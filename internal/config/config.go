// Package config loads service configuration from defaults, an optional config
// file, and the environment, and validates it before anything else runs.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds every tunable of the analysis service.
type Config struct {
	// Storage
	DatabaseURL string `validate:"required"`

	// Provider
	GeminiAPIKey        string `validate:"required"`
	MediaModel          string `validate:"required"`
	SynthesisModel      string `validate:"required"`
	EmbeddingModel      string `validate:"required"`
	EmbeddingDimensions int    `validate:"gt=0"`

	// Pipeline tuning
	ImageConcurrency    int           `validate:"min=1"`
	VideoConcurrency    int           `validate:"min=1"`
	MediaWaitTimeout    time.Duration `validate:"gt=0"`
	ProjectWaitTimeout  time.Duration `validate:"gt=0"`
	CompletionThreshold float64       `validate:"gt=0,lte=1"`
	MediaRetries        int           `validate:"min=0,max=5"`
	SettleDelay         time.Duration `validate:"min=0"`
	SlotTimeout         time.Duration `validate:"gt=0"`
	FetchMaxBytes       int64         `validate:"gt=0"`

	// Server
	Port           string `validate:"required"`
	AllowedOrigins string

	// Optional job status mirror; empty RedisAddr disables it
	RedisAddr     string
	RedisPassword string
	RedisDB       int `validate:"min=0"`

	// Logging
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json text"`
}

// Keys read from the config file or environment. AutomaticEnv maps each key
// to its upper-case environment variable, e.g. database_url -> DATABASE_URL.
const (
	KeyDatabaseURL         = "database_url"
	KeyGeminiAPIKey        = "gemini_api_key"
	KeyMediaModel          = "media_model"
	KeySynthesisModel      = "synthesis_model"
	KeyEmbeddingModel      = "embedding_model"
	KeyEmbeddingDimensions = "embedding_dimensions"
	KeyImageConcurrency    = "image_concurrency"
	KeyVideoConcurrency    = "video_concurrency"
	KeyMediaWaitTimeout    = "media_wait_timeout"
	KeyProjectWaitTimeout  = "project_wait_timeout"
	KeyCompletionThreshold = "completion_threshold"
	KeyMediaRetries        = "media_retries"
	KeySettleDelay         = "settle_delay"
	KeySlotTimeout         = "slot_timeout"
	KeyFetchMaxBytes       = "fetch_max_bytes"
	KeyPort                = "port"
	KeyAllowedOrigins      = "cors_allowed_origins"
	KeyRedisAddr           = "redis_addr"
	KeyRedisPassword       = "redis_password"
	KeyRedisDB             = "redis_db"
	KeyLogLevel            = "log_level"
	KeyLogFormat           = "log_format"
)

var defaults = map[string]any{
	KeyMediaModel:          "gemini-2.5-flash",
	KeySynthesisModel:      "gemini-2.5-pro",
	KeyEmbeddingModel:      "text-embedding-004",
	KeyEmbeddingDimensions: 768,
	KeyImageConcurrency:    8,
	KeyVideoConcurrency:    2,
	KeyMediaWaitTimeout:    5 * time.Minute,
	KeyProjectWaitTimeout:  10 * time.Minute,
	KeyCompletionThreshold: 0.70,
	KeyMediaRetries:        1,
	KeySettleDelay:         2 * time.Second,
	KeySlotTimeout:         2 * time.Minute,
	KeyFetchMaxBytes:       20 << 20,
	KeyPort:                "8080",
	KeyAllowedOrigins:      "*",
	KeyRedisAddr:           "",
	KeyRedisPassword:       "",
	KeyRedisDB:             0,
	KeyLogLevel:            "info",
	KeyLogFormat:           "json",
	KeyDatabaseURL:         "",
	KeyGeminiAPIKey:        "",
}

// Default returns the configuration with every default applied and no secrets set.
func Default() *Config {
	cfg, _ := fromViper(newViper())
	return cfg
}

// Load reads configuration. path may be empty, in which case only defaults
// and environment variables are used. The result is not validated.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	return fromViper(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	return v
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DatabaseURL:         v.GetString(KeyDatabaseURL),
		GeminiAPIKey:        v.GetString(KeyGeminiAPIKey),
		MediaModel:          v.GetString(KeyMediaModel),
		SynthesisModel:      v.GetString(KeySynthesisModel),
		EmbeddingModel:      v.GetString(KeyEmbeddingModel),
		EmbeddingDimensions: v.GetInt(KeyEmbeddingDimensions),
		ImageConcurrency:    v.GetInt(KeyImageConcurrency),
		VideoConcurrency:    v.GetInt(KeyVideoConcurrency),
		MediaWaitTimeout:    v.GetDuration(KeyMediaWaitTimeout),
		ProjectWaitTimeout:  v.GetDuration(KeyProjectWaitTimeout),
		CompletionThreshold: v.GetFloat64(KeyCompletionThreshold),
		MediaRetries:        v.GetInt(KeyMediaRetries),
		SettleDelay:         v.GetDuration(KeySettleDelay),
		SlotTimeout:         v.GetDuration(KeySlotTimeout),
		FetchMaxBytes:       v.GetInt64(KeyFetchMaxBytes),
		Port:                v.GetString(KeyPort),
		AllowedOrigins:      v.GetString(KeyAllowedOrigins),
		RedisAddr:           v.GetString(KeyRedisAddr),
		RedisPassword:       v.GetString(KeyRedisPassword),
		RedisDB:             v.GetInt(KeyRedisDB),
		LogLevel:            v.GetString(KeyLogLevel),
		LogFormat:           v.GetString(KeyLogFormat),
	}
	return cfg, nil
}

// Origins splits the comma-separated CORS origin list.
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

var validate = validator.New()

// Validate checks every field, including provider credentials.
func (c *Config) Validate() error {
	return describe(validate.Struct(c))
}

// ValidateStorage checks everything except provider credentials, for commands
// that only touch the database.
func (c *Config) ValidateStorage() error {
	return describe(validate.StructExcept(c, "GeminiAPIKey"))
}

// describe turns validator errors into a single readable error.
func describe(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config error: %w", err)
	}
	msgs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Errorf("'%s' failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Errorf("'%s' is %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("config error: %w", errors.Join(msgs...))
}
