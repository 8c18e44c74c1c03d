package ratelimit

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EndpointConfig is the limit applied to one route.
type EndpointConfig struct {
	Path   string        // Exact path, or a prefix when it ends with "/"
	Method string        // HTTP method
	Limit  int           // Requests per Window; 0 means unlimited
	Window time.Duration // Refill window
	Burst  int           // Bucket capacity (defaults to Limit if 0)
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	IdleTTL         time.Duration
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// Environment keys read by LoadConfig.
const (
	KeyEnabled         = "rate_limit_enabled"
	KeyDefaultLimit    = "rate_limit_default_limit"
	KeyDefaultWindow   = "rate_limit_default_window"
	KeyCleanupInterval = "rate_limit_cleanup_interval"
	KeyIdleTTL         = "rate_limit_idle_ttl"
	KeyWhitelist       = "rate_limit_whitelist"
	KeyBlacklist       = "rate_limit_blacklist"
)

// LoadConfig loads rate limiting configuration from environment variables
// such as RATE_LIMIT_ENABLED and RATE_LIMIT_DEFAULT_LIMIT.
func LoadConfig() *Config {
	v := viper.New()
	v.SetDefault(KeyEnabled, true)
	v.SetDefault(KeyDefaultLimit, 1000)
	v.SetDefault(KeyDefaultWindow, time.Minute)
	v.SetDefault(KeyCleanupInterval, 5*time.Minute)
	v.SetDefault(KeyIdleTTL, time.Hour)
	v.SetDefault(KeyWhitelist, "")
	v.SetDefault(KeyBlacklist, "")
	v.AutomaticEnv()

	if !v.GetBool(KeyEnabled) {
		return &Config{Enabled: false}
	}

	return &Config{
		Enabled:         true,
		DefaultLimit:    v.GetInt(KeyDefaultLimit),
		DefaultWindow:   v.GetDuration(KeyDefaultWindow),
		CleanupInterval: v.GetDuration(KeyCleanupInterval),
		IdleTTL:         v.GetDuration(KeyIdleTTL),
		Whitelist:       parseIPList(v.GetString(KeyWhitelist)),
		Blacklist:       parseIPList(v.GetString(KeyBlacklist)),
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the per-route limits of the analysis API.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Starting an analysis fans out to the provider for every media item
		{Path: "/portfolios/", Method: "POST", Limit: 10, Window: time.Hour, Burst: 2},
		{Path: "/projects/", Method: "POST", Limit: 60, Window: time.Hour, Burst: 5},

		// Clients poll job status
		{Path: "/jobs/", Method: "GET", Limit: 600, Window: time.Minute, Burst: 60},
	}
}

// parseIPList parses a comma-separated list of IP addresses into a set.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
