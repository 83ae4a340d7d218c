package ratelimit

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix scopes the limiter's environment overrides, e.g. RATE_LIMIT_DEFAULT_LIMIT.
const EnvPrefix = "RATE_LIMIT"

// EndpointConfig limits one route. Path is a pattern where "*" matches one segment.
type EndpointConfig struct {
	Path   string
	Method string
	Limit  int           // requests per window
	Window time.Duration // refill period for Limit tokens
	Burst  int           // bucket capacity, Limit when 0
}

// LoadConfig reads the RATE_LIMIT_* environment variables. Unparseable or
// non-positive values keep their defaults.
func LoadConfig() *Config {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetDefault("enabled", true)

	if !v.GetBool("enabled") {
		return &Config{Enabled: false}
	}

	return &Config{
		Enabled:         true,
		DefaultLimit:    positiveInt(v, "default_limit", 600),
		DefaultWindow:   positiveDuration(v, "default_window", time.Minute),
		CleanupInterval: positiveDuration(v, "cleanup_interval", 5*time.Minute),
		IdleTTL:         positiveDuration(v, "idle_ttl", time.Hour),
		Whitelist:       parseIPList(v.GetString("whitelist")),
		Blacklist:       parseIPList(v.GetString("blacklist")),
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the per-route limits. Reads fall through to the default.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// PIN attempts are also locked out per job; this caps guessing across jobs.
		{Path: "/jobs/*/start", Method: "POST", Limit: 10, Window: time.Minute, Burst: 5},

		{Path: "/jobs", Method: "POST", Limit: 30, Window: time.Hour, Burst: 5},
		{Path: "/jobs/*/bids", Method: "POST", Limit: 60, Window: time.Minute, Burst: 10},
		{Path: "/jobs/*/accept", Method: "POST", Limit: 30, Window: time.Minute, Burst: 5},
		{Path: "/jobs/*/complete", Method: "POST", Limit: 30, Window: time.Minute, Burst: 5},
		{Path: "/jobs/*/events", Method: "GET", Limit: 60, Window: time.Minute, Burst: 10},

		{Path: "/professionals/me", Method: "POST", Limit: 10, Window: time.Minute, Burst: 3},
		{Path: "/professionals/me/photo", Method: "PUT", Limit: 10, Window: time.Hour, Burst: 3},
		{Path: "/professionals/me/presence", Method: "PUT", Limit: 120, Window: time.Minute, Burst: 10},
		{Path: "/customers/me/pin", Method: "PUT", Limit: 10, Window: time.Hour, Burst: 3},
	}
}

func positiveInt(v *viper.Viper, key string, fallback int) int {
	if n := v.GetInt(key); n > 0 {
		return n
	}
	return fallback
}

func positiveDuration(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	if d := v.GetDuration(key); d > 0 {
		return d
	}
	return fallback
}

// parseIPList turns "a, b,c" into a set. Blank entries are skipped.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
