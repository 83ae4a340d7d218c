// Package config loads service configuration from an optional file and the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. TYDEE_SERVER_PORT.
const EnvPrefix = "TYDEE"

// Config is the full service configuration.
type Config struct {
	Server      Server
	Database    Database
	JWT         JWTConfig
	Redis       Redis
	Blob        Blob
	Sweeper     Sweeper
	Job         Job
	Pin         Pin
	Marketplace Marketplace
	Log         Log
}

// Server configures the HTTP listener.
type Server struct {
	Port int
}

// Database configures the PostgreSQL document store.
type Database struct {
	URL string
}

// Redis configures the optional sweeper lock backend. An empty URL disables it.
type Redis struct {
	URL string
}

// Blob configures the Cloud Storage bucket holding profile photos.
type Blob struct {
	Bucket          string
	CredentialsJSON string
	PublicBaseURL   string
}

// Sweeper configures the job expiry sweeper.
type Sweeper struct {
	Interval time.Duration
	MaxAge   time.Duration
}

// Job configures job creation.
type Job struct {
	ExpiryWindow time.Duration
}

// Pin configures the start-PIN brute-force guard.
type Pin struct {
	MaxAttempts int
	Window      time.Duration
	Lockout     time.Duration
}

// Marketplace configures listing and accounting.
type Marketplace struct {
	AvailableLimit int
	CommissionRate float64
}

// Log configures the process logger.
type Log struct {
	Level  string
	Format string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("jwt.expiration_hours", 24)
	v.SetDefault("sweeper.interval", 5*time.Minute)
	v.SetDefault("sweeper.max_age", time.Hour)
	v.SetDefault("job.expiry_window", time.Hour)
	v.SetDefault("pin.max_attempts", 5)
	v.SetDefault("pin.window", 15*time.Minute)
	v.SetDefault("pin.lockout", 15*time.Minute)
	v.SetDefault("marketplace.available_limit", 50)
	v.SetDefault("marketplace.commission_rate", 0.10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration from path (YAML or JSON, optional) and the environment.
// Environment variables override file values. The unprefixed DATABASE_URL, JWT_SECRET,
// JWT_EXPIRATION_HOURS, REDIS_URL and PORT are honoured as well.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range map[string]string{
		"database.url":         "DATABASE_URL",
		"jwt.secret":           "JWT_SECRET",
		"jwt.expiration_hours": "JWT_EXPIRATION_HOURS",
		"redis.url":            "REDIS_URL",
		"server.port":          "PORT",
	} {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Server:   Server{Port: v.GetInt("server.port")},
		Database: Database{URL: v.GetString("database.url")},
		JWT: JWTConfig{
			Secret:          v.GetString("jwt.secret"),
			ExpirationHours: v.GetInt("jwt.expiration_hours"),
		},
		Redis: Redis{URL: v.GetString("redis.url")},
		Blob: Blob{
			Bucket:          v.GetString("blob.bucket"),
			CredentialsJSON: v.GetString("blob.credentials_json"),
			PublicBaseURL:   strings.TrimRight(v.GetString("blob.public_base_url"), "/"),
		},
		Sweeper: Sweeper{
			Interval: v.GetDuration("sweeper.interval"),
			MaxAge:   v.GetDuration("sweeper.max_age"),
		},
		Job: Job{ExpiryWindow: v.GetDuration("job.expiry_window")},
		Pin: Pin{
			MaxAttempts: v.GetInt("pin.max_attempts"),
			Window:      v.GetDuration("pin.window"),
			Lockout:     v.GetDuration("pin.lockout"),
		},
		Marketplace: Marketplace{
			AvailableLimit: v.GetInt("marketplace.available_limit"),
			CommissionRate: v.GetFloat64("marketplace.commission_rate"),
		},
		Log: Log{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges. Required secrets are checked where they are used
// so that commands which do not need them still run.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config error: 'server.port' out of range: %d", c.Server.Port)
	}
	if c.Sweeper.Interval <= 0 {
		return fmt.Errorf("config error: 'sweeper.interval' must be positive")
	}
	if c.Sweeper.MaxAge <= 0 || c.Job.ExpiryWindow <= 0 {
		return fmt.Errorf("config error: expiry durations must be positive")
	}
	if c.Pin.MaxAttempts < 1 {
		return fmt.Errorf("config error: 'pin.max_attempts' must be at least 1")
	}
	if c.Pin.Window <= 0 || c.Pin.Lockout <= 0 {
		return fmt.Errorf("config error: pin window and lockout must be positive")
	}
	if c.Marketplace.AvailableLimit < 1 {
		return fmt.Errorf("config error: 'marketplace.available_limit' must be at least 1")
	}
	if c.Marketplace.CommissionRate < 0 || c.Marketplace.CommissionRate >= 1 {
		return fmt.Errorf("config error: 'marketplace.commission_rate' must be in [0, 1)")
	}
	return nil
}
