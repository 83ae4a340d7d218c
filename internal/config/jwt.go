package config

import "fmt"

// JWTConfig holds configuration for JWT token generation and validation.
type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

// JWTSettings returns the JWT configuration after validating it. The secret is required.
func (c *Config) JWTSettings() (*JWTConfig, error) {
	cfg := c.JWT
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize validates the configuration.
func (c *JWTConfig) normalize() error {
	if c.Secret == "" {
		return fmt.Errorf("jwt.secret (JWT_SECRET) is required but not set")
	}
	if c.ExpirationHours < 1 {
		return fmt.Errorf("jwt.expiration_hours must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	return nil
}
