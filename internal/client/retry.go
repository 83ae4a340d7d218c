package client

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tydee/tydee-pro/internal/marketplace"
)

// Onboarding retry defaults.
const (
	DefaultPermissionAttempts = 3
	DefaultPermissionDelay    = 1500 * time.Millisecond
)

// RetryOnPermission calls fn up to attempts times, waiting delay between calls, while
// it fails with permission-denied. Any other outcome is returned immediately.
func RetryOnPermission(ctx context.Context, attempts int, delay time.Duration, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)),
		ctx,
	)
	return backoff.Retry(func() error {
		err := fn(ctx)
		if err == nil || marketplace.CodeOf(err) == marketplace.CodePermissionDenied {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}
