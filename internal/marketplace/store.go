package marketplace

import (
	"context"
	"io"
	"time"

	"github.com/tydee/tydee-pro/internal/types"
)

// Store is the document store behind the marketplace. Lookups return nil, nil
// when the record does not exist.
type Store interface {
	// CreateJob inserts a new job. The store sets Version to 1.
	CreateJob(ctx context.Context, job *types.Job) error
	GetJob(ctx context.Context, id string) (*types.Job, error)
	// UpdateJob runs fn on the current job inside one transaction. When fn returns
	// an error nothing is written and the error is returned unchanged. Otherwise
	// the mutated job is written with Version incremented and returned.
	UpdateJob(ctx context.Context, id string, fn func(*types.Job) error) (*types.Job, error)
	// ListJobs returns matching jobs, newest first.
	ListJobs(ctx context.Context, filter types.JobFilter) ([]types.Job, error)
	// ExpireJobs moves every job still accepting bids and created at or before
	// cutoff to expired in one batch, and returns their ids.
	ExpireJobs(ctx context.Context, cutoff time.Time, now time.Time) ([]string, error)
	// SubscribeJob delivers a snapshot after each write to the job until ctx is done.
	// Slow readers see only the latest snapshot.
	SubscribeJob(ctx context.Context, id string) (<-chan types.Job, error)

	GetProfessional(ctx context.Context, uid string) (*types.Professional, error)
	// CreateProfessional inserts the profile unless one exists, and returns the stored profile.
	CreateProfessional(ctx context.Context, p *types.Professional) (*types.Professional, error)
	UpdateProfessional(ctx context.Context, uid string, fn func(*types.Professional) error) (*types.Professional, error)

	GetCustomer(ctx context.Context, uid string) (*types.Customer, error)
	// SetCustomerPin upserts the permanent PIN and copies it onto the customer's jobs
	// that have not started yet. It returns the number of jobs updated.
	SetCustomerPin(ctx context.Context, uid string, pin string, now time.Time) (int, error)

	ListServices(ctx context.Context, activeOnly bool) ([]types.ServiceOffering, error)
}

// PropertyValidator checks propertyDetails against the schema of a sub-service.
// Sub-services without a schema accept anything.
type PropertyValidator interface {
	ValidatePropertyDetails(subService string, details map[string]any) error
}

// PhotoStore persists profile photos and returns their public URL.
type PhotoStore interface {
	Upload(ctx context.Context, key string, contentType string, r io.Reader) (string, error)
}

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker obtains named locks. Obtain returns ErrLockHeld when another runner holds key.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}
