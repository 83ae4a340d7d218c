// Package marketplace implements the job and bid lifecycle: creation, bidding,
// acceptance, the start-PIN handshake, completion, expiry and payout accounting.
package marketplace

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tydee/tydee-pro/internal/config"
	"github.com/tydee/tydee-pro/internal/observability"
)

const moduleName = "marketplace"

// Options tunes the service. Zero values fall back to DefaultOptions, except
// CommissionRate where zero means no commission and only a negative rate falls back.
type Options struct {
	ExpiryWindow   time.Duration
	AvailableLimit int
	CommissionRate float64
	PinMaxAttempts int
	PinWindow      time.Duration
	PinLockout     time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		ExpiryWindow:   time.Hour,
		AvailableLimit: 50,
		CommissionRate: 0.10,
		PinMaxAttempts: 5,
		PinWindow:      15 * time.Minute,
		PinLockout:     15 * time.Minute,
	}
}

// OptionsFromConfig maps the loaded configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ExpiryWindow:   cfg.Job.ExpiryWindow,
		AvailableLimit: cfg.Marketplace.AvailableLimit,
		CommissionRate: cfg.Marketplace.CommissionRate,
		PinMaxAttempts: cfg.Pin.MaxAttempts,
		PinWindow:      cfg.Pin.Window,
		PinLockout:     cfg.Pin.Lockout,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ExpiryWindow <= 0 {
		o.ExpiryWindow = d.ExpiryWindow
	}
	if o.AvailableLimit <= 0 {
		o.AvailableLimit = d.AvailableLimit
	}
	if o.CommissionRate < 0 {
		o.CommissionRate = d.CommissionRate
	}
	if o.PinMaxAttempts <= 0 {
		o.PinMaxAttempts = d.PinMaxAttempts
	}
	if o.PinWindow <= 0 {
		o.PinWindow = d.PinWindow
	}
	if o.PinLockout <= 0 {
		o.PinLockout = d.PinLockout
	}
	return o
}

// Service runs marketplace operations against a Store.
type Service struct {
	store      Store
	properties PropertyValidator
	photos     PhotoStore
	opts       Options
	now        func() time.Time
	logger     *logrus.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPropertyValidator validates propertyDetails on job creation.
func WithPropertyValidator(v PropertyValidator) Option {
	return func(s *Service) { s.properties = v }
}

// WithPhotoStore enables profile photo uploads.
func WithPhotoStore(p PhotoStore) Option {
	return func(s *Service) { s.photos = p }
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger replaces the process logger.
func WithLogger(l *logrus.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a marketplace service.
func NewService(store Store, opts Options, options ...Option) *Service {
	s := &Service{
		store:  store,
		opts:   opts.withDefaults(),
		now:    time.Now,
		logger: observability.Logger(),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

func (s *Service) log() *logrus.Entry {
	return s.logger.WithField("module", moduleName)
}
