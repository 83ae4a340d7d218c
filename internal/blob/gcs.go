// Package blob stores profile photos in Google Cloud Storage.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"google.golang.org/api/option"

	"github.com/tydee/tydee-pro/internal/config"
	"github.com/tydee/tydee-pro/internal/marketplace"
	"github.com/tydee/tydee-pro/internal/observability"
)

var _ marketplace.PhotoStore = (*Store)(nil)

// ErrUnavailable is returned while the breaker is open after repeated upload failures.
var ErrUnavailable = errors.New("photo storage temporarily unavailable")

const uploadTimeout = 30 * time.Second

// bucket is the part of a Cloud Storage bucket the store writes through.
type bucket interface {
	NewWriter(ctx context.Context, key, contentType string) io.WriteCloser
}

type gcsBucket struct {
	handle *storage.BucketHandle
}

func (b gcsBucket) NewWriter(ctx context.Context, key, contentType string) io.WriteCloser {
	w := b.handle.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=86400"
	return w
}

// Store uploads objects to one bucket behind a circuit breaker.
type Store struct {
	bucket  bucket
	name    string
	baseURL string
	breaker *gobreaker.CircuitBreaker
	client  *storage.Client
	logger  *logrus.Logger
}

// New creates a Cloud Storage client from cfg. Explicit credentials JSON wins over
// application default credentials.
func New(ctx context.Context, cfg config.Blob) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("blob bucket is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	s := newStore(gcsBucket{handle: client.Bucket(cfg.Bucket)}, cfg.Bucket, cfg.PublicBaseURL)
	s.client = client
	return s, nil
}

func newStore(b bucket, name, baseURL string) *Store {
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com/" + name
	}
	return &Store{
		bucket:  b,
		name:    name,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "gcs:" + name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
		logger: observability.Logger(),
	}
}

// Upload writes r to key and returns the object's public URL.
func (s *Store) Upload(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	ctx, span := observability.StartSpan(ctx, "blob.Upload")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.write(ctx, key, contentType, r)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = ErrUnavailable
		return "", err
	}
	if err != nil {
		observability.LogError(s.logger, "blob", "Upload", "object write failed", key, err)
		return "", err
	}
	return s.baseURL + "/" + key, nil
}

func (s *Store) write(ctx context.Context, key, contentType string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.bucket.NewWriter(ctx, key, contentType)
	if _, err := io.Copy(w, r); err != nil {
		// A cancelled writer aborts on Close instead of committing the partial object.
		cancel()
		_ = w.Close()
		return fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
