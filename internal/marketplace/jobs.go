package marketplace

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tydee/tydee-pro/internal/observability"
	"github.com/tydee/tydee-pro/internal/types"
)

const (
	pinAlphabet     = "0123456789"
	pinLength       = 4
	defaultCategory = "General"
	defaultUrgency  = "normal"
)

// CreateJobResult is returned by CreateJob.
type CreateJobResult struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
}

// CreateJob validates the request and stores a new pending job with an empty bid ledger.
func (s *Service) CreateJob(ctx context.Context, customerID string, req *types.CreateJobRequest) (res *CreateJobResult, err error) {
	ctx, span := observability.StartSpan(ctx, "marketplace.CreateJob", attribute.String("customer.id", customerID))
	defer func() { observability.EndSpan(span, err) }()

	if customerID == "" {
		return nil, &ErrUnauthenticated{}
	}
	if req == nil {
		return nil, &ErrInvalidArgument{Message: "request body is required"}
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}
	if s.properties != nil && req.SubService != "" {
		if err := s.properties.ValidatePropertyDetails(req.SubService, req.PropertyDetails); err != nil {
			return nil, &ErrInvalidArgument{Field: "propertyDetails", Message: err.Error()}
		}
	}

	pin, err := s.choosePin(ctx, customerID, req.StartPin)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	job := &types.Job{
		ID:              uuid.NewString(),
		CustomerID:      customerID,
		Title:           req.Title,
		Description:     req.Description,
		Category:        orDefault(req.Category, defaultCategory),
		SubService:      orDefault(req.SubService, defaultCategory),
		Services:        req.Services,
		Budget:          req.Budget,
		Urgency:         orDefault(req.Urgency, defaultUrgency),
		Location:        req.Location,
		PropertyDetails: req.PropertyDetails,
		ScheduledDate:   req.ScheduledDate,
		ScheduledTime:   req.ScheduledTime,
		Status:          types.StatusPending,
		BidStatus:       types.BidStatusOpen,
		Bids:            []types.Bid{},
		Bidders:         []string{},
		StartPin:        pin,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.opts.ExpiryWindow),
		UpdatedAt:       now,
	}
	if job.PropertyDetails == nil {
		job.PropertyDetails = map[string]any{}
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		observability.LogError(s.logger, moduleName, "CreateJob", "failed to store job", customerID, err)
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.log().WithFields(logrus.Fields{"jobId": job.ID, "customerId": customerID}).Info("job created")
	return &CreateJobResult{Success: true, JobID: job.ID}, nil
}

// choosePin picks the explicit PIN, then the customer's permanent PIN, then a random one.
func (s *Service) choosePin(ctx context.Context, customerID, explicit string) (string, error) {
	if pin := strings.TrimSpace(explicit); pin != "" {
		return pin, nil
	}
	customer, err := s.store.GetCustomer(ctx, customerID)
	if err != nil {
		return "", fmt.Errorf("failed to load customer: %w", err)
	}
	if customer != nil && validPin(customer.PermanentPin) {
		return customer.PermanentPin, nil
	}
	return GeneratePin()
}

// GeneratePin returns a random 4-digit start PIN.
func GeneratePin() (string, error) {
	pin, err := gonanoid.Generate(pinAlphabet, pinLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate start pin: %w", err)
	}
	return pin, nil
}

func validPin(pin string) bool {
	if len(pin) != pinLength {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Job returns a job as the caller may see it. Only the customer sees the start PIN.
func (s *Service) Job(ctx context.Context, uid, jobID string) (*types.Job, error) {
	if uid == "" {
		return nil, &ErrUnauthenticated{}
	}
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return nil, &ErrJobNotFound{JobID: jobID}
	}
	view := viewFor(*job, uid)
	return &view, nil
}

// AvailableJobs lists jobs still accepting bids, newest first, excluding the caller's own.
func (s *Service) AvailableJobs(ctx context.Context, uid string) (jobs []types.Job, err error) {
	ctx, span := observability.StartSpan(ctx, "marketplace.AvailableJobs", attribute.String("professional.id", uid))
	defer func() { observability.EndSpan(span, err) }()

	if uid == "" {
		return nil, &ErrUnauthenticated{}
	}
	jobs, err = s.store.ListJobs(ctx, types.JobFilter{
		Statuses:          []types.Status{types.StatusOpen, types.StatusPending},
		BidStatus:         types.BidStatusOpen,
		ExcludeCustomerID: uid,
		Limit:             s.opts.AvailableLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list available jobs: %w", err)
	}
	for i := range jobs {
		jobs[i] = jobs[i].Redacted()
	}
	return jobs, nil
}

// Bookings lists jobs assigned to the professional, newest first. No statuses means
// assigned, in progress and completed.
func (s *Service) Bookings(ctx context.Context, uid string, statuses []types.Status) ([]types.Job, error) {
	if uid == "" {
		return nil, &ErrUnauthenticated{}
	}
	if len(statuses) == 0 {
		statuses = []types.Status{types.StatusAssigned, types.StatusInProgress, types.StatusCompleted}
	}
	jobs, err := s.store.ListJobs(ctx, types.JobFilter{
		Statuses:               statuses,
		AssignedProfessionalID: uid,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	for i := range jobs {
		jobs[i] = viewFor(jobs[i], uid)
	}
	return jobs, nil
}

// SubscribeJob streams snapshots of a job, as the caller may see them, until ctx is done.
func (s *Service) SubscribeJob(ctx context.Context, uid, jobID string) (<-chan types.Job, error) {
	if _, err := s.Job(ctx, uid, jobID); err != nil {
		return nil, err
	}
	src, err := s.store.SubscribeJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to job: %w", err)
	}

	out := make(chan types.Job, 1)
	go func() {
		defer close(out)
		for job := range src {
			select {
			case out <- viewFor(job, uid):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func viewFor(job types.Job, uid string) types.Job {
	if job.CustomerID == uid {
		return job
	}
	return job.Redacted()
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
