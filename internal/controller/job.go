// Package controller holds the professional app's client-side job logic: the
// start-of-work handshake, the work timer and the marketplace view.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tydee/tydee-pro/internal/observability"
	"github.com/tydee/tydee-pro/internal/types"
)

const moduleName = "controller"

// Phase is the job state as the professional's app presents it.
type Phase string

// Client-observed phases.
const (
	PhaseUnknown     Phase = "unknown"
	PhaseBidding     Phase = "bidding"
	PhaseAssigned    Phase = "assigned"
	PhaseAwaitingPin Phase = "awaiting_pin"
	PhaseInProgress  Phase = "in_progress"
	PhaseCompleted   Phase = "completed"
	PhaseExpired     Phase = "expired"
	PhaseLost        Phase = "lost"
)

// ErrStale is returned when the latest server state no longer allows the action.
var ErrStale = errors.New("job has changed since it was loaded")

// ErrChecklistPending is returned by SubmitPin before the safety checklist is confirmed.
var ErrChecklistPending = errors.New("safety checklist not confirmed")

// JobBackend is the subset of the API the job controller needs.
type JobBackend interface {
	Job(ctx context.Context, jobID string) (*types.Job, error)
	StartJob(ctx context.Context, jobID, pin string) (*types.Job, error)
	CompleteJob(ctx context.Context, jobID string) error
}

// JobController tracks one job for the signed-in professional.
type JobController struct {
	backend        JobBackend
	professionalID string
	jobID          string
	now            func() time.Time
	logger         *logrus.Logger

	mu        sync.Mutex
	job       *types.Job
	checklist bool
}

// NewJobController creates a controller for jobID as seen by professionalID.
func NewJobController(backend JobBackend, professionalID, jobID string) *JobController {
	return &JobController{
		backend:        backend,
		professionalID: professionalID,
		jobID:          jobID,
		now:            time.Now,
		logger:         observability.Logger(),
	}
}

// WithClock replaces the wall clock, for tests.
func (c *JobController) WithClock(now func() time.Time) *JobController {
	c.now = now
	return c
}

// WithLogger replaces the process logger.
func (c *JobController) WithLogger(l *logrus.Logger) *JobController {
	c.logger = l
	return c
}

// Apply takes a snapshot from a subscription or a response. Snapshots not newer than
// the current one are ignored so duplicates and reordered deliveries do nothing.
// It reports whether the snapshot was applied.
func (c *JobController) Apply(job types.Job) bool {
	if job.ID != c.jobID {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.job != nil && job.Version <= c.job.Version {
		return false
	}
	before := c.phaseLocked()
	c.job = job.Clone()
	// Losing the assignment voids the local checklist confirmation
	if !c.job.IsAssignedTo(c.professionalID) || c.job.Status != types.StatusAssigned {
		c.checklist = false
	}
	if after := c.phaseLocked(); after != before {
		c.logger.WithFields(logrus.Fields{
			"module":  moduleName,
			"jobId":   c.jobID,
			"from":    before,
			"to":      after,
			"version": job.Version,
		}).Debug("job phase changed")
	}
	return true
}

// Follow applies snapshots from src until it is closed or ctx is done.
func (c *JobController) Follow(ctx context.Context, src <-chan types.Job, onChange func(Phase)) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-src:
			if !ok {
				return
			}
			if c.Apply(job) && onChange != nil {
				onChange(c.Phase())
			}
		}
	}
}

// Job returns a copy of the latest applied snapshot, or nil.
func (c *JobController) Job() *types.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job == nil {
		return nil
	}
	return c.job.Clone()
}

// Phase returns the current client-observed phase.
func (c *JobController) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phaseLocked()
}

func (c *JobController) phaseLocked() Phase {
	if c.job == nil {
		return PhaseUnknown
	}
	mine := c.job.IsAssignedTo(c.professionalID)
	switch c.job.Status {
	case types.StatusPending, types.StatusOpen:
		return PhaseBidding
	case types.StatusExpired:
		return PhaseExpired
	case types.StatusAssigned:
		if !mine {
			return PhaseLost
		}
		if c.checklist {
			return PhaseAwaitingPin
		}
		return PhaseAssigned
	case types.StatusInProgress:
		if !mine {
			return PhaseLost
		}
		return PhaseInProgress
	case types.StatusCompleted:
		if !mine {
			return PhaseLost
		}
		return PhaseCompleted
	}
	return PhaseUnknown
}

// ConfirmChecklist records the safety checklist locally. Nothing is written to the server.
func (c *JobController) ConfirmChecklist() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phaseLocked() != PhaseAssigned {
		return fmt.Errorf("%w: checklist needs an assigned job, phase is %s", ErrStale, c.phaseLocked())
	}
	c.checklist = true
	return nil
}

// SubmitPin re-reads the job from the server and, if it is still assigned to this
// professional, submits the PIN. A wrong PIN leaves the phase unchanged.
func (c *JobController) SubmitPin(ctx context.Context, pin string) (*types.Job, error) {
	c.mu.Lock()
	confirmed := c.checklist
	c.mu.Unlock()
	if !confirmed {
		return nil, ErrChecklistPending
	}

	latest, err := c.backend.Job(ctx, c.jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh job: %w", err)
	}
	c.Apply(*latest)
	if !latest.IsAssignedTo(c.professionalID) || latest.Status != types.StatusAssigned {
		return nil, fmt.Errorf("%w: job is %s", ErrStale, latest.Status)
	}

	started, err := c.backend.StartJob(ctx, c.jobID, strings.TrimSpace(pin))
	if err != nil {
		return nil, err
	}
	c.Apply(*started)
	c.logger.WithFields(logrus.Fields{"module": moduleName, "jobId": c.jobID}).Info("job started")
	return started, nil
}

// Elapsed is the work time at now, computed from the server's start timestamp.
// A completed job reports its final duration.
func (c *JobController) Elapsed(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job == nil || c.job.JobStartedAt == nil {
		return 0
	}
	end := now
	if c.job.Status == types.StatusCompleted && c.job.CompletedAt != nil {
		end = *c.job.CompletedAt
	}
	if d := end.Sub(*c.job.JobStartedAt); d > 0 {
		return d
	}
	return 0
}

// Ticker calls fn with the elapsed time immediately and then every interval while the
// job is in progress. It returns when ctx is done or the job leaves in progress.
func (c *JobController) Ticker(ctx context.Context, every time.Duration, fn func(time.Duration)) {
	if c.Phase() != PhaseInProgress {
		return
	}
	fn(c.Elapsed(c.now()))

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.Phase() != PhaseInProgress {
				return
			}
			fn(c.Elapsed(c.now()))
		}
	}
}

// Complete marks the job completed and refreshes the local snapshot.
func (c *JobController) Complete(ctx context.Context) error {
	if phase := c.Phase(); phase != PhaseInProgress {
		return fmt.Errorf("%w: cannot complete from phase %s", ErrStale, phase)
	}
	if err := c.backend.CompleteJob(ctx, c.jobID); err != nil {
		return err
	}
	latest, err := c.backend.Job(ctx, c.jobID)
	if err != nil {
		return fmt.Errorf("failed to refresh job: %w", err)
	}
	c.Apply(*latest)
	return nil
}
