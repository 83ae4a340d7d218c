package marketplace

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tydee/tydee-pro/internal/observability"
	"github.com/tydee/tydee-pro/internal/types"
)

// StartJob runs the on-site handshake: the assigned professional enters the PIN the
// customer reads out, and on a match the job moves to in progress. Failed attempts
// are counted on the job; too many within the window lock further attempts out.
func (s *Service) StartJob(ctx context.Context, professionalID, jobID, pin string) (job *types.Job, err error) {
	ctx, span := observability.StartSpan(ctx, "marketplace.StartJob",
		attribute.String("job.id", jobID), attribute.String("professional.id", professionalID))
	defer func() { observability.EndSpan(span, err) }()

	if professionalID == "" {
		return nil, &ErrUnauthenticated{}
	}
	if strings.TrimSpace(pin) == "" {
		return nil, &ErrInvalidArgument{Field: "pin", Message: "is required"}
	}

	now := s.now().UTC()
	// A mismatch must still commit the attempt counter, so it is reported
	// through outcome rather than as the transaction's error.
	var outcome error
	job, err = s.store.UpdateJob(ctx, jobID, func(j *types.Job) error {
		if !j.IsAssignedTo(professionalID) {
			return &ErrPermissionDenied{Reason: "only the assigned professional can start this job"}
		}
		if j.Status != types.StatusAssigned {
			return &ErrJobUnavailable{JobID: j.ID, Status: string(j.Status), Message: "job cannot be started from status " + string(j.Status)}
		}
		if j.PinLockedUntil != nil {
			if j.PinLockedUntil.After(now) {
				return &ErrPinLocked{Until: *j.PinLockedUntil}
			}
			j.PinLockedUntil = nil
		}

		if pinMatches(j.StartPin, pin) {
			j.Status = types.StatusInProgress
			j.JobStartedAt = &now
			j.PinFailedAttempts = 0
			j.PinWindowStartedAt = nil
			j.UpdatedAt = now
			return nil
		}

		if j.PinWindowStartedAt == nil || now.Sub(*j.PinWindowStartedAt) >= s.opts.PinWindow {
			j.PinFailedAttempts = 0
			j.PinWindowStartedAt = &now
		}
		j.PinFailedAttempts++
		remaining := s.opts.PinMaxAttempts - j.PinFailedAttempts
		if remaining <= 0 {
			until := now.Add(s.opts.PinLockout)
			j.PinLockedUntil = &until
			j.PinFailedAttempts = 0
			j.PinWindowStartedAt = nil
			remaining = 0
		}
		j.UpdatedAt = now
		outcome = &ErrInvalidPin{Remaining: remaining}
		return nil
	})
	if err != nil {
		return nil, s.storeError("StartJob", jobID, err)
	}
	if job == nil {
		return nil, &ErrJobNotFound{JobID: jobID}
	}
	if outcome != nil {
		s.log().WithFields(logrus.Fields{
			"jobId":          jobID,
			"professionalId": professionalID,
			"locked":         job.PinLockedUntil != nil,
		}).Warn("start pin rejected")
		return nil, outcome
	}

	s.log().WithFields(logrus.Fields{"jobId": jobID, "professionalId": professionalID}).Info("job started")
	view := job.Redacted()
	return &view, nil
}

// pinMatches compares trimmed PINs in constant time. An empty stored PIN never matches.
func pinMatches(stored, given string) bool {
	a := strings.TrimSpace(stored)
	b := strings.TrimSpace(given)
	if a == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// CompleteJob marks an in-progress job completed. Only the assignee may complete it.
func (s *Service) CompleteJob(ctx context.Context, professionalID, jobID string) (err error) {
	ctx, span := observability.StartSpan(ctx, "marketplace.CompleteJob",
		attribute.String("job.id", jobID), attribute.String("professional.id", professionalID))
	defer func() { observability.EndSpan(span, err) }()

	if professionalID == "" {
		return &ErrUnauthenticated{}
	}

	now := s.now().UTC()
	job, err := s.store.UpdateJob(ctx, jobID, func(j *types.Job) error {
		if !j.IsAssignedTo(professionalID) {
			return &ErrPermissionDenied{Reason: "only the assigned professional can complete this job"}
		}
		if !j.Status.CanTransitionTo(types.StatusCompleted) {
			return &ErrJobUnavailable{JobID: j.ID, Status: string(j.Status), Message: "job is not in progress"}
		}
		j.Status = types.StatusCompleted
		j.CompletedAt = &now
		j.UpdatedAt = now
		return nil
	})
	if err != nil {
		return s.storeError("CompleteJob", jobID, err)
	}
	if job == nil {
		return &ErrJobNotFound{JobID: jobID}
	}

	s.log().WithFields(logrus.Fields{"jobId": jobID, "professionalId": professionalID}).Info("job completed")
	return nil
}

// SetCustomerPin stores the customer's permanent PIN and applies it to their jobs
// that have not started. It returns the number of jobs updated.
func (s *Service) SetCustomerPin(ctx context.Context, customerID, pin string) (int, error) {
	if customerID == "" {
		return 0, &ErrUnauthenticated{}
	}
	req := &types.CustomerPinRequest{Pin: strings.TrimSpace(pin)}
	if err := req.Validate(); err != nil {
		return 0, validationError(err)
	}

	updated, err := s.store.SetCustomerPin(ctx, customerID, req.Pin, s.now().UTC())
	if err != nil {
		observability.LogError(s.logger, moduleName, "SetCustomerPin", "failed to store pin", customerID, err)
		return 0, fmt.Errorf("failed to set customer pin: %w", err)
	}

	s.log().WithFields(logrus.Fields{"customerId": customerID, "updatedJobs": updated}).Info("permanent pin updated")
	return updated, nil
}
