package marketplace

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tydee/tydee-pro/internal/observability"
	"github.com/tydee/tydee-pro/internal/types"
)

// BidResult is returned by SubmitBid.
type BidResult struct {
	Success bool   `json:"success"`
	BidID   string `json:"bidId"`
}

// SubmitBid places or replaces the professional's bid on a job. The bid carries a
// snapshot of the professional's display name, rating and photo.
func (s *Service) SubmitBid(ctx context.Context, professionalID, jobID string, amount float64) (res *BidResult, err error) {
	ctx, span := observability.StartSpan(ctx, "marketplace.SubmitBid",
		attribute.String("job.id", jobID), attribute.String("professional.id", professionalID))
	defer func() { observability.EndSpan(span, err) }()

	if professionalID == "" {
		return nil, &ErrUnauthenticated{}
	}
	if strings.TrimSpace(jobID) == "" {
		return nil, &ErrInvalidArgument{Field: "jobId", Message: "is required"}
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return nil, &ErrInvalidArgument{Field: "amount", Message: "must be a positive number"}
	}

	pro, err := s.store.GetProfessional(ctx, professionalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load professional: %w", err)
	}
	if pro == nil {
		return nil, &ErrProfileMissing{UID: professionalID}
	}

	now := s.now().UTC()
	var stored types.Bid
	job, err := s.store.UpdateJob(ctx, jobID, func(j *types.Job) error {
		if !j.Status.AcceptingBids() || j.BidStatus != types.BidStatusOpen {
			return &ErrJobUnavailable{JobID: j.ID, Status: string(j.Status), Message: "job is no longer accepting bids"}
		}
		if j.CustomerID == professionalID {
			return &ErrPermissionDenied{Reason: "cannot bid on your own job"}
		}
		stored = j.UpsertBid(types.Bid{
			ID:             uuid.NewString(),
			ProfessionalID: professionalID,
			Amount:         amount,
			Name:           pro.DisplayName(),
			Rating:         pro.Rating,
			ProfileImage:   pro.ProfileImage,
			ETA:            types.DefaultBidETA,
			Timestamp:      now,
		})
		j.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, s.storeError("SubmitBid", jobID, err)
	}
	if job == nil {
		return nil, &ErrJobNotFound{JobID: jobID}
	}

	s.log().WithFields(logrus.Fields{
		"jobId":          jobID,
		"professionalId": professionalID,
		"amount":         amount,
		"bidCount":       job.BidCount,
	}).Info("bid submitted")
	return &BidResult{Success: true, BidID: stored.ID}, nil
}

// AcceptBid assigns the job to the professional whose bid the customer picked.
// Exactly one acceptance can succeed per job.
func (s *Service) AcceptBid(ctx context.Context, customerID, jobID, professionalID string) (err error) {
	ctx, span := observability.StartSpan(ctx, "marketplace.AcceptBid",
		attribute.String("job.id", jobID), attribute.String("professional.id", professionalID))
	defer func() { observability.EndSpan(span, err) }()

	if customerID == "" {
		return &ErrUnauthenticated{}
	}
	if strings.TrimSpace(jobID) == "" {
		return &ErrInvalidArgument{Field: "jobId", Message: "is required"}
	}
	if strings.TrimSpace(professionalID) == "" {
		return &ErrInvalidArgument{Field: "professionalId", Message: "is required"}
	}

	now := s.now().UTC()
	var price float64
	job, err := s.store.UpdateJob(ctx, jobID, func(j *types.Job) error {
		if j.CustomerID != customerID {
			return &ErrPermissionDenied{Reason: "only the job owner can accept bids"}
		}
		if !j.Status.AcceptingBids() {
			return &ErrJobUnavailable{JobID: j.ID, Status: string(j.Status), Message: "this job was already taken"}
		}
		bid := j.FindBid(professionalID)
		if bid == nil {
			return &ErrInvalidArgument{Field: "professionalId", Message: "no bid from this professional"}
		}
		price = bid.Amount
		assignee := professionalID
		j.Status = types.StatusAssigned
		j.AssignedProfessionalID = &assignee
		j.FinalPrice = &price
		j.BidStatus = types.BidStatusClosed
		j.BidAcceptedAt = &now
		j.UpdatedAt = now
		return nil
	})
	if err != nil {
		return s.storeError("AcceptBid", jobID, err)
	}
	if job == nil {
		return &ErrJobNotFound{JobID: jobID}
	}

	s.log().WithFields(logrus.Fields{
		"jobId":          jobID,
		"professionalId": professionalID,
		"finalPrice":     price,
	}).Info("bid accepted")
	return nil
}

// storeError passes typed marketplace errors through and logs and wraps everything else.
func (s *Service) storeError(funcName, jobID string, err error) error {
	if CodeOf(err) != CodeInternal {
		return err
	}
	observability.LogError(s.logger, moduleName, funcName, "job transaction failed", jobID, err)
	return fmt.Errorf("job transaction failed: %w", err)
}
