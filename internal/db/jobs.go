package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tydee/tydee-pro/internal/types"
)

// -----------------------------------------------------------------------------
// Job Methods
// -----------------------------------------------------------------------------

const jobColumns = `id, customer_id, title, description, category, sub_service, services,
	budget, urgency, location, property_details, scheduled_date, scheduled_time,
	status, bid_status, assigned_professional_id, bids, bidders, bid_count, has_bids,
	start_pin, pin_failed_attempts, pin_window_started_at, pin_locked_until, final_price,
	created_at, expires_at, bid_accepted_at, job_started_at, completed_at, updated_at, version`

// CreateJob inserts a new job with version 1
func (db *DB) CreateJob(ctx context.Context, job *types.Job) error {
	enc, err := encodeJob(job)
	if err != nil {
		return err
	}
	job.Version = 1

	_, err = db.pool.Exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		         $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32)`,
		job.ID, job.CustomerID, job.Title, job.Description, job.Category, job.SubService, job.Services,
		job.Budget, job.Urgency, enc.location, enc.propertyDetails, job.ScheduledDate, job.ScheduledTime,
		string(job.Status), job.BidStatus, job.AssignedProfessionalID, enc.bids, job.Bidders, job.BidCount, job.HasBids,
		job.StartPin, job.PinFailedAttempts, job.PinWindowStartedAt, job.PinLockedUntil, job.FinalPrice,
		job.CreatedAt, job.ExpiresAt, job.BidAcceptedAt, job.JobStartedAt, job.CompletedAt, job.UpdatedAt, job.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID
func (db *DB) GetJob(ctx context.Context, id string) (*types.Job, error) {
	job, err := scanJob(db.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// UpdateJob locks the job row, applies fn and writes the result with the version bumped.
func (db *DB) UpdateJob(ctx context.Context, id string, fn func(*types.Job) error) (*types.Job, error) {
	return transact(ctx, db, func(tx pgx.Tx) (*types.Job, error) {
		job, err := scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to lock job: %w", err)
		}

		if err := fn(job); err != nil {
			return nil, err
		}
		job.ID = id
		job.Version++

		enc, err := encodeJob(job)
		if err != nil {
			return nil, err
		}
		_, err = tx.Exec(ctx,
			`UPDATE jobs SET
			    title = $2, description = $3, category = $4, sub_service = $5, services = $6,
			    budget = $7, urgency = $8, location = $9, property_details = $10,
			    scheduled_date = $11, scheduled_time = $12, status = $13, bid_status = $14,
			    assigned_professional_id = $15, bids = $16, bidders = $17, bid_count = $18,
			    has_bids = $19, start_pin = $20, pin_failed_attempts = $21,
			    pin_window_started_at = $22, pin_locked_until = $23, final_price = $24,
			    bid_accepted_at = $25, job_started_at = $26, completed_at = $27,
			    updated_at = $28, version = $29
			 WHERE id = $1`,
			job.ID, job.Title, job.Description, job.Category, job.SubService, job.Services,
			job.Budget, job.Urgency, enc.location, enc.propertyDetails,
			job.ScheduledDate, job.ScheduledTime, string(job.Status), job.BidStatus,
			job.AssignedProfessionalID, enc.bids, job.Bidders, job.BidCount,
			job.HasBids, job.StartPin, job.PinFailedAttempts,
			job.PinWindowStartedAt, job.PinLockedUntil, job.FinalPrice,
			job.BidAcceptedAt, job.JobStartedAt, job.CompletedAt,
			job.UpdatedAt, job.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update job: %w", err)
		}
		return job, nil
	})
}

// ListJobs retrieves jobs matching the filter, newest first
func (db *DB) ListJobs(ctx context.Context, filter types.JobFilter) ([]types.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []any{}
	argNum := 1

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		query += fmt.Sprintf(" AND status = ANY($%d)", argNum)
		args = append(args, statuses)
		argNum++
	}
	if filter.BidStatus != "" {
		query += fmt.Sprintf(" AND bid_status = $%d", argNum)
		args = append(args, filter.BidStatus)
		argNum++
	}
	if filter.CustomerID != "" {
		query += fmt.Sprintf(" AND customer_id = $%d", argNum)
		args = append(args, filter.CustomerID)
		argNum++
	}
	if filter.ExcludeCustomerID != "" {
		query += fmt.Sprintf(" AND customer_id <> $%d", argNum)
		args = append(args, filter.ExcludeCustomerID)
		argNum++
	}
	if filter.AssignedProfessionalID != "" {
		query += fmt.Sprintf(" AND assigned_professional_id = $%d", argNum)
		args = append(args, filter.AssignedProfessionalID)
		argNum++
	}

	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]types.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// ExpireJobs expires, in one statement, every job still accepting bids created at or before cutoff.
func (db *DB) ExpireJobs(ctx context.Context, cutoff time.Time, now time.Time) ([]string, error) {
	rows, err := db.pool.Query(ctx,
		`UPDATE jobs
		 SET status = 'expired', updated_at = $2, version = version + 1
		 WHERE status IN ('pending', 'open') AND bid_status = 'open' AND created_at <= $1
		 RETURNING id`,
		cutoff, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to expire jobs: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan expired job: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to expire jobs: %w", err)
	}
	return ids, nil
}

type encodedJob struct {
	bids            []byte
	location        []byte
	propertyDetails []byte
}

func encodeJob(job *types.Job) (*encodedJob, error) {
	bids := job.Bids
	if bids == nil {
		bids = []types.Bid{}
	}
	bidsJSON, err := json.Marshal(bids)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bids: %w", err)
	}
	locationJSON, err := marshalObject(job.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal location: %w", err)
	}
	detailsJSON, err := marshalObject(job.PropertyDetails)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal property details: %w", err)
	}
	if job.Services == nil {
		job.Services = []string{}
	}
	if job.Bidders == nil {
		job.Bidders = []string{}
	}
	return &encodedJob{bids: bidsJSON, location: locationJSON, propertyDetails: detailsJSON}, nil
}

func marshalObject(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func scanJob(row pgx.Row) (*types.Job, error) {
	var j types.Job
	var status string
	var bidsJSON, locationJSON, detailsJSON []byte

	err := row.Scan(&j.ID, &j.CustomerID, &j.Title, &j.Description, &j.Category, &j.SubService, &j.Services,
		&j.Budget, &j.Urgency, &locationJSON, &detailsJSON, &j.ScheduledDate, &j.ScheduledTime,
		&status, &j.BidStatus, &j.AssignedProfessionalID, &bidsJSON, &j.Bidders, &j.BidCount, &j.HasBids,
		&j.StartPin, &j.PinFailedAttempts, &j.PinWindowStartedAt, &j.PinLockedUntil, &j.FinalPrice,
		&j.CreatedAt, &j.ExpiresAt, &j.BidAcceptedAt, &j.JobStartedAt, &j.CompletedAt, &j.UpdatedAt, &j.Version)
	if err != nil {
		return nil, err
	}

	if j.Status, err = types.ParseStatus(status); err != nil {
		return nil, err
	}
	j.Bids = []types.Bid{}
	if len(bidsJSON) > 0 {
		if err := json.Unmarshal(bidsJSON, &j.Bids); err != nil {
			return nil, fmt.Errorf("failed to parse bids of job %s: %w", j.ID, err)
		}
	}
	if len(locationJSON) > 0 {
		if err := json.Unmarshal(locationJSON, &j.Location); err != nil {
			return nil, fmt.Errorf("failed to parse location of job %s: %w", j.ID, err)
		}
	}
	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &j.PropertyDetails); err != nil {
			return nil, fmt.Errorf("failed to parse property details of job %s: %w", j.ID, err)
		}
	}
	if j.Services == nil {
		j.Services = []string{}
	}
	if j.Bidders == nil {
		j.Bidders = []string{}
	}
	return &j, nil
}
