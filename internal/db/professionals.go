package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tydee/tydee-pro/internal/types"
)

// -----------------------------------------------------------------------------
// Professional, Customer and Service Methods
// -----------------------------------------------------------------------------

const professionalColumns = `uid, name, email, rating, profile_image, services, is_online,
	last_seen_at, is_verified, created_at, updated_at`

func scanProfessional(row pgx.Row) (*types.Professional, error) {
	var p types.Professional
	err := row.Scan(&p.UID, &p.Name, &p.Email, &p.Rating, &p.ProfileImage, &p.Services, &p.IsOnline,
		&p.LastSeenAt, &p.IsVerified, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.Services == nil {
		p.Services = []string{}
	}
	return &p, nil
}

// GetProfessional retrieves a professional profile by uid
func (db *DB) GetProfessional(ctx context.Context, uid string) (*types.Professional, error) {
	p, err := scanProfessional(db.pool.QueryRow(ctx,
		`SELECT `+professionalColumns+` FROM professionals WHERE uid = $1`, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get professional: %w", err)
	}
	return p, nil
}

// CreateProfessional inserts the profile unless one exists, and returns the stored profile
func (db *DB) CreateProfessional(ctx context.Context, p *types.Professional) (*types.Professional, error) {
	services := p.Services
	if services == nil {
		services = []string{}
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO professionals (`+professionalColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (uid) DO NOTHING`,
		p.UID, p.Name, p.Email, p.Rating, p.ProfileImage, services, p.IsOnline,
		p.LastSeenAt, p.IsVerified, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create professional: %w", err)
	}
	return db.GetProfessional(ctx, p.UID)
}

// UpdateProfessional locks the profile row, applies fn and writes the result
func (db *DB) UpdateProfessional(ctx context.Context, uid string, fn func(*types.Professional) error) (*types.Professional, error) {
	return transact(ctx, db, func(tx pgx.Tx) (*types.Professional, error) {
		p, err := scanProfessional(tx.QueryRow(ctx,
			`SELECT `+professionalColumns+` FROM professionals WHERE uid = $1 FOR UPDATE`, uid))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to lock professional: %w", err)
		}

		if err := fn(p); err != nil {
			return nil, err
		}
		p.UID = uid

		_, err = tx.Exec(ctx,
			`UPDATE professionals SET
			    name = $2, email = $3, rating = $4, profile_image = $5, services = $6,
			    is_online = $7, last_seen_at = $8, is_verified = $9, updated_at = $10
			 WHERE uid = $1`,
			p.UID, p.Name, p.Email, p.Rating, p.ProfileImage, p.Services,
			p.IsOnline, p.LastSeenAt, p.IsVerified, p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update professional: %w", err)
		}
		return p, nil
	})
}

// GetCustomer retrieves a customer's settings by uid
func (db *DB) GetCustomer(ctx context.Context, uid string) (*types.Customer, error) {
	var c types.Customer
	err := db.pool.QueryRow(ctx,
		`SELECT uid, permanent_pin, updated_at FROM customers WHERE uid = $1`, uid,
	).Scan(&c.UID, &c.PermanentPin, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

// SetCustomerPin upserts the permanent PIN and copies it onto the customer's jobs that
// have not started, in one transaction
func (db *DB) SetCustomerPin(ctx context.Context, uid string, pin string, now time.Time) (int, error) {
	return transact(ctx, db, func(tx pgx.Tx) (int, error) {
		_, err := tx.Exec(ctx,
			`INSERT INTO customers (uid, permanent_pin, updated_at)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (uid) DO UPDATE SET permanent_pin = $2, updated_at = $3`,
			uid, pin, now,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to save customer pin: %w", err)
		}

		result, err := tx.Exec(ctx,
			`UPDATE jobs SET start_pin = $2, updated_at = $3, version = version + 1
			 WHERE customer_id = $1 AND status IN ('pending', 'open', 'assigned')`,
			uid, pin, now,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to propagate customer pin: %w", err)
		}
		return int(result.RowsAffected()), nil
	})
}

// ListServices retrieves the service catalogue ordered by category and name
func (db *DB) ListServices(ctx context.Context, activeOnly bool) ([]types.ServiceOffering, error) {
	query := `SELECT id, name, category, active FROM services`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY category, name`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	services := make([]types.ServiceOffering, 0)
	for rows.Next() {
		var s types.ServiceOffering
		if err := rows.Scan(&s.ID, &s.Name, &s.Category, &s.Active); err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	return services, nil
}
