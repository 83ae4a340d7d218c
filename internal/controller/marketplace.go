package controller

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/tydee/tydee-pro/internal/marketplace"
	"github.com/tydee/tydee-pro/internal/types"
)

// BidBackend is the subset of the API the marketplace view needs.
type BidBackend interface {
	AvailableJobs(ctx context.Context) ([]types.Job, error)
	SubmitBid(ctx context.Context, jobID string, amount float64) (*marketplace.BidResult, error)
}

// Marketplace is the professional's list of jobs open for bidding.
type Marketplace struct {
	backend        BidBackend
	professionalID string

	mu   sync.Mutex
	jobs []types.Job
}

// NewMarketplace creates an empty view for professionalID.
func NewMarketplace(backend BidBackend, professionalID string) *Marketplace {
	return &Marketplace{backend: backend, professionalID: professionalID}
}

// Refresh reloads the listing from the server.
func (m *Marketplace) Refresh(ctx context.Context) error {
	jobs, err := m.backend.AvailableJobs(ctx)
	if err != nil {
		return err
	}
	m.Set(jobs)
	return nil
}

// Set replaces the listing. Jobs the professional posted as a customer are left out.
func (m *Marketplace) Set(jobs []types.Job) {
	filtered := make([]types.Job, 0, len(jobs))
	for i := range jobs {
		if jobs[i].CustomerID == m.professionalID {
			continue
		}
		filtered = append(filtered, *jobs[i].Clone())
	}
	m.mu.Lock()
	m.jobs = filtered
	m.mu.Unlock()
}

// Jobs returns a copy of the listing.
func (m *Marketplace) Jobs() []types.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Job, len(m.jobs))
	for i := range m.jobs {
		out[i] = *m.jobs[i].Clone()
	}
	return out
}

func (m *Marketplace) findLocked(jobID string) *types.Job {
	for i := range m.jobs {
		if m.jobs[i].ID == jobID {
			return &m.jobs[i]
		}
	}
	return nil
}

// HasBid reports whether the professional has bid on the job.
func (m *Marketplace) HasBid(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.findLocked(jobID)
	return job != nil && job.HasBidder(m.professionalID)
}

// MyBid returns the professional's ledger entry for the job, or nil.
func (m *Marketplace) MyBid(jobID string) *types.Bid {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.findLocked(jobID)
	if job == nil {
		return nil
	}
	bid := job.FindBid(m.professionalID)
	if bid == nil {
		return nil
	}
	cp := *bid
	return &cp
}

// PlaceBid parses the typed amount and submits it. Bad input is rejected locally.
// On success the listing reflects the bid until the next refresh.
func (m *Marketplace) PlaceBid(ctx context.Context, jobID, amountText string) (*marketplace.BidResult, error) {
	amount, err := ParseAmount(amountText)
	if err != nil {
		return nil, err
	}

	res, err := m.backend.SubmitBid(ctx, jobID, amount)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if job := m.findLocked(jobID); job != nil {
		job.UpsertBid(types.Bid{ID: res.BidID, ProfessionalID: m.professionalID, Amount: amount})
	}
	m.mu.Unlock()
	return res, nil
}

// ParseAmount reads a rand amount such as "850", "R 850.50" or "1 200". It must be positive.
func ParseAmount(text string) (float64, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(strings.TrimPrefix(cleaned, "R"), "r")
	cleaned = strings.NewReplacer(" ", "", "\u00a0", "").Replace(cleaned)

	d, err := decimal.NewFromString(cleaned)
	if err != nil || !d.IsPositive() {
		return 0, &marketplace.ErrInvalidArgument{Field: "amount", Message: "must be a positive number"}
	}
	amount, _ := d.Round(2).Float64()
	return amount, nil
}
