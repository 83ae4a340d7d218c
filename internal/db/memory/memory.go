// Package memory is an in-process document store. It serializes every write behind one
// mutex and hands out deep copies, so it provides the same transactional guarantees as
// the PostgreSQL store for tests and single-instance runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tydee/tydee-pro/internal/types"
)

const subscriberBuffer = 4

// Store is the in-memory document store.
type Store struct {
	mu            sync.Mutex
	jobs          map[string]*types.Job
	professionals map[string]*types.Professional
	customers     map[string]*types.Customer
	services      []types.ServiceOffering
	subs          map[string]map[chan types.Job]struct{}
}

// DefaultServices is the standard service catalogue.
var DefaultServices = []types.ServiceOffering{
	{ID: "braiding", Name: "Braiding (Knotless)", Category: "Hair", Active: true},
	{ID: "hair-styling", Name: "Hair Styling & Install", Category: "Hair", Active: true},
	{ID: "nails", Name: "Nail Tech (Full Set)", Category: "Beauty", Active: true},
	{ID: "makeup", Name: "Makeup Artist (Glam)", Category: "Beauty", Active: true},
	{ID: "barbering", Name: "Mobile Barbering", Category: "Grooming", Active: true},
	{ID: "basic-cleaning", Name: "General/Basic Cleaning", Category: "Cleaning", Active: true},
	{ID: "spring-clean", Name: "Spring Clean", Category: "Cleaning", Active: true},
	{ID: "oven-cleaning", Name: "Oven Cleaning", Category: "Cleaning", Active: true},
	{ID: "leak-repair", Name: "Leak Repair", Category: "Plumbing", Active: true},
	{ID: "geyser-service", Name: "Geyser Service", Category: "Plumbing", Active: true},
	{ID: "gutter-cleaning", Name: "Gutter Cleaning", Category: "Outdoor", Active: true},
}

// New returns an empty store seeded with the given service catalogue.
// Pass DefaultServices for the standard one.
func New(services ...types.ServiceOffering) *Store {
	return &Store{
		jobs:          make(map[string]*types.Job),
		professionals: make(map[string]*types.Professional),
		customers:     make(map[string]*types.Customer),
		services:      append([]types.ServiceOffering(nil), services...),
		subs:          make(map[string]map[chan types.Job]struct{}),
	}
}

// CreateJob inserts a new job.
func (s *Store) CreateJob(_ context.Context, job *types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	job.Version = 1
	stored := job.Clone()
	s.jobs[job.ID] = stored
	s.publishLocked(stored)
	return nil
}

// GetJob returns a copy of the job, or nil if it does not exist.
func (s *Store) GetJob(_ context.Context, id string) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id].Clone(), nil
}

// UpdateJob applies fn to a copy of the job and stores the copy when fn succeeds.
func (s *Store) UpdateJob(ctx context.Context, id string, fn func(*types.Job) error) (*types.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID = current.ID
	working.Version = current.Version + 1
	s.jobs[id] = working
	s.publishLocked(working)
	return working.Clone(), nil
}

// ListJobs returns matching jobs, newest first.
func (s *Store) ListJobs(_ context.Context, filter types.JobFilter) ([]types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Job, 0)
	for _, job := range s.jobs {
		if filter.Matches(job) {
			out = append(out, *job.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ExpireJobs expires every job still accepting bids that was created at or before cutoff.
func (s *Store) ExpireJobs(_ context.Context, cutoff time.Time, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0)
	for id, job := range s.jobs {
		if !job.Status.AcceptingBids() || job.BidStatus != types.BidStatusOpen || job.CreatedAt.After(cutoff) {
			continue
		}
		expired := job.Clone()
		expired.Status = types.StatusExpired
		expired.UpdatedAt = now
		expired.Version++
		s.jobs[id] = expired
		s.publishLocked(expired)
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SubscribeJob delivers the current snapshot and then one per write until ctx is done.
func (s *Store) SubscribeJob(ctx context.Context, id string) (<-chan types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan types.Job, subscriberBuffer)
	if s.subs[id] == nil {
		s.subs[id] = make(map[chan types.Job]struct{})
	}
	s.subs[id][ch] = struct{}{}
	if job, ok := s.jobs[id]; ok {
		ch <- *job.Clone()
	}

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[id], ch)
		if len(s.subs[id]) == 0 {
			delete(s.subs, id)
		}
		close(ch)
	}()
	return ch, nil
}

// publishLocked fans a snapshot out to subscribers. A full buffer drops its oldest
// snapshot. Callers must hold s.mu.
func (s *Store) publishLocked(job *types.Job) {
	for ch := range s.subs[job.ID] {
		snapshot := *job.Clone()
		select {
		case ch <- snapshot:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// GetProfessional returns a copy of the profile, or nil.
func (s *Store) GetProfessional(_ context.Context, uid string) (*types.Professional, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneProfessional(s.professionals[uid]), nil
}

// CreateProfessional inserts the profile unless one exists.
func (s *Store) CreateProfessional(_ context.Context, p *types.Professional) (*types.Professional, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.professionals[p.UID]; ok {
		return cloneProfessional(existing), nil
	}
	s.professionals[p.UID] = cloneProfessional(p)
	return cloneProfessional(p), nil
}

// UpdateProfessional applies fn to a copy of the profile and stores it when fn succeeds.
func (s *Store) UpdateProfessional(_ context.Context, uid string, fn func(*types.Professional) error) (*types.Professional, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.professionals[uid]
	if !ok {
		return nil, nil
	}
	working := cloneProfessional(current)
	if err := fn(working); err != nil {
		return nil, err
	}
	working.UID = uid
	s.professionals[uid] = working
	return cloneProfessional(working), nil
}

// GetCustomer returns a copy of the customer settings, or nil.
func (s *Store) GetCustomer(_ context.Context, uid string) (*types.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[uid]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

// SetCustomerPin upserts the permanent PIN and copies it to the customer's unstarted jobs.
func (s *Store) SetCustomerPin(_ context.Context, uid string, pin string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.customers[uid] = &types.Customer{UID: uid, PermanentPin: pin, UpdatedAt: now}

	updated := 0
	for id, job := range s.jobs {
		if job.CustomerID != uid {
			continue
		}
		switch job.Status {
		case types.StatusPending, types.StatusOpen, types.StatusAssigned:
		default:
			continue
		}
		next := job.Clone()
		next.StartPin = pin
		next.UpdatedAt = now
		next.Version++
		s.jobs[id] = next
		s.publishLocked(next)
		updated++
	}
	return updated, nil
}

// ListServices returns the catalogue, optionally only active entries.
func (s *Store) ListServices(_ context.Context, activeOnly bool) ([]types.ServiceOffering, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.ServiceOffering, 0, len(s.services))
	for _, svc := range s.services {
		if activeOnly && !svc.Active {
			continue
		}
		out = append(out, svc)
	}
	return out, nil
}

func cloneProfessional(p *types.Professional) *types.Professional {
	if p == nil {
		return nil
	}
	c := *p
	if p.ProfileImage != nil {
		v := *p.ProfileImage
		c.ProfileImage = &v
	}
	if p.LastSeenAt != nil {
		v := *p.LastSeenAt
		c.LastSeenAt = &v
	}
	if p.Services != nil {
		c.Services = make([]string, len(p.Services))
		copy(c.Services, p.Services)
	}
	return &c
}
