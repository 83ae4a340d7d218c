package types

import (
	"encoding/json"
	"time"
)

// DefaultBidETA is the arrival estimate (minutes) attached to a bid when the professional gives none.
const DefaultBidETA = 30

// Job is one request for service and the single shared mutable record of the marketplace.
type Job struct {
	ID              string         `json:"id"`
	CustomerID      string         `json:"customerId"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Category        string         `json:"category"`
	SubService      string         `json:"subService"`
	Services        []string       `json:"services"`
	Budget          *float64       `json:"budget"`
	Urgency         string         `json:"urgency"`
	Location        map[string]any `json:"location"`
	PropertyDetails map[string]any `json:"propertyDetails"`
	ScheduledDate   string         `json:"scheduled_date,omitempty"`
	ScheduledTime   string         `json:"scheduled_time,omitempty"`

	Status                 Status  `json:"status"`
	BidStatus              string  `json:"bid_status"`
	AssignedProfessionalID *string `json:"assigned_professional_id"`

	Bids     []Bid    `json:"bids"`
	Bidders  []string `json:"bidders"`
	BidCount int      `json:"bidCount"`
	HasBids  bool     `json:"hasBids"`

	StartPin           string     `json:"startPin,omitempty"`
	PinFailedAttempts  int        `json:"pinFailedAttempts,omitempty"`
	PinWindowStartedAt *time.Time `json:"pinWindowStartedAt,omitempty"`
	PinLockedUntil     *time.Time `json:"pinLockedUntil,omitempty"`

	FinalPrice *float64 `json:"final_price"`

	CreatedAt     time.Time  `json:"createdAt"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	BidAcceptedAt *time.Time `json:"bidAcceptedAt,omitempty"`
	JobStartedAt  *time.Time `json:"jobStartedAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	UpdatedAt     time.Time  `json:"updatedAt"`

	Version int64 `json:"version"`
}

// Bid is one professional's quote on a job. Name, Rating and ProfileImage are
// copied from the professional profile when the bid is written and are not kept in sync.
type Bid struct {
	ID             string    `json:"id"`
	ProfessionalID string    `json:"professionalId"`
	Amount         float64   `json:"amount"`
	Name           string    `json:"name"`
	Rating         float64   `json:"rating"`
	ProfileImage   *string   `json:"profileImage"`
	ETA            int       `json:"eta"`
	Timestamp      time.Time `json:"timestamp"`
}

// UnmarshalJSON normalizes the status while decoding so mixed-case values from
// older writers land on the canonical enumeration.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// FindBid returns the ledger entry for a professional, or nil.
func (j *Job) FindBid(professionalID string) *Bid {
	for i := range j.Bids {
		if j.Bids[i].ProfessionalID == professionalID {
			return &j.Bids[i]
		}
	}
	return nil
}

// HasBidder reports whether the professional appears in the bidders set.
func (j *Job) HasBidder(professionalID string) bool {
	for _, id := range j.Bidders {
		if id == professionalID {
			return true
		}
	}
	return false
}

// UpsertBid writes a bid keyed by professional. A second bid from the same
// professional replaces the first in place (keeping its id and ledger position).
// The bidders mirror, counter and flag are maintained here so they can never drift
// from the ledger. Returns the stored bid.
func (j *Job) UpsertBid(bid Bid) Bid {
	if existing := j.FindBid(bid.ProfessionalID); existing != nil {
		bid.ID = existing.ID
		*existing = bid
	} else {
		j.Bids = append(j.Bids, bid)
	}
	if !j.HasBidder(bid.ProfessionalID) {
		j.Bidders = append(j.Bidders, bid.ProfessionalID)
	}
	j.BidCount++
	j.HasBids = true
	return bid
}

// IsAssignedTo reports whether the job's assignee is the given professional.
func (j *Job) IsAssignedTo(professionalID string) bool {
	return j.AssignedProfessionalID != nil && *j.AssignedProfessionalID == professionalID
}

// Redacted returns a copy without the handshake secret and lockout bookkeeping,
// for every caller except the job's customer.
func (j Job) Redacted() Job {
	j.StartPin = ""
	j.PinFailedAttempts = 0
	j.PinWindowStartedAt = nil
	j.PinLockedUntil = nil
	return j
}

// Clone returns a deep copy so stores can hand out snapshots that callers may mutate freely.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Services = cloneStrings(j.Services)
	c.Bidders = cloneStrings(j.Bidders)
	if j.Bids != nil {
		c.Bids = make([]Bid, len(j.Bids))
		copy(c.Bids, j.Bids)
	}
	for i := range c.Bids {
		if img := c.Bids[i].ProfileImage; img != nil {
			v := *img
			c.Bids[i].ProfileImage = &v
		}
	}
	c.Location = cloneMap(j.Location)
	c.PropertyDetails = cloneMap(j.PropertyDetails)
	c.Budget = cloneFloat(j.Budget)
	c.FinalPrice = cloneFloat(j.FinalPrice)
	if j.AssignedProfessionalID != nil {
		v := *j.AssignedProfessionalID
		c.AssignedProfessionalID = &v
	}
	c.PinWindowStartedAt = cloneTime(j.PinWindowStartedAt)
	c.PinLockedUntil = cloneTime(j.PinLockedUntil)
	c.BidAcceptedAt = cloneTime(j.BidAcceptedAt)
	c.JobStartedAt = cloneTime(j.JobStartedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	return &c
}

// JobFilter selects jobs for list queries. Empty fields do not filter.
type JobFilter struct {
	Statuses               []Status
	BidStatus              string
	CustomerID             string
	ExcludeCustomerID      string
	AssignedProfessionalID string
	Limit                  int
}

// Matches applies the filter to a single job. Stores without a query engine use it directly.
func (f JobFilter) Matches(j *Job) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if j.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.BidStatus != "" && j.BidStatus != f.BidStatus {
		return false
	}
	if f.CustomerID != "" && j.CustomerID != f.CustomerID {
		return false
	}
	if f.ExcludeCustomerID != "" && j.CustomerID == f.ExcludeCustomerID {
		return false
	}
	if f.AssignedProfessionalID != "" && !j.IsAssignedTo(f.AssignedProfessionalID) {
		return false
	}
	return true
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
