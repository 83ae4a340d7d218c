package types

import "time"

// DefaultProfessionalRating is the rating a newly registered professional starts with.
const DefaultProfessionalRating = 5.0

// Professional is the profile of a service provider. IsOnline is only changed
// through the presence operation.
type Professional struct {
	UID          string     `json:"uid"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Rating       float64    `json:"rating"`
	ProfileImage *string    `json:"profileImage"`
	Services     []string   `json:"services"`
	IsOnline     bool       `json:"isOnline"`
	LastSeenAt   *time.Time `json:"lastSeenAt,omitempty"`
	IsVerified   bool       `json:"isVerified"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// DisplayName falls back to a generic label for profiles created without a name.
func (p *Professional) DisplayName() string {
	if p.Name == "" {
		return "Professional"
	}
	return p.Name
}

// Customer holds the per-customer settings the marketplace needs.
type Customer struct {
	UID          string    `json:"uid"`
	PermanentPin string    `json:"permanentPin,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ServiceOffering is one entry in the service catalogue.
type ServiceOffering struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Active   bool   `json:"active"`
}
