package types

import (
	"github.com/go-playground/validator/v10"
)

// CreateJobRequest is the payload accepted by job creation.
type CreateJobRequest struct {
	Title           string         `json:"title" validate:"required,min=1,max=120"`
	Description     string         `json:"description,omitempty" validate:"max=4000"`
	Category        string         `json:"category,omitempty"`
	SubService      string         `json:"subService,omitempty"`
	Services        []string       `json:"services" validate:"required,min=1,dive,required"`
	Budget          *float64       `json:"budget,omitempty" validate:"omitempty,gte=0"`
	Urgency         string         `json:"urgency,omitempty" validate:"omitempty,oneof=low normal high"`
	Location        map[string]any `json:"location" validate:"required,min=1"`
	PropertyDetails map[string]any `json:"propertyDetails,omitempty"`
	ScheduledDate   string         `json:"scheduled_date,omitempty"`
	ScheduledTime   string         `json:"scheduled_time,omitempty"`
	StartPin        string         `json:"startPin,omitempty" validate:"omitempty,len=4,number"`
}

// SubmitBidRequest is the payload of a bid submission.
type SubmitBidRequest struct {
	Amount float64 `json:"amount"`
}

// AcceptBidRequest names the professional whose bid the customer accepts.
type AcceptBidRequest struct {
	ProfessionalID string `json:"professionalId" validate:"required"`
}

// StartJobRequest carries the PIN the professional typed in.
type StartJobRequest struct {
	Pin string `json:"pin" validate:"required"`
}

// RegisterProfessionalRequest creates a professional profile.
type RegisterProfessionalRequest struct {
	Name     string   `json:"name" validate:"required,min=1,max=120"`
	Email    string   `json:"email" validate:"omitempty,email"`
	Services []string `json:"services,omitempty"`
}

// PresenceRequest toggles a professional's visibility in the marketplace.
type PresenceRequest struct {
	Online bool `json:"online"`
}

// CustomerPinRequest sets the customer's permanent start PIN.
type CustomerPinRequest struct {
	Pin string `json:"pin" validate:"required,len=4,number"`
}

// Validate validates the CreateJobRequest using the validator.
func (r *CreateJobRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the RegisterProfessionalRequest using the validator.
func (r *RegisterProfessionalRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the CustomerPinRequest using the validator.
func (r *CustomerPinRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}
