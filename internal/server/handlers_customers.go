package server

import (
	"net/http"

	"github.com/tydee/tydee-pro/internal/types"
)

// CustomerPinResponse reports how many open jobs received the new PIN.
type CustomerPinResponse struct {
	Success     bool `json:"success"`
	UpdatedJobs int  `json:"updatedJobs"`
}

// ServicesResponse wraps the service catalogue.
type ServicesResponse struct {
	Services []types.ServiceOffering `json:"services"`
}

// handleSetCustomerPin handles PUT /customers/me/pin
func (s *Server) handleSetCustomerPin(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.callerUID(w, r)
	if !ok {
		return
	}
	var req types.CustomerPinRequest
	if err := decodeJSON(r, &req); err != nil {
		s.errorResponse(w, r, "handleSetCustomerPin", err)
		return
	}

	updated, err := s.service.SetCustomerPin(r.Context(), uid, req.Pin)
	if err != nil {
		s.errorResponse(w, r, "handleSetCustomerPin", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, CustomerPinResponse{Success: true, UpdatedJobs: updated})
}

// handleServices handles GET /services
func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.service.Services(r.Context())
	if err != nil {
		s.errorResponse(w, r, "handleServices", err)
		return
	}
	if services == nil {
		services = []types.ServiceOffering{}
	}
	s.jsonResponse(w, http.StatusOK, ServicesResponse{Services: services})
}
