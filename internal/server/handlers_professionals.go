package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/tydee/tydee-pro/internal/marketplace"
	"github.com/tydee/tydee-pro/internal/types"
)

// PhotoResponse carries the public URL of an uploaded profile photo.
type PhotoResponse struct {
	ProfileImage string `json:"profileImage"`
}

// handleRegisterProfessional handles POST /professionals/me
func (s *Server) handleRegisterProfessional(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.callerUID(w, r)
	if !ok {
		return
	}
	var req types.RegisterProfessionalRequest
	if err := decodeJSON(r, &req); err != nil {
		s.errorResponse(w, r, "handleRegisterProfessional", err)
		return
	}

	pro, err := s.service.RegisterProfessional(r.Context(), uid, &req)
	if err != nil {
		s.errorResponse(w, r, "handleRegisterProfessional", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, pro)
}

// handleGetProfessional handles GET /professionals/me
func (s *Server) handleGetProfessional(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.callerUID(w, r)
	if !ok {
		return
	}
	pro, err := s.service.Professional(r.Context(), uid)
	if err != nil {
		s.errorResponse(w, r, "handleGetProfessional", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, pro)
}

// handleSetPresence handles PUT /professionals/me/presence
func (s *Server) handleSetPresence(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.callerUID(w, r)
	if !ok {
		return
	}
	var req types.PresenceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.errorResponse(w, r, "handleSetPresence", err)
		return
	}

	pro, err := s.service.SetPresence(r.Context(), uid, req.Online)
	if err != nil {
		s.errorResponse(w, r, "handleSetPresence", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, pro)
}

// handleUploadPhoto handles PUT /professionals/me/photo with the raw image as body.
func (s *Server) handleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.callerUID(w, r)
	if !ok {
		return
	}
	if r.ContentLength > marketplace.MaxPhotoBytes {
		s.errorResponse(w, r, "handleUploadPhoto",
			&marketplace.ErrInvalidArgument{Field: "photo", Message: "must be at most 5 MiB"})
		return
	}

	url, err := s.service.UploadProfilePhoto(r.Context(), uid, r.Header.Get("Content-Type"), r.Body)
	if err != nil {
		s.errorResponse(w, r, "handleUploadPhoto", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, PhotoResponse{ProfileImage: url})
}

// handleEarnings handles GET /professionals/me/earnings?timeframe=weekly|monthly|yearly.
// An optional RFC 3339 "at" parameter selects the reference time.
func (s *Server) handleEarnings(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.callerUID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	tf, err := types.ParseTimeframe(q.Get("timeframe"))
	if err != nil {
		s.errorResponse(w, r, "handleEarnings",
			&marketplace.ErrInvalidArgument{Field: "timeframe", Message: "must be one of: weekly, monthly, yearly"})
		return
	}
	var at time.Time
	if raw := q.Get("at"); raw != "" {
		if at, err = time.Parse(time.RFC3339, raw); err != nil {
			s.errorResponse(w, r, "handleEarnings",
				&marketplace.ErrInvalidArgument{Field: "at", Message: "must be an RFC 3339 timestamp"})
			return
		}
	}

	summary, err := s.service.Earnings(r.Context(), uid, tf, at)
	if err != nil {
		s.errorResponse(w, r, "handleEarnings", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, summary)
}

// handleDashboard handles GET /professionals/me/dashboard
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.callerUID(w, r)
	if !ok {
		return
	}
	dashboard, err := s.service.Dashboard(r.Context(), uid)
	if err != nil {
		s.errorResponse(w, r, "handleDashboard", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, dashboard)
}

// handleBookings handles GET /professionals/me/jobs?status=assigned,in_progress
func (s *Server) handleBookings(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.callerUID(w, r)
	if !ok {
		return
	}
	var statuses []types.Status
	for _, raw := range r.URL.Query()["status"] {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			st, err := types.ParseStatus(part)
			if err != nil {
				s.errorResponse(w, r, "handleBookings",
					&marketplace.ErrInvalidArgument{Field: "status", Message: err.Error()})
				return
			}
			statuses = append(statuses, st)
		}
	}

	jobs, err := s.service.Bookings(r.Context(), uid, statuses)
	if err != nil {
		s.errorResponse(w, r, "handleBookings", err)
		return
	}
	if jobs == nil {
		jobs = []types.Job{}
	}
	s.jsonResponse(w, http.StatusOK, JobsResponse{Jobs: jobs})
}
