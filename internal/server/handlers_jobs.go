package server

import (
	"net/http"
	"time"

	"github.com/tydee/tydee-pro/internal/marketplace"
	"github.com/tydee/tydee-pro/internal/server/middleware"
	"github.com/tydee/tydee-pro/internal/types"
)

// JobsResponse wraps a job listing.
type JobsResponse struct {
	Jobs []types.Job `json:"jobs"`
}

// StartJobResponse is returned after a successful handshake.
type StartJobResponse struct {
	Success bool       `json:"success"`
	Job     *types.Job `json:"job"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// callerUID returns the authenticated uid, writing a 401 when it is missing.
func (s *Server) callerUID(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid, err := middleware.GetUID(r)
	if err != nil {
		s.errorResponse(w, r, "callerUID", &marketplace.ErrUnauthenticated{})
		return "", false
	}
	return uid, true
}

// handleCreateJob handles POST /jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.callerUID(w, r)
	if !ok {
		return
	}
	var req types.CreateJobRequest
	if err := decodeJSON(r, &req); err != nil {
		s.errorResponse(w, r, "handleCreateJob", err)
		return
	}

	res, err := s.service.CreateJob(r.Context(), uid, &req)
	if err != nil {
		s.errorResponse(w, r, "handleCreateJob", err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, res)
}

// handleAvailableJobs handles GET /jobs/available
func (s *Server) handleAvailableJobs(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.callerUID(w, r)
	if !ok {
		return
	}
	jobs, err := s.service.AvailableJobs(r.Context(), uid)
	if err != nil {
		s.errorResponse(w, r, "handleAvailableJobs", err)
		return
	}
	if jobs == nil {
		jobs = []types.Job{}
	}
	s.jsonResponse(w, http.StatusOK, JobsResponse{Jobs: jobs})
}

// handleGetJob handles GET /jobs/{id}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.callerUID(w, r)
	if !ok {
		return
	}
	job, err := s.service.Job(r.Context(), uid, r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, r, "handleGetJob", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

// handleJobEvents handles GET /jobs/{id}/events, streaming a "job" event per snapshot.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.callerUID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	snapshots, err := s.service.SubscribeJob(ctx, uid, r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, r, "handleJobEvents", err)
		return
	}

	stream, err := openJobStream(w)
	if err != nil {
		s.errorResponse(w, r, "handleJobEvents", err)
		return
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case job, open := <-snapshots:
			if !open {
				return
			}
			if err := stream.Snapshot(job); err != nil {
				s.logger.WithField("module", moduleName).WithError(err).Debug("event stream closed")
				return
			}
		case <-keepAlive.C:
			if err := stream.Ping(); err != nil {
				return
			}
		}
	}
}

// handleSubmitBid handles POST /jobs/{id}/bids
func (s *Server) handleSubmitBid(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.callerUID(w, r)
	if !ok {
		return
	}
	var req types.SubmitBidRequest
	if err := decodeJSON(r, &req); err != nil {
		s.errorResponse(w, r, "handleSubmitBid", err)
		return
	}

	res, err := s.service.SubmitBid(r.Context(), uid, r.PathValue("id"), req.Amount)
	if err != nil {
		s.errorResponse(w, r, "handleSubmitBid", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

// handleAcceptBid handles POST /jobs/{id}/accept
func (s *Server) handleAcceptBid(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.callerUID(w, r)
	if !ok {
		return
	}
	var req types.AcceptBidRequest
	if err := decodeJSON(r, &req); err != nil {
		s.errorResponse(w, r, "handleAcceptBid", err)
		return
	}

	if err := s.service.AcceptBid(r.Context(), uid, r.PathValue("id"), req.ProfessionalID); err != nil {
		s.errorResponse(w, r, "handleAcceptBid", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, successResponse{Success: true})
}

// handleStartJob handles POST /jobs/{id}/start
func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.callerUID(w, r)
	if !ok {
		return
	}
	var req types.StartJobRequest
	if err := decodeJSON(r, &req); err != nil {
		s.errorResponse(w, r, "handleStartJob", err)
		return
	}

	job, err := s.service.StartJob(r.Context(), uid, r.PathValue("id"), req.Pin)
	if err != nil {
		s.errorResponse(w, r, "handleStartJob", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, StartJobResponse{Success: true, Job: job})
}

// handleCompleteJob handles POST /jobs/{id}/complete
func (s *Server) handleCompleteJob(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.callerUID(w, r)
	if !ok {
		return
	}
	if err := s.service.CompleteJob(r.Context(), uid, r.PathValue("id")); err != nil {
		s.errorResponse(w, r, "handleCompleteJob", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, successResponse{Success: true})
}
