package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tydee/tydee-pro/internal/config"
	"github.com/tydee/tydee-pro/internal/db/memory"
	"github.com/tydee/tydee-pro/internal/marketplace"
	"github.com/tydee/tydee-pro/internal/server/ratelimit"
	"github.com/tydee/tydee-pro/internal/types"
)

// testServer wraps a server backed by the in-memory store.
type testServer struct {
	*Server
	store *memory.Store
	t     *testing.T
}

func newTestServer(t *testing.T, rl *ratelimit.Config) *testServer {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := memory.New(memory.DefaultServices...)
	svc := marketplace.NewService(store, marketplace.DefaultOptions(), marketplace.WithLogger(logger))
	if rl == nil {
		rl = &ratelimit.Config{Enabled: false}
	}
	s, err := New(Config{
		JWT:       &config.JWTConfig{Secret: testSecret, ExpirationHours: 1},
		RateLimit: rl,
		Logger:    logger,
	}, svc)
	require.NoError(t, err)
	t.Cleanup(s.rateLimiter.Stop)
	return &testServer{Server: s, store: store, t: t}
}

// do sends a request as uid (anonymous when empty) and returns the recorder.
func (ts *testServer) do(method, path, uid string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token(uid))
	}
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func (ts *testServer) token(uid string) string {
	ts.t.Helper()
	token, err := ts.jwtService.GenerateToken(uid)
	require.NoError(ts.t, err)
	return token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (ts *testServer) createJob(customerID string) string {
	ts.t.Helper()
	budget := 1000.0
	w := ts.do(http.MethodPost, "/jobs", customerID, types.CreateJobRequest{
		Title:    "Knotless braids",
		Services: []string{"braiding"},
		Budget:   &budget,
		Location: map[string]any{"address": "12 Long St"},
		StartPin: "4821",
	})
	require.Equal(ts.t, http.StatusCreated, w.Code, w.Body.String())
	res := decode[marketplace.CreateJobResult](ts.t, w)
	require.True(ts.t, res.Success)
	return res.JobID
}

func (ts *testServer) register(uid string) {
	ts.t.Helper()
	w := ts.do(http.MethodPost, "/professionals/me", uid, types.RegisterProfessionalRequest{Name: "Thandi"})
	require.Equal(ts.t, http.StatusOK, w.Code, w.Body.String())
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
}

func TestServicesEndpoint_Public(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodGet, "/services", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	res := decode[ServicesResponse](t, w)
	assert.Len(t, res.Services, len(memory.DefaultServices))
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	s := newTestServer(t, nil)

	routes := []struct{ method, path string }{
		{http.MethodPost, "/jobs"},
		{http.MethodGet, "/jobs/available"},
		{http.MethodGet, "/jobs/abc"},
		{http.MethodGet, "/jobs/abc/events"},
		{http.MethodPost, "/jobs/abc/bids"},
		{http.MethodPost, "/jobs/abc/accept"},
		{http.MethodPost, "/jobs/abc/start"},
		{http.MethodPost, "/jobs/abc/complete"},
		{http.MethodGet, "/professionals/me"},
		{http.MethodPut, "/professionals/me/photo"},
		{http.MethodGet, "/professionals/me/earnings"},
		{http.MethodPut, "/customers/me/pin"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := s.do(rt.method, rt.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "unauthenticated", decode[ErrorResponse](t, w).Code)
		})
	}
}

func TestJobLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	s.register("pro-a")
	s.register("pro-b")
	jobID := s.createJob("cust-1")

	// Professionals see the job without the PIN
	w := s.do(http.MethodGet, "/jobs/available", "pro-a", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "startPin")
	listing := decode[JobsResponse](t, w)
	require.Len(t, listing.Jobs, 1)
	assert.Equal(t, jobID, listing.Jobs[0].ID)

	// The customer's own job is not offered back to them
	w = s.do(http.MethodGet, "/jobs/available", "cust-1", nil)
	assert.Empty(t, decode[JobsResponse](t, w).Jobs)

	w = s.do(http.MethodPost, "/jobs/"+jobID+"/bids", "pro-a", types.SubmitBidRequest{Amount: 800})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decode[marketplace.BidResult](t, w).BidID)
	w = s.do(http.MethodPost, "/jobs/"+jobID+"/bids", "pro-b", types.SubmitBidRequest{Amount: 900})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/jobs/"+jobID+"/accept", "cust-1", types.AcceptBidRequest{ProfessionalID: "pro-a"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/jobs/"+jobID+"/accept", "cust-1", types.AcceptBidRequest{ProfessionalID: "pro-b"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "failed-precondition", decode[ErrorResponse](t, w).Code)

	// Only the customer reads the PIN
	w = s.do(http.MethodGet, "/jobs/"+jobID, "cust-1", nil)
	job := decode[types.Job](t, w)
	assert.Equal(t, "4821", job.StartPin)
	assert.Equal(t, types.StatusAssigned, job.Status)
	require.NotNil(t, job.FinalPrice)
	assert.Equal(t, 800.0, *job.FinalPrice)
	w = s.do(http.MethodGet, "/jobs/"+jobID, "pro-a", nil)
	assert.Empty(t, decode[types.Job](t, w).StartPin)

	w = s.do(http.MethodPost, "/jobs/"+jobID+"/start", "pro-b", types.StartJobRequest{Pin: "4821"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/jobs/"+jobID+"/start", "pro-a", types.StartJobRequest{Pin: "0000"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	bad := decode[ErrorResponse](t, w)
	assert.Equal(t, "invalid-pin", bad.Code)
	require.NotNil(t, bad.Remaining)
	assert.Equal(t, 4, *bad.Remaining)

	w = s.do(http.MethodPost, "/jobs/"+jobID+"/start", "pro-a", types.StartJobRequest{Pin: " 4821 "})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	started := decode[StartJobResponse](t, w)
	assert.True(t, started.Success)
	assert.Equal(t, types.StatusInProgress, started.Job.Status)
	assert.NotNil(t, started.Job.JobStartedAt)

	w = s.do(http.MethodPost, "/jobs/"+jobID+"/complete", "pro-a", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/professionals/me/jobs?status=completed", "pro-a", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[JobsResponse](t, w).Jobs, 1)

	w = s.do(http.MethodGet, "/professionals/me/earnings?timeframe=monthly", "pro-a", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode[types.EarningsSummary](t, w)
	assert.Equal(t, "800.00", summary.Gross)
	assert.Equal(t, "720.00", summary.Net)
}

func TestStartJob_Lockout(t *testing.T) {
	s := newTestServer(t, nil)
	s.register("pro-a")
	jobID := s.createJob("cust-1")
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/jobs/"+jobID+"/bids", "pro-a", types.SubmitBidRequest{Amount: 500}).Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/jobs/"+jobID+"/accept", "cust-1", types.AcceptBidRequest{ProfessionalID: "pro-a"}).Code)

	for i := 0; i < 5; i++ {
		w := s.do(http.MethodPost, "/jobs/"+jobID+"/start", "pro-a", types.StartJobRequest{Pin: "1111"})
		require.Equal(t, http.StatusUnprocessableEntity, w.Code, "attempt %d", i+1)
	}

	w := s.do(http.MethodPost, "/jobs/"+jobID+"/start", "pro-a", types.StartJobRequest{Pin: "4821"})
	assert.Equal(t, http.StatusLocked, w.Code)
	body := decode[ErrorResponse](t, w)
	assert.Equal(t, "pin-locked", body.Code)
	assert.NotNil(t, body.RetryAt)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, nil)
	s.register("pro-a")

	tests := []struct {
		name   string
		method string
		path   string
		uid    string
		body   any
		status int
		code   string
	}{
		{"unknown job", http.MethodGet, "/jobs/missing", "pro-a", nil, http.StatusNotFound, "not-found"},
		{"bid on unknown job", http.MethodPost, "/jobs/missing/bids", "pro-a", types.SubmitBidRequest{Amount: 10}, http.StatusNotFound, "not-found"},
		{"non-positive bid", http.MethodPost, "/jobs/missing/bids", "pro-a", types.SubmitBidRequest{Amount: 0}, http.StatusBadRequest, "invalid-argument"},
		{"bid without profile", http.MethodPost, "/jobs/missing/bids", "nobody", types.SubmitBidRequest{Amount: 10}, http.StatusConflict, "failed-precondition"},
		{"missing profile", http.MethodGet, "/professionals/me", "nobody", nil, http.StatusNotFound, "not-found"},
		{"bad timeframe", http.MethodGet, "/professionals/me/earnings?timeframe=daily", "pro-a", nil, http.StatusBadRequest, "invalid-argument"},
		{"bad status filter", http.MethodGet, "/professionals/me/jobs?status=bogus", "pro-a", nil, http.StatusBadRequest, "invalid-argument"},
		{"bad customer pin", http.MethodPut, "/customers/me/pin", "cust-1", types.CustomerPinRequest{Pin: "12a4"}, http.StatusBadRequest, "invalid-argument"},
		{"invalid job", http.MethodPost, "/jobs", "cust-1", map[string]any{"title": ""}, http.StatusBadRequest, "invalid-argument"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.method, tt.path, tt.uid, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, w).Code)
		})
	}
}

func TestMalformedJSON(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+s.token("cust-1"))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid-argument", decode[ErrorResponse](t, w).Code)
}

func TestCustomerPin_PropagatesToOpenJobs(t *testing.T) {
	s := newTestServer(t, nil)
	jobID := s.createJob("cust-1")
	s.createJob("cust-1")

	w := s.do(http.MethodPut, "/customers/me/pin", "cust-1", types.CustomerPinRequest{Pin: "7777"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[CustomerPinResponse](t, w)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.UpdatedJobs)

	w = s.do(http.MethodGet, "/jobs/"+jobID, "cust-1", nil)
	assert.Equal(t, "7777", decode[types.Job](t, w).StartPin)
}

func TestProfessionalEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	s.register("pro-a")

	w := s.do(http.MethodPut, "/professionals/me/presence", "pro-a", types.PresenceRequest{Online: true})
	require.Equal(t, http.StatusOK, w.Code)
	pro := decode[types.Professional](t, w)
	assert.True(t, pro.IsOnline)
	assert.NotNil(t, pro.LastSeenAt)

	w = s.do(http.MethodGet, "/professionals/me/dashboard", "pro-a", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	dash := decode[types.Dashboard](t, w)
	assert.Equal(t, "pro-a", dash.Professional.UID)
	assert.Equal(t, len(memory.DefaultServices), dash.Metrics.ActiveServices)

	// No photo store is configured in tests
	req := httptest.NewRequest(http.MethodPut, "/professionals/me/photo", bytes.NewReader([]byte{0x89, 'P', 'N', 'G'}))
	req.Header.Set("Authorization", "Bearer "+s.token("pro-a"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode[ErrorResponse](t, rec).Error)

	req = httptest.NewRequest(http.MethodPut, "/professionals/me/photo", bytes.NewReader(nil))
	req.ContentLength = marketplace.MaxPhotoBytes + 1
	req.Header.Set("Authorization", "Bearer "+s.token("pro-a"))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit_PinAttempts(t *testing.T) {
	s := newTestServer(t, &ratelimit.Config{
		Enabled:         true,
		DefaultLimit:    1000,
		DefaultWindow:   time.Minute,
		EndpointConfigs: ratelimit.DefaultEndpointConfigs(),
	})

	for i := 0; i < 5; i++ {
		w := s.do(http.MethodPost, "/jobs/job-x/start", "pro-a", types.StartJobRequest{Pin: "1234"})
		require.NotEqual(t, http.StatusTooManyRequests, w.Code, "attempt %d", i+1)
		assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	}
	w := s.do(http.MethodPost, "/jobs/job-y/start", "pro-a", types.StartJobRequest{Pin: "1234"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// A different caller has its own bucket
	w = s.do(http.MethodPost, "/jobs/job-y/start", "pro-b", types.StartJobRequest{Pin: "1234"})
	assert.NotEqual(t, http.StatusTooManyRequests, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodOptions, "/jobs", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
}

func TestJobEvents_StreamsSnapshots(t *testing.T) {
	s := newTestServer(t, nil)
	s.register("pro-a")
	jobID := s.createJob("cust-1")

	httpSrv := httptest.NewServer(s.Handler())
	defer httpSrv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpSrv.URL+"/jobs/"+jobID+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+s.token("pro-a"))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	next := func() types.Job {
		t.Helper()
		var event string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				require.Equal(t, "job", event)
				var job types.Job
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &job))
				return job
			}
		}
	}

	first := next()
	assert.Equal(t, jobID, first.ID)
	assert.Equal(t, 0, first.BidCount)
	assert.Empty(t, first.StartPin)

	w := s.do(http.MethodPost, "/jobs/"+jobID+"/bids", "pro-a", types.SubmitBidRequest{Amount: 750})
	require.Equal(t, http.StatusOK, w.Code)

	second := next()
	assert.Equal(t, 1, second.BidCount)
	assert.Greater(t, second.Version, first.Version)
	assert.Empty(t, second.StartPin)
}

func TestJobEvents_UnknownJob(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodGet, "/jobs/missing/events", "pro-a", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNew_Validation(t *testing.T) {
	svc := marketplace.NewService(memory.New(), marketplace.DefaultOptions())

	_, err := New(Config{}, svc)
	assert.Error(t, err, "secret required")

	_, err = New(Config{JWT: &config.JWTConfig{Secret: testSecret, ExpirationHours: 1}}, nil)
	assert.Error(t, err, "service required")
}
