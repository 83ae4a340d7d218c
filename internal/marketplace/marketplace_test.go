package marketplace_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tydee/tydee-pro/internal/db/memory"
	"github.com/tydee/tydee-pro/internal/marketplace"
	"github.com/tydee/tydee-pro/internal/schemas"
	"github.com/tydee/tydee-pro/internal/types"
)

var _ marketplace.Store = (*memory.Store)(nil)

// clock is a settable test clock.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store *memory.Store
	svc   *marketplace.Service
	clock *clock
}

func newFixture(t *testing.T, options ...marketplace.Option) *fixture {
	t.Helper()
	registry, err := schemas.LoadRegistry()
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	c := &clock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	store := memory.New(memory.DefaultServices...)
	all := append([]marketplace.Option{
		marketplace.WithClock(c.Now),
		marketplace.WithLogger(logger),
		marketplace.WithPropertyValidator(registry),
	}, options...)
	return &fixture{
		store: store,
		svc:   marketplace.NewService(store, marketplace.DefaultOptions(), all...),
		clock: c,
	}
}

func (f *fixture) register(t *testing.T, uid, name string) {
	t.Helper()
	_, err := f.svc.RegisterProfessional(context.Background(), uid, &types.RegisterProfessionalRequest{Name: name})
	require.NoError(t, err)
}

func (f *fixture) createJob(t *testing.T, customerID string, budget float64) string {
	t.Helper()
	res, err := f.svc.CreateJob(context.Background(), customerID, &types.CreateJobRequest{
		Title:      "Fix leaking tap",
		SubService: "Leak Repair",
		Services:   []string{"leak-repair"},
		Budget:     &budget,
		Location:   map[string]any{"address": "12 Long St"},
		StartPin:   "4821",
	})
	require.NoError(t, err)
	return res.JobID
}

// assigned creates a job with one bid from pro and accepts it.
func (f *fixture) assigned(t *testing.T, customerID, pro string, amount float64) string {
	t.Helper()
	ctx := context.Background()
	jobID := f.createJob(t, customerID, 1000)
	_, err := f.svc.SubmitBid(ctx, pro, jobID, amount)
	require.NoError(t, err)
	require.NoError(t, f.svc.AcceptBid(ctx, customerID, jobID, pro))
	return jobID
}

func code(err error) marketplace.Code {
	return marketplace.CodeOf(err)
}

// =============================================================================
// Job creation
// =============================================================================

func TestCreateJob_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jobID := f.createJob(t, "cust-1", 1000)

	job, err := f.svc.Job(ctx, "cust-1", jobID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, job.Status)
	assert.Equal(t, types.BidStatusOpen, job.BidStatus)
	assert.Empty(t, job.Bids)
	assert.Empty(t, job.Bidders)
	assert.Equal(t, 0, job.BidCount)
	assert.False(t, job.HasBids)
	assert.Nil(t, job.AssignedProfessionalID)
	assert.Equal(t, "4821", job.StartPin)
	assert.Equal(t, "normal", job.Urgency)
	assert.Equal(t, "General", job.Category)
	assert.Equal(t, job.CreatedAt.Add(time.Hour), job.ExpiresAt)
	assert.NotNil(t, job.PropertyDetails)
}

func TestCreateJob_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   *types.CreateJobRequest
		field string
	}{
		{
			name:  "blank title",
			req:   &types.CreateJobRequest{Title: "   ", Services: []string{"x"}, Location: map[string]any{"a": 1}},
			field: "title",
		},
		{
			name:  "no services",
			req:   &types.CreateJobRequest{Title: "t", Location: map[string]any{"a": 1}},
			field: "services",
		},
		{
			name:  "no location",
			req:   &types.CreateJobRequest{Title: "t", Services: []string{"x"}},
			field: "location",
		},
		{
			name:  "bad pin",
			req:   &types.CreateJobRequest{Title: "t", Services: []string{"x"}, Location: map[string]any{"a": 1}, StartPin: "12a4"},
			field: "startPin",
		},
		{
			name:  "signed pin",
			req:   &types.CreateJobRequest{Title: "t", Services: []string{"x"}, Location: map[string]any{"a": 1}, StartPin: "+123"},
			field: "startPin",
		},
		{
			name:  "negative pin",
			req:   &types.CreateJobRequest{Title: "t", Services: []string{"x"}, Location: map[string]any{"a": 1}, StartPin: "-123"},
			field: "startPin",
		},
		{
			name:  "decimal pin",
			req:   &types.CreateJobRequest{Title: "t", Services: []string{"x"}, Location: map[string]any{"a": 1}, StartPin: "1.23"},
			field: "startPin",
		},
		{
			name: "property details off schema",
			req: &types.CreateJobRequest{
				Title: "t", Services: []string{"x"}, Location: map[string]any{"a": 1},
				SubService:      "Leak Repair",
				PropertyDetails: map[string]any{"fixture_type": "Bathtub"},
			},
			field: "propertyDetails",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateJob(ctx, "cust-1", tt.req)
			require.Error(t, err)
			assert.Equal(t, marketplace.CodeInvalidArgument, code(err))
			var invalid *marketplace.ErrInvalidArgument
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, tt.field, invalid.Field)
		})
	}

	_, err := f.svc.CreateJob(ctx, "", &types.CreateJobRequest{})
	assert.Equal(t, marketplace.CodeUnauthenticated, code(err))
}

func TestCreateJob_PinSources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := func() *types.CreateJobRequest {
		return &types.CreateJobRequest{Title: "t", Services: []string{"x"}, Location: map[string]any{"a": 1}}
	}

	res, err := f.svc.CreateJob(ctx, "cust-1", req())
	require.NoError(t, err)
	job, err := f.svc.Job(ctx, "cust-1", res.JobID)
	require.NoError(t, err)
	assert.Len(t, job.StartPin, 4)
	assert.Regexp(t, `^[0-9]{4}$`, job.StartPin)

	_, err = f.svc.SetCustomerPin(ctx, "cust-1", "9090")
	require.NoError(t, err)
	res, err = f.svc.CreateJob(ctx, "cust-1", req())
	require.NoError(t, err)
	job, err = f.svc.Job(ctx, "cust-1", res.JobID)
	require.NoError(t, err)
	assert.Equal(t, "9090", job.StartPin)
}

func TestGeneratePin(t *testing.T) {
	for i := 0; i < 20; i++ {
		pin, err := marketplace.GeneratePin()
		require.NoError(t, err)
		assert.Regexp(t, `^[0-9]{4}$`, pin)
	}
}

func TestJob_PinVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "pro-a", "Thandi")
	jobID := f.assigned(t, "cust-1", "pro-a", 800)

	owner, err := f.svc.Job(ctx, "cust-1", jobID)
	require.NoError(t, err)
	assert.Equal(t, "4821", owner.StartPin)

	assignee, err := f.svc.Job(ctx, "pro-a", jobID)
	require.NoError(t, err)
	assert.Empty(t, assignee.StartPin)

	_, err = f.svc.Job(ctx, "cust-1", "missing")
	assert.Equal(t, marketplace.CodeNotFound, code(err))
}

// =============================================================================
// Bidding
// =============================================================================

func TestSubmitBid_DoubleBidReplaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "pro-a", "Thandi")
	jobID := f.createJob(t, "cust-1", 1000)

	first, err := f.svc.SubmitBid(ctx, "pro-a", jobID, 800)
	require.NoError(t, err)
	second, err := f.svc.SubmitBid(ctx, "pro-a", jobID, 750)
	require.NoError(t, err)
	assert.Equal(t, first.BidID, second.BidID)

	job, err := f.svc.Job(ctx, "cust-1", jobID)
	require.NoError(t, err)
	require.Len(t, job.Bids, 1)
	assert.Equal(t, 750.0, job.Bids[0].Amount)
	assert.Equal(t, "Thandi", job.Bids[0].Name)
	assert.Equal(t, 5.0, job.Bids[0].Rating)
	assert.Equal(t, types.DefaultBidETA, job.Bids[0].ETA)
	assert.Equal(t, []string{"pro-a"}, job.Bidders)
	assert.True(t, job.HasBids)
	assert.Equal(t, 2, job.BidCount)
}

func TestSubmitBid_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "pro-a", "Thandi")
	f.register(t, "cust-1", "Also a pro")
	jobID := f.createJob(t, "cust-1", 1000)

	tests := []struct {
		name   string
		uid    string
		jobID  string
		amount float64
		want   marketplace.Code
	}{
		{"unauthenticated", "", jobID, 100, marketplace.CodeUnauthenticated},
		{"zero amount", "pro-a", jobID, 0, marketplace.CodeInvalidArgument},
		{"negative amount", "pro-a", jobID, -5, marketplace.CodeInvalidArgument},
		{"missing job id", "pro-a", "", 100, marketplace.CodeInvalidArgument},
		{"no profile", "pro-ghost", jobID, 100, marketplace.CodeFailedPrecondition},
		{"unknown job", "pro-a", "nope", 100, marketplace.CodeNotFound},
		{"own job", "cust-1", jobID, 100, marketplace.CodePermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SubmitBid(ctx, tt.uid, tt.jobID, tt.amount)
			assert.Equal(t, tt.want, code(err))
		})
	}
}

func TestAcceptBid_SetsFinalPriceFromBid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "pro-a", "Thandi")
	f.register(t, "pro-b", "Sipho")
	jobID := f.createJob(t, "cust-1", 1000)

	_, err := f.svc.SubmitBid(ctx, "pro-a", jobID, 800)
	require.NoError(t, err)
	_, err = f.svc.SubmitBid(ctx, "pro-b", jobID, 900)
	require.NoError(t, err)
	require.NoError(t, f.svc.AcceptBid(ctx, "cust-1", jobID, "pro-a"))

	job, err := f.svc.Job(ctx, "cust-1", jobID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAssigned, job.Status)
	assert.Equal(t, types.BidStatusClosed, job.BidStatus)
	require.NotNil(t, job.AssignedProfessionalID)
	assert.Equal(t, "pro-a", *job.AssignedProfessionalID)
	require.NotNil(t, job.FinalPrice)
	assert.Equal(t, 800.0, *job.FinalPrice)
	assert.NotNil(t, job.BidAcceptedAt)

	_, err = f.svc.SubmitBid(ctx, "pro-b", jobID, 700)
	assert.Equal(t, marketplace.CodeFailedPrecondition, code(err))
}

func TestAcceptBid_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "pro-a", "Thandi")
	jobID := f.createJob(t, "cust-1", 1000)
	_, err := f.svc.SubmitBid(ctx, "pro-a", jobID, 800)
	require.NoError(t, err)

	err = f.svc.AcceptBid(ctx, "cust-2", jobID, "pro-a")
	assert.Equal(t, marketplace.CodePermissionDenied, code(err))

	err = f.svc.AcceptBid(ctx, "cust-1", jobID, "pro-nobid")
	assert.Equal(t, marketplace.CodeInvalidArgument, code(err))

	err = f.svc.AcceptBid(ctx, "cust-1", "nope", "pro-a")
	assert.Equal(t, marketplace.CodeNotFound, code(err))

	job, err := f.svc.Job(ctx, "cust-1", jobID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, job.Status, "rejected accepts write nothing")
}

func TestAcceptBid_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pros := []string{"pro-a", "pro-b", "pro-c", "pro-d", "pro-e"}
	for _, p := range pros {
		f.register(t, p, p)
	}
	jobID := f.createJob(t, "cust-1", 1000)
	for i, p := range pros {
		_, err := f.svc.SubmitBid(ctx, p, jobID, float64(500+i*100))
		require.NoError(t, err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		taken   int
	)
	for _, p := range pros {
		wg.Add(1)
		go func(pro string) {
			defer wg.Done()
			err := f.svc.AcceptBid(ctx, "cust-1", jobID, pro)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, pro)
				return
			}
			var unavailable *marketplace.ErrJobUnavailable
			if errors.As(err, &unavailable) {
				taken++
			}
		}(p)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, len(pros)-1, taken)

	job, err := f.svc.Job(ctx, "cust-1", jobID)
	require.NoError(t, err)
	assert.Equal(t, winners[0], *job.AssignedProfessionalID)
	assert.Equal(t, job.FindBid(winners[0]).Amount, *job.FinalPrice)
}

// =============================================================================
// Listing
// =============================================================================

func TestAvailableJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "pro-a", "Thandi")

	older := f.createJob(t, "cust-1", 500)
	f.clock.Advance(time.Minute)
	newer := f.createJob(t, "cust-2", 600)
	f.clock.Advance(time.Minute)
	own := f.createJob(t, "pro-a", 700)
	taken := f.assigned(t, "cust-3", "pro-a", 300)

	jobs, err := f.svc.AvailableJobs(ctx, "pro-a")
	require.NoError(t, err)

	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
		assert.Empty(t, j.StartPin)
	}
	assert.Equal(t, []string{newer, older}, ids)
	assert.NotContains(t, ids, own)
	assert.NotContains(t, ids, taken)
}

func TestBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "pro-a", "Thandi")
	f.register(t, "pro-b", "Sipho")

	mine := f.assigned(t, "cust-1", "pro-a", 800)
	_ = f.assigned(t, "cust-1", "pro-b", 800)

	jobs, err := f.svc.Bookings(ctx, "pro-a", nil)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, mine, jobs[0].ID)

	jobs, err = f.svc.Bookings(ctx, "pro-a", []types.Status{types.StatusCompleted})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

// =============================================================================
// Start handshake and completion
// =============================================================================

func TestStartJob_TrimmedPinMatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "pro-a", "Thandi")
	jobID := f.assigned(t, "cust-1", "pro-a", 800)

	job, err := f.svc.StartJob(ctx, "pro-a", jobID, " 4821 ")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, job.Status)
	assert.NotNil(t, job.JobStartedAt)
	assert.Empty(t, job.StartPin)
}

func TestStartJob_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "pro-a", "Thandi")
	f.register(t, "pro-b", "Sipho")
	jobID := f.assigned(t, "cust-1", "pro-a", 800)
	pending := f.createJob(t, "cust-1", 1000)

	_, err := f.svc.StartJob(ctx, "pro-b", jobID, "4821")
	assert.Equal(t, marketplace.CodePermissionDenied, code(err))

	_, err = f.svc.StartJob(ctx, "pro-a", jobID, "  ")
	assert.Equal(t, marketplace.CodeInvalidArgument, code(err))

	_, err = f.svc.StartJob(ctx, "pro-a", pending, "4821")
	assert.Equal(t, marketplace.CodePermissionDenied, code(err))

	_, err = f.svc.StartJob(ctx, "pro-a", "nope", "4821")
	assert.Equal(t, marketplace.CodeNotFound, code(err))

	_, err = f.svc.StartJob(ctx, "pro-a", jobID, "4821")
	require.NoError(t, err)
	_, err = f.svc.StartJob(ctx, "pro-a", jobID, "4821")
	assert.Equal(t, marketplace.CodeFailedPrecondition, code(err), "already started")
}

func TestStartJob_Lockout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "pro-a", "Thandi")
	jobID := f.assigned(t, "cust-1", "pro-a", 800)

	for want := 4; want >= 0; want-- {
		_, err := f.svc.StartJob(ctx, "pro-a", jobID, "0000")
		var invalid *marketplace.ErrInvalidPin
		require.True(t, errors.As(err, &invalid), "attempt with %d remaining", want)
		assert.Equal(t, want, invalid.Remaining)
	}

	_, err := f.svc.StartJob(ctx, "pro-a", jobID, "4821")
	var locked *marketplace.ErrPinLocked
	require.True(t, errors.As(err, &locked))
	assert.Equal(t, marketplace.CodePinLocked, code(err))
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), locked.Until)

	job, err := f.svc.Job(ctx, "cust-1", jobID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAssigned, job.Status)

	f.clock.Advance(15 * time.Minute)
	started, err := f.svc.StartJob(ctx, "pro-a", jobID, "4821")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, started.Status)
}

func TestStartJob_WindowResets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "pro-a", "Thandi")
	jobID := f.assigned(t, "cust-1", "pro-a", 800)

	for i := 0; i < 4; i++ {
		_, err := f.svc.StartJob(ctx, "pro-a", jobID, "0000")
		assert.Equal(t, marketplace.CodeInvalidPin, code(err))
	}
	f.clock.Advance(16 * time.Minute)

	_, err := f.svc.StartJob(ctx, "pro-a", jobID, "0000")
	var invalid *marketplace.ErrInvalidPin
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, 4, invalid.Remaining)
}

func TestCompleteJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "pro-a", "Thandi")
	jobID := f.assigned(t, "cust-1", "pro-a", 800)

	err := f.svc.CompleteJob(ctx, "pro-a", jobID)
	assert.Equal(t, marketplace.CodeFailedPrecondition, code(err), "not started yet")

	_, err = f.svc.StartJob(ctx, "pro-a", jobID, "4821")
	require.NoError(t, err)

	err = f.svc.CompleteJob(ctx, "pro-b", jobID)
	assert.Equal(t, marketplace.CodePermissionDenied, code(err))

	require.NoError(t, f.svc.CompleteJob(ctx, "pro-a", jobID))
	job, err := f.svc.Job(ctx, "cust-1", jobID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
}

func TestSetCustomerPin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "pro-a", "Thandi")
	pending := f.createJob(t, "cust-1", 1000)
	started := f.assigned(t, "cust-1", "pro-a", 800)
	_, err := f.svc.StartJob(ctx, "pro-a", started, "4821")
	require.NoError(t, err)

	n, err := f.svc.SetCustomerPin(ctx, "cust-1", " 1357 ")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err := f.svc.Job(ctx, "cust-1", pending)
	require.NoError(t, err)
	assert.Equal(t, "1357", job.StartPin)

	for _, bad := range []string{"12", "+123", "-123", "1.23", "12a4"} {
		n, err := f.svc.SetCustomerPin(ctx, "cust-1", bad)
		assert.Equal(t, marketplace.CodeInvalidArgument, code(err), bad)
		assert.Zero(t, n, bad)
	}

	job, err = f.svc.Job(ctx, "cust-1", pending)
	require.NoError(t, err)
	assert.Equal(t, "1357", job.StartPin, "rejected pins are not propagated")
}

// =============================================================================
// Subscriptions
// =============================================================================

func TestSubscribeJob_RedactsForProfessionals(t *testing.T) {
	f := newFixture(t)
	f.register(t, "pro-a", "Thandi")
	jobID := f.createJob(t, "cust-1", 1000)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := f.svc.SubscribeJob(ctx, "pro-a", jobID)
	require.NoError(t, err)

	first := <-ch
	assert.Empty(t, first.StartPin)
	assert.Equal(t, types.StatusPending, first.Status)

	_, err = f.svc.SubmitBid(ctx, "pro-a", jobID, 800)
	require.NoError(t, err)

	select {
	case snap := <-ch:
		assert.Equal(t, 1, len(snap.Bids))
		assert.Empty(t, snap.StartPin)
	case <-ctx.Done():
		t.Fatal("no snapshot after bid")
	}

	_, err = f.svc.SubscribeJob(ctx, "pro-a", "nope")
	assert.Equal(t, marketplace.CodeNotFound, code(err))
}

// =============================================================================
// Errors
// =============================================================================

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want marketplace.Code
	}{
		{nil, ""},
		{errors.New("boom"), marketplace.CodeInternal},
		{&marketplace.ErrUnauthenticated{}, marketplace.CodeUnauthenticated},
		{&marketplace.ErrJobNotFound{JobID: "j"}, marketplace.CodeNotFound},
		{&marketplace.ErrProfileMissing{UID: "u"}, marketplace.CodeFailedPrecondition},
		{&marketplace.ErrInvalidPin{Remaining: 2}, marketplace.CodeInvalidPin},
		{&marketplace.ErrPinLocked{}, marketplace.CodePinLocked},
		{errors.Join(errors.New("wrapped"), &marketplace.ErrPermissionDenied{}), marketplace.CodePermissionDenied},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, marketplace.CodeOf(tt.err))
	}
}
