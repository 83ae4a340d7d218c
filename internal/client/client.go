// Package client is the professional app's HTTP client for the marketplace API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tydee/tydee-pro/internal/marketplace"
	"github.com/tydee/tydee-pro/internal/types"
)

// DefaultTimeout bounds every non-streaming request.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is sent with every request.
const DefaultUserAgent = "TydeePro/1.0"

// APIError is a failed API call. Code carries the server's error code so callers can
// branch with marketplace.CodeOf like they would on the server.
type APIError struct {
	Status    int
	ErrCode   marketplace.Code
	Message   string
	Remaining *int
	RetryAt   *time.Time
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.ErrCode)
}

// Code returns the server's error code.
func (e *APIError) Code() marketplace.Code {
	return e.ErrCode
}

// Options configures the client.
type Options struct {
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
	}
}

// Client calls the marketplace API as one authenticated user.
type Client struct {
	baseURL   *url.URL
	token     string
	userAgent string
	timeout   time.Duration
	http      *http.Client
}

// New creates a client for baseURL authenticating with token.
func New(baseURL, token string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}

	c := &Client{
		baseURL:   parsed,
		token:     token,
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
		http:      opts.HTTPClient,
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.http == nil {
		// Streams must outlive DefaultTimeout, so the timeout is applied per call
		c.http = &http.Client{}
	}
	return c, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	rel, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	u.Path = c.baseURL.Path + rel.Path
	u.RawQuery = rel.RawQuery

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends a JSON request and decodes a JSON response into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error     string     `json:"error"`
		Code      string     `json:"code"`
		Remaining *int       `json:"remaining"`
		RetryAt   *time.Time `json:"retryAt"`
	}
	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.Unmarshal(raw, &body); err == nil && body.Code != "" {
		apiErr.ErrCode = marketplace.Code(body.Code)
		apiErr.Message = body.Error
		apiErr.Remaining = body.Remaining
		apiErr.RetryAt = body.RetryAt
		return apiErr
	}
	apiErr.ErrCode = codeForStatus(resp.StatusCode)
	apiErr.Message = strings.TrimSpace(string(raw))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// codeForStatus covers responses without a JSON error body, e.g. from a proxy.
func codeForStatus(status int) marketplace.Code {
	switch status {
	case http.StatusUnauthorized:
		return marketplace.CodeUnauthenticated
	case http.StatusBadRequest:
		return marketplace.CodeInvalidArgument
	case http.StatusNotFound:
		return marketplace.CodeNotFound
	case http.StatusForbidden:
		return marketplace.CodePermissionDenied
	case http.StatusConflict:
		return marketplace.CodeFailedPrecondition
	case http.StatusUnprocessableEntity:
		return marketplace.CodeInvalidPin
	case http.StatusLocked:
		return marketplace.CodePinLocked
	default:
		return marketplace.CodeInternal
	}
}

func jobPath(jobID string, suffix ...string) string {
	return "/jobs/" + url.PathEscape(jobID) + strings.Join(suffix, "")
}

// CreateJob posts a new job as the customer.
func (c *Client) CreateJob(ctx context.Context, req *types.CreateJobRequest) (*marketplace.CreateJobResult, error) {
	var res marketplace.CreateJobResult
	if err := c.do(ctx, http.MethodPost, "/jobs", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AvailableJobs lists jobs open for bidding.
func (c *Client) AvailableJobs(ctx context.Context) ([]types.Job, error) {
	var res struct {
		Jobs []types.Job `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/jobs/available", nil, &res); err != nil {
		return nil, err
	}
	return res.Jobs, nil
}

// Job fetches the latest state of a job.
func (c *Client) Job(ctx context.Context, jobID string) (*types.Job, error) {
	var job types.Job
	if err := c.do(ctx, http.MethodGet, jobPath(jobID), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// SubmitBid places or replaces the caller's bid.
func (c *Client) SubmitBid(ctx context.Context, jobID string, amount float64) (*marketplace.BidResult, error) {
	var res marketplace.BidResult
	if err := c.do(ctx, http.MethodPost, jobPath(jobID, "/bids"), types.SubmitBidRequest{Amount: amount}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AcceptBid accepts professionalID's bid as the job's customer.
func (c *Client) AcceptBid(ctx context.Context, jobID, professionalID string) error {
	return c.do(ctx, http.MethodPost, jobPath(jobID, "/accept"), types.AcceptBidRequest{ProfessionalID: professionalID}, nil)
}

// StartJob submits the on-site PIN.
func (c *Client) StartJob(ctx context.Context, jobID, pin string) (*types.Job, error) {
	var res struct {
		Success bool       `json:"success"`
		Job     *types.Job `json:"job"`
	}
	if err := c.do(ctx, http.MethodPost, jobPath(jobID, "/start"), types.StartJobRequest{Pin: pin}, &res); err != nil {
		return nil, err
	}
	return res.Job, nil
}

// CompleteJob marks an in-progress job completed.
func (c *Client) CompleteJob(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodPost, jobPath(jobID, "/complete"), nil, nil)
}

// RegisterProfessional creates the caller's profile. Permission errors right after
// sign-in are retried since the identity can take a moment to propagate.
func (c *Client) RegisterProfessional(ctx context.Context, req *types.RegisterProfessionalRequest) (*types.Professional, error) {
	var pro types.Professional
	err := RetryOnPermission(ctx, DefaultPermissionAttempts, DefaultPermissionDelay, func(ctx context.Context) error {
		return c.do(ctx, http.MethodPost, "/professionals/me", req, &pro)
	})
	if err != nil {
		return nil, err
	}
	return &pro, nil
}

// Professional returns the caller's profile.
func (c *Client) Professional(ctx context.Context) (*types.Professional, error) {
	var pro types.Professional
	if err := c.do(ctx, http.MethodGet, "/professionals/me", nil, &pro); err != nil {
		return nil, err
	}
	return &pro, nil
}

// SetPresence toggles the caller's online flag.
func (c *Client) SetPresence(ctx context.Context, online bool) (*types.Professional, error) {
	var pro types.Professional
	if err := c.do(ctx, http.MethodPut, "/professionals/me/presence", types.PresenceRequest{Online: online}, &pro); err != nil {
		return nil, err
	}
	return &pro, nil
}

// UploadPhoto sends a raw JPEG or PNG image and returns its public URL.
func (c *Client) UploadPhoto(ctx context.Context, contentType string, image io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPut, "/professionals/me/photo", image)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	var res struct {
		ProfileImage string `json:"profileImage"`
	}
	if err := c.send(req, &res); err != nil {
		return "", err
	}
	return res.ProfileImage, nil
}

// Earnings returns the payout summary for the timeframe.
func (c *Client) Earnings(ctx context.Context, tf types.Timeframe) (*types.EarningsSummary, error) {
	var summary types.EarningsSummary
	path := "/professionals/me/earnings?timeframe=" + url.QueryEscape(string(tf))
	if err := c.do(ctx, http.MethodGet, path, nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Dashboard returns the professional home screen data.
func (c *Client) Dashboard(ctx context.Context) (*types.Dashboard, error) {
	var dashboard types.Dashboard
	if err := c.do(ctx, http.MethodGet, "/professionals/me/dashboard", nil, &dashboard); err != nil {
		return nil, err
	}
	return &dashboard, nil
}

// Bookings lists the caller's assigned jobs, optionally filtered by status.
func (c *Client) Bookings(ctx context.Context, statuses ...types.Status) ([]types.Job, error) {
	path := "/professionals/me/jobs"
	if len(statuses) > 0 {
		parts := make([]string, len(statuses))
		for i, s := range statuses {
			parts[i] = string(s)
		}
		path += "?status=" + url.QueryEscape(strings.Join(parts, ","))
	}
	var res struct {
		Jobs []types.Job `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res.Jobs, nil
}

// SetCustomerPin sets the caller's permanent PIN and returns the number of jobs updated.
func (c *Client) SetCustomerPin(ctx context.Context, pin string) (int, error) {
	var res struct {
		UpdatedJobs int `json:"updatedJobs"`
	}
	if err := c.do(ctx, http.MethodPut, "/customers/me/pin", types.CustomerPinRequest{Pin: pin}, &res); err != nil {
		return 0, err
	}
	return res.UpdatedJobs, nil
}

// Services returns the active service catalogue.
func (c *Client) Services(ctx context.Context) ([]types.ServiceOffering, error) {
	var res struct {
		Services []types.ServiceOffering `json:"services"`
	}
	if err := c.do(ctx, http.MethodGet, "/services", nil, &res); err != nil {
		return nil, err
	}
	return res.Services, nil
}
