package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tydee/tydee-pro/internal/marketplace"
	"github.com/tydee/tydee-pro/internal/observability"
)

const maxJSONBody = 1 << 20

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string     `json:"error"`
	Code      string     `json:"code"`
	Remaining *int       `json:"remaining,omitempty"`
	RetryAt   *time.Time `json:"retryAt,omitempty"`
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	switch marketplace.CodeOf(err) {
	case marketplace.CodeUnauthenticated:
		return http.StatusUnauthorized
	case marketplace.CodeInvalidArgument:
		return http.StatusBadRequest
	case marketplace.CodeNotFound:
		return http.StatusNotFound
	case marketplace.CodePermissionDenied:
		return http.StatusForbidden
	case marketplace.CodeFailedPrecondition:
		return http.StatusConflict
	case marketplace.CodeInvalidPin:
		return http.StatusUnprocessableEntity
	case marketplace.CodePinLocked:
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse writes err as an ErrorResponse. Internal errors are logged and
// their message is not sent to the client.
func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, funcName string, err error) {
	code := marketplace.CodeOf(err)
	status := HTTPStatus(err)
	body := ErrorResponse{Error: err.Error(), Code: string(code)}

	var invalidPin *marketplace.ErrInvalidPin
	var pinLocked *marketplace.ErrPinLocked
	switch {
	case errors.As(err, &invalidPin):
		body.Remaining = &invalidPin.Remaining
	case errors.As(err, &pinLocked):
		until := pinLocked.Until.UTC()
		body.RetryAt = &until
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSeconds(until)))
	}

	if status >= http.StatusInternalServerError {
		observability.LogError(s.logger, moduleName, funcName, r.Method+" "+r.URL.Path, nil, err)
		body.Error = "internal error"
	}
	s.jsonResponse(w, status, body)
}

func retryAfterSeconds(until time.Time) int {
	secs := int(time.Until(until).Seconds()) + 1
	if secs < 1 {
		return 1
	}
	return secs
}

// decodeJSON reads a JSON request body into dst. An empty body leaves dst unchanged.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &marketplace.ErrInvalidArgument{Message: "invalid request body: " + err.Error()}
	}
	return nil
}
