package marketplace

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Code is the stable error code callers and clients branch on.
type Code string

// Error codes surfaced to API clients.
const (
	CodeUnauthenticated    Code = "unauthenticated"
	CodeInvalidArgument    Code = "invalid-argument"
	CodeNotFound           Code = "not-found"
	CodePermissionDenied   Code = "permission-denied"
	CodeFailedPrecondition Code = "failed-precondition"
	CodeInvalidPin         Code = "invalid-pin"
	CodePinLocked          Code = "pin-locked"
	CodeInternal           Code = "internal"
)

// ErrUnauthenticated indicates the caller has no identity
type ErrUnauthenticated struct{}

func (e *ErrUnauthenticated) Error() string { return "authentication required" }

// Code returns the error code.
func (e *ErrUnauthenticated) Code() Code { return CodeUnauthenticated }

// ErrInvalidArgument indicates a malformed or out-of-range input
type ErrInvalidArgument struct {
	Field   string
	Message string
}

func (e *ErrInvalidArgument) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid argument: %s", e.Message)
	}
	return fmt.Sprintf("invalid argument: %s - %s", e.Field, e.Message)
}

// Code returns the error code.
func (e *ErrInvalidArgument) Code() Code { return CodeInvalidArgument }

// ErrJobNotFound indicates the job does not exist
type ErrJobNotFound struct {
	JobID string
}

func (e *ErrJobNotFound) Error() string { return fmt.Sprintf("job not found: %s", e.JobID) }

// Code returns the error code.
func (e *ErrJobNotFound) Code() Code { return CodeNotFound }

// ErrProfessionalNotFound indicates the professional profile does not exist
type ErrProfessionalNotFound struct {
	UID string
}

func (e *ErrProfessionalNotFound) Error() string {
	return fmt.Sprintf("professional profile not found: %s", e.UID)
}

// Code returns the error code.
func (e *ErrProfessionalNotFound) Code() Code { return CodeNotFound }

// ErrProfileMissing indicates an operation that needs a professional profile was
// called before the profile was created
type ErrProfileMissing struct {
	UID string
}

const profileMissingMessage = "professional profile missing, complete onboarding first"

func (e *ErrProfileMissing) Error() string {
	return profileMissingMessage
}

// Code returns the error code.
func (e *ErrProfileMissing) Code() Code { return CodeFailedPrecondition }

// ErrPermissionDenied indicates the caller may not act on the record
type ErrPermissionDenied struct {
	Reason string
}

func (e *ErrPermissionDenied) Error() string { return fmt.Sprintf("permission denied: %s", e.Reason) }

// Code returns the error code.
func (e *ErrPermissionDenied) Code() Code { return CodePermissionDenied }

// ErrJobUnavailable indicates the job is not in a state that allows the operation
type ErrJobUnavailable struct {
	JobID   string
	Status  string
	Message string
}

func (e *ErrJobUnavailable) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("job %s is %s", e.JobID, e.Status)
}

// Code returns the error code.
func (e *ErrJobUnavailable) Code() Code { return CodeFailedPrecondition }

// ErrInvalidPin indicates a start PIN mismatch
type ErrInvalidPin struct {
	Remaining int
}

func (e *ErrInvalidPin) Error() string {
	return fmt.Sprintf("invalid start code, %d attempts remaining", e.Remaining)
}

// Code returns the error code.
func (e *ErrInvalidPin) Code() Code { return CodeInvalidPin }

// ErrPinLocked indicates PIN attempts are refused until Until
type ErrPinLocked struct {
	Until time.Time
}

func (e *ErrPinLocked) Error() string {
	return fmt.Sprintf("too many start code attempts, try again after %s", e.Until.UTC().Format(time.RFC3339))
}

// Code returns the error code.
func (e *ErrPinLocked) Code() Code { return CodePinLocked }

// ErrLockHeld is returned by a Locker when another runner holds the lock.
var ErrLockHeld = errors.New("lock held by another runner")

type coder interface {
	Code() Code
}

// CodeOf returns the code of the first typed error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeInternal
}

// IsProfileMissing reports whether err is ErrProfileMissing, either directly or
// as a failed-precondition error decoded from an API response.
func IsProfileMissing(err error) bool {
	var missing *ErrProfileMissing
	if errors.As(err, &missing) {
		return true
	}
	return CodeOf(err) == CodeFailedPrecondition && strings.Contains(err.Error(), profileMissingMessage)
}

// validationError converts a validator failure into ErrInvalidArgument naming the first bad field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ErrInvalidArgument{Field: lowerFirst(fe.Field()), Message: describeTag(fe)}
	}
	return &ErrInvalidArgument{Message: "invalid request"}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must have at most %s", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "number", "numeric":
		return "must contain digits only"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "email":
		return "must be a valid email address"
	default:
		return fe.Tag()
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
