package controller

import (
	"errors"

	"github.com/tydee/tydee-pro/internal/marketplace"
)

// UserMessage turns an error from the API or the controller into text for the app.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrStale):
		return "This job has changed. Please refresh."
	case errors.Is(err, ErrChecklistPending):
		return "Please confirm the safety checklist first"
	case marketplace.IsProfileMissing(err):
		return "Please finish setting up your profile first"
	}

	switch marketplace.CodeOf(err) {
	case marketplace.CodeInvalidPin:
		return "Invalid Code"
	case marketplace.CodePinLocked:
		return "Too many attempts. Please wait before trying again."
	case marketplace.CodePermissionDenied:
		return "Permission Syncing — please wait"
	case marketplace.CodeFailedPrecondition:
		return "This job was already taken"
	case marketplace.CodeNotFound:
		return "This job is no longer available"
	case marketplace.CodeUnauthenticated:
		return "Please sign in again"
	case marketplace.CodeInvalidArgument:
		return "Please check your input and try again"
	}
	return "Something went wrong. Please try again."
}
