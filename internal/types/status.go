// Package types provides type definitions for the records shared by the marketplace, the store and the API.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a job record.
type Status string

// Canonical job statuses. Values are always lowercase.
const (
	StatusPending    Status = "pending"
	StatusOpen       Status = "open"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusExpired    Status = "expired"
)

// Bid window states.
const (
	BidStatusOpen   = "open"
	BidStatusClosed = "closed"
)

// statusAliases maps legacy values written by older app builds onto the canonical set.
var statusAliases = map[string]Status{
	"accepted":    StatusAssigned,
	"confirmed":   StatusAssigned,
	"inprogress":  StatusInProgress,
	"in-progress": StatusInProgress,
}

// ParseStatus normalizes a raw status value (case, whitespace, legacy aliases).
func ParseStatus(raw string) (Status, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch Status(s) {
	case StatusPending, StatusOpen, StatusAssigned, StatusInProgress, StatusCompleted, StatusExpired:
		return Status(s), nil
	}
	if alias, ok := statusAliases[s]; ok {
		return alias, nil
	}
	return "", fmt.Errorf("unknown job status %q", raw)
}

// AcceptingBids reports whether the status still lets professionals bid or customers accept.
func (s Status) AcceptingBids() bool {
	return s == StatusPending || s == StatusOpen
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired
}

// CanTransitionTo reports whether moving from s to next is a legal forward step.
// expired is only reachable from pending/open; nothing leaves a terminal status.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusOpen || next == StatusAssigned || next == StatusExpired
	case StatusOpen:
		return next == StatusAssigned || next == StatusExpired
	case StatusAssigned:
		return next == StatusInProgress
	case StatusInProgress:
		return next == StatusCompleted
	default:
		return false
	}
}

func (s Status) String() string {
	return string(s)
}
