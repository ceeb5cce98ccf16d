package domain

import (
	"errors"
)

// Analysis job statuses. Transitions are strictly forward:
// pending -> running -> complete | error.
const (
	StatusPending  = "pending"
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusError    = "error"
)

var (
	ErrAnalysisNotFound = errors.New("analysis not found")
)

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status string) bool {
	return status == StatusComplete || status == StatusError
}
