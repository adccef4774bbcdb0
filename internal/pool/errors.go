package pool

import (
	"errors"
	"fmt"
)

// ErrCapacityExhausted means no available instance has a free slot left.
var ErrCapacityExhausted = errors.New("instance pool capacity exhausted")

// ErrAlreadyAssigned is returned by stores when an acquire attempt races a
// concurrent allocation by the same user. Callers treat it as informational
// and return the existing assignment.
var ErrAlreadyAssigned = errors.New("user already holds an instance slot")

// Release block reasons
const (
	ReasonActiveCampaigns = "active_campaigns"
	ReasonPendingMessages = "pending_messages"
)

// ReleaseBlockedError means the user's instance cannot be released while
// outbound work is still in flight.
type ReleaseBlockedError struct {
	Reason string
}

func (e *ReleaseBlockedError) Error() string {
	return fmt.Sprintf("release blocked: %s", e.Reason)
}

// IsReleaseBlocked reports whether err is a ReleaseBlockedError and returns
// its reason.
func IsReleaseBlocked(err error) (string, bool) {
	var blocked *ReleaseBlockedError
	if errors.As(err, &blocked) {
		return blocked.Reason, true
	}
	return "", false
}
