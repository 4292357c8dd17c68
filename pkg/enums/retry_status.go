package enums

import "fmt"

// RetryStatus tracks the lifecycle of a single renewal payment retry.
type RetryStatus string

const (
	RetryStatusPending    RetryStatus = "pending"
	RetryStatusProcessing RetryStatus = "processing"
	RetryStatusComplete   RetryStatus = "complete"
	RetryStatusFailed     RetryStatus = "failed"
	RetryStatusCancelled  RetryStatus = "cancelled"
)

var validRetryStatuses = []RetryStatus{
	RetryStatusPending,
	RetryStatusProcessing,
	RetryStatusComplete,
	RetryStatusFailed,
	RetryStatusCancelled,
}

var retryTransitions = map[RetryStatus][]RetryStatus{
	RetryStatusPending:    {RetryStatusProcessing, RetryStatusCancelled},
	RetryStatusProcessing: {RetryStatusComplete, RetryStatusFailed, RetryStatusCancelled},
}

// String implements fmt.Stringer.
func (r RetryStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is known.
func (r RetryStatus) IsValid() bool {
	for _, candidate := range validRetryStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from this status.
func (r RetryStatus) IsTerminal() bool {
	switch r {
	case RetryStatusComplete, RetryStatusFailed, RetryStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the move from r to next is a legal
// state-machine edge.
func (r RetryStatus) CanTransitionTo(next RetryStatus) bool {
	for _, candidate := range retryTransitions[r] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseRetryStatus converts raw input into a RetryStatus.
func ParseRetryStatus(value string) (RetryStatus, error) {
	for _, candidate := range validRetryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid retry status %q", value)
}
