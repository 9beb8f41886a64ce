package enums

import "fmt"

// IntentStatus maps to the intent_status enum in Postgres.
type IntentStatus string

const (
	IntentStatusIntent    IntentStatus = "intent"
	IntentStatusLocked    IntentStatus = "locked"
	IntentStatusConverted IntentStatus = "converted"
	IntentStatusCancelled IntentStatus = "cancelled"
)

var validIntentStatuses = []IntentStatus{
	IntentStatusIntent,
	IntentStatusLocked,
	IntentStatusConverted,
	IntentStatusCancelled,
}

// ConvertibleIntentStatuses are the statuses a checkout intent may convert from.
var ConvertibleIntentStatuses = []IntentStatus{IntentStatusIntent, IntentStatusLocked}

// IsValid checks whether the given status matches the canonical enum.
func (s IntentStatus) IsValid() bool {
	for _, candidate := range validIntentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsConvertible reports whether the intent may still become an order.
func (s IntentStatus) IsConvertible() bool {
	return s == IntentStatusIntent || s == IntentStatusLocked
}

// ParseIntentStatus converts raw strings into IntentStatus.
func ParseIntentStatus(value string) (IntentStatus, error) {
	for _, candidate := range validIntentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid intent status %q", value)
}
