package enums

import "fmt"

// BatchStatus maps to the batch_status enum in Postgres.
type BatchStatus string

const (
	// BatchStatusActive is an open batch with no paid orders attached yet.
	BatchStatusActive BatchStatus = "active"
	// BatchStatusPending is an open batch holding at least one paid order.
	BatchStatusPending BatchStatus = "pending"
	BatchStatusPickedUp  BatchStatus = "picked_up"
	BatchStatusCancelled BatchStatus = "cancelled"
)

var validBatchStatuses = []BatchStatus{
	BatchStatusActive,
	BatchStatusPending,
	BatchStatusPickedUp,
	BatchStatusCancelled,
}

// OpenBatchStatuses are the statuses new orders may still attach to.
var OpenBatchStatuses = []BatchStatus{BatchStatusActive, BatchStatusPending}

// IsValid checks whether the given status matches the canonical enum.
func (s BatchStatus) IsValid() bool {
	for _, candidate := range validBatchStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsOpen reports whether the batch can still receive orders.
func (s BatchStatus) IsOpen() bool {
	return s == BatchStatusActive || s == BatchStatusPending
}

// ParseBatchStatus converts raw strings into BatchStatus.
func ParseBatchStatus(value string) (BatchStatus, error) {
	for _, candidate := range validBatchStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid batch status %q", value)
}
