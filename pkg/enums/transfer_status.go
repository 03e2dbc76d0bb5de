package enums

import "fmt"

// TransferStatus is the gateway's view of a submitted transfer.
type TransferStatus string

const (
	TransferStatusAccepted TransferStatus = "accepted"
	TransferStatusRejected TransferStatus = "rejected"
	TransferStatusUnknown  TransferStatus = "unknown"
)

var validTransferStatuses = []TransferStatus{
	TransferStatusAccepted,
	TransferStatusRejected,
	TransferStatusUnknown,
}

// String implements fmt.Stringer.
func (t TransferStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransferStatus.
func (t TransferStatus) IsValid() bool {
	for _, candidate := range validTransferStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransferStatus converts raw input into a TransferStatus.
func ParseTransferStatus(value string) (TransferStatus, error) {
	for _, candidate := range validTransferStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transfer status %q", value)
}
