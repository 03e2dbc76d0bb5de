package enums

import "fmt"

// LedgerRefKind names the aggregate a ledger entry points at.
type LedgerRefKind string

const (
	LedgerRefKindOrderLine LedgerRefKind = "order_line"
	LedgerRefKindPayout    LedgerRefKind = "payout"
)

var validLedgerRefKinds = []LedgerRefKind{
	LedgerRefKindOrderLine,
	LedgerRefKindPayout,
}

// IsValid reports whether the value is a known LedgerRefKind.
func (k LedgerRefKind) IsValid() bool {
	for _, candidate := range validLedgerRefKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseLedgerRefKind converts raw input into LedgerRefKind.
func ParseLedgerRefKind(value string) (LedgerRefKind, error) {
	for _, candidate := range validLedgerRefKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger ref kind %q", value)
}
