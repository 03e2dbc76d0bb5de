package enums

import "fmt"

// LedgerEntryKind maps to the ledger_entry_kind enum in Postgres.
type LedgerEntryKind string

const (
	// LedgerEntryKindEarn credits vendor net earnings when a line settles.
	LedgerEntryKindEarn LedgerEntryKind = "earn"
	// LedgerEntryKindEarnReversal backs out an accrued earn when its line is disputed.
	LedgerEntryKindEarnReversal LedgerEntryKind = "earn_reversal"
	// LedgerEntryKindReserve moves available funds into an in-flight payout.
	LedgerEntryKindReserve LedgerEntryKind = "reserve"
	// LedgerEntryKindRelease returns reserved funds after a payout fails.
	LedgerEntryKindRelease LedgerEntryKind = "release"
	// LedgerEntryKindPayoutCommit finalizes in-flight funds as paid out.
	LedgerEntryKindPayoutCommit LedgerEntryKind = "payout_commit"
	// LedgerEntryKindPayoutRelease compensates a paid payout after a gateway reversal.
	LedgerEntryKindPayoutRelease LedgerEntryKind = "payout_release"
)

var validLedgerEntryKinds = []LedgerEntryKind{
	LedgerEntryKindEarn,
	LedgerEntryKindEarnReversal,
	LedgerEntryKindReserve,
	LedgerEntryKindRelease,
	LedgerEntryKindPayoutCommit,
	LedgerEntryKindPayoutRelease,
}

// IsValid reports whether the value matches the canonical ledger entry enum.
func (k LedgerEntryKind) IsValid() bool {
	for _, candidate := range validLedgerEntryKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseLedgerEntryKind converts raw input into LedgerEntryKind.
func ParseLedgerEntryKind(value string) (LedgerEntryKind, error) {
	for _, candidate := range validLedgerEntryKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry kind %q", value)
}
