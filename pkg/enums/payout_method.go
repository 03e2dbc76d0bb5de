package enums

import "fmt"

// PayoutMethod describes how a payout is disbursed to the vendor.
type PayoutMethod string

const (
	PayoutMethodBankTransfer    PayoutMethod = "bank_transfer"
	PayoutMethodGatewayTransfer PayoutMethod = "gateway_transfer"
	PayoutMethodWallet          PayoutMethod = "wallet"
)

var validPayoutMethods = []PayoutMethod{
	PayoutMethodBankTransfer,
	PayoutMethodGatewayTransfer,
	PayoutMethodWallet,
}

// String implements fmt.Stringer.
func (p PayoutMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PayoutMethod.
func (p PayoutMethod) IsValid() bool {
	for _, candidate := range validPayoutMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePayoutMethod converts raw input into a PayoutMethod.
func ParsePayoutMethod(value string) (PayoutMethod, error) {
	for _, candidate := range validPayoutMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout method %q", value)
}
