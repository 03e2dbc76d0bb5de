package money

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendorpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorpay-backend/pkg/errors"
)

// Scale is the number of fractional digits every amount carries.
const Scale = 2

// maxSignificantDigits bounds amounts to 12 significant digits at Scale,
// i.e. ten integer digits and two fractional ones.
const maxSignificantDigits = 12

var maxAbs = decimal.New(1, maxSignificantDigits-Scale) // 10^10

var hundred = decimal.NewFromInt(100)

// Money is an exact fixed-scale amount tagged with its currency.
// The zero value is 0.00 of an empty currency and is only useful as a
// placeholder; construct real values through New, FromString or FromCents.
type Money struct {
	amount   decimal.Decimal
	currency enums.Currency
}

// New builds a Money from an arbitrary decimal, banker's-rounding it to Scale.
func New(amount decimal.Decimal, currency enums.Currency) (Money, error) {
	if !currency.IsValid() {
		return Money{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid currency %q", currency))
	}
	rounded := amount.RoundBank(Scale)
	if rounded.Abs().GreaterThanOrEqual(maxAbs) {
		return Money{}, pkgerrors.New(pkgerrors.CodeValidation, "amount overflow").
			WithDetails(map[string]any{"max_significant_digits": maxSignificantDigits})
	}
	return Money{amount: rounded, currency: currency}, nil
}

// FromString parses a decimal string such as "100.00".
func FromString(value string, currency enums.Currency) (Money, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return Money{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount")
	}
	return New(amount, currency)
}

// FromCents builds a Money from an integer count of minor units.
func FromCents(cents int64, currency enums.Currency) (Money, error) {
	return New(decimal.New(cents, -Scale), currency)
}

// Zero returns 0.00 in the given currency.
func Zero(currency enums.Currency) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

// Amount exposes the underlying decimal at Scale.
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency tag.
func (m Money) Currency() enums.Currency {
	return m.currency
}

// Cents returns the amount in minor units.
func (m Money) Cents() int64 {
	return m.amount.Shift(Scale).IntPart()
}

// String renders the amount with its currency, e.g. "90.00 USD".
func (m Money) String() string {
	return m.amount.StringFixed(Scale)
}

func (m Money) sameCurrency(other Money) error {
	if m.currency != other.currency {
		return pkgerrors.New(pkgerrors.CodeCurrencyMismatch,
			fmt.Sprintf("cannot combine %s with %s", m.currency, other.currency))
	}
	return nil
}

// Add returns m + other. Operands must share a currency.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return New(m.amount.Add(other.amount), m.currency)
}

// Sub returns m - other. Operands must share a currency.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return New(m.amount.Sub(other.amount), m.currency)
}

// Cmp compares two amounts of the same currency: -1 if m < other, 0 if equal,
// +1 if m > other.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.sameCurrency(other); err != nil {
		return 0, err
	}
	return m.amount.Cmp(other.amount), nil
}

// Equal reports exact equality of amount and currency.
func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// IsPositive reports whether the amount is above zero.
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// Neg returns the amount with its sign flipped.
func (m Money) Neg() Money {
	return Money{amount: m.amount.Neg(), currency: m.currency}
}

// SplitPercent divides the amount into a platform share of percent% and the
// vendor remainder. The platform share is banker's-rounded to Scale and the
// vendor share is the exact difference, so platform + vendor always equals m.
func (m Money) SplitPercent(percent decimal.Decimal) (platform Money, vendor Money, err error) {
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return Money{}, Money{}, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("percent %s out of range", percent))
	}
	platformAmount := m.amount.Mul(percent).Div(hundred).RoundBank(Scale)
	platform = Money{amount: platformAmount, currency: m.currency}
	vendor = Money{amount: m.amount.Sub(platformAmount), currency: m.currency}
	return platform, vendor, nil
}

// Sum folds a non-empty slice of amounts sharing one currency.
func Sum(values []Money) (Money, error) {
	if len(values) == 0 {
		return Money{}, pkgerrors.New(pkgerrors.CodeValidation, "no amounts to sum")
	}
	total := values[0]
	var err error
	for _, v := range values[1:] {
		if total.currency != v.currency {
			return Money{}, pkgerrors.New(pkgerrors.CodeMixedCurrency,
				fmt.Sprintf("cannot sum %s with %s", total.currency, v.currency))
		}
		total, err = total.Add(v)
		if err != nil {
			return Money{}, err
		}
	}
	return total, nil
}
