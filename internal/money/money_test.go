package money

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendorpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorpay-backend/pkg/errors"
)

func mustMoney(t *testing.T, value string, currency enums.Currency) Money {
	t.Helper()
	m, err := FromString(value, currency)
	if err != nil {
		t.Fatalf("FromString(%q): %v", value, err)
	}
	return m
}

func TestAddSubSameCurrency(t *testing.T) {
	a := mustMoney(t, "10.50", enums.CurrencyUSD)
	b := mustMoney(t, "4.25", enums.CurrencyUSD)

	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := sum.Amount().StringFixed(2); got != "14.75" {
		t.Fatalf("unexpected sum: %s", got)
	}

	diff, err := a.Sub(b)
	if err != nil {
		t.Fatalf("Sub: %v", err)
	}
	if got := diff.Amount().StringFixed(2); got != "6.25" {
		t.Fatalf("unexpected diff: %s", got)
	}
}

func TestCurrencyMismatch(t *testing.T) {
	usd := mustMoney(t, "1.00", enums.CurrencyUSD)
	eur := mustMoney(t, "1.00", enums.CurrencyEUR)

	if _, err := usd.Add(eur); !pkgerrors.IsCode(err, pkgerrors.CodeCurrencyMismatch) {
		t.Fatalf("expected currency mismatch, got %v", err)
	}
	if _, err := usd.Sub(eur); !pkgerrors.IsCode(err, pkgerrors.CodeCurrencyMismatch) {
		t.Fatalf("expected currency mismatch, got %v", err)
	}
	if _, err := usd.Cmp(eur); !pkgerrors.IsCode(err, pkgerrors.CodeCurrencyMismatch) {
		t.Fatalf("expected currency mismatch, got %v", err)
	}
}

func TestOverflow(t *testing.T) {
	if _, err := FromString("10000000000.00", enums.CurrencyUSD); err == nil {
		t.Fatal("expected overflow past 12 significant digits")
	}
	if _, err := FromString("9999999999.99", enums.CurrencyUSD); err != nil {
		t.Fatalf("expected max representable amount to fit: %v", err)
	}

	big := mustMoney(t, "9999999999.99", enums.CurrencyUSD)
	one := mustMoney(t, "0.01", enums.CurrencyUSD)
	if _, err := big.Add(one); err == nil {
		t.Fatal("expected overflow on addition")
	}
}

func TestSplitPercentExact(t *testing.T) {
	m := mustMoney(t, "100.00", enums.CurrencyUSD)
	platform, vendor, err := m.SplitPercent(decimal.NewFromFloat(10))
	if err != nil {
		t.Fatalf("SplitPercent: %v", err)
	}
	if got := platform.Amount().StringFixed(2); got != "10.00" {
		t.Fatalf("unexpected platform share: %s", got)
	}
	if got := vendor.Amount().StringFixed(2); got != "90.00" {
		t.Fatalf("unexpected vendor share: %s", got)
	}
}

func TestSplitPercentNeverDrifts(t *testing.T) {
	rates := []string{"0", "2.5", "7.75", "10", "12.5", "33.33", "100"}
	amounts := []string{"0.01", "0.05", "1.11", "99.99", "123.45", "1000.07"}

	for _, rate := range rates {
		percent, err := decimal.NewFromString(rate)
		if err != nil {
			t.Fatalf("rate %q: %v", rate, err)
		}
		for _, amount := range amounts {
			m := mustMoney(t, amount, enums.CurrencyUSD)
			platform, vendor, err := m.SplitPercent(percent)
			if err != nil {
				t.Fatalf("SplitPercent(%s, %s): %v", amount, rate, err)
			}
			sum, err := platform.Add(vendor)
			if err != nil {
				t.Fatalf("recombine: %v", err)
			}
			if !sum.Equal(m) {
				t.Fatalf("split of %s at %s%% lost money: %s + %s", amount, rate, platform, vendor)
			}
		}
	}
}

func TestSplitPercentBankersRounding(t *testing.T) {
	// 0.25% of 10.00 is 0.025; banker's rounding lands on the even cent.
	m := mustMoney(t, "10.00", enums.CurrencyUSD)
	platform, _, err := m.SplitPercent(decimal.NewFromFloat(0.25))
	if err != nil {
		t.Fatalf("SplitPercent: %v", err)
	}
	if got := platform.Amount().StringFixed(2); got != "0.02" {
		t.Fatalf("expected banker's rounding to 0.02, got %s", got)
	}
}

func TestSumMixedCurrency(t *testing.T) {
	values := []Money{
		mustMoney(t, "1.00", enums.CurrencyUSD),
		mustMoney(t, "2.00", enums.CurrencyEUR),
	}
	if _, err := Sum(values); !pkgerrors.IsCode(err, pkgerrors.CodeMixedCurrency) {
		t.Fatalf("expected mixed currency error, got %v", err)
	}
}

func TestCmpAndSigns(t *testing.T) {
	a := mustMoney(t, "5.00", enums.CurrencyUSD)
	b := mustMoney(t, "7.00", enums.CurrencyUSD)

	cmp, err := a.Cmp(b)
	if err != nil {
		t.Fatalf("Cmp: %v", err)
	}
	if cmp != -1 {
		t.Fatalf("expected -1, got %d", cmp)
	}

	if !a.Neg().IsNegative() {
		t.Fatal("expected negated amount to be negative")
	}
	if !Zero(enums.CurrencyUSD).IsZero() {
		t.Fatal("expected zero value to be zero")
	}
}

func TestFromCents(t *testing.T) {
	m, err := FromCents(12345, enums.CurrencyUSD)
	if err != nil {
		t.Fatalf("FromCents: %v", err)
	}
	if got := m.Amount().StringFixed(2); got != "123.45" {
		t.Fatalf("unexpected amount: %s", got)
	}
	if m.Cents() != 12345 {
		t.Fatalf("unexpected cents: %d", m.Cents())
	}
}
