package earnings

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendorpay-backend/internal/money"
	"github.com/angelmondragon/vendorpay-backend/pkg/config"
	"github.com/angelmondragon/vendorpay-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/vendorpay-backend/pkg/errors"
)

// Breakdown is the commission split for one order line. Commission plus net
// always reconstructs gross exactly.
type Breakdown struct {
	LineID     uuid.UUID
	Gross      money.Money
	Commission money.Money
	Net        money.Money
}

// Totals aggregates breakdowns over a set of lines.
type Totals struct {
	Gross      money.Money
	Commission money.Money
	Net        money.Money
}

// Calculator computes vendor earnings from settled order lines.
type Calculator struct {
	defaultPercent decimal.Decimal
}

// NewCalculator builds a calculator using the platform commission default.
func NewCalculator(cfg config.PlatformConfig) (*Calculator, error) {
	pct := cfg.CommissionRate()
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "platform commission percent out of range").WithDetails(map[string]any{
			"percent": pct.String(),
		})
	}
	return &Calculator{defaultPercent: pct}, nil
}

// EffectivePercent resolves the commission rate for a vendor, preferring the
// per-vendor override when one is set.
func (c *Calculator) EffectivePercent(vendor *models.Vendor) (decimal.Decimal, error) {
	if vendor == nil || vendor.CommissionPercent == nil {
		return c.defaultPercent, nil
	}
	pct, err := decimal.NewFromString(*vendor.CommissionPercent)
	if err != nil {
		return decimal.Decimal{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vendor commission percent")
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Decimal{}, pkgerrors.New(pkgerrors.CodeValidation, "vendor commission percent out of range").WithDetails(map[string]any{
			"vendor_id": vendor.ID.String(),
			"percent":   pct.String(),
		})
	}
	return pct, nil
}

// SplitLine computes the commission split for one order line.
func (c *Calculator) SplitLine(line models.OrderLine, vendor *models.Vendor) (Breakdown, error) {
	gross, err := money.New(line.GrossAmount, line.Currency)
	if err != nil {
		return Breakdown{}, err
	}
	if gross.IsNegative() {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "order line gross cannot be negative").WithDetails(map[string]any{
			"line_id": line.ID.String(),
		})
	}

	pct, err := c.EffectivePercent(vendor)
	if err != nil {
		return Breakdown{}, err
	}

	commission, net, err := gross.SplitPercent(pct)
	if err != nil {
		return Breakdown{}, err
	}
	return Breakdown{
		LineID:     line.ID,
		Gross:      gross,
		Commission: commission,
		Net:        net,
	}, nil
}

// SplitLines computes per-line breakdowns plus totals. All lines must share a
// single currency.
func (c *Calculator) SplitLines(lines []models.OrderLine, vendor *models.Vendor) (Totals, []Breakdown, error) {
	if len(lines) == 0 {
		return Totals{}, nil, pkgerrors.New(pkgerrors.CodeValidation, "no order lines provided")
	}

	currency := lines[0].Currency
	breakdowns := make([]Breakdown, 0, len(lines))
	totals := Totals{
		Gross:      money.Zero(currency),
		Commission: money.Zero(currency),
		Net:        money.Zero(currency),
	}

	for _, line := range lines {
		if line.Currency != currency {
			return Totals{}, nil, pkgerrors.New(pkgerrors.CodeMixedCurrency, "order lines span multiple currencies").WithDetails(map[string]any{
				"expected": string(currency),
				"found":    string(line.Currency),
			})
		}
		b, err := c.SplitLine(line, vendor)
		if err != nil {
			return Totals{}, nil, err
		}
		breakdowns = append(breakdowns, b)

		if totals.Gross, err = totals.Gross.Add(b.Gross); err != nil {
			return Totals{}, nil, err
		}
		if totals.Commission, err = totals.Commission.Add(b.Commission); err != nil {
			return Totals{}, nil, err
		}
		if totals.Net, err = totals.Net.Add(b.Net); err != nil {
			return Totals{}, nil, err
		}
	}

	return totals, breakdowns, nil
}
