package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vendorpay-backend/api/middleware"
	"github.com/angelmondragon/vendorpay-backend/api/responses"
	"github.com/angelmondragon/vendorpay-backend/internal/payouts"
	pkgerrors "github.com/angelmondragon/vendorpay-backend/pkg/errors"
	"github.com/angelmondragon/vendorpay-backend/pkg/logger"
)

type earningsResponse struct {
	VendorID           string `json:"vendorId"`
	Currency           string `json:"currency"`
	Available          string `json:"available"`
	Pending            string `json:"pending"`
	Reserved           string `json:"reserved"`
	LifetimeEarnings   string `json:"lifetimeEarnings"`
	LifetimePaid       string `json:"lifetimePaid"`
	ThisPeriodEarnings string `json:"thisPeriodEarnings"`
	PendingLinesCount  int64  `json:"pendingLinesCount"`
	PendingLinesValue  string `json:"pendingLinesValue"`
	AsOf               string `json:"asOf"`
}

// VendorEarnings returns the caller's current balance view.
func VendorEarnings(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		vendorID, err := vendorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Earnings(r.Context(), vendorID, time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newEarningsResponse(view))
	}
}

func newEarningsResponse(view *payouts.EarningsView) earningsResponse {
	balance := view.Balance
	return earningsResponse{
		VendorID:           balance.VendorID.String(),
		Currency:           string(balance.Currency),
		Available:          balance.Available.String(),
		Pending:            balance.Pending.String(),
		Reserved:           balance.Reserved.String(),
		LifetimeEarnings:   balance.LifetimeEarnings.String(),
		LifetimePaid:       balance.LifetimePaid.String(),
		ThisPeriodEarnings: view.ThisPeriodEarnings.String(),
		PendingLinesCount:  view.PendingLinesCount,
		PendingLinesValue:  view.PendingLinesValue.String(),
		AsOf:               balance.AsOf.UTC().Format(time.RFC3339),
	}
}

func vendorIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.VendorIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing")
	}
	vendorID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "invalid vendor context")
	}
	return vendorID, nil
}
