package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendorpay-backend/api/middleware"
	"github.com/angelmondragon/vendorpay-backend/api/responses"
	"github.com/angelmondragon/vendorpay-backend/api/validators"
	"github.com/angelmondragon/vendorpay-backend/internal/payouts"
	"github.com/angelmondragon/vendorpay-backend/pkg/db/models"
	"github.com/angelmondragon/vendorpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorpay-backend/pkg/errors"
	"github.com/angelmondragon/vendorpay-backend/pkg/logger"
	"github.com/angelmondragon/vendorpay-backend/pkg/outbox"
	"github.com/angelmondragon/vendorpay-backend/pkg/pagination"
)

const maxPayoutNotesLen = 500

type requestPayoutBody struct {
	Amount  string   `json:"amount" validate:"required"`
	Method  *string  `json:"method" validate:"omitempty,oneof=bank_transfer gateway_transfer wallet"`
	LineIDs []string `json:"lineIds" validate:"omitempty,max=500,dive,uuid4"`
	Notes   *string  `json:"notes" validate:"omitempty,max=500"`
}

type payoutItemResponse struct {
	LineID     string `json:"lineId"`
	Gross      string `json:"gross"`
	Commission string `json:"commission"`
	Net        string `json:"net"`
}

type payoutResponse struct {
	ID                 string               `json:"id"`
	VendorID           string               `json:"vendorId"`
	Amount             string               `json:"amount"`
	Currency           string               `json:"currency"`
	Status             string               `json:"status"`
	PaymentMethod      string               `json:"paymentMethod"`
	ExternalTransferID *string              `json:"externalTransferId,omitempty"`
	SweepWindowStart   *string              `json:"sweepWindowStart,omitempty"`
	PaidAt             *string              `json:"paidAt,omitempty"`
	Notes              *string              `json:"notes,omitempty"`
	AdminNotes         *string              `json:"adminNotes,omitempty"`
	FailureReason      *string              `json:"failureReason,omitempty"`
	Items              []payoutItemResponse `json:"items,omitempty"`
	CreatedAt          string               `json:"createdAt"`
}

type payoutListResponse struct {
	Payouts    []payoutResponse `json:"payouts"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// VendorRequestPayout creates a payout from the caller's eligible earnings.
func VendorRequestPayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
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

		input, err := requestInputFromBody(r, vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.Request(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPayoutResponse(payout))
	}
}

// VendorListPayouts pages through the caller's payouts, newest first.
func VendorListPayouts(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
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

		params, err := listParamsFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.VendorID = vendorID

		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPayoutListResponse(result))
	}
}

// VendorPayoutDetail returns one payout, refusing cross-vendor reads.
func VendorPayoutDetail(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
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
		payoutID, err := validators.ParseUUIDParam(r, "payoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.Get(r.Context(), payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payout.VendorID != vendorID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found"))
			return
		}
		responses.WriteSuccess(w, newPayoutResponse(payout))
	}
}

func listParamsFromQuery(r *http.Request) (payouts.ListParams, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return payouts.ListParams{}, err
	}
	params := payouts.ListParams{
		Page: pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		},
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := enums.ParsePayoutStatus(raw)
		if err != nil {
			return payouts.ListParams{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
		}
		params.Status = &status
	}
	return params, nil
}

// requestInputFromBody decodes and validates the shared payout-request body
// for both the vendor route and the admin on-behalf route.
func requestInputFromBody(r *http.Request, vendorID uuid.UUID) (payouts.RequestInput, error) {
	var body requestPayoutBody
	if err := validators.DecodeJSONBody(r, &body); err != nil {
		return payouts.RequestInput{}, err
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		return payouts.RequestInput{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid amount").
			WithDetails(map[string]string{"amount": body.Amount})
	}

	var method *enums.PayoutMethod
	if body.Method != nil {
		parsed, err := enums.ParsePayoutMethod(*body.Method)
		if err != nil {
			return payouts.RequestInput{}, err
		}
		method = &parsed
	}

	lineIDs, err := parseLineIDs(body.LineIDs)
	if err != nil {
		return payouts.RequestInput{}, err
	}

	return payouts.RequestInput{
		VendorID: vendorID,
		Amount:   &amount,
		Method:   method,
		LineIDs:  lineIDs,
		Notes:    sanitizeNotes(body.Notes),
		Actor:    actorFromRequest(r),
	}, nil
}

func parseLineIDs(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(raw))
	seen := make(map[uuid.UUID]struct{}, len(raw))
	for _, value := range raw {
		id, err := uuid.Parse(value)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid line id").WithDetails(map[string]string{"lineId": value})
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func sanitizeNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	clean := validators.SanitizeString(*notes, maxPayoutNotesLen)
	if clean == "" {
		return nil
	}
	return &clean
}

func actorFromRequest(r *http.Request) *outbox.ActorRef {
	subject := middleware.SubjectIDFromContext(r.Context())
	if subject == "" {
		return nil
	}
	subjectID, err := uuid.Parse(subject)
	if err != nil {
		return nil
	}
	actor := &outbox.ActorRef{
		SubjectID: subjectID,
		Role:      middleware.RoleFromContext(r.Context()),
	}
	if raw := middleware.VendorIDFromContext(r.Context()); raw != "" {
		if vendorID, err := uuid.Parse(raw); err == nil {
			actor.VendorID = &vendorID
		}
	}
	return actor
}

func newPayoutResponse(payout *models.Payout) payoutResponse {
	resp := payoutResponse{
		ID:                 payout.ID.String(),
		VendorID:           payout.VendorID.String(),
		Amount:             payout.Amount.StringFixed(2),
		Currency:           string(payout.Currency),
		Status:             string(payout.Status),
		PaymentMethod:      string(payout.PaymentMethod),
		ExternalTransferID: payout.ExternalTransferID,
		Notes:              payout.Notes,
		AdminNotes:         payout.AdminNotes,
		FailureReason:      payout.FailureReason,
		CreatedAt:          payout.CreatedAt.UTC().Format(time.RFC3339),
	}
	if payout.SweepWindowStart != nil {
		formatted := payout.SweepWindowStart.UTC().Format(time.RFC3339)
		resp.SweepWindowStart = &formatted
	}
	if payout.PaidAt != nil {
		formatted := payout.PaidAt.UTC().Format(time.RFC3339)
		resp.PaidAt = &formatted
	}
	for _, item := range payout.Items {
		resp.Items = append(resp.Items, payoutItemResponse{
			LineID:     item.LineID.String(),
			Gross:      item.GrossAmount.StringFixed(2),
			Commission: item.CommissionAmount.StringFixed(2),
			Net:        item.NetAmount.StringFixed(2),
		})
	}
	return resp
}

func newPayoutListResponse(result *payouts.ListResult) payoutListResponse {
	resp := payoutListResponse{
		Payouts:    make([]payoutResponse, 0, len(result.Payouts)),
		NextCursor: result.NextCursor,
	}
	for i := range result.Payouts {
		resp.Payouts = append(resp.Payouts, newPayoutResponse(&result.Payouts[i]))
	}
	return resp
}
