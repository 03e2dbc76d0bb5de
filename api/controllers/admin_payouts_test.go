package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendorpay-backend/api/middleware"
	"github.com/angelmondragon/vendorpay-backend/internal/payouts"
	"github.com/angelmondragon/vendorpay-backend/pkg/db/models"
	"github.com/angelmondragon/vendorpay-backend/pkg/enums"
)

func adminRequest(t *testing.T, method, target, body string) *http.Request {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := middleware.WithSubjectID(req.Context(), uuid.NewString())
	ctx = middleware.WithRole(ctx, string(enums.ActorRoleAdmin))
	return req.WithContext(ctx)
}

func TestAdminRequestPayoutOnBehalfOfVendor(t *testing.T) {
	vendorID := uuid.New()
	var captured payouts.RequestInput
	svc := &testPayoutService{
		requestFn: func(_ context.Context, input payouts.RequestInput) (*models.Payout, error) {
			captured = input
			return samplePayout(vendorID, enums.PayoutStatusPending), nil
		},
	}

	req := adminRequest(t, http.MethodPost, "/api/v1/admin/vendors/"+vendorID.String()+"/payouts", `{"amount":"75.00"}`)
	req = withURLParam(req, "vendorId", vendorID.String())
	rec := httptest.NewRecorder()

	AdminRequestPayout(svc, testLogger())(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.VendorID != vendorID {
		t.Fatalf("expected vendor %s from path, got %s", vendorID, captured.VendorID)
	}
	if captured.Amount == nil || !captured.Amount.Equal(decimal.RequireFromString("75.00")) {
		t.Fatalf("expected amount to be forwarded, got %v", captured.Amount)
	}
	if captured.Actor == nil || captured.Actor.Role != string(enums.ActorRoleAdmin) {
		t.Fatalf("expected admin actor on input")
	}
}

func TestAdminRequestPayoutRequiresAmount(t *testing.T) {
	vendorID := uuid.New()
	svc := &testPayoutService{
		requestFn: func(context.Context, payouts.RequestInput) (*models.Payout, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}

	req := adminRequest(t, http.MethodPost, "/api/v1/admin/vendors/"+vendorID.String()+"/payouts", `{"notes":"manual run"}`)
	req = withURLParam(req, "vendorId", vendorID.String())
	rec := httptest.NewRecorder()

	AdminRequestPayout(svc, testLogger())(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAdminApprovePayoutForwardsNotes(t *testing.T) {
	payoutID := uuid.New()
	var captured payouts.ApproveInput
	svc := &testPayoutService{
		approveFn: func(_ context.Context, gotID uuid.UUID, input payouts.ApproveInput) (*models.Payout, error) {
			if gotID != payoutID {
				t.Fatalf("unexpected payout id %s", gotID)
			}
			captured = input
			return samplePayout(uuid.New(), enums.PayoutStatusProcessing), nil
		},
	}

	req := adminRequest(t, http.MethodPost, "/api/v1/admin/payouts/"+payoutID.String()+"/approve", `{"adminNotes":"ok to pay"}`)
	req = withURLParam(req, "payoutId", payoutID.String())
	rec := httptest.NewRecorder()

	AdminApprovePayout(svc, testLogger())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.AdminNotes == nil || *captured.AdminNotes != "ok to pay" {
		t.Fatalf("expected admin notes to be forwarded")
	}
	if captured.Actor == nil || captured.Actor.Role != string(enums.ActorRoleAdmin) {
		t.Fatalf("expected admin actor on input")
	}
}

func TestAdminApprovePayoutForwardsManualTransfer(t *testing.T) {
	payoutID := uuid.New()
	var captured payouts.ApproveInput
	svc := &testPayoutService{
		approveFn: func(_ context.Context, _ uuid.UUID, input payouts.ApproveInput) (*models.Payout, error) {
			captured = input
			return samplePayout(uuid.New(), enums.PayoutStatusProcessing), nil
		},
	}

	body := `{"externalTransferId":"wire-7","externalReference":"aug-batch"}`
	req := adminRequest(t, http.MethodPost, "/api/v1/admin/payouts/"+payoutID.String()+"/approve", body)
	req = withURLParam(req, "payoutId", payoutID.String())
	rec := httptest.NewRecorder()

	AdminApprovePayout(svc, testLogger())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.ExternalTransferID == nil || *captured.ExternalTransferID != "wire-7" {
		t.Fatalf("expected manual transfer id to be forwarded")
	}
	if captured.ExternalReference == nil || *captured.ExternalReference != "aug-batch" {
		t.Fatalf("expected external reference to be forwarded")
	}
}

func TestAdminRejectPayoutRequiresReason(t *testing.T) {
	payoutID := uuid.New()
	svc := &testPayoutService{
		rejectFn: func(context.Context, uuid.UUID, payouts.RejectInput) (*models.Payout, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}

	req := adminRequest(t, http.MethodPost, "/api/v1/admin/payouts/"+payoutID.String()+"/reject", `{}`)
	req = withURLParam(req, "payoutId", payoutID.String())
	rec := httptest.NewRecorder()

	AdminRejectPayout(svc, testLogger())(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAdminRejectPayoutFails(t *testing.T) {
	payoutID := uuid.New()
	var captured payouts.RejectInput
	svc := &testPayoutService{
		rejectFn: func(_ context.Context, _ uuid.UUID, input payouts.RejectInput) (*models.Payout, error) {
			captured = input
			return samplePayout(uuid.New(), enums.PayoutStatusFailed), nil
		},
	}

	req := adminRequest(t, http.MethodPost, "/api/v1/admin/payouts/"+payoutID.String()+"/reject", `{"reason":"bank details stale"}`)
	req = withURLParam(req, "payoutId", payoutID.String())
	rec := httptest.NewRecorder()

	AdminRejectPayout(svc, testLogger())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.Reason != "bank details stale" {
		t.Fatalf("expected reason to be forwarded, got %q", captured.Reason)
	}
}

func TestAdminListPayoutsParsesVendorFilter(t *testing.T) {
	vendorID := uuid.New()
	var captured payouts.ListParams
	svc := &testPayoutService{
		listFn: func(_ context.Context, params payouts.ListParams) (*payouts.ListResult, error) {
			captured = params
			return &payouts.ListResult{}, nil
		},
	}

	req := adminRequest(t, http.MethodGet, "/api/v1/admin/payouts?vendorId="+vendorID.String()+"&status=pending", "")
	rec := httptest.NewRecorder()

	AdminListPayouts(svc, testLogger())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if captured.VendorID != vendorID {
		t.Fatalf("expected vendor filter to parse")
	}
	if captured.Status == nil || *captured.Status != enums.PayoutStatusPending {
		t.Fatalf("expected status filter to parse")
	}
}

func TestAdminListPayoutsRejectsBadVendorFilter(t *testing.T) {
	req := adminRequest(t, http.MethodGet, "/api/v1/admin/payouts?vendorId=nope", "")
	rec := httptest.NewRecorder()

	AdminListPayouts(&testPayoutService{}, testLogger())(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
