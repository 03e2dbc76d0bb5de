package payouts

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendorpay-backend/internal/earnings"
	"github.com/angelmondragon/vendorpay-backend/internal/gateway"
	"github.com/angelmondragon/vendorpay-backend/internal/ledger"
	"github.com/angelmondragon/vendorpay-backend/internal/settlement"
	"github.com/angelmondragon/vendorpay-backend/internal/vendors"
	"github.com/angelmondragon/vendorpay-backend/pkg/config"
	"github.com/angelmondragon/vendorpay-backend/pkg/db/models"
	"github.com/angelmondragon/vendorpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorpay-backend/pkg/errors"
	"github.com/angelmondragon/vendorpay-backend/pkg/outbox"
	"github.com/angelmondragon/vendorpay-backend/pkg/pagination"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fakeGateway struct {
	result   gateway.TransferResult
	err      error
	requests []gateway.TransferRequest
	view     gateway.TransferView
	viewErr  error
	verified []string
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) CreateTransfer(_ context.Context, req gateway.TransferRequest) (gateway.TransferResult, error) {
	g.requests = append(g.requests, req)
	return g.result, g.err
}

func (g *fakeGateway) VerifyTransfer(_ context.Context, transferID string) (gateway.TransferView, error) {
	g.verified = append(g.verified, transferID)
	return g.view, g.viewErr
}

func (g *fakeGateway) VerifyWebhook(payload []byte, _ string) (*gateway.WebhookEvent, error) {
	var event gateway.WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

type fakeLocks struct {
	held map[string]bool
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{held: map[string]bool{}}
}

func (l *fakeLocks) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLocks) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(l.held, key)
	}
	return nil
}

func (l *fakeLocks) LockKey(name string) string { return "vp:lock:" + name }

func setupPayoutTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{`
CREATE TABLE IF NOT EXISTS vendors (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  currency TEXT NOT NULL,
  commission_percent TEXT,
  payout_method TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS order_lines (
  id TEXT PRIMARY KEY,
  vendor_id TEXT NOT NULL,
  order_id TEXT NOT NULL,
  gross_amount NUMERIC NOT NULL,
  currency TEXT NOT NULL,
  settlement_state TEXT NOT NULL,
  settled_at DATETIME,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS vendor_ledger (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  vendor_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  currency TEXT NOT NULL,
  ref_kind TEXT NOT NULL,
  ref_id TEXT NOT NULL,
  created_at DATETIME
);`, `
CREATE UNIQUE INDEX IF NOT EXISTS ux_vendor_ledger_earn_line
  ON vendor_ledger (ref_id) WHERE kind = 'earn' AND ref_kind = 'order_line';`, `
CREATE TABLE IF NOT EXISTS vendor_balance_checkpoints (
  vendor_id TEXT PRIMARY KEY,
  lifetime_earnings NUMERIC NOT NULL,
  lifetime_paid NUMERIC NOT NULL,
  reserved NUMERIC NOT NULL,
  up_to_entry_id INTEGER NOT NULL,
  as_of DATETIME NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS payouts (
  id TEXT PRIMARY KEY,
  vendor_id TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL,
  payment_method TEXT NOT NULL,
  external_transfer_id TEXT,
  external_reference TEXT,
  scheduled_at DATETIME,
  sweep_window_start DATETIME,
  paid_at DATETIME,
  notes TEXT,
  admin_notes TEXT,
  failure_reason TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE UNIQUE INDEX IF NOT EXISTS ux_payouts_vendor_sweep_window
  ON payouts (vendor_id, sweep_window_start)
  WHERE sweep_window_start IS NOT NULL AND status <> 'failed';`, `
CREATE TABLE IF NOT EXISTS payout_items (
  id TEXT PRIMARY KEY,
  payout_id TEXT NOT NULL,
  line_id TEXT NOT NULL,
  gross_amount NUMERIC NOT NULL,
  commission_amount NUMERIC NOT NULL,
  net_amount NUMERIC NOT NULL,
  released_at DATETIME,
  created_at DATETIME
);`, `
CREATE UNIQUE INDEX IF NOT EXISTS ux_payout_items_line ON payout_items (line_id) WHERE released_at IS NULL;`, `
CREATE TABLE IF NOT EXISTS gateway_events (
  id TEXT PRIMARY KEY,
  provider TEXT NOT NULL,
  event_id TEXT NOT NULL,
  transfer_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  payload TEXT,
  created_at DATETIME
);`, `
CREATE UNIQUE INDEX IF NOT EXISTS ux_gateway_events_provider_event
  ON gateway_events (provider, event_id);`, `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`}

	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type payoutFixture struct {
	db      *gorm.DB
	svc     Service
	gateway *fakeGateway
	locks   *fakeLocks
}

func newPayoutFixture(t *testing.T) *payoutFixture {
	t.Helper()

	db := setupPayoutTestDB(t)
	gw := &fakeGateway{result: gateway.TransferResult{Status: enums.TransferStatusAccepted, TransferID: "tr_1"}}
	locks := newFakeLocks()

	cfg := config.PlatformConfig{
		CommissionPercent: "10.0",
		MinPayout:         "50.00",
		DefaultCurrency:   "USD",
		SweepInterval:     24 * time.Hour,
		DisputeWindow:     7 * 24 * time.Hour,
		ReconcileAfter:    30 * time.Minute,
	}

	calc, err := earnings.NewCalculator(cfg)
	require.NoError(t, err)

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:          ledger.NewRepository(db),
		DisputeWindow: cfg.DisputeWindow,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Config:     cfg,
		DB:         gormTxRunner{db: db},
		Repo:       NewRepository(db),
		Settlement: settlement.NewRepository(db),
		Vendors:    vendors.NewRepository(db),
		Ledger:     ledgerSvc,
		Calculator: calc,
		Gateway:    gw,
		Outbox:     outbox.NewService(outbox.NewRepository(db), nil),
		Locks:      locks,
	})
	require.NoError(t, err)

	return &payoutFixture{db: db, svc: svc, gateway: gw, locks: locks}
}

func (f *payoutFixture) createVendor(t *testing.T) uuid.UUID {
	t.Helper()
	vendor := models.Vendor{
		ID:           uuid.New(),
		Name:         "Test Vendor",
		Currency:     enums.CurrencyUSD,
		PayoutMethod: enums.PayoutMethodBankTransfer,
	}
	require.NoError(t, f.db.Create(&vendor).Error)
	return vendor.ID
}

// createEarnedLine inserts a settled line outside the dispute window together
// with its earn entry, so the funds count as available.
func (f *payoutFixture) createEarnedLine(t *testing.T, vendorID uuid.UUID, gross string, settledAt time.Time) uuid.UUID {
	t.Helper()
	grossAmount := decimal.RequireFromString(gross)
	line := models.OrderLine{
		ID:              uuid.New(),
		VendorID:        vendorID,
		OrderID:         uuid.New(),
		GrossAmount:     grossAmount,
		Currency:        enums.CurrencyUSD,
		SettlementState: enums.SettlementStateSettled,
		SettledAt:       &settledAt,
	}
	require.NoError(t, f.db.Create(&line).Error)

	net := grossAmount.Sub(grossAmount.Mul(decimal.RequireFromString("0.10"))).Round(2)
	entry := models.LedgerEntry{
		VendorID: vendorID,
		Kind:     enums.LedgerEntryKindEarn,
		Amount:   net,
		Currency: enums.CurrencyUSD,
		RefKind:  enums.LedgerRefKindOrderLine,
		RefID:    line.ID,
	}
	require.NoError(t, f.db.Create(&entry).Error)
	return line.ID
}

func (f *payoutFixture) ledgerEntries(t *testing.T, vendorID uuid.UUID) []models.LedgerEntry {
	t.Helper()
	var entries []models.LedgerEntry
	require.NoError(t, f.db.Where("vendor_id = ?", vendorID).Order("id").Find(&entries).Error)
	return entries
}

func (f *payoutFixture) outboxEvents(t *testing.T) []models.OutboxEvent {
	t.Helper()
	var events []models.OutboxEvent
	require.NoError(t, f.db.Order("created_at").Find(&events).Error)
	return events
}

func clearedAt() time.Time {
	return time.Now().UTC().Add(-10 * 24 * time.Hour)
}

func TestRequestReservesAndAllocates(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)
	lineA := f.createEarnedLine(t, vendorID, "100.00", clearedAt())
	lineB := f.createEarnedLine(t, vendorID, "60.00", clearedAt())

	payout, err := f.svc.Request(context.Background(), RequestInput{VendorID: vendorID})
	require.NoError(t, err)

	assert.Equal(t, enums.PayoutStatusPending, payout.Status)
	assert.Equal(t, "144", payout.Amount.String())
	require.Len(t, payout.Items, 2)

	lines := map[uuid.UUID]bool{}
	for _, item := range payout.Items {
		lines[item.LineID] = true
	}
	assert.True(t, lines[lineA])
	assert.True(t, lines[lineB])

	entries := f.ledgerEntries(t, vendorID)
	require.Len(t, entries, 3)
	reserve := entries[2]
	assert.Equal(t, enums.LedgerEntryKindReserve, reserve.Kind)
	assert.Equal(t, "-144", reserve.Amount.String())
	assert.Equal(t, payout.ID, reserve.RefID)

	events := f.outboxEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventPayoutRequested, events[0].EventType)
}

func amountOf(value string) *decimal.Decimal {
	amount := decimal.RequireFromString(value)
	return &amount
}

func TestRequestAmountAllocatesOldestFirst(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)
	lineA := f.createEarnedLine(t, vendorID, "100.00", clearedAt().Add(-3*time.Hour))
	f.createEarnedLine(t, vendorID, "60.00", clearedAt().Add(-2*time.Hour))
	lineC := f.createEarnedLine(t, vendorID, "40.00", clearedAt().Add(-time.Hour))

	// Net values oldest first are 90, 54, and 36. The middle line does not
	// fit the remainder of 126, so it is skipped and the last one taken.
	payout, err := f.svc.Request(context.Background(), RequestInput{
		VendorID: vendorID,
		Amount:   amountOf("126.00"),
	})
	require.NoError(t, err)

	assert.Equal(t, "126", payout.Amount.String())
	require.Len(t, payout.Items, 2)
	assert.Equal(t, lineA, payout.Items[0].LineID)
	assert.Equal(t, lineC, payout.Items[1].LineID)

	entries := f.ledgerEntries(t, vendorID)
	reserve := entries[len(entries)-1]
	assert.Equal(t, enums.LedgerEntryKindReserve, reserve.Kind)
	assert.Equal(t, "-126", reserve.Amount.String())

	// The skipped line stays eligible for a later request.
	second, err := f.svc.Request(context.Background(), RequestInput{
		VendorID: vendorID,
		Amount:   amountOf("54.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, "54", second.Amount.String())
}

func TestRequestAmountOverridesPayoutMethod(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)
	f.createEarnedLine(t, vendorID, "100.00", clearedAt())

	method := enums.PayoutMethodWallet
	payout, err := f.svc.Request(context.Background(), RequestInput{
		VendorID: vendorID,
		Amount:   amountOf("90.00"),
		Method:   &method,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutMethodWallet, payout.PaymentMethod)
}

func TestRequestAmountBelowMinimumBeforeBalance(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)
	f.createEarnedLine(t, vendorID, "40.00", clearedAt())

	// Available is only 36, but the request of 45 fails the minimum first.
	_, err := f.svc.Request(context.Background(), RequestInput{
		VendorID: vendorID,
		Amount:   amountOf("45.00"),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeBelowMinimum))
}

func TestRequestAmountAboveAvailable(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)
	f.createEarnedLine(t, vendorID, "100.00", clearedAt())

	_, err := f.svc.Request(context.Background(), RequestInput{
		VendorID: vendorID,
		Amount:   amountOf("120.00"),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientAvailable))
}

func TestRequestAmountNoExactCombination(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)
	f.createEarnedLine(t, vendorID, "100.00", clearedAt())

	// 75 clears the minimum and the 90 available, but no subset of line
	// nets composes it exactly.
	_, err := f.svc.Request(context.Background(), RequestInput{
		VendorID: vendorID,
		Amount:   amountOf("75.00"),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLinesUnavailable))
}

func TestRequestAmountMustMatchSelectedLines(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)
	lineID := f.createEarnedLine(t, vendorID, "100.00", clearedAt())

	_, err := f.svc.Request(context.Background(), RequestInput{
		VendorID: vendorID,
		Amount:   amountOf("80.00"),
		LineIDs:  []uuid.UUID{lineID},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRequestBelowMinimum(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)
	f.createEarnedLine(t, vendorID, "40.00", clearedAt())

	_, err := f.svc.Request(context.Background(), RequestInput{VendorID: vendorID})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeBelowMinimum))
}

func TestRequestLinesUnavailable(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)
	lineID := f.createEarnedLine(t, vendorID, "100.00", clearedAt())

	_, err := f.svc.Request(context.Background(), RequestInput{
		VendorID: vendorID,
		LineIDs:  []uuid.UUID{lineID, uuid.New()},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLinesUnavailable))
}

func TestRequestAlreadyAllocatedLines(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)
	f.createEarnedLine(t, vendorID, "100.00", clearedAt())

	_, err := f.svc.Request(context.Background(), RequestInput{VendorID: vendorID})
	require.NoError(t, err)

	_, err = f.svc.Request(context.Background(), RequestInput{VendorID: vendorID})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLinesUnavailable))
}

func TestRequestConflictsWhileVendorLocked(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)
	f.createEarnedLine(t, vendorID, "100.00", clearedAt())

	key := f.locks.LockKey("payout:vendor:" + vendorID.String())
	held, err := f.locks.SetNX(context.Background(), key, "x", time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	_, err = f.svc.Request(context.Background(), RequestInput{VendorID: vendorID})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLinesUnavailable))
}

func TestApproveAcceptedSubmitsTransfer(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)
	f.createEarnedLine(t, vendorID, "100.00", clearedAt())

	payout, err := f.svc.Request(context.Background(), RequestInput{VendorID: vendorID})
	require.NoError(t, err)

	approved, err := f.svc.Approve(context.Background(), payout.ID, ApproveInput{})
	require.NoError(t, err)

	assert.Equal(t, enums.PayoutStatusProcessing, approved.Status)
	require.NotNil(t, approved.ExternalTransferID)
	assert.Equal(t, "tr_1", *approved.ExternalTransferID)

	require.Len(t, f.gateway.requests, 1)
	req := f.gateway.requests[0]
	assert.Equal(t, payout.ID, req.PayoutID)
	assert.Equal(t, "90.00", req.Amount.String())
}

func TestApproveManualTransferSkipsGateway(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)
	f.createEarnedLine(t, vendorID, "100.00", clearedAt())

	payout, err := f.svc.Request(context.Background(), RequestInput{VendorID: vendorID})
	require.NoError(t, err)

	transferID := "wire-batch-42"
	reference := "2026-08-settlement"
	approved, err := f.svc.Approve(context.Background(), payout.ID, ApproveInput{
		ExternalTransferID: &transferID,
		ExternalReference:  &reference,
	})
	require.NoError(t, err)

	assert.Equal(t, enums.PayoutStatusProcessing, approved.Status)
	require.NotNil(t, approved.ExternalTransferID)
	assert.Equal(t, transferID, *approved.ExternalTransferID)
	require.NotNil(t, approved.ExternalReference)
	assert.Equal(t, reference, *approved.ExternalReference)
	assert.Empty(t, f.gateway.requests)
}

func TestApproveRejectedFailsAndReleases(t *testing.T) {
	f := newPayoutFixture(t)
	f.gateway.result = gateway.TransferResult{Status: enums.TransferStatusRejected, Reason: "account closed"}
	vendorID := f.createVendor(t)
	lineID := f.createEarnedLine(t, vendorID, "100.00", clearedAt())

	payout, err := f.svc.Request(context.Background(), RequestInput{VendorID: vendorID})
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), payout.ID, ApproveInput{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGatewayPermanent))

	failed, err := f.svc.Get(context.Background(), payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusFailed, failed.Status)
	require.NotNil(t, failed.FailureReason)
	assert.Equal(t, "account closed", *failed.FailureReason)

	// The failed payout keeps its items as the record of the attempt, with
	// the allocations released.
	require.Len(t, failed.Items, 1)
	require.NotNil(t, failed.Items[0].ReleasedAt)

	entries := f.ledgerEntries(t, vendorID)
	last := entries[len(entries)-1]
	assert.Equal(t, enums.LedgerEntryKindRelease, last.Kind)
	assert.Equal(t, "90", last.Amount.String())

	// The line is eligible again for the next payout.
	second, err := f.svc.Request(context.Background(), RequestInput{VendorID: vendorID})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, lineID, second.Items[0].LineID)
}

func TestApproveUnknownOutcomeStaysProcessing(t *testing.T) {
	f := newPayoutFixture(t)
	f.gateway.result = gateway.TransferResult{Status: enums.TransferStatusUnknown}
	f.gateway.err = pkgerrors.New(pkgerrors.CodeGatewayTransient, "timeout")
	vendorID := f.createVendor(t)
	f.createEarnedLine(t, vendorID, "100.00", clearedAt())

	payout, err := f.svc.Request(context.Background(), RequestInput{VendorID: vendorID})
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), payout.ID, ApproveInput{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGatewayTransient))

	current, err := f.svc.Get(context.Background(), payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusProcessing, current.Status)
}

func TestApproveNonPendingPayout(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)
	f.createEarnedLine(t, vendorID, "100.00", clearedAt())

	payout, err := f.svc.Request(context.Background(), RequestInput{VendorID: vendorID})
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), payout.ID, ApproveInput{})
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), payout.ID, ApproveInput{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIllegalTransition))
}

func TestRejectReleasesReserve(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)
	f.createEarnedLine(t, vendorID, "100.00", clearedAt())

	payout, err := f.svc.Request(context.Background(), RequestInput{VendorID: vendorID})
	require.NoError(t, err)

	rejected, err := f.svc.Reject(context.Background(), payout.ID, RejectInput{Reason: "kyc pending"})
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusFailed, rejected.Status)

	balance, err := f.svc.Earnings(context.Background(), vendorID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, "90.00", balance.Available.String())
	assert.Equal(t, "0.00", balance.Reserved.String())
}

func paidWebhook(payout *models.Payout, eventID string) *gateway.WebhookEvent {
	return &gateway.WebhookEvent{
		Provider:   "fake",
		EventID:    eventID,
		TransferID: *payout.ExternalTransferID,
		Kind:       gateway.EventTransferPaid,
		OccurredAt: time.Now().UTC(),
	}
}

func approvedPayout(t *testing.T, f *payoutFixture, vendorID uuid.UUID) *models.Payout {
	t.Helper()
	payout, err := f.svc.Request(context.Background(), RequestInput{VendorID: vendorID})
	require.NoError(t, err)
	approved, err := f.svc.Approve(context.Background(), payout.ID, ApproveInput{})
	require.NoError(t, err)
	return approved
}

func TestWebhookPaidCommitsFunds(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)
	f.createEarnedLine(t, vendorID, "100.00", clearedAt())
	payout := approvedPayout(t, f, vendorID)

	require.NoError(t, f.svc.HandleGatewayEvent(context.Background(), paidWebhook(payout, "evt_1")))

	paid, err := f.svc.Get(context.Background(), payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	balance, err := f.svc.Earnings(context.Background(), vendorID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, "0.00", balance.Available.String())
	assert.Equal(t, "0.00", balance.Reserved.String())
	assert.Equal(t, "90.00", balance.LifetimePaid.String())
}

func TestWebhookDuplicateEventIsNoop(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)
	f.createEarnedLine(t, vendorID, "100.00", clearedAt())
	payout := approvedPayout(t, f, vendorID)

	require.NoError(t, f.svc.HandleGatewayEvent(context.Background(), paidWebhook(payout, "evt_1")))
	require.NoError(t, f.svc.HandleGatewayEvent(context.Background(), paidWebhook(payout, "evt_1")))

	var commits int64
	require.NoError(t, f.db.Model(&models.LedgerEntry{}).
		Where("kind = ?", enums.LedgerEntryKindPayoutCommit).
		Count(&commits).Error)
	assert.EqualValues(t, 1, commits)
}

func TestWebhookFailedReleasesLines(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)
	f.createEarnedLine(t, vendorID, "100.00", clearedAt())
	payout := approvedPayout(t, f, vendorID)

	event := paidWebhook(payout, "evt_1")
	event.Kind = gateway.EventTransferFailed
	event.Reason = "insufficient provider balance"
	require.NoError(t, f.svc.HandleGatewayEvent(context.Background(), event))

	failed, err := f.svc.Get(context.Background(), payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusFailed, failed.Status)
	require.Len(t, failed.Items, 1)
	require.NotNil(t, failed.Items[0].ReleasedAt)

	balance, err := f.svc.Earnings(context.Background(), vendorID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, "90.00", balance.Available.String())
}

func TestWebhookReversedRestoresAvailable(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)
	f.createEarnedLine(t, vendorID, "100.00", clearedAt())
	payout := approvedPayout(t, f, vendorID)

	require.NoError(t, f.svc.HandleGatewayEvent(context.Background(), paidWebhook(payout, "evt_1")))

	reversal := paidWebhook(payout, "evt_2")
	reversal.Kind = gateway.EventTransferReversed
	reversal.Reason = "beneficiary bank returned the transfer"
	require.NoError(t, f.svc.HandleGatewayEvent(context.Background(), reversal))

	// The payout row stays paid; the ledger carries the correction.
	reversed, err := f.svc.Get(context.Background(), payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusPaid, reversed.Status)

	balance, err := f.svc.Earnings(context.Background(), vendorID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, "90.00", balance.Available.String())
	assert.Equal(t, "0.00", balance.LifetimePaid.String())

	// A second reversal event must not double the correction.
	again := paidWebhook(payout, "evt_3")
	again.Kind = gateway.EventTransferReversed
	require.NoError(t, f.svc.HandleGatewayEvent(context.Background(), again))

	balance, err = f.svc.Earnings(context.Background(), vendorID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, "90.00", balance.Available.String())
}

func TestWebhookUnknownTransfer(t *testing.T) {
	f := newPayoutFixture(t)

	err := f.svc.HandleGatewayEvent(context.Background(), &gateway.WebhookEvent{
		Provider:   "fake",
		EventID:    "evt_9",
		TransferID: "tr_missing",
		Kind:       gateway.EventTransferPaid,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestSweepCreatesOnePayoutPerWindow(t *testing.T) {
	f := newPayoutFixture(t)
	vendorA := f.createVendor(t)
	vendorB := f.createVendor(t)
	vendorC := f.createVendor(t)
	f.createEarnedLine(t, vendorA, "100.00", clearedAt())
	f.createEarnedLine(t, vendorB, "200.00", clearedAt())
	f.createEarnedLine(t, vendorC, "20.00", clearedAt())

	now := time.Now().UTC()
	created, err := f.svc.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	var payouts []models.Payout
	require.NoError(t, f.db.Find(&payouts).Error)
	require.Len(t, payouts, 2)
	for _, p := range payouts {
		require.NotNil(t, p.SweepWindowStart)
		assert.Equal(t, now.Truncate(24*time.Hour), p.SweepWindowStart.UTC())
	}

	// Re-running the same window creates nothing new.
	created, err = f.svc.Sweep(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, created)
}

func backdatePayout(t *testing.T, f *payoutFixture, payoutID uuid.UUID, age time.Duration) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.Payout{}).
		Where("id = ?", payoutID).
		UpdateColumn("updated_at", time.Now().UTC().Add(-age)).Error)
}

func TestReconcileCommitsPaidTransfer(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)
	f.createEarnedLine(t, vendorID, "100.00", clearedAt())
	payout := approvedPayout(t, f, vendorID)
	backdatePayout(t, f, payout.ID, time.Hour)

	f.gateway.view = gateway.TransferView{
		TransferID: *payout.ExternalTransferID,
		State:      gateway.TransferStatePaid,
		OccurredAt: time.Now().UTC(),
	}

	resolved, err := f.svc.Reconcile(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)
	assert.Equal(t, []string{*payout.ExternalTransferID}, f.gateway.verified)

	paid, err := f.svc.Get(context.Background(), payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	balance, err := f.svc.Earnings(context.Background(), vendorID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, "90.00", balance.LifetimePaid.String())
}

func TestReconcileFailedTransferReleasesLines(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)
	f.createEarnedLine(t, vendorID, "100.00", clearedAt())
	payout := approvedPayout(t, f, vendorID)
	backdatePayout(t, f, payout.ID, time.Hour)

	f.gateway.view = gateway.TransferView{
		TransferID: *payout.ExternalTransferID,
		State:      gateway.TransferStateFailed,
		Reason:     "beneficiary account closed",
	}

	resolved, err := f.svc.Reconcile(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	failed, err := f.svc.Get(context.Background(), payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusFailed, failed.Status)

	balance, err := f.svc.Earnings(context.Background(), vendorID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, "90.00", balance.Available.String())
}

func TestReconcileLeavesPendingAndFreshPayouts(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)
	lineA := f.createEarnedLine(t, vendorID, "100.00", clearedAt())
	lineB := f.createEarnedLine(t, vendorID, "100.00", clearedAt())

	stale, err := f.svc.Request(context.Background(), RequestInput{VendorID: vendorID, LineIDs: []uuid.UUID{lineA}})
	require.NoError(t, err)
	stale, err = f.svc.Approve(context.Background(), stale.ID, ApproveInput{})
	require.NoError(t, err)
	backdatePayout(t, f, stale.ID, time.Hour)

	// A second payout approved just now stays below the reconcile age.
	f.gateway.result.TransferID = "tr_2"
	fresh, err := f.svc.Request(context.Background(), RequestInput{VendorID: vendorID, LineIDs: []uuid.UUID{lineB}})
	require.NoError(t, err)
	fresh, err = f.svc.Approve(context.Background(), fresh.ID, ApproveInput{})
	require.NoError(t, err)

	f.gateway.view = gateway.TransferView{
		TransferID: *stale.ExternalTransferID,
		State:      gateway.TransferStatePending,
	}

	resolved, err := f.svc.Reconcile(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, resolved)
	assert.Equal(t, []string{*stale.ExternalTransferID}, f.gateway.verified)

	for _, id := range []uuid.UUID{stale.ID, fresh.ID} {
		got, err := f.svc.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, enums.PayoutStatusProcessing, got.Status)
	}
}

func TestListPaginatesWithCursor(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		payout := models.Payout{
			ID:            uuid.New(),
			VendorID:      vendorID,
			Amount:        decimal.RequireFromString("90.00"),
			Currency:      enums.CurrencyUSD,
			Status:        enums.PayoutStatusPending,
			PaymentMethod: enums.PayoutMethodBankTransfer,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, f.db.Create(&payout).Error)
	}

	first, err := f.svc.List(context.Background(), ListParams{
		VendorID: vendorID,
		Page:     pagination.Params{Limit: 3},
	})
	require.NoError(t, err)
	require.Len(t, first.Payouts, 3)
	require.NotEmpty(t, first.NextCursor)

	second, err := f.svc.List(context.Background(), ListParams{
		VendorID: vendorID,
		Page:     pagination.Params{Limit: 3, Cursor: first.NextCursor},
	})
	require.NoError(t, err)
	require.Len(t, second.Payouts, 2)
	assert.Empty(t, second.NextCursor)

	seen := map[uuid.UUID]bool{}
	for _, p := range append(first.Payouts, second.Payouts...) {
		assert.False(t, seen[p.ID])
		seen[p.ID] = true
	}
}

func TestEarningsReportsBalance(t *testing.T) {
	f := newPayoutFixture(t)
	vendorID := f.createVendor(t)
	f.createEarnedLine(t, vendorID, "100.00", clearedAt())
	f.createEarnedLine(t, vendorID, "50.00", time.Now().UTC().Add(-time.Hour))

	balance, err := f.svc.Earnings(context.Background(), vendorID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, "90.00", balance.Available.String())
	assert.Equal(t, "45.00", balance.Pending.String())
	assert.Equal(t, "135.00", balance.LifetimeEarnings.String())

	// One line is still inside the dispute window; both earn entries landed
	// this month.
	assert.Equal(t, int64(1), balance.PendingLinesCount)
	assert.Equal(t, "45.00", balance.PendingLinesValue.String())
	assert.Equal(t, "135.00", balance.ThisPeriodEarnings.String())
}
