package payouts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendorpay-backend/internal/earnings"
	"github.com/angelmondragon/vendorpay-backend/internal/gateway"
	"github.com/angelmondragon/vendorpay-backend/internal/ledger"
	"github.com/angelmondragon/vendorpay-backend/internal/money"
	"github.com/angelmondragon/vendorpay-backend/internal/settlement"
	"github.com/angelmondragon/vendorpay-backend/internal/vendors"
	"github.com/angelmondragon/vendorpay-backend/pkg/config"
	dbpkg "github.com/angelmondragon/vendorpay-backend/pkg/db"
	"github.com/angelmondragon/vendorpay-backend/pkg/db/models"
	"github.com/angelmondragon/vendorpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorpay-backend/pkg/errors"
	"github.com/angelmondragon/vendorpay-backend/pkg/logger"
	"github.com/angelmondragon/vendorpay-backend/pkg/outbox"
	"github.com/angelmondragon/vendorpay-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/vendorpay-backend/pkg/pagination"
)

const (
	vendorLockTTL      = 30 * time.Second
	reconcileBatchSize = 50
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type locker interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(name string) string
}

// Service orchestrates the payout lifecycle: request, admin decision, gateway
// submission, webhook-driven terminal transitions, and the scheduled sweep.
type Service interface {
	Request(ctx context.Context, input RequestInput) (*models.Payout, error)
	Approve(ctx context.Context, payoutID uuid.UUID, input ApproveInput) (*models.Payout, error)
	Reject(ctx context.Context, payoutID uuid.UUID, input RejectInput) (*models.Payout, error)
	HandleGatewayEvent(ctx context.Context, event *gateway.WebhookEvent) error
	Sweep(ctx context.Context, now time.Time) (int, error)
	Reconcile(ctx context.Context, now time.Time) (int, error)
	Get(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Earnings(ctx context.Context, vendorID uuid.UUID, now time.Time) (*EarningsView, error)
}

// ServiceParams wires the orchestrator dependencies.
type ServiceParams struct {
	Config     config.PlatformConfig
	DB         txRunner
	Repo       Repository
	Settlement settlement.Repository
	Vendors    vendors.Repository
	Ledger     ledger.Service
	Calculator *earnings.Calculator
	Gateway    gateway.Adapter
	Outbox     *outbox.Service
	Locks      locker
	Logger     *logger.Logger
}

type service struct {
	cfg        config.PlatformConfig
	db         txRunner
	repo       Repository
	settlement settlement.Repository
	vendor     vendors.Repository
	ledger     ledger.Service
	calc       *earnings.Calculator
	gateway    gateway.Adapter
	outbox     *outbox.Service
	locks      locker
	logg       *logger.Logger
}

// NewService builds the payout orchestrator.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "db client required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payout repository required")
	}
	if params.Settlement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement repository required")
	}
	if params.Vendors == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "vendor repository required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger service required")
	}
	if params.Calculator == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "earnings calculator required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway adapter required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox service required")
	}
	if params.Locks == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "lock store required")
	}
	return &service{
		cfg:        params.Config,
		db:         params.DB,
		repo:       params.Repo,
		settlement: params.Settlement,
		vendor:     params.Vendors,
		ledger:     params.Ledger,
		calc:       params.Calculator,
		gateway:    params.Gateway,
		outbox:     params.Outbox,
		locks:      params.Locks,
		logg:       params.Logger,
	}, nil
}

// Request creates a pending payout from the vendor's eligible lines and
// reserves the funds. Monetary mutations for one vendor are serialized by a
// short redis lock; DB unique indexes backstop anything that slips through.
func (s *service) Request(ctx context.Context, input RequestInput) (*models.Payout, error) {
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}

	unlock, err := s.lockVendor(ctx, input.VendorID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var payout *models.Payout
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.buildPayout(ctx, tx, input, nil)
		if err != nil {
			return err
		}
		payout = created
		return nil
	})
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_payout_items_line") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeLinesUnavailable, err, "one or more lines were claimed by another payout")
		}
		return nil, err
	}
	return payout, nil
}

// buildPayout runs inside a transaction and performs the shared request/sweep
// creation: amount and balance checks, line allocation, rows, reserve entry,
// and the outbox event. When req.Amount is set the minimum and available
// checks are judged against the requested figure before any lines are
// touched; a nil amount derives the total from the lines.
func (s *service) buildPayout(ctx context.Context, tx *gorm.DB, req RequestInput, sweepWindow *time.Time) (*models.Payout, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-s.cfg.DisputeWindow)
	vendorID := req.VendorID

	vendor, err := s.vendor.WithTx(tx).Get(ctx, vendorID)
	if err != nil {
		return nil, err
	}

	ledgerSvc := s.ledger.WithRepo(ledger.NewRepository(tx))
	var requested *money.Money
	if req.Amount != nil {
		amount, err := money.New(*req.Amount, vendor.Currency)
		if err != nil {
			return nil, err
		}
		if !amount.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "requested amount must be positive")
		}
		if amount.Amount().LessThan(s.cfg.MinPayoutAmount()) {
			return nil, pkgerrors.New(pkgerrors.CodeBelowMinimum, "requested amount is below the payout minimum").
				WithDetails(map[string]any{"requested": amount.String(), "minimum": s.cfg.MinPayoutAmount().StringFixed(2)})
		}
		balance, err := ledgerSvc.Balance(ctx, vendorID, vendor.Currency, now)
		if err != nil {
			return nil, err
		}
		cmp, err := balance.Available.Cmp(amount)
		if err != nil {
			return nil, err
		}
		if cmp < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientAvailable, "available balance is below the requested amount").
				WithDetails(map[string]any{"available": balance.Available.String(), "requested": amount.String()})
		}
		requested = &amount
	}

	settlementRepo := s.settlement.WithTx(tx)
	var lines []models.OrderLine
	if len(req.LineIDs) > 0 {
		lines, err = settlementRepo.ListEligibleByIDs(ctx, vendorID, req.LineIDs, cutoff)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading requested lines")
		}
		if len(lines) != len(req.LineIDs) {
			return nil, pkgerrors.New(pkgerrors.CodeLinesUnavailable, "some requested lines are not eligible for payout").
				WithDetails(map[string]any{"requested": len(req.LineIDs), "eligible": len(lines)})
		}
	} else {
		lines, err = settlementRepo.ListEligible(ctx, vendorID, cutoff)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading eligible lines")
		}
		if len(lines) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeLinesUnavailable, "no eligible lines to pay out")
		}
	}

	for _, line := range lines {
		if line.Currency != vendor.Currency {
			return nil, pkgerrors.New(pkgerrors.CodeCurrencyMismatch, "line currency differs from vendor currency").
				WithDetails(map[string]any{"line_id": line.ID.String(), "line_currency": string(line.Currency), "vendor_currency": string(vendor.Currency)})
		}
	}

	totals, breakdowns, err := s.calc.SplitLines(lines, vendor)
	if err != nil {
		return nil, err
	}

	switch {
	case requested != nil && len(req.LineIDs) > 0:
		// Explicit lines plus an amount must agree exactly.
		cmp, err := totals.Net.Cmp(*requested)
		if err != nil {
			return nil, err
		}
		if cmp != 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "requested amount does not match the net of the selected lines").
				WithDetails(map[string]any{"requested": requested.String(), "lines_net": totals.Net.String()})
		}
	case requested != nil:
		totals, breakdowns, err = allocateForAmount(breakdowns, *requested)
		if err != nil {
			return nil, err
		}
	default:
		if totals.Net.Amount().LessThan(s.cfg.MinPayoutAmount()) {
			return nil, pkgerrors.New(pkgerrors.CodeBelowMinimum, "net amount is below the payout minimum").
				WithDetails(map[string]any{"net": totals.Net.String(), "minimum": s.cfg.MinPayoutAmount().StringFixed(2)})
		}
		balance, err := ledgerSvc.Balance(ctx, vendorID, vendor.Currency, now)
		if err != nil {
			return nil, err
		}
		cmp, err := balance.Available.Cmp(totals.Net)
		if err != nil {
			return nil, err
		}
		if cmp < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientAvailable, "available balance is below the requested amount").
				WithDetails(map[string]any{"available": balance.Available.String(), "requested": totals.Net.String()})
		}
	}

	method := vendor.PayoutMethod
	if req.Method != nil {
		method = *req.Method
	}

	payout := &models.Payout{
		ID:               uuid.New(),
		VendorID:         vendorID,
		Amount:           totals.Net.Amount(),
		Currency:         vendor.Currency,
		Status:           enums.PayoutStatusPending,
		PaymentMethod:    method,
		Notes:            req.Notes,
		SweepWindowStart: sweepWindow,
	}

	payoutRepo := s.repo.WithTx(tx)
	if err := payoutRepo.Create(ctx, payout); err != nil {
		return nil, err
	}

	items := make([]models.PayoutItem, 0, len(breakdowns))
	for _, b := range breakdowns {
		items = append(items, models.PayoutItem{
			ID:               uuid.New(),
			PayoutID:         payout.ID,
			LineID:           b.LineID,
			GrossAmount:      b.Gross.Amount(),
			CommissionAmount: b.Commission.Amount(),
			NetAmount:        b.Net.Amount(),
		})
	}
	if err := payoutRepo.CreateItems(ctx, items); err != nil {
		return nil, err
	}

	if _, err := ledgerSvc.Append(ctx, ledger.AppendInput{
		VendorID: vendorID,
		Kind:     enums.LedgerEntryKindReserve,
		Amount:   totals.Net.Neg(),
		RefKind:  enums.LedgerRefKindPayout,
		RefID:    payout.ID,
	}); err != nil {
		return nil, err
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPayoutRequested,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payout.ID,
		Actor:         req.Actor,
		Version:       1,
		Data: payloads.PayoutRequestedEvent{
			PayoutID:  payout.ID,
			VendorID:  vendorID,
			Amount:    totals.Net.String(),
			Currency:  string(vendor.Currency),
			LineCount: len(items),
			Swept:     sweepWindow != nil,
		},
	}); err != nil {
		return nil, err
	}

	s.logInfo(ctx, "payout requested", map[string]any{
		"payout_id": payout.ID.String(),
		"vendor_id": vendorID.String(),
		"amount":    totals.Net.String(),
		"lines":     len(items),
	})
	payout.Items = items
	return payout, nil
}

// allocateForAmount picks lines oldest first until their net sums to the
// requested figure, skipping lines too large to fit the remainder. The caller
// already verified the requested amount against the available balance; a set
// of lines that cannot compose the amount exactly is reported as unavailable.
func allocateForAmount(breakdowns []earnings.Breakdown, requested money.Money) (earnings.Totals, []earnings.Breakdown, error) {
	currency := requested.Currency()
	totals := earnings.Totals{
		Gross:      money.Zero(currency),
		Commission: money.Zero(currency),
		Net:        money.Zero(currency),
	}
	selected := make([]earnings.Breakdown, 0, len(breakdowns))
	for _, b := range breakdowns {
		next, err := totals.Net.Add(b.Net)
		if err != nil {
			return earnings.Totals{}, nil, err
		}
		cmp, err := next.Cmp(requested)
		if err != nil {
			return earnings.Totals{}, nil, err
		}
		if cmp > 0 {
			continue
		}
		totals.Net = next
		if totals.Gross, err = totals.Gross.Add(b.Gross); err != nil {
			return earnings.Totals{}, nil, err
		}
		if totals.Commission, err = totals.Commission.Add(b.Commission); err != nil {
			return earnings.Totals{}, nil, err
		}
		selected = append(selected, b)
		if cmp == 0 {
			break
		}
	}
	if !totals.Net.Equal(requested) {
		return earnings.Totals{}, nil, pkgerrors.New(pkgerrors.CodeLinesUnavailable, "eligible lines cannot compose the requested amount").
			WithDetails(map[string]any{"requested": requested.String(), "allocatable": totals.Net.String()})
	}
	return totals, selected, nil
}

// Approve moves a pending payout to processing and submits the transfer. A
// rejected submission fails the payout and surfaces a permanent gateway
// error; an unknown outcome leaves it processing for the webhook or
// reconciliation to resolve.
func (s *service) Approve(ctx context.Context, payoutID uuid.UUID, input ApproveInput) (*models.Payout, error) {
	payout, err := s.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.AdminNotes != nil {
		updates["admin_notes"] = *input.AdminNotes
	}
	ok, err := s.repo.Transition(ctx, payoutID, enums.PayoutStatusPending, enums.PayoutStatusProcessing, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transitioning payout")
	}
	if !ok {
		return nil, s.transitionConflict(ctx, payoutID, enums.PayoutStatusPending)
	}

	amount, err := money.New(payout.Amount, payout.Currency)
	if err != nil {
		return nil, err
	}

	if input.ExternalTransferID != nil {
		if err := s.recordManualTransfer(ctx, payout, amount, input); err != nil {
			return nil, err
		}
		return s.Get(ctx, payoutID)
	}

	result, gwErr := s.gateway.CreateTransfer(ctx, gateway.TransferRequest{
		PayoutID:  payoutID,
		VendorID:  payout.VendorID,
		Amount:    amount,
		Method:    payout.PaymentMethod,
		Reference: payoutID.String(),
	})

	switch result.Status {
	case enums.TransferStatusAccepted:
		err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if _, err := repo.Transition(ctx, payoutID, enums.PayoutStatusProcessing, enums.PayoutStatusProcessing, map[string]any{
				"external_transfer_id": result.TransferID,
			}); err != nil {
				return err
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPayoutApproved,
				AggregateType: enums.AggregatePayout,
				AggregateID:   payoutID,
				Actor:         input.Actor,
				Version:       1,
				Data: payloads.PayoutApprovedEvent{
					PayoutID:           payoutID,
					VendorID:           payout.VendorID,
					Amount:             amount.String(),
					Currency:           string(payout.Currency),
					ExternalTransferID: result.TransferID,
				},
			})
		})
		if err != nil {
			return nil, err
		}
		s.logInfo(ctx, "payout approved", map[string]any{
			"payout_id":   payoutID.String(),
			"transfer_id": result.TransferID,
		})

	case enums.TransferStatusRejected:
		if err := s.failPayout(ctx, payoutID, payout.VendorID, amount, enums.PayoutStatusProcessing, result.Reason, input.Actor); err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeGatewayPermanent, "gateway rejected the transfer").
			WithDetails(map[string]any{"payout_id": payoutID.String(), "reason": result.Reason})

	default:
		// Outcome unknown. The payout stays processing; never retry blindly.
		s.logWarn(ctx, "transfer outcome unknown", map[string]any{"payout_id": payoutID.String()})
		if gwErr == nil {
			gwErr = pkgerrors.New(pkgerrors.CodeGatewayTransient, "transfer outcome unknown")
		}
		return nil, gwErr
	}

	return s.Get(ctx, payoutID)
}

// recordManualTransfer stores an out-of-band transfer id on an already
// processing payout and emits the approved event without touching the gateway.
// The webhook or reconciliation still drives the terminal transition.
func (s *service) recordManualTransfer(ctx context.Context, payout *models.Payout, amount money.Money, input ApproveInput) error {
	transferID := *input.ExternalTransferID
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		updates := map[string]any{"external_transfer_id": transferID}
		if input.ExternalReference != nil {
			updates["external_reference"] = *input.ExternalReference
		}
		if _, err := repo.Transition(ctx, payout.ID, enums.PayoutStatusProcessing, enums.PayoutStatusProcessing, updates); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutApproved,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			Actor:         input.Actor,
			Version:       1,
			Data: payloads.PayoutApprovedEvent{
				PayoutID:           payout.ID,
				VendorID:           payout.VendorID,
				Amount:             amount.String(),
				Currency:           string(payout.Currency),
				ExternalTransferID: transferID,
			},
		})
	})
	if err != nil {
		return err
	}
	s.logInfo(ctx, "payout approved with manual transfer", map[string]any{
		"payout_id":   payout.ID.String(),
		"transfer_id": transferID,
	})
	return nil
}

// Reject fails a pending payout before submission and releases the reserve.
func (s *service) Reject(ctx context.Context, payoutID uuid.UUID, input RejectInput) (*models.Payout, error) {
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a rejection reason is required")
	}

	payout, err := s.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	amount, err := money.New(payout.Amount, payout.Currency)
	if err != nil {
		return nil, err
	}

	if err := s.failPayout(ctx, payoutID, payout.VendorID, amount, enums.PayoutStatusPending, input.Reason, input.Actor); err != nil {
		return nil, err
	}
	return s.Get(ctx, payoutID)
}

// failPayout performs the shared terminal-failure transaction: guarded status
// move, item release so lines become eligible again, release entry, and the
// failure event.
func (s *service) failPayout(ctx context.Context, payoutID, vendorID uuid.UUID, amount money.Money, from enums.PayoutStatus, reason string, actor *outbox.ActorRef) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.Transition(ctx, payoutID, from, enums.PayoutStatusFailed, map[string]any{
			"failure_reason": reason,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transitioning payout")
		}
		if !ok {
			return s.transitionConflict(ctx, payoutID, from)
		}

		if err := repo.ReleaseItems(ctx, payoutID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "releasing payout lines")
		}

		ledgerSvc := s.ledger.WithRepo(ledger.NewRepository(tx))
		if _, err := ledgerSvc.Append(ctx, ledger.AppendInput{
			VendorID: vendorID,
			Kind:     enums.LedgerEntryKindRelease,
			Amount:   amount,
			RefKind:  enums.LedgerRefKindPayout,
			RefID:    payoutID,
		}); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutFailed,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payoutID,
			Actor:         actor,
			Version:       1,
			Data: payloads.PayoutFailedEvent{
				PayoutID: payoutID,
				VendorID: vendorID,
				Amount:   amount.String(),
				Currency: string(amount.Currency()),
				Reason:   reason,
			},
		}); err != nil {
			return err
		}

		s.logInfo(ctx, "payout failed", map[string]any{
			"payout_id": payoutID.String(),
			"reason":    reason,
		})
		return nil
	})
}

// HandleGatewayEvent applies a verified webhook to the payout it references.
// The gateway_events unique index makes redelivered events no-ops.
func (s *service) HandleGatewayEvent(ctx context.Context, event *gateway.WebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook event required")
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := repo.RecordGatewayEvent(ctx, &models.GatewayEvent{
			ID:         uuid.New(),
			Provider:   event.Provider,
			EventID:    event.EventID,
			TransferID: event.TransferID,
			Kind:       string(event.Kind),
			Payload:    event.Raw,
		}); err != nil {
			return err
		}

		payout, err := repo.GetByTransferID(ctx, event.TransferID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no payout for transfer").
				WithDetails(map[string]any{"transfer_id": event.TransferID})
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading payout for transfer")
		}

		amount, err := money.New(payout.Amount, payout.Currency)
		if err != nil {
			return err
		}

		switch event.Kind {
		case gateway.EventTransferPaid:
			return s.applyPaid(ctx, tx, payout, amount, event)
		case gateway.EventTransferFailed:
			return s.applyFailed(ctx, tx, payout, amount, event)
		case gateway.EventTransferReversed:
			return s.applyReversed(ctx, tx, payout, amount, event)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported webhook kind")
	})

	// First committer wins on the event id; redelivery is success.
	if dbpkg.IsUniqueViolation(err, "ux_gateway_events_provider_event") {
		return nil
	}
	return err
}

func (s *service) applyPaid(ctx context.Context, tx *gorm.DB, payout *models.Payout, amount money.Money, event *gateway.WebhookEvent) error {
	repo := s.repo.WithTx(tx)
	paidAt := event.OccurredAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}

	ok, err := repo.Transition(ctx, payout.ID, enums.PayoutStatusProcessing, enums.PayoutStatusPaid, map[string]any{
		"paid_at": paidAt,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transitioning payout")
	}
	if !ok {
		if payout.Status == enums.PayoutStatusPaid {
			return nil
		}
		return s.transitionConflict(ctx, payout.ID, enums.PayoutStatusProcessing)
	}

	ledgerSvc := s.ledger.WithRepo(ledger.NewRepository(tx))
	if _, err := ledgerSvc.Append(ctx, ledger.AppendInput{
		VendorID: payout.VendorID,
		Kind:     enums.LedgerEntryKindPayoutCommit,
		Amount:   amount.Neg(),
		RefKind:  enums.LedgerRefKindPayout,
		RefID:    payout.ID,
	}); err != nil {
		return err
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPayoutPaid,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payout.ID,
		Version:       1,
		Data: payloads.PayoutPaidEvent{
			PayoutID: payout.ID,
			VendorID: payout.VendorID,
			Amount:   amount.String(),
			Currency: string(payout.Currency),
			PaidAt:   paidAt,
		},
	}); err != nil {
		return err
	}

	s.logInfo(ctx, "payout paid", map[string]any{"payout_id": payout.ID.String()})
	return nil
}

func (s *service) applyFailed(ctx context.Context, tx *gorm.DB, payout *models.Payout, amount money.Money, event *gateway.WebhookEvent) error {
	repo := s.repo.WithTx(tx)
	reason := event.Reason
	if reason == "" {
		reason = "transfer failed"
	}

	ok, err := repo.Transition(ctx, payout.ID, enums.PayoutStatusProcessing, enums.PayoutStatusFailed, map[string]any{
		"failure_reason": reason,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transitioning payout")
	}
	if !ok {
		if payout.Status == enums.PayoutStatusFailed {
			return nil
		}
		return s.transitionConflict(ctx, payout.ID, enums.PayoutStatusProcessing)
	}

	if err := repo.ReleaseItems(ctx, payout.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "releasing payout lines")
	}

	ledgerSvc := s.ledger.WithRepo(ledger.NewRepository(tx))
	if _, err := ledgerSvc.Append(ctx, ledger.AppendInput{
		VendorID: payout.VendorID,
		Kind:     enums.LedgerEntryKindRelease,
		Amount:   amount,
		RefKind:  enums.LedgerRefKindPayout,
		RefID:    payout.ID,
	}); err != nil {
		return err
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPayoutFailed,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payout.ID,
		Version:       1,
		Data: payloads.PayoutFailedEvent{
			PayoutID: payout.ID,
			VendorID: payout.VendorID,
			Amount:   amount.String(),
			Currency: string(payout.Currency),
			Reason:   reason,
		},
	}); err != nil {
		return err
	}

	s.logInfo(ctx, "payout failed", map[string]any{"payout_id": payout.ID.String(), "reason": reason})
	return nil
}

// applyReversed compensates a paid payout. The row keeps its paid status; the
// ledger carries the correction so the funds return to available.
func (s *service) applyReversed(ctx context.Context, tx *gorm.DB, payout *models.Payout, amount money.Money, event *gateway.WebhookEvent) error {
	if payout.Status != enums.PayoutStatusPaid {
		return pkgerrors.New(pkgerrors.CodeIllegalTransition, "only paid payouts can be reversed").
			WithDetails(map[string]any{"payout_id": payout.ID.String(), "status": string(payout.Status)})
	}

	ledgerRepo := ledger.NewRepository(tx)
	existing, err := ledgerRepo.ListByRef(ctx, string(enums.LedgerRefKindPayout), payout.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading payout ledger entries")
	}
	for _, entry := range existing {
		if entry.Kind == enums.LedgerEntryKindPayoutRelease {
			return nil
		}
	}

	ledgerSvc := s.ledger.WithRepo(ledgerRepo)
	if _, err := ledgerSvc.Append(ctx, ledger.AppendInput{
		VendorID: payout.VendorID,
		Kind:     enums.LedgerEntryKindPayoutRelease,
		Amount:   amount,
		RefKind:  enums.LedgerRefKindPayout,
		RefID:    payout.ID,
	}); err != nil {
		return err
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPayoutReversed,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payout.ID,
		Version:       1,
		Data: payloads.PayoutReversedEvent{
			PayoutID: payout.ID,
			VendorID: payout.VendorID,
			Amount:   amount.String(),
			Currency: string(payout.Currency),
			Reason:   event.Reason,
		},
	}); err != nil {
		return err
	}

	s.logInfo(ctx, "payout reversed", map[string]any{"payout_id": payout.ID.String()})
	return nil
}

// Sweep creates one payout per vendor with eligible earnings above the
// minimum. The (vendor, window) unique index makes re-runs of the same window
// no-ops, so a crashed sweep can simply run again.
func (s *service) Sweep(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	windowStart := now.UTC().Truncate(s.cfg.SweepInterval)

	allVendors, err := s.vendor.List(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing vendors")
	}

	created := 0
	for _, vendor := range allVendors {
		swept, err := s.sweepVendor(ctx, vendor.ID, windowStart)
		if err != nil {
			s.logWarn(ctx, "vendor sweep failed", map[string]any{
				"vendor_id": vendor.ID.String(),
				"error":     err.Error(),
			})
			continue
		}
		if swept {
			created++
		}
	}
	return created, nil
}

func (s *service) sweepVendor(ctx context.Context, vendorID uuid.UUID, windowStart time.Time) (bool, error) {
	unlock, err := s.lockVendor(ctx, vendorID)
	if err != nil {
		return false, err
	}
	defer unlock()

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.buildPayout(ctx, tx, RequestInput{VendorID: vendorID}, &windowStart)
		return err
	})
	if err != nil {
		switch {
		case pkgerrors.IsCode(err, pkgerrors.CodeLinesUnavailable),
			pkgerrors.IsCode(err, pkgerrors.CodeBelowMinimum):
			return false, nil
		case dbpkg.IsUniqueViolation(err, "ux_payouts_vendor_sweep_window"):
			// Window already swept for this vendor.
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Reconcile resolves payouts stuck in processing by asking the gateway for the
// transfer's current state. Pending transfers are left alone; paid and failed
// apply the same effects the matching webhook would have.
func (s *service) Reconcile(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	cutoff := now.Add(-s.cfg.ReconcileAfter)

	stuck, err := s.repo.ListStuckProcessing(ctx, cutoff, reconcileBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing stuck payouts")
	}

	resolved := 0
	for _, payout := range stuck {
		ok, err := s.reconcilePayout(ctx, payout)
		if err != nil {
			s.logWarn(ctx, "payout reconciliation failed", map[string]any{
				"payout_id": payout.ID.String(),
				"error":     err.Error(),
			})
			continue
		}
		if ok {
			resolved++
		}
	}
	return resolved, nil
}

func (s *service) reconcilePayout(ctx context.Context, payout models.Payout) (bool, error) {
	view, err := s.gateway.VerifyTransfer(ctx, *payout.ExternalTransferID)
	if err != nil {
		return false, err
	}
	if view.State == gateway.TransferStatePending {
		return false, nil
	}

	amount, err := money.New(payout.Amount, payout.Currency)
	if err != nil {
		return false, err
	}
	synthetic := &gateway.WebhookEvent{
		Provider:   s.gateway.Name(),
		TransferID: *payout.ExternalTransferID,
		Reason:     view.Reason,
		OccurredAt: view.OccurredAt,
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		switch view.State {
		case gateway.TransferStatePaid:
			return s.applyPaid(ctx, tx, &payout, amount, synthetic)
		case gateway.TransferStateFailed:
			return s.applyFailed(ctx, tx, &payout, amount, synthetic)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	s.logInfo(ctx, "payout reconciled", map[string]any{
		"payout_id": payout.ID.String(),
		"state":     string(view.State),
	})
	return true, nil
}

func (s *service) Get(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	if payoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id is required")
	}
	payout, err := s.repo.Get(ctx, payoutID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found").
			WithDetails(map[string]any{"payout_id": payoutID.String()})
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading payout")
	}
	return payout, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	limit := pagination.NormalizeLimit(params.Page.Limit)
	cursor, err := pagination.ParseCursor(params.Page.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, ListFilter{
		VendorID: params.VendorID,
		Status:   params.Status,
		Limit:    limit,
		Cursor:   cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing payouts")
	}

	result := &ListResult{Payouts: rows}
	if len(rows) > limit {
		result.Payouts = rows[:limit]
		last := result.Payouts[len(result.Payouts)-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return result, nil
}

// Earnings reports the vendor's balance plus the dispute-window line stats and
// the running total for the current calendar month.
func (s *service) Earnings(ctx context.Context, vendorID uuid.UUID, now time.Time) (*EarningsView, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	vendor, err := s.vendor.Get(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	balance, err := s.ledger.Balance(ctx, vendorID, vendor.Currency, now)
	if err != nil {
		return nil, err
	}

	cutoff := now.Add(-s.cfg.DisputeWindow)
	stats, err := s.settlement.PendingStats(ctx, vendorID, cutoff)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading pending line stats")
	}
	pendingValue, err := money.New(stats.Value, vendor.Currency)
	if err != nil {
		return nil, err
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	periodEarnings, err := s.ledger.EarnedSince(ctx, vendorID, vendor.Currency, monthStart)
	if err != nil {
		return nil, err
	}

	return &EarningsView{
		Balance:            *balance,
		PendingLinesCount:  stats.Count,
		PendingLinesValue:  pendingValue,
		ThisPeriodEarnings: periodEarnings,
	}, nil
}

func (s *service) lockVendor(ctx context.Context, vendorID uuid.UUID) (func(), error) {
	key := s.locks.LockKey("payout:vendor:" + vendorID.String())
	ok, err := s.locks.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), vendorLockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquiring vendor lock")
	}
	if !ok {
		// The loser of a concurrent allocation race surfaces the same
		// typed failure whether it lost on the lock or on the line index.
		return nil, pkgerrors.New(pkgerrors.CodeLinesUnavailable, "another payout operation is in progress for this vendor")
	}
	return func() { _ = s.locks.Del(ctx, key) }, nil
}

// transitionConflict re-reads the row to produce a precise error for a failed
// guarded transition.
func (s *service) transitionConflict(ctx context.Context, payoutID uuid.UUID, expected enums.PayoutStatus) error {
	details := map[string]any{"payout_id": payoutID.String(), "expected": string(expected)}
	if current, err := s.repo.Get(ctx, payoutID); err == nil {
		details["status"] = string(current.Status)
	}
	return pkgerrors.New(pkgerrors.CodeIllegalTransition, "payout is not in the expected state").WithDetails(details)
}

func (s *service) logInfo(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), msg)
}

func (s *service) logWarn(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithFields(ctx, fields), msg)
}
