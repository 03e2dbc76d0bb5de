package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendorpay-backend/internal/earnings"
	"github.com/angelmondragon/vendorpay-backend/internal/ledger"
	"github.com/angelmondragon/vendorpay-backend/internal/money"
	"github.com/angelmondragon/vendorpay-backend/internal/vendors"
	dbpkg "github.com/angelmondragon/vendorpay-backend/pkg/db"
	"github.com/angelmondragon/vendorpay-backend/pkg/db/models"
	"github.com/angelmondragon/vendorpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorpay-backend/pkg/errors"
	"github.com/angelmondragon/vendorpay-backend/pkg/logger"
	"github.com/angelmondragon/vendorpay-backend/pkg/outbox"
	"github.com/angelmondragon/vendorpay-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service observes order settlement and accrues vendor earnings into the
// ledger exactly once per line.
type Service interface {
	RecordSettlement(ctx context.Context, lineID uuid.UUID, settledAt time.Time) error
	RecordDispute(ctx context.Context, lineID uuid.UUID) error
	AccrueSettled(ctx context.Context, batchSize int) (int, error)
}

// ServiceParams wires the settlement observer dependencies.
type ServiceParams struct {
	DB         txRunner
	Repo       Repository
	Vendors    vendors.Repository
	Ledger     ledger.Service
	Calculator *earnings.Calculator
	Outbox     *outbox.Service
	Logger     *logger.Logger
}

type service struct {
	db     txRunner
	repo   Repository
	vendor vendors.Repository
	ledger ledger.Service
	calc   *earnings.Calculator
	outbox *outbox.Service
	logg   *logger.Logger
}

// NewService builds the settlement observer.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "db client required")
	}
	if params.Repo == nil {
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
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox service required")
	}
	return &service{
		db:     params.DB,
		repo:   params.Repo,
		vendor: params.Vendors,
		ledger: params.Ledger,
		calc:   params.Calculator,
		outbox: params.Outbox,
		logg:   params.Logger,
	}, nil
}

// RecordSettlement flips an unsettled line to settled and accrues its earnings
// in the same transaction.
func (s *service) RecordSettlement(ctx context.Context, lineID uuid.UUID, settledAt time.Time) error {
	if lineID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "line id is required")
	}
	if settledAt.IsZero() {
		settledAt = time.Now().UTC()
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.MarkSettled(ctx, lineID, settledAt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marking line settled")
		}
		line, err := repo.GetLine(ctx, lineID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "order line not found").WithDetails(map[string]any{"line_id": lineID.String()})
		}
		if line.SettlementState != enums.SettlementStateSettled {
			return pkgerrors.New(pkgerrors.CodeIllegalTransition, "line is not in a settlable state").WithDetails(map[string]any{
				"line_id": lineID.String(),
				"state":   string(line.SettlementState),
			})
		}
		return s.accrueLine(ctx, tx, line)
	})
}

// RecordDispute freezes a line out of payout eligibility and backs any
// accrued earn out of the ledger so balances stop counting the line.
func (s *service) RecordDispute(ctx context.Context, lineID uuid.UUID) error {
	if lineID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "line id is required")
	}
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).MarkDisputed(ctx, lineID); err != nil {
			return err
		}
		return s.reverseAccrual(ctx, tx, lineID)
	})
}

// reverseAccrual appends the compensating earn_reversal for a disputed line.
// Lines that never accrued, or were already reversed, are left alone. The
// ledger's available guard rejects the reversal when the funds already left
// through a payout; such disputes need operator intervention.
func (s *service) reverseAccrual(ctx context.Context, tx *gorm.DB, lineID uuid.UUID) error {
	ledgerRepo := ledger.NewRepository(tx)
	entries, err := ledgerRepo.ListByRef(ctx, string(enums.LedgerRefKindOrderLine), lineID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading line ledger entries")
	}

	var earned *models.LedgerEntry
	for i := range entries {
		switch entries[i].Kind {
		case enums.LedgerEntryKindEarn:
			earned = &entries[i]
		case enums.LedgerEntryKindEarnReversal:
			return nil
		}
	}
	if earned == nil {
		return nil
	}

	net, err := money.New(earned.Amount, earned.Currency)
	if err != nil {
		return err
	}
	ledgerSvc := s.ledger.WithRepo(ledgerRepo)
	if _, err := ledgerSvc.Append(ctx, ledger.AppendInput{
		VendorID: earned.VendorID,
		Kind:     enums.LedgerEntryKindEarnReversal,
		Amount:   net.Neg(),
		RefKind:  enums.LedgerRefKindOrderLine,
		RefID:    lineID,
	}); err != nil {
		return err
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventEarningsReversed,
		AggregateType: enums.AggregateVendor,
		AggregateID:   earned.VendorID,
		Version:       1,
		Data: payloads.EarningsReversedEvent{
			VendorID: earned.VendorID,
			LineID:   lineID,
			Net:      net.String(),
			Currency: string(net.Currency()),
		},
	}); err != nil {
		return err
	}

	if s.logg != nil {
		fields := map[string]any{
			"line_id":   lineID.String(),
			"vendor_id": earned.VendorID.String(),
			"net":       net.String(),
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "disputed line accrual reversed")
	}
	return nil
}

// AccrueSettled sweeps settled lines that never reached the ledger, e.g. lines
// imported from upstream already in the settled state. Returns how many lines
// were accrued.
func (s *service) AccrueSettled(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	lines, err := s.repo.ListSettledWithoutEarn(ctx, batchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing settled lines")
	}

	accrued := 0
	for _, line := range lines {
		line := line
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			return s.accrueLine(ctx, tx, &line)
		})
		if err != nil {
			// Unique violation means another worker accrued the line first.
			if dbpkg.IsUniqueViolation(err, "ux_vendor_ledger_earn_line") {
				continue
			}
			return accrued, err
		}
		accrued++
	}
	return accrued, nil
}

func (s *service) accrueLine(ctx context.Context, tx *gorm.DB, line *models.OrderLine) error {
	vendor, err := s.vendor.WithTx(tx).Get(ctx, line.VendorID)
	if err != nil {
		return err
	}

	breakdown, err := s.calc.SplitLine(*line, vendor)
	if err != nil {
		return err
	}

	ledgerSvc := s.ledger.WithRepo(ledger.NewRepository(tx))
	if _, err := ledgerSvc.Append(ctx, ledger.AppendInput{
		VendorID: line.VendorID,
		Kind:     enums.LedgerEntryKindEarn,
		Amount:   breakdown.Net,
		RefKind:  enums.LedgerRefKindOrderLine,
		RefID:    line.ID,
	}); err != nil {
		return err
	}

	settledAt := time.Now().UTC()
	if line.SettledAt != nil {
		settledAt = *line.SettledAt
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventEarningsAccrued,
		AggregateType: enums.AggregateVendor,
		AggregateID:   line.VendorID,
		Version:       1,
		Data: payloads.EarningsAccruedEvent{
			VendorID:  line.VendorID,
			LineID:    line.ID,
			Gross:     breakdown.Gross.String(),
			Net:       breakdown.Net.String(),
			Currency:  string(breakdown.Gross.Currency()),
			SettledAt: settledAt,
		},
	}); err != nil {
		return err
	}

	if s.logg != nil {
		fields := map[string]any{
			"line_id":   line.ID.String(),
			"vendor_id": line.VendorID.String(),
			"net":       breakdown.Net.String(),
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "vendor earnings accrued")
	}
	return nil
}
