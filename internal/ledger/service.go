package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendorpay-backend/internal/money"
	"github.com/angelmondragon/vendorpay-backend/pkg/db/models"
	"github.com/angelmondragon/vendorpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorpay-backend/pkg/errors"
)

// Balance is the fold of a vendor's ledger at a point in time.
//
// available + pending + reserved + lifetime_paid == lifetime_earnings
type Balance struct {
	VendorID         uuid.UUID
	Currency         enums.Currency
	Available        money.Money
	Pending          money.Money
	Reserved         money.Money
	LifetimeEarnings money.Money
	LifetimePaid     money.Money
	AsOf             time.Time
}

// Service defines operations over the append-only vendor ledger.
type Service interface {
	Append(ctx context.Context, input AppendInput) (*models.LedgerEntry, error)
	Balance(ctx context.Context, vendorID uuid.UUID, currency enums.Currency, now time.Time) (*Balance, error)
	EarnedSince(ctx context.Context, vendorID uuid.UUID, currency enums.Currency, since time.Time) (money.Money, error)
	Checkpoint(ctx context.Context, vendorID uuid.UUID, now time.Time) error
	WithRepo(repo Repository) Service
}

// AppendInput captures the immutable data a ledger entry requires.
type AppendInput struct {
	VendorID uuid.UUID
	Kind     enums.LedgerEntryKind
	Amount   money.Money
	RefKind  enums.LedgerRefKind
	RefID    uuid.UUID
}

type service struct {
	repo          Repository
	disputeWindow time.Duration
}

// ServiceParams wires the ledger service dependencies.
type ServiceParams struct {
	Repo          Repository
	DisputeWindow time.Duration
}

// NewService builds a ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repository required")
	}
	if params.DisputeWindow < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "dispute window must be non-negative")
	}
	return &service{repo: params.Repo, disputeWindow: params.DisputeWindow}, nil
}

// WithRepo returns a service bound to a transactional repository. The dispute
// window carries over.
func (s *service) WithRepo(repo Repository) Service {
	if repo == nil {
		return s
	}
	return &service{repo: repo, disputeWindow: s.disputeWindow}
}

// Append validates the sign convention for the entry kind and persists it.
// Credits (earn, release, payout_release) must be positive; debits (reserve,
// payout_commit, earn_reversal) must be negative.
func (s *service) Append(ctx context.Context, input AppendInput) (*models.LedgerEntry, error) {
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	if input.RefID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ref id is required")
	}
	if !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid ledger entry kind").WithDetails(map[string]any{"kind": string(input.Kind)})
	}
	if !input.RefKind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid ledger ref kind").WithDetails(map[string]any{"ref_kind": string(input.RefKind)})
	}
	if input.Amount.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ledger entries cannot be zero")
	}

	switch input.Kind {
	case enums.LedgerEntryKindEarn, enums.LedgerEntryKindRelease, enums.LedgerEntryKindPayoutRelease:
		if input.Amount.IsNegative() {
			return nil, signError(input.Kind, "positive")
		}
	case enums.LedgerEntryKindReserve, enums.LedgerEntryKindPayoutCommit, enums.LedgerEntryKindEarnReversal:
		if input.Amount.IsPositive() {
			return nil, signError(input.Kind, "negative")
		}
	}

	entry := &models.LedgerEntry{
		VendorID: input.VendorID,
		Kind:     input.Kind,
		Amount:   input.Amount.Amount(),
		Currency: input.Amount.Currency(),
		RefKind:  input.RefKind,
		RefID:    input.RefID,
	}
	if err := s.repo.Append(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "appending ledger entry")
	}

	// Every write must leave available non-negative; an entry that would
	// overdraw the vendor aborts the surrounding transaction.
	balance, err := s.Balance(ctx, input.VendorID, input.Amount.Currency(), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if balance.Available.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeInvariantViolation, "ledger write would drive available negative").
			WithDetails(map[string]any{
				"vendor_id": input.VendorID.String(),
				"kind":      string(input.Kind),
				"available": balance.Available.String(),
			})
	}
	return entry, nil
}

func signError(kind enums.LedgerEntryKind, want string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "ledger entry has the wrong sign").WithDetails(map[string]any{
		"kind": string(kind),
		"want": want,
	})
}

// Balance folds the checkpoint plus the entry tail into the current balance.
// Pending is derived from earn entries whose line is still inside the dispute
// window; it is part of lifetime earnings but not yet withdrawable.
func (s *service) Balance(ctx context.Context, vendorID uuid.UUID, currency enums.Currency, now time.Time) (*Balance, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}

	lifetimeEarnings := decimal.Zero
	lifetimePaid := decimal.Zero
	reserved := decimal.Zero
	afterID := int64(0)

	checkpoint, err := s.repo.GetCheckpoint(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading balance checkpoint")
	}
	if checkpoint != nil {
		lifetimeEarnings = checkpoint.LifetimeEarnings
		lifetimePaid = checkpoint.LifetimePaid
		reserved = checkpoint.Reserved
		afterID = checkpoint.UpToEntryID
	}

	tail, err := s.repo.ListSince(ctx, vendorID, afterID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading ledger tail")
	}
	lifetimeEarnings, lifetimePaid, reserved = foldEntries(lifetimeEarnings, lifetimePaid, reserved, tail)

	pending := decimal.Zero
	if s.disputeWindow > 0 {
		cutoff := now.Add(-s.disputeWindow)
		pending, err = s.repo.PendingEarnings(ctx, vendorID, cutoff)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deriving pending earnings")
		}
	}

	available := lifetimeEarnings.Sub(reserved).Sub(lifetimePaid).Sub(pending)

	return buildBalance(vendorID, currency, now, available, pending, reserved, lifetimeEarnings, lifetimePaid)
}

// EarnedSince reports how much the vendor earned at or after the given instant.
func (s *service) EarnedSince(ctx context.Context, vendorID uuid.UUID, currency enums.Currency, since time.Time) (money.Money, error) {
	sum, err := s.repo.EarnedSince(ctx, vendorID, since)
	if err != nil {
		return money.Money{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "summing period earnings")
	}
	return money.New(sum, currency)
}

// foldEntries applies the per-kind fold:
//
//	earn           +a  -> lifetime_earnings += a
//	earn_reversal  -a  -> lifetime_earnings -= a
//	reserve        -a  -> reserved += a
//	release        +a  -> reserved -= a
//	payout_commit  -a  -> reserved -= a, lifetime_paid += a
//	payout_release +a  -> lifetime_paid -= a
func foldEntries(lifetimeEarnings, lifetimePaid, reserved decimal.Decimal, entries []models.LedgerEntry) (decimal.Decimal, decimal.Decimal, decimal.Decimal) {
	for _, entry := range entries {
		switch entry.Kind {
		case enums.LedgerEntryKindEarn, enums.LedgerEntryKindEarnReversal:
			lifetimeEarnings = lifetimeEarnings.Add(entry.Amount)
		case enums.LedgerEntryKindReserve:
			reserved = reserved.Sub(entry.Amount)
		case enums.LedgerEntryKindRelease:
			reserved = reserved.Sub(entry.Amount)
		case enums.LedgerEntryKindPayoutCommit:
			reserved = reserved.Add(entry.Amount)
			lifetimePaid = lifetimePaid.Sub(entry.Amount)
		case enums.LedgerEntryKindPayoutRelease:
			lifetimePaid = lifetimePaid.Sub(entry.Amount)
		}
	}
	return lifetimeEarnings, lifetimePaid, reserved
}

func buildBalance(vendorID uuid.UUID, currency enums.Currency, now time.Time, available, pending, reserved, lifetimeEarnings, lifetimePaid decimal.Decimal) (*Balance, error) {
	availableM, err := money.New(available, currency)
	if err != nil {
		return nil, err
	}
	pendingM, err := money.New(pending, currency)
	if err != nil {
		return nil, err
	}
	reservedM, err := money.New(reserved, currency)
	if err != nil {
		return nil, err
	}
	earningsM, err := money.New(lifetimeEarnings, currency)
	if err != nil {
		return nil, err
	}
	paidM, err := money.New(lifetimePaid, currency)
	if err != nil {
		return nil, err
	}
	return &Balance{
		VendorID:         vendorID,
		Currency:         currency,
		Available:        availableM,
		Pending:          pendingM,
		Reserved:         reservedM,
		LifetimeEarnings: earningsM,
		LifetimePaid:     paidM,
		AsOf:             now,
	}, nil
}

// Checkpoint advances the vendor's balance checkpoint to the newest entry so
// later reads fold a shorter tail.
func (s *service) Checkpoint(ctx context.Context, vendorID uuid.UUID, now time.Time) error {
	if vendorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}

	lifetimeEarnings := decimal.Zero
	lifetimePaid := decimal.Zero
	reserved := decimal.Zero
	afterID := int64(0)

	checkpoint, err := s.repo.GetCheckpoint(ctx, vendorID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading balance checkpoint")
	}
	if checkpoint != nil {
		lifetimeEarnings = checkpoint.LifetimeEarnings
		lifetimePaid = checkpoint.LifetimePaid
		reserved = checkpoint.Reserved
		afterID = checkpoint.UpToEntryID
	}

	tail, err := s.repo.ListSince(ctx, vendorID, afterID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading ledger tail")
	}
	if len(tail) == 0 {
		return nil
	}
	lifetimeEarnings, lifetimePaid, reserved = foldEntries(lifetimeEarnings, lifetimePaid, reserved, tail)

	next := &models.BalanceCheckpoint{
		VendorID:         vendorID,
		LifetimeEarnings: lifetimeEarnings,
		LifetimePaid:     lifetimePaid,
		Reserved:         reserved,
		UpToEntryID:      tail[len(tail)-1].ID,
		AsOf:             now,
	}
	if err := s.repo.UpsertCheckpoint(ctx, next); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving balance checkpoint")
	}
	return nil
}
