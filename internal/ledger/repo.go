package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/vendorpay-backend/pkg/db/models"
)

// Repository manages persistence for the append-only vendor ledger and its
// balance checkpoints.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, entry *models.LedgerEntry) error
	ListSince(ctx context.Context, vendorID uuid.UUID, afterID int64) ([]models.LedgerEntry, error)
	ListByRef(ctx context.Context, refKind string, refID uuid.UUID) ([]models.LedgerEntry, error)
	MaxEntryID(ctx context.Context, vendorID uuid.UUID) (int64, error)
	PendingEarnings(ctx context.Context, vendorID uuid.UUID, settledAfter time.Time) (decimal.Decimal, error)
	EarnedSince(ctx context.Context, vendorID uuid.UUID, since time.Time) (decimal.Decimal, error)
	GetCheckpoint(ctx context.Context, vendorID uuid.UUID) (*models.BalanceCheckpoint, error)
	UpsertCheckpoint(ctx context.Context, checkpoint *models.BalanceCheckpoint) error
	VendorIDsWithEntries(ctx context.Context) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Append(ctx context.Context, entry *models.LedgerEntry) error {
	if entry == nil {
		return errors.New("ledger entry required")
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListSince(ctx context.Context, vendorID uuid.UUID, afterID int64) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND id > ?", vendorID, afterID).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListByRef(ctx context.Context, refKind string, refID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("ref_kind = ? AND ref_id = ?", refKind, refID).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) MaxEntryID(ctx context.Context, vendorID uuid.UUID) (int64, error) {
	var maxID *int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("vendor_id = ?", vendorID).
		Select("MAX(id)").
		Scan(&maxID).Error
	if err != nil {
		return 0, err
	}
	if maxID == nil {
		return 0, nil
	}
	return *maxID, nil
}

// PendingEarnings sums earn entries whose order line settled after the cutoff,
// i.e. lines still inside the dispute window.
func (r *repository) PendingEarnings(ctx context.Context, vendorID uuid.UUID, settledAfter time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Joins("JOIN order_lines ON order_lines.id = vendor_ledger.ref_id").
		Where("vendor_ledger.vendor_id = ?", vendorID).
		Where("vendor_ledger.kind IN ? AND vendor_ledger.ref_kind = ?", []string{"earn", "earn_reversal"}, "order_line").
		Where("order_lines.settled_at > ?", settledAfter).
		Select("COALESCE(SUM(vendor_ledger.amount), 0)").
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

// EarnedSince sums earn entries recorded at or after the given instant.
func (r *repository) EarnedSince(ctx context.Context, vendorID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("vendor_id = ?", vendorID).
		Where("kind IN ?", []string{"earn", "earn_reversal"}).
		Where("created_at >= ?", since).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

func (r *repository) GetCheckpoint(ctx context.Context, vendorID uuid.UUID) (*models.BalanceCheckpoint, error) {
	var checkpoint models.BalanceCheckpoint
	err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		First(&checkpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &checkpoint, nil
}

func (r *repository) UpsertCheckpoint(ctx context.Context, checkpoint *models.BalanceCheckpoint) error {
	if checkpoint == nil {
		return errors.New("checkpoint required")
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "vendor_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"lifetime_earnings", "lifetime_paid", "reserved", "up_to_entry_id", "as_of",
			}),
		}).
		Create(checkpoint).Error
}

func (r *repository) VendorIDsWithEntries(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Distinct("vendor_id").
		Pluck("vendor_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
