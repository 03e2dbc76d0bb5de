package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendorpay-backend/pkg/db/models"
)

// Repository reads the order settlement view. Order lines are external facts;
// this subsystem only observes them and flips settlement bookkeeping.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetLine(ctx context.Context, lineID uuid.UUID) (*models.OrderLine, error)
	ListSettledWithoutEarn(ctx context.Context, limit int) ([]models.OrderLine, error)
	ListEligible(ctx context.Context, vendorID uuid.UUID, settledBefore time.Time) ([]models.OrderLine, error)
	ListEligibleByIDs(ctx context.Context, vendorID uuid.UUID, lineIDs []uuid.UUID, settledBefore time.Time) ([]models.OrderLine, error)
	PendingStats(ctx context.Context, vendorID uuid.UUID, settledAfter time.Time) (*PendingStats, error)
	MarkSettled(ctx context.Context, lineID uuid.UUID, settledAt time.Time) error
	MarkDisputed(ctx context.Context, lineID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a settlement repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetLine(ctx context.Context, lineID uuid.UUID) (*models.OrderLine, error) {
	var line models.OrderLine
	if err := r.db.WithContext(ctx).Where("id = ?", lineID).First(&line).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

// ListSettledWithoutEarn returns settled lines the ledger has not accrued yet.
func (r *repository) ListSettledWithoutEarn(ctx context.Context, limit int) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	err := r.db.WithContext(ctx).
		Where("settlement_state = ?", "settled").
		Where("NOT EXISTS (SELECT 1 FROM vendor_ledger WHERE vendor_ledger.ref_id = order_lines.id AND vendor_ledger.kind = ? AND vendor_ledger.ref_kind = ?)", "earn", "order_line").
		Order("settled_at ASC").
		Limit(limit).
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// ListEligible returns settled, dispute-cleared lines not yet allocated to a
// live payout. Callers hold the vendor row lock; the unique index on
// payout_items.line_id backstops any race that slips through.
func (r *repository) ListEligible(ctx context.Context, vendorID uuid.UUID, settledBefore time.Time) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Where("settlement_state = ?", "settled").
		Where("settled_at <= ?", settledBefore).
		Where("NOT EXISTS (SELECT 1 FROM payout_items WHERE payout_items.line_id = order_lines.id AND payout_items.released_at IS NULL)").
		Where("EXISTS (SELECT 1 FROM vendor_ledger WHERE vendor_ledger.ref_id = order_lines.id AND vendor_ledger.kind = ? AND vendor_ledger.ref_kind = ?)", "earn", "order_line").
		Order("settled_at ASC").
		Order("id ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// ListEligibleByIDs narrows eligibility to an explicit set of requested lines.
func (r *repository) ListEligibleByIDs(ctx context.Context, vendorID uuid.UUID, lineIDs []uuid.UUID, settledBefore time.Time) ([]models.OrderLine, error) {
	if len(lineIDs) == 0 {
		return nil, nil
	}
	var lines []models.OrderLine
	err := r.db.WithContext(ctx).
		Where("id IN ?", lineIDs).
		Where("vendor_id = ?", vendorID).
		Where("settlement_state = ?", "settled").
		Where("settled_at <= ?", settledBefore).
		Where("NOT EXISTS (SELECT 1 FROM payout_items WHERE payout_items.line_id = order_lines.id AND payout_items.released_at IS NULL)").
		Where("EXISTS (SELECT 1 FROM vendor_ledger WHERE vendor_ledger.ref_id = order_lines.id AND vendor_ledger.kind = ? AND vendor_ledger.ref_kind = ?)", "earn", "order_line").
		Order("settled_at ASC").
		Order("id ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// PendingStats counts the lines still inside the dispute window and their
// accrued net value.
type PendingStats struct {
	Count int64
	Value decimal.Decimal
}

// PendingStats aggregates earn entries for lines that settled after the cutoff.
func (r *repository) PendingStats(ctx context.Context, vendorID uuid.UUID, settledAfter time.Time) (*PendingStats, error) {
	var row struct {
		Count int64
		Value decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Model(&models.OrderLine{}).
		Joins("JOIN vendor_ledger ON vendor_ledger.ref_id = order_lines.id AND vendor_ledger.kind = ? AND vendor_ledger.ref_kind = ?", "earn", "order_line").
		Where("order_lines.vendor_id = ?", vendorID).
		Where("order_lines.settlement_state = ?", "settled").
		Where("order_lines.settled_at > ?", settledAfter).
		Select("COUNT(order_lines.id) AS count, COALESCE(SUM(vendor_ledger.amount), 0) AS value").
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &PendingStats{Count: row.Count, Value: row.Value}, nil
}

func (r *repository) MarkSettled(ctx context.Context, lineID uuid.UUID, settledAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderLine{}).
		Where("id = ? AND settlement_state = ?", lineID, "unsettled").
		Updates(map[string]any{
			"settlement_state": "settled",
			"settled_at":       settledAt,
		}).Error
}

func (r *repository) MarkDisputed(ctx context.Context, lineID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderLine{}).
		Where("id = ?", lineID).
		Update("settlement_state", "disputed").Error
}
