package payouts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendorpay-backend/pkg/db/models"
	"github.com/angelmondragon/vendorpay-backend/pkg/enums"
	"github.com/angelmondragon/vendorpay-backend/pkg/pagination"
)

// Repository manages payout rows, their line allocations, and the gateway
// event dedupe table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.Payout) error
	CreateItems(ctx context.Context, items []models.PayoutItem) error
	Get(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	GetByTransferID(ctx context.Context, transferID string) (*models.Payout, error)
	List(ctx context.Context, filter ListFilter) ([]models.Payout, error)
	ListStuckProcessing(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Payout, error)
	Transition(ctx context.Context, payoutID uuid.UUID, from, to enums.PayoutStatus, updates map[string]any) (bool, error)
	ReleaseItems(ctx context.Context, payoutID uuid.UUID) error
	RecordGatewayEvent(ctx context.Context, event *models.GatewayEvent) error
}

// ListFilter narrows payout listings. Cursor follows (created_at, id)
// keyset pagination, newest first.
type ListFilter struct {
	VendorID uuid.UUID
	Status   *enums.PayoutStatus
	Limit    int
	Cursor   *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payout repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	if payout == nil {
		return errors.New("payout required")
	}
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) CreateItems(ctx context.Context, items []models.PayoutItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) Get(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", payoutID).
		First(&payout).Error
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) GetByTransferID(ctx context.Context, transferID string) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.WithContext(ctx).
		Where("external_transfer_id = ?", transferID).
		First(&payout).Error
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Payout, error) {
	query := r.db.WithContext(ctx).Model(&models.Payout{})
	if filter.VendorID != uuid.Nil {
		query = query.Where("vendor_id = ?", filter.VendorID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID,
		)
	}

	var rows []models.Payout
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(filter.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListStuckProcessing returns processing payouts with a transfer id whose last
// update is older than the cutoff. These are candidates for gateway
// reconciliation when neither the webhook nor the submission resolved them.
func (r *repository) ListStuckProcessing(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Payout, error) {
	var rows []models.Payout
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.PayoutStatusProcessing).
		Where("external_transfer_id IS NOT NULL").
		Where("updated_at < ?", updatedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Transition performs a guarded status move. It reports false when the row was
// not in the expected source state, which callers treat as a lost race or an
// illegal transition.
func (r *repository) Transition(ctx context.Context, payoutID uuid.UUID, from, to enums.PayoutStatus, updates map[string]any) (bool, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	updates["updated_at"] = time.Now().UTC()

	result := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status = ?", payoutID, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ReleaseItems frees a failed payout's line allocations while keeping the
// item rows as the record of what the payout contained.
func (r *repository) ReleaseItems(ctx context.Context, payoutID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.PayoutItem{}).
		Where("payout_id = ? AND released_at IS NULL", payoutID).
		Update("released_at", time.Now().UTC()).Error
}

func (r *repository) RecordGatewayEvent(ctx context.Context, event *models.GatewayEvent) error {
	if event == nil {
		return errors.New("gateway event required")
	}
	return r.db.WithContext(ctx).Create(event).Error
}
