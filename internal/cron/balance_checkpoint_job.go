package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/vendorpay-backend/pkg/logger"
)

type checkpointLedger interface {
	Checkpoint(ctx context.Context, vendorID uuid.UUID, now time.Time) error
}

type checkpointVendorSource interface {
	VendorIDsWithEntries(ctx context.Context) ([]uuid.UUID, error)
}

// BalanceCheckpointJobParams configure the ledger compaction job.
type BalanceCheckpointJobParams struct {
	Logger  *logger.Logger
	Ledger  checkpointLedger
	Vendors checkpointVendorSource
}

// NewBalanceCheckpointJob builds the job that rolls each vendor's ledger tail
// into its balance checkpoint so reads stay cheap as the ledger grows.
func NewBalanceCheckpointJob(params BalanceCheckpointJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Vendors == nil {
		return nil, fmt.Errorf("vendor source required")
	}
	return &balanceCheckpointJob{
		logg:    params.Logger,
		ledger:  params.Ledger,
		vendors: params.Vendors,
		now:     time.Now,
	}, nil
}

type balanceCheckpointJob struct {
	logg    *logger.Logger
	ledger  checkpointLedger
	vendors checkpointVendorSource
	now     func() time.Time
}

func (j *balanceCheckpointJob) Name() string { return "balance-checkpoint" }

func (j *balanceCheckpointJob) Run(ctx context.Context) error {
	vendorIDs, err := j.vendors.VendorIDsWithEntries(ctx)
	if err != nil {
		return fmt.Errorf("list vendors with entries: %w", err)
	}

	now := j.now().UTC()
	checkpointed := 0
	var failures error
	for _, vendorID := range vendorIDs {
		if err := j.ledger.Checkpoint(ctx, vendorID, now); err != nil {
			logCtx := j.logg.WithField(ctx, "vendor_id", vendorID.String())
			j.logg.Error(logCtx, "checkpoint failed", err)
			failures = multierr.Append(failures, fmt.Errorf("vendor %s: %w", vendorID, err))
			continue
		}
		checkpointed++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"vendors":      len(vendorIDs),
		"checkpointed": checkpointed,
	})
	j.logg.Info(logCtx, "balance checkpoint pass complete")
	return failures
}
