package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/vendorpay-backend/pkg/logger"
)

const defaultAccrualBatchSize = 200

type settlementAccruer interface {
	AccrueSettled(ctx context.Context, batchSize int) (int, error)
}

// EarningsAccrualJobParams configure the accrual backfill job.
type EarningsAccrualJobParams struct {
	Logger     *logger.Logger
	Settlement settlementAccruer
	BatchSize  int
}

// NewEarningsAccrualJob builds the job that picks up settled lines whose earn
// entry never landed, typically after a crash between settlement and accrual.
func NewEarningsAccrualJob(params EarningsAccrualJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Settlement == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultAccrualBatchSize
	}
	return &earningsAccrualJob{
		logg:       params.Logger,
		settlement: params.Settlement,
		batchSize:  batchSize,
	}, nil
}

type earningsAccrualJob struct {
	logg       *logger.Logger
	settlement settlementAccruer
	batchSize  int
}

func (j *earningsAccrualJob) Name() string { return "earnings-accrual" }

func (j *earningsAccrualJob) Run(ctx context.Context) error {
	accrued, err := j.settlement.AccrueSettled(ctx, j.batchSize)
	if err != nil {
		return fmt.Errorf("earnings accrual: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "lines_accrued", accrued)
	j.logg.Info(logCtx, "earnings accrual pass complete")
	return nil
}
