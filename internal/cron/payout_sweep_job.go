package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/vendorpay-backend/pkg/logger"
	"github.com/angelmondragon/vendorpay-backend/pkg/metrics"
)

type payoutSweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// PayoutSweepJobParams configure the scheduled payout sweep.
type PayoutSweepJobParams struct {
	Logger  *logger.Logger
	Payouts payoutSweeper
	Metrics *metrics.JobMetrics
}

// NewPayoutSweepJob builds the job that creates one payout per vendor whose
// eligible earnings clear the minimum.
func NewPayoutSweepJob(params PayoutSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout service required")
	}
	return &payoutSweepJob{
		logg:    params.Logger,
		payouts: params.Payouts,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

type payoutSweepJob struct {
	logg    *logger.Logger
	payouts payoutSweeper
	metrics *metrics.JobMetrics
	now     func() time.Time
}

func (j *payoutSweepJob) Name() string { return "payout-sweep" }

func (j *payoutSweepJob) Run(ctx context.Context) error {
	created, err := j.payouts.Sweep(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("payout sweep: %w", err)
	}
	j.metrics.AddSwept(created)
	logCtx := j.logg.WithField(ctx, "payouts_created", created)
	j.logg.Info(logCtx, "payout sweep complete")
	return nil
}
