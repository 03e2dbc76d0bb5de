package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/vendorpay-backend/pkg/logger"
	"github.com/angelmondragon/vendorpay-backend/pkg/metrics"
)

type payoutReconciler interface {
	Reconcile(ctx context.Context, now time.Time) (int, error)
}

// TransferReconcileJobParams configure the stuck-transfer reconciliation.
type TransferReconcileJobParams struct {
	Logger  *logger.Logger
	Payouts payoutReconciler
	Metrics *metrics.JobMetrics
}

// NewTransferReconcileJob builds the job that verifies transfers for payouts
// stuck in processing and applies the outcome the missing webhook would have.
func NewTransferReconcileJob(params TransferReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout service required")
	}
	return &transferReconcileJob{
		logg:    params.Logger,
		payouts: params.Payouts,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

type transferReconcileJob struct {
	logg    *logger.Logger
	payouts payoutReconciler
	metrics *metrics.JobMetrics
	now     func() time.Time
}

func (j *transferReconcileJob) Name() string { return "transfer-reconcile" }

func (j *transferReconcileJob) Run(ctx context.Context) error {
	resolved, err := j.payouts.Reconcile(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("transfer reconcile: %w", err)
	}
	j.metrics.AddReconciled(resolved)
	logCtx := j.logg.WithField(ctx, "payouts_resolved", resolved)
	j.logg.Info(logCtx, "transfer reconciliation complete")
	return nil
}
