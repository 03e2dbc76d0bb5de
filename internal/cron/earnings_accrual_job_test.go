package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/vendorpay-backend/pkg/logger"
)

type fakeAccruer struct {
	accrued   int
	err       error
	batchSize int
}

func (f *fakeAccruer) AccrueSettled(_ context.Context, batchSize int) (int, error) {
	f.batchSize = batchSize
	if f.err != nil {
		return 0, f.err
	}
	return f.accrued, nil
}

func TestEarningsAccrualJobUsesDefaultBatchSize(t *testing.T) {
	accruer := &fakeAccruer{accrued: 4}
	job, err := NewEarningsAccrualJob(EarningsAccrualJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Settlement: accruer,
	})
	if err != nil {
		t.Fatalf("NewEarningsAccrualJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if accruer.batchSize != defaultAccrualBatchSize {
		t.Fatalf("expected batch size %d, got %d", defaultAccrualBatchSize, accruer.batchSize)
	}
}

func TestEarningsAccrualJobPropagatesError(t *testing.T) {
	job, err := NewEarningsAccrualJob(EarningsAccrualJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Settlement: &fakeAccruer{err: errors.New("boom")},
		BatchSize:  50,
	})
	if err != nil {
		t.Fatalf("NewEarningsAccrualJob: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
