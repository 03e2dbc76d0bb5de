package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vendorpay-backend/pkg/logger"
)

type fakeCheckpointLedger struct {
	checkpointed []uuid.UUID
	failFor      uuid.UUID
}

func (f *fakeCheckpointLedger) Checkpoint(_ context.Context, vendorID uuid.UUID, _ time.Time) error {
	if vendorID == f.failFor {
		return errors.New("boom")
	}
	f.checkpointed = append(f.checkpointed, vendorID)
	return nil
}

type fakeVendorSource struct {
	ids []uuid.UUID
	err error
}

func (f *fakeVendorSource) VendorIDsWithEntries(context.Context) ([]uuid.UUID, error) {
	return f.ids, f.err
}

func TestBalanceCheckpointJobCheckpointsEachVendor(t *testing.T) {
	vendorA := uuid.New()
	vendorB := uuid.New()
	ledger := &fakeCheckpointLedger{}
	job := newCheckpointJob(t, ledger, &fakeVendorSource{ids: []uuid.UUID{vendorA, vendorB}})

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ledger.checkpointed) != 2 {
		t.Fatalf("expected 2 checkpoints, got %d", len(ledger.checkpointed))
	}
}

func TestBalanceCheckpointJobContinuesPastVendorFailure(t *testing.T) {
	vendorA := uuid.New()
	vendorB := uuid.New()
	ledger := &fakeCheckpointLedger{failFor: vendorA}
	job := newCheckpointJob(t, ledger, &fakeVendorSource{ids: []uuid.UUID{vendorA, vendorB}})

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected aggregated failure to surface")
	}
	if len(ledger.checkpointed) != 1 || ledger.checkpointed[0] != vendorB {
		t.Fatalf("expected only the second vendor checkpointed, got %v", ledger.checkpointed)
	}
}

func TestBalanceCheckpointJobPropagatesListError(t *testing.T) {
	job := newCheckpointJob(t, &fakeCheckpointLedger{}, &fakeVendorSource{err: errors.New("boom")})

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func newCheckpointJob(t *testing.T, ledger *fakeCheckpointLedger, vendors *fakeVendorSource) Job {
	t.Helper()
	job, err := NewBalanceCheckpointJob(BalanceCheckpointJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Ledger:  ledger,
		Vendors: vendors,
	})
	if err != nil {
		t.Fatalf("NewBalanceCheckpointJob: %v", err)
	}
	return job
}
