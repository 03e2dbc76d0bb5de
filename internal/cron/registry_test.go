package cron

import (
	"context"
	"testing"
)

type noopJob struct {
	name string
}

func (j *noopJob) Name() string              { return j.name }
func (j *noopJob) Run(context.Context) error { return nil }

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	registry := NewRegistry()
	sweep := &noopJob{name: "payout-sweep"}
	checkpoint := &noopJob{name: "balance-checkpoint"}
	registry.Register(sweep)
	registry.Register(checkpoint)

	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0] != sweep || jobs[1] != checkpoint {
		t.Fatalf("jobs returned out of order")
	}

	// Jobs must hand out a copy so a caller cannot mutate the registry.
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}
