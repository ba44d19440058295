package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"prov-go/internal/testutil"
)

func TestOperation_Fail(t *testing.T) {
	op := NewOperation("dataset add", "ds a.csv", testutil.FixedClock().Now())
	if op.Persisted() {
		t.Error("new operation Persisted() = true, want false")
	}
	op.Fail(nil)
	if op.Status != StatusSuccess {
		t.Errorf("Status after Fail(nil) = %q, want %q", op.Status, StatusSuccess)
	}
	op.Fail(errors.New("boom"))
	if op.Status != StatusError || op.Error != "boom" {
		t.Errorf("after Fail: Status=%q Error=%q, want %q %q", op.Status, op.Error, StatusError, "boom")
	}
}

func TestOperationLog(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	log := NewOperationLog(s)
	clock := testutil.FixedClock()

	seq, err := log.LastSeq(ctx)
	if err != nil {
		t.Fatalf("LastSeq() error = %v", err)
	}
	if seq != 0 {
		t.Errorf("LastSeq() on empty log = %d, want 0", seq)
	}

	// More than nine entries so numeric and lexical order would differ
	// without padding.
	for i := 0; i < 12; i++ {
		op := NewOperation("dataset create", "", clock.Now())
		if err := log.Append(ctx, op); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if op.Seq != int64(i+1) {
			t.Errorf("Append() assigned Seq %d, want %d", op.Seq, i+1)
		}
		clock.Advance(time.Minute)
	}
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	seq, err = log.LastSeq(ctx)
	if err != nil {
		t.Fatalf("LastSeq() error = %v", err)
	}
	if seq != 12 {
		t.Errorf("LastSeq() = %d, want 12", seq)
	}

	recent, err := log.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	var got []int64
	for _, op := range recent {
		got = append(got, op.Seq)
	}
	if len(got) != 3 || got[0] != 12 || got[1] != 11 || got[2] != 10 {
		t.Errorf("Recent(3) seqs = %v, want [12 11 10]", got)
	}

	all, err := log.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent(0) error = %v", err)
	}
	if len(all) != 12 {
		t.Errorf("Recent(0) returned %d operations, want 12", len(all))
	}
}
