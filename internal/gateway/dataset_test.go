package gateway_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"prov-go/internal/gateway"
	"prov-go/internal/model"
	"prov-go/internal/store"
	"prov-go/internal/testutil"
)

func TestDatasetGateway_AddOrRemove(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	gw := gateway.NewDatasetGateway(s)
	clock := testutil.FixedClock()

	v1 := testutil.NewDataset(t, "my-data", clock.Now())
	if err := gw.AddOrRemove(ctx, v1); err != nil {
		t.Fatalf("AddOrRemove(v1) error = %v", err)
	}
	if !v1.IsFrozen() {
		t.Error("stored dataset is not frozen")
	}

	clock.Advance(time.Hour)
	v2 := v1.Copy()
	v2.DeriveFrom(v1, nil, clock.Now())
	if err := gw.AddOrRemove(ctx, v2); err != nil {
		t.Fatalf("AddOrRemove(v2) error = %v", err)
	}

	t.Run("name resolves to the newest version", func(t *testing.T) {
		got, err := gw.GetByName(ctx, "my-data")
		if err != nil {
			t.Fatalf("GetByName() error = %v", err)
		}
		if got == nil || got.ID != v2.ID {
			t.Errorf("GetByName() = %v, want %s", got, v2.ID)
		}
	})

	t.Run("old versions stay addressable", func(t *testing.T) {
		got, err := gw.GetByID(ctx, v1.ID)
		if err != nil || got == nil {
			t.Fatalf("GetByID(v1) = %v, %v", got, err)
		}
	})

	t.Run("tails hold one version per dataset", func(t *testing.T) {
		tails, err := gw.GetProvenanceTails(ctx)
		if err != nil {
			t.Fatalf("GetProvenanceTails() error = %v", err)
		}
		if len(tails) != 1 || tails[0].ID != v2.ID {
			t.Errorf("GetProvenanceTails() = %d tails, want only %s", len(tails), v2.ID)
		}
	})

	t.Run("removal drops the dataset from the active list", func(t *testing.T) {
		clock.Advance(time.Hour)
		v3 := v2.Copy()
		v3.DeriveFrom(v2, nil, clock.Now())
		v3.Remove(clock.Now())
		if err := gw.AddOrRemove(ctx, v3); err != nil {
			t.Fatalf("AddOrRemove(v3) error = %v", err)
		}

		if got, _ := gw.GetByName(ctx, "my-data"); got != nil {
			t.Errorf("GetByName() = %s, want nil after removal", got.ID)
		}
		active, _ := gw.GetAllActiveDatasets(ctx)
		if len(active) != 0 {
			t.Errorf("GetAllActiveDatasets() = %d datasets, want 0", len(active))
		}
		tails, _ := gw.GetProvenanceTails(ctx)
		if len(tails) != 1 || tails[0].ID != v3.ID {
			t.Errorf("GetProvenanceTails() after removal does not hold the removal version")
		}
		all, _ := gw.GetAllVersions(ctx)
		if len(all) != 3 {
			t.Errorf("GetAllVersions() = %d versions, want 3", len(all))
		}
	})
}

func TestDatasetGateway_LegacyMetadataIsNormalized(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	gw := gateway.NewDatasetGateway(s)

	legacy := testutil.NewDataset(t, "legacy", testutil.FixedClock().Now())
	legacy.Slug = ""
	legacy.Name = "legacy"
	legacy.Title = "Legacy Data"
	if err := store.Save(s, gateway.ContainerDatasetVersions, model.OID(legacy.ID), legacy); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	s.Rollback() // drops the cached pointer

	got, err := gw.GetByID(ctx, legacy.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID() = %v, %v", got, err)
	}
	if got.Slug != "legacy" || got.Name != "Legacy Data" || got.Title != "" {
		t.Errorf("loaded legacy dataset = {slug %q, name %q, title %q}", got.Slug, got.Name, got.Title)
	}
}

func TestDatasetGateway_Tags(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	gw := gateway.NewDatasetGateway(s)
	clock := testutil.FixedClock()

	d := testutil.NewDataset(t, "tagged", clock.Now())
	if err := gw.AddOrRemove(ctx, d); err != nil {
		t.Fatalf("AddOrRemove() error = %v", err)
	}

	v1 := model.NewDatasetTag(d.ID, "v1", "first", clock.Now())
	clock.Advance(time.Minute)
	v2 := model.NewDatasetTag(d.ID, "v2", "", clock.Now())
	for _, tag := range []*model.DatasetTag{v2, v1} {
		if err := gw.AddTag(ctx, d, tag); err != nil {
			t.Fatalf("AddTag() error = %v", err)
		}
	}

	names := func() []string {
		tags, err := gw.GetAllTags(ctx, d)
		if err != nil {
			t.Fatalf("GetAllTags() error = %v", err)
		}
		var out []string
		for _, tag := range tags {
			out = append(out, tag.Name)
		}
		return out
	}

	if diff := cmp.Diff([]string{"v1", "v2"}, names()); diff != "" {
		t.Errorf("GetAllTags() mismatch (-want +got):\n%s", diff)
	}

	if err := gw.RemoveTag(ctx, d, "v1"); err != nil {
		t.Fatalf("RemoveTag() error = %v", err)
	}
	if diff := cmp.Diff([]string{"v2"}, names()); diff != "" {
		t.Errorf("GetAllTags() after RemoveTag mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanGateway(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	gw := gateway.NewPlanGateway(s)
	clock := testutil.FixedClock()

	p1 := testutil.NewPlan("train", clock.Now())
	if err := gw.Add(ctx, p1); err != nil {
		t.Fatalf("Add(p1) error = %v", err)
	}
	clock.Advance(time.Hour)
	p2 := p1.Derive(&testutil.Jane, clock.Now())
	if err := gw.Add(ctx, p2); err != nil {
		t.Fatalf("Add(p2) error = %v", err)
	}

	t.Run("name resolves to the newest plan", func(t *testing.T) {
		got, err := gw.GetByName(ctx, "train")
		if err != nil {
			t.Fatalf("GetByName() error = %v", err)
		}
		if got == nil || got.ID != p2.ID || got.DerivedFrom != p1.ID {
			t.Errorf("GetByName() = %+v, want %s derived from %s", got, p2.ID, p1.ID)
		}
	})

	t.Run("all plans in creation order", func(t *testing.T) {
		plans, err := gw.GetAllPlans(ctx)
		if err != nil {
			t.Fatalf("GetAllPlans() error = %v", err)
		}
		if len(plans) != 2 {
			t.Fatalf("len(GetAllPlans()) = %d, want 2", len(plans))
		}
	})

	t.Run("duplicate add conflicts", func(t *testing.T) {
		if err := gw.Add(ctx, p1.Copy()); err == nil {
			t.Error("Add() expected conflict for an existing plan")
		}
	})

	t.Run("remove drops the name index", func(t *testing.T) {
		if err := gw.Remove(ctx, p2); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		if got, _ := gw.GetByName(ctx, "train"); got != nil {
			t.Errorf("GetByName() = %s after removing the newest plan", got.ID)
		}
		if got, _ := gw.GetByID(ctx, p1.ID); got == nil {
			t.Error("GetByID(p1) = nil, older plan should remain")
		}
	})
}
