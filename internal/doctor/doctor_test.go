package doctor_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"prov-go/internal/doctor"
	"prov-go/internal/gateway"
	"prov-go/internal/model"
	"prov-go/internal/prov"
	"prov-go/internal/store"
	"prov-go/internal/testutil"
)

type env struct {
	store      *store.Store
	clock      *testutil.Clock
	activities *gateway.ActivityGateway
	datasets   *gateway.DatasetGateway
	plans      *gateway.PlanGateway
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s := testutil.NewTestStore(t)
	clock := testutil.FixedClock()
	return &env{
		store:      s,
		clock:      clock,
		activities: gateway.NewActivityGateway(s, clock),
		datasets:   gateway.NewDatasetGateway(s),
		plans:      gateway.NewPlanGateway(s),
	}
}

func (e *env) gateways() doctor.Gateways {
	return doctor.Gateways{Activities: e.activities, Datasets: e.datasets, Plans: e.plans}
}

func (e *env) addPlan(t *testing.T, p *model.Plan) *model.Plan {
	t.Helper()
	if err := e.plans.Add(context.Background(), p); err != nil {
		t.Fatalf("plans.Add() error = %v", err)
	}
	return p
}

func (e *env) addActivity(t *testing.T, a *model.Activity) *model.Activity {
	t.Helper()
	if err := e.activities.Add(context.Background(), a); err != nil {
		t.Fatalf("activities.Add() error = %v", err)
	}
	return a
}

func (e *env) addDataset(t *testing.T, d *model.Dataset) *model.Dataset {
	t.Helper()
	if err := e.datasets.AddOrRemove(context.Background(), d); err != nil {
		t.Fatalf("AddOrRemove() error = %v", err)
	}
	return d
}

// runCheck runs c without fixing, with fixing, and without fixing again,
// and returns the three results.
func runCheck(t *testing.T, c doctor.Check) (before, fixed, after doctor.Result) {
	t.Helper()
	ctx := context.Background()

	var err error
	if before, err = c.Run(ctx, false); err != nil {
		t.Fatalf("%s: Run(false) error = %v", c.Name(), err)
	}
	if fixed, err = c.Run(ctx, true); err != nil {
		t.Fatalf("%s: Run(true) error = %v", c.Name(), err)
	}
	if after, err = c.Run(ctx, false); err != nil {
		t.Fatalf("%s: Run(false) after fix error = %v", c.Name(), err)
	}
	return before, fixed, after
}

func TestActivityDates(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	planCreated := e.clock.Now()
	plan := e.addPlan(t, testutil.NewPlan("train", planCreated))

	ok := testutil.NewActivity(t, plan, planCreated.Add(time.Hour), []string{"a"}, []string{"b"})
	e.addActivity(t, ok)

	bad := testutil.NewActivity(t, plan, planCreated, []string{"c"}, []string{"d"})
	invalidated := planCreated.Add(-3 * time.Hour)
	bad.SetTimes(planCreated.Add(-time.Hour), planCreated.Add(-2*time.Hour), &invalidated)
	e.addActivity(t, bad)

	before, fixed, after := runCheck(t, doctor.ActivityDates(e.activities, e.plans))

	if before.Valid {
		t.Error("check reported valid before the fix")
	}
	if diff := cmp.Diff([]string{bad.ID}, before.Problems); diff != "" {
		t.Errorf("Problems mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(before.Report, "prov doctor --fix") {
		t.Errorf("Report = %q, want a hint to fix", before.Report)
	}
	if !fixed.Valid {
		t.Error("check reported invalid after fixing")
	}
	if !after.Valid || len(after.Problems) != 0 {
		t.Errorf("rerun = %+v, want valid", after)
	}

	got, _ := e.activities.GetByID(ctx, bad.ID)
	if got.StartedAtTime.Before(plan.DateCreated) {
		t.Errorf("StartedAtTime = %v, before plan creation %v", got.StartedAtTime, plan.DateCreated)
	}
	if got.EndedAtTime.Before(got.StartedAtTime) {
		t.Errorf("EndedAtTime = %v, before StartedAtTime %v", got.EndedAtTime, got.StartedAtTime)
	}
	if got.InvalidatedAt == nil || got.InvalidatedAt.Before(got.EndedAtTime) {
		t.Errorf("InvalidatedAt = %v, before EndedAtTime %v", got.InvalidatedAt, got.EndedAtTime)
	}

	untouched, _ := e.activities.GetByID(ctx, ok.ID)
	if !untouched.StartedAtTime.Equal(planCreated.Add(time.Hour)) {
		t.Errorf("valid activity was changed: started %v", untouched.StartedAtTime)
	}
}

func TestActivityIDs(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	plan := e.addPlan(t, testutil.NewPlan("train", e.clock.Now()))

	producer := testutil.NewActivity(t, plan, e.clock.Now(), []string{"raw"}, []string{"clean"})
	producer.ChangeID("https://localhost/activities/legacy-1")
	e.addActivity(t, producer)
	consumer := e.addActivity(t, testutil.NewActivity(t, plan, e.clock.Now().Add(time.Hour), []string{"clean"}, []string{"model"}))

	before, _, after := runCheck(t, doctor.ActivityIDs(e.activities))
	if diff := cmp.Diff([]string{"https://localhost/activities/legacy-1"}, before.Problems); diff != "" {
		t.Errorf("Problems mismatch (-want +got):\n%s", diff)
	}
	if !after.Valid {
		t.Errorf("rerun = %+v, want valid", after)
	}

	if old, _ := e.activities.GetByID(ctx, "https://localhost/activities/legacy-1"); old != nil {
		t.Error("legacy activity is still stored")
	}
	moved, err := e.activities.GetByID(ctx, "/activities/legacy-1")
	if err != nil || moved == nil {
		t.Fatalf("GetByID(/activities/legacy-1) = %v, %v", moved, err)
	}
	for _, u := range moved.Usages {
		if !strings.HasPrefix(u.ID, "/activities/legacy-1/") {
			t.Errorf("usage id %s was not moved", u.ID)
		}
	}
	if moved.Association.ID != model.AssociationID(moved.ID) {
		t.Errorf("association id = %s, want it scoped under %s", moved.Association.ID, moved.ID)
	}

	up, err := e.activities.GetUpstreamActivities(ctx, consumer, 0)
	if err != nil {
		t.Fatalf("GetUpstreamActivities() error = %v", err)
	}
	if len(up) != 1 || up[0].ID != moved.ID {
		t.Errorf("consumer upstream = %d activities, want only %s", len(up), moved.ID)
	}
}

func TestActivityCatalog(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	check := doctor.ActivityCatalog(e.activities)

	t.Run("no activities yet", func(t *testing.T) {
		res, err := check.Run(ctx, false)
		if err != nil || !res.Valid {
			t.Errorf("Run() = %+v, %v; want valid", res, err)
		}
	})

	plan := e.addPlan(t, testutil.NewPlan("train", e.clock.Now()))
	a := e.addActivity(t, testutil.NewActivity(t, plan, e.clock.Now(), []string{"raw"}, []string{"clean"}))
	b := e.addActivity(t, testutil.NewActivity(t, plan, e.clock.Now().Add(time.Minute), []string{"clean"}, []string{"model"}))
	if err := e.store.Clear(ctx, gateway.ContainerActivityCatalog); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	before, _, after := runCheck(t, check)
	if before.Valid {
		t.Error("empty catalog reported valid")
	}
	if !after.Valid {
		t.Errorf("rerun = %+v, want valid", after)
	}
	down, _ := e.activities.GetDownstreamActivities(ctx, a, 0)
	if len(down) != 1 || down[0].ID != b.ID {
		t.Errorf("downstream after rebuild = %d activities, want %s", len(down), b.ID)
	}
}

func TestActivityCatalog_PurgedRecord(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	check := doctor.ActivityCatalog(e.activities)

	plan := e.addPlan(t, testutil.NewPlan("train", e.clock.Now()))
	producer := e.addActivity(t, testutil.NewActivity(t, plan, e.clock.Now(), []string{"raw"}, []string{"out1"}))
	consumer := e.addActivity(t, testutil.NewActivity(t, plan, e.clock.Now().Add(time.Minute), []string{"out1"}, []string{"model"}))
	if err := e.store.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	// The record goes away while its index and catalog entries stay behind.
	e.store.Delete(gateway.ContainerActivities, model.OID(producer.ID))
	if _, err := e.activities.GetUpstreamActivities(ctx, consumer, 0); err == nil {
		t.Fatal("GetUpstreamActivities() succeeded with a dangling upstream")
	}

	before, fixed, after := runCheck(t, check)
	if before.Valid {
		t.Error("dangling index entries reported valid")
	}
	want := []string{producer.ID + " is indexed but not a live activity"}
	if diff := cmp.Diff(want, before.Problems); diff != "" {
		t.Errorf("Problems mismatch (-want +got):\n%s", diff)
	}
	if !fixed.Valid {
		t.Error("check reported invalid after fixing")
	}
	if !after.Valid || len(after.Problems) != 0 {
		t.Errorf("rerun = %+v, want valid", after)
	}

	up, err := e.activities.GetUpstreamActivities(ctx, consumer, 0)
	if err != nil {
		t.Fatalf("GetUpstreamActivities() after rebuild error = %v", err)
	}
	if len(up) != 0 {
		t.Errorf("upstream after rebuild = %d activities, want none", len(up))
	}
}

func TestDatasetDerivation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	// Two branches each derived a new version from v0 and were merged.
	v0 := e.addDataset(t, testutil.NewDataset(t, "ds", e.clock.Now()))
	e.clock.Advance(time.Hour)
	left := v0.Copy()
	left.DeriveFrom(v0, nil, e.clock.Now())
	e.addDataset(t, left)
	e.clock.Advance(time.Hour)
	right := v0.Copy()
	right.DeriveFrom(v0, nil, e.clock.Now())
	e.addDataset(t, right)

	// A version whose parent was never stored.
	orphan := testutil.NewDataset(t, "orphan", e.clock.Now())
	orphan.DerivedFrom = "/datasets/missing"
	e.addDataset(t, orphan)

	before, fixed, after := runCheck(t, doctor.DatasetDerivation(e.datasets))

	if before.Valid || len(before.Problems) != 2 {
		t.Fatalf("before fix = %+v, want two problems", before)
	}
	if !strings.Contains(before.Report, left.ID) || !strings.Contains(before.Report, orphan.ID) {
		t.Errorf("Report = %q, want %s and %s", before.Report, left.ID, orphan.ID)
	}
	if strings.Contains(before.Report, right.ID+" (") {
		t.Errorf("Report flags the current version %s", right.ID)
	}
	if !fixed.Valid || !after.Valid {
		t.Errorf("after fix = %+v / %+v, want valid", fixed, after)
	}

	for _, tt := range []struct {
		id   string
		want string
	}{
		{left.ID, ""},
		{orphan.ID, ""},
		{right.ID, v0.ID},
	} {
		got, _ := e.datasets.GetByID(ctx, tt.id)
		if got.DerivedFrom != tt.want {
			t.Errorf("%s DerivedFrom = %q, want %q", tt.id, got.DerivedFrom, tt.want)
		}
	}
}

func TestDatasetDates(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	d := testutil.NewDataset(t, "ds", e.clock.Now(), testutil.NewDatasetFile("data/ds/a.txt", "a", e.clock.Now()))
	d.DateModified = e.clock.Now().Add(-time.Hour)
	removed := e.clock.Now().Add(-2 * time.Hour)
	d.DatasetFiles[0].DateRemoved = &removed
	e.addDataset(t, d)

	before, _, after := runCheck(t, doctor.DatasetDates(e.datasets))
	if len(before.Problems) != 2 {
		t.Errorf("Problems = %v, want two", before.Problems)
	}
	if !after.Valid {
		t.Errorf("rerun = %+v, want valid", after)
	}
	got, _ := e.datasets.GetByID(ctx, d.ID)
	if got.DateModified.Before(*got.DateCreated) {
		t.Errorf("DateModified = %v, before DateCreated %v", got.DateModified, got.DateCreated)
	}
}

func TestDatasetDatadir(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	inside := testutil.NewDatasetFile("data/ds/a.txt", "a", e.clock.Now())
	outside := testutil.NewDatasetFile("elsewhere/b.txt", "b", e.clock.Now())
	external := testutil.NewDatasetFile("/mnt/c.txt", "c", e.clock.Now())
	external.IsExternal = true
	e.addDataset(t, testutil.NewDataset(t, "ds", e.clock.Now(), inside, outside, external))

	for _, fix := range []bool{false, true} {
		res, err := doctor.DatasetDatadir(e.datasets).Run(ctx, fix)
		if err != nil {
			t.Fatalf("Run(%v) error = %v", fix, err)
		}
		if res.Valid || !res.HasManualFix {
			t.Errorf("Run(%v) = %+v, want an invalid result with a manual fix", fix, res)
		}
		if diff := cmp.Diff([]string{"ds: elsewhere/b.txt is outside data/ds"}, res.Problems); diff != "" {
			t.Errorf("Problems mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestPlanIDs(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	legacy := testutil.NewPlan("train", e.clock.Now())
	legacy.ChangeID("https://localhost/plans/old-train")
	e.addPlan(t, legacy)
	a := e.addActivity(t, testutil.NewActivity(t, legacy, e.clock.Now(), []string{"a"}, []string{"b"}))

	e.clock.Advance(time.Hour)
	derived := e.addPlan(t, legacy.Derive(nil, e.clock.Now()))

	before, _, after := runCheck(t, doctor.PlanIDs(e.plans, e.activities))
	if diff := cmp.Diff([]string{"https://localhost/plans/old-train"}, before.Problems); diff != "" {
		t.Errorf("Problems mismatch (-want +got):\n%s", diff)
	}
	if !after.Valid {
		t.Errorf("rerun = %+v, want valid", after)
	}

	moved, _ := e.plans.GetByID(ctx, "/plans/old-train")
	if moved == nil {
		t.Fatal("plan was not moved to /plans/old-train")
	}
	for _, p := range moved.Parameters {
		if !strings.HasPrefix(p.ID, moved.ID+"/") {
			t.Errorf("parameter id %s not scoped under %s", p.ID, moved.ID)
		}
	}
	gotA, _ := e.activities.GetByID(ctx, a.ID)
	if gotA.Association.PlanID != moved.ID {
		t.Errorf("activity plan = %s, want %s", gotA.Association.PlanID, moved.ID)
	}
	gotDerived, _ := e.plans.GetByID(ctx, derived.ID)
	if gotDerived.DerivedFrom != moved.ID {
		t.Errorf("derived plan DerivedFrom = %s, want %s", gotDerived.DerivedFrom, moved.ID)
	}
	newest, _ := e.plans.GetByName(ctx, "train")
	if newest == nil || newest.ID != derived.ID {
		t.Errorf("newest train plan = %v, want %s", newest, derived.ID)
	}
}

func TestPlanModificationDatesAndDerivation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	undated := testutil.NewPlan("undated", e.clock.Now())
	undated.DateModified = time.Time{}
	e.addPlan(t, undated)

	self := testutil.NewPlan("self", e.clock.Now())
	self.DerivedFrom = self.ID
	e.addPlan(t, self)

	dangling := testutil.NewPlan("dangling", e.clock.Now())
	dangling.DerivedFrom = "/plans/missing"
	e.addPlan(t, dangling)

	first := testutil.NewPlan("loop", e.clock.Now())
	second := testutil.NewPlan("loop", e.clock.Now().Add(time.Minute))
	first.DerivedFrom = second.ID
	second.DerivedFrom = first.ID
	e.addPlan(t, first)
	e.addPlan(t, second)

	t.Run("modification dates", func(t *testing.T) {
		before, _, after := runCheck(t, doctor.PlanModificationDates(e.plans))
		if diff := cmp.Diff([]string{undated.ID}, before.Problems); diff != "" {
			t.Errorf("Problems mismatch (-want +got):\n%s", diff)
		}
		if !after.Valid {
			t.Errorf("rerun = %+v, want valid", after)
		}
		got, _ := e.plans.GetByID(ctx, undated.ID)
		if !got.DateModified.Equal(got.DateCreated) {
			t.Errorf("DateModified = %v, want %v", got.DateModified, got.DateCreated)
		}
	})

	t.Run("derivation", func(t *testing.T) {
		before, _, after := runCheck(t, doctor.PlanDerivation(e.plans))
		if len(before.Problems) != 3 {
			t.Errorf("Problems = %v, want self, dangling and one loop member", before.Problems)
		}
		if !after.Valid {
			t.Errorf("rerun = %+v, want valid", after)
		}
		for _, id := range []string{self.ID, dangling.ID} {
			got, _ := e.plans.GetByID(ctx, id)
			if got.DerivedFrom != "" {
				t.Errorf("%s DerivedFrom = %s, want cleared", id, got.DerivedFrom)
			}
		}
	})
}

func TestRunner(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	plan := e.addPlan(t, testutil.NewPlan("train", e.clock.Now()))
	bad := testutil.NewActivity(t, plan, e.clock.Now(), []string{"a"}, []string{"b"})
	bad.SetTimes(e.clock.Now().Add(-time.Hour), e.clock.Now().Add(-time.Hour), nil)
	e.addActivity(t, bad)
	if err := e.store.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	runner := doctor.NewRunner(doctor.All(e.gateways()), e.store, prov.NewNopLogger())
	observed := make(map[string]int)
	runner.OnResult(func(check string, problems int) { observed[check] = problems })

	t.Run("unknown check", func(t *testing.T) {
		if _, err := runner.Run(ctx, false, "nope"); err == nil {
			t.Error("Run(nope) error = nil, want error")
		}
	})

	t.Run("report only", func(t *testing.T) {
		results, err := runner.Run(ctx, false)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(results) != len(runner.Names()) {
			t.Errorf("Run() = %d results, want %d", len(results), len(runner.Names()))
		}
		if doctor.AllValid(results) {
			t.Error("AllValid() = true, want false")
		}
		if observed["activity-dates"] != 1 {
			t.Errorf("observed activity-dates = %d, want 1", observed["activity-dates"])
		}
	})

	t.Run("fix commits once", func(t *testing.T) {
		results, err := runner.Run(ctx, true, "activity-dates")
		if err != nil {
			t.Fatalf("Run(fix) error = %v", err)
		}
		if len(results) != 1 || !results[0].Valid {
			t.Errorf("Run(fix) = %+v, want one valid result", results)
		}
		if e.store.Dirty() {
			t.Error("fixes were not committed")
		}

		results, err = runner.Run(ctx, false)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if !doctor.AllValid(results) {
			for _, r := range results {
				if !r.Valid {
					t.Errorf("%s: %s", r.Name, r.Report)
				}
			}
		}
	})
}
