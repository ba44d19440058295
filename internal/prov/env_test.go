package prov_test

import (
	"testing"

	"prov-go/internal/gateway"
	"prov-go/internal/prov"
	"prov-go/internal/store"
	"prov-go/internal/testutil"
)

// countingMetrics records what the services report.
type countingMetrics struct {
	versions map[string]int
	added    int
	rejected map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{versions: make(map[string]int), rejected: make(map[string]int)}
}

func (m *countingMetrics) DatasetVersionAdded(slug string) { m.versions[slug]++ }
func (m *countingMetrics) ActivityAdded()                  { m.added++ }
func (m *countingMetrics) ActivityRejected(reason string)  { m.rejected[reason]++ }

type env struct {
	store       *store.Store
	clock       *testutil.Clock
	workspace   *testutil.MockWorkspace
	metrics     *countingMetrics
	datasets    *gateway.DatasetGateway
	activities  *gateway.ActivityGateway
	plans       *gateway.PlanGateway
	provenance  *prov.DatasetsProvenance
	datasetSvc  *prov.DatasetService
	activitySvc *prov.ActivityService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		store:     testutil.NewTestStore(t),
		clock:     testutil.FixedClock(),
		workspace: testutil.NewMockWorkspace(),
		metrics:   newCountingMetrics(),
	}
	logger := prov.NewNopLogger()
	e.datasets = gateway.NewDatasetGateway(e.store)
	e.activities = gateway.NewActivityGateway(e.store, e.clock)
	e.plans = gateway.NewPlanGateway(e.store)
	e.provenance = prov.NewDatasetsProvenance(e.datasets, e.clock, logger, e.metrics)
	e.datasetSvc = prov.NewDatasetService(e.provenance, e.workspace, e.store, e.clock, logger)
	e.activitySvc = prov.NewActivityService(e.activities, e.plans, e.store, e.clock, testutil.NewStubIDGenerator(), logger, e.metrics)
	return e
}
