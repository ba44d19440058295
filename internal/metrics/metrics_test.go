package metrics_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"prov-go/internal/metrics"
	"prov-go/internal/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m, err := metrics.New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	m.DatasetVersionAdded("ds")
	m.DatasetVersionAdded("ds")
	m.DatasetVersionAdded("other")
	m.ActivityAdded()
	m.ActivityRejected("cycle")
	m.DoctorProblems("activity-dates", 3)
	m.DoctorProblems("activity-dates", 0)

	expected := `
# HELP prov_dataset_versions_total Dataset versions stored, by dataset slug.
# TYPE prov_dataset_versions_total counter
prov_dataset_versions_total{slug="ds"} 2
prov_dataset_versions_total{slug="other"} 1
# HELP prov_activities_added_total Activities recorded.
# TYPE prov_activities_added_total counter
prov_activities_added_total 1
# HELP prov_activities_rejected_total Activities rejected, by reason.
# TYPE prov_activities_rejected_total counter
prov_activities_rejected_total{reason="cycle"} 1
# HELP prov_doctor_problems Problems found by the last run of each consistency check.
# TYPE prov_doctor_problems gauge
prov_doctor_problems{check="activity-dates"} 0
`
	err = promtest.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"prov_dataset_versions_total", "prov_activities_added_total",
		"prov_activities_rejected_total", "prov_doctor_problems")
	if err != nil {
		t.Errorf("GatherAndCompare() error = %v", err)
	}
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m, err := metrics.New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	now := testutil.FixedClock().Now()
	m.CommandFinished("dataset add", 150*time.Millisecond, nil, now)
	m.CommandFinished("dataset add", time.Second, errors.New("boom"), now)

	path := filepath.Join(t.TempDir(), "prov.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "prov_last_success_timestamp_seconds ") {
		t.Errorf("textfile missing the last success timestamp:\n%s", text)
	}
	for _, want := range []string{
		`prov_command_duration_seconds_count{command="dataset add",status="ok"} 1`,
		`prov_command_duration_seconds_count{command="dataset add",status="error"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("textfile missing %q:\n%s", want, text)
		}
	}
}
