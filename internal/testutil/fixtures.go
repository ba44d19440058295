package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"prov-go/internal/model"
)

// Jane is the human agent used by fixtures.
var Jane = model.NewPerson("Jane Doe", "jane@example.com")

// NewPlan creates a plan named name with one input and one output parameter.
func NewPlan(name string, created time.Time) *model.Plan {
	return model.NewPlan(name, "python "+name+".py", []model.CommandParameter{
		{Name: "input-1", Kind: model.ParameterInput, Position: 1},
		{Name: "output-1", Kind: model.ParameterOutput, Position: 2},
	}, created)
}

// NewActivity creates an activity of plan that started at started, ran for a
// minute, consumed inputs and produced outputs. Checksums are derived from
// the path so equal paths produce equal entities.
func NewActivity(t *testing.T, plan *model.Plan, started time.Time, inputs, outputs []string) *model.Activity {
	t.Helper()

	a, err := model.NewActivity(model.ActivityOptions{
		Plan:        plan,
		Agents:      []model.Agent{model.SoftwareAgent("prov", "test"), model.PersonAgent(Jane)},
		Usages:      Entities(inputs...),
		Generations: Entities(outputs...),
		StartedAt:   started,
		EndedAt:     started.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("NewActivity() error = %v", err)
	}
	return a
}

// Entities builds one file entity per path.
func Entities(paths ...string) []model.Entity {
	es := make([]model.Entity, 0, len(paths))
	for _, p := range paths {
		es = append(es, model.NewEntity(SHA256Hex([]byte(p)), p))
	}
	return es
}

// NewDatasetFile creates a dataset file for path whose content is content.
func NewDatasetFile(path, content string, added time.Time) *model.DatasetFile {
	return model.NewDatasetFile(model.NewEntity(SHA256Hex([]byte(content)), path), added)
}

// NewDataset creates the first version of a dataset with files.
func NewDataset(t *testing.T, slug string, now time.Time, files ...*model.DatasetFile) *model.Dataset {
	t.Helper()

	d, err := model.NewDataset(model.DatasetOptions{
		Slug:     slug,
		Creators: []model.Person{Jane},
		Files:    files,
	}, now)
	if err != nil {
		t.Fatalf("NewDataset() error = %v", err)
	}
	return d
}

// SHA256Hex is the checksum the workspace gives a file with content data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
