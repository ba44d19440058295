package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"prov-go/internal/model"
	"prov-go/internal/prov"
)

var now = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

const trainRecord = `
plan:
  name: train
  command: python train.py
  keywords: [ml]
  parameters:
    - {name: data, kind: input, prefix: --data}
    - {name: model, kind: output, position: 1}
    - {name: lr, kind: parameter, default: "0.1"}
inputs: [data/raw.csv]
outputs: [models/model.pkl]
parameters:
  lr: 0.01
  epochs: 3
started_at: 2024-01-15T09:00:00Z
ended_at: 2024-01-15T09:30:00Z
`

func TestParseRecordFile(t *testing.T) {
	rf, err := parseRecordFile(strings.NewReader(trainRecord), now)
	if err != nil {
		t.Fatalf("parseRecordFile() error = %v", err)
	}
	if rf.Plan.Name != "train" || len(rf.Plan.Parameters) != 3 {
		t.Errorf("plan = %+v", rf.Plan)
	}
	if want := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC); !rf.EndedAt.Equal(want) {
		t.Errorf("EndedAt = %v, want %v", rf.EndedAt, want)
	}

	resolve := func(p string) (model.Entity, error) { return model.NewEntity("sum-"+p, p), nil }
	agents := []model.Agent{model.SoftwareAgent("prov", "1.0")}
	req, err := rf.request(resolve, agents, nil)
	if err != nil {
		t.Fatalf("request() error = %v", err)
	}

	want := prov.PlanSpec{
		Name:     "train",
		Command:  "python train.py",
		Keywords: []string{"ml"},
		Parameters: []model.CommandParameter{
			{Name: "data", Kind: model.ParameterInput, Prefix: "--data"},
			{Name: "model", Kind: model.ParameterOutput, Position: 1},
			{Name: "lr", Kind: model.ParameterPlain, DefaultValue: "0.1"},
		},
	}
	if diff := cmp.Diff(want, req.Plan); diff != "" {
		t.Errorf("request() plan mismatch (-want +got):\n%s", diff)
	}
	if len(req.Inputs) != 1 || req.Inputs[0].Path != "data/raw.csv" || req.Inputs[0].Checksum != "sum-data/raw.csv" {
		t.Errorf("inputs = %+v", req.Inputs)
	}
	if len(req.Outputs) != 1 || req.Outputs[0].Path != "models/model.pkl" {
		t.Errorf("outputs = %+v", req.Outputs)
	}
	var names []string
	for _, p := range req.Parameters {
		names = append(names, p.Name)
	}
	if diff := cmp.Diff([]string{"epochs", "lr"}, names); diff != "" {
		t.Errorf("parameter order mismatch (-want +got):\n%s", diff)
	}
	if len(req.Agents) != 1 {
		t.Errorf("agents = %v", req.Agents)
	}
}

func TestParseRecordFile_Defaults(t *testing.T) {
	rf, err := parseRecordFile(strings.NewReader("plan: {name: p, command: run}\n"), now)
	if err != nil {
		t.Fatalf("parseRecordFile() error = %v", err)
	}
	if !rf.StartedAt.Equal(now) || !rf.EndedAt.Equal(now) {
		t.Errorf("times = %v..%v, want both %v", rf.StartedAt, rf.EndedAt, now)
	}
}

func TestParseRecordFile_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "missing plan name", input: "plan: {command: run}\n"},
		{name: "missing command", input: "plan: {name: p}\n"},
		{name: "unknown key", input: "plan: {name: p, command: run}\nfoo: 1\n"},
		{name: "bad kind", input: "plan: {name: p, command: run, parameters: [{name: x, kind: env}]}\n"},
		{name: "negative position", input: "plan: {name: p, command: run, parameters: [{name: x, kind: input, position: -1}]}\n"},
		{name: "duplicate parameter", input: "plan: {name: p, command: run, parameters: [{name: x, kind: input}, {name: x, kind: output}]}\n"},
		{name: "empty input path", input: "plan: {name: p, command: run}\ninputs: ['']\n"},
		{
			name:  "ends before start",
			input: "plan: {name: p, command: run}\nstarted_at: 2024-01-15T10:00:00Z\nended_at: 2024-01-15T09:00:00Z\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseRecordFile(strings.NewReader(tt.input), now); err == nil {
				t.Error("parseRecordFile() succeeded, want error")
			}
		})
	}
}

func TestRecordFile_RequestResolveError(t *testing.T) {
	rf, err := parseRecordFile(strings.NewReader(trainRecord), now)
	if err != nil {
		t.Fatalf("parseRecordFile() error = %v", err)
	}
	missing := errors.New("no such file")
	_, err = rf.request(func(string) (model.Entity, error) { return model.Entity{}, missing }, nil, nil)
	if !errors.Is(err, missing) {
		t.Errorf("request() error = %v, want %v", err, missing)
	}
}

func TestParameterFilter(t *testing.T) {
	tests := []struct {
		param string
		want  prov.ActivityFilter
	}{
		{param: "lr", want: prov.ActivityFilter{ParameterName: "lr"}},
		{param: "lr=0.1", want: prov.ActivityFilter{ParameterName: "lr", ParameterValue: "0.1"}},
		{param: "lr=0.1,0.2", want: prov.ActivityFilter{ParameterName: "lr", ParameterValues: []any{"0.1", "0.2"}}},
	}
	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			var got prov.ActivityFilter
			parameterFilter(&got, tt.param)
			if got.ParameterName != tt.want.ParameterName || got.ParameterValue != tt.want.ParameterValue {
				t.Errorf("parameterFilter() = %+v, want %+v", got, tt.want)
			}
			if diff := cmp.Diff(tt.want.ParameterValues, got.ParameterValues); diff != "" {
				t.Errorf("values mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestActivityID(t *testing.T) {
	if got := activityID("abc"); got != model.ActivityID("abc") {
		t.Errorf("activityID(abc) = %q", got)
	}
	if got := activityID("/activities/abc"); got != "/activities/abc" {
		t.Errorf("activityID(full) = %q", got)
	}
}
