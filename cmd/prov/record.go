package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"prov-go/internal/model"
	"prov-go/internal/prov"
)

// recordFile is the YAML description of one execution passed to
// "activity record":
//
//	plan:
//	  name: train
//	  command: python train.py
//	  parameters:
//	    - {name: data, kind: input, prefix: --data}
//	    - {name: model, kind: output, position: 1}
//	    - {name: lr, kind: parameter, default: "0.1"}
//	inputs: [data/raw.csv]
//	outputs: [models/model.pkl]
//	parameters: {lr: 0.01}
//	started_at: 2024-01-15T10:00:00Z
//	ended_at: 2024-01-15T10:30:00Z
type recordFile struct {
	Plan       recordPlan     `yaml:"plan"`
	Inputs     []string       `yaml:"inputs" validate:"dive,required"`
	Outputs    []string       `yaml:"outputs" validate:"dive,required"`
	Parameters map[string]any `yaml:"parameters"`
	StartedAt  time.Time      `yaml:"started_at"`
	EndedAt    time.Time      `yaml:"ended_at"`
}

type recordPlan struct {
	Name        string            `yaml:"name" validate:"required"`
	Command     string            `yaml:"command" validate:"required"`
	Description string            `yaml:"description"`
	Keywords    []string          `yaml:"keywords"`
	Parameters  []recordParameter `yaml:"parameters" validate:"dive"`
}

type recordParameter struct {
	Name     string `yaml:"name" validate:"required"`
	Kind     string `yaml:"kind" validate:"required,oneof=input output parameter"`
	Position int    `yaml:"position" validate:"gte=0"`
	Prefix   string `yaml:"prefix"`
	Default  string `yaml:"default"`
}

// parseRecordFile decodes and validates a record file. Unknown keys are
// rejected. A missing ended_at means the execution took no time; a missing
// started_at is filled with now.
func parseRecordFile(r io.Reader, now time.Time) (*recordFile, error) {
	var rf recordFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("record file is empty")
		}
		return nil, fmt.Errorf("decoding record file: %w", err)
	}
	if err := validator.New().Struct(&rf); err != nil {
		return nil, fmt.Errorf("invalid record file: %w", err)
	}

	if rf.StartedAt.IsZero() {
		rf.StartedAt = now
	}
	if rf.EndedAt.IsZero() {
		rf.EndedAt = rf.StartedAt
	}
	if rf.EndedAt.Before(rf.StartedAt) {
		return nil, fmt.Errorf("invalid record file: ended_at %s is before started_at %s",
			rf.EndedAt.Format(time.RFC3339), rf.StartedAt.Format(time.RFC3339))
	}

	seen := make(map[string]bool, len(rf.Plan.Parameters))
	for _, p := range rf.Plan.Parameters {
		if seen[p.Name] {
			return nil, fmt.Errorf("invalid record file: plan parameter %q declared twice", p.Name)
		}
		seen[p.Name] = true
	}
	return &rf, nil
}

// request turns rf into a RecordRequest, resolving every path with
// resolve. Parameter values are ordered by name.
func (rf *recordFile) request(resolve func(string) (model.Entity, error), agents []model.Agent, creator *model.Person) (prov.RecordRequest, error) {
	req := prov.RecordRequest{
		Plan: prov.PlanSpec{
			Name:        rf.Plan.Name,
			Command:     rf.Plan.Command,
			Description: rf.Plan.Description,
			Keywords:    rf.Plan.Keywords,
		},
		Agents:    agents,
		StartedAt: rf.StartedAt,
		EndedAt:   rf.EndedAt,
		Creator:   creator,
	}
	for _, p := range rf.Plan.Parameters {
		req.Plan.Parameters = append(req.Plan.Parameters, model.CommandParameter{
			Name:         p.Name,
			Kind:         p.Kind,
			Position:     p.Position,
			Prefix:       p.Prefix,
			DefaultValue: p.Default,
		})
	}

	for _, path := range rf.Inputs {
		e, err := resolve(path)
		if err != nil {
			return prov.RecordRequest{}, fmt.Errorf("input %s: %w", path, err)
		}
		req.Inputs = append(req.Inputs, e)
	}
	for _, path := range rf.Outputs {
		e, err := resolve(path)
		if err != nil {
			return prov.RecordRequest{}, fmt.Errorf("output %s: %w", path, err)
		}
		req.Outputs = append(req.Outputs, e)
	}

	names := make([]string, 0, len(rf.Parameters))
	for name := range rf.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		req.Parameters = append(req.Parameters, model.ParameterValue{Name: name, Value: rf.Parameters[name]})
	}
	return req, nil
}
