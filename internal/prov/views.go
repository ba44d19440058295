package prov

import (
	"sort"
	"time"

	"prov-go/internal/model"
)

// DatasetFileView is the display form of a dataset file.
type DatasetFileView struct {
	Path        string     `json:"path" yaml:"path"`
	Checksum    string     `json:"checksum" yaml:"checksum"`
	Size        *int64     `json:"size,omitempty" yaml:"size,omitempty"`
	DateAdded   time.Time  `json:"date_added" yaml:"date_added"`
	DateRemoved *time.Time `json:"date_removed,omitempty" yaml:"date_removed,omitempty"`
	External    bool       `json:"external,omitempty" yaml:"external,omitempty"`
}

// DatasetView is the display form of a dataset version.
type DatasetView struct {
	ID           string            `json:"id" yaml:"id"`
	Slug         string            `json:"slug" yaml:"slug"`
	Name         string            `json:"name" yaml:"name"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty"`
	Creators     []string          `json:"creators,omitempty" yaml:"creators,omitempty"`
	Keywords     []string          `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	License      string            `json:"license,omitempty" yaml:"license,omitempty"`
	Datadir      string            `json:"datadir" yaml:"datadir"`
	DateCreated  *time.Time        `json:"date_created,omitempty" yaml:"date_created,omitempty"`
	DateModified time.Time         `json:"date_modified" yaml:"date_modified"`
	DateRemoved  *time.Time        `json:"date_removed,omitempty" yaml:"date_removed,omitempty"`
	DerivedFrom  string            `json:"derived_from,omitempty" yaml:"derived_from,omitempty"`
	SameAs       string            `json:"same_as,omitempty" yaml:"same_as,omitempty"`
	Tags         []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	Files        []DatasetFileView `json:"files" yaml:"files"`
}

// NewDatasetView maps d for display. Only live files are listed unless
// withHistory is set.
func NewDatasetView(d *model.Dataset, tags []*model.DatasetTag, withHistory bool) DatasetView {
	v := DatasetView{
		ID:           d.ID,
		Slug:         d.Slug,
		Name:         d.Name,
		Description:  d.Description,
		Keywords:     append([]string(nil), d.Keywords...),
		License:      d.License,
		Datadir:      d.GetDatadir(),
		DateCreated:  d.DateCreated,
		DateModified: d.DateModified,
		DateRemoved:  d.DateRemoved,
		DerivedFrom:  d.DerivedFrom,
		SameAs:       d.SameAs,
	}
	if v.DateCreated == nil {
		v.DateCreated = d.DatePublished
	}
	for _, c := range d.Creators {
		if c.Email != "" {
			v.Creators = append(v.Creators, c.Name+" <"+c.Email+">")
		} else {
			v.Creators = append(v.Creators, c.Name)
		}
	}
	for _, t := range tags {
		v.Tags = append(v.Tags, t.Name)
	}

	files := d.Files()
	if withHistory {
		files = d.DatasetFiles
	}
	for _, f := range files {
		v.Files = append(v.Files, DatasetFileView{
			Path:        f.Path(),
			Checksum:    f.Entity.Checksum,
			Size:        f.Size,
			DateAdded:   f.DateAdded,
			DateRemoved: f.DateRemoved,
			External:    f.IsExternal,
		})
	}
	sort.SliceStable(v.Files, func(i, j int) bool { return v.Files[i].Path < v.Files[j].Path })
	return v
}

// ActivityView is the display form of an activity.
type ActivityView struct {
	ID         string         `json:"id" yaml:"id"`
	Plan       string         `json:"plan" yaml:"plan"`
	PlanID     string         `json:"plan_id" yaml:"plan_id"`
	Command    string         `json:"command,omitempty" yaml:"command,omitempty"`
	Agent      string         `json:"agent,omitempty" yaml:"agent,omitempty"`
	StartedAt  time.Time      `json:"started_at" yaml:"started_at"`
	EndedAt    time.Time      `json:"ended_at" yaml:"ended_at"`
	Deleted    *time.Time     `json:"invalidated_at,omitempty" yaml:"invalidated_at,omitempty"`
	Inputs     []string       `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs    []string       `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// NewActivityView maps a for display; plan may be nil when it is unknown.
func NewActivityView(a *model.Activity, plan *model.Plan) ActivityView {
	v := ActivityView{
		ID:        a.ID,
		PlanID:    a.Association.PlanID,
		StartedAt: a.StartedAtTime,
		EndedAt:   a.EndedAtTime,
		Deleted:   a.InvalidatedAt,
		Inputs:    a.UsagePaths(),
		Outputs:   a.GenerationPaths(),
	}
	if plan != nil {
		v.Plan = plan.Name
		v.Command = plan.Command
	}
	for _, ag := range a.Agents {
		if ag.ID == a.Association.AgentID {
			v.Agent = ag.Name
		}
	}
	if len(a.Parameters) > 0 {
		v.Parameters = make(map[string]any, len(a.Parameters))
		for _, p := range a.Parameters {
			v.Parameters[p.Name] = p.Value
		}
	}
	return v
}

// TagView is the display form of a dataset tag.
type TagView struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	DatasetID   string    `json:"dataset_id" yaml:"dataset_id"`
	DateCreated time.Time `json:"date_created" yaml:"date_created"`
}

// NewTagViews maps tags for display.
func NewTagViews(tags []*model.DatasetTag) []TagView {
	out := make([]TagView, 0, len(tags))
	for _, t := range tags {
		out = append(out, TagView{Name: t.Name, Description: t.Description, DatasetID: t.DatasetID, DateCreated: t.DateCreated})
	}
	return out
}

// PlanView is the display form of a plan version.
type PlanView struct {
	ID           string    `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Command      string    `json:"command" yaml:"command"`
	Description  string    `json:"description,omitempty" yaml:"description,omitempty"`
	Keywords     []string  `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Inputs       []string  `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs      []string  `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Parameters   []string  `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	DateCreated  time.Time `json:"date_created" yaml:"date_created"`
	DateModified time.Time `json:"date_modified" yaml:"date_modified"`
	DerivedFrom  string    `json:"derived_from,omitempty" yaml:"derived_from,omitempty"`
}

// NewPlanView maps p for display. Parameters are grouped by kind.
func NewPlanView(p *model.Plan) PlanView {
	v := PlanView{
		ID:           p.ID,
		Name:         p.Name,
		Command:      p.Command,
		Description:  p.Description,
		Keywords:     append([]string(nil), p.Keywords...),
		DateCreated:  p.DateCreated,
		DateModified: p.DateModified,
		DerivedFrom:  p.DerivedFrom,
	}
	for _, param := range p.Parameters {
		switch param.Kind {
		case model.ParameterInput:
			v.Inputs = append(v.Inputs, param.Name)
		case model.ParameterOutput:
			v.Outputs = append(v.Outputs, param.Name)
		default:
			v.Parameters = append(v.Parameters, param.Name)
		}
	}
	return v
}
