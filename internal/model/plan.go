package model

import "time"

// Parameter kinds of a CommandParameter.
const (
	ParameterInput  = "input"
	ParameterOutput = "output"
	ParameterPlain  = "parameter"
)

// CommandParameter describes one input, output or parameter of a Plan.
type CommandParameter struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	Position     int    `json:"position,omitempty"`
	Prefix       string `json:"prefix,omitempty"`
	DefaultValue string `json:"default_value,omitempty"`
}

// Plan is the recipe an Activity executes. Plans are versioned like
// datasets: a new version points at the previous one through DerivedFrom
// and plans-by-name tracks the newest.
type Plan struct {
	Persistent `json:"-"`

	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Description  string             `json:"description,omitempty"`
	Command      string             `json:"command"`
	Keywords     []string           `json:"keywords,omitempty"`
	Creators     []Person           `json:"creators,omitempty"`
	Parameters   []CommandParameter `json:"parameters,omitempty"`
	DateCreated  time.Time          `json:"date_created"`
	DateModified time.Time          `json:"date_modified,omitempty"`
	DateRemoved  *time.Time         `json:"date_removed,omitempty"`
	DerivedFrom  string             `json:"derived_from,omitempty"`
}

const planPrefix = "/plans/"

// PlanID returns the id of the plan with identifier.
func PlanID(identifier string) string {
	return planPrefix + identifier
}

// PlanIDPrefix is the prefix every current plan id carries.
func PlanIDPrefix() string { return planPrefix }

// NewPlan creates the first version of a plan.
func NewPlan(name, command string, params []CommandParameter, now time.Time) *Plan {
	p := &Plan{
		ID:           PlanID(NewIdentifier()),
		Name:         name,
		Command:      command,
		DateCreated:  now,
		DateModified: now,
	}
	for _, cp := range params {
		cp.ID = p.ID + "/parameters/" + NewIdentifier()
		p.Parameters = append(p.Parameters, cp)
	}
	return p
}

// Copy returns an unfrozen copy keeping the identity.
func (p *Plan) Copy() *Plan {
	c := *p
	c.Persistent = Persistent{}
	c.Keywords = append([]string(nil), p.Keywords...)
	c.Creators = append([]Person(nil), p.Creators...)
	c.Parameters = append([]CommandParameter(nil), p.Parameters...)
	c.DateRemoved = copyTime(p.DateRemoved)
	return &c
}

// Derive returns the next version of p.
func (p *Plan) Derive(creator *Person, now time.Time) *Plan {
	d := p.Copy()
	d.ID = PlanID(NewIdentifier())
	d.DerivedFrom = p.ID
	d.DateModified = later(now, p.DateCreated)
	for i := range d.Parameters {
		d.Parameters[i].ID = d.ID + "/parameters/" + NewIdentifier()
	}
	if creator != nil {
		found := false
		for _, c := range d.Creators {
			if c.ID == creator.ID {
				found = true
			}
		}
		if !found {
			d.Creators = append(d.Creators, *creator)
		}
	}
	return d
}

// IsDeleted reports whether the plan was removed.
func (p *Plan) IsDeleted() bool { return p.DateRemoved != nil }

// Delete marks the plan removed.
func (p *Plan) Delete(now time.Time) {
	p.mustBeMutable("plan", p.ID)
	now = later(now, p.DateModified)
	p.DateRemoved = &now
}

// ChangeID moves the plan and its parameters to newID.
func (p *Plan) ChangeID(newID string) {
	p.mustBeMutable("plan", p.ID)
	old := p.ID
	p.ID = newID
	for i := range p.Parameters {
		p.Parameters[i].ID = replaceIDPrefix(p.Parameters[i].ID, old, newID, "/parameters/")
	}
}

// SetDerivedFrom changes the derivation pointer; an empty id clears it.
func (p *Plan) SetDerivedFrom(id string) {
	p.mustBeMutable("plan", p.ID)
	p.DerivedFrom = id
}

// SetDateModified changes the modification date.
func (p *Plan) SetDateModified(t time.Time) {
	p.mustBeMutable("plan", p.ID)
	p.DateModified = t
}
