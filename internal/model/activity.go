package model

import (
	"fmt"
	"strings"
	"time"
)

const activityPrefix = "/activities/"

// ActivityID returns the id of the activity with identifier.
func ActivityID(identifier string) string {
	return activityPrefix + identifier
}

// ActivityIDPrefix is the prefix every current activity id carries.
func ActivityIDPrefix() string { return activityPrefix }

// Agent is a software or human agent involved in an activity.
type Agent struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Software bool   `json:"software,omitempty"`
}

// SoftwareAgent returns the agent describing this tool at version.
func SoftwareAgent(name, version string) Agent {
	return Agent{ID: "/software/" + name + "/" + version, Name: name + " " + version, Software: true}
}

// PersonAgent returns the agent for a human.
func PersonAgent(p Person) Agent {
	return Agent{ID: p.ID, Name: p.Name, Email: p.Email}
}

// Association links an activity to its plan and responsible agent.
type Association struct {
	ID      string `json:"id"`
	AgentID string `json:"agent_id"`
	PlanID  string `json:"plan_id"`
}

// Usage records that an activity consumed an entity snapshot.
type Usage struct {
	ID     string `json:"id"`
	Entity Entity `json:"entity"`
}

// Generation records that an activity produced an entity snapshot.
type Generation struct {
	ID     string `json:"id"`
	Entity Entity `json:"entity"`
}

// ParameterValue is the value a plan parameter took in one execution.
type ParameterValue struct {
	ID          string `json:"id"`
	ParameterID string `json:"parameter_id,omitempty"`
	Name        string `json:"name"`
	Value       any    `json:"value"`
}

// Activity is one recorded execution of a Plan.
type Activity struct {
	Persistent `json:"-"`

	ID            string           `json:"id"`
	Association   Association      `json:"association"`
	Agents        []Agent          `json:"agents,omitempty"`
	Usages        []Usage          `json:"usages,omitempty"`
	Generations   []Generation     `json:"generations,omitempty"`
	Parameters    []ParameterValue `json:"parameters,omitempty"`
	StartedAtTime time.Time        `json:"started_at_time"`
	EndedAtTime   time.Time        `json:"ended_at_time"`
	InvalidatedAt *time.Time       `json:"invalidated_at,omitempty"`
}

// ActivityOptions are the inputs of NewActivity.
type ActivityOptions struct {
	Identifier  string
	Plan        *Plan
	Agents      []Agent
	Usages      []Entity
	Generations []Entity
	Parameters  []ParameterValue
	StartedAt   time.Time
	EndedAt     time.Time
}

// NewActivity creates an activity executing opts.Plan. The responsible agent
// is the first non-software agent, if any.
func NewActivity(opts ActivityOptions) (*Activity, error) {
	if opts.Plan == nil {
		return nil, fmt.Errorf("activity requires a plan")
	}
	if opts.EndedAt.Before(opts.StartedAt) {
		return nil, fmt.Errorf("activity ends (%s) before it starts (%s)", opts.EndedAt, opts.StartedAt)
	}
	identifier := opts.Identifier
	if identifier == "" {
		identifier = NewIdentifier()
	}
	id := ActivityID(identifier)
	a := &Activity{
		ID:            id,
		Agents:        append([]Agent(nil), opts.Agents...),
		StartedAtTime: opts.StartedAt,
		EndedAtTime:   opts.EndedAt,
	}
	agentID := ""
	for _, ag := range opts.Agents {
		if !ag.Software {
			agentID = ag.ID
			break
		}
	}
	a.Association = Association{ID: AssociationID(id), AgentID: agentID, PlanID: opts.Plan.ID}
	for _, e := range opts.Usages {
		a.Usages = append(a.Usages, Usage{ID: UsageID(id), Entity: e})
	}
	for _, e := range opts.Generations {
		a.Generations = append(a.Generations, Generation{ID: GenerationID(id), Entity: e})
	}
	for _, pv := range opts.Parameters {
		pv.ID = ParameterValueID(id)
		a.Parameters = append(a.Parameters, pv)
	}
	return a, nil
}

// UsageID returns a fresh usage id scoped under activityID.
func UsageID(activityID string) string {
	return activityID + "/usages/" + NewIdentifier()
}

// GenerationID returns a fresh generation id scoped under activityID.
func GenerationID(activityID string) string {
	return activityID + "/generations/" + NewIdentifier()
}

// AssociationID returns the association id of activityID.
func AssociationID(activityID string) string {
	return activityID + "/association"
}

// ParameterValueID returns a fresh parameter value id scoped under activityID.
func ParameterValueID(activityID string) string {
	return activityID + "/parameter-value/" + NewIdentifier()
}

// IsDeleted reports whether the activity was invalidated.
func (a *Activity) IsDeleted() bool { return a.InvalidatedAt != nil }

// Delete marks the activity invalidated at now, never before it ended.
func (a *Activity) Delete(now time.Time) {
	a.mustBeMutable("activity", a.ID)
	now = later(now, a.EndedAtTime)
	a.InvalidatedAt = &now
}

// SetTimes replaces the execution times. invalidated may be nil.
func (a *Activity) SetTimes(started, ended time.Time, invalidated *time.Time) {
	a.mustBeMutable("activity", a.ID)
	a.StartedAtTime = started
	a.EndedAtTime = ended
	a.InvalidatedAt = copyTime(invalidated)
}

// ChangeID moves the activity to newID. Ids of usages, generations,
// parameter values and the association are scoped under the activity id,
// so they move too.
func (a *Activity) ChangeID(newID string) {
	a.mustBeMutable("activity", a.ID)
	old := a.ID
	a.ID = newID
	a.Association.ID = AssociationID(newID)
	for i := range a.Usages {
		a.Usages[i].ID = replaceIDPrefix(a.Usages[i].ID, old, newID, "/usages/")
	}
	for i := range a.Generations {
		a.Generations[i].ID = replaceIDPrefix(a.Generations[i].ID, old, newID, "/generations/")
	}
	for i := range a.Parameters {
		a.Parameters[i].ID = replaceIDPrefix(a.Parameters[i].ID, old, newID, "/parameter-value/")
	}
}

// SetPlan points the association at planID.
func (a *Activity) SetPlan(planID string) {
	a.mustBeMutable("activity", a.ID)
	a.Association.PlanID = planID
}

// replaceIDPrefix moves a child id from parent old to parent new. Children
// that were not scoped under old get a fresh id under new.
func replaceIDPrefix(id, old, new, scope string) string {
	if strings.HasPrefix(id, old+"/") {
		return new + strings.TrimPrefix(id, old)
	}
	return new + scope + NewIdentifier()
}

// Copy returns an unfrozen copy keeping all identities.
func (a *Activity) Copy() *Activity {
	c := *a
	c.Persistent = Persistent{}
	c.Agents = append([]Agent(nil), a.Agents...)
	c.Usages = append([]Usage(nil), a.Usages...)
	c.Generations = append([]Generation(nil), a.Generations...)
	c.Parameters = append([]ParameterValue(nil), a.Parameters...)
	c.InvalidatedAt = copyTime(a.InvalidatedAt)
	return &c
}

// UsagePaths returns the distinct consumed paths in order.
func (a *Activity) UsagePaths() []string {
	var paths []string
	seen := make(map[string]bool)
	for _, u := range a.Usages {
		if !seen[u.Entity.Path] {
			seen[u.Entity.Path] = true
			paths = append(paths, u.Entity.Path)
		}
	}
	return paths
}

// GenerationPaths returns the distinct produced paths in order.
func (a *Activity) GenerationPaths() []string {
	var paths []string
	seen := make(map[string]bool)
	for _, g := range a.Generations {
		if !seen[g.Entity.Path] {
			seen[g.Entity.Path] = true
			paths = append(paths, g.Entity.Path)
		}
	}
	return paths
}

// ActivityCollection groups activities recorded together, e.g. the steps of
// one workflow run.
type ActivityCollection struct {
	ID          string   `json:"id"`
	ActivityIDs []string `json:"activity_ids"`
}

// NewActivityCollection creates a collection of the given activities.
func NewActivityCollection(activities ...*Activity) *ActivityCollection {
	c := &ActivityCollection{ID: "/activity-collection/" + NewIdentifier()}
	for _, a := range activities {
		c.ActivityIDs = append(c.ActivityIDs, a.ID)
	}
	return c
}

// ActivityDownstreamRelation is an index-only edge: Downstream uses something
// Upstream generated. It is derived from usages and generations and can
// always be rebuilt from the stored activities.
type ActivityDownstreamRelation struct {
	Upstream   string `json:"upstream"`
	Downstream string `json:"downstream"`
}
