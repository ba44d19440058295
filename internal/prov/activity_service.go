package prov

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"prov-go/internal/model"
	"prov-go/internal/pathutil"
)

// ActivityService records workflow executions and answers lineage queries.
type ActivityService struct {
	activities ActivityGateway
	plans      PlanGateway
	tx         Transactor
	clock      Clock
	idgen      IDGenerator
	logger     Logger
	metrics    Metrics
}

// NewActivityService creates an ActivityService.
func NewActivityService(activities ActivityGateway, plans PlanGateway, tx Transactor, clock Clock, idgen IDGenerator, logger Logger, metrics Metrics) *ActivityService {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &ActivityService{
		activities: activities,
		plans:      plans,
		tx:         tx,
		clock:      clock,
		idgen:      idgen,
		logger:     logger,
		metrics:    metrics,
	}
}

func (s *ActivityService) commit(ctx context.Context, err error) error {
	if err != nil {
		s.tx.Rollback()
		return err
	}
	if err := s.tx.Commit(ctx); err != nil {
		s.tx.Rollback()
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

// PlanSpec describes the plan an execution ran.
type PlanSpec struct {
	Name        string
	Command     string
	Description string
	Keywords    []string
	Parameters  []model.CommandParameter
}

// RecordRequest describes one execution.
type RecordRequest struct {
	Plan       PlanSpec
	Agents     []model.Agent
	Inputs     []model.Entity
	Outputs    []model.Entity
	Parameters []model.ParameterValue
	StartedAt  time.Time
	EndedAt    time.Time
	Creator    *model.Person
}

// Record stores an execution. The plan is looked up by name: an identical
// newest plan is reused, a changed one is stored as a new version derived
// from it. An execution that would close a cycle in the lineage graph is
// rejected with a *model.GraphError and nothing is stored.
func (s *ActivityService) Record(ctx context.Context, req RecordRequest) (*model.Activity, error) {
	a, err := s.record(ctx, req)
	if err := s.commit(ctx, err); err != nil {
		if errors.Is(err, model.ErrCycle) {
			s.metrics.ActivityRejected("cycle")
			s.logger.Warn("activity rejected", "plan", req.Plan.Name, "error", err)
		}
		return nil, err
	}
	s.metrics.ActivityAdded()
	s.logger.Info("activity recorded", "id", a.ID, "plan", a.Association.PlanID)
	return a, nil
}

func (s *ActivityService) record(ctx context.Context, req RecordRequest) (*model.Activity, error) {
	if req.Plan.Name == "" {
		return nil, fmt.Errorf("plan name is required")
	}
	plan, err := s.resolvePlan(ctx, req.Plan, req.Creator)
	if err != nil {
		return nil, err
	}

	started, ended := req.StartedAt, req.EndedAt
	if started.IsZero() {
		started = s.clock.Now()
	}
	if ended.IsZero() {
		ended = started
	}

	a, err := model.NewActivity(model.ActivityOptions{
		Identifier:  s.idgen.New(),
		Plan:        plan,
		Agents:      req.Agents,
		Usages:      req.Inputs,
		Generations: req.Outputs,
		Parameters:  req.Parameters,
		StartedAt:   started,
		EndedAt:     ended,
	})
	if err != nil {
		return nil, err
	}
	if err := s.activities.Add(ctx, a); err != nil {
		return nil, fmt.Errorf("adding activity: %w", err)
	}
	return a, nil
}

func (s *ActivityService) resolvePlan(ctx context.Context, spec PlanSpec, creator *model.Person) (*model.Plan, error) {
	now := s.clock.Now()
	newest, err := s.plans.GetByName(ctx, spec.Name)
	if err != nil {
		return nil, err
	}
	if newest != nil && !newest.IsDeleted() && samePlan(newest, spec) {
		return newest, nil
	}

	var plan *model.Plan
	if newest == nil {
		plan = model.NewPlan(spec.Name, spec.Command, spec.Parameters, now)
		if creator != nil {
			plan.Creators = []model.Person{*creator}
		}
	} else {
		plan = newest.Derive(creator, now)
		plan.Command = spec.Command
		plan.Parameters = nil
		for _, cp := range spec.Parameters {
			cp.ID = plan.ID + "/parameters/" + model.NewIdentifier()
			plan.Parameters = append(plan.Parameters, cp)
		}
	}
	plan.Description = spec.Description
	plan.Keywords = append([]string(nil), spec.Keywords...)

	if err := s.plans.Add(ctx, plan); err != nil {
		return nil, fmt.Errorf("adding plan: %w", err)
	}
	s.logger.Debug("plan stored", "id", plan.ID, "name", plan.Name, "derived_from", plan.DerivedFrom)
	return plan, nil
}

func samePlan(p *model.Plan, spec PlanSpec) bool {
	if p.Command != spec.Command || p.Description != spec.Description || len(p.Parameters) != len(spec.Parameters) {
		return false
	}
	for i, cp := range spec.Parameters {
		have := p.Parameters[i]
		if have.Name != cp.Name || have.Kind != cp.Kind || have.Position != cp.Position ||
			have.Prefix != cp.Prefix || have.DefaultValue != cp.DefaultValue {
			return false
		}
	}
	return true
}

// ActivityFilter selects activities. Empty fields do not filter. All set
// fields must match.
type ActivityFilter struct {
	// InputPath and OutputPath match used or generated paths exactly.
	InputPath  string
	OutputPath string

	// ParameterName selects activities with a parameter of that name. The
	// value filters below apply to that parameter; without a name they apply
	// to any parameter.
	ParameterName string

	// ParameterValue matches one value exactly.
	ParameterValue any
	// ParameterValues matches any value of the list.
	ParameterValues []any
	// ParameterPredicate matches values it returns true for.
	ParameterPredicate func(any) bool

	PlanName       string
	IncludeDeleted bool
}

// List returns the activities matching f, ordered by start time.
func (s *ActivityService) List(ctx context.Context, f ActivityFilter) ([]*model.Activity, error) {
	var candidates []*model.Activity
	var err error
	switch {
	case f.InputPath != "":
		candidates, err = s.activities.GetActivitiesByUsage(ctx, pathutil.Clean(f.InputPath), "")
	case f.OutputPath != "":
		candidates, err = s.activities.GetActivitiesByGeneration(ctx, pathutil.Clean(f.OutputPath), "")
	default:
		candidates, err = s.activities.GetAllActivities(ctx, f.IncludeDeleted)
	}
	if err != nil {
		return nil, err
	}

	var planIDs map[string]bool
	if f.PlanName != "" {
		if planIDs, err = s.planVersions(ctx, f.PlanName); err != nil {
			return nil, err
		}
	}

	var out []*model.Activity
	for _, a := range candidates {
		if a.IsDeleted() && !f.IncludeDeleted {
			continue
		}
		if f.OutputPath != "" && !hasPath(a.GenerationPaths(), f.OutputPath) {
			continue
		}
		if planIDs != nil && !planIDs[a.Association.PlanID] {
			continue
		}
		if !f.matchParameters(a) {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartedAtTime.Equal(out[j].StartedAtTime) {
			return out[i].StartedAtTime.Before(out[j].StartedAtTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// planVersions returns the ids of every plan named name.
func (s *ActivityService) planVersions(ctx context.Context, name string) (map[string]bool, error) {
	plans, err := s.plans.GetAllPlans(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool)
	for _, p := range plans {
		if p.Name == name {
			ids[p.ID] = true
		}
	}
	return ids, nil
}

func hasPath(paths []string, p string) bool {
	p = pathutil.Clean(p)
	for _, q := range paths {
		if q == p {
			return true
		}
	}
	return false
}

func (f ActivityFilter) valueFilter() func(any) bool {
	switch {
	case f.ParameterPredicate != nil:
		return f.ParameterPredicate
	case f.ParameterValues != nil:
		return func(v any) bool {
			for _, want := range f.ParameterValues {
				if sameValue(v, want) {
					return true
				}
			}
			return false
		}
	case f.ParameterValue != nil:
		return func(v any) bool { return sameValue(v, f.ParameterValue) }
	}
	return nil
}

func (f ActivityFilter) matchParameters(a *model.Activity) bool {
	match := f.valueFilter()
	if f.ParameterName == "" && match == nil {
		return true
	}
	for _, pv := range a.Parameters {
		if f.ParameterName != "" && pv.Name != f.ParameterName {
			continue
		}
		if match == nil || match(pv.Value) {
			return true
		}
	}
	return false
}

// sameValue compares parameter values by their printed form, since decoded
// values lose their original numeric type.
func sameValue(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// Show returns the activity with id.
func (s *ActivityService) Show(ctx context.Context, id string) (*model.Activity, error) {
	a, err := s.activities.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, model.NewNotFound("activity", id)
	}
	return a, nil
}

// Plan returns the plan of a.
func (s *ActivityService) Plan(ctx context.Context, a *model.Activity) (*model.Plan, error) {
	p, err := s.plans.GetByID(ctx, a.Association.PlanID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, model.NewNotFound("plan", a.Association.PlanID)
	}
	return p, nil
}

// Remove marks the activity id deleted. Without force it fails while other
// activities depend on it.
func (s *ActivityService) Remove(ctx context.Context, id string, force bool) error {
	a, err := s.Show(ctx, id)
	if err != nil {
		return err
	}
	if a.IsDeleted() {
		return nil
	}
	if err := s.commit(ctx, s.activities.Remove(ctx, a, true, force)); err != nil {
		return err
	}
	s.logger.Info("activity removed", "id", id, "force", force)
	return nil
}

// Upstream returns the activities id depends on, up to maxDepth levels
// (0 for all).
func (s *ActivityService) Upstream(ctx context.Context, id string, maxDepth int) ([]*model.Activity, error) {
	a, err := s.Show(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.activities.GetUpstreamActivities(ctx, a, maxDepth)
}

// Downstream returns the activities depending on id.
func (s *ActivityService) Downstream(ctx context.Context, id string, maxDepth int) ([]*model.Activity, error) {
	a, err := s.Show(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.activities.GetDownstreamActivities(ctx, a, maxDepth)
}

// UpstreamChains returns every dependency path leading into id.
func (s *ActivityService) UpstreamChains(ctx context.Context, id string) ([][]*model.Activity, error) {
	a, err := s.Show(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.activities.GetUpstreamActivityChains(ctx, a)
}

// DownstreamChains returns every dependency path leaving id.
func (s *ActivityService) DownstreamChains(ctx context.Context, id string) ([][]*model.Activity, error) {
	a, err := s.Show(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.activities.GetDownstreamActivityChains(ctx, a)
}

// CreateCollection groups the activities ids, e.g. the steps of one
// workflow run.
func (s *ActivityService) CreateCollection(ctx context.Context, ids []string) (*model.ActivityCollection, error) {
	acts := make([]*model.Activity, 0, len(ids))
	for _, id := range ids {
		a, err := s.Show(ctx, id)
		if err != nil {
			return nil, err
		}
		acts = append(acts, a)
	}
	c := model.NewActivityCollection(acts...)
	if err := s.commit(ctx, s.activities.AddActivityCollection(ctx, c)); err != nil {
		return nil, err
	}
	return c, nil
}

// ActivityCollections returns every stored collection.
func (s *ActivityService) ActivityCollections(ctx context.Context) ([]*model.ActivityCollection, error) {
	return s.activities.GetAllActivityCollections(ctx)
}

// Plans returns every plan version.
func (s *ActivityService) Plans(ctx context.Context) ([]*model.Plan, error) {
	return s.plans.GetAllPlans(ctx)
}

// PlanByName returns the newest plan named name.
func (s *ActivityService) PlanByName(ctx context.Context, name string) (*model.Plan, error) {
	p, err := s.plans.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, model.NewNotFound("plan", name)
	}
	return p, nil
}
