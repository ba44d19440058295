package gateway

import (
	"context"
	"fmt"
	"sort"

	"prov-go/internal/model"
	"prov-go/internal/prov"
	"prov-go/internal/store"
)

// PlanGateway stores plans and tracks the newest plan per name.
type PlanGateway struct {
	store *store.Store
}

// NewPlanGateway creates a PlanGateway over s.
func NewPlanGateway(s *store.Store) *PlanGateway {
	return &PlanGateway{store: s}
}

// GetByID returns the plan with id, or nil.
func (g *PlanGateway) GetByID(ctx context.Context, id string) (*model.Plan, error) {
	p, err := store.Load[model.Plan](ctx, g.store, ContainerPlans, model.OID(id))
	if err != nil {
		return nil, fmt.Errorf("loading plan: %w", err)
	}
	if p != nil {
		p.Freeze()
	}
	return p, nil
}

// GetByName returns the newest plan named name, or nil.
func (g *PlanGateway) GetByName(ctx context.Context, name string) (*model.Plan, error) {
	id, err := store.Load[string](ctx, g.store, ContainerPlansByName, name)
	if err != nil {
		return nil, fmt.Errorf("looking up plan %s: %w", name, err)
	}
	if id == nil {
		return nil, nil
	}
	return g.GetByID(ctx, *id)
}

// GetAllPlans returns every plan, ordered by creation date then id.
func (g *PlanGateway) GetAllPlans(ctx context.Context) ([]*model.Plan, error) {
	plans, err := store.LoadAll[model.Plan](ctx, g.store, ContainerPlans)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		p.Freeze()
	}
	sort.Slice(plans, func(i, j int) bool {
		if !plans[i].DateCreated.Equal(plans[j].DateCreated) {
			return plans[i].DateCreated.Before(plans[j].DateCreated)
		}
		return plans[i].ID < plans[j].ID
	})
	return plans, nil
}

// Add stores p. It becomes the newest plan of its name unless the current
// newest was modified after it.
func (g *PlanGateway) Add(ctx context.Context, p *model.Plan) error {
	existing, err := g.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return model.Conflictf("plan %s already exists", p.ID)
	}
	if err := store.Save(g.store, ContainerPlans, model.OID(p.ID), p); err != nil {
		return fmt.Errorf("saving plan: %w", err)
	}
	if p.Name != "" {
		newest, err := g.GetByName(ctx, p.Name)
		if err != nil {
			return err
		}
		if newest == nil || !p.DateModified.Before(newest.DateModified) {
			id := p.ID
			if err := store.Save(g.store, ContainerPlansByName, p.Name, &id); err != nil {
				return fmt.Errorf("indexing plan: %w", err)
			}
		}
	}
	p.Freeze()
	return nil
}

// Save rewrites a stored plan in place.
func (g *PlanGateway) Save(ctx context.Context, p *model.Plan) error {
	existing, err := g.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return model.NewNotFound("plan", p.ID)
	}
	if err := store.Save(g.store, ContainerPlans, model.OID(p.ID), p); err != nil {
		return fmt.Errorf("saving plan: %w", err)
	}
	p.Freeze()
	return nil
}

// Remove purges p from the store. The name index is dropped when it points
// at p.
func (g *PlanGateway) Remove(ctx context.Context, p *model.Plan) error {
	g.store.Delete(ContainerPlans, model.OID(p.ID))
	if p.Name == "" {
		return nil
	}
	id, err := store.Load[string](ctx, g.store, ContainerPlansByName, p.Name)
	if err != nil {
		return err
	}
	if id != nil && *id == p.ID {
		g.store.Delete(ContainerPlansByName, p.Name)
	}
	return nil
}

// Compile-time check
var _ prov.PlanGateway = (*PlanGateway)(nil)
