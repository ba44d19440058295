package doctor

import (
	"context"
	"fmt"
	"strings"

	"prov-go/internal/model"
	"prov-go/internal/prov"
)

// PlanIDs finds plans stored under a legacy id. The fix moves each plan to
// the current scheme and repoints the activities executing it and the plans
// derived from it.
func PlanIDs(plans prov.PlanGateway, activities prov.ActivityGateway) Check {
	return checkFunc{name: "plan-ids", run: func(ctx context.Context, fix bool) (Result, error) {
		all, err := plans.GetAllPlans(ctx)
		if err != nil {
			return Result{}, err
		}
		var problems []string
		for _, p := range all {
			if strings.HasPrefix(p.ID, model.PlanIDPrefix()) {
				continue
			}
			problems = append(problems, p.ID)
			if fix {
				if err := movePlan(ctx, plans, activities, p); err != nil {
					return Result{}, err
				}
			}
		}
		return result(fix, "plans with legacy ids", problems), nil
	}}
}

func movePlan(ctx context.Context, plans prov.PlanGateway, activities prov.ActivityGateway, p *model.Plan) error {
	identifier := lastSegment(p.ID)
	if identifier == "" {
		identifier = model.NewIdentifier()
	}
	fixed := p.Copy()
	fixed.ChangeID(model.PlanID(identifier))
	if err := plans.Remove(ctx, p); err != nil {
		return fmt.Errorf("removing %s: %w", p.ID, err)
	}
	if err := plans.Add(ctx, fixed); err != nil {
		return fmt.Errorf("reinserting %s as %s: %w", p.ID, fixed.ID, err)
	}

	acts, err := activities.GetAllActivities(ctx, true)
	if err != nil {
		return err
	}
	for _, a := range acts {
		if a.Association.PlanID != p.ID {
			continue
		}
		model.Mutate(a, func() { a.SetPlan(fixed.ID) })
		if err := activities.Save(ctx, a); err != nil {
			return fmt.Errorf("saving %s: %w", a.ID, err)
		}
	}

	others, err := plans.GetAllPlans(ctx)
	if err != nil {
		return err
	}
	for _, q := range others {
		if q.DerivedFrom != p.ID {
			continue
		}
		model.Mutate(q, func() { q.SetDerivedFrom(fixed.ID) })
		if err := plans.Save(ctx, q); err != nil {
			return fmt.Errorf("saving %s: %w", q.ID, err)
		}
	}
	return nil
}

// PlanModificationDates finds plans without a modification date or modified
// before they were created. The fix sets it to the creation date.
func PlanModificationDates(plans prov.PlanGateway) Check {
	return checkFunc{name: "plan-modification-dates", run: func(ctx context.Context, fix bool) (Result, error) {
		all, err := plans.GetAllPlans(ctx)
		if err != nil {
			return Result{}, err
		}
		var problems []string
		for _, p := range all {
			if !p.DateModified.IsZero() && !p.DateModified.Before(p.DateCreated) {
				continue
			}
			problems = append(problems, p.ID)
			if !fix {
				continue
			}
			model.Mutate(p, func() { p.SetDateModified(p.DateCreated) })
			if err := plans.Save(ctx, p); err != nil {
				return Result{}, fmt.Errorf("saving %s: %w", p.ID, err)
			}
		}
		return result(fix, "plans with invalid modification dates", problems), nil
	}}
}

// PlanDerivation finds plans derived from themselves, from a missing plan
// or through a loop. The fix clears derived_from on the offending plan.
func PlanDerivation(plans prov.PlanGateway) Check {
	return checkFunc{name: "plan-derivation", run: func(ctx context.Context, fix bool) (Result, error) {
		all, err := plans.GetAllPlans(ctx)
		if err != nil {
			return Result{}, err
		}
		byID := make(map[string]*model.Plan, len(all))
		for _, p := range all {
			byID[p.ID] = p
		}

		var problems []string
		cleared := make(map[string]bool)
		for _, start := range all {
			seen := make(map[string]bool)
			for cur := start; cur.DerivedFrom != "" && !cleared[cur.ID]; {
				seen[cur.ID] = true
				parent := byID[cur.DerivedFrom]

				reason := ""
				switch {
				case cur.DerivedFrom == cur.ID:
					reason = "derived from itself"
				case parent == nil:
					reason = "derived from missing " + cur.DerivedFrom
				case seen[parent.ID]:
					reason = "derivation loop through " + parent.ID
				}
				if reason == "" {
					cur = parent
					continue
				}

				problems = append(problems, fmt.Sprintf("%s (%s): %s", cur.ID, cur.Name, reason))
				cleared[cur.ID] = true
				if fix {
					p := cur
					model.Mutate(p, func() { p.SetDerivedFrom("") })
					if err := plans.Save(ctx, p); err != nil {
						return Result{}, fmt.Errorf("saving %s: %w", p.ID, err)
					}
				}
				break
			}
		}
		return result(fix, "plans with invalid derivation", problems), nil
	}}
}
