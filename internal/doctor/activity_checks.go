package doctor

import (
	"context"
	"fmt"
	"strings"

	"prov-go/internal/model"
	"prov-go/internal/prov"
)

// ActivityIDs finds activities stored under a legacy id, i.e. one not
// starting with /activities/. The fix reinserts them under the current
// scheme together with their usages, generations, parameter values and
// association.
func ActivityIDs(activities prov.ActivityGateway) Check {
	return checkFunc{name: "activity-ids", run: func(ctx context.Context, fix bool) (Result, error) {
		all, err := activities.GetAllActivities(ctx, true)
		if err != nil {
			return Result{}, err
		}
		var problems []string
		for _, a := range all {
			if strings.HasPrefix(a.ID, model.ActivityIDPrefix()) {
				continue
			}
			problems = append(problems, a.ID)
			if !fix {
				continue
			}
			identifier := lastSegment(a.ID)
			if identifier == "" {
				identifier = model.NewIdentifier()
			}
			fixed := a.Copy()
			fixed.ChangeID(model.ActivityID(identifier))
			if err := activities.Remove(ctx, a, false, true); err != nil {
				return Result{}, fmt.Errorf("removing %s: %w", a.ID, err)
			}
			if err := activities.Add(ctx, fixed); err != nil {
				return Result{}, fmt.Errorf("reinserting %s as %s: %w", a.ID, fixed.ID, err)
			}
		}
		return result(fix, "activities with legacy ids", problems), nil
	}}
}

// ActivityDates finds activities that start before their plan was created,
// end before they start or are invalidated before they end. The fix clamps
// the start, then the end against the new start, then the invalidation
// against the new end.
func ActivityDates(activities prov.ActivityGateway, plans prov.PlanGateway) Check {
	return checkFunc{name: "activity-dates", run: func(ctx context.Context, fix bool) (Result, error) {
		all, err := activities.GetAllActivities(ctx, true)
		if err != nil {
			return Result{}, err
		}
		var problems []string
		for _, a := range all {
			plan, err := plans.GetByID(ctx, a.Association.PlanID)
			if err != nil {
				return Result{}, err
			}

			started, ended, invalidated := a.StartedAtTime, a.EndedAtTime, a.InvalidatedAt
			changed := false
			if plan != nil && started.Before(plan.DateCreated) {
				started = plan.DateCreated
				changed = true
			}
			if ended.Before(started) {
				ended = started
				changed = true
			}
			if invalidated != nil && invalidated.Before(ended) {
				clamped := ended
				invalidated = &clamped
				changed = true
			}
			if !changed {
				continue
			}

			problems = append(problems, a.ID)
			if !fix {
				continue
			}
			model.Mutate(a, func() { a.SetTimes(started, ended, invalidated) })
			if err := activities.Save(ctx, a); err != nil {
				return Result{}, fmt.Errorf("saving %s: %w", a.ID, err)
			}
		}
		return result(fix, "activities with invalid dates", problems), nil
	}}
}

// ActivityCatalog finds a missing or drifted activity catalog: the catalog
// is empty while live activities exist, an entry disagrees with the path
// indices, or an index or catalog entry names an activity that is gone or
// deleted. The fix rebuilds the catalog.
func ActivityCatalog(activities prov.ActivityGateway) Check {
	return checkFunc{name: "activity-catalog", run: func(ctx context.Context, fix bool) (Result, error) {
		size, err := activities.CatalogSize(ctx)
		if err != nil {
			return Result{}, err
		}
		live, err := activities.GetAllActivities(ctx, false)
		if err != nil {
			return Result{}, err
		}

		var problems []string
		if size == 0 && len(live) > 0 {
			problems = append(problems, fmt.Sprintf("catalog is empty but %d activities exist", len(live)))
		} else {
			if problems, err = activities.StaleCatalogEntries(ctx); err != nil {
				return Result{}, err
			}
		}
		orphans, err := activities.OrphanedIndexEntries(ctx)
		if err != nil {
			return Result{}, err
		}
		for _, id := range orphans {
			problems = append(problems, fmt.Sprintf("%s is indexed but not a live activity", id))
		}
		if len(problems) > 0 && fix {
			if err := activities.ReindexCatalog(ctx); err != nil {
				return Result{}, fmt.Errorf("rebuilding catalog: %w", err)
			}
		}
		return result(fix, "activity catalog problems", problems), nil
	}}
}
