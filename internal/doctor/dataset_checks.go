package doctor

import (
	"context"
	"fmt"
	"sort"

	"prov-go/internal/model"
	"prov-go/internal/pathutil"
	"prov-go/internal/prov"
)

// DatasetDerivation walks the derivation chain of every provenance tail and
// finds versions whose derived_from points at themselves, at nothing, back
// into their own chain or at a version another chain already derives from.
// Imported versions (same_as set) must not carry a derivation at all. The
// fix clears derived_from on the offending version.
//
// When two chains share an ancestor, as after merging two branches that
// both changed a dataset, the chain of the current version keeps it.
func DatasetDerivation(datasets prov.DatasetGateway) Check {
	return checkFunc{name: "dataset-derivation", run: func(ctx context.Context, fix bool) (Result, error) {
		tails, err := datasets.GetProvenanceTails(ctx)
		if err != nil {
			return Result{}, err
		}
		if err := currentFirst(ctx, datasets, tails); err != nil {
			return Result{}, err
		}

		var problems []string
		claimed := make(map[string]string) // parent id -> child id
		cleared := make(map[string]bool)
		for _, tail := range tails {
			seen := make(map[string]bool)
			for cur := tail; cur.DerivedFrom != "" && !cleared[cur.ID]; {
				seen[cur.ID] = true
				parentID := cur.DerivedFrom

				reason := ""
				var parent *model.Dataset
				switch {
				case parentID == cur.ID:
					reason = "derived from itself"
				case cur.SameAs != "":
					reason = "imported but derived from " + parentID
				case seen[parentID]:
					reason = "derivation loop through " + parentID
				case claimed[parentID] != "" && claimed[parentID] != cur.ID:
					reason = fmt.Sprintf("%s is also derived from %s", claimed[parentID], parentID)
				default:
					if parent, err = datasets.GetByID(ctx, parentID); err != nil {
						return Result{}, err
					}
					if parent == nil {
						reason = "derived from missing " + parentID
					}
				}

				if reason == "" {
					claimed[parentID] = cur.ID
					cur = parent
					continue
				}
				problems = append(problems, fmt.Sprintf("%s (%s): %s", cur.ID, cur.Slug, reason))
				cleared[cur.ID] = true
				if fix {
					d := cur
					model.Mutate(d, d.ClearDerivedFrom)
					if err := datasets.Save(ctx, d); err != nil {
						return Result{}, fmt.Errorf("saving %s: %w", d.ID, err)
					}
				}
				break
			}
		}
		return result(fix, "datasets with invalid derivation", problems), nil
	}}
}

// currentFirst orders tails so versions current under their slug come first,
// then the most recently modified.
func currentFirst(ctx context.Context, datasets prov.DatasetGateway, tails []*model.Dataset) error {
	current := make(map[string]bool)
	for _, t := range tails {
		d, err := datasets.GetByName(ctx, t.Slug)
		if err != nil {
			return err
		}
		if d != nil && d.ID == t.ID {
			current[t.ID] = true
		}
	}
	sort.SliceStable(tails, func(i, j int) bool {
		a, b := tails[i], tails[j]
		if current[a.ID] != current[b.ID] {
			return current[a.ID]
		}
		if !a.DateModified.Equal(b.DateModified) {
			return a.DateModified.After(b.DateModified)
		}
		return a.ID < b.ID
	})
	return nil
}

// DatasetDates finds dataset versions breaking the date invariants: exactly
// one of created and published, modified not before created, removed not
// before modified, and files not removed before they were added. The fix
// clamps the dates.
func DatasetDates(datasets prov.DatasetGateway) Check {
	return checkFunc{name: "dataset-dates", run: func(ctx context.Context, fix bool) (Result, error) {
		all, err := datasets.GetAllVersions(ctx)
		if err != nil {
			return Result{}, err
		}
		var problems []string
		for _, d := range all {
			found := d.DateProblems()
			if len(found) == 0 {
				continue
			}
			for _, p := range found {
				problems = append(problems, d.ID+": "+p)
			}
			if !fix {
				continue
			}
			model.Mutate(d, d.RepairDates)
			if err := datasets.Save(ctx, d); err != nil {
				return Result{}, fmt.Errorf("saving %s: %w", d.ID, err)
			}
		}
		return result(fix, "dataset date problems", problems), nil
	}}
}

// DatasetDatadir finds live files of active datasets that lie outside the
// dataset data directory. Moving files is up to the user.
func DatasetDatadir(datasets prov.DatasetGateway) Check {
	return checkFunc{name: "dataset-datadir", run: func(ctx context.Context, _ bool) (Result, error) {
		active, err := datasets.GetAllActiveDatasets(ctx)
		if err != nil {
			return Result{}, err
		}
		var problems []string
		for _, d := range active {
			datadir := d.GetDatadir()
			for _, f := range d.Files() {
				if f.IsExternal || pathutil.Within(f.Path(), datadir) {
					continue
				}
				problems = append(problems, fmt.Sprintf("%s: %s is outside %s", d.Slug, f.Path(), datadir))
			}
		}
		return manualResult("dataset files outside their data directory", "Move the files into the data directory or re-add them as external files.", problems), nil
	}}
}
