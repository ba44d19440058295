// Package gateway persists datasets, plans and activities in a store.Store
// and maintains the indices the provenance services query.
package gateway

import (
	"sort"

	"prov-go/internal/model"
)

// Store containers.
const (
	ContainerActivities          = "activities"
	ContainerActivitiesByUsage   = "activities-by-usage"
	ContainerActivitiesByGen     = "activities-by-generation"
	ContainerActivityCatalog     = "activity-catalog"
	ContainerActivityCollections = "activity-collections"
	ContainerDatasets            = "datasets"
	ContainerDatasetVersions     = "dataset-versions"
	ContainerDatasetsTails       = "datasets-provenance-tails"
	ContainerDatasetsTags        = "datasets-tags"
	ContainerPlans               = "plans"
	ContainerPlansByName         = "plans-by-name"
	ContainerOperations          = "operations"
)

type stringSet map[string]struct{}

func (s stringSet) add(v string)      { s[v] = struct{}{} }
func (s stringSet) has(v string) bool { _, ok := s[v]; return ok }

func (s stringSet) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func insertSorted(list []string, v string) []string {
	i := sort.SearchStrings(list, v)
	if i < len(list) && list[i] == v {
		return list
	}
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = v
	return list
}

func removeSorted(list []string, v string) []string {
	i := sort.SearchStrings(list, v)
	if i < len(list) && list[i] == v {
		return append(list[:i:i], list[i+1:]...)
	}
	return list
}

func sortActivities(acts []*model.Activity) {
	sort.Slice(acts, func(i, j int) bool {
		if !acts[i].StartedAtTime.Equal(acts[j].StartedAtTime) {
			return acts[i].StartedAtTime.Before(acts[j].StartedAtTime)
		}
		return acts[i].ID < acts[j].ID
	})
}
