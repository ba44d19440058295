// Package prov holds the provenance services: the dataset derivation engine
// and the dataset and activity facades used by the command line.
package prov

import (
	"context"

	"prov-go/internal/model"
)

// ActivityGateway stores activities and answers graph queries over them.
// A maxDepth of 0 means unlimited.
type ActivityGateway interface {
	GetByID(ctx context.Context, id string) (*model.Activity, error)
	GetAllActivities(ctx context.Context, includeDeleted bool) ([]*model.Activity, error)
	GetActivitiesByUsage(ctx context.Context, path, checksum string) ([]*model.Activity, error)
	GetActivitiesByGeneration(ctx context.Context, path, checksum string) ([]*model.Activity, error)
	GetUpstreamActivities(ctx context.Context, a *model.Activity, maxDepth int) ([]*model.Activity, error)
	GetDownstreamActivities(ctx context.Context, a *model.Activity, maxDepth int) ([]*model.Activity, error)
	GetUpstreamActivityChains(ctx context.Context, a *model.Activity) ([][]*model.Activity, error)
	GetDownstreamActivityChains(ctx context.Context, a *model.Activity) ([][]*model.Activity, error)

	// Add fails with a *model.GraphError of kind model.ErrCycle, leaving the
	// index untouched, when a would close a cycle.
	Add(ctx context.Context, a *model.Activity) error

	// Remove fails with model.ErrDownstreamNotEmpty or model.ErrStaleCatalog
	// unless force is set.
	Remove(ctx context.Context, a *model.Activity, keepReference, force bool) error

	// Save rewrites the attributes of a stored activity.
	Save(ctx context.Context, a *model.Activity) error

	AddActivityCollection(ctx context.Context, c *model.ActivityCollection) error
	GetAllActivityCollections(ctx context.Context) ([]*model.ActivityCollection, error)

	// Catalog maintenance used by the consistency checks.
	ReindexCatalog(ctx context.Context) error
	CatalogSize(ctx context.Context) (int, error)
	StaleCatalogEntries(ctx context.Context) ([]string, error)
	OrphanedIndexEntries(ctx context.Context) ([]string, error)
}

// DatasetGateway stores dataset versions and tags.
type DatasetGateway interface {
	GetByID(ctx context.Context, id string) (*model.Dataset, error)
	GetByName(ctx context.Context, slug string) (*model.Dataset, error)
	GetAllActiveDatasets(ctx context.Context) ([]*model.Dataset, error)
	GetProvenanceTails(ctx context.Context) ([]*model.Dataset, error)
	GetAllVersions(ctx context.Context) ([]*model.Dataset, error)
	AddOrRemove(ctx context.Context, d *model.Dataset) error
	Save(ctx context.Context, d *model.Dataset) error

	GetAllTags(ctx context.Context, d *model.Dataset) ([]*model.DatasetTag, error)
	AddTag(ctx context.Context, d *model.Dataset, tag *model.DatasetTag) error
	RemoveTag(ctx context.Context, d *model.Dataset, name string) error
}

// PlanGateway stores plans; GetByName returns the newest plan of a name.
type PlanGateway interface {
	GetByID(ctx context.Context, id string) (*model.Plan, error)
	GetByName(ctx context.Context, name string) (*model.Plan, error)
	GetAllPlans(ctx context.Context) ([]*model.Plan, error)
	Add(ctx context.Context, p *model.Plan) error
	Save(ctx context.Context, p *model.Plan) error
	Remove(ctx context.Context, p *model.Plan) error
}

// Transactor makes the staged gateway writes durable or discards them.
type Transactor interface {
	Commit(ctx context.Context) error
	Rollback()
}

// Workspace resolves project paths into content-addressed entities.
// Paths are project-relative.
type Workspace interface {
	Resolve(path string) (model.Entity, error)
	FindFiles(path string) ([]string, error)
	Size(path string) (int64, error)
	Exists(path string) bool
}

// Metrics receives counts of provenance mutations.
type Metrics interface {
	DatasetVersionAdded(slug string)
	ActivityAdded()
	ActivityRejected(reason string)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) DatasetVersionAdded(string) {}
func (NopMetrics) ActivityAdded()             {}
func (NopMetrics) ActivityRejected(string)    {}
