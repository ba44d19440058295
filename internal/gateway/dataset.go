package gateway

import (
	"context"
	"fmt"
	"sort"

	"prov-go/internal/model"
	"prov-go/internal/prov"
	"prov-go/internal/store"
)

// DatasetGateway stores dataset versions. Besides the versions themselves it
// maintains the slug index of live datasets, the provenance tails (newest
// version of every logical dataset, removed ones included) and tags.
type DatasetGateway struct {
	store *store.Store
}

// NewDatasetGateway creates a DatasetGateway over s.
func NewDatasetGateway(s *store.Store) *DatasetGateway {
	return &DatasetGateway{store: s}
}

func (g *DatasetGateway) load(ctx context.Context, id string) (*model.Dataset, error) {
	d, err := store.Load[model.Dataset](ctx, g.store, ContainerDatasetVersions, model.OID(id))
	if err != nil {
		return nil, fmt.Errorf("loading dataset: %w", err)
	}
	if d != nil && !d.IsFrozen() {
		d.Normalize()
		d.Freeze()
	}
	return d, nil
}

// GetByID returns the dataset version with id, or nil.
func (g *DatasetGateway) GetByID(ctx context.Context, id string) (*model.Dataset, error) {
	return g.load(ctx, id)
}

// GetByName returns the current version of the live dataset with slug, or nil.
func (g *DatasetGateway) GetByName(ctx context.Context, slug string) (*model.Dataset, error) {
	id, err := store.Load[string](ctx, g.store, ContainerDatasets, slug)
	if err != nil {
		return nil, fmt.Errorf("looking up dataset %s: %w", slug, err)
	}
	if id == nil {
		return nil, nil
	}
	d, err := g.load(ctx, *id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("dataset %s points at missing version %s", slug, *id)
	}
	return d, nil
}

// GetAllActiveDatasets returns the current version of every live dataset,
// ordered by slug.
func (g *DatasetGateway) GetAllActiveDatasets(ctx context.Context) ([]*model.Dataset, error) {
	slugs, err := g.store.Keys(ctx, ContainerDatasets)
	if err != nil {
		return nil, err
	}
	datasets := make([]*model.Dataset, 0, len(slugs))
	for _, slug := range slugs {
		d, err := g.GetByName(ctx, slug)
		if err != nil {
			return nil, err
		}
		if d != nil {
			datasets = append(datasets, d)
		}
	}
	return datasets, nil
}

// GetProvenanceTails returns the newest version of every logical dataset,
// ordered by slug then id.
func (g *DatasetGateway) GetProvenanceTails(ctx context.Context) ([]*model.Dataset, error) {
	keys, err := g.store.Keys(ctx, ContainerDatasetsTails)
	if err != nil {
		return nil, err
	}
	var tails []*model.Dataset
	for _, k := range keys {
		id, err := store.Load[string](ctx, g.store, ContainerDatasetsTails, k)
		if err != nil {
			return nil, err
		}
		if id == nil {
			continue
		}
		d, err := g.load(ctx, *id)
		if err != nil {
			return nil, err
		}
		if d != nil {
			tails = append(tails, d)
		}
	}
	sortDatasets(tails)
	return tails, nil
}

// GetAllVersions returns every stored dataset version, ordered by slug then id.
func (g *DatasetGateway) GetAllVersions(ctx context.Context) ([]*model.Dataset, error) {
	all, err := store.LoadAll[model.Dataset](ctx, g.store, ContainerDatasetVersions)
	if err != nil {
		return nil, err
	}
	for _, d := range all {
		if !d.IsFrozen() {
			d.Normalize()
			d.Freeze()
		}
	}
	sortDatasets(all)
	return all, nil
}

func sortDatasets(ds []*model.Dataset) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].Slug != ds[j].Slug {
			return ds[i].Slug < ds[j].Slug
		}
		return ds[i].ID < ds[j].ID
	})
}

// AddOrRemove stores d as the newest version of its dataset. A removed d
// drops the dataset from the live slug index and its tags.
func (g *DatasetGateway) AddOrRemove(ctx context.Context, d *model.Dataset) error {
	if err := store.Save(g.store, ContainerDatasetVersions, model.OID(d.ID), d); err != nil {
		return fmt.Errorf("saving dataset: %w", err)
	}

	if d.IsRemoved() {
		g.store.Delete(ContainerDatasets, d.Slug)
		g.store.Delete(ContainerDatasetsTags, d.Slug)
	} else {
		id := d.ID
		if err := store.Save(g.store, ContainerDatasets, d.Slug, &id); err != nil {
			return fmt.Errorf("indexing dataset: %w", err)
		}
	}

	if d.DerivedFrom != "" {
		g.store.Delete(ContainerDatasetsTails, model.OID(d.DerivedFrom))
	}
	id := d.ID
	if err := store.Save(g.store, ContainerDatasetsTails, model.OID(d.ID), &id); err != nil {
		return fmt.Errorf("updating provenance tails: %w", err)
	}
	d.Freeze()
	return nil
}

// Save rewrites a stored version in place. Only the consistency checks do
// this; regular updates derive a new version.
func (g *DatasetGateway) Save(ctx context.Context, d *model.Dataset) error {
	existing, err := g.GetByID(ctx, d.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return model.NewNotFound("dataset", d.ID)
	}
	if err := store.Save(g.store, ContainerDatasetVersions, model.OID(d.ID), d); err != nil {
		return fmt.Errorf("saving dataset: %w", err)
	}
	d.Freeze()
	return nil
}

// GetAllTags returns the tags of d's dataset ordered by creation date.
func (g *DatasetGateway) GetAllTags(ctx context.Context, d *model.Dataset) ([]*model.DatasetTag, error) {
	tags, err := store.Load[[]*model.DatasetTag](ctx, g.store, ContainerDatasetsTags, d.Slug)
	if err != nil {
		return nil, fmt.Errorf("loading tags: %w", err)
	}
	if tags == nil {
		return nil, nil
	}
	out := append([]*model.DatasetTag(nil), (*tags)...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DateCreated.Before(out[j].DateCreated) })
	return out, nil
}

// AddTag adds tag to d's dataset, replacing an existing tag with the same name.
func (g *DatasetGateway) AddTag(ctx context.Context, d *model.Dataset, tag *model.DatasetTag) error {
	tags, err := g.GetAllTags(ctx, d)
	if err != nil {
		return err
	}
	kept := tags[:0:0]
	for _, t := range tags {
		if t.Name != tag.Name {
			kept = append(kept, t)
		}
	}
	kept = append(kept, tag)
	return store.Save(g.store, ContainerDatasetsTags, d.Slug, &kept)
}

// RemoveTag removes the tag named name from d's dataset.
func (g *DatasetGateway) RemoveTag(ctx context.Context, d *model.Dataset, name string) error {
	tags, err := g.GetAllTags(ctx, d)
	if err != nil {
		return err
	}
	kept := tags[:0:0]
	for _, t := range tags {
		if t.Name != name {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		g.store.Delete(ContainerDatasetsTags, d.Slug)
		return nil
	}
	return store.Save(g.store, ContainerDatasetsTags, d.Slug, &kept)
}

// Compile-time check
var _ prov.DatasetGateway = (*DatasetGateway)(nil)
