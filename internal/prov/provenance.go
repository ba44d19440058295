package prov

import (
	"context"
	"fmt"
	"time"

	"prov-go/internal/model"
)

// DatasetsProvenance links every new dataset version to the current one of
// the same slug and hands the result to the gateway. It is the only place
// dataset versions are created.
type DatasetsProvenance struct {
	datasets DatasetGateway
	clock    Clock
	logger   Logger
	metrics  Metrics
}

// NewDatasetsProvenance creates a DatasetsProvenance.
func NewDatasetsProvenance(datasets DatasetGateway, clock Clock, logger Logger, metrics Metrics) *DatasetsProvenance {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &DatasetsProvenance{datasets: datasets, clock: clock, logger: logger, metrics: metrics}
}

func (p *DatasetsProvenance) date(date *time.Time) time.Time {
	if date != nil {
		return *date
	}
	return p.clock.Now()
}

// GetByID returns the dataset version with id, or nil.
func (p *DatasetsProvenance) GetByID(ctx context.Context, id string) (*model.Dataset, error) {
	return p.datasets.GetByID(ctx, id)
}

// GetByName returns the current version of slug. With strict set a missing
// dataset is a *model.NotFoundError instead of nil.
func (p *DatasetsProvenance) GetByName(ctx context.Context, slug string, strict bool) (*model.Dataset, error) {
	d, err := p.datasets.GetByName(ctx, slug)
	if err != nil {
		return nil, err
	}
	if d == nil && strict {
		return nil, model.NewNotFound("dataset", slug)
	}
	return d, nil
}

// GetProvenanceTails returns the newest version of every logical dataset.
func (p *DatasetsProvenance) GetProvenanceTails(ctx context.Context) ([]*model.Dataset, error) {
	return p.datasets.GetProvenanceTails(ctx)
}

// AddOrUpdate stores d as the next version of its dataset. d must be a
// detached value, typically a Copy of the current version with the desired
// changes applied. Its files are reconciled against the current version and
// it is derived from it; a brand new dataset must not claim a parent.
func (p *DatasetsProvenance) AddOrUpdate(ctx context.Context, d *model.Dataset, date *time.Time, creator *model.Person) error {
	now := p.date(date)
	current, err := p.datasets.GetByName(ctx, d.Slug)
	if err != nil {
		return fmt.Errorf("finding current version of %s: %w", d.Slug, err)
	}

	if current != nil {
		model.Invariant(!current.IsRemoved(), "dataset %s is removed and cannot be updated", current.ID)
		d.UpdateFilesFrom(current, now)
		d.DeriveFrom(current, creator, now)
	} else {
		model.Invariant(d.DerivedFrom == "", "new dataset %s cannot derive from %s", d.Slug, d.DerivedFrom)
	}

	if err := p.datasets.AddOrRemove(ctx, d); err != nil {
		return fmt.Errorf("storing dataset %s: %w", d.Slug, err)
	}
	p.metrics.DatasetVersionAdded(d.Slug)
	p.logger.Debug("dataset version added", "slug", d.Slug, "id", d.ID, "derived_from", d.DerivedFrom)
	return nil
}

// AddOrReplace stores d in place of the current version without deriving a
// new one. Imports use this: d takes over the identity and ancestry of the
// current version.
func (p *DatasetsProvenance) AddOrReplace(ctx context.Context, d *model.Dataset, date *time.Time) error {
	now := p.date(date)
	current, err := p.datasets.GetByName(ctx, d.Slug)
	if err != nil {
		return fmt.Errorf("finding current version of %s: %w", d.Slug, err)
	}
	if current != nil {
		model.Invariant(!current.IsRemoved(), "dataset %s is removed and cannot be replaced", current.ID)
		d.UpdateFilesFrom(current, now)
		d.ReplaceIdentity(current)
	}
	if err := p.datasets.AddOrRemove(ctx, d); err != nil {
		return fmt.Errorf("storing dataset %s: %w", d.Slug, err)
	}
	p.logger.Debug("dataset version replaced", "slug", d.Slug, "id", d.ID)
	return nil
}

// Remove stores a removal version of d's dataset.
func (p *DatasetsProvenance) Remove(ctx context.Context, d *model.Dataset, date *time.Time, creator *model.Person) error {
	now := p.date(date)
	current, err := p.datasets.GetByName(ctx, d.Slug)
	if err != nil {
		return fmt.Errorf("finding current version of %s: %w", d.Slug, err)
	}
	if current != nil {
		model.Invariant(!current.IsRemoved(), "dataset %s is already removed", current.ID)
		d.DeriveFrom(current, creator, now)
	}
	d.Remove(now)

	if err := p.datasets.AddOrRemove(ctx, d); err != nil {
		return fmt.Errorf("removing dataset %s: %w", d.Slug, err)
	}
	p.logger.Debug("dataset removed", "slug", d.Slug, "id", d.ID)
	return nil
}

// MigrationOptions control UpdateDuringMigration.
type MigrationOptions struct {
	Date    *time.Time
	Creator *model.Person
	Replace bool
	Remove  bool

	// Tags are copied onto the stored version unless the dataset already has
	// a tag of the same name.
	Tags []*model.DatasetTag
}

// UpdateDuringMigration stores d while converting an old project, where
// versions are replayed from history. It derives, replaces or removes
// according to opts and then propagates tags.
func (p *DatasetsProvenance) UpdateDuringMigration(ctx context.Context, d *model.Dataset, opts MigrationOptions) error {
	var err error
	switch {
	case opts.Remove:
		err = p.Remove(ctx, d, opts.Date, opts.Creator)
	case opts.Replace:
		err = p.AddOrReplace(ctx, d, opts.Date)
	default:
		err = p.AddOrUpdate(ctx, d, opts.Date, opts.Creator)
	}
	if err != nil {
		return err
	}
	if d.IsRemoved() || len(opts.Tags) == 0 {
		return nil
	}
	return p.propagateTags(ctx, d, opts.Tags)
}

func (p *DatasetsProvenance) propagateTags(ctx context.Context, target *model.Dataset, tags []*model.DatasetTag) error {
	existing, err := p.datasets.GetAllTags(ctx, target)
	if err != nil {
		return err
	}
	names := make(map[string]bool, len(existing))
	for _, t := range existing {
		names[t.Name] = true
	}
	for _, t := range tags {
		if names[t.Name] {
			continue
		}
		names[t.Name] = true
		if err := p.datasets.AddTag(ctx, target, t.Retarget(target.ID)); err != nil {
			return fmt.Errorf("copying tag %s: %w", t.Name, err)
		}
	}
	return nil
}

// GetAllTags returns the tags of d's dataset.
func (p *DatasetsProvenance) GetAllTags(ctx context.Context, d *model.Dataset) ([]*model.DatasetTag, error) {
	return p.datasets.GetAllTags(ctx, d)
}

// AddTag tags the version d. An existing tag of the same name is a conflict
// unless force is set, in which case it is moved to d.
func (p *DatasetsProvenance) AddTag(ctx context.Context, d *model.Dataset, name, description string, force bool) (*model.DatasetTag, error) {
	if !model.IsValidTagName(name) {
		return nil, model.Conflictf("invalid tag name %q", name)
	}
	tags, err := p.datasets.GetAllTags(ctx, d)
	if err != nil {
		return nil, err
	}
	for _, t := range tags {
		if t.Name == name && !force {
			return nil, model.Conflictf("tag %s already exists on dataset %s", name, d.Slug)
		}
	}
	tag := model.NewDatasetTag(d.ID, name, description, p.clock.Now())
	if err := p.datasets.AddTag(ctx, d, tag); err != nil {
		return nil, fmt.Errorf("adding tag %s: %w", name, err)
	}
	return tag, nil
}

// RemoveTag removes the tag name from d's dataset.
func (p *DatasetsProvenance) RemoveTag(ctx context.Context, d *model.Dataset, name string) error {
	tags, err := p.datasets.GetAllTags(ctx, d)
	if err != nil {
		return err
	}
	for _, t := range tags {
		if t.Name == name {
			return p.datasets.RemoveTag(ctx, d, name)
		}
	}
	return model.NewNotFound("tag", name)
}

// GetDescendants returns every version derived, directly or transitively,
// from d, nearest first.
func (p *DatasetsProvenance) GetDescendants(ctx context.Context, d *model.Dataset) ([]*model.Dataset, error) {
	all, err := p.datasets.GetAllVersions(ctx)
	if err != nil {
		return nil, err
	}
	children := make(map[string][]*model.Dataset)
	for _, v := range all {
		if v.DerivedFrom != "" && v.DerivedFrom != v.ID {
			children[v.DerivedFrom] = append(children[v.DerivedFrom], v)
		}
	}

	var out []*model.Dataset
	seen := map[string]bool{d.ID: true}
	queue := []string{d.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, c := range children[id] {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
			queue = append(queue, c.ID)
		}
	}
	return out, nil
}

// Chain returns the derivation chain ending at d, newest first. It stops at
// a missing parent or a repeated version.
func (p *DatasetsProvenance) Chain(ctx context.Context, d *model.Dataset) ([]*model.Dataset, error) {
	chain := []*model.Dataset{d}
	seen := map[string]bool{d.ID: true}
	for cur := d; cur.DerivedFrom != ""; {
		parent, err := p.datasets.GetByID(ctx, cur.DerivedFrom)
		if err != nil {
			return nil, err
		}
		if parent == nil || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		chain = append(chain, parent)
		cur = parent
	}
	return chain, nil
}
