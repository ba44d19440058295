package prov

import (
	"context"
	"fmt"
	"sort"

	"prov-go/internal/model"
	"prov-go/internal/pathutil"
)

// DatasetService implements the dataset commands. Every mutation derives a
// new version through DatasetsProvenance and commits once; on failure the
// staged writes are discarded.
type DatasetService struct {
	provenance *DatasetsProvenance
	workspace  Workspace
	tx         Transactor
	clock      Clock
	logger     Logger
}

// NewDatasetService creates a DatasetService.
func NewDatasetService(provenance *DatasetsProvenance, workspace Workspace, tx Transactor, clock Clock, logger Logger) *DatasetService {
	return &DatasetService{
		provenance: provenance,
		workspace:  workspace,
		tx:         tx,
		clock:      clock,
		logger:     logger,
	}
}

// commit makes the staged writes durable, or discards them when err is set.
func (s *DatasetService) commit(ctx context.Context, err error) error {
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

// CreateDatasetRequest describes a new dataset.
type CreateDatasetRequest struct {
	Slug        string
	Name        string
	Description string
	Creators    []model.Person
	Keywords    []string
	License     string
	Datadir     string
	Storage     string
	Annotations []model.Annotation
}

// Create stores the first version of a dataset.
func (s *DatasetService) Create(ctx context.Context, req CreateDatasetRequest) (*model.Dataset, error) {
	d, err := s.create(ctx, req)
	if err := s.commit(ctx, err); err != nil {
		return nil, err
	}
	s.logger.Info("dataset created", "slug", d.Slug, "id", d.ID)
	return d, nil
}

func (s *DatasetService) create(ctx context.Context, req CreateDatasetRequest) (*model.Dataset, error) {
	if !model.IsValidSlug(req.Slug) {
		return nil, fmt.Errorf("invalid dataset slug %q: use letters, digits, '.', '_' and '-'", req.Slug)
	}
	existing, err := s.provenance.GetByName(ctx, req.Slug, false)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, model.Conflictf("dataset %s already exists", req.Slug)
	}

	d, err := model.NewDataset(model.DatasetOptions{
		Slug:        req.Slug,
		Name:        req.Name,
		Description: req.Description,
		Creators:    req.Creators,
		Keywords:    req.Keywords,
		License:     req.License,
		Annotations: req.Annotations,
		Storage:     req.Storage,
		Datadir:     req.Datadir,
	}, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.provenance.AddOrUpdate(ctx, d, nil, nil); err != nil {
		return nil, err
	}
	return d, nil
}

// Edit applies e to the current version of slug and stores the result as a
// new version. It returns the changed field names; nothing is stored when
// nothing changed.
func (s *DatasetService) Edit(ctx context.Context, slug string, e model.DatasetEdit, creator *model.Person) ([]string, error) {
	current, err := s.provenance.GetByName(ctx, slug, true)
	if err != nil {
		return nil, err
	}
	d := current.Copy()
	changed := d.Edit(e)
	if len(changed) == 0 {
		return nil, nil
	}
	err = s.provenance.AddOrUpdate(ctx, d, nil, creator)
	if err := s.commit(ctx, err); err != nil {
		return nil, err
	}
	s.logger.Info("dataset edited", "slug", slug, "fields", changed)
	return changed, nil
}

// Show returns the current version of slug, or the version tagged tag.
func (s *DatasetService) Show(ctx context.Context, slug, tag string) (*model.Dataset, error) {
	d, err := s.provenance.GetByName(ctx, slug, true)
	if err != nil || tag == "" {
		return d, err
	}
	tags, err := s.provenance.GetAllTags(ctx, d)
	if err != nil {
		return nil, err
	}
	for _, t := range tags {
		if t.Name != tag {
			continue
		}
		v, err := s.provenance.GetByID(ctx, t.DatasetID)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, model.NewNotFound("dataset version", t.DatasetID)
		}
		return v, nil
	}
	return nil, model.NewNotFound("tag", tag)
}

// List returns the current version of every live dataset.
func (s *DatasetService) List(ctx context.Context) ([]*model.Dataset, error) {
	return s.provenance.datasets.GetAllActiveDatasets(ctx)
}

// History returns the derivation chain of slug, newest first.
func (s *DatasetService) History(ctx context.Context, slug string) ([]*model.Dataset, error) {
	d, err := s.provenance.GetByName(ctx, slug, true)
	if err != nil {
		return nil, err
	}
	return s.provenance.Chain(ctx, d)
}

// AddFilesOptions control AddFiles.
type AddFilesOptions struct {
	// Create creates the dataset when it does not exist yet.
	Create  bool
	Creator *model.Person
	// External marks the files as living outside the dataset datadir.
	External bool
}

// AddFiles adds the workspace files at paths to slug. Directories are
// expanded to their files. Files must lie within the dataset datadir unless
// they are external. Files already in the dataset with the same content are
// left alone. It returns the paths that were added or updated.
func (s *DatasetService) AddFiles(ctx context.Context, slug string, paths []string, opts AddFilesOptions) ([]string, error) {
	added, err := s.addFiles(ctx, slug, paths, opts)
	if err := s.commit(ctx, err); err != nil {
		return nil, err
	}
	if len(added) > 0 {
		s.logger.Info("files added to dataset", "slug", slug, "count", len(added))
	}
	return added, nil
}

func (s *DatasetService) addFiles(ctx context.Context, slug string, paths []string, opts AddFilesOptions) ([]string, error) {
	current, err := s.provenance.GetByName(ctx, slug, false)
	if err != nil {
		return nil, err
	}
	var d *model.Dataset
	switch {
	case current != nil:
		d = current.Copy()
	case opts.Create:
		if !model.IsValidSlug(slug) {
			return nil, fmt.Errorf("invalid dataset slug %q", slug)
		}
		if d, err = model.NewDataset(model.DatasetOptions{Slug: slug}, s.clock.Now()); err != nil {
			return nil, err
		}
		if opts.Creator != nil {
			d.Creators = append(d.Creators, *opts.Creator)
		}
	default:
		return nil, model.NewNotFound("dataset", slug)
	}

	files, err := s.expand(paths)
	if err != nil {
		return nil, err
	}

	datadir := d.GetDatadir()
	now := s.clock.Now()
	var newFiles []*model.DatasetFile
	var added []string
	for _, p := range files {
		if !opts.External && !pathutil.Within(p, datadir) {
			return nil, model.Conflictf("file %s is not inside the dataset data directory %s", p, datadir)
		}
		entity, err := s.workspace.Resolve(p)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}
		if existing := d.FindFile(p); existing != nil && existing.Entity.Checksum == entity.Checksum {
			continue
		}
		f := model.NewDatasetFile(entity, now)
		f.IsExternal = opts.External
		if size, err := s.workspace.Size(p); err == nil {
			f.Size = &size
		}
		newFiles = append(newFiles, f)
		added = append(added, p)
	}

	if current != nil && len(newFiles) == 0 {
		return nil, nil
	}
	d.AddOrUpdateFiles(newFiles...)
	if err := s.provenance.AddOrUpdate(ctx, d, &now, opts.Creator); err != nil {
		return nil, err
	}
	return added, nil
}

// expand turns the given paths into the sorted, distinct file paths below them.
func (s *DatasetService) expand(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, p := range paths {
		files, err := s.workspace.FindFiles(p)
		if err != nil {
			return nil, fmt.Errorf("finding files in %s: %w", p, err)
		}
		for _, f := range files {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// RemoveFiles unlinks the files at or below paths from slug and returns
// their paths. A path that matches no live file is a *model.NotFoundError.
func (s *DatasetService) RemoveFiles(ctx context.Context, slug string, paths []string, creator *model.Person) ([]string, error) {
	removed, err := s.removeFiles(ctx, slug, paths, creator)
	if err := s.commit(ctx, err); err != nil {
		return nil, err
	}
	s.logger.Info("files removed from dataset", "slug", slug, "count", len(removed))
	return removed, nil
}

func (s *DatasetService) removeFiles(ctx context.Context, slug string, paths []string, creator *model.Person) ([]string, error) {
	current, err := s.provenance.GetByName(ctx, slug, true)
	if err != nil {
		return nil, err
	}
	d := current.Copy()
	now := s.clock.Now()

	var removed []string
	for _, p := range paths {
		matched := false
		for _, f := range d.Files() {
			if !pathutil.Within(f.Path(), p) {
				continue
			}
			if _, ok := d.UnlinkFile(f.Path(), now); ok {
				removed = append(removed, f.Path())
				matched = true
			}
		}
		if !matched {
			return nil, model.NewNotFound("dataset file", pathutil.Clean(p))
		}
	}
	if err := s.provenance.AddOrUpdate(ctx, d, &now, creator); err != nil {
		return nil, err
	}
	sort.Strings(removed)
	return removed, nil
}

// Remove deletes the dataset slug. Older versions stay addressable.
func (s *DatasetService) Remove(ctx context.Context, slug string, creator *model.Person) (*model.Dataset, error) {
	current, err := s.provenance.GetByName(ctx, slug, true)
	if err != nil {
		return nil, err
	}
	d := current.Copy()
	err = s.provenance.Remove(ctx, d, nil, creator)
	if err := s.commit(ctx, err); err != nil {
		return nil, err
	}
	s.logger.Info("dataset removed", "slug", slug)
	return d, nil
}

// Tag names the current version of slug.
func (s *DatasetService) Tag(ctx context.Context, slug, name, description string, force bool) (*model.DatasetTag, error) {
	d, err := s.provenance.GetByName(ctx, slug, true)
	if err != nil {
		return nil, err
	}
	tag, err := s.provenance.AddTag(ctx, d, name, description, force)
	if err := s.commit(ctx, err); err != nil {
		return nil, err
	}
	return tag, nil
}

// Untag removes the tag name from slug.
func (s *DatasetService) Untag(ctx context.Context, slug, name string) error {
	d, err := s.provenance.GetByName(ctx, slug, true)
	if err != nil {
		return err
	}
	return s.commit(ctx, s.provenance.RemoveTag(ctx, d, name))
}

// ListTags returns the tags of slug ordered by creation date.
func (s *DatasetService) ListTags(ctx context.Context, slug string) ([]*model.DatasetTag, error) {
	d, err := s.provenance.GetByName(ctx, slug, true)
	if err != nil {
		return nil, err
	}
	return s.provenance.GetAllTags(ctx, d)
}

// UpdateResult lists the file changes Update found.
type UpdateResult struct {
	Updated []string
	Deleted []string
}

// Update re-checksums the live, non-external files of slug against the
// workspace. Changed files get new records; files gone from the workspace
// are unlinked. A new version is stored only when something changed.
func (s *DatasetService) Update(ctx context.Context, slug string, creator *model.Person) (*UpdateResult, error) {
	res, err := s.update(ctx, slug, creator)
	if err := s.commit(ctx, err); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *DatasetService) update(ctx context.Context, slug string, creator *model.Person) (*UpdateResult, error) {
	current, err := s.provenance.GetByName(ctx, slug, true)
	if err != nil {
		return nil, err
	}
	d := current.Copy()
	now := s.clock.Now()
	res := &UpdateResult{}

	var changed []*model.DatasetFile
	for _, f := range d.Files() {
		if f.IsExternal || f.BasedOn != nil {
			continue
		}
		p := f.Path()
		if !s.workspace.Exists(p) {
			d.UnlinkFile(p, now)
			res.Deleted = append(res.Deleted, p)
			continue
		}
		entity, err := s.workspace.Resolve(p)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}
		if entity.Checksum == f.Entity.Checksum {
			continue
		}
		nf := model.NewDatasetFile(entity, now)
		if size, err := s.workspace.Size(p); err == nil {
			nf.Size = &size
		}
		changed = append(changed, nf)
		res.Updated = append(res.Updated, p)
	}

	if len(changed) == 0 && len(res.Deleted) == 0 {
		return res, nil
	}
	d.AddOrUpdateFiles(changed...)
	if err := s.provenance.AddOrUpdate(ctx, d, &now, creator); err != nil {
		return nil, err
	}
	s.logger.Info("dataset updated", "slug", slug, "updated", len(res.Updated), "deleted", len(res.Deleted))
	return res, nil
}
