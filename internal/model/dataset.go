package model

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"prov-go/internal/pathutil"
)

var (
	slugRegex      = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)
	slugInvalidRun = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
)

// NewIdentifier returns a random identifier in the hex form used for ids.
func NewIdentifier() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsValidSlug reports whether s can be used as a dataset slug.
func IsValidSlug(s string) bool {
	return slugRegex.MatchString(s) && !strings.Contains(s, "..")
}

// Slugify derives a slug from a human readable title.
func Slugify(title string) string {
	s := slugInvalidRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), "_")
	s = strings.Trim(s, "._-")
	for strings.Contains(s, "..") {
		s = strings.ReplaceAll(s, "..", ".")
	}
	return s
}

// Person is a creator or responsible agent.
type Person struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	Affiliation string `json:"affiliation,omitempty"`
}

// NewPerson creates a Person whose id is derived from the email, or the name
// when no email is known.
func NewPerson(name, email string) Person {
	key := email
	if key == "" {
		key = name
	}
	return Person{ID: "/persons/" + url.PathEscape(key), Name: name, Email: email}
}

// Annotation is free-form custom metadata attached to a dataset.
type Annotation struct {
	ID     string            `json:"id"`
	Source string            `json:"source"`
	Body   map[string]string `json:"body,omitempty"`
}

func (a Annotation) copy() Annotation {
	c := a
	if a.Body != nil {
		c.Body = make(map[string]string, len(a.Body))
		for k, v := range a.Body {
			c.Body[k] = v
		}
	}
	return c
}

// DatasetFile is a file as it exists in one dataset version. Its id is random
// because the same entity can be added and removed several times over a
// dataset's history and each occurrence is indexed separately.
type DatasetFile struct {
	ID          string        `json:"id"`
	Entity      Entity        `json:"entity"`
	BasedOn     *RemoteEntity `json:"based_on,omitempty"`
	DateAdded   time.Time     `json:"date_added"`
	DateRemoved *time.Time    `json:"date_removed,omitempty"`
	IsExternal  bool          `json:"is_external,omitempty"`
	Linked      bool          `json:"linked,omitempty"`
	Size        *int64        `json:"size,omitempty"`
	Source      string        `json:"source,omitempty"`
}

func newDatasetFileID() string {
	return "/dataset-files/" + NewIdentifier()
}

// NewDatasetFile creates a live DatasetFile for entity.
func NewDatasetFile(entity Entity, dateAdded time.Time) *DatasetFile {
	return &DatasetFile{ID: newDatasetFileID(), Entity: entity, DateAdded: dateAdded}
}

// FromDatasetFile clones f under a new identity.
func FromDatasetFile(f *DatasetFile) *DatasetFile {
	c := f.Copy()
	c.ID = newDatasetFileID()
	return c
}

// Copy returns an independent copy of f keeping its identity.
func (f *DatasetFile) Copy() *DatasetFile {
	c := *f
	if f.BasedOn != nil {
		b := *f.BasedOn
		c.BasedOn = &b
	}
	if f.DateRemoved != nil {
		d := *f.DateRemoved
		c.DateRemoved = &d
	}
	if f.Size != nil {
		s := *f.Size
		c.Size = &s
	}
	return &c
}

// Path returns the project-relative path of the file.
func (f *DatasetFile) Path() string { return f.Entity.Path }

// IsRemoved reports whether the file was unlinked from its dataset.
func (f *DatasetFile) IsRemoved() bool { return f.DateRemoved != nil }

// Remove marks the file removed at date. A removal date earlier than the date
// the file was added is raised to the added date.
func (f *DatasetFile) Remove(date time.Time) {
	if date.Before(f.DateAdded) {
		date = f.DateAdded
	}
	f.DateRemoved = &date
}

// IsEqualTo compares content and metadata, ignoring the identifier.
func (f *DatasetFile) IsEqualTo(o *DatasetFile) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.Entity.Equal(o.Entity) &&
		equalRemote(f.BasedOn, o.BasedOn) &&
		f.DateAdded.Equal(o.DateAdded) &&
		equalTimePtr(f.DateRemoved, o.DateRemoved) &&
		f.IsExternal == o.IsExternal &&
		f.Linked == o.Linked &&
		equalInt64Ptr(f.Size, o.Size) &&
		f.Source == o.Source
}

func equalRemote(a, b *RemoteEntity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Dataset is one version of a logical dataset. Versions of the same logical
// dataset share Slug and InitialIdentifier and are linked through DerivedFrom.
type Dataset struct {
	Persistent `json:"-"`

	ID                string         `json:"id"`
	Identifier        string         `json:"identifier"`
	InitialIdentifier string         `json:"initial_identifier"`
	Slug              string         `json:"slug"`
	Name              string         `json:"name,omitempty"`
	Title             string         `json:"title,omitempty"` // legacy human label, see Normalize
	Description       string         `json:"description,omitempty"`
	Creators          []Person       `json:"creators,omitempty"`
	Keywords          []string       `json:"keywords,omitempty"`
	License           string         `json:"license,omitempty"`
	Annotations       []Annotation   `json:"annotations,omitempty"`
	DatasetFiles      []*DatasetFile `json:"dataset_files,omitempty"`
	DateCreated       *time.Time     `json:"date_created,omitempty"`
	DatePublished     *time.Time     `json:"date_published,omitempty"`
	DateModified      time.Time      `json:"date_modified"`
	DateRemoved       *time.Time     `json:"date_removed,omitempty"`
	DerivedFrom       string         `json:"derived_from,omitempty"`
	SameAs            string         `json:"same_as,omitempty"`
	Storage           string         `json:"storage,omitempty"`
	Datadir           string         `json:"datadir,omitempty"`
}

// DatasetOptions are the inputs of NewDataset.
type DatasetOptions struct {
	Identifier    string
	Slug          string
	Name          string
	Description   string
	Creators      []Person
	Keywords      []string
	License       string
	Annotations   []Annotation
	Files         []*DatasetFile
	DateCreated   *time.Time
	DatePublished *time.Time
	SameAs        string
	Storage       string
	Datadir       string
}

// DatasetID returns the id of the dataset version with identifier.
func DatasetID(identifier string) string {
	return "/datasets/" + identifier
}

// DefaultDatadir is the data directory used when a dataset does not set one.
func DefaultDatadir(slug string) string {
	return pathutil.Clean("data/" + slug)
}

// NewDataset creates the first version of a dataset. When neither
// DateCreated nor DatePublished is given the dataset is created at now.
func NewDataset(opts DatasetOptions, now time.Time) (*Dataset, error) {
	if !IsValidSlug(opts.Slug) {
		return nil, fmt.Errorf("invalid dataset slug %q", opts.Slug)
	}
	if opts.DateCreated != nil && opts.DatePublished != nil {
		return nil, fmt.Errorf("dataset %s: only one of date created and date published can be set", opts.Slug)
	}
	identifier := opts.Identifier
	if identifier == "" {
		identifier = NewIdentifier()
	}
	d := &Dataset{
		ID:                DatasetID(identifier),
		Identifier:        identifier,
		InitialIdentifier: identifier,
		Slug:              opts.Slug,
		Name:              opts.Name,
		Description:       opts.Description,
		Creators:          append([]Person(nil), opts.Creators...),
		Keywords:          append([]string(nil), opts.Keywords...),
		License:           opts.License,
		DatasetFiles:      opts.Files,
		DateCreated:       opts.DateCreated,
		DatePublished:     opts.DatePublished,
		SameAs:            opts.SameAs,
		Storage:           opts.Storage,
		Datadir:           pathutil.Clean(opts.Datadir),
	}
	for _, a := range opts.Annotations {
		d.Annotations = append(d.Annotations, a.copy())
	}
	if d.Name == "" {
		d.Name = d.Slug
	}
	if d.DateCreated == nil && d.DatePublished == nil {
		created := now
		d.DateCreated = &created
	}
	d.DateModified = later(now, d.baseDate())
	d.checkDates()
	return d, nil
}

func later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func (d *Dataset) baseDate() time.Time {
	if d.DateCreated != nil {
		return *d.DateCreated
	}
	if d.DatePublished != nil {
		return *d.DatePublished
	}
	return time.Time{}
}

// checkDates enforces the date invariants after construction and mutation.
func (d *Dataset) checkDates() {
	Invariant((d.DateCreated == nil) != (d.DatePublished == nil),
		"dataset %s must have exactly one of date created and date published", d.ID)
	Invariant(!d.DateModified.Before(d.baseDate()),
		"dataset %s modified before it was created", d.ID)
	if d.DateRemoved != nil {
		Invariant(!d.DateRemoved.Before(d.DateModified), "dataset %s removed before it was modified", d.ID)
	}
}

// DateProblems describes the violated date invariants of d and its files
// without panicking. Stored records from older versions may break them.
func (d *Dataset) DateProblems() []string {
	var problems []string
	if (d.DateCreated == nil) == (d.DatePublished == nil) {
		problems = append(problems, "needs exactly one of date created and date published")
	}
	if d.DateModified.Before(d.baseDate()) {
		problems = append(problems, "modified before created")
	}
	if d.DateRemoved != nil && d.DateRemoved.Before(d.DateModified) {
		problems = append(problems, "removed before modified")
	}
	for _, f := range d.DatasetFiles {
		if f.DateRemoved != nil && f.DateRemoved.Before(f.DateAdded) {
			problems = append(problems, fmt.Sprintf("file %s removed before added", f.Path()))
		}
	}
	return problems
}

// RepairDates clamps the dates of d and its files so the invariants hold.
// A missing creation date becomes the modification date; when both creation
// and publication dates are set the publication date wins.
func (d *Dataset) RepairDates() {
	d.mustBeMutable("dataset", d.ID)
	switch {
	case d.DateCreated == nil && d.DatePublished == nil:
		created := d.DateModified
		d.DateCreated = &created
	case d.DateCreated != nil && d.DatePublished != nil:
		d.DateCreated = nil
	}
	d.DateModified = later(d.DateModified, d.baseDate())
	if d.DateRemoved != nil {
		removed := later(*d.DateRemoved, d.DateModified)
		d.DateRemoved = &removed
	}
	for i, f := range d.DatasetFiles {
		if f.DateRemoved != nil && f.DateRemoved.Before(f.DateAdded) {
			c := f.Copy()
			removed := c.DateAdded
			c.DateRemoved = &removed
			d.DatasetFiles[i] = c
		}
	}
	d.checkDates()
}

// GetDatadir returns the data directory of the dataset.
func (d *Dataset) GetDatadir() string {
	if d.Datadir != "" {
		return d.Datadir
	}
	return DefaultDatadir(d.Slug)
}

// Files returns the live (not removed) files.
func (d *Dataset) Files() []*DatasetFile {
	var files []*DatasetFile
	for _, f := range d.DatasetFiles {
		if !f.IsRemoved() {
			files = append(files, f)
		}
	}
	return files
}

// FindFile returns the live file at path or nil.
func (d *Dataset) FindFile(path string) *DatasetFile {
	path = pathutil.Clean(path)
	for _, f := range d.DatasetFiles {
		if !f.IsRemoved() && f.Entity.Path == path {
			return f
		}
	}
	return nil
}

// IsRemoved reports whether this version marks the dataset as deleted.
func (d *Dataset) IsRemoved() bool { return d.DateRemoved != nil }

// IsDerivation reports whether this version is a local derivation of an
// earlier one. Imported datasets (SameAs set) are never derivations.
func (d *Dataset) IsDerivation() bool {
	return d.DerivedFrom != "" && d.SameAs == "" && d.DerivedFrom != d.ID
}

// Copy returns a detached, unfrozen copy. Files and annotations are deep
// copied and keep their identities.
func (d *Dataset) Copy() *Dataset {
	c := *d
	c.Persistent = Persistent{}
	c.Creators = append([]Person(nil), d.Creators...)
	c.Keywords = append([]string(nil), d.Keywords...)
	c.Annotations = nil
	for _, a := range d.Annotations {
		c.Annotations = append(c.Annotations, a.copy())
	}
	c.DatasetFiles = make([]*DatasetFile, 0, len(d.DatasetFiles))
	for _, f := range d.DatasetFiles {
		c.DatasetFiles = append(c.DatasetFiles, f.Copy())
	}
	c.DateCreated = copyTime(d.DateCreated)
	c.DatePublished = copyTime(d.DatePublished)
	c.DateRemoved = copyTime(d.DateRemoved)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func (d *Dataset) assignNewIdentifier(identifier string) {
	if identifier == "" {
		identifier = NewIdentifier()
	}
	d.Identifier = identifier
	d.ID = DatasetID(identifier)
}

// DeriveFrom makes d the next version of parent: d gets a new identity,
// points at parent through DerivedFrom and inherits the initial identifier
// and creation/publication dates. The creator is appended when new.
func (d *Dataset) DeriveFrom(parent *Dataset, creator *Person, now time.Time) {
	d.mustBeMutable("dataset", d.ID)
	Invariant(parent != nil, "cannot derive dataset %s from nothing", d.Slug)
	Invariant(parent != d, "cannot derive dataset %s from itself", d.Slug)

	d.assignNewIdentifier("")
	d.InitialIdentifier = parent.InitialIdentifier
	d.DerivedFrom = parent.ID
	d.SameAs = ""
	d.DateCreated = copyTime(parent.DateCreated)
	d.DatePublished = copyTime(parent.DatePublished)
	d.DateModified = later(now, d.baseDate())
	if creator != nil && !d.hasCreator(*creator) {
		d.Creators = append(d.Creators, *creator)
	}
	d.checkDates()
}

func (d *Dataset) hasCreator(p Person) bool {
	for _, c := range d.Creators {
		if (p.Email != "" && c.Email == p.Email) || c.ID == p.ID {
			return true
		}
	}
	return false
}

// Remove marks this version as the removal of the dataset.
func (d *Dataset) Remove(date time.Time) {
	d.mustBeMutable("dataset", d.ID)
	date = later(date, d.DateModified)
	d.DateRemoved = &date
	d.checkDates()
}

// ClearDerivedFrom drops the derivation pointer.
func (d *Dataset) ClearDerivedFrom() {
	d.mustBeMutable("dataset", d.ID)
	d.DerivedFrom = ""
}

// ReplaceIdentity takes over the identity and ancestry of current, so d can
// be stored in place of current without a derivation step.
func (d *Dataset) ReplaceIdentity(current *Dataset) {
	d.mustBeMutable("dataset", d.ID)
	d.ID = current.ID
	d.Identifier = current.Identifier
	d.InitialIdentifier = current.InitialIdentifier
	d.DerivedFrom = current.DerivedFrom
}

// UpdateFilesFrom reconciles d's files against the current stored version.
// Unchanged files reuse current's instances so identifiers are not burned;
// files live in current but gone from d are cloned and marked removed at date.
// Removals recorded by older versions are not carried; they stay on the
// version that made them, reachable through DerivedFrom.
func (d *Dataset) UpdateFilesFrom(current *Dataset, date time.Time) {
	d.mustBeMutable("dataset", d.ID)

	currentFiles := make(map[string]*DatasetFile)
	for _, f := range current.Files() {
		currentFiles[f.Entity.Path] = f
	}

	var result []*DatasetFile
	for _, f := range d.Files() {
		path := f.Entity.Path
		if cf, ok := currentFiles[path]; ok {
			delete(currentFiles, path)
			if f.IsEqualTo(cf) {
				f = cf
			}
		}
		result = append(result, f)
	}

	// Whatever remains was removed in this version. Iterate current's order
	// so the result is deterministic.
	for _, cf := range current.Files() {
		if _, ok := currentFiles[cf.Entity.Path]; !ok {
			continue
		}
		removed := FromDatasetFile(cf)
		removed.Remove(date)
		result = append(result, removed)
	}

	d.DatasetFiles = result
}

// AddOrUpdateFiles adds files, replacing live files at the same paths.
func (d *Dataset) AddOrUpdateFiles(files ...*DatasetFile) {
	d.mustBeMutable("dataset", d.ID)
	byPath := make(map[string]*DatasetFile, len(files))
	for _, f := range files {
		byPath[f.Entity.Path] = f
	}
	var kept []*DatasetFile
	for _, f := range d.DatasetFiles {
		if _, replaced := byPath[f.Entity.Path]; replaced && !f.IsRemoved() {
			continue
		}
		kept = append(kept, f)
	}
	d.DatasetFiles = append(kept, files...)
}

// UnlinkFile marks the live file at path removed. The stored instance is
// never touched; a removed clone replaces it.
func (d *Dataset) UnlinkFile(path string, date time.Time) (*DatasetFile, bool) {
	d.mustBeMutable("dataset", d.ID)
	path = pathutil.Clean(path)
	for i, f := range d.DatasetFiles {
		if f.IsRemoved() || f.Entity.Path != path {
			continue
		}
		removed := FromDatasetFile(f)
		removed.Remove(date)
		d.DatasetFiles[i] = removed
		return removed, true
	}
	return nil, false
}

// DatasetEdit lists editable metadata; nil fields are left untouched.
type DatasetEdit struct {
	Name        *string
	Description *string
	Keywords    *[]string
	Creators    *[]Person
	License     *string
	Annotations *[]Annotation
}

// Edit applies e and reports the names of the changed fields.
func (d *Dataset) Edit(e DatasetEdit) []string {
	d.mustBeMutable("dataset", d.ID)
	var changed []string
	if e.Name != nil && *e.Name != d.Name {
		d.Name = *e.Name
		changed = append(changed, "name")
	}
	if e.Description != nil && *e.Description != d.Description {
		d.Description = *e.Description
		changed = append(changed, "description")
	}
	if e.Keywords != nil {
		d.Keywords = append([]string(nil), (*e.Keywords)...)
		changed = append(changed, "keywords")
	}
	if e.Creators != nil {
		d.Creators = append([]Person(nil), (*e.Creators)...)
		changed = append(changed, "creators")
	}
	if e.License != nil && *e.License != d.License {
		d.License = *e.License
		changed = append(changed, "license")
	}
	if e.Annotations != nil {
		d.Annotations = nil
		for _, a := range *e.Annotations {
			d.Annotations = append(d.Annotations, a.copy())
		}
		changed = append(changed, "annotations")
	}
	return changed
}

// UpdateMetadataFrom copies editable metadata from other.
func (d *Dataset) UpdateMetadataFrom(other *Dataset) {
	d.mustBeMutable("dataset", d.ID)
	d.Name = other.Name
	d.Description = other.Description
	d.Keywords = append([]string(nil), other.Keywords...)
	d.Creators = append([]Person(nil), other.Creators...)
	d.License = other.License
	d.Annotations = nil
	for _, a := range other.Annotations {
		d.Annotations = append(d.Annotations, a.copy())
	}
	d.SameAs = other.SameAs
	d.Storage = other.Storage
}

// Touch sets the modification date, keeping it after the creation date.
func (d *Dataset) Touch(now time.Time) {
	d.mustBeMutable("dataset", d.ID)
	d.DateModified = later(now, d.baseDate())
	d.checkDates()
}

// Normalize converts legacy metadata to the current shape. Legacy records
// carry the machine name in Name and the label in Title; title-only records
// get a slug derived from the title. It runs on load, before Freeze.
func (d *Dataset) Normalize() {
	if d.Title == "" {
		if d.Slug == "" {
			d.Slug = d.Name
		}
		return
	}
	switch {
	case d.Slug != "":
		if d.Name == "" {
			d.Name = d.Title
		}
	case d.Name != "":
		d.Slug = d.Name
		d.Name = d.Title
	default:
		d.Slug = Slugify(d.Title)
		d.Name = d.Title
	}
	d.Title = ""
}

// DatasetTag names one historical version of a dataset.
type DatasetTag struct {
	ID          string    `json:"id"`
	DatasetID   string    `json:"dataset_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	DateCreated time.Time `json:"date_created"`
}

// DatasetTagID is derived from the dataset version and tag name.
func DatasetTagID(datasetID, name string) string {
	return "/dataset-tags/" + url.PathEscape(name+"@"+datasetID)
}

// IsValidTagName reports whether name can be used as a tag.
func IsValidTagName(name string) bool {
	return name != "" && !strings.ContainsAny(name, " \t\n\r") && !strings.HasPrefix(name, "-")
}

// NewDatasetTag creates a tag pointing at datasetID.
func NewDatasetTag(datasetID, name, description string, now time.Time) *DatasetTag {
	return &DatasetTag{
		ID:          DatasetTagID(datasetID, name),
		DatasetID:   datasetID,
		Name:        name,
		Description: description,
		DateCreated: now,
	}
}

// Retarget returns a copy of the tag pointing at datasetID.
func (t *DatasetTag) Retarget(datasetID string) *DatasetTag {
	c := *t
	c.DatasetID = datasetID
	c.ID = DatasetTagID(datasetID, t.Name)
	return &c
}
