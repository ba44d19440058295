package model_test

import (
	"errors"
	"testing"
	"time"

	"prov-go/internal/model"
)

var t0 = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func newDataset(t *testing.T, slug string, files ...*model.DatasetFile) *model.Dataset {
	t.Helper()
	d, err := model.NewDataset(model.DatasetOptions{Slug: slug, Files: files}, t0)
	if err != nil {
		t.Fatalf("NewDataset() error = %v", err)
	}
	return d
}

func file(path, checksum string) *model.DatasetFile {
	return model.NewDatasetFile(model.NewEntity(checksum, path), t0)
}

func expectPanic[T error](t *testing.T, fn func()) T {
	t.Helper()
	var got T
	func() {
		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("expected panic")
			}
			err, ok := r.(error)
			if !ok || !errors.As(err, &got) {
				t.Fatalf("panic value = %v, want %T", r, got)
			}
		}()
		fn()
	}()
	return got
}

func TestNewDataset(t *testing.T) {
	t.Run("defaults creation date and name", func(t *testing.T) {
		d := newDataset(t, "my-data")
		if d.DateCreated == nil || !d.DateCreated.Equal(t0) {
			t.Errorf("DateCreated = %v, want %v", d.DateCreated, t0)
		}
		if d.Name != "my-data" {
			t.Errorf("Name = %q, want %q", d.Name, "my-data")
		}
		if d.Identifier != d.InitialIdentifier {
			t.Errorf("InitialIdentifier = %q, want %q", d.InitialIdentifier, d.Identifier)
		}
		if d.ID != model.DatasetID(d.Identifier) {
			t.Errorf("ID = %q", d.ID)
		}
	})

	t.Run("rejects invalid slug", func(t *testing.T) {
		_, err := model.NewDataset(model.DatasetOptions{Slug: "not a slug"}, t0)
		if err == nil {
			t.Error("NewDataset() expected error for invalid slug")
		}
	})

	t.Run("rejects both created and published", func(t *testing.T) {
		pub := t0
		created := t0
		_, err := model.NewDataset(model.DatasetOptions{Slug: "x", DateCreated: &created, DatePublished: &pub}, t0)
		if err == nil {
			t.Error("NewDataset() expected error when both dates are set")
		}
	})
}

func TestDataset_DeriveFrom(t *testing.T) {
	parent := newDataset(t, "ds")
	parent.Freeze()

	child := parent.Copy()
	child.DeriveFrom(parent, nil, t0.Add(time.Hour))

	if child.ID == parent.ID || child.Identifier == parent.Identifier {
		t.Error("derived dataset kept the parent identity")
	}
	if child.DerivedFrom != parent.ID {
		t.Errorf("DerivedFrom = %q, want %q", child.DerivedFrom, parent.ID)
	}
	if child.InitialIdentifier != parent.InitialIdentifier {
		t.Errorf("InitialIdentifier = %q, want %q", child.InitialIdentifier, parent.InitialIdentifier)
	}
	if !child.DateModified.Equal(t0.Add(time.Hour)) {
		t.Errorf("DateModified = %v", child.DateModified)
	}
	if !child.IsDerivation() {
		t.Error("IsDerivation() = false, want true")
	}

	t.Run("appends new creator once", func(t *testing.T) {
		p := model.NewPerson("Jane", "jane@example.com")
		c := parent.Copy()
		c.DeriveFrom(parent, &p, t0)
		c2 := c.Copy()
		c2.DeriveFrom(c, &p, t0)
		if len(c2.Creators) != 1 {
			t.Errorf("len(Creators) = %d, want 1", len(c2.Creators))
		}
	})

	t.Run("deriving from itself violates an invariant", func(t *testing.T) {
		d := newDataset(t, "self")
		expectPanic[*model.InvariantViolation](t, func() { d.DeriveFrom(d, nil, t0) })
	})
}

func TestDataset_UpdateFilesFrom(t *testing.T) {
	a := file("data/ds/a.txt", "aaa")
	b := file("data/ds/b.txt", "bbb")
	current := newDataset(t, "ds", a, b)
	current.Freeze()

	t.Run("reuses unchanged files and records removals", func(t *testing.T) {
		d := current.Copy()
		d.UnlinkFile("data/ds/a.txt", t0.Add(time.Hour))
		// Drop the history entry so only b is live in d.
		d.DatasetFiles = d.Files()

		d.UpdateFilesFrom(current, t0.Add(time.Hour))

		if len(d.DatasetFiles) != 2 {
			t.Fatalf("len(DatasetFiles) = %d, want 2", len(d.DatasetFiles))
		}
		var live, removed *model.DatasetFile
		for _, f := range d.DatasetFiles {
			if f.IsRemoved() {
				removed = f
			} else {
				live = f
			}
		}
		if live != b {
			t.Error("unchanged file was not reused by identity")
		}
		if removed == nil || removed.Path() != "data/ds/a.txt" {
			t.Fatalf("removed file = %+v, want a.txt", removed)
		}
		if removed.ID == a.ID {
			t.Error("removed file kept the live file identity")
		}
		if removed.DateRemoved.Before(removed.DateAdded) {
			t.Error("DateRemoved before DateAdded")
		}
	})

	t.Run("keeps changed file", func(t *testing.T) {
		changed := file("data/ds/b.txt", "ccc")
		d := current.Copy()
		d.AddOrUpdateFiles(changed)

		d.UpdateFilesFrom(current, t0)

		if got := d.FindFile("data/ds/b.txt"); got != changed {
			t.Errorf("FindFile(b) = %+v, want the changed file", got)
		}
		if got := d.FindFile("data/ds/a.txt"); got != a {
			t.Error("unchanged a.txt was not reused")
		}
	})

	t.Run("removal date is never before the add date", func(t *testing.T) {
		d := current.Copy()
		d.DatasetFiles = nil
		d.UpdateFilesFrom(current, t0.Add(-time.Hour))
		for _, f := range d.DatasetFiles {
			if !f.IsRemoved() || f.DateRemoved.Before(f.DateAdded) {
				t.Errorf("file %s: DateRemoved = %v, DateAdded = %v", f.Path(), f.DateRemoved, f.DateAdded)
			}
		}
	})
}

func TestDataset_FrozenGate(t *testing.T) {
	d := newDataset(t, "frozen")
	d.Freeze()

	err := expectPanic[*model.FrozenError](t, func() { d.Remove(t0) })
	if err.ID != d.ID {
		t.Errorf("FrozenError.ID = %q, want %q", err.ID, d.ID)
	}

	model.Mutate(d, func() { d.Touch(t0.Add(time.Minute)) })
	if !d.IsFrozen() {
		t.Error("Mutate() did not restore the frozen state")
	}
	if !d.DateModified.Equal(t0.Add(time.Minute)) {
		t.Errorf("DateModified = %v", d.DateModified)
	}

	if c := d.Copy(); c.IsFrozen() {
		t.Error("Copy() returned a frozen dataset")
	}
}

func TestDataset_Remove(t *testing.T) {
	d := newDataset(t, "ds")
	d.Touch(t0.Add(time.Hour))
	d.Remove(t0)
	if !d.IsRemoved() {
		t.Fatal("IsRemoved() = false")
	}
	if d.DateRemoved.Before(d.DateModified) {
		t.Errorf("DateRemoved = %v before DateModified = %v", d.DateRemoved, d.DateModified)
	}
}

func TestDataset_IsDerivation(t *testing.T) {
	tests := []struct {
		name        string
		derivedFrom string
		sameAs      string
		self        bool
		want        bool
	}{
		{"not derived", "", "", false, false},
		{"local derivation", "/datasets/abc", "", false, true},
		{"imported", "/datasets/abc", "https://doi.org/x", false, false},
		{"points to itself", "", "", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDataset(t, "ds")
			d.DerivedFrom = tt.derivedFrom
			d.SameAs = tt.sameAs
			if tt.self {
				d.DerivedFrom = d.ID
			}
			if got := d.IsDerivation(); got != tt.want {
				t.Errorf("IsDerivation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDataset_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		in       model.Dataset
		wantSlug string
		wantName string
	}{
		{"current shape", model.Dataset{Slug: "s", Name: "Nice"}, "s", "Nice"},
		{"legacy name and title", model.Dataset{Name: "s", Title: "Nice"}, "s", "Nice"},
		{"title only", model.Dataset{Title: "My Nice Data"}, "my_nice_data", "My Nice Data"},
		{"slug and title", model.Dataset{Slug: "s", Title: "Nice"}, "s", "Nice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.in
			d.Normalize()
			if d.Slug != tt.wantSlug || d.Name != tt.wantName || d.Title != "" {
				t.Errorf("Normalize() = {slug %q, name %q, title %q}, want {%q, %q, \"\"}",
					d.Slug, d.Name, d.Title, tt.wantSlug, tt.wantName)
			}
		})
	}
}

func TestDatasetTag_Retarget(t *testing.T) {
	tag := model.NewDatasetTag("/datasets/a", "v1", "first", t0)
	moved := tag.Retarget("/datasets/b")
	if moved.DatasetID != "/datasets/b" || moved.Name != "v1" {
		t.Errorf("Retarget() = %+v", moved)
	}
	if moved.ID == tag.ID {
		t.Error("Retarget() kept the old tag id")
	}
	if tag.DatasetID != "/datasets/a" {
		t.Error("Retarget() modified the original tag")
	}
}
