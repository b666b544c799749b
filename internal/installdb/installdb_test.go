package installdb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/a-h/bpm/internal/bpmerr"
	"github.com/a-h/bpm/internal/pkgfile"
)

func rec(name, version string) InstalledRecord {
	return InstalledRecord{
		Meta:     &pkgfile.MetaData{Name: name, Version: version},
		Location: "/opt/" + name,
	}
}

func TestPutGetRemove(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db, err := Open(ctx, filepath.Join(dir, "installed.json"))
	if err != nil {
		t.Fatal(err)
	}

	db.Put(rec("foo", "1.0.0"))
	db.Put(rec("bar", "2.0.0"))

	if _, ok := db.Get("foo"); !ok {
		t.Fatal("expected foo to be present")
	}
	if got := len(db.List()); got != 2 {
		t.Fatalf("List() len = %d, want 2", got)
	}

	// Replacing a record for the same name must not create a duplicate.
	db.Put(rec("foo", "1.1.0"))
	if got := len(db.List()); got != 2 {
		t.Fatalf("List() len after replace = %d, want 2", got)
	}
	r, _ := db.Get("foo")
	if r.Meta.Version != "1.1.0" {
		t.Errorf("Get(foo).Version = %q, want 1.1.0", r.Meta.Version)
	}

	if err := db.Remove("foo"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := db.Get("foo"); ok {
		t.Error("expected foo to be removed")
	}

	if err := db.Remove("missing"); !errors.Is(err, bpmerr.ErrNotInstalled) {
		t.Errorf("expected ErrNotInstalled, got %v", err)
	}
}

func TestSaveAndReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "installed.json")

	db, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	db.Put(rec("foo", "1.0.0"))
	if err := db.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	r, ok := reloaded.Get("foo")
	if !ok {
		t.Fatal("expected foo to survive reload")
	}
	if r.Meta.Version != "1.0.0" {
		t.Errorf("reloaded version = %q, want 1.0.0", r.Meta.Version)
	}
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db, err := Open(ctx, filepath.Join(dir, "does-not-exist.json"))
	if err != nil {
		t.Fatal(err)
	}
	if got := len(db.List()); got != 0 {
		t.Fatalf("List() len = %d, want 0", got)
	}
}
