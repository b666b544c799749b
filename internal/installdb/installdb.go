// Package installdb implements the install database described in
// spec.md §4.F: an ordered list of InstalledRecord, one per package name,
// loaded whole, mutated in place, and saved atomically. Grounded on
// original_source/crates/bpm/src/db.rs and app.rs's save_db.
//
// Two backends share the same InstalledRecord list: a plain JSON document
// (the spec default, write-temp-then-rename) and a sqlite-backed
// github.com/a-h/kv store selected by a sqlite:// DB-file URI, adapted from
// store/store.go's store.New dispatch (teacher a-h/depot). Neither backend
// adds cross-process locking; both load-whole/mutate/save-whole.
package installdb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/a-h/bpm/internal/bpmerr"
	"github.com/a-h/bpm/internal/pkgfile"
)

const schemaVersion = 1

// Versioning records how an installed package is pinned, mirroring
// catalog.Versioning so installdb has no import-time dependency on catalog.
type Versioning struct {
	PinnedToVersion bool   `json:"pinned_to_version"`
	PinnedToChannel bool   `json:"pinned_to_channel"`
	Channel         string `json:"channel,omitempty"`
}

// InstalledRecord is a package's install-time metadata plus its on-disk
// location and pin state, per spec.md §3.
type InstalledRecord struct {
	Meta       *pkgfile.MetaData `json:"meta"`
	Location   string            `json:"location"`
	Versioning Versioning        `json:"versioning"`
}

// ID returns the package identity this record tracks.
func (r InstalledRecord) ID() pkgfile.PackageID {
	return pkgfile.PackageID{Name: r.Meta.Name, Version: r.Meta.Version}
}

// document is the on-disk/in-store shape: schema version plus records in
// insertion order, keyed by name so at most one record exists per name.
type document struct {
	SchemaVersion int                         `json:"schema_version"`
	Order         []string                    `json:"order"`
	Records       map[string]InstalledRecord  `json:"records"`
}

func newDocument() *document {
	return &document{SchemaVersion: schemaVersion, Records: map[string]InstalledRecord{}}
}

// DB is an in-memory install database bound to a storage backend.
type DB struct {
	backend backend
	doc     *document
}

type backend interface {
	load(ctx context.Context) (*document, error)
	save(ctx context.Context, doc *document) error
}

// Open loads (or initializes empty) the install database at path. A path
// beginning with "sqlite://" selects the sqlite-backed kv store; anything
// else is treated as a plain JSON document path.
func Open(ctx context.Context, path string) (*DB, error) {
	var b backend
	if strings.HasPrefix(path, "sqlite://") {
		var err error
		b, err = newSqliteBackend(path)
		if err != nil {
			return nil, err
		}
	} else {
		b = jsonBackend{path: path}
	}

	doc, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	return &DB{backend: b, doc: doc}, nil
}

// Close releases any resources held by the backend (sqlite connections).
func (db *DB) Close() error {
	if c, ok := db.backend.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Get returns the record for name, if any.
func (db *DB) Get(name string) (InstalledRecord, bool) {
	r, ok := db.doc.Records[name]
	return r, ok
}

// List returns every record in insertion order.
func (db *DB) List() []InstalledRecord {
	out := make([]InstalledRecord, 0, len(db.doc.Order))
	for _, name := range db.doc.Order {
		if r, ok := db.doc.Records[name]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Put inserts or replaces the record for its package name.
func (db *DB) Put(r InstalledRecord) {
	name := r.Meta.Name
	if _, exists := db.doc.Records[name]; !exists {
		db.doc.Order = append(db.doc.Order, name)
	}
	db.doc.Records[name] = r
}

// Remove deletes the record for name. Returns bpmerr.ErrNotInstalled if no
// such record exists.
func (db *DB) Remove(name string) error {
	if _, ok := db.doc.Records[name]; !ok {
		return fmt.Errorf("%w: %s", bpmerr.ErrNotInstalled, name)
	}
	delete(db.doc.Records, name)
	for i, n := range db.doc.Order {
		if n == name {
			db.doc.Order = append(db.doc.Order[:i], db.doc.Order[i+1:]...)
			break
		}
	}
	return nil
}

// Save persists the current in-memory state atomically.
func (db *DB) Save(ctx context.Context) error {
	return db.backend.save(ctx, db.doc)
}

// jsonBackend implements the spec-default storage: a single JSON document,
// written to a sibling .tmp file and renamed into place.
type jsonBackend struct{ path string }

func (b jsonBackend) load(ctx context.Context) (*document, error) {
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return newDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read install db %s: %w", b.path, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse install db %s: %w", b.path, err)
	}
	if doc.Records == nil {
		doc.Records = map[string]InstalledRecord{}
	}
	return &doc, nil
}

func (b jsonBackend) save(ctx context.Context, doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode install db: %w", err)
	}
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create install db directory: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write install db temp file: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("rename install db into place: %w", err)
	}
	return nil
}
