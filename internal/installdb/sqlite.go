package installdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/a-h/kv"
	"github.com/a-h/kv/sqlitekv"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// installDocKey is the single key under which the whole document is stored
// in the kv store: the database is loaded/mutated/saved whole, same as the
// JSON backend, just with a different durable home.
const installDocKey = "bpm/installdb"

// sqliteBackend persists the install document as a single JSON blob in a
// github.com/a-h/kv store backed by zombiezen.com/go/sqlite, grounded on
// store/store.go's newSqliteStore (teacher a-h/depot), minus the
// rqlite/postgres dispatch branches dropped per DESIGN.md.
type sqliteBackend struct {
	store kv.Store
	pool  *sqlitex.Pool
}

func newSqliteBackend(dsn string) (*sqliteBackend, error) {
	dsn = strings.TrimPrefix(dsn, "sqlite://")
	opts := sqlitex.PoolOptions{
		Flags: sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenURI,
	}
	pool, err := sqlitex.NewPool(dsn, opts)
	if err != nil {
		return nil, fmt.Errorf("open install db sqlite pool: %w", err)
	}
	store := sqlitekv.NewStore(pool)
	return &sqliteBackend{store: store, pool: pool}, nil
}

func (b *sqliteBackend) load(ctx context.Context) (*document, error) {
	if err := b.store.Init(ctx); err != nil {
		return nil, fmt.Errorf("init install db store: %w", err)
	}
	var doc document
	_, ok, err := b.store.Get(ctx, installDocKey, &doc)
	if err != nil {
		return nil, fmt.Errorf("load install db: %w", err)
	}
	if !ok {
		return newDocument(), nil
	}
	if doc.Records == nil {
		doc.Records = map[string]InstalledRecord{}
	}
	return &doc, nil
}

func (b *sqliteBackend) save(ctx context.Context, doc *document) error {
	if _, err := b.store.Put(ctx, installDocKey, -1, doc); err != nil {
		return fmt.Errorf("save install db: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Close() error {
	return b.pool.Close()
}
