package sqlite

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mwantia/gridindex/catalog"
	"github.com/mwantia/gridindex/data"
	"github.com/tidwall/btree"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteCatalog persists catalog entries in two tables:
//
// gridindex_units holds one row per index, keyed by kind and name.
// gridindex_variables maps every variable name to the units listing it.
//
// Unit keys are mirrored in an in-memory B-tree while the catalog is open.
type SQLiteCatalog struct {
	mu sync.RWMutex
	db *sql.DB

	// Unit key to index path
	keys *btree.Map[string, string]
}

var _ catalog.Catalog = (*SQLiteCatalog)(nil)

// NewSQLiteCatalog creates a catalog stored in dbPath.
// The dbPath can be ":memory:" for an in-memory database or a file path.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Every connection to ":memory:" opens its own database
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}

	sc := &SQLiteCatalog{
		db:   db,
		keys: btree.NewMap[string, string](0),
	}

	if err := sc.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return sc, nil
}

func (sc *SQLiteCatalog) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS gridindex_units (
		key TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		kind INTEGER NOT NULL,
		index_path TEXT NOT NULL,
		build_id TEXT NOT NULL,
		built_at INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS gridindex_variables (
		unit_key TEXT NOT NULL REFERENCES gridindex_units(key) ON DELETE CASCADE,
		variable TEXT NOT NULL,
		PRIMARY KEY (unit_key, variable)
	);
	CREATE INDEX IF NOT EXISTS idx_gridindex_variables_variable ON gridindex_variables(variable);
	`

	_, err := sc.db.Exec(schema)
	return err
}

// Returns the identifier name defined for this catalog
func (*SQLiteCatalog) Name() string {
	return "sqlite"
}

func (sc *SQLiteCatalog) Open(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if err := sc.db.PingContext(ctx); err != nil {
		return err
	}

	rows, err := sc.db.QueryContext(ctx, "SELECT key, index_path FROM gridindex_units")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key, path string
		if err := rows.Scan(&key, &path); err != nil {
			return err
		}
		sc.keys.Set(key, path)
	}

	return rows.Err()
}

func (sc *SQLiteCatalog) Close(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.keys.Clear()
	return sc.db.Close()
}

func (sc *SQLiteCatalog) Record(ctx context.Context, entry *catalog.Entry) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	key := entry.Key()

	tx, err := sc.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO gridindex_units (key, name, kind, index_path, build_id, built_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			index_path = excluded.index_path,
			build_id = excluded.build_id,
			built_at = excluded.built_at,
			status = excluded.status
	`, key, entry.Name, int(entry.Kind), entry.IndexPath,
		entry.BuildID.String(), entry.BuiltAt.UnixNano(), entry.Status); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM gridindex_variables WHERE unit_key = ?", key); err != nil {
		return err
	}
	for _, variable := range catalog.SortVariables(entry.Variables) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO gridindex_variables (unit_key, variable) VALUES (?, ?)
		`, key, variable); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	sc.keys.Set(key, entry.IndexPath)
	return nil
}

func (sc *SQLiteCatalog) Lookup(ctx context.Context, kind data.UnitKind, name string) (*catalog.Entry, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	key := catalog.Key(kind, name)
	if _, exists := sc.keys.Get(key); !exists {
		return nil, data.ErrEntryNotExist
	}

	entry, err := sc.scanUnit(sc.db.QueryRowContext(ctx, `
		SELECT name, kind, index_path, build_id, built_at, status
		FROM gridindex_units WHERE key = ?
	`, key))
	if err == sql.ErrNoRows {
		return nil, data.ErrEntryNotExist
	}
	if err != nil {
		return nil, err
	}

	if entry.Variables, err = sc.variables(ctx, key); err != nil {
		return nil, err
	}
	return entry, nil
}

func (sc *SQLiteCatalog) Find(ctx context.Context, variable string) ([]*catalog.Entry, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	return sc.query(ctx, `
		SELECT u.name, u.kind, u.index_path, u.build_id, u.built_at, u.status
		FROM gridindex_units u
		JOIN gridindex_variables v ON v.unit_key = u.key
		WHERE v.variable = ?
		ORDER BY u.key
	`, variable)
}

func (sc *SQLiteCatalog) List(ctx context.Context) ([]*catalog.Entry, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	return sc.query(ctx, `
		SELECT name, kind, index_path, build_id, built_at, status
		FROM gridindex_units ORDER BY key
	`)
}

func (sc *SQLiteCatalog) query(ctx context.Context, query string, args ...any) ([]*catalog.Entry, error) {
	rows, err := sc.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var entries []*catalog.Entry
	for rows.Next() {
		entry, err := sc.scanUnit(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Variables are loaded once the unit cursor is released
	for _, entry := range entries {
		if entry.Variables, err = sc.variables(ctx, entry.Key()); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (sc *SQLiteCatalog) variables(ctx context.Context, key string) ([]string, error) {
	rows, err := sc.db.QueryContext(ctx, `
		SELECT variable FROM gridindex_variables WHERE unit_key = ? ORDER BY variable
	`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	variables := []string{}
	for rows.Next() {
		var variable string
		if err := rows.Scan(&variable); err != nil {
			return nil, err
		}
		variables = append(variables, variable)
	}
	return variables, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func (sc *SQLiteCatalog) scanUnit(row scanner) (*catalog.Entry, error) {
	var entry catalog.Entry
	var kind int
	var buildID string
	var builtAt int64

	if err := row.Scan(&entry.Name, &kind, &entry.IndexPath, &buildID, &builtAt, &entry.Status); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(buildID)
	if err != nil {
		return nil, err
	}

	entry.Kind = data.UnitKind(kind)
	entry.BuildID = id
	entry.BuiltAt = time.Unix(0, builtAt).UTC()
	return &entry, nil
}
