// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mnemo-dev/mnemo/internal/store"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

// Compile-time interface check.
var _ store.VectorIndex = (*VectorIndex)(nil)

// VectorIndex implements store.VectorIndex backed by SQLite with sqlite-vec.
// Namespaces map to a vec0 partition key, so KNN queries only scan the
// requested namespace.
type VectorIndex struct {
	db         *sql.DB
	dimensions int
}

// NewVectorIndex opens (or creates) a SQLite database at dbPath and
// initialises the vec0 virtual table and companion metadata table.
func NewVectorIndex(dbPath string, dimensions int) (*VectorIndex, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "opening sqlite db")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "pinging sqlite db")
	}

	if err := migrateVectors(db, dimensions); err != nil {
		_ = db.Close()
		return nil, mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "migrating vector tables")
	}

	return &VectorIndex{db: db, dimensions: dimensions}, nil
}

func migrateVectors(db *sql.DB, dimensions int) error {
	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vectors USING vec0(
	id TEXT PRIMARY KEY,
	namespace TEXT PARTITION KEY,
	embedding FLOAT[%d] distance_metric=cosine
)`,
		dimensions,
	)
	if _, err := db.Exec(vecDDL); err != nil {
		return fmt.Errorf("creating vectors virtual table: %w", err)
	}

	const metaDDL = `
CREATE TABLE IF NOT EXISTS vector_metadata (
	namespace TEXT NOT NULL,
	id        TEXT NOT NULL,
	metadata  TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (namespace, id)
)`
	if _, err := db.Exec(metaDDL); err != nil {
		return fmt.Errorf("creating vector_metadata table: %w", err)
	}

	return nil
}

// Upsert inserts or replaces entries under namespace.
func (v *VectorIndex) Upsert(ctx context.Context, namespace string, entries []store.VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, entry := range entries {
		if len(entry.Vector) != v.dimensions {
			return mnemoerr.Errorf(mnemoerr.CodeStoreVectorInvalid,
				"vector %s has %d dimensions, index expects %d", entry.ID, len(entry.Vector), v.dimensions)
		}

		blob, err := sqlite_vec.SerializeFloat32(entry.Vector)
		if err != nil {
			return mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "serializing vector %s", entry.ID)
		}

		metaJSON := []byte("{}")
		if len(entry.Metadata) > 0 {
			metaJSON, err = json.Marshal(entry.Metadata)
			if err != nil {
				return mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "marshalling metadata for %s", entry.ID)
			}
		}

		// vec0 does not support ON CONFLICT; delete first for upsert.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM vectors WHERE namespace = ? AND id = ?`, namespace, entry.ID); err != nil {
			return mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "deleting existing vector %s", entry.ID)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vectors(id, namespace, embedding) VALUES (?, ?, ?)`,
			entry.ID, namespace, blob); err != nil {
			return mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "inserting vector %s", entry.ID)
		}

		const metaQ = `INSERT INTO vector_metadata(namespace, id, metadata) VALUES (?, ?, ?)
ON CONFLICT(namespace, id) DO UPDATE SET metadata = excluded.metadata`
		if _, err := tx.ExecContext(ctx, metaQ, namespace, entry.ID, string(metaJSON)); err != nil {
			return mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "upserting vector metadata %s", entry.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "committing vector upsert")
	}
	return nil
}

// Query performs a k-nearest-neighbor search within namespace and returns
// results ordered by descending similarity. Cosine distance from sqlite-vec
// is converted to a similarity score (1 - distance). A non-empty filter is
// applied to the candidate set by metadata equality, so filtered queries may
// return fewer than k results.
func (v *VectorIndex) Query(ctx context.Context, namespace string, vector []float32, k int, filter map[string]any) ([]store.Match, error) {
	if len(vector) != v.dimensions {
		return nil, mnemoerr.Errorf(mnemoerr.CodeStoreVectorInvalid,
			"query vector has %d dimensions, index expects %d", len(vector), v.dimensions)
	}
	if k <= 0 {
		return nil, mnemoerr.Errorf(mnemoerr.CodeStoreVectorInvalid, "k must be positive, got %d", k)
	}

	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "serializing query vector")
	}

	const q = `SELECT v.id, v.distance, COALESCE(m.metadata, '{}')
FROM vectors v
LEFT JOIN vector_metadata m ON m.namespace = v.namespace AND m.id = v.id
WHERE v.namespace = ? AND v.embedding MATCH ? AND k = ?
ORDER BY v.distance`

	rows, err := v.db.QueryContext(ctx, q, namespace, blob, k)
	if err != nil {
		return nil, mnemoerr.Wrap(err, mnemoerr.CodeStoreDatabaseFailure, "querying vectors",
			mnemoerr.FieldNamespace(namespace))
	}
	defer func() { _ = rows.Close() }()

	var results []store.Match
	for rows.Next() {
		var (
			m        store.Match
			distance float64
			metaStr  string
		)

		if err := rows.Scan(&m.ID, &distance, &metaStr); err != nil {
			return nil, mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "scanning vector result")
		}
		m.Score = 1 - distance

		if metaStr != "" && metaStr != "{}" {
			if err := json.Unmarshal([]byte(metaStr), &m.Metadata); err != nil {
				return nil, mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "unmarshalling vector metadata")
			}
		}

		if !matchesFilter(m.Metadata, filter) {
			continue
		}

		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "iterating vector results")
	}

	return results, nil
}

// Delete removes vectors and their metadata by id within namespace.
func (v *VectorIndex) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(ids)+1)
	args = append(args, namespace)
	for _, id := range ids {
		args = append(args, id)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM vectors WHERE namespace = ? AND id IN (`+placeholders+`)`, args...); err != nil {
		return mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "deleting vectors")
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM vector_metadata WHERE namespace = ? AND id IN (`+placeholders+`)`, args...); err != nil {
		return mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "deleting vector metadata")
	}

	if err := tx.Commit(); err != nil {
		return mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "committing vector delete")
	}
	return nil
}

// Close closes the underlying database connection.
func (v *VectorIndex) Close() error {
	return v.db.Close()
}

// matchesFilter reports whether metadata satisfies every equality constraint
// in filter. Numeric values are compared after normalization to float64,
// matching the widening JSON round-trips apply to metadata.
func matchesFilter(metadata, filter map[string]any) bool {
	for key, want := range filter {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		if !looseEqual(got, want) {
			return false
		}
	}
	return true
}

func looseEqual(a, b any) bool {
	if af, ok := asFloat(a); ok {
		bf, ok := asFloat(b)
		return ok && af == bf
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
