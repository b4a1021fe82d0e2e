// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mnemo-dev/mnemo/internal/store"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// Compile-time interface check.
var _ store.DocumentStore = (*DocumentStore)(nil)

// DocumentStore implements store.DocumentStore backed by SQLite, holding
// JSON document bodies in a single namespaced table. Field-equality queries
// use json_extract over the body column.
type DocumentStore struct {
	db *sql.DB
}

// NewDocumentStore opens (or creates) a SQLite database at dbPath and
// initialises the documents table.
func NewDocumentStore(dbPath string) (*DocumentStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "opening sqlite db")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "pinging sqlite db")
	}

	if err := migrateDocuments(db); err != nil {
		_ = db.Close()
		return nil, mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "migrating documents table")
	}

	return &DocumentStore{db: db}, nil
}

func migrateDocuments(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
	namespace TEXT NOT NULL,
	id        TEXT NOT NULL,
	body      TEXT NOT NULL DEFAULT '{}',
	created   TEXT NOT NULL,
	PRIMARY KEY (namespace, id)
);

CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(namespace, created);
`
	_, err := db.Exec(ddl)
	return err
}

// FindOne returns the oldest document matching query, or store.ErrNotFound.
func (d *DocumentStore) FindOne(ctx context.Context, namespace string, query map[string]any) (*store.Document, error) {
	where, args, err := buildWhere(namespace, query)
	if err != nil {
		return nil, err
	}

	q := `SELECT id, body FROM documents WHERE ` + where + ` ORDER BY created LIMIT 1`

	row := d.db.QueryRowContext(ctx, q, args...)
	doc, err := scanDocument(row.Scan)
	if err == sql.ErrNoRows {
		return nil, mnemoerr.Wrap(store.ErrNotFound, mnemoerr.CodeStoreDocumentNotFound,
			"no document matches query", mnemoerr.FieldNamespace(namespace))
	}
	return doc, err
}

// FindByID returns the document with the given id, or store.ErrNotFound.
func (d *DocumentStore) FindByID(ctx context.Context, namespace, id string) (*store.Document, error) {
	const q = `SELECT id, body FROM documents WHERE namespace = ? AND id = ?`

	row := d.db.QueryRowContext(ctx, q, namespace, id)
	doc, err := scanDocument(row.Scan)
	if err == sql.ErrNoRows {
		return nil, mnemoerr.Wrap(store.ErrNotFound, mnemoerr.CodeStoreDocumentNotFound,
			"document not found", mnemoerr.FieldNamespace(namespace), mnemoerr.Field("id", id))
	}
	return doc, err
}

// Find returns all documents matching query, oldest first.
func (d *DocumentStore) Find(ctx context.Context, namespace string, query map[string]any) ([]*store.Document, error) {
	where, args, err := buildWhere(namespace, query)
	if err != nil {
		return nil, err
	}

	q := `SELECT id, body FROM documents WHERE ` + where + ` ORDER BY created`

	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mnemoerr.Wrap(err, mnemoerr.CodeStoreDatabaseFailure, "querying documents",
			mnemoerr.FieldNamespace(namespace))
	}
	defer func() { _ = rows.Close() }()

	var docs []*store.Document
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "iterating documents")
	}

	return docs, nil
}

// InsertOne stores a new document and returns its generated id.
func (d *DocumentStore) InsertOne(ctx context.Context, namespace string, fields map[string]any) (string, error) {
	body, err := marshalBody(fields)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	const q = `INSERT INTO documents(namespace, id, body, created) VALUES (?, ?, ?, ?)`
	if _, err := d.db.ExecContext(ctx, q, namespace, id, body, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return "", mnemoerr.Wrap(err, mnemoerr.CodeStoreDatabaseFailure, "inserting document",
			mnemoerr.FieldNamespace(namespace))
	}

	return id, nil
}

// ReplaceByID overwrites the body of an existing document.
func (d *DocumentStore) ReplaceByID(ctx context.Context, namespace, id string, fields map[string]any) error {
	body, err := marshalBody(fields)
	if err != nil {
		return err
	}

	const q = `UPDATE documents SET body = ? WHERE namespace = ? AND id = ?`
	res, err := d.db.ExecContext(ctx, q, body, namespace, id)
	if err != nil {
		return mnemoerr.Wrap(err, mnemoerr.CodeStoreDatabaseFailure, "replacing document",
			mnemoerr.FieldNamespace(namespace))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "replacing document")
	}
	if n == 0 {
		return mnemoerr.Wrap(store.ErrNotFound, mnemoerr.CodeStoreDocumentNotFound,
			"document not found", mnemoerr.FieldNamespace(namespace), mnemoerr.Field("id", id))
	}
	return nil
}

// DeleteMany removes all documents matching query.
func (d *DocumentStore) DeleteMany(ctx context.Context, namespace string, query map[string]any) (int64, error) {
	where, args, err := buildWhere(namespace, query)
	if err != nil {
		return 0, err
	}

	res, err := d.db.ExecContext(ctx, `DELETE FROM documents WHERE `+where, args...)
	if err != nil {
		return 0, mnemoerr.Wrap(err, mnemoerr.CodeStoreDatabaseFailure, "deleting documents",
			mnemoerr.FieldNamespace(namespace))
	}

	return res.RowsAffected()
}

// Close closes the underlying database connection.
func (d *DocumentStore) Close() error {
	return d.db.Close()
}

// buildWhere builds a WHERE clause matching namespace plus field equality
// over the JSON body. Keys are sorted for deterministic SQL.
func buildWhere(namespace string, query map[string]any) (string, []any, error) {
	clauses := []string{"namespace = ?"}
	args := []any{namespace}

	keys := make([]string, 0, len(query))
	for k := range query {
		if strings.ContainsAny(k, `"'`) {
			return "", nil, mnemoerr.Wrap(store.ErrInvalidInput, mnemoerr.CodeStoreDocumentInvalid,
				"query key must not contain quotes", mnemoerr.Field("key", k))
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := `$."` + k + `"`
		val := query[k]
		if val == nil {
			clauses = append(clauses, `json_extract(body, '`+path+`') IS NULL`)
			continue
		}
		clauses = append(clauses, `json_extract(body, '`+path+`') = ?`)
		args = append(args, bindValue(val))
	}

	return strings.Join(clauses, " AND "), args, nil
}

// bindValue converts query values to what json_extract yields for them.
func bindValue(v any) any {
	switch b := v.(type) {
	case bool:
		if b {
			return 1
		}
		return 0
	default:
		return v
	}
}

func marshalBody(fields map[string]any) (string, error) {
	if len(fields) == 0 {
		return "{}", nil
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return "", mnemoerr.Wrap(store.ErrInvalidInput, mnemoerr.CodeStoreDocumentInvalid,
			"document body is not JSON-encodable")
	}
	return string(body), nil
}

func scanDocument(scan func(dest ...any) error) (*store.Document, error) {
	var (
		doc  store.Document
		body string
	)
	if err := scan(&doc.ID, &body); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "scanning document")
	}

	if err := json.Unmarshal([]byte(body), &doc.Fields); err != nil {
		return nil, mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "unmarshalling document body")
	}
	return &doc, nil
}
