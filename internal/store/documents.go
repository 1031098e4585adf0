package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an update targets a document that does not exist.
var ErrNotFound = errors.New("document not found")

// Document is a single stored record: its store-assigned id and its fields.
// The id is not part of Fields.
type Document struct {
	ID     string
	Fields map[string]any
}

// Operators supported by Query, mapped to their SQL comparison.
var operators = map[string]string{
	">":  ">",
	">=": ">=",
	"<":  "<",
	"<=": "<=",
	"==": "=",
}

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Query returns every document in collection whose field compares to value
// with op, in insertion order. Documents missing the field, or holding a
// value of a different type than value, never match.
func (db *DB) Query(ctx context.Context, collection, field, op string, value any) ([]Document, error) {
	sqlOp, ok := operators[op]
	if !ok {
		return nil, fmt.Errorf("query %s: unsupported operator %q", collection, op)
	}
	if !fieldName.MatchString(field) {
		return nil, fmt.Errorf("query %s: invalid field name %q", collection, field)
	}

	var types string
	switch value.(type) {
	case int, int32, int64, float32, float64:
		types = "'integer', 'real'"
	case string:
		types = "'text'"
	case bool:
		types = "'true', 'false'"
	default:
		return nil, fmt.Errorf("query %s: unsupported value type %T", collection, value)
	}

	path := "$." + field
	rows, err := db.QueryContext(ctx, `
		SELECT id, body FROM documents
		WHERE collection = ?
		  AND json_type(body, ?) IN (`+types+`)
		  AND json_extract(body, ?) `+sqlOp+` ?
		ORDER BY seq
	`, collection, path, path, value)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", collection, err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Get returns a single document, or nil if it doesn't exist.
func (db *DB) Get(ctx context.Context, collection, id string) (*Document, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, body FROM documents WHERE collection = ? AND id = ?
	`, collection, id)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return &d, nil
}

// Update merges fields into an existing document. Fields not named are left
// untouched; a nil value removes the field. Returns ErrNotFound if the
// document does not exist.
func (db *DB) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("update %s/%s: encode: %w", collection, id, err)
	}

	result, err := db.ExecContext(ctx, `
		UPDATE documents SET body = json_patch(body, ?), updated_at = ?
		WHERE collection = ? AND id = ?
	`, string(patch), time.Now().UnixMilli(), collection, id)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

// Add appends a new document with a fresh id and returns that id.
func (db *DB) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	if err := db.insert(ctx, collection, id, fields, false); err != nil {
		return "", err
	}
	return id, nil
}

// Put creates or fully replaces the document stored under id.
func (db *DB) Put(ctx context.Context, collection, id string, fields map[string]any) error {
	return db.insert(ctx, collection, id, fields, true)
}

func (db *DB) insert(ctx context.Context, collection, id string, fields map[string]any, replace bool) error {
	if fields == nil {
		fields = map[string]any{}
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("insert %s/%s: encode: %w", collection, id, err)
	}

	query := `INSERT INTO documents (collection, id, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	if replace {
		query += ` ON CONFLICT(collection, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`
	}

	now := time.Now().UnixMilli()
	if _, err := db.ExecContext(ctx, query, collection, id, string(body), now, now); err != nil {
		return fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}
	return nil
}

// Recent returns up to limit documents from collection, newest first.
func (db *DB) Recent(ctx context.Context, collection string, limit int) ([]Document, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, body FROM documents WHERE collection = ?
		ORDER BY seq DESC LIMIT ?
	`, collection, limit)
	if err != nil {
		return nil, fmt.Errorf("recent %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("recent %s: %w", collection, err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Count returns the number of documents in collection.
func (db *DB) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE collection = ?`, collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (Document, error) {
	var (
		d    Document
		body string
	)
	if err := s.Scan(&d.ID, &body); err != nil {
		return d, err
	}
	if err := json.Unmarshal([]byte(body), &d.Fields); err != nil {
		return d, fmt.Errorf("decode %s: %w", d.ID, err)
	}
	return d, nil
}
