// Package store persists trained models and their metadata in SQLite. The
// metadata JSON document is the only externally durable, human-inspectable
// artifact; weights are stored as an opaque blob.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	yearcaster "github.com/yearcast/go-yearcaster"
)

var ErrModelNotFound = errors.New("no saved model under that name")

const schema = `
CREATE TABLE IF NOT EXISTS trained_models (
    name       TEXT PRIMARY KEY,
    weights    BLOB NOT NULL,
    metadata   TEXT NOT NULL,
    trained_at DATETIME NOT NULL,
    saved_at   DATETIME NOT NULL
);`

// Store is a SQLite-backed persistence gateway for trained models.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed initializes) a model store at the given path.
// The path ":memory:" yields an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open model store, %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to initialize model store schema, %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists the weights and metadata under the given name, replacing any
// previous save atomically. A failed save leaves the previous row untouched.
func (s *Store) Save(name string, weights []byte, meta *yearcaster.Metadata) error {
	if meta == nil {
		return yearcaster.ErrUntrainedPipeline
	}
	doc, err := meta.Document()
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("unable to begin save, %w", err)
	}
	_, err = tx.Exec(
		`INSERT OR REPLACE INTO trained_models (name, weights, metadata, trained_at, saved_at)
		 VALUES (?, ?, ?, ?, ?)`,
		name, weights, string(doc), meta.TrainedAt, time.Now().UTC(),
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("unable to save model %q, %w", name, err)
	}
	return tx.Commit()
}

// Load returns the weights and metadata saved under the given name.
func (s *Store) Load(name string) ([]byte, *yearcaster.Metadata, error) {
	var weights []byte
	var doc string
	err := s.db.QueryRow(
		`SELECT weights, metadata FROM trained_models WHERE name = ?`, name,
	).Scan(&weights, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%q, %w", name, ErrModelNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("unable to load model %q, %w", name, err)
	}

	meta, err := yearcaster.MetadataFromDocument([]byte(doc))
	if err != nil {
		return nil, nil, err
	}
	return weights, meta, nil
}

// Delete removes the saved model under the given name.
func (s *Store) Delete(name string) error {
	res, err := s.db.Exec(`DELETE FROM trained_models WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("unable to delete model %q, %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%q, %w", name, ErrModelNotFound)
	}
	return nil
}

// Export returns the saved model as its two durable artifacts: the opaque
// weights blob and the metadata JSON document.
func (s *Store) Export(name string) (weights, metadataDoc []byte, err error) {
	weights, meta, err := s.Load(name)
	if err != nil {
		return nil, nil, err
	}
	doc, err := meta.Document()
	if err != nil {
		return nil, nil, err
	}
	return weights, doc, nil
}

// Names lists every saved model name.
func (s *Store) Names() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM trained_models ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("unable to list models, %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
