// Package index persists the archive entry table in an embedded SQLite
// database. The writer pipeline accumulates entries in an in-memory
// database and snapshots it to disk once at the end of a run; the
// reader opens the snapshot (or the index segment extracted from a
// muxed archive) and loads all rows.
package index

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/s4a/s4a/internal/codec"
)

// Kind distinguishes file entries, which own a byte range of the blob,
// from folder entries, which exist only in the index.
type Kind string

const (
	KindFile   Kind = "FILE"
	KindFolder Kind = "FOLDER"
)

// Entry is one row of the entry table. For folder entries Offset and
// Size are zero; the codec is recorded but ignored on read.
type Entry struct {
	Name   string
	Kind   Kind
	Offset int64
	Size   int64
	Codec  codec.Codec
}

// Sentinel errors for the index failure kinds.
var (
	ErrOpen     = errors.New("index open failed")
	ErrSchema   = errors.New("index schema failed")
	ErrInsert   = errors.New("index insert failed")
	ErrQuery    = errors.New("index query failed")
	ErrSnapshot = errors.New("index snapshot failed")
)

const (
	createStmt = `CREATE TABLE entry_list (
		name VARCHAR(2048),
		type VARCHAR(8),
		offset BIGINT,
		size BIGINT,
		compression VARCHAR(8)
	)`
	insertStmt = `INSERT INTO entry_list
		(name, type, offset, size, compression) VALUES (?, ?, ?, ?, ?)`
	selectStmt = `SELECT name, type, offset, size, compression FROM entry_list`
)

// Store wraps one SQLite handle, in-memory while writing or on-disk
// while reading. It is not safe for concurrent use; the serializer is
// the only writer and holds the handle exclusively.
type Store struct {
	db     *sql.DB
	insert *sql.Stmt
}

// OpenInMemory opens a fresh in-memory database for the serializer.
func OpenInMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("%w: at in-mem db create: %v", ErrOpen, err)
	}
	// A second pooled connection would see its own empty memory
	// database, so the pool is pinned to a single connection.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// OpenOnDisk opens an existing index database file for reading.
func OpenOnDisk(path string) (*Store, error) {
	// The driver would silently create a missing file.
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: at opening %s: %v", ErrOpen, path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: at opening %s: %v", ErrOpen, path, err)
	}
	db.SetMaxOpenConns(1)
	// sql.Open does not touch the file; ping so a missing or corrupt
	// index fails here rather than on the first query.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: at opening %s: %v", ErrOpen, path, err)
	}
	return &Store{db: db}, nil
}

// CreateSchema creates the entry table on a freshly opened store.
func (s *Store) CreateSchema() error {
	if _, err := s.db.Exec(createStmt); err != nil {
		return fmt.Errorf("%w: at creating entry table: %v", ErrSchema, err)
	}
	return nil
}

// Insert appends one entry row. The prepared statement is built on
// first use and finalized by Close.
func (s *Store) Insert(e Entry) error {
	if s.insert == nil {
		stmt, err := s.db.Prepare(insertStmt)
		if err != nil {
			return fmt.Errorf("%w: at preparing insert: %v", ErrInsert, err)
		}
		s.insert = stmt
	}
	_, err := s.insert.Exec(e.Name, string(e.Kind), e.Offset, e.Size, string(e.Codec))
	if err != nil {
		return fmt.Errorf("%w: at adding %s to index: %v", ErrInsert, e.Name, err)
	}
	return nil
}

// Snapshot copies the database into a freshly created file at path.
// The result is a complete standalone database a reader can open
// without further initialization.
func (s *Store) Snapshot(path string) error {
	// VACUUM INTO refuses to overwrite an existing file.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: at replacing %s: %v", ErrSnapshot, path, err)
	}
	if _, err := s.db.Exec(`VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("%w: at flushing data to index %s: %v", ErrSnapshot, path, err)
	}
	return nil
}

// SelectAll returns every entry row. Rows come back in insertion order
// in practice, but callers must not rely on that; the reader keys them
// by name. Rows that fail to scan are logged and skipped.
func (s *Store) SelectAll() ([]Entry, error) {
	rows, err := s.db.Query(selectStmt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var name, kind, comp string
		var offset, size int64
		if err := rows.Scan(&name, &kind, &offset, &size, &comp); err != nil {
			log.Warn().Err(err).Msg("error parsing index entry, skipping")
			continue
		}
		entries = append(entries, Entry{
			Name:   name,
			Kind:   Kind(kind),
			Offset: offset,
			Size:   size,
			Codec:  codec.Parse(comp),
		})
	}
	if err := rows.Err(); err != nil {
		return entries, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return entries, nil
}

// Close finalizes the insert statement, if any, and closes the handle.
func (s *Store) Close() error {
	if s.insert != nil {
		s.insert.Close()
		s.insert = nil
	}
	return s.db.Close()
}
