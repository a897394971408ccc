// Package sqlitedb implements the storage backend on a single sqlite
// database file. Key-value documents and attachment blobs live in separate
// tables of the same database.
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"weft/outbound-queue/log"
	"weft/outbound-queue/storage"
)

const (
	kvTable   = "kv"
	blobTable = "blobs"
)

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the sqlite database at the given path and applies
// any pending schema migrations unless they are disabled.
func Open(path string, skipMigrations bool) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrapf(err, "sqlitedb: unable to open database at %s", path)
	}

	// sqlite is a single-writer database, keep the pool honest
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		return nil, errors.Wrapf(err, "sqlitedb: database at %s is not usable", path)
	}

	if err = migrateDatabase(db, skipMigrations); err != nil {
		return nil, err
	}

	log.Logger.Debugf("opened sqlite database at %s", path)

	return New(db), nil
}

// New wraps an existing database handle without running migrations. Used by
// tests to substitute a mocked connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) KV() storage.KeyValueStore {
	return tableStore{db: s.db, table: kvTable}
}

func (s *Store) Blobs() storage.BlobStore {
	return tableStore{db: s.db, table: blobTable}
}

func (s *Store) Ping() error {
	if s.db == nil {
		return storage.ErrUnavailable
	}

	return s.db.Ping()
}

// Compact reclaims space freed by deleted blobs. Runs as a one-shot
// maintenance job, never during normal operation.
func (s *Store) Compact(ctx context.Context) error {
	if s.db == nil {
		return storage.ErrUnavailable
	}

	_, err := s.db.ExecContext(ctx, "VACUUM")

	return err
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil

	return err
}

type tableStore struct {
	db    *sql.DB
	table string
}

func (t tableStore) Get(ctx context.Context, key string) ([]byte, error) {
	if t.db == nil {
		return nil, storage.ErrUnavailable
	}

	q := fmt.Sprintf("SELECT v FROM %s WHERE k = ?", t.table)

	var v []byte
	err := t.db.QueryRowContext(ctx, q, key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "sqlitedb: error reading key %s", key)
	}

	return v, nil
}

func (t tableStore) Set(ctx context.Context, key string, value []byte) error {
	return t.Put(ctx, key, value)
}

func (t tableStore) Put(ctx context.Context, key string, value []byte) error {
	if t.db == nil {
		return storage.ErrUnavailable
	}

	q := fmt.Sprintf("INSERT INTO %s (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v", t.table)

	if _, err := t.db.ExecContext(ctx, q, key, value); err != nil {
		if isQuotaErr(err) {
			return storage.ErrQuotaExceeded
		}
		return errors.Wrapf(err, "sqlitedb: error writing key %s", key)
	}

	return nil
}

func (t tableStore) Delete(ctx context.Context, key string) error {
	if t.db == nil {
		return storage.ErrUnavailable
	}

	q := fmt.Sprintf("DELETE FROM %s WHERE k = ?", t.table)

	if _, err := t.db.ExecContext(ctx, q, key); err != nil {
		return errors.Wrapf(err, "sqlitedb: error deleting key %s", key)
	}

	return nil
}

func (t tableStore) Keys(ctx context.Context) ([]string, error) {
	if t.db == nil {
		return nil, storage.ErrUnavailable
	}

	q := fmt.Sprintf("SELECT k FROM %s ORDER BY k", t.table)

	rows, err := t.db.QueryContext(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "sqlitedb: error listing keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.Wrap(err, "sqlitedb: error scanning key")
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}

func isQuotaErr(err error) bool {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code == sqlite3.ErrFull
	}

	return false
}
