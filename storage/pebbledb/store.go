// Package pebbledb implements the storage backend on top of a local pebble
// database. Key-value documents and attachment blobs live in the same DB
// under distinct key prefixes.
package pebbledb

import (
	"context"
	"syscall"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"weft/outbound-queue/log"
	"weft/outbound-queue/storage"
)

const (
	kvPrefix   = "kv:"
	blobPrefix = "blob:"
)

type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the pebble database at the given path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "pebbledb: unable to open database at %s", path)
	}

	log.Logger.Debugf("opened pebble database at %s", path)

	return &Store{db: db}, nil
}

func (s *Store) KV() storage.KeyValueStore {
	return prefixedStore{db: s.db, prefix: kvPrefix}
}

func (s *Store) Blobs() storage.BlobStore {
	return prefixedStore{db: s.db, prefix: blobPrefix}
}

func (s *Store) Ping() error {
	if s.db == nil {
		return storage.ErrUnavailable
	}

	_, closer, err := s.db.Get([]byte(kvPrefix + "ping"))
	if err != nil && err != pebble.ErrNotFound {
		return err
	}
	if closer != nil {
		return closer.Close()
	}

	return nil
}

// Compact flattens the whole keyspace. Runs as a one-shot maintenance job,
// never during normal operation.
func (s *Store) Compact(ctx context.Context) error {
	if s.db == nil {
		return storage.ErrUnavailable
	}

	return s.db.Compact([]byte{0x00}, []byte{0xff}, true)
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil

	return err
}

type prefixedStore struct {
	db     *pebble.DB
	prefix string
}

func (p prefixedStore) Get(ctx context.Context, key string) ([]byte, error) {
	if p.db == nil {
		return nil, storage.ErrUnavailable
	}

	v, closer, err := p.db.Get([]byte(p.prefix + key))
	if err == pebble.ErrNotFound {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "pebbledb: error reading key %s", key)
	}

	// the returned slice is only valid until the closer is closed
	out := append([]byte(nil), v...)
	if cerr := closer.Close(); cerr != nil {
		log.Logger.WithError(cerr).Warnf("error releasing pebble value for key %s", key)
	}

	return out, nil
}

func (p prefixedStore) Set(ctx context.Context, key string, value []byte) error {
	return p.Put(ctx, key, value)
}

func (p prefixedStore) Put(ctx context.Context, key string, value []byte) error {
	if p.db == nil {
		return storage.ErrUnavailable
	}

	if err := p.db.Set([]byte(p.prefix+key), value, pebble.Sync); err != nil {
		if errors.Is(err, syscall.ENOSPC) {
			return storage.ErrQuotaExceeded
		}
		return errors.Wrapf(err, "pebbledb: error writing key %s", key)
	}

	return nil
}

func (p prefixedStore) Delete(ctx context.Context, key string) error {
	if p.db == nil {
		return storage.ErrUnavailable
	}

	if err := p.db.Delete([]byte(p.prefix+key), pebble.Sync); err != nil {
		return errors.Wrapf(err, "pebbledb: error deleting key %s", key)
	}

	return nil
}

func (p prefixedStore) Keys(ctx context.Context) ([]string, error) {
	if p.db == nil {
		return nil, storage.ErrUnavailable
	}

	lower := []byte(p.prefix)
	upper := append([]byte(nil), lower...)
	upper[len(upper)-1]++

	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, errors.Wrap(err, "pebbledb: unable to create iterator")
	}
	defer func() {
		if cerr := iter.Close(); cerr != nil {
			log.Logger.WithError(cerr).Warn("error closing pebble iterator")
		}
	}()

	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()[len(p.prefix):]))
	}

	return keys, nil
}
