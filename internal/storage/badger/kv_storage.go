package badger

import (
	"context"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/cirahq/cira/internal/interfaces"
)

// kvPrefix namespaces ephemeral keys away from badgerhold records.
const kvPrefix = "cirakv:"

// KVStorage implements interfaces.KeyValueStorage on raw Badger with entry
// TTLs. Locks rely on Badger's serializable transactions: SetNX and
// CompareAndDelete are each a single read-check-write transaction, giving
// SETNX / compare-and-delete atomicity without an external Lua script.
type KVStorage struct {
	db     *badgerdb.DB
	logger arbor.ILogger
}

// NewKVStorage creates a new KVStorage instance
func NewKVStorage(db *BadgerDB, logger arbor.ILogger) *KVStorage {
	return &KVStorage{
		db:     db.Store().Badger(),
		logger: logger,
	}
}

func (s *KVStorage) key(key string) []byte {
	return []byte(kvPrefix + key)
}

// Get retrieves a value by key. Expired entries read as missing.
func (s *KVStorage) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(s.key(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if err == badgerdb.ErrKeyNotFound {
		return "", interfaces.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, nil
}

// Set stores a value with a TTL. A zero TTL stores without expiry.
func (s *KVStorage) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		entry := badgerdb.NewEntry(s.key(key), []byte(value))
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is a no-op.
func (s *KVStorage) Delete(ctx context.Context, key string) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(s.key(key))
	})
	if err != nil && err != badgerdb.ErrKeyNotFound {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// SetNX sets the key only if absent, returning true when set.
func (s *KVStorage) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	acquired := false
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(s.key(key))
		if err == nil {
			return nil // Key exists, not acquired
		}
		if err != badgerdb.ErrKeyNotFound {
			return err
		}
		entry := badgerdb.NewEntry(s.key(key), []byte(value))
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		if err := txn.SetEntry(entry); err != nil {
			return err
		}
		acquired = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to setnx key %s: %w", key, err)
	}
	return acquired, nil
}

// CompareAndDelete removes the key only if its value matches, atomically.
func (s *KVStorage) CompareAndDelete(ctx context.Context, key string, value string) (bool, error) {
	deleted := false
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(s.key(key))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var current string
		if err := item.Value(func(val []byte) error {
			current = string(val)
			return nil
		}); err != nil {
			return err
		}
		if current != value {
			return nil
		}
		if err := txn.Delete(s.key(key)); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to compare-and-delete key %s: %w", key, err)
	}
	return deleted, nil
}

// Extend refreshes the TTL of an existing key, preserving its value.
func (s *KVStorage) Extend(ctx context.Context, key string, ttl time.Duration) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(s.key(key))
		if err != nil {
			return err
		}
		var current []byte
		if err := item.Value(func(val []byte) error {
			current = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}
		entry := badgerdb.NewEntry(s.key(key), current).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err == badgerdb.ErrKeyNotFound {
		return interfaces.ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to extend key %s: %w", key, err)
	}
	return nil
}
