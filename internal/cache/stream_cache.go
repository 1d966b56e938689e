// Streamledger - Playback Session Polling and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamledger

// Package cache provides the TTL-bounded ephemeral store backed by BadgerDB.
//
// The cache holds session snapshots and per-entry telemetry state between
// polls. Entries expire via Badger's native TTL; the reconciliation engine
// treats the cache strictly as a hint and cross-checks it against the
// durable store every cycle. Keys are namespaced by prefix so the previous
// poll's session set can be enumerated with a prefix scan and cleared in
// bulk at startup.
package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/streamledger/internal/metrics"
)

// Store wraps a BadgerDB instance used as a TTL key-value cache.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) an on-disk cache at the given path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	// Badger's own logger is chatty at INFO; the caller logs cache activity.
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open stream cache at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a cache without disk persistence, used by tests.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory stream cache: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Set stores value under key with the given TTL. The value is JSON-encoded.
// A zero TTL stores the entry without expiry.
func (s *Store) Set(key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), data)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		metrics.CacheOperationsTotal.WithLabelValues("set", "error").Inc()
		return fmt.Errorf("set cache key %s: %w", key, err)
	}

	metrics.CacheOperationsTotal.WithLabelValues("set", "ok").Inc()
	return nil
}

// Get loads the value stored under key into out. Returns false when the key
// is absent or expired.
func (s *Store) Get(key string, out interface{}) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		metrics.CacheOperationsTotal.WithLabelValues("get", "miss").Inc()
		return false, nil
	}
	if err != nil {
		metrics.CacheOperationsTotal.WithLabelValues("get", "error").Inc()
		return false, fmt.Errorf("get cache key %s: %w", key, err)
	}

	metrics.CacheOperationsTotal.WithLabelValues("get", "hit").Inc()
	return true, nil
}

// Delete removes key from the cache. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		metrics.CacheOperationsTotal.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("delete cache key %s: %w", key, err)
	}

	metrics.CacheOperationsTotal.WithLabelValues("delete", "ok").Inc()
	return nil
}

// KeysWithPrefix returns all non-expired keys under the given prefix.
// Used to reconstruct the previous poll's session-id set.
func (s *Store) KeysWithPrefix(prefix string) ([]string, error) {
	var keys []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		metrics.CacheOperationsTotal.WithLabelValues("scan", "error").Inc()
		return nil, fmt.Errorf("scan cache prefix %s: %w", prefix, err)
	}

	metrics.CacheOperationsTotal.WithLabelValues("scan", "ok").Inc()
	return keys, nil
}

// DropPrefix removes every key under the given prefix. Used at startup
// because TTL-based validity cannot be trusted across a restart.
func (s *Store) DropPrefix(prefix string) error {
	if err := s.db.DropPrefix([]byte(prefix)); err != nil {
		return fmt.Errorf("drop cache prefix %s: %w", prefix, err)
	}
	return nil
}
