// Package keyValStore wraps BadgerDB as the persistence layer for nonces,
// user records and vault records. Keys are namespaced by the callers.
package keyValStore

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

var log *logrus.Logger

var ErrKeyNotFound = errors.New("key not found")

type StoreConfig struct {
	Path             string // data directory
	MinimumFreeSpace int    // in GB
	Logger           *logrus.Logger
}

type KeyValStore struct {
	config   StoreConfig
	badgerDB *badger.DB
}

func NewKeyValStore(config StoreConfig) (*KeyValStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	log = config.Logger

	err := config.checkConfig()
	if err != nil {
		return nil, fmt.Errorf("error checking config for KeyValStore: %w", err)
	}

	opts := badger.DefaultOptions(config.Path)
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100 // Set max size of each value log file to 100MB
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger at %s: %w", config.Path, err)
	}

	err = displayDiskUsage(config.Path)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &KeyValStore{
		config:   config,
		badgerDB: db,
	}, nil
}

func (k *KeyValStore) Write(key []byte, content []byte) error {
	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set(key, content)
	})
	if err != nil {
		log.Errorf("Error writing key: %v", err)
		return err
	}
	return nil
}

func (k *KeyValStore) Read(key []byte) ([]byte, error) {
	var value []byte
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error reading key: %w", err)
	}
	return value, nil
}

func (k *KeyValStore) Has(key []byte) (bool, error) {
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (k *KeyValStore) Delete(key []byte) error {
	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("error deleting key: %w", err)
	}
	return nil
}

// Consume reads the value under key, hands it to check, and deletes the key
// only when check returns nil. Read, check and delete run in a single
// transaction, so two concurrent consumers of the same key cannot both
// succeed.
func (k *KeyValStore) Consume(key []byte, check func(value []byte) error) error {
	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		if err != nil {
			return err
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := check(value); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	return err
}

// ReadPrefix returns all key/value pairs whose key starts with prefix,
// in key order.
func (k *KeyValStore) ReadPrefix(prefix []byte) ([][2][]byte, error) {
	var results [][2][]byte
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !bytes.HasPrefix(key, prefix) {
				break
			}
			results = append(results, [2][]byte{key, value})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error scanning prefix: %w", err)
	}
	return results, nil
}

func (k *KeyValStore) Close() {
	if err := k.Clean(); err != nil {
		log.Errorf("Error cleaning db on close: %v", err)
	}
	k.badgerDB.Close()
}

func (k *KeyValStore) Clean() error {
	err := k.badgerDB.Sync()
	if err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}

	// flatten the db
	err = k.badgerDB.Flatten(runtime.NumCPU())
	if err != nil {
		return fmt.Errorf("error flattening db: %w", err)
	}

	err = k.badgerDB.RunValueLogGC(0.1)
	if err != nil && err != badger.ErrNoRewrite {
		return fmt.Errorf("error running value log GC: %w", err)
	}

	return nil
}

// StartGarbageCollection runs badger value log GC on a ticker until stop is
// closed.
func (k *KeyValStore) StartGarbageCollection(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			err := k.badgerDB.RunValueLogGC(0.5)
			if err != nil && err != badger.ErrNoRewrite {
				log.Errorf("Error during garbage collection: %v", err)
			}
		}
	}
}
