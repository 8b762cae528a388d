package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ruteri/guardian-recovery/interfaces"
)

// BadgerBackend stores records in an embedded BadgerDB.
type BadgerBackend struct {
	db          *badgerdb.DB
	log         *slog.Logger
	locationURI string
}

// NewBadgerBackend opens a BadgerDB at path. An empty path opens an in-memory database.
func NewBadgerBackend(path string, syncWrites bool, log *slog.Logger) (*BadgerBackend, error) {
	opts := badgerdb.DefaultOptions(path)
	opts.SyncWrites = syncWrites
	opts.Logger = nil

	uri := "badger://" + path
	if path == "" {
		opts = opts.WithInMemory(true)
		uri = "badger://memory"
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &BadgerBackend{
		db:          db,
		log:         log,
		locationURI: uri,
	}, nil
}

func (b *BadgerBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, interfaces.ErrContentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return val, nil
}

func (b *BadgerBackend) Put(ctx context.Context, key string, value []byte) error {
	err := b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("badger put: %w", err)
	}
	return nil
}

func (b *BadgerBackend) Available(ctx context.Context) bool {
	return !b.db.IsClosed()
}

func (b *BadgerBackend) Name() string {
	return "badger"
}

func (b *BadgerBackend) LocationURI() string {
	return b.locationURI
}

// Close flushes and closes the database.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}
