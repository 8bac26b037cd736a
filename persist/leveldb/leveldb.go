// Package leveldb stores blocks in a goleveldb database.
package leveldb

import (
	"context"
	"errors"
	"fmt"

	"github.com/denkmit/denkmit"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// Options tune the database. Zero values keep goleveldb's defaults.
type Options struct {
	ReadOnly           bool
	WriteBufferSize    int
	BlockCacheCapacity int
}

// Persist implements denkmit.Persist on a LevelDB directory.
type Persist struct {
	db *leveldb.DB
}

func Open(path string, cfg Options) (*Persist, error) {
	opts := &opt.Options{
		Filter:             filter.NewBloomFilter(10),
		WriteBuffer:        cfg.WriteBufferSize,
		BlockCacheCapacity: cfg.BlockCacheCapacity,
	}
	if cfg.ReadOnly {
		opts.ReadOnly = true
		opts.ErrorIfMissing = true
	}
	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open LevelDB instance: %w", err)
	}
	return &Persist{db: db}, nil
}

func (p *Persist) Load(ctx context.Context, key string) ([]byte, error) {
	v, err := p.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("leveldb %s: %w", key, denkmit.ErrNotFound)
	}
	return v, err
}

func (p *Persist) Store(ctx context.Context, key string, value []byte) error {
	ok, err := p.db.Has([]byte(key), nil)
	if err != nil || ok {
		return err
	}
	return p.db.Put([]byte(key), value, nil)
}

func (p *Persist) Close() error {
	return p.db.Close()
}
