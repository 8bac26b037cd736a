// Package pebble stores blocks in a Pebble database.
package pebble

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/denkmit/denkmit"
)

// Persist implements denkmit.Persist on a Pebble directory.
type Persist struct {
	db   *pebble.DB
	sync bool
}

// Open opens or creates the database at path. With sync set every Store is
// flushed to disk before it returns.
func Open(path string, sync bool) (*Persist, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Persist{db: db, sync: sync}, nil
}

func (p *Persist) Load(ctx context.Context, key string) ([]byte, error) {
	val, closer, err := p.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, fmt.Errorf("pebble %s: %w", key, denkmit.ErrNotFound)
		}
		return nil, err
	}
	defer closer.Close()
	// val is only valid until closer is closed
	ret := make([]byte, len(val))
	copy(ret, val)
	return ret, nil
}

func (p *Persist) Store(ctx context.Context, key string, value []byte) error {
	opts := pebble.NoSync
	if p.sync {
		opts = pebble.Sync
	}
	return p.db.Set([]byte(key), value, opts)
}

func (p *Persist) Close() error {
	return p.db.Close()
}
