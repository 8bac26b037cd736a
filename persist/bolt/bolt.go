// Package bolt stores blocks in a single bbolt database file.
package bolt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/denkmit/denkmit"
	bbolt "go.etcd.io/bbolt"
)

// Bucket holds every block.
var Bucket = []byte("blocks")

// Persist implements denkmit.Persist on a bbolt database.
type Persist struct {
	db *bbolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Persist, error) {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, fmt.Errorf("could not create dir for bolt: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(Bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create bucket: %w", err)
	}
	return &Persist{db: db}, nil
}

func (p *Persist) Load(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := p.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(Bucket).Get([]byte(key))
		if v == nil {
			return fmt.Errorf("bolt %s: %w", key, denkmit.ErrNotFound)
		}
		// v is only valid inside the transaction
		val = append([]byte(nil), v...)
		return nil
	})
	return val, err
}

func (p *Persist) Store(ctx context.Context, key string, value []byte) error {
	return p.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(Bucket)
		if b.Get([]byte(key)) != nil {
			return nil
		}
		return b.Put([]byte(key), value)
	})
}

func (p *Persist) Close() error {
	return p.db.Close()
}
