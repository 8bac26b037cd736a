package denkmit

import (
	"bytes"
	"context"
	"fmt"
	"sync"
)

type inMemoryStore struct {
	entries map[string][]byte
	l       sync.RWMutex
}

// NewInMemoryStore provides a Persist that keeps blocks in a map, usually
// for testing or for replicas sharing one process.
func NewInMemoryStore() Persist {
	return &inMemoryStore{entries: map[string][]byte{}}
}

func (ims *inMemoryStore) Store(ctx context.Context, key string, value []byte) error {
	ims.l.Lock()
	ims.entries[key] = bytes.Clone(value)
	ims.l.Unlock()
	return nil
}

func (ims *inMemoryStore) Load(ctx context.Context, key string) ([]byte, error) {
	ims.l.RLock()
	value, ok := ims.entries[key]
	ims.l.RUnlock()
	if !ok {
		return nil, fmt.Errorf("inMemoryStore entry %s: %w", key, ErrNotFound)
	}
	return value, nil
}
