package denkmit

import (
	"bytes"
	"context"
	"fmt"
)

// Persist stores and loads blocks by key. Keys are base58 content ids, and a
// given key is always stored with the same bytes, so Store may skip keys it
// already holds. Load must return an error wrapping ErrNotFound for unknown
// keys.
type Persist interface {
	Store(ctx context.Context, key string, value []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}

// Blocks is the content-addressed view of a Persist: blocks are stored under
// the hash of their bytes and verified against it when loaded.
type Blocks struct {
	persist Persist
	hash    HashFunc
	cache   NodeCache
}

// NewBlocks wraps persist. cache may be nil.
func NewBlocks(persist Persist, hash HashFunc, cache NodeCache) *Blocks {
	if hash == nil {
		hash = blake2bSum
	}
	return &Blocks{persist: persist, hash: hash, cache: cache}
}

// Hash returns the hash function ids are computed with.
func (b *Blocks) Hash() HashFunc {
	return b.hash
}

// Put stores data and returns its id.
func (b *Blocks) Put(ctx context.Context, data []byte) (ID, error) {
	id := ID(b.hash(data))
	return id, b.store(ctx, id, data, nil)
}

func (b *Blocks) store(ctx context.Context, id ID, data []byte, node *Pollard) error {
	key := id.String()
	if b.cache != nil && b.cache.Contains(key) {
		return nil
	}
	if err := b.persist.Store(ctx, key, data); err != nil {
		return fmt.Errorf("persist store %s: %w", key, err)
	}
	if b.cache != nil {
		b.cache.Add(key, node)
	}
	return nil
}

// Get loads the block with the given id and checks its digest.
func (b *Blocks) Get(ctx context.Context, id ID) ([]byte, error) {
	key := id.String()
	data, err := b.persist.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("persist load %s: %w", key, err)
	}
	if !bytes.Equal(b.hash(data), id) {
		return nil, fmt.Errorf("%w: block %s does not match its id", ErrInvalidStructure, key)
	}
	return data, nil
}

// PutPollard stores a finalized Pollard.
func (b *Blocks) PutPollard(ctx context.Context, p *Pollard) (ID, error) {
	data, err := p.Encode()
	if err != nil {
		return nil, err
	}
	id := ID(b.hash(data))
	if !id.Equal(p.id) {
		return nil, fmt.Errorf("%w: pollard hashed with a different function than the store", ErrConfiguration)
	}
	return id, b.store(ctx, id, data, p)
}

// GetPollard loads and decodes a Pollard. Decoded nodes are cached and must
// not be mutated by callers.
func (b *Blocks) GetPollard(ctx context.Context, id ID) (*Pollard, error) {
	key := id.String()
	if b.cache != nil {
		if v, ok := b.cache.Get(key); ok {
			if p, ok := v.(*Pollard); ok && p != nil {
				return p, nil
			}
		}
	}
	data, err := b.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := DecodePollard(data, b.hash)
	if err != nil {
		return nil, fmt.Errorf("pollard %s: %w", key, err)
	}
	if b.cache != nil {
		b.cache.Add(key, p)
	}
	return p, nil
}
