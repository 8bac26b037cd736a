package denkmit

import lru "github.com/hashicorp/golang-lru"

// NodeCache caches decoded Pollards by id. It also records which blocks have
// already been persisted so they are not stored twice, so one cache should
// not be shared between different Persist backends.
type NodeCache interface {
	// Add records a freshly stored or loaded node.
	Add(key, value interface{})
	// Contains indicates the block with the given key has already been persisted.
	Contains(key interface{}) bool
	// Get retrieves the already-decoded node with the given id, if cached.
	Get(key interface{}) (value interface{}, ok bool)
}

// NewNodeCache creates a new ARC-based node cache of the given size. One
// cache can be shared by any number of datasets on the same Persist.
func NewNodeCache(size int) NodeCache {
	cache, err := lru.NewARC(size)
	if err != nil {
		panic(err)
	}
	return cache
}
