package denkmit

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/minio/blake2b-simd"
	"github.com/mr-tron/base58"
	"github.com/zeebo/blake3"
)

// ID is the content identifier of a block: the digest of its bytes under the
// dataset's hash function.
type ID []byte

// String renders the id in base58.
func (id ID) String() string {
	return base58.Encode(id)
}

// Equal reports whether both ids hold the same digest.
func (id ID) Equal(other ID) bool {
	return bytes.Equal(id, other)
}

// IsZero reports whether the id is empty.
func (id ID) IsZero() bool {
	return len(id) == 0
}

// ParseID parses the base58 form produced by ID.String.
func ParseID(s string) (ID, error) {
	if s == "" {
		return nil, fmt.Errorf("parse id: %w: empty", ErrConfiguration)
	}
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("parse id %q: %w: %v", s, ErrConfiguration, err)
	}
	return ID(b), nil
}

// HashFunc computes a digest. It must be deterministic across processes
// since replicas compare ids produced by it.
type HashFunc func([]byte) []byte

const (
	HashBlake2b = "blake2b-256"
	HashBlake3  = "blake3-256"
	HashSHA256  = "sha2-256"
)

// DefaultHash is the algorithm recorded in new manifests.
const DefaultHash = HashBlake2b

// HashFuncByName returns the hash function registered for name.
func HashFuncByName(name string) (HashFunc, error) {
	switch name {
	case HashBlake2b, "":
		return blake2bSum, nil
	case HashBlake3:
		return func(b []byte) []byte {
			sum := blake3.Sum256(b)
			return sum[:]
		}, nil
	case HashSHA256:
		return func(b []byte) []byte {
			sum := sha256.Sum256(b)
			return sum[:]
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown hash %q", ErrConfiguration, name)
	}
}

func blake2bSum(b []byte) []byte {
	sum := blake2b.Sum256(b)
	return sum[:]
}
