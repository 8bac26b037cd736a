package denkmit

import (
	"bytes"
	"fmt"
)

// LeafKind identifies the variant of a Leaf. The numeric values are part of
// the canonical Pollard encoding.
type LeafKind uint8

const (
	KindEmpty LeafKind = iota
	KindHash
	KindPollard
	KindEntry
	KindIdentity
	KindSortedEntry
)

func (k LeafKind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindHash:
		return "hash"
	case KindPollard:
		return "pollard"
	case KindEntry:
		return "entry"
	case KindIdentity:
		return "identity"
	case KindSortedEntry:
		return "sorted-entry"
	default:
		return fmt.Sprintf("LeafKind(%d)", uint8(k))
	}
}

// Leaf is one slot of a Pollard. The set of implementations is closed: Empty,
// Hash, PollardLink, EntryLink, IdentityLink and SortedEntry.
type Leaf interface {
	Kind() LeafKind
	// hashBytes is what the slot contributes to its parent's hash.
	hashBytes() []byte
}

// Empty is an unoccupied slot.
type Empty struct{}

// Hash is an internal node of a Pollard's hash tree.
type Hash struct {
	Digest []byte
}

// PollardLink references a child Pollard by id.
type PollardLink struct {
	ID ID
}

// EntryLink references an entry block and its creator.
type EntryLink struct {
	Link    ID
	Creator ID
}

// IdentityLink references an identity block.
type IdentityLink struct {
	Link ID
}

// SortedEntry references an entry block together with the sort key and
// logical key needed to rebuild the index from the tree alone.
type SortedEntry struct {
	Link    ID
	Sort    []int64
	Key     string
	Creator ID
}

func (Empty) Kind() LeafKind        { return KindEmpty }
func (Hash) Kind() LeafKind         { return KindHash }
func (PollardLink) Kind() LeafKind  { return KindPollard }
func (EntryLink) Kind() LeafKind    { return KindEntry }
func (IdentityLink) Kind() LeafKind { return KindIdentity }
func (SortedEntry) Kind() LeafKind  { return KindSortedEntry }

func (Empty) hashBytes() []byte          { return nil }
func (l Hash) hashBytes() []byte         { return l.Digest }
func (l PollardLink) hashBytes() []byte  { return l.ID }
func (l EntryLink) hashBytes() []byte    { return l.Link }
func (l IdentityLink) hashBytes() []byte { return l.Link }
func (l SortedEntry) hashBytes() []byte  { return l.Link }

// SortKey returns the primary sort field, or 0 when the leaf carries none.
func (l SortedEntry) SortKey() int64 {
	if len(l.Sort) == 0 {
		return 0
	}
	return l.Sort[0]
}

func (l SortedEntry) String() string {
	return fmt.Sprintf("%s@%v(%s)", l.Key, l.Sort, l.Link)
}

// IsEmpty reports whether l is nil or the Empty variant.
func IsEmpty(l Leaf) bool {
	return l == nil || l.Kind() == KindEmpty
}

// LeavesEqual reports whether a and b are the same variant with identical
// payload bytes.
func LeavesEqual(a, b Leaf) bool {
	if IsEmpty(a) || IsEmpty(b) {
		return IsEmpty(a) && IsEmpty(b)
	}
	if a.Kind() != b.Kind() {
		return false
	}
	return bytes.Equal(appendLeaf(nil, a), appendLeaf(nil, b))
}

// nonEmpty drops Empty placeholders.
func nonEmpty(leaves []Leaf) []Leaf {
	out := make([]Leaf, 0, len(leaves))
	for _, l := range leaves {
		if !IsEmpty(l) {
			out = append(out, l)
		}
	}
	return out
}
