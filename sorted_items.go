package denkmit

import (
	"bytes"
	"cmp"
	"iter"
	"slices"
	"strings"
)

// SortedItem is one live entry of a SortedItemsStore. Index is its ordinal
// position at the time it was returned.
type SortedItem struct {
	SortKey int64
	Key     string
	CID     ID
	Creator ID
	Index   int
}

func (it SortedItem) leaf() SortedEntry {
	return SortedEntry{Link: it.CID, Sort: []int64{it.SortKey}, Key: it.Key, Creator: it.Creator}
}

type sortedRecord struct {
	sortKey int64
	key     string
	cid     ID
	creator ID
}

func compareRecord(r sortedRecord, sortKey int64, key string) int {
	if c := cmp.Compare(r.sortKey, sortKey); c != 0 {
		return c
	}
	return strings.Compare(r.key, key)
}

// SortedItemsStore orders entries by sort key (ties broken by logical key)
// and keeps at most one live entry per logical key. It is not safe for
// concurrent use.
type SortedItemsStore struct {
	records []sortedRecord
	keys    map[string]int64
}

func NewSortedItemsStore() *SortedItemsStore {
	return &SortedItemsStore{keys: map[string]int64{}}
}

func (s *SortedItemsStore) Len() int {
	return len(s.records)
}

func (s *SortedItemsStore) search(sortKey int64, key string) (int, bool) {
	return slices.BinarySearchFunc(s.records, sortKey, func(r sortedRecord, k int64) int {
		return compareRecord(r, k, key)
	})
}

// Set records cid as the live entry for key at sortKey. An existing entry for
// the same key is removed when the new one is newer (higher sort key, or the
// same sort key with greater cid bytes); an older write is ignored. prev
// reports the sort key of a removed entry.
func (s *SortedItemsStore) Set(sortKey int64, key string, cid, creator ID) (prev int64, replaced, applied bool) {
	if old, ok := s.keys[key]; ok {
		i, found := s.search(old, key)
		if found {
			cur := s.records[i]
			if old > sortKey || (old == sortKey && bytes.Compare(cur.cid, cid) >= 0) {
				return 0, false, false
			}
			s.records = slices.Delete(s.records, i, i+1)
			prev, replaced = old, true
		}
	}
	i, _ := s.search(sortKey, key)
	s.records = slices.Insert(s.records, i, sortedRecord{sortKey: sortKey, key: key, cid: cid, creator: creator})
	s.keys[key] = sortKey
	return prev, replaced, true
}

func (s *SortedItemsStore) item(i int) SortedItem {
	r := s.records[i]
	return SortedItem{SortKey: r.sortKey, Key: r.key, CID: r.cid, Creator: r.creator, Index: i}
}

// GetByKey returns the live entry for key.
func (s *SortedItemsStore) GetByKey(key string) (SortedItem, bool) {
	sortKey, ok := s.keys[key]
	if !ok {
		return SortedItem{}, false
	}
	i, found := s.search(sortKey, key)
	if !found {
		return SortedItem{}, false
	}
	return s.item(i), true
}

// lowerBound is the position of the first entry with a sort key >= sortKey.
func (s *SortedItemsStore) lowerBound(sortKey int64) int {
	i, _ := slices.BinarySearchFunc(s.records, sortKey, func(r sortedRecord, k int64) int {
		return cmp.Compare(r.sortKey, k)
	})
	return i
}

// Find returns the first entry whose sort key is >= sortKey.
func (s *SortedItemsStore) Find(sortKey int64) (SortedItem, bool) {
	i := s.lowerBound(sortKey)
	if i >= len(s.records) {
		return SortedItem{Index: i}, false
	}
	return s.item(i), true
}

// FindPrevious returns the last entry whose sort key is <= sortKey.
func (s *SortedItemsStore) FindPrevious(sortKey int64) (SortedItem, bool) {
	i := s.lowerBound(sortKey)
	for i < len(s.records) && s.records[i].sortKey == sortKey {
		i++
	}
	if i == 0 {
		return SortedItem{}, false
	}
	return s.item(i - 1), true
}

// GetByIndex returns the entry at ordinal position i.
func (s *SortedItemsStore) GetByIndex(i int) (SortedItem, bool) {
	if i < 0 || i >= len(s.records) {
		return SortedItem{}, false
	}
	return s.item(i), true
}

// Items yields every entry in ascending order.
func (s *SortedItemsStore) Items() iter.Seq[SortedItem] {
	return s.ItemsFromIndex(0)
}

// ItemsFrom yields entries starting at the lower bound of sortKey.
func (s *SortedItemsStore) ItemsFrom(sortKey int64) iter.Seq[SortedItem] {
	return func(yield func(SortedItem) bool) {
		for i := s.lowerBound(sortKey); i < len(s.records); i++ {
			if !yield(s.item(i)) {
				return
			}
		}
	}
}

// ItemsFromIndex yields entries starting at ordinal position start.
func (s *SortedItemsStore) ItemsFromIndex(start int) iter.Seq[SortedItem] {
	return func(yield func(SortedItem) bool) {
		for i := max(start, 0); i < len(s.records); i++ {
			if !yield(s.item(i)) {
				return
			}
		}
	}
}

func (s *SortedItemsStore) Clear() {
	s.records = nil
	clear(s.keys)
}
