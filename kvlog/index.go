package kvlog

import (
	"cmp"
	"iter"

	"github.com/google/btree"
)

// Location is where in the log file an entry is
type Location struct {
	// offset of the first byte of the entry
	Start uint64
	// size of the encoded entry, in bytes
	Size uint64
}

// Index maps a key to the location of the most recent entry for that key.
type Index[K comparable] interface {
	// Put sets location of key. If key was already present, returns its
	// previous location and true.
	Put(key K, loc Location) (Location, bool)
	Get(key K) (Location, bool)
	// Remove removes key and returns its location. Returns false if key
	// wasn't present.
	Remove(key K) (Location, bool)
	// Keys returns a sequence of keys in the index. The sequence can be
	// iterated many times. The index must not be modified while iterating.
	Keys() iter.Seq[K]
	Len() int
}

var (
	_ Index[string] = &HashIndex[string]{}
	_ Index[string] = &OrderedIndex[string]{}
)

// HashIndex is an Index backed by a map. Keys are returned in no
// particular order.
type HashIndex[K comparable] struct {
	m map[K]Location
}

func NewHashIndex[K comparable]() *HashIndex[K] {
	return &HashIndex[K]{
		m: map[K]Location{},
	}
}

func (i *HashIndex[K]) Put(key K, loc Location) (Location, bool) {
	prev, ok := i.m[key]
	i.m[key] = loc
	return prev, ok
}

func (i *HashIndex[K]) Get(key K) (Location, bool) {
	loc, ok := i.m[key]
	return loc, ok
}

func (i *HashIndex[K]) Remove(key K) (Location, bool) {
	loc, ok := i.m[key]
	if ok {
		delete(i.m, key)
	}
	return loc, ok
}

func (i *HashIndex[K]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for k := range i.m {
			if !yield(k) {
				return
			}
		}
	}
}

func (i *HashIndex[K]) Len() int {
	return len(i.m)
}

type indexItem[K comparable] struct {
	key K
	loc Location
}

// OrderedIndex is an Index backed by a b-tree. Keys are returned
// in sorted order.
type OrderedIndex[K comparable] struct {
	t *btree.BTreeG[indexItem[K]]
}

// NewOrderedIndex returns an index ordering keys with cmp.Less
func NewOrderedIndex[K cmp.Ordered]() *OrderedIndex[K] {
	return NewOrderedIndexFunc(cmp.Less[K])
}

// NewOrderedIndexFunc returns an index ordering keys with less
func NewOrderedIndexFunc[K comparable](less func(a, b K) bool) *OrderedIndex[K] {
	itemLess := func(a, b indexItem[K]) bool {
		return less(a.key, b.key)
	}
	return &OrderedIndex[K]{
		t: btree.NewG(32, itemLess),
	}
}

func (i *OrderedIndex[K]) Put(key K, loc Location) (Location, bool) {
	prev, ok := i.t.ReplaceOrInsert(indexItem[K]{key: key, loc: loc})
	return prev.loc, ok
}

func (i *OrderedIndex[K]) Get(key K) (Location, bool) {
	it, ok := i.t.Get(indexItem[K]{key: key})
	return it.loc, ok
}

func (i *OrderedIndex[K]) Remove(key K) (Location, bool) {
	it, ok := i.t.Delete(indexItem[K]{key: key})
	return it.loc, ok
}

func (i *OrderedIndex[K]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		i.t.Ascend(func(it indexItem[K]) bool {
			return yield(it.key)
		})
	}
}

func (i *OrderedIndex[K]) Len() int {
	return i.t.Len()
}
