// Package hashmap implements a lock-free hash map as a fixed array of sorted
// list buckets sharing one reclamation engine.
package hashmap

import (
	"github.com/cespare/xxhash"

	"github.com/outofforest/photon"
	"github.com/outofforest/vbr"
	"github.com/outofforest/vbr/list"
)

// New creates a map with numOfBuckets buckets. The bucket count is fixed for
// the map's lifetime.
func New(local *vbr.Local[list.Node], numOfBuckets uint64) *Map {
	buckets := make([]*list.List, 0, numOfBuckets)
	for range numOfBuckets {
		buckets = append(buckets, list.New(local))
	}
	return &Map{
		buckets: buckets,
	}
}

// Map is a lock-free hash map keyed by uint64.
type Map struct {
	buckets []*list.List
}

// Get returns the value stored under key.
func (m *Map) Get(local *vbr.Local[list.Node], key uint64) (uint64, bool) {
	return m.bucket(key).Get(local, key)
}

// Insert stores value under key. It returns false if the key is already
// present.
func (m *Map) Insert(local *vbr.Local[list.Node], key, value uint64) bool {
	return m.bucket(key).Insert(local, key, value)
}

// Delete removes key and returns the value it held.
func (m *Map) Delete(local *vbr.Local[list.Node], key uint64) (uint64, bool) {
	return m.bucket(key).Delete(local, key)
}

func (m *Map) bucket(key uint64) *list.List {
	hash := xxhash.Sum64(photon.NewFromValue(&key).B)
	return m.buckets[hash%uint64(len(m.buckets))]
}
