// Package list implements a Harris-Michael sorted linked list on top of the
// reclamation engine. Nodes are engine slots linked through versioned atomics;
// logical deletion is a tag bit on the successor link. Every operation retries
// internally whenever a read or an allocation races with an epoch advance.
package list

import (
	"github.com/outofforest/vbr"
)

const deleted = 1

// Node is a list node managed by the reclamation engine.
type Node struct {
	next  vbr.VerAtomic[Node]
	key   vbr.ImmAtomic[uint64]
	value vbr.ImmAtomic[uint64]
}

// New creates an empty list anchored to a sentinel node allocated from local's
// engine.
func New(local *vbr.Local[Node]) *List {
	for {
		g := local.Guard()
		head, err := g.Allocate()
		if err != nil {
			continue
		}
		head.Deref().next.Nullify(head, 0)
		return &List{
			head: vbr.NewEntry(head),
		}
	}
}

// List is a sorted lock-free linked list keyed by uint64.
type List struct {
	head vbr.Entry[Node]
}

// Get returns the value stored under key.
func (l *List) Get(local *vbr.Local[Node], key uint64) (uint64, bool) {
	for {
		g := local.Guard()
		cur, found, err := l.find(g, key)
		if err != nil {
			continue
		}
		if !found {
			return 0, false
		}
		value, err := cur.curr.Deref().value.Get(g)
		if err != nil {
			continue
		}
		return value, true
	}
}

// Insert stores value under key. It returns false if the key is already
// present.
func (l *List) Insert(local *vbr.Local[Node], key, value uint64) bool {
	for {
		g := local.Guard()
		cur, found, err := l.find(g, key)
		if err != nil {
			continue
		}
		if found {
			return false
		}

		newS, err := g.Allocate()
		if err != nil {
			continue
		}
		node := newS.Deref()
		node.key.Set(key)
		node.value.Set(value)
		null := node.next.Nullify(newS, 0)
		if !node.next.CompareExchange(newS, null, cur.curr) {
			continue
		}

		if cur.prev.Deref().next.CompareExchange(cur.prev, cur.curr, newS) {
			return true
		}

		// Publication failed and the fresh node is still private, give it back.
		_ = g.Retire(newS)
	}
}

// Delete removes key and returns the value it held.
func (l *List) Delete(local *vbr.Local[Node], key uint64) (uint64, bool) {
	for {
		g := local.Guard()
		cur, found, err := l.find(g, key)
		if err != nil {
			continue
		}
		if !found {
			return 0, false
		}

		node := cur.curr.Deref()
		next, err := node.next.Load(g)
		if err != nil {
			continue
		}
		tag, err := next.Tag()
		if err != nil || tag != 0 {
			continue
		}
		value, err := node.value.Get(g)
		if err != nil {
			continue
		}

		// Mark first, then unlink. A failed unlink leaves the node for the
		// next traversal to reclaim.
		if !node.next.CompareExchange(cur.curr, next, next.WithTag(deleted)) {
			continue
		}
		if cur.prev.Deref().next.CompareExchange(cur.prev, cur.curr, next) {
			_ = g.Retire(cur.curr)
		}
		return value, true
	}
}

type cursor struct {
	prev vbr.Shared[Node]
	curr vbr.Shared[Node]
}

// find positions a cursor on the first node with a key not less than key,
// unlinking marked nodes on the way. Any validation failure aborts the whole
// traversal with ErrRetry.
func (l *List) find(g vbr.Guard[Node], key uint64) (cursor, bool, error) {
	prev, err := l.head.Load(g)
	if err != nil {
		return cursor{}, false, err
	}
	curr, err := prev.Deref().next.Load(g)
	if err != nil {
		return cursor{}, false, err
	}

	for {
		if curr.IsNull() {
			return cursor{prev: prev, curr: curr}, false, nil
		}

		node := curr.Deref()
		next, err := node.next.Load(g)
		if err != nil {
			return cursor{}, false, err
		}
		tag, err := next.Tag()
		if err != nil {
			return cursor{}, false, err
		}

		if tag != 0 {
			next = next.WithTag(0)
			if !prev.Deref().next.CompareExchange(prev, curr, next) {
				return cursor{}, false, vbr.ErrRetry
			}
			if err := g.Retire(curr); err != nil {
				return cursor{}, false, err
			}
			curr = next
			continue
		}

		currKey, err := node.key.Get(g)
		if err != nil {
			return cursor{}, false, err
		}
		switch {
		case currKey < key:
			prev = curr
			curr = next
		case currKey == key:
			return cursor{prev: prev, curr: curr}, true, nil
		default:
			return cursor{prev: prev, curr: curr}, false, nil
		}
	}
}
