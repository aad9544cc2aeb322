package list

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
	"github.com/outofforest/vbr"
)

func newTestEngine(t *testing.T) *vbr.Global[Node] {
	global, deallocFunc, err := vbr.New[Node](vbr.Config{Capacity: 4096})
	require.NoError(t, err)
	t.Cleanup(deallocFunc)
	return global
}

func TestInsertGetDelete(t *testing.T) {
	requireT := require.New(t)

	global := newTestEngine(t)
	local := vbr.NewLocal(global)
	l := New(local)

	_, exists := l.Get(local, 10)
	requireT.False(exists)

	requireT.True(l.Insert(local, 10, 100))
	requireT.True(l.Insert(local, 20, 200))
	requireT.True(l.Insert(local, 5, 50))

	requireT.False(l.Insert(local, 10, 111))

	value, exists := l.Get(local, 10)
	requireT.True(exists)
	requireT.Equal(uint64(100), value)
	value, exists = l.Get(local, 5)
	requireT.True(exists)
	requireT.Equal(uint64(50), value)

	value, exists = l.Delete(local, 10)
	requireT.True(exists)
	requireT.Equal(uint64(100), value)

	_, exists = l.Get(local, 10)
	requireT.False(exists)
	_, exists = l.Delete(local, 10)
	requireT.False(exists)

	// Deleted keys may be inserted again.
	requireT.True(l.Insert(local, 10, 101))
	value, exists = l.Get(local, 10)
	requireT.True(exists)
	requireT.Equal(uint64(101), value)
}

func TestInsertOrderIsIrrelevant(t *testing.T) {
	requireT := require.New(t)

	global := newTestEngine(t)
	local := vbr.NewLocal(global)
	l := New(local)

	keys := make([]uint64, 100)
	for i := range keys {
		keys[i] = uint64(i + 1)
	}
	rnd := rand.New(rand.NewSource(42))
	rnd.Shuffle(len(keys), func(i, j int) {
		keys[i], keys[j] = keys[j], keys[i]
	})

	for _, k := range keys {
		requireT.True(l.Insert(local, k, k*10))
	}
	for _, k := range keys {
		value, exists := l.Get(local, k)
		requireT.True(exists)
		requireT.Equal(k*10, value)
	}
}

func TestNodesAreRecycled(t *testing.T) {
	requireT := require.New(t)

	global := newTestEngine(t)
	local := vbr.NewLocal(global)
	l := New(local)

	// Far more insert/delete cycles than the pool holds slots; without
	// reclamation this would grow the pool past any bound.
	const cycles = 200_000
	for i := range uint64(cycles) {
		key := i % 16
		l.Insert(local, key, i)
		l.Delete(local, key)
	}

	requireT.Less(global.Stats().Capacity, uint64(cycles))
}

func TestConcurrentDisjointRanges(t *testing.T) {
	const (
		numOfWorkers = 8
		keysPerRange = 1000
	)

	requireT := require.New(t)

	global := newTestEngine(t)
	l := New(vbr.NewLocal(global))

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)))
	t.Cleanup(cancel)

	requireT.NoError(parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		for i := range numOfWorkers {
			spawn(fmt.Sprintf("worker-%02d", i), parallel.Continue, func(ctx context.Context) error {
				local := vbr.NewLocal(global)
				base := uint64(i)*keysPerRange + 1

				for k := base; k < base+keysPerRange; k++ {
					if !l.Insert(local, k, k) {
						return errors.Errorf("insert of %d failed", k)
					}
				}
				for k := base; k < base+keysPerRange; k++ {
					value, exists := l.Get(local, k)
					if !exists || value != k {
						return errors.Errorf("lookup of %d failed", k)
					}
				}
				for k := base; k < base+keysPerRange; k += 2 {
					if _, exists := l.Delete(local, k); !exists {
						return errors.Errorf("delete of %d failed", k)
					}
				}
				return nil
			})
		}
		return nil
	}))

	local := vbr.NewLocal(global)
	for i := range uint64(numOfWorkers) {
		base := i*keysPerRange + 1
		for k := base; k < base+keysPerRange; k++ {
			_, exists := l.Get(local, k)
			requireT.Equal(k%2 == 0, exists, "key %d", k)
		}
	}
}

func TestConcurrentContendedKeys(t *testing.T) {
	const (
		numOfWorkers = 8
		iterations   = 20_000
		keySpace     = 16
	)

	requireT := require.New(t)

	global := newTestEngine(t)
	l := New(vbr.NewLocal(global))

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)))
	t.Cleanup(cancel)

	requireT.NoError(parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		for i := range numOfWorkers {
			spawn(fmt.Sprintf("worker-%02d", i), parallel.Continue, func(ctx context.Context) error {
				local := vbr.NewLocal(global)
				rnd := rand.New(rand.NewSource(int64(i)))

				for range iterations {
					key := rnd.Uint64() % keySpace
					switch rnd.Uint64() % 3 {
					case 0:
						l.Insert(local, key, key)
					case 1:
						l.Delete(local, key)
					default:
						if value, exists := l.Get(local, key); exists && value != key {
							return errors.Errorf("key %d holds %d", key, value)
						}
					}
				}
				return nil
			})
		}
		return nil
	}))
}
