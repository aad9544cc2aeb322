package vbr

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
)

func TestBagStackIsLIFO(t *testing.T) {
	requireT := require.New(t)

	global := newTestGlobal[uint64](t, EntriesPerBag)
	var s bagStack

	a := global.emptyBag()
	b := global.emptyBag()
	c := global.emptyBag()

	s.push(a)
	s.push(b)
	s.push(c)

	bagAddr, ok := s.pop()
	requireT.True(ok)
	requireT.Equal(c, bagAddr)
	bagAddr, ok = s.pop()
	requireT.True(ok)
	requireT.Equal(b, bagAddr)
	bagAddr, ok = s.pop()
	requireT.True(ok)
	requireT.Equal(a, bagAddr)

	_, ok = s.pop()
	requireT.False(ok)
}

func TestBagStackStampAdvancesOnPush(t *testing.T) {
	requireT := require.New(t)

	global := newTestGlobal[uint64](t, EntriesPerBag)
	var s bagStack

	a := global.emptyBag()
	b := global.emptyBag()
	c := global.emptyBag()

	s.push(a)
	stamp, addr := unpack(s.head)
	requireT.Equal(uint64(1), stamp)
	requireT.Equal(a, addr)

	s.push(b)
	stamp, addr = unpack(s.head)
	requireT.Equal(uint64(2), stamp)
	requireT.Equal(b, addr)

	s.push(c)
	stamp, addr = unpack(s.head)
	requireT.Equal(uint64(3), stamp)
	requireT.Equal(c, addr)

	// A pop restores the packed word recorded when the new head was pushed.
	_, ok := s.pop()
	requireT.True(ok)
	stamp, addr = unpack(s.head)
	requireT.Equal(uint64(2), stamp)
	requireT.Equal(b, addr)
}

func TestBagStackConservationUnderContention(t *testing.T) {
	const (
		numOfWorkers = 8
		numOfBags    = 16
		iterations   = 10_000
	)

	requireT := require.New(t)

	global := newTestGlobal[uint64](t, EntriesPerBag)
	var s bagStack

	bags := map[uint64]struct{}{}
	for range numOfBags {
		bagAddr := global.emptyBag()
		bags[bagAddr] = struct{}{}
		s.push(bagAddr)
	}

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)))
	t.Cleanup(cancel)

	requireT.NoError(parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		for i := range numOfWorkers {
			spawn(fmt.Sprintf("worker-%02d", i), parallel.Continue, func(ctx context.Context) error {
				for range iterations {
					if bagAddr, ok := s.pop(); ok {
						s.push(bagAddr)
					}
				}
				return nil
			})
		}
		return nil
	}))

	// Every bag is back on the stack exactly once, none duplicated, none lost.
	popped := map[uint64]struct{}{}
	for {
		bagAddr, ok := s.pop()
		if !ok {
			break
		}
		_, known := bags[bagAddr]
		requireT.True(known)
		_, duplicate := popped[bagAddr]
		requireT.False(duplicate)
		popped[bagAddr] = struct{}{}
	}
	requireT.Len(popped, numOfBags)
}
