package filter

import (
	"fmt"
	"sync/atomic"
)

const (
	cacheUnstarted uint32 = iota
	cachePopulating
	cacheDone
)

// flattenCache is a write-once slot for a composite's leaf list.
//
// The first caller moves the state from unstarted to populating with a CAS and
// runs the compute function; every other caller blocks on done until the state
// reaches done. leaves and err are written only by the winner, before the
// state store and the channel close, so every reader that observes done sees
// the final values.
//
// Trees are acyclic by construction, so a compute function never reaches its
// own cache through And/Or. If a corrupted tree does, get finds the cache in
// the chain of caches the calling goroutine is populating and panics with
// ErrFlattenFailed instead of waiting on itself.
type flattenCache struct {
	state  atomic.Uint32
	done   chan struct{}
	leaves []FieldFilter
	err    error
}

func newFlattenCache() *flattenCache {
	return &flattenCache{done: make(chan struct{})}
}

// flattenChain links the caches being populated by one call chain, innermost first.
type flattenChain struct {
	cache *flattenCache
	next  *flattenChain
}

func (ch *flattenChain) contains(c *flattenCache) bool {
	for ; ch != nil; ch = ch.next {
		if ch.cache == c {
			return true
		}
	}
	return false
}

// get returns the cached leaves, computing them on first use. chain holds the
// caches the caller is already populating; compute receives it extended by c.
// If compute panicked, every caller panics with an error wrapping ErrFlattenFailed.
func (c *flattenCache) get(chain *flattenChain, compute func(chain *flattenChain, out *[]FieldFilter)) []FieldFilter {
	if c.state.Load() != cacheDone {
		if chain.contains(c) {
			panic(fmt.Errorf("%w: node reached from its own flatten", ErrFlattenFailed))
		}
		if c.state.CompareAndSwap(cacheUnstarted, cachePopulating) {
			c.populate(&flattenChain{cache: c, next: chain}, compute)
		} else {
			<-c.done
		}
	}
	if c.err != nil {
		panic(c.err)
	}
	return c.leaves
}

func (c *flattenCache) populate(chain *flattenChain, compute func(chain *flattenChain, out *[]FieldFilter)) {
	defer func() {
		if r := recover(); r != nil {
			c.leaves = nil
			c.err = fmt.Errorf("%w: %v", ErrFlattenFailed, r)
		}
		c.state.Store(cacheDone)
		close(c.done)
	}()
	compute(chain, &c.leaves)
}

// populated reports whether the cache reached its terminal state.
func (c *flattenCache) populated() bool {
	return c.state.Load() == cacheDone
}
