package notification

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

var ErrClosed = errors.New("notification: closed")

type QueryKey string

const (
	KeyFriendRequests      QueryKey = "friendRequests"
	KeyUnreadConversations QueryKey = "unreadConversations"
	KeyFriends             QueryKey = "friends"
)

// QueryCache coalesces concurrent reads of the same key into one in-flight
// query and maps invalidation of a key to its registered refetch. Every
// invalidation starts a new generation of the key; results of queries
// started in an older generation are stale.
type QueryCache struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  singleflight.Group

	mu          sync.RWMutex
	closed      bool
	refetchers  map[QueryKey]func(ctx context.Context) error
	generations map[QueryKey]uint64
}

type generationResult struct {
	value      any
	generation uint64
}

func NewQueryCache() *QueryCache {
	ctx, cancel := context.WithCancel(context.Background())

	return &QueryCache{
		ctx:        ctx,
		cancel:     cancel,
		refetchers:  make(map[QueryKey]func(ctx context.Context) error),
		generations: make(map[QueryKey]uint64),
	}
}

func (c *QueryCache) OnInvalidate(key QueryKey, refetch func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.refetchers[key] = refetch
}

// Invalidate moves key to a new generation, drops any in-flight query for
// it, so later readers start a fresh one, and runs the key's refetch.
func (c *QueryCache) Invalidate(ctx context.Context, key QueryKey) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	c.generations[key]++
	refetch := c.refetchers[key]
	c.mu.Unlock()

	c.group.Forget(string(key))

	if refetch == nil {
		return nil
	}

	return refetch(ctx)
}

func (c *QueryCache) Generation(key QueryKey) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.generations[key]
}

// Current reports whether a result of the given generation is still the
// latest for key.
func (c *QueryCache) Current(key QueryKey, generation uint64) bool {
	return c.Generation(key) == generation
}

func (c *QueryCache) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.closed
}

// Close cancels in-flight queries. Results that still arrive are discarded.
func (c *QueryCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	c.cancel()
}

// Query runs fetch for key unless a query for the same key is already in
// flight, in which case the caller waits for that one. The shared query is
// bound to the cache lifetime, not to ctx, so one impatient caller cannot
// fail the others. The returned generation is the one the query started in.
func Query[T any](ctx context.Context, c *QueryCache, key QueryKey, fetch func(ctx context.Context) (T, error)) (T, uint64, error) {
	var zero T

	if c.Closed() {
		return zero, 0, ErrClosed
	}

	results := c.group.DoChan(string(key), func() (any, error) {
		generation := c.Generation(key)
		value, err := fetch(c.ctx)

		return generationResult{value, generation}, err
	})

	select {
	case <-ctx.Done():
		return zero, 0, ctx.Err()
	case result := <-results:
		if c.Closed() {
			return zero, 0, ErrClosed
		}

		if result.Err != nil {
			return zero, 0, result.Err
		}

		shared := result.Val.(generationResult)

		return shared.value.(T), shared.generation, nil
	}
}
