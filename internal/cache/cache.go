// README: Read-through cache with TTL, request coalescing and stale fallback.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Item is what a Store keeps per key. Data is the JSON-encoded value.
type Item struct {
	Data      []byte    `json:"data"`
	FetchedAt time.Time `json:"fetched_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store holds items. Get returns expired items until their retention ends so
// the cache can serve them as stale.
type Store interface {
	Get(ctx context.Context, key string) (Item, bool, error)
	Set(ctx context.Context, key string, it Item, retain time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type Fetcher[V any] func(ctx context.Context) (V, error)

type Result[V any] struct {
	Value     V
	Stale     bool
	FetchedAt time.Time
}

type Options struct {
	TTL            time.Duration
	StaleRetention time.Duration
	// FetchTimeout bounds one fetch. It keeps running after its callers give
	// up, so without a bound a hung fetch would hold the key.
	FetchTimeout   time.Duration
	Now            func() time.Time
	Logger         *slog.Logger
}

// Cache is safe for concurrent use. Concurrent misses on one key share a
// single fetch, and a fetch that started before Invalidate never writes back.
type Cache[V any] struct {
	store        Store
	group        singleflight.Group
	ttl          time.Duration
	retention    time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger

	mu       sync.Mutex
	inflight map[string]*flight
}

type flight struct {
	invalidated bool
}

func New[V any](store Store, opts Options) *Cache[V] {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Cache[V]{
		store:        store,
		ttl:          opts.TTL,
		retention:    opts.StaleRetention,
		fetchTimeout: opts.FetchTimeout,
		now:          opts.Now,
		logger:       opts.Logger.With("component", "dispatch_cache"),
		inflight:     make(map[string]*flight),
	}
}

// Get returns the fresh cached value for key, or fetches it. ttl <= 0 uses
// the cache default. When the fetch fails and an older value is still
// retained, that value is returned with Stale set.
func (c *Cache[V]) Get(ctx context.Context, key string, ttl time.Duration, fetch Fetcher[V]) (Result[V], error) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	cached, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "err", err)
		found = false
	}
	if found && c.now().Before(cached.ExpiresAt) {
		if res, err := c.decode(cached, false); err == nil {
			return res, nil
		}
	}

	ch := c.group.DoChan(key, func() (any, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		return c.fill(fillCtx, key, ttl, fetch)
	})

	var fetched Item
	select {
	case <-ctx.Done():
		return Result[V]{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			if found {
				c.logger.Warn("serving stale value", "key", key, "err", r.Err)
				return c.decode(cached, true)
			}
			return Result[V]{}, r.Err
		}
		fetched = r.Val.(Item)
	}
	return c.decode(fetched, false)
}

func (c *Cache[V]) fill(ctx context.Context, key string, ttl time.Duration, fetch Fetcher[V]) (Item, error) {
	f := &flight{}
	c.mu.Lock()
	c.inflight[key] = f
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.inflight[key] == f {
			delete(c.inflight, key)
		}
		c.mu.Unlock()
	}()

	v, err := fetch(ctx)
	if err != nil {
		return Item{}, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Item{}, err
	}
	now := c.now()
	it := Item{Data: data, FetchedAt: now, ExpiresAt: now.Add(ttl)}

	if c.invalidated(f) {
		return it, nil
	}
	if err := c.store.Set(ctx, key, it, ttl+c.retention); err != nil {
		c.logger.Warn("cache write failed", "key", key, "err", err)
		return it, nil
	}
	// Invalidate may have run while the write was in progress.
	if c.invalidated(f) {
		if err := c.store.Delete(ctx, key); err != nil {
			c.logger.Warn("cache delete failed", "key", key, "err", err)
		}
	}
	return it, nil
}

func (c *Cache[V]) invalidated(f *flight) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return f.invalidated
}

// Invalidate drops every key starting with prefix, including results of
// fetches still in flight.
func (c *Cache[V]) Invalidate(ctx context.Context, prefix string) error {
	c.mu.Lock()
	for key, f := range c.inflight {
		if strings.HasPrefix(key, prefix) {
			f.invalidated = true
			c.group.Forget(key)
		}
	}
	c.mu.Unlock()

	n, err := c.store.DeletePrefix(ctx, prefix)
	if err != nil {
		return err
	}
	c.logger.Debug("cache invalidated", "prefix", prefix, "keys", n)
	return nil
}

// InvalidateKey drops exactly key.
func (c *Cache[V]) InvalidateKey(ctx context.Context, key string) error {
	c.mu.Lock()
	if f, ok := c.inflight[key]; ok {
		f.invalidated = true
		c.group.Forget(key)
	}
	c.mu.Unlock()
	return c.store.Delete(ctx, key)
}

// Sweep removes items whose retention has passed.
func (c *Cache[V]) Sweep(ctx context.Context) (int, error) {
	return c.store.Sweep(ctx, c.now())
}

func (c *Cache[V]) decode(it Item, stale bool) (Result[V], error) {
	var v V
	if err := json.Unmarshal(it.Data, &v); err != nil {
		return Result[V]{}, errors.Join(ErrCorrupt, err)
	}
	return Result[V]{Value: v, Stale: stale, FetchedAt: it.FetchedAt}, nil
}

var ErrCorrupt = errors.New("cache: corrupt entry")
