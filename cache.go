package pubfront

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/eringen/pubfront/content"
)

// regenerateTimeout bounds one background regeneration.
const regenerateTimeout = 30 * time.Second

// Generator produces the serialized props of a route.
type Generator func(ctx context.Context) ([]byte, error)

// PageCache serves generated page props from a SnapshotStore. A snapshot
// older than the revalidate interval is still served while a single
// background regeneration replaces it.
type PageCache struct {
	store      SnapshotStore
	revalidate time.Duration
	warnf      func(format string, args ...interface{})
	now        func() time.Time

	group   singleflight.Group
	mu      sync.Mutex
	pending map[string]struct{}
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewPageCache creates a PageCache backed by store. A zero revalidate
// interval never regenerates an existing snapshot.
func NewPageCache(store SnapshotStore, revalidate time.Duration, warnf func(format string, args ...interface{})) *PageCache {
	if warnf == nil {
		warnf = func(string, ...interface{}) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PageCache{
		store:      store,
		revalidate: revalidate,
		warnf:      warnf,
		now:        time.Now,
		pending:    make(map[string]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Get returns the snapshot for route, generating it when missing. Generation
// errors are returned and nothing is stored.
func (c *PageCache) Get(ctx context.Context, route string, gen Generator) ([]byte, error) {
	snap, err := c.store.Load(ctx, route)
	switch {
	case err == nil:
		if c.stale(snap) {
			c.regenerate(route, gen)
		}
		return snap.Payload, nil
	case errors.Is(err, ErrSnapshotMissing):
	default:
		c.warnf("pubfront: load snapshot %s: %v", route, err)
	}
	return c.generate(context.WithoutCancel(ctx), route, gen)
}

// Has reports whether a snapshot exists for route.
func (c *PageCache) Has(ctx context.Context, route string) bool {
	_, err := c.store.Load(ctx, route)
	return err == nil
}

// Refresh regenerates route synchronously and stores the result.
func (c *PageCache) Refresh(ctx context.Context, route string, gen Generator) ([]byte, error) {
	return c.generate(context.WithoutCancel(ctx), route, gen)
}

// Close cancels background regenerations and waits for them to finish.
func (c *PageCache) Close() {
	c.mu.Lock()
	c.cancel()
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *PageCache) stale(snap Snapshot) bool {
	return c.revalidate > 0 && c.now().Sub(snap.GeneratedAt) >= c.revalidate
}

// generate runs gen once per route at a time; concurrent callers share the
// result.
func (c *PageCache) generate(ctx context.Context, route string, gen Generator) ([]byte, error) {
	v, err, _ := c.group.Do(route, func() (interface{}, error) {
		payload, err := gen(ctx)
		if err != nil {
			return nil, err
		}
		snap := Snapshot{Route: route, Payload: payload, GeneratedAt: c.now()}
		if err := c.store.Save(ctx, snap); err != nil {
			c.warnf("pubfront: save snapshot %s: %v", route, err)
		}
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *PageCache) regenerate(route string, gen Generator) {
	c.mu.Lock()
	if _, ok := c.pending[route]; ok || c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.pending[route] = struct{}{}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.pending, route)
			c.mu.Unlock()
			c.wg.Done()
		}()
		ctx, cancel := context.WithTimeout(c.ctx, regenerateTimeout)
		defer cancel()
		_, err := c.generate(ctx, route, gen)
		switch {
		case errors.Is(err, content.ErrNotFound):
			// Removed upstream; the next request regenerates and gets the 404.
			if err := c.store.Delete(ctx, route); err != nil {
				c.warnf("pubfront: drop snapshot %s: %v", route, err)
			}
		case err != nil:
			c.warnf("pubfront: revalidate %s: %v", route, err)
		}
	}()
}

// JSONGenerator adapts a props loader to a Generator.
func JSONGenerator[T any](load func(ctx context.Context) (T, error)) Generator {
	return func(ctx context.Context) ([]byte, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	}
}

// Cached is Get for JSON-serializable props.
func Cached[T any](ctx context.Context, c *PageCache, route string, load func(ctx context.Context) (T, error)) (T, error) {
	var v T
	payload, err := c.Get(ctx, route, JSONGenerator(load))
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, err
	}
	return v, nil
}
