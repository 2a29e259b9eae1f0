package pubfront

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/pubfront/content"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

func counting(payload string, calls *atomic.Int32) Generator {
	return func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte(payload), nil
	}
}

func TestPageCacheGeneratesMissingSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := NewPageCache(store, time.Hour, nil)
	defer c.Close()

	var calls atomic.Int32
	got, err := c.Get(ctx, "/", counting("v1", &calls))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))
	assert.True(t, c.Has(ctx, "/"))

	got, err = c.Get(ctx, "/", counting("v2", &calls))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got), "fresh snapshot is served as is")
	assert.EqualValues(t, 1, calls.Load())
}

func TestPageCacheServesStaleWhileRegenerating(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, Snapshot{Route: "/post/a/", Payload: []byte("old"), GeneratedAt: time.Now().Add(-2 * time.Hour)}))
	c := NewPageCache(store, time.Hour, nil)
	defer c.Close()

	release := make(chan struct{})
	var calls atomic.Int32
	gen := func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("new"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Get(ctx, "/post/a/", gen)
			assert.NoError(t, err)
			assert.Equal(t, "old", string(got))
		}()
	}
	wg.Wait()
	close(release)

	require.Eventually(t, func() bool {
		snap, err := store.Load(ctx, "/post/a/")
		return err == nil && string(snap.Payload) == "new"
	}, waitFor, tick)
	assert.EqualValues(t, 1, calls.Load(), "one regeneration per route")
}

func TestPageCacheDropsSnapshotRemovedUpstream(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, Snapshot{Route: "/post/gone/", Payload: []byte("old"), GeneratedAt: time.Now().Add(-2 * time.Hour)}))
	c := NewPageCache(store, time.Hour, nil)
	defer c.Close()

	gone := func(ctx context.Context) ([]byte, error) {
		return nil, fmt.Errorf("load post: %w", content.ErrNotFound)
	}
	got, err := c.Get(ctx, "/post/gone/", gone)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))

	require.Eventually(t, func() bool { return !c.Has(ctx, "/post/gone/") }, waitFor, tick)
	_, err = c.Get(ctx, "/post/gone/", gone)
	assert.ErrorIs(t, err, content.ErrNotFound)
}

func TestPageCacheZeroRevalidateNeverRegenerates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, Snapshot{Route: "/", Payload: []byte("old"), GeneratedAt: time.Unix(0, 0)}))
	c := NewPageCache(store, 0, nil)

	var calls atomic.Int32
	got, err := c.Get(ctx, "/", counting("new", &calls))
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
	c.Close()
	assert.Zero(t, calls.Load())
}

func TestPageCacheDoesNotStoreFailures(t *testing.T) {
	ctx := context.Background()
	c := NewPageCache(NewMemoryStore(), time.Hour, nil)
	defer c.Close()

	boom := errors.New("upstream down")
	_, err := c.Get(ctx, "/post/x/", func(context.Context) ([]byte, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, c.Has(ctx, "/post/x/"))
}

func TestPageCacheCoalescesConcurrentGeneration(t *testing.T) {
	ctx := context.Background()
	c := NewPageCache(NewMemoryStore(), time.Hour, nil)
	defer c.Close()

	release := make(chan struct{})
	var calls atomic.Int32
	gen := func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("v"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Get(ctx, "/", gen)
			assert.NoError(t, err)
			assert.Equal(t, "v", string(got))
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.EqualValues(t, 1, calls.Load())
}

func TestCachedRoundTripsProps(t *testing.T) {
	ctx := context.Background()
	c := NewPageCache(NewMemoryStore(), time.Hour, nil)
	defer c.Close()

	type props struct {
		Title string `json:"title"`
	}
	load := func(context.Context) (props, error) { return props{Title: "hello"}, nil }
	got, err := Cached(ctx, c, "/post/hello/", load)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Title)

	got, err = Cached(ctx, c, "/post/hello/", func(context.Context) (props, error) {
		return props{}, errors.New("should not run")
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Title)
}
