package pubfront

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/pubfront/content"
	"github.com/eringen/pubfront/listing"
)

func newState() *listing.State {
	return listing.New(content.Page{Results: []content.Post{{UID: "a"}}, NextPage: "next"})
}

func TestListingRegistryExpiresIdleListings(t *testing.T) {
	r := newListingRegistry(10, 50*time.Millisecond)
	defer r.Stop()

	id := r.Put(newState())
	_, ok := r.Get(id)
	require.True(t, ok)

	assert.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 10*time.Millisecond)
	_, ok = r.Get(id)
	assert.False(t, ok)
}

func TestListingRegistryGetExtendsLifetime(t *testing.T) {
	r := newListingRegistry(10, 200*time.Millisecond)
	defer r.Stop()

	id := r.Put(newState())
	for range 4 {
		time.Sleep(100 * time.Millisecond)
		_, ok := r.Get(id)
		require.True(t, ok, "a listing in use must not expire")
	}
}

func TestListingRegistryEvictsLeastRecentlyUsed(t *testing.T) {
	r := newListingRegistry(2, time.Minute)
	defer r.Stop()

	first := r.Put(newState())
	second := r.Put(newState())
	_, ok := r.Get(first)
	require.True(t, ok)

	third := r.Put(newState())
	assert.Equal(t, 2, r.Len())
	_, ok = r.Get(second)
	assert.False(t, ok, "least recently used listing is dropped")
	_, ok = r.Get(first)
	assert.True(t, ok)
	_, ok = r.Get(third)
	assert.True(t, ok)
}

func TestListingRegistryRemove(t *testing.T) {
	r := newListingRegistry(10, time.Minute)
	defer r.Stop()

	id := r.Put(newState())
	r.Remove(id)
	_, ok := r.Get(id)
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}
