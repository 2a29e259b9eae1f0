package pubfront

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"

	"github.com/eringen/pubfront/listing"
)

const (
	listingSession = "listing"
	listingKey     = "ids"
	listingField   = "listing"

	// maxListings bounds the registry across all visitors; the least
	// recently used listing is dropped first.
	maxListings = 10000
	// maxSessionListings bounds the page views one session keeps alive.
	maxSessionListings = 8
)

// listingRegistry holds one accumulated listing per page view of the home
// page. The rendered load-more form carries the listing id; the session
// cookie holds the ids that browser may use.
type listingRegistry struct {
	entries *expirable.LRU[string, *listing.State]
}

func newListingRegistry(size int, ttl time.Duration) *listingRegistry {
	return &listingRegistry{entries: expirable.NewLRU[string, *listing.State](size, nil, ttl)}
}

// Put registers state under a new id.
func (r *listingRegistry) Put(state *listing.State) string {
	id := uuid.NewString()
	r.entries.Add(id, state)
	return id
}

// Get returns the listing for id and restarts its expiry.
func (r *listingRegistry) Get(id string) (*listing.State, bool) {
	state, ok := r.entries.Get(id)
	if ok {
		r.entries.Add(id, state)
	}
	return state, ok
}

func (r *listingRegistry) Remove(id string) {
	r.entries.Remove(id)
}

func (r *listingRegistry) Len() int {
	return r.entries.Len()
}

func (r *listingRegistry) Stop() {
	r.entries.Purge()
}

// mountListing registers state for a new page view and records its id in
// the visitor's session. The oldest page views of the session are evicted
// once it holds more than maxSessionListings.
func (a *App) mountListing(c echo.Context, state *listing.State) (string, error) {
	sess, err := session.Get(listingSession, c)
	if err != nil {
		return "", err
	}
	ids, _ := sess.Values[listingKey].([]string)
	id := a.listings.Put(state)
	ids = append(ids, id)
	if over := len(ids) - maxSessionListings; over > 0 {
		for _, old := range ids[:over] {
			a.listings.Remove(old)
		}
		ids = slices.Clone(ids[over:])
	}
	sess.Values[listingKey] = ids
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		a.listings.Remove(id)
		return "", err
	}
	return id, nil
}

// currentListing returns the listing of the page view that posted the
// load-more form, provided the id belongs to the visitor's session.
func (a *App) currentListing(c echo.Context) (string, *listing.State, bool) {
	id := c.FormValue(listingField)
	if id == "" {
		return "", nil, false
	}
	sess, err := session.Get(listingSession, c)
	if err != nil {
		return "", nil, false
	}
	ids, _ := sess.Values[listingKey].([]string)
	if !slices.Contains(ids, id) {
		return "", nil, false
	}
	state, ok := a.listings.Get(id)
	return id, state, ok
}
