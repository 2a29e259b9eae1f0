// Package listing holds the state of a paginated post listing: the posts
// shown so far and the cursor of the next page.
package listing

import (
	"context"
	"errors"
	"sync"

	"github.com/eringen/pubfront/content"
)

var (
	// ErrNoMorePages is returned by LoadMore when there is no cursor.
	ErrNoMorePages = errors.New("listing: no more pages")
	// ErrLoadInFlight is returned by LoadMore while another load is running.
	ErrLoadInFlight = errors.New("listing: load already in flight")
)

// Fetcher reads the page a cursor points to.
type Fetcher interface {
	NextPage(ctx context.Context, cursor string) (content.Page, error)
}

// State accumulates posts across "load more" actions. Posts are only ever
// appended in arrival order; nothing is de-duplicated or re-sorted. At most
// one load runs at a time.
type State struct {
	mu       sync.Mutex
	posts    []content.Post
	cursor   string
	inFlight bool
}

// New returns a State initialized from the first page.
func New(first content.Page) *State {
	posts := make([]content.Post, len(first.Results))
	copy(posts, first.Results)
	return &State{posts: posts, cursor: first.NextPage}
}

// Posts returns a copy of the accumulated posts.
func (s *State) Posts() []content.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]content.Post, len(s.posts))
	copy(out, s.posts)
	return out
}

// Len returns the number of accumulated posts.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posts)
}

// Cursor returns the cursor of the next page, or "" when there is none.
func (s *State) Cursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// HasMore reports whether another page is available.
func (s *State) HasMore() bool {
	return s.Cursor() != ""
}

// Loading reports whether a load is in flight.
func (s *State) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// LoadMore fetches the page at the held cursor, appends its results and
// replaces the cursor. It returns the appended posts. On error the state is
// left as it was. The in-flight flag is set for the duration of the fetch
// and cleared when it settles, successfully or not.
func (s *State) LoadMore(ctx context.Context, f Fetcher) ([]content.Post, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, ErrLoadInFlight
	}
	if s.cursor == "" {
		s.mu.Unlock()
		return nil, ErrNoMorePages
	}
	s.inFlight = true
	cursor := s.cursor
	s.mu.Unlock()

	page, err := f.NextPage(ctx, cursor)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if err != nil {
		return nil, err
	}
	s.posts = append(s.posts, page.Results...)
	s.cursor = page.NextPage
	return page.Results, nil
}

// Drain calls LoadMore until no pages remain, invoking fn after each page
// with its 1-based page number (the first page is page 1, so fn starts at 2)
// and the appended posts.
func (s *State) Drain(ctx context.Context, f Fetcher, fn func(page int, added []content.Post) error) error {
	for page := 2; s.HasMore(); page++ {
		added, err := s.LoadMore(ctx, f)
		if err != nil {
			return err
		}
		if err := fn(page, added); err != nil {
			return err
		}
	}
	return nil
}
