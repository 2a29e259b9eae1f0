package content

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// allPageSize is the page size used when walking every post.
const allPageSize = 100

// Posts reads documents of one custom type and decodes them into Posts.
type Posts struct {
	client  *Client
	docType string
}

// NewPosts returns a Posts reader for docType (e.g. "posts").
func NewPosts(c *Client, docType string) *Posts {
	return &Posts{client: c, docType: docType}
}

// DocumentType returns the custom type this reader queries.
func (p *Posts) DocumentType() string {
	return p.docType
}

func (p *Posts) byType() []Predicate {
	return []Predicate{At("document.type", p.docType)}
}

// FirstPage queries the newest pageSize posts.
func (p *Posts) FirstPage(ctx context.Context, pageSize int) (Page, error) {
	resp, err := p.client.Query(ctx, p.byType(), QueryOptions{
		PageSize:  pageSize,
		Orderings: []Ordering{ByPublicationDate(true)},
	})
	if err != nil {
		return Page{}, err
	}
	return resp.AsPage()
}

// NextPage requests the page identified by cursor.
func (p *Posts) NextPage(ctx context.Context, cursor string) (Page, error) {
	resp, err := p.client.QueryCursor(ctx, cursor)
	if err != nil {
		return Page{}, err
	}
	return resp.AsPage()
}

// Get returns the post with the given uid, or ErrNotFound.
func (p *Posts) Get(ctx context.Context, uid string) (Post, error) {
	doc, err := p.client.GetByUID(ctx, p.docType, uid)
	if err != nil {
		return Post{}, err
	}
	return doc.Post()
}

// All walks every page and returns all posts, newest first.
func (p *Posts) All(ctx context.Context) ([]Post, error) {
	page, err := p.FirstPage(ctx, allPageSize)
	if err != nil {
		return nil, err
	}
	posts := page.Results
	for page.HasMore() {
		page, err = p.NextPage(ctx, page.NextPage)
		if err != nil {
			return nil, err
		}
		posts = append(posts, page.Results...)
	}
	return posts, nil
}

// Neighbors resolves the posts published immediately before and after post.
// Both sides are queried independently and in parallel; a side with no
// result is nil.
func (p *Posts) Neighbors(ctx context.Context, post Post) (Neighbors, error) {
	var n Neighbors
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		prev, err := p.adjacent(gctx, post.ID, true)
		n.Prev = prev
		return err
	})
	g.Go(func() error {
		next, err := p.adjacent(gctx, post.ID, false)
		n.Next = next
		return err
	})
	if err := g.Wait(); err != nil {
		return Neighbors{}, fmt.Errorf("content: neighbors of %s: %w", post.UID, err)
	}
	return n, nil
}

// adjacent returns the first post after id in publication order. Descending
// order walks toward older posts.
func (p *Posts) adjacent(ctx context.Context, id string, desc bool) (*Post, error) {
	resp, err := p.client.Query(ctx, p.byType(), QueryOptions{
		PageSize:  1,
		After:     id,
		Orderings: []Ordering{ByPublicationDate(desc)},
		Fetch:     []string{p.docType + ".title"},
	})
	if err != nil {
		return nil, err
	}
	posts, err := resp.Posts()
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, nil
	}
	return &posts[0], nil
}
