// Package content is a client for a Prismic-style headless content API.
//
// The API exposes a root endpoint that advertises the current master ref and
// a documents search endpoint that accepts predicates, ordering, page size and
// an "after" document id. Every search response carries an opaque next_page
// URL that can be requested as-is to read the following page.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a requested document does not exist.
	ErrNotFound = errors.New("content: document not found")
	// ErrForeignCursor is returned when a cursor points outside the API host.
	ErrForeignCursor = errors.New("content: cursor does not belong to the API endpoint")
)

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("content: %s returned %d: %s", e.URL, e.StatusCode, e.Body)
}

// Client talks to the content API. It is safe for concurrent use.
type Client struct {
	endpoint *url.URL
	token    string
	http     *http.Client
	refTTL   time.Duration

	mu         sync.RWMutex
	ref        string
	refFetched time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithRefTTL sets how long the master ref is reused before it is looked up
// again (default 30s).
func WithRefTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.refTTL = ttl
	}
}

// NewClient creates a client for the API rooted at endpoint, e.g.
// https://repo.cdn.prismic.io/api/v2. accessToken may be empty for public
// repositories.
func NewClient(endpoint, accessToken string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("content: parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("content: endpoint %q must be an http(s) URL", endpoint)
	}
	c := &Client{
		endpoint: u,
		token:    accessToken,
		http:     &http.Client{Timeout: 15 * time.Second},
		refTTL:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Predicate is a single query predicate in the API's query syntax.
type Predicate string

// At matches documents whose field at path equals value.
func At(path, value string) Predicate {
	return Predicate(fmt.Sprintf(`[at(%s,%s)]`, path, strconv.Quote(value)))
}

// Ordering sorts results by a field.
type Ordering struct {
	Field string
	Desc  bool
}

// ByPublicationDate orders by first publication date.
func ByPublicationDate(desc bool) Ordering {
	return Ordering{Field: "document.first_publication_date", Desc: desc}
}

// QueryOptions are the optional search parameters.
type QueryOptions struct {
	PageSize  int
	Page      int
	After     string // document id; results start after it in the given ordering
	Orderings []Ordering
	Fetch     []string // restrict returned data fields, e.g. "posts.title"
}

type refsResponse struct {
	Refs []struct {
		ID          string `json:"id"`
		Ref         string `json:"ref"`
		IsMasterRef bool   `json:"isMasterRef"`
	} `json:"refs"`
}

// masterRef returns the current master ref. It tries a read lock first and
// only refreshes under the write lock when the cached value expired.
func (c *Client) masterRef(ctx context.Context) (string, error) {
	c.mu.RLock()
	if c.ref != "" && time.Since(c.refFetched) < c.refTTL {
		ref := c.ref
		c.mu.RUnlock()
		return ref, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ref != "" && time.Since(c.refFetched) < c.refTTL {
		return c.ref, nil
	}
	u := *c.endpoint
	u.RawQuery = c.withToken(url.Values{}).Encode()
	var refs refsResponse
	if err := c.get(ctx, u.String(), &refs); err != nil {
		return "", err
	}
	for _, r := range refs.Refs {
		if r.IsMasterRef {
			c.ref = r.Ref
			c.refFetched = time.Now()
			return c.ref, nil
		}
	}
	return "", fmt.Errorf("content: %s advertises no master ref", c.endpoint)
}

// Query runs a search with the given predicates.
func (c *Client) Query(ctx context.Context, predicates []Predicate, opts QueryOptions) (*Response, error) {
	ref, err := c.masterRef(ctx)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("ref", ref)
	var sb strings.Builder
	sb.WriteString("[")
	for _, p := range predicates {
		sb.WriteString(string(p))
	}
	sb.WriteString("]")
	q.Set("q", sb.String())
	if opts.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(opts.PageSize))
	}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.After != "" {
		q.Set("after", opts.After)
	}
	if len(opts.Orderings) > 0 {
		q.Set("orderings", formatOrderings(opts.Orderings))
	}
	if len(opts.Fetch) > 0 {
		q.Set("fetch", strings.Join(opts.Fetch, ","))
	}
	u := *c.endpoint
	u.Path += "/documents/search"
	u.RawQuery = c.withToken(q).Encode()

	var resp Response
	if err := c.get(ctx, u.String(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueryCursor requests the page identified by a next_page cursor returned by
// an earlier search. The cursor is not interpreted beyond checking that it
// targets the same API host.
func (c *Client) QueryCursor(ctx context.Context, cursor string) (*Response, error) {
	u, err := url.Parse(cursor)
	if err != nil {
		return nil, fmt.Errorf("content: parse cursor: %w", err)
	}
	if u.Scheme != c.endpoint.Scheme || u.Host != c.endpoint.Host {
		return nil, ErrForeignCursor
	}
	q := u.Query()
	if q.Get("access_token") == "" {
		u.RawQuery = c.withToken(q).Encode()
	}
	var resp Response
	if err := c.get(ctx, u.String(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetByUID returns the document of docType with the given uid.
func (c *Client) GetByUID(ctx context.Context, docType, uid string) (Document, error) {
	resp, err := c.Query(ctx, []Predicate{At("my."+docType+".uid", uid)}, QueryOptions{PageSize: 1})
	if err != nil {
		return Document{}, err
	}
	if len(resp.Results) == 0 {
		return Document{}, ErrNotFound
	}
	return resp.Results[0], nil
}

func (c *Client) withToken(q url.Values) url.Values {
	if c.token != "" {
		q.Set("access_token", c.token)
	}
	return q
}

func (c *Client) get(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("content: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, URL: redactToken(req.URL), Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("content: decode response: %w", err)
	}
	return nil
}

func formatOrderings(orderings []Ordering) string {
	parts := make([]string, 0, len(orderings))
	for _, o := range orderings {
		if o.Desc {
			parts = append(parts, o.Field+" desc")
		} else {
			parts = append(parts, o.Field)
		}
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func redactToken(u *url.URL) string {
	cp := *u
	q := cp.Query()
	if q.Has("access_token") {
		q.Set("access_token", "REDACTED")
		cp.RawQuery = q.Encode()
	}
	return cp.String()
}
