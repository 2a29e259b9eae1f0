package content

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/eringen/pubfront/richtext"
)

// Post is a blog post decoded from a content API document. Posts are
// immutable snapshots; nothing in pubfront mutates one after decoding.
type Post struct {
	ID                   string     `json:"id"`
	UID                  string     `json:"uid"`
	FirstPublicationDate *time.Time `json:"first_publication_date"`
	Title                string     `json:"title"`
	Subtitle             string     `json:"subtitle,omitempty"`
	Author               string     `json:"author,omitempty"`
	Banner               Image      `json:"banner"`
	Content              []Block    `json:"content,omitempty"`
}

// Image is an asset reference returned by the API.
type Image struct {
	URL string `json:"url,omitempty"`
	Alt string `json:"alt,omitempty"`
}

// Block is one section of a post: a heading followed by rich text.
type Block struct {
	Heading string           `json:"heading"`
	Body    []richtext.Block `json:"body"`
}

// Page is one page of query results. An empty NextPage means there are no
// further pages.
type Page struct {
	Results  []Post `json:"results"`
	NextPage string `json:"next_page,omitempty"`
}

// HasMore reports whether another page can be requested.
func (p Page) HasMore() bool {
	return p.NextPage != ""
}

// Neighbors holds the chronologically adjacent posts. Either side is nil at
// the start or end of the chronology.
type Neighbors struct {
	Prev *Post `json:"prev"`
	Next *Post `json:"next"`
}

// Document is a raw API document. Data is decoded lazily by Post.
type Document struct {
	ID                   string          `json:"id"`
	UID                  string          `json:"uid"`
	Type                 string          `json:"type"`
	FirstPublicationDate string          `json:"first_publication_date"`
	LastPublicationDate  string          `json:"last_publication_date"`
	Data                 json.RawMessage `json:"data"`
}

// Response is the envelope returned by the documents search endpoint.
type Response struct {
	Page             int        `json:"page"`
	ResultsPerPage   int        `json:"results_per_page"`
	ResultsSize      int        `json:"results_size"`
	TotalResultsSize int        `json:"total_results_size"`
	TotalPages       int        `json:"total_pages"`
	NextPage         string     `json:"next_page"`
	PrevPage         string     `json:"prev_page"`
	Results          []Document `json:"results"`
}

// Posts decodes every result.
func (r *Response) Posts() ([]Post, error) {
	posts := make([]Post, 0, len(r.Results))
	for _, d := range r.Results {
		p, err := d.Post()
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// AsPage converts the response into a Page of posts.
func (r *Response) AsPage() (Page, error) {
	posts, err := r.Posts()
	if err != nil {
		return Page{}, err
	}
	return Page{Results: posts, NextPage: r.NextPage}, nil
}

type postData struct {
	Title    textField `json:"title"`
	Subtitle textField `json:"subtitle"`
	Author   textField `json:"author"`
	Banner   Image     `json:"banner"`
	Content  []Block   `json:"content"`
}

// Post decodes the document data into a Post. Fields missing from the data
// (for example when the query restricted fetched fields) stay empty.
func (d Document) Post() (Post, error) {
	var data postData
	if len(d.Data) > 0 && string(d.Data) != "null" {
		if err := json.Unmarshal(d.Data, &data); err != nil {
			return Post{}, fmt.Errorf("content: decode document %s: %w", d.ID, err)
		}
	}
	published, err := parseTimestamp(d.FirstPublicationDate)
	if err != nil {
		return Post{}, fmt.Errorf("content: document %s: %w", d.ID, err)
	}
	return Post{
		ID:                   d.ID,
		UID:                  d.UID,
		FirstPublicationDate: published,
		Title:                string(data.Title),
		Subtitle:             string(data.Subtitle),
		Author:               string(data.Author),
		Banner:               data.Banner,
		Content:              data.Content,
	}, nil
}

// TimestampLayout is the layout the API uses for publication dates.
const TimestampLayout = "2006-01-02T15:04:05-0700"

func parseTimestamp(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{TimestampLayout, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid timestamp %q", s)
}

// textField accepts either a plain string or a rich text field and keeps
// only its text.
type textField string

func (f *textField) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = textField(s)
		return nil
	}
	var blocks []richtext.Block
	if err := json.Unmarshal(b, &blocks); err != nil {
		return fmt.Errorf("text field: %w", err)
	}
	parts := make([]string, 0, len(blocks))
	for _, blk := range blocks {
		parts = append(parts, blk.Text)
	}
	*f = textField(strings.Join(parts, " "))
	return nil
}
