// Package contenttest provides an in-memory content API server for tests.
package contenttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eringen/pubfront/content"
	"github.com/eringen/pubfront/richtext"
)

// MasterRef is the ref advertised by the server.
const MasterRef = "master-ref-1"

var rePredicate = regexp.MustCompile(`\[at\(([^,]+),"([^"]*)"\)\]`)

// Doc is a document held by the server.
type Doc struct {
	ID        string
	UID       string
	Type      string
	Published time.Time
	Data      map[string]any
}

// Post builds a "posts" document holding blocks.
func Post(id, uid string, published time.Time, title string, blocks ...content.Block) Doc {
	return Doc{
		ID:        id,
		UID:       uid,
		Type:      "posts",
		Published: published,
		Data: map[string]any{
			"title":    title,
			"subtitle": title + " subtitle",
			"author":   "Ada",
			"banner":   map[string]any{"url": "https://images.example.com/" + uid + ".png"},
			"content":  blocks,
		},
	}
}

// Block builds a content block whose body is a list of paragraphs.
func Block(heading string, paragraphs ...string) content.Block {
	body := make([]richtext.Block, 0, len(paragraphs))
	for _, p := range paragraphs {
		body = append(body, richtext.Block{Type: "paragraph", Text: p})
	}
	return content.Block{Heading: heading, Body: body}
}

// Server is an httptest server speaking the content API.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	docs         []Doc
	failSearches int

	searches atomic.Int64
	refs     atomic.Int64
}

// NewServer starts a server holding docs. It is closed when the test ends.
func NewServer(t testing.TB, docs ...Doc) *Server {
	t.Helper()
	s := &Server{docs: docs}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2", s.handleRoot)
	mux.HandleFunc("/api/v2/documents/search", s.handleSearch)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Endpoint returns the API root URL.
func (s *Server) Endpoint() string {
	return s.URL + "/api/v2"
}

// Searches returns how many search requests were served.
func (s *Server) Searches() int {
	return int(s.searches.Load())
}

// RefLookups returns how many times the API root was read.
func (s *Server) RefLookups() int {
	return int(s.refs.Load())
}

// Add stores another document.
func (s *Server) Add(d Doc) {
	s.mu.Lock()
	s.docs = append(s.docs, d)
	s.mu.Unlock()
}

// FailNext makes the next n search requests fail with status 500.
func (s *Server) FailNext(n int) {
	s.mu.Lock()
	s.failSearches += n
	s.mu.Unlock()
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.refs.Add(1)
	writeJSON(w, map[string]any{
		"refs": []map[string]any{
			{"id": "master", "ref": MasterRef, "label": "Master", "isMasterRef": true},
		},
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.searches.Add(1)
	s.mu.Lock()
	if s.failSearches > 0 {
		s.failSearches--
		s.mu.Unlock()
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
		return
	}
	docs := append([]Doc(nil), s.docs...)
	s.mu.Unlock()

	q := r.URL.Query()
	if q.Get("ref") != MasterRef {
		http.Error(w, `{"message":"invalid ref"}`, http.StatusBadRequest)
		return
	}

	docs = filter(docs, q.Get("q"))
	orderBy(docs, q.Get("orderings"))
	if after := q.Get("after"); after != "" {
		for i, d := range docs {
			if d.ID == after {
				docs = docs[i+1:]
				break
			}
		}
	}

	pageSize := atoiDefault(q.Get("pageSize"), 20)
	page := atoiDefault(q.Get("page"), 1)
	total := len(docs)
	totalPages := (total + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	fetch := q.Get("fetch")
	results := make([]map[string]any, 0, end-start)
	for _, d := range docs[start:end] {
		results = append(results, encodeDoc(d, fetch))
	}

	var next any
	if page < totalPages {
		u := url.URL{Scheme: "http", Host: r.Host, Path: r.URL.Path}
		nq := r.URL.Query()
		nq.Set("page", strconv.Itoa(page+1))
		nq.Del("access_token")
		u.RawQuery = nq.Encode()
		next = u.String()
	}

	writeJSON(w, map[string]any{
		"page":               page,
		"results_per_page":   pageSize,
		"results_size":       len(results),
		"total_results_size": total,
		"total_pages":        totalPages,
		"next_page":          next,
		"prev_page":          nil,
		"results":            results,
	})
}

func filter(docs []Doc, query string) []Doc {
	var out []Doc
	preds := rePredicate.FindAllStringSubmatch(query, -1)
	for _, d := range docs {
		ok := true
		for _, p := range preds {
			path, value := p[1], p[2]
			switch {
			case path == "document.type":
				ok = ok && d.Type == value
			case strings.HasPrefix(path, "my.") && strings.HasSuffix(path, ".uid"):
				docType := strings.TrimSuffix(strings.TrimPrefix(path, "my."), ".uid")
				ok = ok && d.Type == docType && d.UID == value
			default:
				ok = false
			}
		}
		if ok {
			out = append(out, d)
		}
	}
	return out
}

func orderBy(docs []Doc, orderings string) {
	o := strings.Trim(orderings, "[]")
	if !strings.HasPrefix(o, "document.first_publication_date") {
		return
	}
	desc := strings.HasSuffix(o, " desc")
	sort.SliceStable(docs, func(i, j int) bool {
		if desc {
			return docs[i].Published.After(docs[j].Published)
		}
		return docs[i].Published.Before(docs[j].Published)
	})
}

func encodeDoc(d Doc, fetch string) map[string]any {
	data := d.Data
	if fetch != "" {
		data = map[string]any{}
		for _, f := range strings.Split(fetch, ",") {
			field := strings.TrimPrefix(f, d.Type+".")
			if v, ok := d.Data[field]; ok {
				data[field] = v
			}
		}
	}
	var published any
	if !d.Published.IsZero() {
		published = d.Published.UTC().Format(content.TimestampLayout)
	}
	return map[string]any{
		"id":                     d.ID,
		"uid":                    d.UID,
		"type":                   d.Type,
		"first_publication_date": published,
		"last_publication_date":  published,
		"data":                   data,
	}
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf(`{"message":%q}`, err.Error()), http.StatusInternalServerError)
	}
}
