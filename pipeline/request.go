package pipeline

import (
	"net/http"
	"net/url"
	"slices"
	"time"
)

// Request is one logical API call. Path is relative to the client's base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte

	// CacheTTL overrides the client default for a cached read
	CacheTTL  time.Duration
	CacheTags []string
	SkipCache bool

	// InvalidateTags are dropped from the cache when a write succeeds
	InvalidateTags []string
}

// Response is a completed 2xx response with its body read.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Cached bool
}

// Size is the cache's memory estimate for the response.
func (r *Response) Size() int {
	n := len(r.Body)
	for k, vs := range r.Header {
		n += len(k)
		for _, v := range vs {
			n += len(v)
		}
	}
	return n
}

func (r *Response) clone() *Response {
	return &Response{
		Status: r.Status,
		Header: r.Header.Clone(),
		Body:   slices.Clone(r.Body),
		Cached: r.Cached,
	}
}

type RequestOption func(*Request)

func WithQuery(q url.Values) RequestOption {
	return func(r *Request) {
		r.Query = q
	}
}

func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Header == nil {
			r.Header = make(http.Header)
		}
		r.Header.Set(key, value)
	}
}

// WithCacheTags tags a cached read so writes can invalidate it.
func WithCacheTags(tags ...string) RequestOption {
	return func(r *Request) {
		r.CacheTags = append(r.CacheTags, tags...)
	}
}

func WithCacheTTL(ttl time.Duration) RequestOption {
	return func(r *Request) {
		r.CacheTTL = ttl
	}
}

func WithoutCache() RequestOption {
	return func(r *Request) {
		r.SkipCache = true
	}
}

// WithInvalidateTags drops cached reads with these tags once a write succeeds.
func WithInvalidateTags(tags ...string) RequestOption {
	return func(r *Request) {
		r.InvalidateTags = append(r.InvalidateTags, tags...)
	}
}

func isRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}
