// Package kinopub is the typed endpoint client: one method per documented
// endpoint, built on the gateway and the response normalizer.
package kinopub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/waabox/kinopub/internal/domain"
	"github.com/waabox/kinopub/internal/gateway"
	"github.com/waabox/kinopub/internal/normalize"
)

// Doer sends a request. *gateway.Gateway implements it.
type Doer interface {
	Do(ctx context.Context, req gateway.Request) (*gateway.RawResponse, error)
}

// Page is one page of a list endpoint.
type Page[T any] struct {
	Items      []T
	Pagination *normalize.Pagination
}

// Client exposes the service's resource groups.
type Client struct {
	gw    Doer
	cache *cache.Cache
	log   logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithReferenceCache caches reference lists (types, genres, countries,
// subtitles, references) for ttl. A zero ttl disables caching.
func WithReferenceCache(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl <= 0 {
			c.cache = nil
			return
		}
		// No janitor: expired entries are dropped on access.
		c.cache = cache.New(ttl, 0)
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(c *Client) { c.log = l } }

// New creates a Client on top of gw.
func New(gw Doer, opts ...Option) *Client {
	l := logrus.New()
	l.SetOutput(io.Discard)
	c := &Client{gw: gw, log: l}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// itemNumeric lists item fields the service sometimes sends as strings.
var itemNumeric = []string{
	"rating", "rating_votes", "rating_percentage",
	"imdb", "imdb_rating", "imdb_votes", "kinopoisk", "kinopoisk_rating", "kinopoisk_votes",
	"views", "comments", "year",
}

func call[T any](ctx context.Context, c *Client, req gateway.Request, s normalize.Schema) (normalize.Envelope[T], error) {
	resp, err := c.gw.Do(ctx, req)
	if err != nil {
		return normalize.Envelope[T]{}, err
	}
	return normalize.Decode[T](resp.StatusCode, resp.Body, s)
}

func page[T any](ctx context.Context, c *Client, req gateway.Request, s normalize.Schema) (Page[T], error) {
	env, err := call[[]T](ctx, c, req, s)
	if err != nil {
		return Page[T]{}, err
	}
	return Page[T]{Items: env.Data, Pagination: env.Pagination}, nil
}

// cached serves a reference list from the cache, filling it on a miss.
// Callers always get their own copy of the list.
func cached[T any](ctx context.Context, c *Client, key string, req gateway.Request, s normalize.Schema) ([]T, error) {
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			return slices.Clone(v.([]T)), nil
		}
	}
	env, err := call[[]T](ctx, c, req, s)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.SetDefault(key, slices.Clone(env.Data))
		c.log.WithField("key", key).Debug("cached reference list")
	}
	return env.Data, nil
}

// exec sends a mutation whose answer is {status} or null.
func (c *Client) exec(ctx context.Context, req gateway.Request) error {
	_, err := call[struct{}](ctx, c, req, normalize.Schema{NullOK: true})
	return err
}

func get(path string, query url.Values) gateway.Request {
	return gateway.Request{Method: http.MethodGet, Path: path, Query: query}
}

func mutatingGet(path string, query url.Values) gateway.Request {
	return gateway.Request{Method: http.MethodGet, Path: path, Query: query, Mutating: true}
}

func postForm(path string, form url.Values) gateway.Request {
	return gateway.Request{Method: http.MethodPost, Path: path, Form: form}
}

func requireID(op, name string, id int) error {
	if id <= 0 {
		return domain.InvalidArgument(op, "%s must be positive, got %d", name, id)
	}
	return nil
}

func itoa(n int) string { return strconv.Itoa(n) }

// setPositive adds key=n to v when n is positive.
func setPositive(v url.Values, key string, n int) {
	if n > 0 {
		v.Set(key, itoa(n))
	}
}

func setNonEmpty(v url.Values, key, s string) {
	if s != "" {
		v.Set(key, s)
	}
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func pathf(format string, args ...any) string { return fmt.Sprintf(format, args...) }
