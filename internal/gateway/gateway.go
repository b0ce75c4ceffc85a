// Package gateway sends authenticated requests to the service with a uniform
// retry policy and error mapping.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/waabox/kinopub/internal/auth"
	"github.com/waabox/kinopub/internal/clock"
	"github.com/waabox/kinopub/internal/domain"
	"github.com/waabox/kinopub/internal/normalize"
)

// LegacyTokenParam is the query parameter the service also accepts in place of
// the Authorization header (?access_token=...). It is kept for compatibility
// testing only and is never sent by the gateway.
const LegacyTokenParam = "access_token"

// API selects the base URL a request is sent to.
type API int

const (
	V1 API = iota
	API2
)

func (a API) String() string {
	if a == API2 {
		return "api2"
	}
	return "v1"
}

// Request describes a single call.
type Request struct {
	API    API
	Method string
	Path   string
	Query  url.Values
	// Form is sent as an application/x-www-form-urlencoded body.
	Form url.Values
	// Body is sent verbatim with ContentType when Form is nil.
	Body        []byte
	ContentType string
	// Mutating marks a GET with side effects; it is never retried.
	Mutating bool
}

func (r Request) idempotent() bool {
	return (r.Method == "" || r.Method == http.MethodGet) && !r.Mutating
}

// RawResponse is a successful response whose body has not been decoded yet.
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Tokens is what the gateway needs from the token manager.
type Tokens interface {
	ValidToken(ctx context.Context) (auth.TokenState, error)
	RefreshAfterUnauthorized(ctx context.Context, stale string) (auth.TokenState, error)
	Invalidate()
}

// Config holds the endpoint and retry settings.
type Config struct {
	BaseURL     string
	API2BaseURL string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// RateLimit is requests per second; 0 disables client-side pacing.
	RateLimit float64
}

// Gateway performs requests on behalf of the endpoint client.
type Gateway struct {
	tokens  Tokens
	cfg     Config
	client  *http.Client
	clock   clock.Clock
	log     logrus.FieldLogger
	limiter *rate.Limiter
	backoff *backoff.Backoff
	metrics *Metrics
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the default client (15 second timeout).
func WithHTTPClient(c *http.Client) Option { return func(g *Gateway) { g.client = c } }

// WithClock injects the clock used for backoff sleeps.
func WithClock(c clock.Clock) Option { return func(g *Gateway) { g.clock = c } }

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(g *Gateway) { g.log = l } }

// WithMetrics records request metrics.
func WithMetrics(m *Metrics) Option { return func(g *Gateway) { g.metrics = m } }

// New creates a Gateway.
func New(tokens Tokens, cfg Config, opts ...Option) *Gateway {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = 10 * cfg.BaseDelay
	}
	g := &Gateway{
		tokens: tokens,
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		clock:  clock.Real{},
		log:    discardLogger(),
		backoff: &backoff.Backoff{
			Min:    cfg.BaseDelay,
			Max:    cfg.MaxDelay,
			Factor: 2,
			Jitter: true,
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	if cfg.RateLimit > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return g
}

// Do sends req and returns the raw response of a successful call. Failed calls
// come back as *domain.APIError or *domain.ClientError. A 401 triggers one token
// refresh and one replay; a second 401 invalidates the token.
func (g *Gateway) Do(ctx context.Context, req Request) (*RawResponse, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	log := g.log.WithFields(logrus.Fields{
		"request_id": uuid.NewString(),
		"api":        req.API.String(),
		"method":     req.Method,
		"path":       req.Path,
	})

	tok, err := g.tokens.ValidToken(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := g.attempt(ctx, req, tok, log)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && refreshable(resp) {
		log.Info("access token rejected, refreshing")
		tok, err = g.tokens.RefreshAfterUnauthorized(ctx, tok.AccessToken)
		if err != nil {
			if errors.Is(err, domain.ErrRefreshFailed) {
				g.tokens.Invalidate()
			}
			return nil, fmt.Errorf("refreshing after 401: %w", err)
		}
		resp, err = g.attempt(ctx, req, tok, log)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			log.Warn("token rejected after refresh")
			g.tokens.Invalidate()
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, normalize.ParseError(resp.StatusCode, resp.Header.Get("Content-Type"), resp.Body)
	}
	if len(bytes.TrimSpace(resp.Body)) > 0 && !normalize.LooksLikeJSON(resp.Header.Get("Content-Type"), resp.Body) {
		return nil, &domain.APIError{Kind: domain.ErrUnexpectedContentType, StatusCode: resp.StatusCode,
			Message: "content type " + resp.Header.Get("Content-Type")}
	}
	return resp, nil
}

// attempt sends req, retrying idempotent requests on network failures and 5xx.
func (g *Gateway) attempt(ctx context.Context, req Request, tok auth.TokenState, log logrus.FieldLogger) (*RawResponse, error) {
	attempts := 1
	if req.idempotent() {
		attempts = g.cfg.MaxAttempts
	}
	var lastErr error
	for n := 1; n <= attempts; n++ {
		if n > 1 {
			delay := g.backoff.ForAttempt(float64(n - 2))
			g.metrics.onRetry(req.API)
			log.WithFields(logrus.Fields{"attempt": n, "delay": delay}).WithError(lastErr).Debug("retrying request")
			if err := g.clock.Sleep(ctx, delay); err != nil {
				return nil, domain.ContextError(req.Path, err)
			}
		}
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				if ctxErr := domain.ContextError(req.Path, ctx.Err()); ctxErr != nil {
					return nil, ctxErr
				}
				return nil, &domain.ClientError{Kind: domain.ErrTimeout, Op: req.Path, Err: err}
			}
		}

		resp, err := g.send(ctx, req, tok)
		if err != nil {
			if ctxErr := domain.ContextError(req.Path, ctx.Err()); ctxErr != nil {
				return nil, ctxErr
			}
			log.WithField("attempt", n).WithError(err).Warn("request failed")
			lastErr = &domain.ClientError{Kind: domain.ErrNetworkFailure, Op: req.Method + " " + req.Path, Err: err}
			continue
		}
		g.metrics.onResponse(req.API, req.Method, resp.StatusCode)
		log.WithFields(logrus.Fields{"attempt": n, "status": resp.StatusCode}).Debug("response received")

		if resp.StatusCode >= http.StatusInternalServerError && n < attempts {
			lastErr = normalize.ParseError(resp.StatusCode, resp.Header.Get("Content-Type"), resp.Body)
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

func (g *Gateway) send(ctx context.Context, req Request, tok auth.TokenState) (*RawResponse, error) {
	endpoint, err := g.url(req)
	if err != nil {
		return nil, err
	}

	var body io.Reader = http.NoBody
	contentType := ""
	switch {
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.Body != nil:
		body = bytes.NewReader(req.Body)
		contentType = req.ContentType
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	tok.OAuth2().SetAuthHeader(httpReq)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &RawResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (g *Gateway) url(req Request) (string, error) {
	base := g.cfg.BaseURL
	if req.API == API2 {
		base = g.cfg.API2BaseURL
	}
	u, err := url.JoinPath(base, req.Path)
	if err != nil {
		return "", &domain.ClientError{Kind: domain.ErrInvalidArgument, Op: req.Path, Err: err}
	}
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	return u, nil
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// refreshable reports whether a 401 response is the service's JSON
// "unauthorized" answer rather than, say, an HTML page from a proxy.
func refreshable(resp *RawResponse) bool {
	apiErr := normalize.ParseError(resp.StatusCode, resp.Header.Get("Content-Type"), resp.Body)
	if errors.Is(apiErr, domain.ErrUnexpectedContentType) {
		return false
	}
	return apiErr.Code == "" || strings.EqualFold(apiErr.Code, "unauthorized") || strings.EqualFold(apiErr.Code, "invalid_token")
}
