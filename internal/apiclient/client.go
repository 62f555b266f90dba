// Package apiclient is the authenticated HTTP client for the back-office API.
//
// Every call runs through an explicit middleware chain, outermost first:
//
//	request-id → instrument → refresh → rate-limit → authenticate → content-type → [extra] → transport
//
// The refresh middleware turns a 401 into at most one token refresh and one
// retry of the same logical request.
package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/backoffice/internal/rate"
	"github.com/Checker-Finance/backoffice/internal/session"
)

const (
	DefaultBaseURL     = "http://localhost:8000/api/v1"
	DefaultRefreshPath = "/auth/refresh"
	DefaultLoginPath   = "/login"
	DefaultTimeout     = 30 * time.Second
)

// Config holds the client settings.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RefreshPath string
	LoginPath   string
}

// Option customizes a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRedirect replaces the login redirect side effect.
func WithRedirect(fn RedirectFunc) Option {
	return func(c *Client) { c.redirect = fn }
}

// WithMiddleware appends middlewares between content-type and the transport.
func WithMiddleware(mws ...Middleware) Option {
	return func(c *Client) { c.extra = append(c.extra, mws...) }
}

// WithRateLimiter throttles outbound calls using the limiter keyed by the API host.
func WithRateLimiter(mgr *rate.Manager) Option {
	return func(c *Client) { c.limiter = mgr }
}

// Client is safe for concurrent use.
type Client struct {
	baseURL  string
	http     *http.Client
	logger   *zap.Logger
	store    session.Store
	redirect RedirectFunc
	limiter  *rate.Manager
	extra    []Middleware

	mu       sync.RWMutex
	defaults http.Header

	handler Handler
}

// New builds a client over store. The store is the only place credentials live.
func New(cfg Config, store session.Store, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, errors.New("apiclient: session store is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = DefaultRefreshPath
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}

	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   zap.NewNop(),
		store:    store,
		defaults: make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.redirect == nil {
		c.redirect = LogRedirect(c.logger, cfg.LoginPath)
	}

	r := &refresher{client: c, path: cfg.RefreshPath}
	mws := []Middleware{RequestID(), Instrument(c.logger), r.middleware}
	if c.limiter != nil {
		mws = append(mws, RateLimit(c.limiter, c.limiterKey()))
	}
	mws = append(mws, Authenticate(store, c.logger), ContentType())
	mws = append(mws, c.extra...)
	c.handler = Chain(c.transport, mws...)

	return c, nil
}

func (c *Client) limiterKey() string {
	if u, err := url.Parse(c.baseURL); err == nil && u.Host != "" {
		return u.Host
	}
	return c.baseURL
}

// Store returns the session store the client reads credentials from.
func (c *Client) Store() session.Store { return c.store }

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() string { return c.baseURL }

// SetDefaultAuthorization sets the Authorization sent with every request unless
// a middleware overrides it.
func (c *Client) SetDefaultAuthorization(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaults.Set(HeaderAuthorization, BearerToken(token))
}

// ClearDefaultAuthorization removes the default Authorization header.
func (c *Client) ClearDefaultAuthorization() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaults.Del(HeaderAuthorization)
}

// DefaultHeader returns a copy of the default headers.
func (c *Client) DefaultHeader() http.Header {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaults.Clone()
}

// Do runs req through the middleware chain.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	return c.handler(ctx, req)
}

// Send runs req and decodes the body into out (nil to discard).
func (c *Client) Send(ctx context.Context, req *Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Send(ctx, NewRequest(http.MethodGet, path, nil).WithQuery(query), out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Send(ctx, NewRequest(http.MethodPost, path, body), out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Send(ctx, NewRequest(http.MethodPut, path, body), out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Send(ctx, NewRequest(http.MethodPatch, path, body), out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Send(ctx, NewRequest(http.MethodDelete, path, nil), nil)
}
