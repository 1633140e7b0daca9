// Package pipeline sends API requests through credential attachment,
// failure classification, refresh-and-retry, transient retry and the
// response cache.
package pipeline

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-api-client/apierror"
	"github.com/jrsteele09/go-api-client/cache"
	"github.com/jrsteele09/go-api-client/internal/config"
	"github.com/jrsteele09/go-api-client/internal/errors"
	"github.com/jrsteele09/go-api-client/observe"
	"github.com/jrsteele09/go-api-client/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const defaultCacheTTL = 5 * time.Minute

// Authenticator is the session the client borrows credentials from.
// *auth.Manager implements it.
type Authenticator interface {
	AccessCredential() string
	Validate(credential string) token.Result
	ShouldRefresh(credential string, lead time.Duration) bool
	RefreshLead() time.Duration
	Refresh(ctx context.Context) (string, error)
	Reject(credential string)
	UpdateActivity()
}

// Client is safe for concurrent use.
type Client struct {
	baseURL        *url.URL
	transport      Transport
	auth           Authenticator
	cache          *cache.Store[*Response]
	retry          RetryPolicy
	authExempt     PathSet
	refreshExempt  PathSet
	defaultTTL     time.Duration
	requestTimeout time.Duration
	observer       observe.Observer
	logger         zerolog.Logger
	middleware     []Middleware
	limiter        *rate.Limiter
}

type Option func(*Client)

func WithAuthenticator(a Authenticator) Option {
	return func(c *Client) {
		c.auth = a
	}
}

// WithCache enables caching of successful reads in store.
func WithCache(store *cache.Store[*Response]) Option {
	return func(c *Client) {
		c.cache = store
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

// WithAuthExempt lists paths sent without a credential, e.g. login.
func WithAuthExempt(patterns ...string) Option {
	return func(c *Client) {
		c.authExempt = NewPathSet(patterns...)
	}
}

// WithRefreshExempt lists paths whose 401 never triggers a refresh, e.g. the
// refresh endpoint itself.
func WithRefreshExempt(patterns ...string) Option {
	return func(c *Client) {
		c.refreshExempt = NewPathSet(patterns...)
	}
}

func WithDefaultCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.defaultTTL = ttl
	}
}

// WithRequestTimeout bounds each attempt, not the whole logical request.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.requestTimeout = d
	}
}

func WithObserver(o observe.Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMiddleware adds transport middleware inside the built-in layers.
func WithMiddleware(mw ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithAPIConfig applies base timeouts, exemptions and rate limits from configuration.
func WithAPIConfig(cfg config.APIConfig) Option {
	return func(c *Client) {
		c.requestTimeout = cfg.GetRequestTimeout()
		c.authExempt = NewPathSet(cfg.GetAuthExemptPaths()...)
		c.refreshExempt = NewPathSet(cfg.GetRefreshExemptPaths()...)
		if limit, burst := cfg.GetRateLimit(); limit > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(limit), burst)
		}
	}
}

// New creates a client for baseURL. A nil transport uses http.DefaultClient.
func New(baseURL string, transport Transport, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "invalid base url %q", baseURL)
	}
	if transport == nil {
		transport = http.DefaultClient
	}

	c := &Client{
		baseURL:    u,
		retry:      DefaultRetryPolicy(),
		defaultTTL: defaultCacheTTL,
		observer:   observe.Nop(),
		logger:     log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	mw := []Middleware{RecoverMiddleware, LoggingMiddleware(c.logger), RequestIDMiddleware}
	if c.limiter != nil {
		mw = append(mw, RateLimitMiddleware(c.limiter))
	}
	c.transport = Chain(transport, append(mw, c.middleware...)...)
	return c, nil
}

// Cache returns the response cache, or nil when caching is disabled.
func (c *Client) Cache() *cache.Store[*Response] {
	return c.cache
}

// Do executes req. Failures are returned as *apierror.Error.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || req.Method == "" || req.Path == "" {
		return nil, apierror.New(apierror.TypeValidation, "request needs a method and a path", errors.ErrInvalidRequest)
	}
	method := strings.ToUpper(req.Method)
	target, path, err := c.resolve(req)
	if err != nil {
		return nil, apierror.New(apierror.TypeValidation, "invalid request path", err)
	}

	authExempt := c.authExempt.Match(path)
	refreshExempt := c.refreshExempt.Match(path)
	cacheable := c.cache != nil && isRead(method) && !req.SkipCache
	key := cache.Key(method, target, req.Body)

	if cacheable {
		if hit, ok := c.cache.Get(key); ok {
			c.observer.Observe(observe.Event{Kind: observe.KindCacheHit, Method: method, Path: path})
			res := hit.clone()
			res.Cached = true
			if c.auth != nil {
				c.auth.UpdateActivity()
			}
			return res, nil
		}
		c.observer.Observe(observe.Event{Kind: observe.KindCacheMiss, Method: method, Path: path})
	}

	var credential string
	if !authExempt && c.auth != nil {
		credential = c.credential(ctx, refreshExempt)
	}

	requestID := uuid.NewString()
	state := retryState{}
	var res *Response
	for {
		state.attempt++
		var apiErr *apierror.Error
		var wait time.Duration
		res, wait, apiErr = c.dispatch(ctx, method, target, path, req, credential, requestID, state.attempt)
		if apiErr == nil {
			break
		}

		switch {
		case apiErr.Type == apierror.TypeAuth && c.auth != nil && !authExempt && !refreshExempt && !state.retriedAfterRefresh:
			state.retriedAfterRefresh = true
			if credential != "" {
				c.auth.Reject(credential)
			}
			// another request may already have rotated the credential
			if current := c.auth.AccessCredential(); current != "" && current != credential {
				credential = current
				c.observer.Observe(observe.Event{Kind: observe.KindRetry, Method: method, Path: path, Status: apiErr.Status, Attempt: state.attempt, Reason: string(apierror.TypeAuth)})
				continue
			}
			fresh, rerr := c.auth.Refresh(ctx)
			if rerr != nil {
				if apierror.TypeOf(rerr) == apierror.TypeRefresh {
					return nil, rerr
				}
				return nil, apiErr
			}
			credential = fresh
			c.observer.Observe(observe.Event{Kind: observe.KindRetry, Method: method, Path: path, Status: apiErr.Status, Attempt: state.attempt, Reason: string(apierror.TypeAuth)})

		case ctx.Err() == nil && state.transientRetries < c.retry.MaxRetries && c.retry.retryable(apiErr):
			delay := c.retry.Backoff(state.transientRetries)
			if wait > delay {
				delay = wait
				if c.retry.MaxDelay > 0 && delay > c.retry.MaxDelay {
					delay = c.retry.MaxDelay
				}
			}
			state.transientRetries++
			c.observer.Observe(observe.Event{Kind: observe.KindRetry, Method: method, Path: path, Status: apiErr.Status, Attempt: state.attempt, Reason: string(apiErr.Type), Duration: delay})
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, apiErr
			}

		default:
			if ctx.Err() == nil && c.retry.MaxRetries > 0 && c.retry.retryable(apiErr) {
				apiErr.Err = errors.Mark(errors.ErrRetryExhausted, apiErr.Err)
			}
			return nil, apiErr
		}
	}

	if cacheable {
		ttl := req.CacheTTL
		if ttl <= 0 {
			ttl = c.defaultTTL
		}
		c.cache.Set(key, res.clone(), ttl, req.CacheTags...)
		c.observer.Observe(observe.Event{Kind: observe.KindCacheStore, Method: method, Path: path})
	}
	if !isRead(method) && c.cache != nil && len(req.InvalidateTags) > 0 {
		n := c.cache.InvalidateByTags(req.InvalidateTags...)
		c.observer.Observe(observe.Event{Kind: observe.KindCacheInvalidate, Method: method, Path: path, Count: n})
	}
	if c.auth != nil {
		c.auth.UpdateActivity()
	}
	return res, nil
}

// credential returns what to attach: never a credential known to be bad.
// An invalid or expiring credential is refreshed before dispatch rather than
// waiting for the 401.
func (c *Client) credential(ctx context.Context, refreshExempt bool) string {
	current := c.auth.AccessCredential()
	if current == "" {
		return ""
	}
	res := c.auth.Validate(current)
	if res.Valid && !c.auth.ShouldRefresh(current, c.auth.RefreshLead()) {
		return current
	}
	if refreshExempt {
		if res.Valid {
			return current
		}
		return ""
	}

	fresh, err := c.auth.Refresh(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Msg("pipeline: pre-emptive refresh failed")
		return ""
	}
	return fresh
}

func (c *Client) resolve(req *Request) (target, path string, err error) {
	ref, err := url.Parse(req.Path)
	if err != nil {
		return "", "", err
	}
	var u *url.URL
	if ref.IsAbs() {
		u = ref
	} else {
		u = c.baseURL.JoinPath(ref.Path)
		u.RawQuery = ref.RawQuery
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), ref.Path, nil
}

// dispatch performs one attempt. wait is a server requested delay.
func (c *Client) dispatch(ctx context.Context, method, target, path string, req *Request, credential, requestID string, attempt int) (*Response, time.Duration, *apierror.Error) {
	attemptCtx := ctx
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, method, target, body)
	if err != nil {
		return nil, 0, apierror.New(apierror.TypeValidation, "build request", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set(RequestIDHeader, requestID)
	if credential != "" {
		httpReq.Header.Set("Authorization", "Bearer "+credential)
	}

	start := time.Now()
	httpRes, err := c.transport.Do(httpReq)
	if err != nil {
		apiErr := apierror.FromTransport(method, path, err)
		c.observer.Observe(observe.Event{Kind: observe.KindRequest, Method: method, Path: path, Attempt: attempt, Duration: time.Since(start), Err: apiErr})
		return nil, 0, apiErr
	}
	defer httpRes.Body.Close()

	data, err := io.ReadAll(httpRes.Body)
	if err != nil {
		apiErr := apierror.FromTransport(method, path, err)
		c.observer.Observe(observe.Event{Kind: observe.KindRequest, Method: method, Path: path, Status: httpRes.StatusCode, Attempt: attempt, Duration: time.Since(start), Err: apiErr})
		return nil, 0, apiErr
	}

	ev := observe.Event{Kind: observe.KindRequest, Method: method, Path: path, Status: httpRes.StatusCode, Attempt: attempt, Duration: time.Since(start)}
	if httpRes.StatusCode < 200 || httpRes.StatusCode > 299 {
		apiErr := apierror.FromStatus(method, path, httpRes.StatusCode, data)
		ev.Err = apiErr
		c.observer.Observe(ev)
		return nil, retryAfter(httpRes.Header), apiErr
	}
	c.observer.Observe(ev)
	return &Response{Status: httpRes.StatusCode, Header: httpRes.Header.Clone(), Body: data}, 0, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
