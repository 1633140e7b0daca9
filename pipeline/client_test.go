package pipeline_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-api-client/apierror"
	"github.com/jrsteele09/go-api-client/auth"
	"github.com/jrsteele09/go-api-client/cache"
	"github.com/jrsteele09/go-api-client/internal/errors"
	"github.com/jrsteele09/go-api-client/observe"
	"github.com/jrsteele09/go-api-client/pipeline"
	"github.com/jrsteele09/go-api-client/sessions"
	"github.com/jrsteele09/go-api-client/token"
	refreshrepofake "github.com/jrsteele09/go-api-client/token/refresh/repofake"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// session is a logged in manager backed by the fake token endpoint
type session struct {
	issuer   *refreshrepofake.FakeIssuer
	manager  *auth.Manager
	recorder *observe.Recorder
}

func newSession(t *testing.T, opts ...auth.Option) *session {
	t.Helper()
	s := &session{
		issuer:   refreshrepofake.NewFakeIssuer(token.NewHMACSigner("secret"), 5*time.Minute),
		recorder: observe.NewRecorder(),
	}
	base := []auth.Option{
		auth.WithCheckInterval(0),
		auth.WithObserver(s.recorder),
		auth.WithLogger(zerolog.Nop()),
	}
	s.manager = auth.New(token.NewValidator(), s.issuer, nil, append(base, opts...)...)
	t.Cleanup(s.manager.Close)

	resp, err := s.issuer.Issue("user-1")
	require.NoError(t, err)
	require.NoError(t, s.manager.Login(context.Background(), auth.CredentialsFrom(resp, time.Now()), sessions.Subject{}))
	return s
}

func fastRetry(statuses ...int) pipeline.RetryPolicy {
	return pipeline.RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		RetryableStatuses: statuses,
	}
}

func newClient(t *testing.T, baseURL string, opts ...pipeline.Option) *pipeline.Client {
	t.Helper()
	base := []pipeline.Option{
		pipeline.WithLogger(zerolog.Nop()),
		pipeline.WithRetryPolicy(fastRetry()),
	}
	c, err := pipeline.New(baseURL, nil, append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func newCache() *cache.Store[*pipeline.Response] {
	return cache.New[*pipeline.Response](cache.Config{MaxEntries: 100})
}

// bearerLog records the credential presented on every request
type bearerLog struct {
	mu    sync.Mutex
	seen  []string
	first string
}

func (b *bearerLog) record(r *http.Request) string {
	cred := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.first == "" {
		b.first = cred
	}
	b.seen = append(b.seen, cred)
	return cred
}

func (b *bearerLog) isFirst(cred string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cred == b.first
}

func (b *bearerLog) Seen() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.seen...)
}

func TestNew_InvalidBaseURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "/relative"} {
		_, err := pipeline.New(raw, nil)
		require.ErrorIs(t, err, errors.ErrInvalidRequest, raw)
	}
}

func TestClient_Validation(t *testing.T) {
	c := newClient(t, "http://api.test")

	_, err := c.Do(context.Background(), &pipeline.Request{Path: "/x"})
	require.Equal(t, apierror.TypeValidation, apierror.TypeOf(err))

	_, err = c.Do(context.Background(), nil)
	require.Equal(t, apierror.TypeValidation, apierror.TypeOf(err))
}

func TestClient_AttachesCredential(t *testing.T) {
	s := newSession(t)
	var bearers bearerLog
	var requestID atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearers.record(r)
		requestID.Store(r.Header.Get(pipeline.RequestIDHeader))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL,
		pipeline.WithAuthenticator(s.manager),
		pipeline.WithAuthExempt("/auth/*"),
	)

	_, err := c.Do(context.Background(), &pipeline.Request{Method: http.MethodGet, Path: "/profile"})
	require.NoError(t, err)
	_, err = c.Do(context.Background(), &pipeline.Request{Method: http.MethodPost, Path: "/auth/login"})
	require.NoError(t, err)

	require.Equal(t, []string{s.manager.AccessCredential(), ""}, bearers.Seen())
	require.NotEmpty(t, requestID.Load())
}

func TestClient_ServerErrorClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)
	_, err := c.Do(context.Background(), &pipeline.Request{Method: http.MethodGet, Path: "/missing"})

	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apierror.TypeServer, apiErr.Type)
	require.Equal(t, http.StatusNotFound, apiErr.Status)
	require.Equal(t, "/missing", apiErr.Path)
	require.False(t, apiErr.IsAuthError())
}

func TestClient_CacheShortCircuit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, `{"n":1}`)
	}))
	defer srv.Close()

	rec := observe.NewRecorder()
	store := newCache()
	c := newClient(t, srv.URL, pipeline.WithCache(store), pipeline.WithObserver(rec))
	ctx := context.Background()

	first, err := c.Do(ctx, &pipeline.Request{Method: http.MethodGet, Path: "/items", Query: map[string][]string{"b": {"2"}, "a": {"1"}}})
	require.NoError(t, err)
	require.False(t, first.Cached)

	second, err := c.Do(ctx, &pipeline.Request{Method: http.MethodGet, Path: "/items?a=1&b=2"})
	require.NoError(t, err)
	require.True(t, second.Cached, "same canonical url is served from cache")
	require.Equal(t, first.Body, second.Body)
	require.EqualValues(t, 1, hits.Load())
	require.Equal(t, 1, rec.Count(observe.KindCacheHit))

	t.Run("cached value is not shared with callers", func(t *testing.T) {
		second.Body[0] = 'X'
		third, err := c.Do(ctx, &pipeline.Request{Method: http.MethodGet, Path: "/items?a=1&b=2"})
		require.NoError(t, err)
		require.Equal(t, `{"n":1}`, string(third.Body))
	})

	t.Run("skip cache goes to the network", func(t *testing.T) {
		_, err := c.Do(ctx, &pipeline.Request{Method: http.MethodGet, Path: "/items?a=1&b=2", SkipCache: true})
		require.NoError(t, err)
		require.EqualValues(t, 2, hits.Load())
	})

	t.Run("writes are never cached", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			_, err := c.Do(ctx, &pipeline.Request{Method: http.MethodPost, Path: "/items"})
			require.NoError(t, err)
		}
		require.EqualValues(t, 4, hits.Load())
	})

	t.Run("failures are never cached", func(t *testing.T) {
		before := store.Len()
		fail := newClient(t, "http://127.0.0.1:1", pipeline.WithCache(store), pipeline.WithRetryPolicy(pipeline.RetryPolicy{}))
		_, err := fail.Do(ctx, &pipeline.Request{Method: http.MethodGet, Path: "/items"})
		require.Equal(t, apierror.TypeNetwork, apierror.TypeOf(err))
		require.Equal(t, before, store.Len())
	})
}

func TestClient_CacheHitCountsAsActivity(t *testing.T) {
	var mu sync.Mutex
	now := time.Now()
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	s := newSession(t, auth.WithNowFunc(clock))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, pipeline.WithAuthenticator(s.manager), pipeline.WithCache(newCache()))
	_, err := c.Do(context.Background(), &pipeline.Request{Method: http.MethodGet, Path: "/items"})
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(time.Minute)
	mu.Unlock()

	res, err := c.Do(context.Background(), &pipeline.Request{Method: http.MethodGet, Path: "/items"})
	require.NoError(t, err)
	require.True(t, res.Cached)
	rec, ok := s.manager.Current()
	require.True(t, ok)
	require.Equal(t, clock(), rec.LastActivity)
}

func TestClient_RefreshAndRetryOnce(t *testing.T) {
	t.Run("401 refreshes then succeeds", func(t *testing.T) {
		s := newSession(t)
		var bearers bearerLog
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cred := bearers.record(r); bearers.isFirst(cred) {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		original := s.manager.AccessCredential()
		c := newClient(t, srv.URL, pipeline.WithAuthenticator(s.manager))
		res, err := c.Do(context.Background(), &pipeline.Request{Method: http.MethodGet, Path: "/profile"})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, res.Status)
		require.Equal(t, 1, s.issuer.Calls())

		seen := bearers.Seen()
		require.Len(t, seen, 2)
		require.Equal(t, original, seen[0])
		require.Equal(t, s.manager.AccessCredential(), seen[1])
		require.NotEqual(t, seen[0], seen[1])
	})

	t.Run("401 after another request refreshed reuses the new credential", func(t *testing.T) {
		s := newSession(t)
		var calls atomic.Int32
		var bearers bearerLog
		transport := pipeline.TransportFunc(func(r *http.Request) (*http.Response, error) {
			bearers.record(r)
			rec := httptest.NewRecorder()
			if calls.Add(1) == 1 {
				// a concurrent request rotates the credential while this one is in flight
				if _, err := s.manager.Refresh(r.Context()); err != nil {
					return nil, err
				}
				rec.WriteHeader(http.StatusUnauthorized)
				return rec.Result(), nil
			}
			rec.WriteHeader(http.StatusOK)
			return rec.Result(), nil
		})
		c, err := pipeline.New("http://api.test", transport, pipeline.WithLogger(zerolog.Nop()), pipeline.WithAuthenticator(s.manager))
		require.NoError(t, err)

		original := s.manager.AccessCredential()
		res, err := c.Do(context.Background(), &pipeline.Request{Method: http.MethodGet, Path: "/profile"})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, res.Status)
		require.Equal(t, 1, s.issuer.Calls(), "no second refresh")

		seen := bearers.Seen()
		require.Len(t, seen, 2)
		require.Equal(t, original, seen[0])
		require.Equal(t, s.manager.AccessCredential(), seen[1])
	})

	t.Run("second 401 is surfaced without another refresh", func(t *testing.T) {
		s := newSession(t)
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		c := newClient(t, srv.URL, pipeline.WithAuthenticator(s.manager))
		_, err := c.Do(context.Background(), &pipeline.Request{Method: http.MethodGet, Path: "/profile"})
		require.Equal(t, apierror.TypeAuth, apierror.TypeOf(err))
		require.True(t, apierror.IsAuth(err))
		require.EqualValues(t, 2, hits.Load())
		require.Equal(t, 1, s.issuer.Calls())
	})

	t.Run("refresh exempt path is not refreshed", func(t *testing.T) {
		s := newSession(t)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		c := newClient(t, srv.URL, pipeline.WithAuthenticator(s.manager), pipeline.WithRefreshExempt("/auth/refresh"))
		_, err := c.Do(context.Background(), &pipeline.Request{Method: http.MethodPost, Path: "/auth/refresh"})
		require.Equal(t, apierror.TypeAuth, apierror.TypeOf(err))
		require.Equal(t, 0, s.issuer.Calls())
	})

	t.Run("failed refresh ends the session", func(t *testing.T) {
		s := newSession(t)
		s.issuer.FailWith(errors.ErrRefreshFailed)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		c := newClient(t, srv.URL, pipeline.WithAuthenticator(s.manager))
		_, err := c.Do(context.Background(), &pipeline.Request{Method: http.MethodGet, Path: "/profile"})
		require.Equal(t, apierror.TypeRefresh, apierror.TypeOf(err))
		require.False(t, s.manager.Authenticated())
		require.Equal(t, 1, s.recorder.Count(observe.KindLogout))
	})

	t.Run("no session surfaces the original 401", func(t *testing.T) {
		s := newSession(t)
		require.NoError(t, s.manager.Logout(context.Background(), auth.ReasonUser))
		var bearers bearerLog
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearers.record(r)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		c := newClient(t, srv.URL, pipeline.WithAuthenticator(s.manager))
		_, err := c.Do(context.Background(), &pipeline.Request{Method: http.MethodGet, Path: "/profile"})
		require.Equal(t, apierror.TypeAuth, apierror.TypeOf(err))
		require.Equal(t, 0, s.issuer.Calls())
		require.Equal(t, []string{""}, bearers.Seen())
	})
}

func TestClient_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	const callers = 10
	s := newSession(t)
	stale := s.manager.AccessCredential()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer "+stale {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, pipeline.WithAuthenticator(s.manager))
	release := s.issuer.Hold()
	defer release()

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Do(context.Background(), &pipeline.Request{Method: http.MethodGet, Path: "/profile"})
		}(i)
	}

	require.True(t, s.recorder.WaitFor(observe.KindRefreshRequested, callers, 2*time.Second))
	release()
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, s.issuer.Calls())
}

func TestClient_RejectedCredentialNeverAttached(t *testing.T) {
	s := newSession(t)
	rejected := s.manager.AccessCredential()
	s.manager.Reject(rejected)

	var bearers bearerLog
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearers.record(r)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, pipeline.WithAuthenticator(s.manager))
	_, err := c.Do(context.Background(), &pipeline.Request{Method: http.MethodGet, Path: "/profile"})
	require.NoError(t, err)
	require.Equal(t, 1, s.issuer.Calls(), "refreshed before dispatch")
	require.NotContains(t, bearers.Seen(), rejected)
}

func TestClient_TransientRetry(t *testing.T) {
	t.Run("listed status is retried", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		rec := observe.NewRecorder()
		c := newClient(t, srv.URL, pipeline.WithRetryPolicy(fastRetry(http.StatusServiceUnavailable)), pipeline.WithObserver(rec))
		res, err := c.Do(context.Background(), &pipeline.Request{Method: http.MethodGet, Path: "/flaky"})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, res.Status)
		require.EqualValues(t, 3, hits.Load())
		require.Equal(t, 2, rec.Count(observe.KindRetry))
	})

	t.Run("unlisted status is not retried", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		c := newClient(t, srv.URL, pipeline.WithRetryPolicy(fastRetry(http.StatusServiceUnavailable)))
		_, err := c.Do(context.Background(), &pipeline.Request{Method: http.MethodGet, Path: "/broken"})
		require.Equal(t, apierror.TypeServer, apierror.TypeOf(err))
		require.NotErrorIs(t, err, errors.ErrRetryExhausted)
		require.EqualValues(t, 1, hits.Load())
	})

	t.Run("network failure exhausts retries", func(t *testing.T) {
		var calls atomic.Int32
		down := pipeline.TransportFunc(func(r *http.Request) (*http.Response, error) {
			calls.Add(1)
			return nil, io.ErrUnexpectedEOF
		})
		c, err := pipeline.New("http://api.test", down, pipeline.WithLogger(zerolog.Nop()), pipeline.WithRetryPolicy(fastRetry()))
		require.NoError(t, err)

		_, err = c.Do(context.Background(), &pipeline.Request{Method: http.MethodGet, Path: "/x"})
		require.Equal(t, apierror.TypeNetwork, apierror.TypeOf(err))
		require.ErrorIs(t, err, io.ErrUnexpectedEOF)
		require.ErrorIs(t, err, errors.ErrRetryExhausted)
		require.EqualValues(t, 3, calls.Load())
	})

	t.Run("attempt timeout is retried as a timeout", func(t *testing.T) {
		var calls atomic.Int32
		slow := pipeline.TransportFunc(func(r *http.Request) (*http.Response, error) {
			calls.Add(1)
			<-r.Context().Done()
			return nil, r.Context().Err()
		})
		c, err := pipeline.New("http://api.test", slow,
			pipeline.WithLogger(zerolog.Nop()),
			pipeline.WithRetryPolicy(fastRetry()),
			pipeline.WithRequestTimeout(10*time.Millisecond),
		)
		require.NoError(t, err)

		_, err = c.Do(context.Background(), &pipeline.Request{Method: http.MethodGet, Path: "/slow"})
		require.Equal(t, apierror.TypeTimeout, apierror.TypeOf(err))
		require.EqualValues(t, 3, calls.Load())
	})

	t.Run("caller cancellation is not retried", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		var calls atomic.Int32
		cancelling := pipeline.TransportFunc(func(r *http.Request) (*http.Response, error) {
			calls.Add(1)
			cancel()
			return nil, context.Canceled
		})
		c, err := pipeline.New("http://api.test", cancelling, pipeline.WithLogger(zerolog.Nop()), pipeline.WithRetryPolicy(fastRetry()))
		require.NoError(t, err)

		_, err = c.Do(ctx, &pipeline.Request{Method: http.MethodGet, Path: "/x"})
		require.Error(t, err)
		require.EqualValues(t, 1, calls.Load())
	})
}

func TestClient_ProfileScenario(t *testing.T) {
	s := newSession(t)
	var mu sync.Mutex
	name := "Ada"
	var contentType string
	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/profile" {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			gets.Add(1)
			_, _ = io.WriteString(w, `{"name":"`+name+`"}`)
		case http.MethodPatch:
			body, _ := io.ReadAll(r.Body)
			contentType = r.Header.Get("Content-Type")
			name = strings.TrimSuffix(strings.TrimPrefix(string(body), `{"name":"`), `"}`)
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	type profile struct {
		Name string `json:"name"`
	}

	store := newCache()
	c := newClient(t, srv.URL, pipeline.WithAuthenticator(s.manager), pipeline.WithCache(store))
	ctx := context.Background()

	p, err := pipeline.GetJSON[profile](ctx, c, "/profile", pipeline.WithCacheTags("profile"))
	require.NoError(t, err)
	require.Equal(t, "Ada", p.Name)

	p, err = pipeline.GetJSON[profile](ctx, c, "/profile", pipeline.WithCacheTags("profile"))
	require.NoError(t, err)
	require.Equal(t, "Ada", p.Name)
	require.EqualValues(t, 1, gets.Load(), "second read is served from cache")

	_, err = pipeline.SendJSON[struct{}](ctx, c, http.MethodPatch, "/profile", profile{Name: "Grace"}, pipeline.WithInvalidateTags("profile"))
	require.NoError(t, err)
	require.Equal(t, 0, store.Len())
	mu.Lock()
	require.Equal(t, "application/json", contentType)
	mu.Unlock()

	p, err = pipeline.GetJSON[profile](ctx, c, "/profile", pipeline.WithCacheTags("profile"))
	require.NoError(t, err)
	require.Equal(t, "Grace", p.Name)
	require.EqualValues(t, 2, gets.Load())

	stats := store.Stats()
	require.EqualValues(t, 1, stats.Hits)
	require.Equal(t, 1, stats.Entries)
}

func TestGetJSON_InvalidBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>")
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)
	_, err := pipeline.GetJSON[map[string]any](context.Background(), c, "/x")
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apierror.TypeServer, apiErr.Type)
	require.Equal(t, http.StatusOK, apiErr.Status)
}
