package pipeline_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-api-client/internal/errors"
	"github.com/jrsteele09/go-api-client/pipeline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func okTransport() pipeline.Transport {
	return pipeline.TransportFunc(func(r *http.Request) (*http.Response, error) {
		rec := httptest.NewRecorder()
		rec.WriteHeader(http.StatusOK)
		return rec.Result(), nil
	})
}

func TestChain_Order(t *testing.T) {
	var order []string
	tag := func(name string) pipeline.Middleware {
		return func(next pipeline.Transport) pipeline.Transport {
			return pipeline.TransportFunc(func(r *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.Do(r)
			})
		}
	}

	tr := pipeline.Chain(okTransport(), tag("outer"), tag("middle"), tag("inner"))
	req := httptest.NewRequest(http.MethodGet, "http://api.test/x", nil)
	res, err := tr.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, []string{"outer", "middle", "inner"}, order)
}

func TestRecoverMiddleware(t *testing.T) {
	panicky := pipeline.TransportFunc(func(*http.Request) (*http.Response, error) {
		panic("boom")
	})
	tr := pipeline.Chain(panicky, pipeline.RecoverMiddleware)

	res, err := tr.Do(httptest.NewRequest(http.MethodGet, "http://api.test/x", nil))
	require.Nil(t, res)
	require.ErrorContains(t, err, "transport panic: boom")
	require.ErrorIs(t, err, errors.ErrInternal)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	capture := pipeline.TransportFunc(func(r *http.Request) (*http.Response, error) {
		seen = r.Header.Get(pipeline.RequestIDHeader)
		return okTransport().Do(r)
	})
	tr := pipeline.Chain(capture, pipeline.RequestIDMiddleware)

	t.Run("generated when missing", func(t *testing.T) {
		_, err := tr.Do(httptest.NewRequest(http.MethodGet, "http://api.test/x", nil))
		require.NoError(t, err)
		require.Len(t, seen, 36)
	})

	t.Run("kept when present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://api.test/x", nil)
		req.Header.Set(pipeline.RequestIDHeader, "req-1")
		_, err := tr.Do(req)
		require.NoError(t, err)
		require.Equal(t, "req-1", seen)
	})
}

func TestLoggingMiddleware(t *testing.T) {
	tr := pipeline.Chain(okTransport(), pipeline.LoggingMiddleware(zerolog.Nop()))
	res, err := tr.Do(httptest.NewRequest(http.MethodGet, "http://api.test/x", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	tr := pipeline.Chain(okTransport(), pipeline.RateLimitMiddleware(limiter))

	_, err := tr.Do(httptest.NewRequest(http.MethodGet, "http://api.test/x", nil))
	require.NoError(t, err, "burst admits the first request")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "http://api.test/x", nil).WithContext(ctx)
	_, err = tr.Do(req)
	require.Error(t, err, "second request cannot be admitted before the deadline")
}
