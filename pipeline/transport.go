package pipeline

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-api-client/internal/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const RequestIDHeader = "X-Request-ID"

// Transport sends one HTTP request. *http.Client satisfies it.
type Transport interface {
	Do(*http.Request) (*http.Response, error)
}

type TransportFunc func(*http.Request) (*http.Response, error)

func (f TransportFunc) Do(r *http.Request) (*http.Response, error) {
	return f(r)
}

type Middleware func(Transport) Transport

// Chain wraps t so that mw[0] is the outermost layer.
func Chain(t Transport, mw ...Middleware) Transport {
	chained := t
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chained = mw[i](chained)
	}
	return chained
}

// RequestIDMiddleware tags requests that carry no X-Request-ID yet. The
// client sets one per logical request, so retries share it.
func RequestIDMiddleware(next Transport) Transport {
	return TransportFunc(func(r *http.Request) (*http.Response, error) {
		if r.Header.Get(RequestIDHeader) == "" {
			r.Header.Set(RequestIDHeader, uuid.NewString())
		}
		return next.Do(r)
	})
}

func LoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next Transport) Transport {
		return TransportFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()
			res, err := next.Do(r)
			ev := logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("request_id", r.Header.Get(RequestIDHeader)).
				Dur("elapsed", time.Since(start))
			if err != nil {
				ev.Err(err).Msg("pipeline: transport error")
				return res, err
			}
			ev.Int("status", res.StatusCode).Msg("pipeline: response")
			return res, err
		})
	}
}

// RecoverMiddleware turns a panicking transport into a network failure.
func RecoverMiddleware(next Transport) Transport {
	return TransportFunc(func(r *http.Request) (res *http.Response, err error) {
		defer func() {
			if p := recover(); p != nil {
				res, err = nil, errors.Wrapf(errors.ErrInternal, "transport panic: %v", p)
			}
		}()
		return next.Do(r)
	})
}

// RateLimitMiddleware waits for limiter before every attempt. Waiting honours
// the request context.
func RateLimitMiddleware(limiter *rate.Limiter) Middleware {
	return func(next Transport) Transport {
		return TransportFunc(func(r *http.Request) (*http.Response, error) {
			if err := limiter.Wait(r.Context()); err != nil {
				return nil, err
			}
			return next.Do(r)
		})
	}
}
