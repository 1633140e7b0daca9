package pipeline

import (
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/jrsteele09/go-api-client/apierror"
	"github.com/jrsteele09/go-api-client/internal/config"
)

// RetryPolicy bounds transient retries. Network failures and timeouts are
// always retryable; server statuses only when listed.
type RetryPolicy struct {
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	RetryableStatuses []int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

func RetryPolicyFrom(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:        cfg.GetMaxRetries(),
		BaseDelay:         cfg.GetRetryBaseDelay(),
		MaxDelay:          cfg.GetRetryMaxDelay(),
		RetryableStatuses: cfg.GetRetryableStatuses(),
	}
}

// Backoff is BaseDelay * 2^attempt, capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func (p RetryPolicy) retryable(err *apierror.Error) bool {
	if err.Transient() {
		return true
	}
	return err.Type == apierror.TypeServer && slices.Contains(p.RetryableStatuses, err.Status)
}

// retryState tracks one logical request across attempts.
type retryState struct {
	attempt             int
	transientRetries    int
	retriedAfterRefresh bool
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
