package pipeline

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-api-client/apierror"
)

// GetJSON reads path and decodes the body into T. Reads are cached when the
// client has a cache.
func GetJSON[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (T, error) {
	req := &Request{Method: http.MethodGet, Path: path}
	for _, opt := range opts {
		opt(req)
	}
	return decode[T](c.Do(ctx, req))
}

// SendJSON encodes payload as the body of a write and decodes the reply into
// T. A nil payload sends no body.
func SendJSON[T any](ctx context.Context, c *Client, method, path string, payload any, opts ...RequestOption) (T, error) {
	req := &Request{Method: method, Path: path}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			var zero T
			return zero, apierror.New(apierror.TypeValidation, "encode request body", err)
		}
		req.Body = body
	}
	for _, opt := range opts {
		opt(req)
	}
	return decode[T](c.Do(ctx, req))
}

func decode[T any](res *Response, err error) (T, error) {
	var out T
	if err != nil {
		return out, err
	}
	if len(res.Body) == 0 || res.Status == http.StatusNoContent {
		return out, nil
	}
	if err := json.Unmarshal(res.Body, &out); err != nil {
		return out, &apierror.Error{Type: apierror.TypeServer, Status: res.Status, Message: "response is not valid JSON", Err: err}
	}
	return out, nil
}
