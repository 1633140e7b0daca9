package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/jrsteele09/go-api-client/internal/errors"
)

const defaultIssuerTimeout = 15 * time.Second

// JSONIssuer refreshes against an API that takes {"refresh_token": "..."} as
// a JSON body and answers with a TokenResponse.
type JSONIssuer struct {
	url        string
	httpClient *http.Client
}

type JSONOption func(*JSONIssuer)

func WithJSONHTTPClient(c *http.Client) JSONOption {
	return func(i *JSONIssuer) {
		i.httpClient = c
	}
}

func NewJSONIssuer(url string, opts ...JSONOption) *JSONIssuer {
	i := &JSONIssuer{
		url:        url,
		httpClient: &http.Client{Timeout: defaultIssuerTimeout},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (i *JSONIssuer) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, errors.ErrMissingRefreshToken
	}

	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, errors.Wrapf(err, "encode refresh request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, "build refresh request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := i.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "refresh endpoint")
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 256))
		return nil, errors.Wrapf(errors.ErrRefreshFailed, "refresh endpoint returned %d: %s", res.StatusCode, bytes.TrimSpace(msg))
	}

	var out TokenResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, errors.Wrapf(err, "decode refresh response")
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}
