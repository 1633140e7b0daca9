package refresh

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-api-client/internal/errors"
	"github.com/jrsteele09/go-api-client/internal/utils"
	"golang.org/x/oauth2"
)

// OAuth2Issuer refreshes through a standard OAuth2 token endpoint using the
// refresh_token grant.
type OAuth2Issuer struct {
	config     *oauth2.Config
	httpClient *http.Client
}

type OAuth2Option func(*OAuth2Issuer)

// WithOAuth2HTTPClient sets the client used to reach the token endpoint.
func WithOAuth2HTTPClient(c *http.Client) OAuth2Option {
	return func(i *OAuth2Issuer) {
		i.httpClient = c
	}
}

func NewOAuth2Issuer(tokenURL, clientID, clientSecret string, opts ...OAuth2Option) *OAuth2Issuer {
	i := &OAuth2Issuer{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *OAuth2Issuer) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, errors.ErrMissingRefreshToken
	}
	if i.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, i.httpClient)
	}

	// An empty access token forces the source to hit the endpoint.
	tok, err := i.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return nil, errors.Wrapf(errors.ErrRefreshFailed, "token endpoint returned %d: %s", re.Response.StatusCode, re.ErrorCode)
		}
		return nil, errors.Wrapf(err, "token endpoint")
	}

	resp := &TokenResponse{
		AccessToken: utils.Ptr(tok.AccessToken),
		TokenType:   tok.TokenType,
		ExpiresIn:   int(tok.ExpiresIn),
	}
	if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
		resp.RefreshToken = utils.Ptr(tok.RefreshToken)
	}
	if id, ok := tok.Extra("id_token").(string); ok && id != "" {
		resp.IdToken = utils.Ptr(id)
	}
	if n, ok := tok.Extra("refresh_expires_in").(float64); ok {
		resp.RefreshExpiresIn = int(n)
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		resp.Scope = scope
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return resp, nil
}
