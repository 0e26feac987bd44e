package clients

import (
	"errors"
	"net/url"
	"strings"
)

var (
	ErrClientNotFound      = errors.New("client not found")
	ErrInvalidClientConfig = errors.New("invalid client configuration")
)

// Client is a relying party allowed to start a session. The request object it
// sends is signed with a key published at JWKSEndpoint.
type Client struct {
	ID           string `json:"clientId"`
	RedirectURI  string `json:"redirectUri"`
	JWKSEndpoint string `json:"jwksEndpoint"`
}

// Validate checks that the static configuration for a client is usable
func (c *Client) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.Join(ErrInvalidClientConfig, errors.New("clientId is required"))
	}
	if _, err := url.ParseRequestURI(c.RedirectURI); err != nil {
		return errors.Join(ErrInvalidClientConfig, errors.New("redirectUri must be an absolute URI"))
	}
	if _, err := url.ParseRequestURI(c.JWKSEndpoint); err != nil {
		return errors.Join(ErrInvalidClientConfig, errors.New("jwksEndpoint must be an absolute URI"))
	}
	return nil
}

// RedirectURIMatches is an exact comparison against the registered redirect URI
func (c *Client) RedirectURIMatches(redirectURI string) bool {
	return c.RedirectURI == redirectURI
}
