package session

import (
	"context"
	"net/url"
)

// Client is the throttled, session-aware transport the exchange fetchers
// and the attachment resolver go through.
type Client interface {
	// Name identifies the underlying source session in logs.
	Name() string

	// Get performs a throttled GET and returns the response body.
	Get(ctx context.Context, rawURL string, query url.Values) ([]byte, error)

	// GetJSON performs a throttled GET and decodes the JSON response into v.
	GetJSON(ctx context.Context, rawURL string, query url.Values, v any) error
}

var _ Client = (*Manager)(nil)
