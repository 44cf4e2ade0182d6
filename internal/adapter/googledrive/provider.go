package googledrive

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Provider builds DriveAdapters whose requests are authorized by a token source.
type Provider struct {
	source  oauth2.TokenSource
	timeout time.Duration
	opts    []Option
}

// NewProvider creates a Provider. timeout bounds every Drive request; zero means none.
func NewProvider(source oauth2.TokenSource, timeout time.Duration, opts ...Option) *Provider {
	return &Provider{source: source, timeout: timeout, opts: opts}
}

// HTTPClient returns a client that sets the current bearer token on every request.
// The source is consulted per request so refreshed or revoked tokens take effect immediately.
func (p *Provider) HTTPClient() *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{Source: p.source, Base: http.DefaultTransport},
		Timeout:   p.timeout,
	}
}

// GetAdapter returns a DriveAdapter for the provider's credentials.
func (p *Provider) GetAdapter(ctx context.Context) (*DriveAdapter, error) {
	d, err := NewDriveAdapter(ctx, p.HTTPClient(), p.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive adapter: %w", err)
	}
	return d, nil
}
