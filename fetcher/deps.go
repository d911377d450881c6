// Package fetcher is the Fetcher component (spec.md 4.C): it retrieves and
// authenticates remote objects by id, enforcing per-host rate limits, a
// size ceiling, and an origin-match guard against forwarded-impersonation.
package fetcher

import (
	"net/http"
	"time"

	"github.com/fediglade/fediglade/domain"
)

// HTTPClient is the dependency-injected HTTP client, mirroring the
// teacher's activitypub.HTTPClient so fetcher and delivery share one
// client shape across the codebase.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultHTTPClient is the production HTTPClient.
type DefaultHTTPClient struct {
	client *http.Client
}

func NewDefaultHTTPClient(timeout time.Duration) *DefaultHTTPClient {
	return &DefaultHTTPClient{client: &http.Client{
		Timeout: timeout,
		// Redirects are followed manually by Fetch so the origin-match
		// check can inspect the final URL; CheckRedirect here hands every
		// 3xx back unfollowed, and Fetch caps the hop count itself.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}}
}

func (c *DefaultHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

// Signer signs outbound GET requests with a local actor's key (or the
// instance actor's, if as is nil), matching identity.SignRequest's shape
// without importing identity's concrete key types here.
type Signer func(req *http.Request, as *domain.Actor) error
