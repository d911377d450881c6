package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/fediglade/fediglade/apperr"
	"github.com/fediglade/fediglade/domain"
	"golang.org/x/time/rate"
)

// Fetch error reasons, per spec.md 4.C.
const (
	ReasonNotFound             = "not_found"
	ReasonTimedOut             = "timed_out"
	ReasonTooLarge             = "too_large"
	ReasonUnsupportedMediaType = "unsupported_media_type"
	ReasonAuthorityMismatch    = "authority_mismatch"
)

const (
	defaultMaxBytes   = 2 << 20 // 2MiB, a generous ceiling for an AS2 object
	defaultMaxRedirects = 10
	perHostRateLimit  = 5 // requests/sec, per host
	perHostBurst      = 10
)

var defaultMediaTypes = []string{
	"image/jpeg", "image/png", "image/gif", "image/webp", "image/svg+xml",
	"video/mp4", "video/webm", "audio/mpeg", "audio/ogg",
}

// Fetcher retrieves and authenticates remote objects by id. It holds the
// per-host rate limiters (an in-process cache guarded by a mutex, no I/O
// held under the lock, per spec.md 5) and the dependencies needed to sign
// outbound requests.
type Fetcher struct {
	Client       HTTPClient
	Sign         Signer
	InstanceHost string
	MaxBytes     int64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New builds a Fetcher using the production HTTP client.
func New(instanceHost string, sign Signer) *Fetcher {
	return &Fetcher{
		Client:       NewDefaultHTTPClient(15 * time.Second),
		Sign:         sign,
		InstanceHost: instanceHost,
		MaxBytes:     defaultMaxBytes,
		limiters:     make(map[string]*rate.Limiter),
	}
}

func (f *Fetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(perHostRateLimit), perHostBurst)
		f.limiters[host] = l
	}
	return l
}

// Fetch retrieves uri as the given local actor (or the instance actor, if
// as is nil), following same-origin redirects, and returns the parsed JSON
// object together with its final (post-redirect) URL. It rejects a final
// URL whose origin differs from the claimed object id unless the object
// self-authenticates via a FEP-ef61 integrity proof (checked by the
// caller — the Fetcher only reports the mismatch as AuthorityMismatch when
// the object carries no "proof" member at all).
func (f *Fetcher) Fetch(uri string, as *domain.Actor) (map[string]any, string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, "", apperr.Validation("invalid fetch URI", err)
	}

	if err := f.limiterFor(parsed.Host).Wait(context.Background()); err != nil {
		return nil, "", apperr.FetchReason(ReasonTimedOut, "rate limiter wait failed", err)
	}

	currentURL := uri
	for redirects := 0; ; redirects++ {
		if redirects > defaultMaxRedirects {
			return nil, "", apperr.FetchReason(ReasonTimedOut, "too many redirects", nil)
		}

		req, err := http.NewRequest(http.MethodGet, currentURL, nil)
		if err != nil {
			return nil, "", apperr.Validation("building fetch request", err)
		}
		req.Header.Set("Accept", "application/activity+json")
		req.Header.Set("User-Agent", "fediglade/1.0 ActivityPub")

		if f.Sign != nil {
			if err := f.Sign(req, as); err != nil {
				return nil, "", apperr.Authentication("signing fetch request", err)
			}
		}

		resp, err := f.Client.Do(req)
		if err != nil {
			return nil, "", apperr.FetchReason(ReasonTimedOut, "fetch request failed", err)
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			loc := resp.Header.Get("Location")
			resp.Body.Close()
			if loc == "" {
				return nil, "", apperr.Fetch("redirect with no Location header", nil)
			}
			next, err := url.Parse(loc)
			if err != nil {
				return nil, "", apperr.Fetch("invalid redirect Location", err)
			}
			if !next.IsAbs() {
				base, _ := url.Parse(currentURL)
				next = base.ResolveReference(next)
			}
			currentURL = next.String()
			continue
		}

		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			return nil, "", apperr.FetchReason(ReasonNotFound, fmt.Sprintf("fetch returned %d", resp.StatusCode), nil)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, "", apperr.Fetch(fmt.Sprintf("fetch returned %d", resp.StatusCode), nil)
		}

		body, err := readCapped(resp.Body, f.capBytes())
		if err != nil {
			return nil, "", err
		}

		var obj map[string]any
		if err := json.Unmarshal(body, &obj); err != nil {
			return nil, "", apperr.Validation("fetch response is not valid JSON", err)
		}

		if err := f.checkOrigin(uri, currentURL, obj); err != nil {
			return nil, "", err
		}

		return obj, currentURL, nil
	}
}

// checkOrigin enforces that the final URL's origin matches the claimed
// object id's origin, unless the object carries its own Data Integrity
// proof (in which case the Importer, not the Fetcher, verifies it).
func (f *Fetcher) checkOrigin(claimedID, finalURL string, obj map[string]any) error {
	if _, hasProof := obj["proof"]; hasProof {
		return nil
	}

	claimed, err1 := url.Parse(claimedID)
	final, err2 := url.Parse(finalURL)
	if err1 != nil || err2 != nil {
		return apperr.FetchReason(ReasonAuthorityMismatch, "could not parse URLs for origin check", nil)
	}
	if claimed.Scheme == "ap" {
		// Portable ids have no network origin to compare against.
		return nil
	}
	if claimed.Host != final.Host {
		return apperr.FetchReason(ReasonAuthorityMismatch,
			fmt.Sprintf("final URL origin %q does not match claimed id origin %q", final.Host, claimed.Host), nil)
	}
	return nil
}

func (f *Fetcher) capBytes() int64 {
	if f.MaxBytes > 0 {
		return f.MaxBytes
	}
	return defaultMaxBytes
}

// FetchFile downloads a media file from uri, enforcing a media-type
// allowlist and a byte-length cap.
func (f *Fetcher) FetchFile(uri string, allowedTypes []string, maxBytes int64) ([]byte, string, error) {
	if len(allowedTypes) == 0 {
		allowedTypes = defaultMediaTypes
	}
	if maxBytes <= 0 {
		maxBytes = f.capBytes()
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, "", apperr.Validation("invalid file URI", err)
	}
	if err := f.limiterFor(parsed.Host).Wait(context.Background()); err != nil {
		return nil, "", apperr.FetchReason(ReasonTimedOut, "rate limiter wait failed", err)
	}

	req, err := http.NewRequest(http.MethodGet, uri, nil)
	if err != nil {
		return nil, "", apperr.Validation("building file request", err)
	}
	req.Header.Set("User-Agent", "fediglade/1.0 ActivityPub")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, "", apperr.FetchReason(ReasonTimedOut, "file fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", apperr.FetchReason(ReasonNotFound, "file not found", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", apperr.Fetch(fmt.Sprintf("file fetch returned %d", resp.StatusCode), nil)
	}

	mediaType := resp.Header.Get("Content-Type")
	if !mediaTypeAllowed(mediaType, allowedTypes) {
		return nil, "", apperr.FetchReason(ReasonUnsupportedMediaType, fmt.Sprintf("media type %q not allowed", mediaType), nil)
	}

	body, err := readCapped(resp.Body, maxBytes)
	if err != nil {
		return nil, "", err
	}
	return body, mediaType, nil
}

func mediaTypeAllowed(mediaType string, allowed []string) bool {
	for _, a := range allowed {
		if a == mediaType {
			return true
		}
	}
	return false
}

func readCapped(r io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(r, limit+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, apperr.Fetch("reading response body", err)
	}
	if int64(len(body)) > limit {
		return nil, apperr.FetchReason(ReasonTooLarge, fmt.Sprintf("response exceeds %d byte ceiling", limit), nil)
	}
	return body, nil
}
