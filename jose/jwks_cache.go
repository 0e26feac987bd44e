package jose

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/lestrrat-go/httpcc"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	jwksFetchAttempts = 2
	maxJWKSBodyBytes  = 1 << 20
)

type cachedJWKS struct {
	set       jwk.Set
	expiresAt time.Time
}

// jwksCache holds relying party key sets per endpoint. Fetches run outside the
// lock, so two concurrent misses may both fetch and the last one stored wins.
type jwksCache struct {
	client     *http.Client
	now        func() time.Time
	defaultTTL time.Duration
	retryDelay time.Duration

	lock    sync.RWMutex
	entries map[string]cachedJWKS
}

func newJWKSCache() *jwksCache {
	return &jwksCache{
		client:     &http.Client{Timeout: defaultJWKSTimeout},
		now:        time.Now,
		defaultTTL: defaultJWKSCacheTTL,
		retryDelay: defaultJWKSRetryDelay,
		entries:    make(map[string]cachedJWKS),
	}
}

func (c *jwksCache) getOrRefresh(ctx context.Context, endpoint string) (jwk.Set, error) {
	c.lock.RLock()
	entry, ok := c.entries[endpoint]
	c.lock.RUnlock()
	if ok && c.now().Before(entry.expiresAt) {
		return entry.set, nil
	}

	set, ttl, err := c.fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	c.lock.Lock()
	c.entries[endpoint] = cachedJWKS{set: set, expiresAt: c.now().Add(ttl)}
	c.lock.Unlock()
	return set, nil
}

type jwksFetchResult struct {
	set jwk.Set
	ttl time.Duration
}

func (c *jwksCache) fetch(ctx context.Context, endpoint string) (jwk.Set, time.Duration, error) {
	operation := func() (jwksFetchResult, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return jwksFetchResult{}, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return jwksFetchResult{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := errors.Errorf("unexpected status %d", resp.StatusCode)
			if resp.StatusCode < http.StatusInternalServerError {
				return jwksFetchResult{}, backoff.Permanent(err)
			}
			return jwksFetchResult{}, err
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBodyBytes))
		if err != nil {
			return jwksFetchResult{}, err
		}
		set, err := jwk.Parse(body)
		if err != nil {
			return jwksFetchResult{}, backoff.Permanent(errors.Wrap(err, "parse key set"))
		}
		return jwksFetchResult{set: set, ttl: maxAge(resp.Header.Get("Cache-Control"), c.defaultTTL)}, nil
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retryDelay)),
		backoff.WithMaxTries(jwksFetchAttempts),
		backoff.WithNotify(func(err error, d time.Duration) {
			log.Warn().Err(err).Str("endpoint", endpoint).Dur("retry_in", d).Msg("key set fetch failed")
		}),
	)
	if err != nil {
		return nil, 0, errors.Wrapf(ErrJWKSFetch, "%s: %v", endpoint, err)
	}
	return result.set, result.ttl, nil
}

// maxAge reads the max-age directive of a Cache-Control header, falling back
// to def when it is missing or unparsable.
func maxAge(cacheControl string, def time.Duration) time.Duration {
	directives, err := httpcc.ParseResponse(cacheControl)
	if err != nil {
		return def
	}
	seconds, ok := directives.MaxAge()
	if !ok {
		return def
	}
	return time.Duration(seconds) * time.Second
}
