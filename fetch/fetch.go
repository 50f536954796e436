// Package fetch pulls government documents from their upstream APIs:
// Supreme Court opinions from CourtListener and Executive Orders from the
// Federal Register. Both fetchers paginate lazily, respect per-API rate
// limits, and retry transient upstream failures with exponential backoff.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/publiclaw/reporter/document"
)

var (
	// ErrNotFound is returned when the upstream reports a document does not
	// exist.
	ErrNotFound = errors.New("fetch: document not found")

	// ErrUpstream is returned for upstream API failures that exhausted the
	// retry budget or are not retriable.
	ErrUpstream = errors.New("fetch: upstream error")
)

// Fetcher lists and fetches documents from one upstream source. ListIDs
// yields IDs lazily in ascending publication-date order; iteration stops at
// the first yielded error.
type Fetcher interface {
	ListIDs(ctx context.Context, start, end string) iter.Seq2[string, error]
	Fetch(ctx context.Context, id string) (*document.Document, error)
}

const (
	maxTries       = 5
	requestTimeout = 30 * time.Second
)

// httpGetter wraps an http.Client with the shared request policy: every
// attempt waits on the client's rate limiter, 429 and 5xx retry with
// backoff (Retry-After honored), other 4xx fail immediately.
type httpGetter struct {
	client  *http.Client
	limiter *limiter
}

func newHTTPGetter(interval time.Duration) httpGetter {
	return httpGetter{
		client:  &http.Client{Timeout: requestTimeout},
		limiter: newLimiter(interval),
	}
}

// get fetches a URL and returns the response body. The limiter gates every
// attempt, so list pages, detail fetches, and retries all share the spacing.
func (g httpGetter) get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	return backoff.Retry(ctx, func() ([]byte, error) {
		if err := g.limiter.wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := g.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response from %s: %w", url, err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusNotFound:
			return nil, backoff.Permanent(fmt.Errorf("%w: %s", ErrNotFound, url))
		case resp.StatusCode == http.StatusTooManyRequests:
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if seconds, convErr := strconv.Atoi(ra); convErr == nil && seconds > 0 {
					return nil, backoff.RetryAfter(seconds)
				}
			}
			return nil, fmt.Errorf("%w: rate limited by %s", ErrUpstream, url)
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: %s returned %d", ErrUpstream, url, resp.StatusCode)
		default:
			return nil, backoff.Permanent(
				fmt.Errorf("%w: %s returned %d", ErrUpstream, url, resp.StatusCode))
		}
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxTries),
	)
}

// getJSON fetches a URL and decodes its JSON body.
func (g httpGetter) getJSON(ctx context.Context, url string, header http.Header, out any) error {
	body, err := g.get(ctx, url, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return nil
}
