// Package request provides the outbound HTTP layer: per-provider serialized
// queues, response caching, and retry with exponential backoff. All REST
// calls (routing, geocoding, speech synthesis) go through here so rate
// limiting and usage tracking live in one place.
package request

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"walktale/pkg/store"
	"walktale/pkg/tracker"
	"walktale/pkg/version"
)

var defaultUserAgent = fmt.Sprintf("WalkTale/%s (walking tour narrator)", version.Version)

// Client handles HTTP requests with queuing, caching, and tracking.
type Client struct {
	httpClient *http.Client
	cache      store.Cacher
	tracker    *tracker.Tracker
	backoff    *ProviderBackoff
	retries    int

	// Queues per provider (domain)
	queues map[string]chan job
	mu     sync.Mutex // protects queues map
}

type job struct {
	req      *http.Request
	headers  map[string]string
	cacheKey string
	respChan chan jobResult
}

type jobResult struct {
	body []byte
	err  error
}

// New creates a new Client.
func New(c store.Cacher, t *tracker.Tracker, timeout time.Duration, retries int, backoff *ProviderBackoff) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if backoff == nil {
		backoff = NewProviderBackoff(500*time.Millisecond, 8*time.Second)
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		cache:      c,
		tracker:    t,
		backoff:    backoff,
		retries:    retries,
		queues:     make(map[string]chan job),
	}
}

// Get performs a GET request with queuing, and caching if cacheKey is set.
func (c *Client) Get(ctx context.Context, u, cacheKey string) ([]byte, error) {
	return c.GetWithHeaders(ctx, u, nil, cacheKey)
}

// GetWithHeaders performs a GET request with custom headers and optional caching.
func (c *Client) GetWithHeaders(ctx context.Context, u string, headers map[string]string, cacheKey string) ([]byte, error) {
	provider, err := providerFor(u)
	if err != nil {
		return nil, err
	}

	if cacheKey != "" && c.cache != nil {
		if val, hit := c.cache.GetCache(ctx, cacheKey); hit {
			c.tracker.CacheHit(provider)
			slog.Debug("cache hit", "provider", provider, "key", cacheKey)
			return val, nil
		}
		c.tracker.CacheMiss(provider)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.submit(ctx, provider, job{req: req, headers: headers, cacheKey: cacheKey})
}

// PostJSON performs a POST with a JSON body and queuing.
func (c *Client) PostJSON(ctx context.Context, u string, body []byte) ([]byte, error) {
	provider, err := providerFor(u)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	headers := map[string]string{"Content-Type": "application/json"}
	return c.submit(ctx, provider, job{req: req, headers: headers})
}

func providerFor(u string) (string, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	return normalizeProvider(parsed.Host), nil
}

// normalizeProvider groups hosts into one provider per upstream service so
// requests to the same service serialize on one queue.
func normalizeProvider(host string) string {
	switch {
	case strings.Contains(host, "project-osrm.org"):
		return "osrm"
	case strings.HasPrefix(host, "texttospeech."):
		return "tts"
	case strings.HasSuffix(host, "googleapis.com"):
		return "maps"
	}
	return host
}

func (c *Client) submit(ctx context.Context, provider string, j job) ([]byte, error) {
	j.respChan = make(chan jobResult, 1)
	c.dispatch(provider, j)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-j.respChan:
		return res.body, res.err
	}
}

// dispatch sends the job to the provider's queue, creating the worker if needed.
func (c *Client) dispatch(provider string, j job) {
	c.mu.Lock()
	q, ok := c.queues[provider]
	if !ok {
		q = make(chan job, 100)
		c.queues[provider] = q
		go c.worker(provider, q)
	}
	c.mu.Unlock()

	// Blocks when the queue is full, throttling the caller.
	select {
	case q <- j:
	case <-j.req.Context().Done():
		j.respChan <- jobResult{err: j.req.Context().Err()}
	}
}

// worker processes requests for a specific provider sequentially.
func (c *Client) worker(provider string, q <-chan job) {
	for j := range q {
		if j.req.Context().Err() != nil {
			j.respChan <- jobResult{err: j.req.Context().Err()}
			continue
		}

		uaSet := false
		for k, v := range j.headers {
			j.req.Header.Set(k, v)
			if http.CanonicalHeaderKey(k) == "User-Agent" {
				uaSet = true
			}
		}
		if !uaSet {
			j.req.Header.Set("User-Agent", defaultUserAgent)
		}

		body, err := c.execute(provider, j.req)
		if err == nil {
			if j.cacheKey != "" && c.cache != nil {
				if cerr := c.cache.SetCache(context.Background(), j.cacheKey, body); cerr != nil {
					slog.Error("failed to cache response", "url", j.req.URL, "error", cerr)
				}
			}
		}
		j.respChan <- jobResult{body: body, err: err}

		// Small gap between requests to the same provider.
		time.Sleep(100 * time.Millisecond)
	}
}

// execute runs the request with retries and provider backoff.
func (c *Client) execute(provider string, req *http.Request) ([]byte, error) {
	var lastErr error
	attempts := c.retries
	if attempts < 1 {
		attempts = 1
	}

	// Buffer the body so it can be replayed on retry.
	var bodyBytes []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to buffer request body: %w", err)
		}
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if err := req.Context().Err(); err != nil {
			return nil, err
		}
		c.backoff.Wait(provider)

		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
		c.tracker.Request(provider)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.tracker.Failure(provider)
			c.backoff.RecordFailure(provider)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", err)
			c.tracker.Failure(provider)
			c.backoff.RecordFailure(provider)
			continue
		}

		if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("%s returned status %d", provider, resp.StatusCode)
			c.tracker.Failure(provider)
			c.backoff.RecordFailure(provider)
			// Client errors won't improve on retry.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != 429 {
				return nil, lastErr
			}
			continue
		}

		c.backoff.RecordSuccess(provider)
		return body, nil
	}
	return nil, fmt.Errorf("request to %s failed after %d attempts: %w", provider, attempts, lastErr)
}
