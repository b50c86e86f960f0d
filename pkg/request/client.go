// Package request is the single outbound HTTP path. Every component
// that talks to the network (feed fetcher, geocoder, translators,
// dataset integrators, AI assessor) goes through one Client, which
// serializes requests per provider, rate-limits them, retries with
// exponential backoff, and caches responses in sqlite.
package request

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"argusgo/pkg/cache"
	"argusgo/pkg/logging"
	"argusgo/pkg/tracker"
	"argusgo/pkg/version"
)

var defaultUserAgent = fmt.Sprintf("Argus Geopolitical Monitor (argusgo/%s)", version.Version)

// ErrRateLimited reports that a provider answered 429 on every attempt.
// Callers that poll (the feed fetcher) treat it as a signal to back the
// source off rather than a hard failure.
var ErrRateLimited = errors.New("rate limited by provider")

const (
	defaultTimeout   = 30 * time.Second
	defaultRetries   = 3
	defaultBaseDelay = 1 * time.Second
	defaultMaxDelay  = 60 * time.Second
	// defaultQPS spaces requests to providers without an explicit
	// limit. Feed hosts get their own rate from the fetcher config.
	defaultQPS = 2.0
)

// Options tunes a Client. Zero values fall back to package defaults.
type Options struct {
	Timeout   time.Duration
	Retries   int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	UserAgent string
	// QPS is the per-provider request rate applied when no explicit
	// limit has been set via SetProviderQPS.
	QPS float64
}

// Client handles HTTP requests with per-provider queuing, rate
// limiting, caching, and tracking.
type Client struct {
	httpClient *http.Client
	cache      cache.Cacher
	tracker    *tracker.Tracker
	userAgent  string
	retries    int
	baseDelay  time.Duration
	maxDelay   time.Duration
	qps        float64

	// Queues and limiters per provider (domain)
	mu       sync.Mutex
	queues   map[string]chan job
	limiters map[string]*rate.Limiter
	rates    map[string]float64
}

// job represents a queued request.
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

// New creates a Client with default options.
func New(c cache.Cacher, t *tracker.Tracker) *Client {
	return NewWithOptions(c, t, Options{})
}

// NewWithOptions creates a Client with explicit tuning.
func NewWithOptions(c cache.Cacher, t *tracker.Tracker, o Options) *Client {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.Retries <= 0 {
		o.Retries = defaultRetries
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = defaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = defaultMaxDelay
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.QPS <= 0 {
		o.QPS = defaultQPS
	}
	return &Client{
		httpClient: &http.Client{Timeout: o.Timeout},
		cache:      c,
		tracker:    t,
		userAgent:  o.UserAgent,
		retries:    o.Retries,
		baseDelay:  o.BaseDelay,
		maxDelay:   o.MaxDelay,
		qps:        o.QPS,
		queues:     make(map[string]chan job),
		limiters:   make(map[string]*rate.Limiter),
		rates:      make(map[string]float64),
	}
}

// SetProviderQPS overrides the request rate for one provider. It
// applies immediately, including to an already running worker.
func (c *Client) SetProviderQPS(provider string, qps float64) {
	if qps <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates[provider] = qps
	if lim, ok := c.limiters[provider]; ok {
		lim.SetLimit(rate.Limit(qps))
	}
}

// QueueDepths reports the number of waiting jobs per provider.
func (c *Client) QueueDepths() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	depths := make(map[string]int, len(c.queues))
	for p, q := range c.queues {
		depths[p] = len(q)
	}
	return depths
}

// Get performs a GET request with queuing and caching if key is provided.
func (c *Client) Get(ctx context.Context, u, cacheKey string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, u, nil, nil, cacheKey, 0)
}

// GetWithHeaders performs a GET request with custom headers and optional caching.
func (c *Client) GetWithHeaders(ctx context.Context, u string, headers map[string]string, cacheKey string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, u, nil, headers, cacheKey, 0)
}

// GetCached performs a GET request served from cache when the stored
// response is younger than ttl. A ttl of zero accepts any cached age.
func (c *Client) GetCached(ctx context.Context, u string, headers map[string]string, cacheKey string, ttl time.Duration) ([]byte, error) {
	return c.do(ctx, http.MethodGet, u, nil, headers, cacheKey, ttl)
}

// Post performs a POST request with queuing.
func (c *Client) Post(ctx context.Context, u string, body []byte, contentType string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, u, body, map[string]string{"Content-Type": contentType}, "", 0)
}

// PostWithHeaders performs a POST request with custom headers and queuing.
func (c *Client) PostWithHeaders(ctx context.Context, u string, body []byte, headers map[string]string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, u, body, headers, "", 0)
}

// PostWithCache performs a POST request with queuing and caching. Used
// by the translators, whose requests are deterministic on the body.
func (c *Client) PostWithCache(ctx context.Context, u string, body []byte, headers map[string]string, cacheKey string, ttl time.Duration) ([]byte, error) {
	return c.do(ctx, http.MethodPost, u, body, headers, cacheKey, ttl)
}

func (c *Client) do(ctx context.Context, method, u string, body []byte, headers map[string]string, cacheKey string, ttl time.Duration) ([]byte, error) {
	parsedURL, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	provider := normalizeProvider(parsedURL.Host)

	// 1. Check cache (only if key is provided)
	if cacheKey != "" {
		if val, hit := c.cache.GetCacheFresh(ctx, cacheKey, ttl); hit {
			c.tracker.TrackCacheHit(provider)
			logging.Trace("Cache hit", "provider", provider, "key", cacheKey)
			return val, nil
		}
		c.tracker.TrackCacheMiss(provider)
		logging.Trace("Cache miss", "provider", provider, "key", cacheKey)
	}

	// 2. Enqueue request
	var rd io.Reader = http.NoBody
	if len(body) > 0 {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	respChan := make(chan jobResult, 1)
	c.dispatch(provider, job{req: req, headers: headers, cacheKey: cacheKey, respChan: respChan})

	// 3. Wait for result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-respChan:
		return res.body, res.err
	}
}

// ProviderFor reports the provider key under which requests for the
// given URL are queued and rate limited. Callers use it to target
// SetProviderQPS at a specific host.
func ProviderFor(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "default"
	}
	return normalizeProvider(u.Host)
}

// normalizeProvider groups host families into one provider so their
// requests share a queue and rate limit.
func normalizeProvider(host string) string {
	host = strings.ToLower(host)
	switch {
	case strings.HasSuffix(host, "acleddata.com"):
		return "acled"
	case strings.HasSuffix(host, "gdeltproject.org"):
		return "gdelt"
	case strings.HasSuffix(host, "googleapis.com"):
		return "gemini"
	case strings.HasSuffix(host, "openai.com"):
		return "openai"
	case strings.HasSuffix(host, "deepl.com"):
		return "deepl"
	case strings.Contains(host, "nominatim"):
		return "nominatim"
	case strings.Contains(host, "libretranslate"):
		return "libretranslate"
	}
	return host
}

// dispatch sends the job to the provider's queue, creating the queue
// and worker on first use.
func (c *Client) dispatch(provider string, j job) {
	c.mu.Lock()
	q, ok := c.queues[provider]
	if !ok {
		q = make(chan job, 100)
		c.queues[provider] = q
		go c.worker(provider, q, c.limiterLocked(provider))
	}
	c.mu.Unlock()

	// Block here if the queue is full, throttling the caller.
	select {
	case q <- j:
	case <-j.req.Context().Done():
		// Caller gave up before we could even enqueue
		j.respChan <- jobResult{err: j.req.Context().Err()}
	}
}

// limiterLocked returns the provider's limiter, creating it from the
// configured rate. Caller holds c.mu.
func (c *Client) limiterLocked(provider string) *rate.Limiter {
	if lim, ok := c.limiters[provider]; ok {
		return lim
	}
	qps := c.qps
	if r, ok := c.rates[provider]; ok {
		qps = r
	}
	lim := rate.NewLimiter(rate.Limit(qps), 1)
	c.limiters[provider] = lim
	return lim
}

// worker processes requests for a single provider sequentially.
func (c *Client) worker(provider string, q <-chan job, lim *rate.Limiter) {
	for j := range q {
		// Check context before processing
		if err := j.req.Context().Err(); err != nil {
			slog.Warn("Job dropped from queue (context expired)", "provider", provider, "error", err)
			j.respChan <- jobResult{err: err}
			continue
		}

		// Apply User-Agent (default if not provided)
		uaSet := false
		for k, v := range j.headers {
			j.req.Header.Set(k, v)
			if http.CanonicalHeaderKey(k) == "User-Agent" {
				uaSet = true
			}
		}
		if !uaSet {
			j.req.Header.Set("User-Agent", c.userAgent)
		}

		// Pace requests to this provider.
		if err := lim.Wait(j.req.Context()); err != nil {
			j.respChan <- jobResult{err: err}
			continue
		}

		body, err := c.executeWithBackoff(j.req)
		if err == nil {
			c.tracker.TrackAPISuccess(provider)
			// Cache result (only if key is provided)
			if j.cacheKey != "" {
				if cerr := c.cache.SetCache(context.Background(), j.cacheKey, body); cerr != nil {
					slog.Error("Failed to cache response", "url", j.req.URL, "error", cerr)
				}
			}
		} else {
			c.tracker.TrackAPIFailure(provider)
		}

		j.respChan <- jobResult{body: body, err: err}
	}
}

// executeWithBackoff attempts the request with exponential backoff on
// retryable failures (network errors, 429, 5xx). Other 4xx responses
// fail immediately. A 429 Retry-After hint extends the wait, capped at
// the configured maximum.
func (c *Client) executeWithBackoff(req *http.Request) ([]byte, error) {
	var (
		lastErr    error
		lastStatus int
	)
	for attempt := 0; attempt < c.retries; attempt++ {
		// Verify context is still alive before dialing
		if err := req.Context().Err(); err != nil {
			return nil, err
		}

		// The transport drains and closes the body on every attempt;
		// rewind it before reuse.
		if attempt > 0 && req.GetBody != nil {
			rb, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to rewind request body: %w", err)
			}
			req.Body = rb
		}

		slog.Debug("Network request", "host", req.URL.Host, "path", req.URL.Path, "attempt", attempt+1)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Distinguish our own cancellation from network failure
			if cerr := req.Context().Err(); cerr != nil {
				return nil, cerr
			}
			lastErr = err
			lastStatus = 0
			slog.Warn("Request failed, retrying", "url", req.URL, "attempt", attempt+1, "error", err)
			if attempt+1 < c.retries && !c.sleepBackoff(req.Context(), attempt, 0) {
				return nil, req.Context().Err()
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode < 600) {
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			resp.Body.Close()
			lastErr = nil
			lastStatus = resp.StatusCode
			slog.Warn("API backoff", "status", resp.StatusCode, "url", req.URL, "attempt", attempt+1)
			if attempt+1 < c.retries && !c.sleepBackoff(req.Context(), attempt, retryAfter) {
				return nil, req.Context().Err()
			}
			continue
		}

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("api error: status %d", resp.StatusCode)
		}

		// Success
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		return body, nil
	}

	if lastStatus == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%s: %w", req.URL.Host, ErrRateLimited)
	}
	if lastErr != nil {
		return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
	}
	return nil, fmt.Errorf("max retries exceeded: status %d", lastStatus)
}

// sleepBackoff waits out the exponential delay for attempt, or hint if
// the server asked for longer. Returns false if the context expired.
func (c *Client) sleepBackoff(ctx context.Context, attempt int, hint time.Duration) bool {
	delay := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
	if hint > delay {
		delay = hint
	}
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

// parseRetryAfter handles the delta-seconds form. The HTTP-date form
// is rare on the APIs we talk to and is ignored.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
