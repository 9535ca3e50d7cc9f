package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"chartfeed/internal/logger"
	"chartfeed/internal/market"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultMaxAttempts = 3
	defaultBackoffBase = time.Second
	defaultCooldown    = 60 * time.Second
	defaultCount       = 500
	maxCount           = 5000
	maxResponseBytes   = 16 << 20

	// The upstream signals throttling either with HTTP 429 or with this
	// header set to "true" on an otherwise successful response. Both are
	// treated identically.
	rateLimitHeader = "X-Rate-Limited"
)

// Config describes one upstream candles endpoint.
type Config struct {
	BaseURL     string
	Token       string
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	Cooldown    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.Cooldown <= 0 {
		c.Cooldown = defaultCooldown
	}
	return c
}

// Client fetches candle pages from the upstream REST endpoint, retrying
// transient failures with exponential backoff and tracking a cooldown window
// once the upstream signals rate limiting. It knows nothing about caching.
type Client struct {
	cfg  Config
	http *http.Client

	mu            sync.Mutex
	token         string
	cooldownUntil time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

func New(cfg Config) *Client {
	final := cfg.withDefaults()
	return &Client{
		cfg:   final,
		http:  &http.Client{Timeout: final.Timeout},
		token: strings.TrimSpace(final.Token),
		now:   time.Now,
		sleep: sleepWithContext,
	}
}

func (c *Client) Name() string { return "rates" }

// UpdateToken swaps the bearer token without rebuilding the client.
func (c *Client) UpdateToken(token string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}

// IsRateLimited reports whether the cooldown deadline is still ahead of the
// clock. The CoolingDown state ends purely by passage of time.
func (c *Client) IsRateLimited() bool { return c.RetryDelay() > 0 }

// RetryDelay returns the remaining cooldown, or 0 when available.
func (c *Client) RetryDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.cooldownUntil.Sub(c.now())
	if d < 0 {
		return 0
	}
	return d
}

// tripCooldown starts a cooldown window of d, or of the configured default
// when the upstream gave no hint. Returns the window length.
func (c *Client) tripCooldown(d time.Duration) time.Duration {
	if d <= 0 {
		d = c.cfg.Cooldown
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cooldownUntil = c.now().Add(d)
	return d
}

func (c *Client) bearer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Fetch performs the candle request described by req. It fails immediately
// with *market.RateLimitedError while cooling down, retries other failures up
// to MaxAttempts with backoff, and aborts the retry loop the moment rate
// limiting is detected. Exhausted retries surface as *market.FetchError.
func (c *Client) Fetch(ctx context.Context, req market.FetchRequest) ([]market.Candle, error) {
	if delay := c.RetryDelay(); delay > 0 {
		return nil, &market.RateLimitedError{RetryAfter: delay}
	}
	if strings.TrimSpace(req.Instrument) == "" {
		return nil, &market.FetchError{Cause: fmt.Errorf("instrument is required")}
	}
	if !market.ValidGranularity(req.Granularity) {
		return nil, &market.FetchError{Cause: fmt.Errorf("unknown granularity %q", req.Granularity)}
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if !c.sleep(ctx, c.cfg.BackoffBase<<(attempt-1)) {
				return nil, &market.FetchError{Cause: ctx.Err()}
			}
		}
		bars, err := c.attempt(ctx, req)
		if err == nil {
			return bars, nil
		}
		if rl, ok := market.AsRateLimited(err); ok {
			logger.Warnf("[rates] rate limited %s %s, cooling down %s", req.Instrument, req.Granularity, rl.RetryAfter)
			return nil, rl
		}
		lastErr = err
		logger.Warnf("[rates] fetch %s %s attempt %d/%d failed: %v", req.Instrument, req.Granularity, attempt+1, c.cfg.MaxAttempts, err)
	}
	return nil, &market.FetchError{Cause: lastErr}
}

type candlesResponse struct {
	Instrument  string          `json:"instrument"`
	Granularity string          `json:"granularity"`
	Candles     []market.Candle `json:"candles"`
}

func (c *Client) attempt(ctx context.Context, req market.FetchRequest) ([]market.Candle, error) {
	count := req.Count
	if count <= 0 {
		count = defaultCount
	}
	if count > maxCount {
		count = maxCount
	}

	u, err := url.Parse(strings.TrimSuffix(strings.TrimSpace(c.cfg.BaseURL), "/") + "/candles")
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	q := u.Query()
	q.Set("instrument", req.Instrument)
	q.Set("granularity", market.NormalizeGranularity(req.Granularity))
	q.Set("count", strconv.Itoa(count))
	if req.Before > 0 {
		q.Set("before", strconv.FormatInt(req.Before, 10))
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if tok := c.bearer(); tok != "" {
		httpReq.Header.Set("Authorization", "Bearer "+tok)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if isRateLimitResponse(resp) {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &market.RateLimitedError{RetryAfter: c.tripCooldown(retryHint(snippet))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("upstream status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if err := validateResponse(body); err != nil {
		return nil, err
	}
	var payload candlesResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode candles response: %w", err)
	}
	// Absent candle list is a valid empty result, not an error.
	return payload.Candles, nil
}

// retryHint reads the optional retry_after_ms field of a throttle body.
func retryHint(body []byte) time.Duration {
	if ms := gjson.GetBytes(body, "retry_after_ms").Int(); ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return 0
}

func isRateLimitResponse(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(resp.Header.Get(rateLimitHeader)), "true")
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
