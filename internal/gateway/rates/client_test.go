package rates

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartfeed/internal/market"
)

const okBody = `{
	"instrument": "BTC_USDT",
	"granularity": "M1",
	"candles": [
		{"time": 100, "open": 1, "high": 2, "low": 0.5, "close": 1.5},
		{"time": 160, "open": 1.5, "high": 3, "low": 1, "close": 2}
	]
}`

// testClient wires a deterministic clock and a recording sleep so retry
// timing is observable without real waiting.
func testClient(srv *httptest.Server, cfg Config) (*Client, *[]time.Duration, *time.Time) {
	cfg.BaseURL = srv.URL
	c := New(cfg)
	now := time.Unix(1_700_000_000, 0)
	clock := &now
	c.now = func() time.Time { return *clock }
	sleeps := &[]time.Duration{}
	c.sleep = func(_ context.Context, d time.Duration) bool {
		*sleeps = append(*sleeps, d)
		return true
	}
	return c, sleeps, clock
}

func fetchReq() market.FetchRequest {
	return market.FetchRequest{Instrument: "BTC_USDT", Granularity: "M1", Count: 2}
}

func TestFetchSuccess(t *testing.T) {
	var gotURL, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, okBody)
	}))
	defer srv.Close()

	c, _, _ := testClient(srv, Config{Token: "secret"})
	bars, err := c.Fetch(context.Background(), market.FetchRequest{
		Instrument:  "BTC_USDT",
		Granularity: "m1",
		Count:       2,
		Before:      5000,
	})
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, int64(100), bars[0].Time)
	assert.Equal(t, 2.0, bars[1].Close)

	assert.Contains(t, gotURL, "/candles?")
	assert.Contains(t, gotURL, "instrument=BTC_USDT")
	assert.Contains(t, gotURL, "granularity=M1")
	assert.Contains(t, gotURL, "count=2")
	assert.Contains(t, gotURL, "before=5000")
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestFetchRetriesWithBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, okBody)
	}))
	defer srv.Close()

	c, sleeps, _ := testClient(srv, Config{})
	bars, err := c.Fetch(context.Background(), fetchReq())
	require.NoError(t, err)
	assert.Len(t, bars, 2)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *sleeps)
}

func TestFetchExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, sleeps, _ := testClient(srv, Config{})
	_, err := c.Fetch(context.Background(), fetchReq())
	require.Error(t, err)

	var fe *market.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Error(), "upstream status 500")
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *sleeps)
}

func TestFetchRateLimited429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, sleeps, _ := testClient(srv, Config{Cooldown: 60 * time.Second})
	_, err := c.Fetch(context.Background(), fetchReq())

	rl, ok := market.AsRateLimited(err)
	require.True(t, ok)
	assert.Equal(t, 60*time.Second, rl.RetryAfter)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, *sleeps)
	assert.True(t, c.IsRateLimited())

	// While cooling down the next call fails fast without touching the wire.
	_, err = c.Fetch(context.Background(), fetchReq())
	_, ok = market.AsRateLimited(err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRateLimitHonorsRetryHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"retry_after_ms": 5000}`)
	}))
	defer srv.Close()

	c, _, _ := testClient(srv, Config{Cooldown: 60 * time.Second})
	_, err := c.Fetch(context.Background(), fetchReq())
	rl, ok := market.AsRateLimited(err)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, rl.RetryAfter)
	assert.Equal(t, 5*time.Second, c.RetryDelay())
}

func TestFetchRateLimitedHeaderOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Rate-Limited", "true")
		fmt.Fprint(w, okBody)
	}))
	defer srv.Close()

	c, _, _ := testClient(srv, Config{})
	_, err := c.Fetch(context.Background(), fetchReq())
	_, ok := market.AsRateLimited(err)
	assert.True(t, ok)
	assert.True(t, c.IsRateLimited())
}

func TestRateLimitAbortsRetryLoop(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, sleeps, _ := testClient(srv, Config{})
	_, err := c.Fetch(context.Background(), fetchReq())
	_, ok := market.AsRateLimited(err)
	require.True(t, ok)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []time.Duration{time.Second}, *sleeps)
}

func TestCooldownExpiresByClock(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, okBody)
	}))
	defer srv.Close()

	c, _, clock := testClient(srv, Config{Cooldown: 60 * time.Second})
	_, err := c.Fetch(context.Background(), fetchReq())
	_, ok := market.AsRateLimited(err)
	require.True(t, ok)
	assert.True(t, c.IsRateLimited())

	*clock = clock.Add(61 * time.Second)
	assert.False(t, c.IsRateLimited())

	bars, err := c.Fetch(context.Background(), fetchReq())
	require.NoError(t, err)
	assert.Len(t, bars, 2)
}

func TestFetchAbsentCandlesIsEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"instrument": "BTC_USDT", "granularity": "M1"}`)
	}))
	defer srv.Close()

	c, _, _ := testClient(srv, Config{})
	bars, err := c.Fetch(context.Background(), fetchReq())
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestFetchRejectsMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candles": [{"time": 100, "open": 1}]}`)
	}))
	defer srv.Close()

	c, _, _ := testClient(srv, Config{MaxAttempts: 1})
	_, err := c.Fetch(context.Background(), fetchReq())
	var fe *market.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, err.Error(), "schema")
}

func TestFetchValidatesRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	defer srv.Close()

	c, _, _ := testClient(srv, Config{})
	_, err := c.Fetch(context.Background(), market.FetchRequest{Granularity: "M1"})
	var fe *market.FetchError
	assert.ErrorAs(t, err, &fe)

	_, err = c.Fetch(context.Background(), market.FetchRequest{Instrument: "BTC_USDT", Granularity: "M3"})
	assert.ErrorAs(t, err, &fe)
}

func TestUpdateToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, okBody)
	}))
	defer srv.Close()

	c, _, _ := testClient(srv, Config{Token: "old"})
	c.UpdateToken("new")
	_, err := c.Fetch(context.Background(), fetchReq())
	require.NoError(t, err)
	assert.Equal(t, "Bearer new", gotAuth)
}
