package rates

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sand/forex-wallet-app/backend/internal/core/fault"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClientFetchesRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rates", r.URL.Path)
		require.Equal(t, "USD", r.URL.Query().Get("base"))
		require.Equal(t, "EUR", r.URL.Query().Get("target"))
		require.Equal(t, "secret", r.URL.Query().Get("api_key"))
		_, _ = w.Write([]byte(`{"rate":"1.1045"}`))
	}))
	defer server.Close()

	c := NewClient(testLogger(), server.URL, "secret", time.Second, nil, 0)

	rate, err := c.GetRate(context.Background(), "USD", "EUR")
	require.NoError(t, err)
	require.True(t, rate.Equal(decimal.RequireFromString("1.1045")))
}

func TestClientServesSecondLookupFromCache(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = w.Write([]byte(`{"rate":"1.10"}`))
	}))
	defer server.Close()

	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	c := NewClient(testLogger(), server.URL, "", time.Second, cache, time.Minute)
	ctx := context.Background()

	first, err := c.GetRate(ctx, "USD", "EUR")
	require.NoError(t, err)
	second, err := c.GetRate(ctx, "USD", "EUR")
	require.NoError(t, err)

	require.True(t, first.Equal(second))
	require.Equal(t, 1, hits, "second lookup served from cache")

	// Different pair misses the cache.
	_, err = c.GetRate(ctx, "EUR", "USD")
	require.NoError(t, err)
	require.Equal(t, 2, hits)
}

func TestClientUnknownPairIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient(testLogger(), server.URL, "", time.Second, nil, 0)

	_, err := c.GetRate(context.Background(), "USD", "XXX")
	require.Equal(t, fault.CodeNotFound, fault.CodeOf(err))
	require.False(t, fault.IsTransient(err), "an unknown pair never resolves by retrying")
}

func TestClientProviderErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(testLogger(), server.URL, "", time.Second, nil, 0)

	_, err := c.GetRate(context.Background(), "USD", "EUR")
	require.Equal(t, fault.CodeUnavailable, fault.CodeOf(err))
	require.True(t, fault.IsTransient(err))
}

func TestClientTimeoutIsDeadlineExceeded(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	c := NewClient(testLogger(), server.URL, "", time.Minute, nil, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.GetRate(ctx, "USD", "EUR")
	require.Equal(t, fault.CodeDeadlineExceeded, fault.CodeOf(err))
	require.True(t, fault.IsTransient(err))
}

func TestClientRejectsInvalidRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"rate":"-1"}`))
	}))
	defer server.Close()

	c := NewClient(testLogger(), server.URL, "", time.Second, nil, 0)

	_, err := c.GetRate(context.Background(), "USD", "EUR")
	require.Equal(t, fault.CodeUnavailable, fault.CodeOf(err))
}

func TestStaticResolvesConfiguredAndInversePairs(t *testing.T) {
	s, err := NewStatic(map[string]string{"USD/EUR": "0.80"})
	require.NoError(t, err)

	rate, err := s.GetRate(context.Background(), "USD", "EUR")
	require.NoError(t, err)
	require.True(t, rate.Equal(decimal.RequireFromString("0.80")))

	inverse, err := s.GetRate(context.Background(), "EUR", "USD")
	require.NoError(t, err)
	require.True(t, inverse.Equal(decimal.RequireFromString("1.25")))

	_, err = s.GetRate(context.Background(), "USD", "JPY")
	require.Equal(t, fault.CodeNotFound, fault.CodeOf(err))
}
