package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/sand/forex-wallet-app/backend/internal/core/fault"
)

// Client fetches exchange rates from an external rate provider over HTTP.
// Quotes are cached in redis for cacheTTL so the provider's refresh
// policy stays a tunable of this port, not of the order flow.
type Client struct {
	logger   *slog.Logger
	apiKey   string
	apiURL   string
	client   *http.Client
	cache    *redis.Client
	cacheTTL time.Duration
}

// NewClient creates a rate client. The redis cache is optional: passing
// nil or a zero TTL disables caching.
func NewClient(logger *slog.Logger, apiURL, apiKey string, timeout time.Duration, cache *redis.Client, cacheTTL time.Duration) *Client {
	if apiURL == "" {
		logger.Warn("rate provider url is empty, lookups will fail")
	}

	return &Client{
		logger:   logger,
		apiKey:   apiKey,
		apiURL:   apiURL,
		client:   &http.Client{Timeout: timeout},
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

type rateResponse struct {
	Rate string `json:"rate"`
}

// GetRate resolves the current rate for the currency pair.
func (c *Client) GetRate(ctx context.Context, baseCurrency, targetCurrency string) (decimal.Decimal, error) {
	cacheKey := fmt.Sprintf("fx:rate:%s:%s", baseCurrency, targetCurrency)

	if c.cache != nil && c.cacheTTL > 0 {
		if cached, err := c.cache.Get(ctx, cacheKey).Result(); err == nil {
			if rate, err := decimal.NewFromString(cached); err == nil {
				return rate, nil
			}
		}
	}

	if c.apiURL == "" {
		return decimal.Zero, fault.New(fault.CodeUnavailable, "rate provider is not configured")
	}

	endpoint := fmt.Sprintf("%s/rates?%s", c.apiURL, url.Values{
		"base":    {baseCurrency},
		"target":  {targetCurrency},
		"api_key": {c.apiKey},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create rate request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return decimal.Zero, fault.Wrap(fault.CodeDeadlineExceeded, "rate lookup timed out", err)
		}
		return decimal.Zero, fault.Wrap(fault.CodeUnavailable, "rate provider unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return decimal.Zero, fault.Newf(fault.CodeNotFound, "no rate for pair %s/%s", baseCurrency, targetCurrency)
	case resp.StatusCode != http.StatusOK:
		return decimal.Zero, fault.Newf(fault.CodeUnavailable, "rate provider returned status %d", resp.StatusCode)
	}

	var body rateResponse
	if err = json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fault.Wrap(fault.CodeUnavailable, "failed to decode rate response", err)
	}

	rate, err := decimal.NewFromString(body.Rate)
	if err != nil || !rate.IsPositive() {
		return decimal.Zero, fault.Newf(fault.CodeUnavailable, "rate provider returned invalid rate %q", body.Rate)
	}

	if c.cache != nil && c.cacheTTL > 0 {
		if err = c.cache.Set(ctx, cacheKey, rate.String(), c.cacheTTL).Err(); err != nil {
			c.logger.Warn("failed to cache rate", "pair", baseCurrency+"/"+targetCurrency, "error", err)
		}
	}

	c.logger.Debug("rate resolved", "pair", baseCurrency+"/"+targetCurrency, "rate", rate.String())

	return rate, nil
}
