package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// binanceTicker fetches symbol's current USD price from Binance's
// public ticker endpoint, matching market_sentinel.py's fetch_price
// before its cross-process file cache. Used both as the sentinel's
// PriceFetcher and as the arb hunters' ethPriceUSD source.
func binanceTicker(ctx context.Context, symbol string) (float64, error) {
	url := fmt.Sprintf("https://api.binance.com/api/v3/ticker/price?symbol=%s", symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	var out struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("binanceTicker: decode response: %w", err)
	}
	var price float64
	if _, err := fmt.Sscanf(out.Price, "%f", &price); err != nil {
		return 0, fmt.Errorf("binanceTicker: parse price %q: %w", out.Price, err)
	}
	return price, nil
}

// ethPriceCache is a lazily-refreshed, lock-protected ETHUSDT quote the
// arb hunters poll synchronously on every scored opportunity; a 5s TTL
// keeps this off the Binance rate limit without the hunters blocking
// on network I/O per call, matching the sentinel's own cache TTL.
type ethPriceCache struct {
	mu        sync.Mutex
	price     float64
	fetchedAt time.Time
	ttl       time.Duration
}

func newEthPriceCache() *ethPriceCache {
	return &ethPriceCache{ttl: 5 * time.Second, price: 3000} // conservative fallback
}

func (c *ethPriceCache) get() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Since(c.fetchedAt) < c.ttl {
		return c.price
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	price, err := binanceTicker(ctx, "ETHUSDT")
	if err != nil || price == 0 {
		return c.price // keep last known good value
	}
	c.price = price
	c.fetchedAt = time.Now()
	return c.price
}
