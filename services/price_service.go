package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agriconnect/agriconnect-api/config"
)

// rateCacheTTL bounds how stale a cached rate may be. A stale rate within
// this window is acceptable at checkout; a zero or absent rate is not.
const rateCacheTTL = 60 * time.Second

// PriceOracleInterface converts between the stable display currency and the
// ledger currency via an external rate feed
type PriceOracleInterface interface {
	// GetRate returns how many units of the quote currency one unit of the
	// base currency is worth (e.g. GetRate("ethereum", "inr") -> INR per ETH).
	// Fails with ErrOracleUnavailable when no usable rate can be produced.
	GetRate(ctx context.Context, baseCurrency, quoteCurrency string) (float64, error)
}

// PriceService fetches rates from a CoinGecko-compatible simple-price API,
// caching them in redis when a client is available
type PriceService struct {
	baseURL    string
	httpClient *http.Client
	cache      *redis.Client
}

var priceServiceInstance PriceOracleInterface

// InitPriceService initializes the price oracle. The redis client may be
// nil, in which case every call hits the feed.
func InitPriceService(cfg *config.Config, cache *redis.Client) PriceOracleInterface {
	priceServiceInstance = &PriceService{
		baseURL: cfg.PriceOracleURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache: cache,
	}
	return priceServiceInstance
}

// GetPriceService returns the initialized price oracle instance
func GetPriceService() PriceOracleInterface {
	return priceServiceInstance
}

// SetPriceService sets the price oracle instance (primarily for testing)
func SetPriceService(service PriceOracleInterface) {
	priceServiceInstance = service
}

// GetRate returns the current rate, preferring the cache
func (s *PriceService) GetRate(ctx context.Context, baseCurrency, quoteCurrency string) (float64, error) {
	cacheKey := fmt.Sprintf("rate:%s:%s", baseCurrency, quoteCurrency)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			if rate, parseErr := strconv.ParseFloat(cached, 64); parseErr == nil && rate > 0 {
				return rate, nil
			}
		}
	}

	rate, err := s.fetchRate(ctx, baseCurrency, quoteCurrency)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, strconv.FormatFloat(rate, 'f', -1, 64), rateCacheTTL).Err(); err != nil {
			log.Printf("warning: failed to cache rate %s: %v", cacheKey, err)
		}
	}

	return rate, nil
}

// fetchRate calls the simple-price endpoint and extracts the quote
func (s *PriceService) fetchRate(ctx context.Context, baseCurrency, quoteCurrency string) (float64, error) {
	url := fmt.Sprintf("%s/api/v3/simple/price?ids=%s&vs_currencies=%s", s.baseURL, baseCurrency, quoteCurrency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Printf("warning: failed to close oracle response body: %v", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: feed returned status %d", ErrOracleUnavailable, resp.StatusCode)
	}

	// Response shape: {"ethereum": {"inr": 245000.12}}
	var payload map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("%w: undecodable feed response: %v", ErrOracleUnavailable, err)
	}

	rate, ok := payload[baseCurrency][quoteCurrency]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("%w: no usable %s/%s rate in feed response", ErrOracleUnavailable, baseCurrency, quoteCurrency)
	}

	return rate, nil
}
