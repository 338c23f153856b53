// backend/src/services/price_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/username/cointax/backend/src/logger"
)

// coinGeckoIDs maps ticker symbols to CoinGecko asset ids. Symbols missing
// here are tried lower-cased as-is, which works for many smaller assets.
var coinGeckoIDs = map[string]string{
	"BTC":   "bitcoin",
	"WBTC":  "wrapped-bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"ADA":   "cardano",
	"DOT":   "polkadot",
	"DOGE":  "dogecoin",
	"LTC":   "litecoin",
	"XRP":   "ripple",
	"XLM":   "stellar",
	"XMR":   "monero",
	"AVAX":  "avalanche-2",
	"MATIC": "matic-network",
	"LINK":  "chainlink",
	"UNI":   "uniswap",
	"ATOM":  "cosmos",
	"USDC":  "usd-coin",
	"USDT":  "tether",
}

// coinGeckoHistoryResponse is the slice of /coins/{id}/history we care about.
type coinGeckoHistoryResponse struct {
	MarketData struct {
		CurrentPrice map[string]float64 `json:"current_price"`
	} `json:"market_data"`
}

// priceServiceImpl fetches daily close prices from CoinGecko. Responses are
// cached per (coin, day); misses are also cached so one unlisted asset does
// not hammer the API once per ledger row. The limiter keeps the service
// inside CoinGecko's free-tier budget.
type priceServiceImpl struct {
	httpClient http.Client
	baseURL    string
	limiter    *rate.Limiter
	priceCache *cache.Cache
}

// NewPriceService creates a CoinGecko-backed price service.
func NewPriceService(baseURL string, cacheTTL time.Duration) PriceService {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}

	client := http.Client{
		Jar:     jar,
		Timeout: 20 * time.Second,
	}

	return &priceServiceImpl{
		httpClient: client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Every(6*time.Second), 2),
		priceCache: cache.New(cacheTTL, 2*cacheTTL),
	}
}

func cacheKey(coin string, date time.Time) string {
	return fmt.Sprintf("price_%s_%s", strings.ToUpper(coin), date.UTC().Format("2006-01-02"))
}

// GetPrice implements processors.PriceFetcher. It serves from cache when it
// can and falls through to a synchronous fetch otherwise.
func (s *priceServiceImpl) GetPrice(coin string, date time.Time) (decimal.Decimal, bool) {
	if strings.ToUpper(coin) == "USD" {
		return decimal.NewFromInt(1), true
	}
	key := cacheKey(coin, date)
	if cached, found := s.priceCache.Get(key); found {
		if price, ok := cached.(decimal.Decimal); ok {
			return price, true
		}
		return decimal.Zero, false // cached miss
	}

	price, err := s.fetchHistoricalPrice(context.Background(), coin, date)
	if err != nil {
		logger.L.Warn("Price fetch failed", "coin", coin, "date", date.Format("2006-01-02"), "error", err)
		s.priceCache.Set(key, false, cache.DefaultExpiration)
		return decimal.Zero, false
	}
	s.priceCache.Set(key, price, cache.NoExpiration)
	return price, true
}

// Prefetch warms the cache for every (coin, date) a run will need. Failures
// are tolerated; the run degrades to zero-basis anomalies for those rows.
func (s *priceServiceImpl) Prefetch(ctx context.Context, coinDates map[string][]time.Time) {
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	requested := 0
	var fetched atomic.Int64
	for coin, dates := range coinDates {
		for _, date := range dates {
			if _, found := s.priceCache.Get(cacheKey(coin, date)); found {
				continue
			}
			requested++
			coin, date := coin, date
			g.Go(func() error {
				price, err := s.fetchHistoricalPrice(ctx, coin, date)
				key := cacheKey(coin, date)
				if err != nil {
					logger.L.Debug("Prefetch miss", "coin", coin, "date", date.Format("2006-01-02"), "error", err)
					s.priceCache.Set(key, false, cache.DefaultExpiration)
					return nil
				}
				s.priceCache.Set(key, price, cache.NoExpiration)
				fetched.Add(1)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		logger.L.Warn("Price prefetch interrupted", "error", err)
	}
	logger.L.Info("Price prefetch complete",
		"requested", requested, "fetched", fetched.Load(), "duration", time.Since(start))
}

// fetchHistoricalPrice calls CoinGecko's history endpoint for one day.
func (s *priceServiceImpl) fetchHistoricalPrice(ctx context.Context, coin string, date time.Time) (decimal.Decimal, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	id := coinGeckoIDs[strings.ToUpper(coin)]
	if id == "" {
		id = strings.ToLower(coin)
	}
	// CoinGecko wants dd-mm-yyyy here.
	url := fmt.Sprintf("%s/coins/%s/history?date=%s&localization=false",
		s.baseURL, id, date.UTC().Format("02-01-2006"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("calling CoinGecko for %s: %w", coin, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("CoinGecko returned status %d for %s", resp.StatusCode, id)
	}

	var history coinGeckoHistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return decimal.Zero, fmt.Errorf("decoding CoinGecko response for %s: %w", id, err)
	}

	usd, ok := history.MarketData.CurrentPrice["usd"]
	if !ok || usd <= 0 {
		return decimal.Zero, fmt.Errorf("no USD price for %s on %s", id, date.Format("2006-01-02"))
	}
	return decimal.NewFromFloat(usd), nil
}
