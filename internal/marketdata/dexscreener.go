package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"memeWatch/internal/model"
)

const defaultDexScreenerURL = "https://api.dexscreener.com"

// DexScreenerConfig holds DexScreener client settings.
type DexScreenerConfig struct {
	BaseURL      string
	RateLimit    float64
	MaxRetries   int
	RetryBackoff time.Duration
	Timeout      time.Duration
}

// DexScreener reads price, market cap and volume from the DexScreener API.
type DexScreener struct {
	baseURL string
	client  *retryablehttp.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// NewDexScreener creates a DexScreener client.
func NewDexScreener(cfg DexScreenerConfig) *DexScreener {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultDexScreenerURL
	}

	c := retryablehttp.NewClient()
	c.RetryMax = cfg.MaxRetries
	if cfg.RetryBackoff > 0 {
		c.RetryWaitMin = cfg.RetryBackoff
		c.RetryWaitMax = 8 * cfg.RetryBackoff
	}
	if cfg.Timeout > 0 {
		c.HTTPClient.Timeout = cfg.Timeout
	}
	c.Logger = nil

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &DexScreener{
		baseURL: base,
		client:  c,
		limiter: rate.NewLimiter(limit, 1),
		now:     nowUTC,
	}
}

type dexPair struct {
	BaseToken struct {
		Address string `json:"address"`
	} `json:"baseToken"`
	PriceUsd  string   `json:"priceUsd"`
	MarketCap *float64 `json:"marketCap"`
	Fdv       *float64 `json:"fdv"`
	Liquidity struct {
		Usd float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		M5 float64 `json:"m5"`
		H1 float64 `json:"h1"`
	} `json:"volume"`
}

type dexTokensResponse struct {
	Pairs []dexPair `json:"pairs"`
}

// FetchSnapshot implements Source. Holders are left at zero.
func (d *DexScreener) FetchSnapshot(ctx context.Context, address string) (model.MetricsSnapshot, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return model.MetricsSnapshot{}, err
	}

	endpoint := fmt.Sprintf("%s/latest/dex/tokens/%s", d.baseURL, url.PathEscape(address))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.MetricsSnapshot{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return model.MetricsSnapshot{}, fmt.Errorf("dexscreener request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.MetricsSnapshot{}, fmt.Errorf("dexscreener unexpected status code: %d", resp.StatusCode)
	}

	var payload dexTokensResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return model.MetricsSnapshot{}, fmt.Errorf("failed to decode dexscreener response: %w", err)
	}

	pair, ok := bestPair(payload.Pairs, address)
	if !ok {
		return model.MetricsSnapshot{}, fmt.Errorf("%w: %s", ErrNoMarket, address)
	}
	return pairSnapshot(pair, d.now())
}

// bestPair picks the pair with the deepest USD liquidity where the token is
// the base asset.
func bestPair(pairs []dexPair, address string) (dexPair, bool) {
	var best dexPair
	found := false
	for _, p := range pairs {
		if p.BaseToken.Address != address {
			continue
		}
		if !found || p.Liquidity.Usd > best.Liquidity.Usd {
			best = p
			found = true
		}
	}
	return best, found
}

func pairSnapshot(p dexPair, at time.Time) (model.MetricsSnapshot, error) {
	price, err := strconv.ParseFloat(strings.TrimSpace(p.PriceUsd), 64)
	if err != nil {
		return model.MetricsSnapshot{}, fmt.Errorf("invalid priceUsd %q: %w", p.PriceUsd, err)
	}

	var marketCap float64
	switch {
	case p.MarketCap != nil:
		marketCap = *p.MarketCap
	case p.Fdv != nil:
		marketCap = *p.Fdv
	}

	v15, v30 := estimateVolumes(p.Volume.M5, p.Volume.H1)
	snap := model.MetricsSnapshot{
		MarketCap: marketCap,
		Price:     price,
		Volume5m:  p.Volume.M5,
		Volume15m: v15,
		Volume30m: v30,
		Timestamp: at,
	}
	return snap, snap.Validate()
}

// estimateVolumes derives 15m and 30m volumes from the hourly figure. The API
// only reports m5 and h1 windows.
func estimateVolumes(m5, h1 float64) (float64, float64) {
	v15 := h1 / 4
	if v15 < m5 {
		v15 = m5
	}
	v30 := h1 / 2
	if v30 < v15 {
		v30 = v15
	}
	return v15, v30
}
