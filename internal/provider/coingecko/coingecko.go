package coingecko

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"
    "time"

    "go.uber.org/zap"

    "marketagg/internal/httpx"
    "marketagg/internal/provider"
)

const (
    baseURL    = "https://api.coingecko.com/api/v3"
    proBaseURL = "https://pro-api.coingecko.com/api/v3"
)

// Provider serves crypto quotes from the CoinGecko REST API.
// Symbols are lowercase CoinGecko coin ids ("bitcoin", "ethereum", ...).
// CoinGecko's WebSocket needs a paid plan, so streaming polls /simple/price.
type Provider struct {
    cfg    Config
    client *httpx.Client
    logger *zap.Logger
}

type Config struct {
    Name          string
    Endpoint      string // overrides base URL selection when set (tests)
    APIKey        string
    UseProAPI     bool
    OverviewLimit int
    PollInterval  time.Duration
}

func New(cfg Config, hc *httpx.Client, logger *zap.Logger) *Provider {
    if cfg.Name == "" { cfg.Name = "CoinGecko" }
    if cfg.Endpoint == "" {
        if cfg.APIKey != "" || cfg.UseProAPI {
            cfg.Endpoint = proBaseURL
        } else {
            cfg.Endpoint = baseURL
        }
    }
    if cfg.OverviewLimit <= 0 { cfg.OverviewLimit = 10 }
    if cfg.PollInterval <= 0 { cfg.PollInterval = 10 * time.Second }
    if logger == nil { logger = zap.NewNop() }
    return &Provider{cfg: cfg, client: hc, logger: logger}
}

func (p *Provider) Name() string            { return p.cfg.Name }
func (p *Provider) Source() provider.Source { return provider.SourceCrypto }

func normalizeID(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (p *Provider) get(ctx context.Context, path string, params url.Values, dst any) error {
    u := fmt.Sprintf("%s%s?%s", p.cfg.Endpoint, path, params.Encode())
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
    if err != nil { return err }
    req.Header.Set("Accept", "application/json")
    if p.cfg.APIKey != "" {
        req.Header.Set("x-cg-pro-api-key", p.cfg.APIKey)
    }
    resp, err := p.client.Do(ctx, req)
    if err != nil { return provider.WrapTransport(p.cfg.Name, err) }
    defer resp.Body.Close()

    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
        return provider.Upstream(p.cfg.Name, fmt.Errorf("GET %s -> %d: %s", path, resp.StatusCode, string(b)))
    }
    if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
        return provider.Upstream(p.cfg.Name, fmt.Errorf("decode %s: %w", path, err))
    }
    return nil
}

// simplePriceRow is one coin's row in a /simple/price response.
type simplePriceRow struct {
    USD           *float64 `json:"usd"`
    USDMarketCap  *float64 `json:"usd_market_cap"`
    USD24hVol     *float64 `json:"usd_24h_vol"`
    USD24hChange  *float64 `json:"usd_24h_change"`
    LastUpdatedAt *int64   `json:"last_updated_at"`
}

func (p *Provider) quoteFromSimplePrice(coinID string, row simplePriceRow) provider.Quote {
    ts := time.Now().UTC()
    if row.LastUpdatedAt != nil {
        ts = time.Unix(*row.LastUpdatedAt, 0).UTC()
    }
    meta := map[string]any{}
    if row.USDMarketCap != nil { meta["market_cap"] = provider.Round2(*row.USDMarketCap) }
    if row.USD24hChange != nil { meta["change_24h"] = provider.Round2(*row.USD24hChange) }
    return provider.Quote{
        Source:    provider.SourceCrypto,
        Symbol:    coinID,
        Value:     provider.Round2(*row.USD),
        Volume:    provider.Round2Ptr(row.USD24hVol),
        Timestamp: ts,
        Metadata:  meta,
    }
}

// GetQuote fetches the current USD price for a coin id.
func (p *Provider) GetQuote(ctx context.Context, symbol string) (provider.Quote, error) {
    coinID := normalizeID(symbol)
    params := url.Values{
        "ids":                     {coinID},
        "vs_currencies":           {"usd"},
        "include_market_cap":      {"true"},
        "include_24hr_vol":        {"true"},
        "include_24hr_change":     {"true"},
        "include_last_updated_at": {"true"},
    }
    var data map[string]simplePriceRow
    if err := p.get(ctx, "/simple/price", params, &data); err != nil {
        return provider.Quote{}, err
    }
    row, ok := data[coinID]
    if !ok || row.USD == nil {
        return provider.Quote{}, provider.NotFound(coinID)
    }
    return p.quoteFromSimplePrice(coinID, row), nil
}

// marketItem is one row in a /coins/markets response.
type marketItem struct {
    ID             string   `json:"id"`
    CurrentPrice   *float64 `json:"current_price"`
    MarketCap      *float64 `json:"market_cap"`
    TotalVolume    *float64 `json:"total_volume"`
    PriceChange24h *float64 `json:"price_change_percentage_24h"`
}

// GetOverviewQuotes fetches the top coins by market cap in a single call.
func (p *Provider) GetOverviewQuotes(ctx context.Context) ([]provider.Quote, error) {
    params := url.Values{
        "vs_currency": {"usd"},
        "per_page":    {fmt.Sprintf("%d", p.cfg.OverviewLimit)},
        "page":        {"1"},
        "sparkline":   {"false"},
    }
    var items []marketItem
    if err := p.get(ctx, "/coins/markets", params, &items); err != nil {
        return nil, err
    }
    now := time.Now().UTC()
    out := make([]provider.Quote, 0, len(items))
    for _, it := range items {
        if it.CurrentPrice == nil { continue }
        meta := map[string]any{}
        if it.MarketCap != nil { meta["market_cap"] = provider.Round2(*it.MarketCap) }
        if it.PriceChange24h != nil { meta["change_24h"] = provider.Round2(*it.PriceChange24h) }
        out = append(out, provider.Quote{
            Source:    provider.SourceCrypto,
            Symbol:    it.ID,
            Value:     provider.Round2(*it.CurrentPrice),
            Volume:    provider.Round2Ptr(it.TotalVolume),
            Timestamp: now,
            Metadata:  meta,
        })
    }
    return out, nil
}

// GetHistory fetches price points in [start, end], joining the sibling
// volume and market-cap series by their millisecond timestamps.
func (p *Provider) GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]provider.Quote, error) {
    coinID := normalizeID(symbol)
    params := url.Values{
        "vs_currency": {"usd"},
        "from":        {fmt.Sprintf("%d", start.Unix())},
        "to":          {fmt.Sprintf("%d", end.Unix())},
    }
    var data struct {
        Prices       [][]float64 `json:"prices"`
        TotalVolumes [][]float64 `json:"total_volumes"`
        MarketCaps   [][]float64 `json:"market_caps"`
    }
    if err := p.get(ctx, "/coins/"+url.PathEscape(coinID)+"/market_chart/range", params, &data); err != nil {
        return nil, err
    }

    volumeByTS := make(map[int64]float64, len(data.TotalVolumes))
    for _, v := range data.TotalVolumes {
        if len(v) >= 2 { volumeByTS[int64(v[0])] = v[1] }
    }
    mcapByTS := make(map[int64]float64, len(data.MarketCaps))
    for _, m := range data.MarketCaps {
        if len(m) >= 2 { mcapByTS[int64(m[0])] = m[1] }
    }

    out := make([]provider.Quote, 0, len(data.Prices))
    for _, pt := range data.Prices {
        if len(pt) < 2 { continue }
        tsMS := int64(pt[0])
        meta := map[string]any{}
        if mc, ok := mcapByTS[tsMS]; ok { meta["market_cap"] = provider.Round2(mc) }
        var volume *float64
        if v, ok := volumeByTS[tsMS]; ok && v > 0 {
            volume = provider.Float64Ptr(provider.Round2(v))
        }
        out = append(out, provider.Quote{
            Source:    provider.SourceCrypto,
            Symbol:    coinID,
            Value:     provider.Round2(pt[1]),
            Volume:    volume,
            Timestamp: time.UnixMilli(tsMS).UTC(),
            Metadata:  meta,
        })
    }
    return out, nil
}

// Stream polls /simple/price with a lighter params set and emits on change.
func (p *Provider) Stream(ctx context.Context, symbols []string) (<-chan provider.Quote, error) {
    ids := make([]string, 0, len(symbols))
    for _, s := range symbols {
        if n := normalizeID(s); n != "" { ids = append(ids, n) }
    }
    cfg := provider.PollConfig{
        Interval:     p.cfg.PollInterval,
        DedupByValue: true,
        Logger:       p.logger,
    }
    return provider.PollQuotes(ctx, ids, cfg, p.fetchBatch), nil
}

func (p *Provider) fetchBatch(ctx context.Context, ids []string) ([]provider.Quote, error) {
    params := url.Values{
        "ids":                     {strings.Join(ids, ",")},
        "vs_currencies":           {"usd"},
        "include_last_updated_at": {"true"},
    }
    var data map[string]simplePriceRow
    if err := p.get(ctx, "/simple/price", params, &data); err != nil {
        return nil, err
    }
    out := make([]provider.Quote, 0, len(ids))
    for _, id := range ids {
        row, ok := data[id]
        if !ok || row.USD == nil { continue }
        out = append(out, p.quoteFromSimplePrice(id, row))
    }
    return out, nil
}

// Refresh is a no-op: the provider keeps no local cache.
func (p *Provider) Refresh(ctx context.Context) error { return nil }

// Close is a no-op: the HTTP client is shared and owned by the caller.
func (p *Provider) Close() error { return nil }
