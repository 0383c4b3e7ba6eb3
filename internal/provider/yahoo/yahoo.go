package yahoo

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"
    "sync"
    "time"

    "go.uber.org/zap"

    "marketagg/internal/httpx"
    "marketagg/internal/provider"
)

// Provider serves equity quotes from the Yahoo Finance chart API.
// Symbols are uppercase tickers. Yahoo has no push transport, so streaming
// polls the chart endpoint.
type Provider struct {
    cfg    Config
    client *httpx.Client
    logger *zap.Logger
}

type Config struct {
    Name            string
    Endpoint        string // chart API base, no trailing slash
    OverviewSymbols []string
    PollInterval    time.Duration
}

func New(cfg Config, hc *httpx.Client, logger *zap.Logger) *Provider {
    if cfg.Name == "" { cfg.Name = "YahooFinance" }
    if cfg.Endpoint == "" { cfg.Endpoint = "https://query1.finance.yahoo.com/v8/finance/chart" }
    if len(cfg.OverviewSymbols) == 0 {
        cfg.OverviewSymbols = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA"}
    }
    if cfg.PollInterval <= 0 { cfg.PollInterval = 15 * time.Second }
    if logger == nil { logger = zap.NewNop() }
    return &Provider{cfg: cfg, client: hc, logger: logger}
}

func (p *Provider) Name() string            { return p.cfg.Name }
func (p *Provider) Source() provider.Source { return provider.SourceEquity }

func normalizeSymbol(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

// chartResponse is the shape of the Yahoo Finance chart API payload.
type chartResponse struct {
    Chart struct {
        Result []chartResult `json:"result"`
        Error  *struct {
            Code        string `json:"code"`
            Description string `json:"description"`
        } `json:"error"`
    } `json:"chart"`
}

type chartResult struct {
    Meta struct {
        Symbol              string  `json:"symbol"`
        RegularMarketPrice  float64 `json:"regularMarketPrice"`
        RegularMarketVolume float64 `json:"regularMarketVolume"`
        ChartPreviousClose  float64 `json:"chartPreviousClose"`
        RegularMarketTime   int64   `json:"regularMarketTime"`
    } `json:"meta"`
    Timestamp  []int64 `json:"timestamp"`
    Indicators struct {
        Quote []struct {
            Open   []any `json:"open"`
            High   []any `json:"high"`
            Low    []any `json:"low"`
            Close  []any `json:"close"`
            Volume []any `json:"volume"`
        } `json:"quote"`
    } `json:"indicators"`
}

func toFloat(v any) float64 {
    switch n := v.(type) {
    case float64:
        return n
    case int:
        return float64(n)
    default:
        return 0
    }
}

func (p *Provider) fetchChart(ctx context.Context, symbol string, params url.Values) (*chartResult, error) {
    u := fmt.Sprintf("%s/%s?%s", p.cfg.Endpoint, url.PathEscape(symbol), params.Encode())
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
    if err != nil { return nil, err }
    resp, err := p.client.Do(ctx, req)
    if err != nil { return nil, provider.WrapTransport(p.cfg.Name, err) }
    defer resp.Body.Close()

    body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
    if err != nil { return nil, provider.WrapTransport(p.cfg.Name, err) }
    // Yahoo answers 404 with a chart.error body for unknown tickers.
    if resp.StatusCode == http.StatusNotFound {
        return nil, provider.NotFound(symbol)
    }
    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        return nil, provider.FromStatus(p.cfg.Name, symbol, resp.StatusCode)
    }

    var chart chartResponse
    if err := json.Unmarshal(body, &chart); err != nil {
        return nil, provider.Upstream(p.cfg.Name, fmt.Errorf("decode chart: %w", err))
    }
    if chart.Chart.Error != nil {
        if strings.EqualFold(chart.Chart.Error.Code, "not found") {
            return nil, provider.NotFound(symbol)
        }
        return nil, provider.Upstream(p.cfg.Name, fmt.Errorf("chart error: %s", chart.Chart.Error.Description))
    }
    if len(chart.Chart.Result) == 0 {
        return nil, provider.NotFound(symbol)
    }
    return &chart.Chart.Result[0], nil
}

// GetQuote fetches the latest regular-market price for a ticker.
func (p *Provider) GetQuote(ctx context.Context, symbol string) (provider.Quote, error) {
    sym := normalizeSymbol(symbol)
    params := url.Values{"interval": {"1d"}, "range": {"1d"}}
    res, err := p.fetchChart(ctx, sym, params)
    if err != nil { return provider.Quote{}, err }

    price := res.Meta.RegularMarketPrice
    if price == 0 {
        return provider.Quote{}, provider.NotFound(sym)
    }
    ts := time.Now().UTC()
    if res.Meta.RegularMarketTime > 0 {
        ts = time.Unix(res.Meta.RegularMarketTime, 0).UTC()
    }
    meta := map[string]any{}
    if prev := res.Meta.ChartPreviousClose; prev > 0 {
        meta["previous_close"] = provider.Round2(prev)
        meta["change_24h"] = provider.Round2((price - prev) / prev * 100)
    }
    var volume *float64
    if res.Meta.RegularMarketVolume > 0 {
        volume = provider.Float64Ptr(res.Meta.RegularMarketVolume)
    }
    return provider.Quote{
        Source:    provider.SourceEquity,
        Symbol:    sym,
        Value:     provider.Round2(price),
        Volume:    volume,
        Timestamp: ts,
        Metadata:  meta,
    }, nil
}

// GetOverviewQuotes fetches the overview set concurrently; per-symbol
// failures are logged and dropped, never propagated.
func (p *Provider) GetOverviewQuotes(ctx context.Context) ([]provider.Quote, error) {
    results := make([]*provider.Quote, len(p.cfg.OverviewSymbols))
    var wg sync.WaitGroup
    for i, sym := range p.cfg.OverviewSymbols {
        wg.Add(1)
        go func(i int, sym string) {
            defer wg.Done()
            q, err := p.GetQuote(ctx, sym)
            if err != nil {
                p.logger.Warn("overview quote failed", zap.String("symbol", sym), zap.Error(err))
                return
            }
            results[i] = &q
        }(i, sym)
    }
    wg.Wait()
    out := make([]provider.Quote, 0, len(results))
    for _, q := range results {
        if q != nil { out = append(out, *q) }
    }
    return out, nil
}

// GetHistory fetches daily bars between start and end. Null bars
// (holidays, halts) are skipped.
func (p *Provider) GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]provider.Quote, error) {
    sym := normalizeSymbol(symbol)
    params := url.Values{
        "interval": {"1d"},
        "period1":  {fmt.Sprintf("%d", start.Unix())},
        "period2":  {fmt.Sprintf("%d", end.Unix())},
    }
    res, err := p.fetchChart(ctx, sym, params)
    if err != nil { return nil, err }
    if len(res.Indicators.Quote) == 0 {
        return nil, nil
    }
    bars := res.Indicators.Quote[0]
    // Yahoo occasionally returns ragged indicator arrays; bound the walk
    // by the shortest series rather than trusting close's length.
    n := len(res.Timestamp)
    for _, series := range [][]any{bars.Open, bars.High, bars.Low, bars.Close} {
        if len(series) < n { n = len(series) }
    }
    out := make([]provider.Quote, 0, n)
    for i := 0; i < n; i++ {
        ts := res.Timestamp[i]
        o, h, l, c := toFloat(bars.Open[i]), toFloat(bars.High[i]), toFloat(bars.Low[i]), toFloat(bars.Close[i])
        if o == 0 && h == 0 && l == 0 && c == 0 { continue }
        var volume *float64
        if i < len(bars.Volume) {
            if v := toFloat(bars.Volume[i]); v > 0 { volume = provider.Float64Ptr(v) }
        }
        out = append(out, provider.Quote{
            Source:    provider.SourceEquity,
            Symbol:    sym,
            Value:     provider.Round2(c),
            Volume:    volume,
            Timestamp: time.Unix(ts, 0).UTC(),
            Metadata: map[string]any{
                "open": provider.Round2(o),
                "high": provider.Round2(h),
                "low":  provider.Round2(l),
            },
        })
    }
    return out, nil
}

// Stream polls the chart API per interval and emits on value change.
func (p *Provider) Stream(ctx context.Context, symbols []string) (<-chan provider.Quote, error) {
    syms := make([]string, 0, len(symbols))
    for _, s := range symbols {
        if n := normalizeSymbol(s); n != "" { syms = append(syms, n) }
    }
    cfg := provider.PollConfig{
        Interval:     p.cfg.PollInterval,
        DedupByValue: true,
        Logger:       p.logger,
    }
    return provider.PollQuotes(ctx, syms, cfg, p.fetchBatch), nil
}

func (p *Provider) fetchBatch(ctx context.Context, symbols []string) ([]provider.Quote, error) {
    out := make([]provider.Quote, 0, len(symbols))
    for _, sym := range symbols {
        q, err := p.GetQuote(ctx, sym)
        if err != nil {
            if ctx.Err() != nil { return out, ctx.Err() }
            p.logger.Debug("stream fetch failed", zap.String("symbol", sym), zap.Error(err))
            continue
        }
        out = append(out, q)
    }
    return out, nil
}

// Refresh is a no-op: the provider keeps no local cache.
func (p *Provider) Refresh(ctx context.Context) error { return nil }

// Close is a no-op: the HTTP client is shared and owned by the caller.
func (p *Provider) Close() error { return nil }
