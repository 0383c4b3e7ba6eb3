package main

import (
    "context"
    "encoding/json"
    "flag"
    "fmt"
    "log"
    "net/http"
    "os"
    "strings"
    "time"

    "go.uber.org/zap"

    "marketagg/internal/agg"
    "marketagg/internal/config"
    "marketagg/internal/httpx"
    "marketagg/internal/provider"
    "marketagg/internal/provider/coingecko"
    "marketagg/internal/provider/gamma"
    "marketagg/internal/provider/polymarket"
    "marketagg/internal/provider/yahoo"
)

// One-shot fetch across the configured sources, printing JSON for
// inspection. Examples:
//
//    fetch -source equity -symbols AAPL,MSFT
//    fetch -source crypto -symbols bitcoin,ethereum
//    fetch -source prediction -symbols will-btc-hit-100k
//    fetch -overview
func main() {
    var source string
    var symbolsCSV string
    var overview bool
    var timeout int
    var configPath string

    flag.StringVar(&source, "source", getenv("SOURCE", "equity"), "source: equity, crypto or prediction")
    flag.StringVar(&symbolsCSV, "symbols", getenv("SYMBOLS", ""), "comma-separated symbols")
    flag.BoolVar(&overview, "overview", false, "fetch the overview across all sources instead of symbols")
    flag.IntVar(&timeout, "timeout", getenvInt("REQUEST_TIMEOUT_SEC", 15), "request timeout seconds")
    flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.json (optional)")
    flag.Parse()

    cfg, err := config.Load(configPath)
    if err != nil { log.Fatalf("config: %v", err) }
    if timeout != 0 { cfg.Server.RequestTimeoutSec = timeout }

    httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
    logger := zap.NewNop()

    var providers []provider.Provider
    if cfg.Yahoo.Enabled {
        providers = append(providers, yahoo.New(yahoo.Config{
            Endpoint:        cfg.Yahoo.Endpoint,
            OverviewSymbols: cfg.Yahoo.OverviewSymbols,
        }, httpClient, logger))
    }
    if cfg.CoinGecko.Enabled {
        providers = append(providers, coingecko.New(coingecko.Config{
            APIKey:        cfg.CoinGecko.APIKey,
            UseProAPI:     cfg.CoinGecko.UseProAPI,
            OverviewLimit: cfg.CoinGecko.OverviewLimit,
        }, httpClient, logger))
    }
    if cfg.Polymarket.Enabled {
        catalog, err := gamma.NewClient(
            gamma.WithBaseURL(cfg.Polymarket.GammaEndpoint),
            gamma.WithHTTPClient(httpClient.HTTP),
            gamma.WithHeader(http.Header{"User-Agent": []string{"market-agg/1.0"}}),
        )
        if err != nil { log.Fatalf("gamma client: %v", err) }
        providers = append(providers, polymarket.New(polymarket.Config{
            WSEndpoint:    cfg.Polymarket.ClobWSEndpoint,
            OverviewLimit: cfg.Polymarket.OverviewLimit,
        }, catalog, logger))
    }
    if len(providers) == 0 {
        log.Fatal("no providers enabled; check config.json or env overrides")
    }

    svc := agg.New(logger, providers...)
    defer svc.Close()

    ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.RequestTimeoutSec)*time.Second)
    defer cancel()

    var quotes []provider.Quote
    if overview {
        quotes, err = svc.Overview(ctx)
        if err != nil { log.Fatalf("overview: %v", err) }
    } else {
        symbols := splitCSV(symbolsCSV)
        if len(symbols) == 0 { log.Fatal("no symbols provided") }
        src := provider.Source(strings.ToLower(source))
        for _, sym := range symbols {
            q, err := svc.Quote(ctx, src, sym)
            if err != nil {
                log.Printf("%s: %v", sym, err)
                continue
            }
            quotes = append(quotes, q)
        }
    }

    if len(quotes) == 0 {
        log.Fatal("no quotes received")
    }
    out := struct {
        Quotes []provider.Quote `json:"quotes"`
    }{Quotes: quotes}
    b, _ := json.MarshalIndent(out, "", "  ")
    fmt.Println(string(b))
}

func splitCSV(s string) []string {
    parts := strings.Split(s, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p != "" { out = append(out, p) }
    }
    return out
}

func getenv(key, def string) string { if v := os.Getenv(key); v != "" { return v }; return def }
func getenvInt(key string, def int) int {
    if v := os.Getenv(key); v != "" {
        var x int
        _, _ = fmt.Sscanf(v, "%d", &x)
        if x != 0 { return x }
    }
    return def
}
