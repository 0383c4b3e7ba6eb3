package config

import (
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "strings"
)

type Server struct {
    Port              string `json:"port"`
    RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type Yahoo struct {
    Enabled         bool     `json:"enabled"`
    Endpoint        string   `json:"endpoint"`
    OverviewSymbols []string `json:"overview_symbols"`
    PollIntervalSec int      `json:"poll_interval_sec"`
}

type CoinGecko struct {
    Enabled         bool   `json:"enabled"`
    APIKey          string `json:"api_key"`
    UseProAPI       bool   `json:"use_pro_api"`
    OverviewLimit   int    `json:"overview_limit"`
    PollIntervalSec int    `json:"poll_interval_sec"`
}

type Polymarket struct {
    Enabled        bool   `json:"enabled"`
    GammaEndpoint  string `json:"gamma_endpoint"`
    ClobWSEndpoint string `json:"clob_ws_endpoint"`
    OverviewLimit  int    `json:"overview_limit"`
    // CacheClearCron schedules the periodic resolver cache wipe.
    // Empty disables the job.
    CacheClearCron string `json:"cache_clear_cron"`
}

type Config struct {
    Server     Server     `json:"server"`
    Yahoo      Yahoo      `json:"yahoo"`
    CoinGecko  CoinGecko  `json:"coingecko"`
    Polymarket Polymarket `json:"polymarket"`
}

func Default() Config {
    return Config{
        Server: Server{Port: "8080", RequestTimeoutSec: 15},
        Yahoo: Yahoo{
            Enabled:         true,
            Endpoint:        "https://query1.finance.yahoo.com/v8/finance/chart",
            OverviewSymbols: []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA"},
            PollIntervalSec: 15,
        },
        CoinGecko: CoinGecko{
            Enabled:         true,
            OverviewLimit:   10,
            PollIntervalSec: 10,
        },
        Polymarket: Polymarket{
            Enabled:        true,
            GammaEndpoint:  "https://gamma-api.polymarket.com",
            ClobWSEndpoint: "wss://ws-subscriptions-clob.polymarket.com/ws/market",
            OverviewLimit:  5,
            CacheClearCron: "0 0 4 * * *",
        },
    }
}

// Load reads JSON config from path. If path is empty or file does not exist,
// it returns defaults. Environment variables override select fields for secrecy.
func Load(path string) (Config, error) {
    cfg := Default()
    if path == "" {
        if _, err := os.Stat("config.json"); err == nil {
            path = "config.json"
        }
    }
    if path != "" {
        b, err := os.ReadFile(path)
        if err != nil && !errors.Is(err, os.ErrNotExist) {
            return cfg, fmt.Errorf("read config: %w", err)
        }
        if err == nil {
            if err := json.Unmarshal(b, &cfg); err != nil {
                return cfg, fmt.Errorf("parse config: %w", err)
            }
        }
    }
    applyEnv(&cfg)
    return cfg, nil
}

func applyEnv(cfg *Config) {
    if v := os.Getenv("PORT"); v != "" { cfg.Server.Port = v }
    if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Server.RequestTimeoutSec = x }
    }

    if v := os.Getenv("YAHOO_ENABLED"); v != "" { cfg.Yahoo.Enabled = parseBool(v, cfg.Yahoo.Enabled) }
    if v := os.Getenv("YAHOO_ENDPOINT"); v != "" { cfg.Yahoo.Endpoint = v }
    if v := os.Getenv("YAHOO_OVERVIEW_SYMBOLS"); v != "" { cfg.Yahoo.OverviewSymbols = splitCSV(v) }
    if v := os.Getenv("YAHOO_POLL_INTERVAL_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Yahoo.PollIntervalSec = x }
    }

    if v := os.Getenv("COINGECKO_ENABLED"); v != "" { cfg.CoinGecko.Enabled = parseBool(v, cfg.CoinGecko.Enabled) }
    if v := os.Getenv("COINGECKO_API_KEY"); v != "" { cfg.CoinGecko.APIKey = v }
    if v := os.Getenv("COINGECKO_USE_PRO_API"); v != "" { cfg.CoinGecko.UseProAPI = parseBool(v, cfg.CoinGecko.UseProAPI) }
    if v := os.Getenv("COINGECKO_OVERVIEW_LIMIT"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.CoinGecko.OverviewLimit = x }
    }
    if v := os.Getenv("COINGECKO_POLL_INTERVAL_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.CoinGecko.PollIntervalSec = x }
    }

    if v := os.Getenv("POLYMARKET_ENABLED"); v != "" { cfg.Polymarket.Enabled = parseBool(v, cfg.Polymarket.Enabled) }
    if v := os.Getenv("POLYMARKET_GAMMA_ENDPOINT"); v != "" { cfg.Polymarket.GammaEndpoint = v }
    if v := os.Getenv("POLYMARKET_CLOB_WS_ENDPOINT"); v != "" { cfg.Polymarket.ClobWSEndpoint = v }
    if v := os.Getenv("POLYMARKET_OVERVIEW_LIMIT"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Polymarket.OverviewLimit = x }
    }
    if v := os.Getenv("POLYMARKET_CACHE_CLEAR_CRON"); v != "" { cfg.Polymarket.CacheClearCron = v }
}

func parseBool(v string, def bool) bool {
    switch strings.ToLower(v) {
    case "1", "true", "yes", "y":
        return true
    case "0", "false", "no", "n":
        return false
    }
    return def
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
