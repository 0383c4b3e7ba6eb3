package main

import (
    "compress/gzip"
    "context"
    "io"
    "log"
    "net/http"
    "os"
    "os/signal"
    "strings"
    "sync"
    "syscall"
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
    "marketagg/internal/sched"
)

func main() {
    cfgPath := os.Getenv("CONFIG_FILE")
    cfg, err := config.Load(cfgPath)
    if err != nil { log.Fatalf("config: %v", err) }

    logger, err := zap.NewProduction()
    if err != nil { log.Fatalf("logger: %v", err) }
    defer logger.Sync()

    timeout := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second
    httpClient := httpx.New(timeout)
    httpClient.UserAgent = "market-agg/1.0"

    var providers []provider.Provider
    if cfg.Yahoo.Enabled {
        providers = append(providers, yahoo.New(yahoo.Config{
            Name:            "YahooFinance",
            Endpoint:        cfg.Yahoo.Endpoint,
            OverviewSymbols: cfg.Yahoo.OverviewSymbols,
            PollInterval:    time.Duration(cfg.Yahoo.PollIntervalSec) * time.Second,
        }, httpClient, logger.Named("yahoo")))
    }
    if cfg.CoinGecko.Enabled {
        providers = append(providers, coingecko.New(coingecko.Config{
            Name:          "CoinGecko",
            APIKey:        cfg.CoinGecko.APIKey,
            UseProAPI:     cfg.CoinGecko.UseProAPI,
            OverviewLimit: cfg.CoinGecko.OverviewLimit,
            PollInterval:  time.Duration(cfg.CoinGecko.PollIntervalSec) * time.Second,
        }, httpClient, logger.Named("coingecko")))
    }
    if cfg.Polymarket.Enabled {
        catalog, err := gamma.NewClient(
            gamma.WithBaseURL(cfg.Polymarket.GammaEndpoint),
            gamma.WithHTTPClient(httpClient.HTTP),
            gamma.WithHeader(http.Header{"User-Agent": []string{"market-agg/1.0"}}),
        )
        if err != nil {
            logger.Fatal("gamma client", zap.Error(err))
        }
        providers = append(providers, polymarket.New(polymarket.Config{
            Name:          "Polymarket",
            WSEndpoint:    cfg.Polymarket.ClobWSEndpoint,
            OverviewLimit: cfg.Polymarket.OverviewLimit,
        }, catalog, logger.Named("polymarket")))
    }
    if len(providers) == 0 {
        logger.Fatal("no providers enabled")
    }

    svc := agg.New(logger.Named("agg"), providers...)
    defer svc.Close()

    janitor := sched.NewJanitor(logger.Named("sched"))
    if cfg.Polymarket.Enabled && cfg.Polymarket.CacheClearCron != "" {
        if err := janitor.RegisterCacheSweep(cfg.Polymarket.CacheClearCron, svc.Refresh); err != nil {
            logger.Fatal("cache sweep", zap.Error(err))
        }
    }
    janitor.Start()
    defer janitor.Stop()

    api := &apiServer{svc: svc, logger: logger.Named("http"), timeout: timeout}
    ws := newWSServer(svc, logger.Named("ws"))

    // The WebSocket endpoint bypasses the JSON/gzip chain: those wrappers
    // hide the http.Hijacker the upgrade needs.
    root := http.NewServeMux()
    root.HandleFunc("/ws/stream", ws.handleStream)
    root.Handle("/", withJSONHeaders(withGzip(recoverPanic(limitBody(api.routes())))))

    srv := &http.Server{
        Addr:              ":" + cfg.Server.Port,
        Handler:           requestLog(logger.Named("http"), root),
        ReadHeaderTimeout: 5 * time.Second,
        ReadTimeout:       15 * time.Second,
        IdleTimeout:       60 * time.Second,
    }

    go func() {
        logger.Info("server listening", zap.String("port", cfg.Server.Port))
        if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            logger.Fatal("server", zap.Error(err))
        }
    }()

    // graceful shutdown
    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()
    <-ctx.Done()
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    _ = srv.Shutdown(shutdownCtx)
}

func requestLog(logger *zap.Logger, next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        next.ServeHTTP(w, r)
        logger.Debug("request",
            zap.String("method", r.Method),
            zap.String("path", r.URL.Path),
            zap.Duration("elapsed", time.Since(start)))
    })
}

func withJSONHeaders(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.Header().Set("Content-Type", "application/json; charset=utf-8")
        // Basic CORS for browser usage; adjust as needed.
        w.Header().Set("Access-Control-Allow-Origin", "*")
        w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
        w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
        if r.Method == http.MethodOptions {
            w.WriteHeader(http.StatusNoContent)
            return
        }
        next.ServeHTTP(w, r)
    })
}

// withGzip compresses response when client supports gzip.
func withGzip(next http.Handler) http.Handler {
    var gzPool = sync.Pool{New: func() any {
        // Prefer best speed to reduce CPU usage since payloads are JSON
        w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
        return w
    }}
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
            next.ServeHTTP(w, r)
            return
        }
        gz := gzPool.Get().(*gzip.Writer)
        gz.Reset(w)
        defer func() {
            _ = gz.Close()
            gz.Reset(io.Discard)
            gzPool.Put(gz)
        }()
        w.Header().Set("Content-Encoding", "gzip")
        w.Header().Add("Vary", "Accept-Encoding")
        gw := gzipResponseWriter{ResponseWriter: w, Writer: gz}
        next.ServeHTTP(gw, r)
    })
}

type gzipResponseWriter struct {
    http.ResponseWriter
    Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
    return g.Writer.Write(b)
}

// limitBody caps request body size to avoid memory abuse.
func limitBody(next http.Handler) http.Handler {
    const maxBody = 1 << 20 // 1MB
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.Method == http.MethodPost && r.Body != nil {
            r.Body = http.MaxBytesReader(w, r.Body, maxBody)
        }
        next.ServeHTTP(w, r)
    })
}

// recoverPanic protects handlers from panics.
func recoverPanic(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        defer func() {
            if rec := recover(); rec != nil {
                http.Error(w, "internal server error", http.StatusInternalServerError)
            }
        }()
        next.ServeHTTP(w, r)
    })
}
