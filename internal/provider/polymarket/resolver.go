package polymarket

import (
    "context"
    "strings"

    "go.uber.org/zap"

    "marketagg/internal/provider"
    "marketagg/internal/provider/gamma"
)

// marketFetcher is the slice of the Gamma catalog the resolver needs.
type marketFetcher interface {
    MarketBySlug(ctx context.Context, slug string) (*gamma.Market, error)
    MarketByConditionID(ctx context.Context, conditionID string) (*gamma.Market, error)
}

// resolver turns user-facing symbols (a market slug or a 0x-prefixed
// condition id) into catalog markets, caching every hit so repeat
// lookups never touch the network.
type resolver struct {
    fetcher marketFetcher
    cache   *resolverCache
    logger  *zap.Logger
}

func newResolver(fetcher marketFetcher, cache *resolverCache, logger *zap.Logger) *resolver {
    if logger == nil { logger = zap.NewNop() }
    return &resolver{fetcher: fetcher, cache: cache, logger: logger}
}

func isConditionID(symbol string) bool {
    return strings.HasPrefix(symbol, "0x")
}

// Resolve looks a symbol up in the cache, falling back to the catalog.
// An empty catalog result is ErrNotFound, not a nil market.
func (r *resolver) Resolve(ctx context.Context, symbol string) (*gamma.Market, error) {
    symbol = strings.TrimSpace(symbol)
    if symbol == "" {
        return nil, provider.NotFound(symbol)
    }
    if isConditionID(symbol) {
        if slug, ok := r.cache.SlugForCondition(symbol); ok {
            if m, ok := r.cache.GetBySlug(slug); ok { return m, nil }
        }
        m, err := r.fetcher.MarketByConditionID(ctx, symbol)
        if err != nil { return nil, provider.WrapTransport("Polymarket", err) }
        if m == nil { return nil, provider.NotFound(symbol) }
        r.cache.Put(m)
        return m, nil
    }
    if m, ok := r.cache.GetBySlug(symbol); ok {
        return m, nil
    }
    m, err := r.fetcher.MarketBySlug(ctx, symbol)
    if err != nil { return nil, provider.WrapTransport("Polymarket", err) }
    if m == nil { return nil, provider.NotFound(symbol) }
    r.cache.Put(m)
    return m, nil
}

// Clear drops every cached resolution.
func (r *resolver) Clear() {
    n := r.cache.Len()
    r.cache.Clear()
    if n > 0 { r.logger.Info("resolver cache cleared", zap.Int("entries", n)) }
}
