package polymarket

import (
    "context"
    "sync"
    "time"

    "github.com/gorilla/websocket"
    "go.uber.org/zap"

    "marketagg/internal/provider"
    "marketagg/internal/provider/gamma"
)

// catalogAPI is the slice of the Gamma client the provider uses.
type catalogAPI interface {
    marketFetcher
    Events(ctx context.Context, params gamma.EventsParams) ([]gamma.Event, error)
}

// Provider serves prediction-market quotes from Polymarket. Symbols are
// market slugs or 0x-prefixed condition ids; a quote's value is the
// probability of the leading outcome. Streaming rides the CLOB push
// WebSocket rather than polling.
type Provider struct {
    cfg      Config
    catalog  catalogAPI
    cache    *resolverCache
    resolver *resolver
    logger   *zap.Logger

    mu    sync.Mutex
    conns map[*websocket.Conn]struct{}
}

type Config struct {
    Name          string
    WSEndpoint    string
    OverviewLimit int
    ReadTimeout   time.Duration
}

func New(cfg Config, catalog catalogAPI, logger *zap.Logger) *Provider {
    if cfg.Name == "" { cfg.Name = "Polymarket" }
    if cfg.WSEndpoint == "" { cfg.WSEndpoint = "wss://ws-subscriptions-clob.polymarket.com/ws/market" }
    if cfg.OverviewLimit <= 0 { cfg.OverviewLimit = 5 }
    if cfg.ReadTimeout <= 0 { cfg.ReadTimeout = 30 * time.Second }
    if logger == nil { logger = zap.NewNop() }
    cache := newResolverCache()
    return &Provider{
        cfg:      cfg,
        catalog:  catalog,
        cache:    cache,
        resolver: newResolver(catalog, cache, logger),
        logger:   logger,
        conns:    make(map[*websocket.Conn]struct{}),
    }
}

func (p *Provider) Name() string            { return p.cfg.Name }
func (p *Provider) Source() provider.Source { return provider.SourcePrediction }

func displaySymbol(m *gamma.Market) string {
    if m.Question != "" { return m.Question }
    if m.Slug != "" { return m.Slug }
    return m.ConditionID
}

// quoteFromMarket maps a catalog market to a quote; the value is the
// leading outcome's probability. Markets without prices produce nothing.
func quoteFromMarket(m *gamma.Market) (provider.Quote, bool) {
    prices := m.OutcomePriceList()
    if len(prices) == 0 {
        return provider.Quote{}, false
    }
    top := m.TopOutcomeIndex()
    labels := m.OutcomeLabels()
    meta := map[string]any{"slug": m.Slug}
    if m.ConditionID != "" { meta["condition_id"] = m.ConditionID }
    if top < len(labels) { meta["top_outcome"] = labels[top] }
    if len(labels) == len(prices) {
        outcomes := make(map[string]float64, len(labels))
        for i, l := range labels { outcomes[l] = provider.Round2(prices[i]) }
        meta["outcomes"] = outcomes
    }
    ts := m.UpdatedTime()
    if ts.IsZero() { ts = time.Now().UTC() }
    return provider.Quote{
        Source:    provider.SourcePrediction,
        Symbol:    displaySymbol(m),
        Value:     provider.Round2(prices[top]),
        Volume:    m.VolumeUSD(),
        Timestamp: ts,
        Metadata:  meta,
    }, true
}

// GetQuote resolves a slug or condition id and snapshots the market.
func (p *Provider) GetQuote(ctx context.Context, symbol string) (provider.Quote, error) {
    m, err := p.resolver.Resolve(ctx, symbol)
    if err != nil { return provider.Quote{}, err }
    q, ok := quoteFromMarket(m)
    if !ok { return provider.Quote{}, provider.NotFound(symbol) }
    return q, nil
}

// GetOverviewQuotes lists the most active markets.
func (p *Provider) GetOverviewQuotes(ctx context.Context) ([]provider.Quote, error) {
    return p.ListMarkets(ctx, provider.ListMarketsParams{Active: true, Limit: p.cfg.OverviewLimit})
}

// ListMarkets browses the event catalog, flattening events into their
// markets. Every market seen here also seeds the resolver cache.
func (p *Provider) ListMarkets(ctx context.Context, params provider.ListMarketsParams) ([]provider.Quote, error) {
    limit := params.Limit
    if limit <= 0 { limit = p.cfg.OverviewLimit }
    events, err := p.catalog.Events(ctx, gamma.EventsParams{Active: params.Active, Limit: limit, TagID: params.TagID})
    if err != nil { return nil, provider.WrapTransport(p.cfg.Name, err) }

    out := make([]provider.Quote, 0, limit)
    for _, ev := range events {
        for i := range ev.Markets {
            m := &ev.Markets[i]
            p.cache.Put(m)
            q, ok := quoteFromMarket(m)
            if !ok { continue }
            out = append(out, q)
            if len(out) >= limit { return out, nil }
        }
    }
    return out, nil
}

type subscribeMessage struct {
    Type     string   `json:"type"`
    AssetIDs []string `json:"assets_ids"`
}

// Stream resolves the symbols to their markets and subscribes to every
// per-outcome CLOB token id in one WebSocket session. Inbound ticks are
// translated back through the cache's token index, so a quote names its
// market and outcome. The channel closes on context cancellation or
// upstream close; a symbol that fails to resolve is logged and skipped,
// not fatal to the session.
func (p *Provider) Stream(ctx context.Context, symbols []string) (<-chan provider.Quote, error) {
    subscribed := make(map[string]struct{}, len(symbols)*2)
    ids := make([]string, 0, len(symbols)*2)
    for _, s := range symbols {
        m, err := p.resolver.Resolve(ctx, s)
        if err != nil {
            p.logger.Warn("stream symbol skipped", zap.String("symbol", s), zap.Error(err))
            continue
        }
        for _, id := range m.TokenIDs() {
            if _, dup := subscribed[id]; dup { continue }
            subscribed[id] = struct{}{}
            ids = append(ids, id)
        }
    }

    out := make(chan provider.Quote)
    if len(ids) == 0 {
        close(out)
        return out, nil
    }

    conn, _, err := websocket.DefaultDialer.DialContext(ctx, p.cfg.WSEndpoint, nil)
    if err != nil { return nil, provider.WrapTransport(p.cfg.Name, err) }
    if err := conn.WriteJSON(subscribeMessage{Type: "MARKET", AssetIDs: ids}); err != nil {
        conn.Close()
        return nil, provider.WrapTransport(p.cfg.Name, err)
    }
    p.track(conn)
    go p.readLoop(ctx, conn, subscribed, out)
    return out, nil
}

// quoteForTick maps an inbound tick onto its market via the cache's
// token index.
func (p *Provider) quoteForTick(tk tick) (provider.Quote, bool) {
    ref, ok := p.cache.TokenRef(tk.TokenID)
    if !ok { return provider.Quote{}, false }
    m, ok := p.cache.GetBySlug(ref.Slug)
    if !ok { return provider.Quote{}, false }
    meta := map[string]any{
        "token_id":      tk.TokenID,
        "outcome_index": ref.OutcomeIndex,
    }
    if labels := m.OutcomeLabels(); ref.OutcomeIndex < len(labels) {
        meta["outcome"] = labels[ref.OutcomeIndex]
    }
    return provider.Quote{
        Source:    provider.SourcePrediction,
        Symbol:    displaySymbol(m),
        Value:     provider.Round2(tk.Price),
        Timestamp: tk.Timestamp,
        Metadata:  meta,
    }, true
}

func (p *Provider) readLoop(ctx context.Context, conn *websocket.Conn, subscribed map[string]struct{}, out chan<- provider.Quote) {
    defer close(out)
    defer p.untrack(conn)
    defer conn.Close()

    stop := make(chan struct{})
    defer close(stop)
    // Closing the conn is the only way to unblock a pending read; this
    // goroutine also keeps the idle connection alive with pings.
    go func() {
        ticker := time.NewTicker(p.cfg.ReadTimeout / 2)
        defer ticker.Stop()
        for {
            select {
            case <-ctx.Done():
                conn.Close()
                return
            case <-stop:
                return
            case <-ticker.C:
                _ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
            }
        }
    }()

    conn.SetPongHandler(func(string) error {
        return conn.SetReadDeadline(time.Now().Add(p.cfg.ReadTimeout))
    })

    lastValues := make(map[string]float64, len(subscribed))
    for {
        _ = conn.SetReadDeadline(time.Now().Add(p.cfg.ReadTimeout))
        _, data, err := conn.ReadMessage()
        if err != nil {
            if ctx.Err() != nil { return }
            if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) { return }
            p.logger.Warn("stream read ended", zap.Error(err))
            return
        }
        for _, tk := range parseEvents(data) {
            if _, ok := subscribed[tk.TokenID]; !ok { continue }
            q, ok := p.quoteForTick(tk)
            if !ok { continue }
            if last, ok := lastValues[tk.TokenID]; ok && last == q.Value { continue }
            lastValues[tk.TokenID] = q.Value
            select {
            case out <- q:
            case <-ctx.Done():
                return
            }
        }
    }
}

func (p *Provider) track(conn *websocket.Conn) {
    p.mu.Lock()
    p.conns[conn] = struct{}{}
    p.mu.Unlock()
}

func (p *Provider) untrack(conn *websocket.Conn) {
    p.mu.Lock()
    delete(p.conns, conn)
    p.mu.Unlock()
}

// Refresh drops every cached slug/condition/token resolution; the next
// lookup refetches from the catalog.
func (p *Provider) Refresh(ctx context.Context) error {
    p.resolver.Clear()
    return nil
}

// Close tears down any live streaming connections.
func (p *Provider) Close() error {
    p.mu.Lock()
    conns := make([]*websocket.Conn, 0, len(p.conns))
    for c := range p.conns { conns = append(conns, c) }
    p.mu.Unlock()
    for _, c := range conns { c.Close() }
    return nil
}
