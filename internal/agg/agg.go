package agg

import (
    "context"
    "errors"
    "fmt"
    "math"
    "sort"
    "time"

    "go.uber.org/zap"
    "golang.org/x/sync/errgroup"

    "marketagg/internal/provider"
)

// Service fronts the configured providers with one API. Each source has
// at most one provider; optional capabilities (history, market listing)
// are asserted once here, not on every call.
type Service struct {
    providers map[provider.Source]provider.Provider
    history   map[provider.Source]provider.HistoryProvider
    listers   map[provider.Source]provider.MarketLister
    order     []provider.Source
    logger    *zap.Logger
}

func New(logger *zap.Logger, providers ...provider.Provider) *Service {
    if logger == nil { logger = zap.NewNop() }
    s := &Service{
        providers: make(map[provider.Source]provider.Provider, len(providers)),
        history:   make(map[provider.Source]provider.HistoryProvider),
        listers:   make(map[provider.Source]provider.MarketLister),
        logger:    logger,
    }
    for _, p := range providers {
        src := p.Source()
        if _, dup := s.providers[src]; dup {
            logger.Warn("duplicate provider for source ignored", zap.String("source", string(src)), zap.String("name", p.Name()))
            continue
        }
        s.providers[src] = p
        s.order = append(s.order, src)
        if h, ok := p.(provider.HistoryProvider); ok { s.history[src] = h }
        if l, ok := p.(provider.MarketLister); ok { s.listers[src] = l }
    }
    return s
}

// Sources lists the registered sources in registration order.
func (s *Service) Sources() []provider.Source {
    return append([]provider.Source(nil), s.order...)
}

func (s *Service) providerFor(source provider.Source) (provider.Provider, error) {
    p, ok := s.providers[source]
    if !ok {
        return nil, fmt.Errorf("source %q: %w", source, provider.ErrUnsupported)
    }
    return p, nil
}

// Quote fetches one quote from the source's provider.
func (s *Service) Quote(ctx context.Context, source provider.Source, symbol string) (provider.Quote, error) {
    p, err := s.providerFor(source)
    if err != nil { return provider.Quote{}, err }
    return p.GetQuote(ctx, symbol)
}

// History fetches historical quotes; sources without the capability
// (prediction markets) answer ErrUnsupported.
func (s *Service) History(ctx context.Context, source provider.Source, symbol string, start, end time.Time) ([]provider.Quote, error) {
    if _, err := s.providerFor(source); err != nil { return nil, err }
    h, ok := s.history[source]
    if !ok {
        return nil, fmt.Errorf("history for source %q: %w", source, provider.ErrUnsupported)
    }
    return h.GetHistory(ctx, symbol, start, end)
}

// Overview fans out to every provider concurrently. A failing provider
// is logged and omitted; when all fail the result is an empty list, not
// an error.
func (s *Service) Overview(ctx context.Context) ([]provider.Quote, error) {
    results := make([][]provider.Quote, len(s.order))
    g, gctx := errgroup.WithContext(ctx)
    for i, src := range s.order {
        p := s.providers[src]
        g.Go(func() error {
            quotes, err := p.GetOverviewQuotes(gctx)
            if err != nil {
                s.logger.Warn("overview provider failed", zap.String("provider", p.Name()), zap.Error(err))
                return nil
            }
            results[i] = quotes
            return nil
        })
    }
    _ = g.Wait()
    var out []provider.Quote
    for _, quotes := range results { out = append(out, quotes...) }
    if out == nil { out = []provider.Quote{} }
    return out, nil
}

// PredictionsOverview is the prediction-market slice of the overview.
func (s *Service) PredictionsOverview(ctx context.Context) ([]provider.Quote, error) {
    p, err := s.providerFor(provider.SourcePrediction)
    if err != nil { return nil, err }
    return p.GetOverviewQuotes(ctx)
}

func changeOf(q provider.Quote) float64 {
    if q.Metadata == nil { return 0 }
    c, _ := q.Metadata["change_24h"].(float64)
    return c
}

// TopMovers ranks an overview by absolute 24h change, largest first.
// An empty source ranks the combined overview across every provider;
// a named source narrows to that provider. Quotes without a change
// figure rank as zero and sort last.
func (s *Service) TopMovers(ctx context.Context, source provider.Source, limit int) ([]provider.Quote, error) {
    var quotes []provider.Quote
    var err error
    if source == "" {
        quotes, err = s.Overview(ctx)
    } else {
        var p provider.Provider
        p, err = s.providerFor(source)
        if err != nil { return nil, err }
        quotes, err = p.GetOverviewQuotes(ctx)
    }
    if err != nil { return nil, err }
    sort.SliceStable(quotes, func(i, j int) bool {
        return math.Abs(changeOf(quotes[i])) > math.Abs(changeOf(quotes[j]))
    })
    if limit > 0 && len(quotes) > limit { quotes = quotes[:limit] }
    return quotes, nil
}

// ListMarkets browses a prediction-market catalog.
func (s *Service) ListMarkets(ctx context.Context, params provider.ListMarketsParams) ([]provider.Quote, error) {
    l, ok := s.listers[provider.SourcePrediction]
    if !ok {
        return nil, fmt.Errorf("market listing: %w", provider.ErrUnsupported)
    }
    return l.ListMarkets(ctx, params)
}

// Stream opens a streaming session against one source. The session ends
// with ctx; other sessions are unaffected.
func (s *Service) Stream(ctx context.Context, source provider.Source, symbols []string) (<-chan provider.Quote, error) {
    p, err := s.providerFor(source)
    if err != nil { return nil, err }
    return p.Stream(ctx, symbols)
}

// Refresh asks every provider to drop its local caches. Failures are
// joined, not short-circuited, so one bad provider cannot block the rest.
func (s *Service) Refresh(ctx context.Context) error {
    var errs []error
    for _, src := range s.order {
        p := s.providers[src]
        if err := p.Refresh(ctx); err != nil {
            s.logger.Warn("provider refresh failed", zap.String("provider", p.Name()), zap.Error(err))
            errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
        }
    }
    return errors.Join(errs...)
}

// Close shuts every provider down, keeping the first error.
func (s *Service) Close() error {
    var first error
    for _, src := range s.order {
        if err := s.providers[src].Close(); err != nil && first == nil {
            first = err
        }
    }
    return first
}
