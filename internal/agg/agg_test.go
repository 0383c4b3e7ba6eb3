package agg

import (
    "context"
    "errors"
    "testing"
    "time"

    "marketagg/internal/provider"
)

type fakeProvider struct {
    name        string
    source      provider.Source
    quotes      []provider.Quote
    overviewErr error
    refreshErr  error
    refreshes   int
    closed      bool
}

func (f *fakeProvider) Name() string            { return f.name }
func (f *fakeProvider) Source() provider.Source { return f.source }

func (f *fakeProvider) GetQuote(ctx context.Context, symbol string) (provider.Quote, error) {
    for _, q := range f.quotes {
        if q.Symbol == symbol { return q, nil }
    }
    return provider.Quote{}, provider.NotFound(symbol)
}

func (f *fakeProvider) GetOverviewQuotes(ctx context.Context) ([]provider.Quote, error) {
    if f.overviewErr != nil { return nil, f.overviewErr }
    return f.quotes, nil
}

func (f *fakeProvider) Stream(ctx context.Context, symbols []string) (<-chan provider.Quote, error) {
    ch := make(chan provider.Quote, len(f.quotes))
    for _, q := range f.quotes { ch <- q }
    close(ch)
    return ch, nil
}

func (f *fakeProvider) Refresh(ctx context.Context) error {
    f.refreshes++
    return f.refreshErr
}

func (f *fakeProvider) Close() error {
    f.closed = true
    return nil
}

type fakeHistoryProvider struct {
    fakeProvider
    bars []provider.Quote
}

func (f *fakeHistoryProvider) GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]provider.Quote, error) {
    return f.bars, nil
}

func quote(source provider.Source, symbol string, value float64, change any) provider.Quote {
    q := provider.Quote{Source: source, Symbol: symbol, Value: value}
    if change != nil {
        q.Metadata = map[string]any{"change_24h": change}
    }
    return q
}

func TestQuote_RoutesBySource(t *testing.T) {
    equity := &fakeProvider{name: "eq", source: provider.SourceEquity, quotes: []provider.Quote{quote(provider.SourceEquity, "AAPL", 201.5, nil)}}
    crypto := &fakeProvider{name: "cg", source: provider.SourceCrypto, quotes: []provider.Quote{quote(provider.SourceCrypto, "bitcoin", 97000, nil)}}
    s := New(nil, equity, crypto)

    q, err := s.Quote(t.Context(), provider.SourceCrypto, "bitcoin")
    if err != nil { t.Fatalf("Quote: %v", err) }
    if q.Value != 97000 { t.Fatalf("unexpected quote: %+v", q) }

    _, err = s.Quote(t.Context(), provider.SourcePrediction, "anything")
    if !errors.Is(err, provider.ErrUnsupported) {
        t.Fatalf("want ErrUnsupported for missing source, got %v", err)
    }
}

func TestOverview_MergesAndSwallowsFailures(t *testing.T) {
    equity := &fakeProvider{name: "eq", source: provider.SourceEquity, quotes: []provider.Quote{quote(provider.SourceEquity, "AAPL", 201.5, nil)}}
    crypto := &fakeProvider{name: "cg", source: provider.SourceCrypto, overviewErr: errors.New("boom")}
    s := New(nil, equity, crypto)

    quotes, err := s.Overview(t.Context())
    if err != nil { t.Fatalf("Overview: %v", err) }
    if len(quotes) != 1 || quotes[0].Symbol != "AAPL" {
        t.Fatalf("unexpected overview: %+v", quotes)
    }
}

func TestOverview_AllFailingIsEmptyNotError(t *testing.T) {
    s := New(nil,
        &fakeProvider{name: "eq", source: provider.SourceEquity, overviewErr: errors.New("a")},
        &fakeProvider{name: "cg", source: provider.SourceCrypto, overviewErr: errors.New("b")},
    )
    quotes, err := s.Overview(t.Context())
    if err != nil { t.Fatalf("Overview: %v", err) }
    if quotes == nil || len(quotes) != 0 {
        t.Fatalf("want empty non-nil list, got %#v", quotes)
    }
}

func TestTopMovers_SortsByAbsoluteChange(t *testing.T) {
    eq := &fakeProvider{name: "eq", source: provider.SourceEquity, quotes: []provider.Quote{
        quote(provider.SourceEquity, "UP", 10, 5.0),
        quote(provider.SourceEquity, "DOWN", 10, -12.0),
        quote(provider.SourceEquity, "FLAT", 10, nil),
        quote(provider.SourceEquity, "MILD", 10, 3.0),
    }}
    s := New(nil, eq)

    movers, err := s.TopMovers(t.Context(), provider.SourceEquity, 0)
    if err != nil { t.Fatalf("TopMovers: %v", err) }
    got := make([]string, 0, len(movers))
    for _, q := range movers { got = append(got, q.Symbol) }
    want := []string{"DOWN", "UP", "MILD", "FLAT"}
    for i := range want {
        if got[i] != want[i] {
            t.Fatalf("want order %v, got %v", want, got)
        }
    }
}

func TestTopMovers_EmptySourceRanksCombinedOverview(t *testing.T) {
    eq := &fakeProvider{name: "eq", source: provider.SourceEquity, quotes: []provider.Quote{
        quote(provider.SourceEquity, "UP", 10, 5.0),
    }}
    cg := &fakeProvider{name: "cg", source: provider.SourceCrypto, quotes: []provider.Quote{
        quote(provider.SourceCrypto, "bitcoin", 97000, -12.0),
        quote(provider.SourceCrypto, "ethereum", 3500, 1.0),
    }}
    s := New(nil, eq, cg)

    movers, err := s.TopMovers(t.Context(), "", 2)
    if err != nil { t.Fatalf("TopMovers: %v", err) }
    if len(movers) != 2 || movers[0].Symbol != "bitcoin" || movers[1].Symbol != "UP" {
        t.Fatalf("want cross-source ranking [bitcoin UP], got %+v", movers)
    }
}

func TestTopMovers_LimitTruncates(t *testing.T) {
    eq := &fakeProvider{name: "eq", source: provider.SourceEquity, quotes: []provider.Quote{
        quote(provider.SourceEquity, "A", 1, 1.0),
        quote(provider.SourceEquity, "B", 1, 2.0),
        quote(provider.SourceEquity, "C", 1, 3.0),
    }}
    s := New(nil, eq)
    movers, err := s.TopMovers(t.Context(), provider.SourceEquity, 2)
    if err != nil { t.Fatalf("TopMovers: %v", err) }
    if len(movers) != 2 || movers[0].Symbol != "C" {
        t.Fatalf("unexpected movers: %+v", movers)
    }
}

func TestHistory_UnsupportedWithoutCapability(t *testing.T) {
    pred := &fakeProvider{name: "pm", source: provider.SourcePrediction}
    hist := &fakeHistoryProvider{
        fakeProvider: fakeProvider{name: "eq", source: provider.SourceEquity},
        bars:         []provider.Quote{quote(provider.SourceEquity, "AAPL", 200, nil)},
    }
    s := New(nil, pred, hist)

    bars, err := s.History(t.Context(), provider.SourceEquity, "AAPL", time.Now().Add(-time.Hour), time.Now())
    if err != nil { t.Fatalf("History: %v", err) }
    if len(bars) != 1 { t.Fatalf("unexpected bars: %+v", bars) }

    _, err = s.History(t.Context(), provider.SourcePrediction, "x", time.Now(), time.Now())
    if !errors.Is(err, provider.ErrUnsupported) {
        t.Fatalf("want ErrUnsupported, got %v", err)
    }
}

func TestListMarkets_UnsupportedWithoutLister(t *testing.T) {
    s := New(nil, &fakeProvider{name: "pm", source: provider.SourcePrediction})
    _, err := s.ListMarkets(t.Context(), provider.ListMarketsParams{Active: true})
    if !errors.Is(err, provider.ErrUnsupported) {
        t.Fatalf("want ErrUnsupported, got %v", err)
    }
}

func TestRefresh_TouchesEveryProviderAndJoinsErrors(t *testing.T) {
    bad := &fakeProvider{name: "bad", source: provider.SourceEquity, refreshErr: errors.New("stale")}
    good := &fakeProvider{name: "good", source: provider.SourceCrypto}
    s := New(nil, bad, good)

    err := s.Refresh(t.Context())
    if err == nil { t.Fatal("want joined error") }
    if bad.refreshes != 1 || good.refreshes != 1 {
        t.Fatalf("every provider must be refreshed: bad=%d good=%d", bad.refreshes, good.refreshes)
    }
}

func TestStream_RoutesBySource(t *testing.T) {
    eq := &fakeProvider{name: "eq", source: provider.SourceEquity, quotes: []provider.Quote{quote(provider.SourceEquity, "AAPL", 200, nil)}}
    s := New(nil, eq)

    ch, err := s.Stream(t.Context(), provider.SourceEquity, []string{"AAPL"})
    if err != nil { t.Fatalf("Stream: %v", err) }
    q, ok := <-ch
    if !ok || q.Symbol != "AAPL" { t.Fatalf("unexpected stream quote: %+v %v", q, ok) }

    _, err = s.Stream(t.Context(), provider.SourcePrediction, nil)
    if !errors.Is(err, provider.ErrUnsupported) {
        t.Fatalf("want ErrUnsupported, got %v", err)
    }
}

func TestClose_ClosesAllProviders(t *testing.T) {
    a := &fakeProvider{name: "a", source: provider.SourceEquity}
    b := &fakeProvider{name: "b", source: provider.SourceCrypto}
    s := New(nil, a, b)
    if err := s.Close(); err != nil { t.Fatalf("Close: %v", err) }
    if !a.closed || !b.closed { t.Fatal("all providers must be closed") }
}

func TestDuplicateSourceIgnored(t *testing.T) {
    first := &fakeProvider{name: "first", source: provider.SourceEquity, quotes: []provider.Quote{quote(provider.SourceEquity, "AAPL", 1, nil)}}
    second := &fakeProvider{name: "second", source: provider.SourceEquity}
    s := New(nil, first, second)
    if len(s.Sources()) != 1 { t.Fatalf("want 1 source, got %v", s.Sources()) }
    q, err := s.Quote(t.Context(), provider.SourceEquity, "AAPL")
    if err != nil || q.Value != 1 { t.Fatalf("first registration must win: %+v %v", q, err) }
}
