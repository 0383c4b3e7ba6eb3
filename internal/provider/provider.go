package provider

import (
    "context"
    "math"
    "time"
)

// Source identifies the kind of market a quote came from.
type Source string

const (
    SourceEquity     Source = "equity"
    SourceCrypto     Source = "crypto"
    SourcePrediction Source = "prediction"
)

// Quote is the normalized snapshot all providers map into.
// Value is a price for equity/crypto and a probability in [0,1] for
// prediction markets, rounded to 2 decimals at construction.
type Quote struct {
    Source    Source         `json:"source"`
    Symbol    string         `json:"symbol"`
    Value     float64        `json:"value"`
    Volume    *float64       `json:"volume,omitempty"`
    Timestamp time.Time      `json:"timestamp"`
    Metadata  map[string]any `json:"metadata,omitempty"`
}

// Provider is the capability set every data source implements.
// Streaming is cancelled through the passed context; each streaming
// session owns its own context, so cancelling one never stops another.
type Provider interface {
    Name() string
    Source() Source
    GetQuote(ctx context.Context, symbol string) (Quote, error)
    GetOverviewQuotes(ctx context.Context) ([]Quote, error)
    Stream(ctx context.Context, symbols []string) (<-chan Quote, error)
    Refresh(ctx context.Context) error
    Close() error
}

// HistoryProvider is an optional capability; sources without history
// (prediction markets) simply do not implement it. The aggregation layer
// asserts this once at construction, not per call.
type HistoryProvider interface {
    GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]Quote, error)
}

// ListMarketsParams filters a prediction-market listing.
type ListMarketsParams struct {
    Active bool
    Limit  int
    TagID  string
}

// MarketLister is an optional capability for sources with a browsable catalog.
type MarketLister interface {
    ListMarkets(ctx context.Context, params ListMarketsParams) ([]Quote, error)
}

// Round2 rounds to 2 decimals; quote values are normalized with it so
// stream dedup can compare with plain equality.
func Round2(v float64) float64 {
    return math.Round(v*100) / 100
}

// Round2Ptr rounds an optional value, passing nil through.
func Round2Ptr(v *float64) *float64 {
    if v == nil { return nil }
    r := Round2(*v)
    return &r
}

// Float64Ptr is a convenience for optional Quote fields.
func Float64Ptr(v float64) *float64 { return &v }
