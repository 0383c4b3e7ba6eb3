package provider

import (
    "context"
    "time"

    "go.uber.org/zap"
)

// FetchFunc fetches one batch of quotes for the given symbols.
type FetchFunc func(ctx context.Context, symbols []string) ([]Quote, error)

// PollConfig controls a polling stream session.
type PollConfig struct {
    Interval time.Duration
    // DedupByValue skips a quote when its value equals the last emitted
    // value for that symbol. Round 1 always emits (no baseline yet).
    DedupByValue bool
    Logger       *zap.Logger
}

// PollQuotes runs the generic poll/dedup/emit loop shared by providers
// without a push transport. The returned channel is closed when ctx is
// cancelled or symbols is empty. Cancellation is per call: each session
// owns its ctx, so closing one session never affects another against the
// same provider.
//
// A failed poll round is logged and skipped; the loop keeps going until
// the context ends.
func PollQuotes(ctx context.Context, symbols []string, cfg PollConfig, fetch FetchFunc) <-chan Quote {
    out := make(chan Quote)
    logger := cfg.Logger
    if logger == nil { logger = zap.NewNop() }
    interval := cfg.Interval
    if interval <= 0 { interval = 10 * time.Second }

    go func() {
        defer close(out)
        if len(symbols) == 0 { return }
        lastValues := make(map[string]float64, len(symbols))
        for {
            quotes, err := fetch(ctx, symbols)
            if err != nil {
                if ctx.Err() != nil { return }
                logger.Warn("poll round failed", zap.Error(err), zap.Int("symbols", len(symbols)))
            }
            for _, q := range quotes {
                if cfg.DedupByValue {
                    if last, ok := lastValues[q.Symbol]; ok && last == q.Value { continue }
                    lastValues[q.Symbol] = q.Value
                }
                select {
                case out <- q:
                case <-ctx.Done():
                    return
                }
            }
            timer := time.NewTimer(interval)
            select {
            case <-ctx.Done():
                timer.Stop()
                return
            case <-timer.C:
            }
        }
    }()
    return out
}
