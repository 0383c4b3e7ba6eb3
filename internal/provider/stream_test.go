package provider

import (
    "context"
    "errors"
    "sync/atomic"
    "testing"
    "time"
)

func collect(ch <-chan Quote) []Quote {
    var out []Quote
    for q := range ch { out = append(out, q) }
    return out
}

func TestPollQuotes_DedupEmitsOnceForIdenticalRounds(t *testing.T) {
    ctx, cancel := context.WithCancel(t.Context())
    defer cancel()

    var rounds atomic.Int32
    fetch := func(_ context.Context, symbols []string) ([]Quote, error) {
        if rounds.Add(1) >= 3 { cancel() }
        return []Quote{{Source: SourceCrypto, Symbol: "bitcoin", Value: 50000.00, Timestamp: time.Now()}}, nil
    }

    ch := PollQuotes(ctx, []string{"bitcoin"}, PollConfig{Interval: time.Millisecond, DedupByValue: true}, fetch)
    got := collect(ch)
    if len(got) != 1 {
        t.Fatalf("want exactly 1 emission for identical rounds, got %d: %+v", len(got), got)
    }
    if got[0].Symbol != "bitcoin" || got[0].Value != 50000.00 {
        t.Fatalf("unexpected quote: %+v", got[0])
    }
}

func TestPollQuotes_EmitsOnValueChange(t *testing.T) {
    ctx, cancel := context.WithCancel(t.Context())
    defer cancel()

    values := []float64{10, 10, 11}
    var rounds atomic.Int32
    fetch := func(_ context.Context, symbols []string) ([]Quote, error) {
        n := rounds.Add(1)
        if int(n) > len(values) {
            cancel()
            return nil, nil
        }
        return []Quote{{Symbol: "AAPL", Value: values[n-1]}}, nil
    }

    ch := PollQuotes(ctx, []string{"AAPL"}, PollConfig{Interval: time.Millisecond, DedupByValue: true}, fetch)
    got := collect(ch)
    if len(got) != 2 {
        t.Fatalf("want 2 emissions (baseline + change), got %d: %+v", len(got), got)
    }
    if got[0].Value != 10 || got[1].Value != 11 {
        t.Fatalf("unexpected values: %+v", got)
    }
}

func TestPollQuotes_DedupDisabledEmitsEveryRound(t *testing.T) {
    ctx, cancel := context.WithCancel(t.Context())
    defer cancel()

    var rounds atomic.Int32
    fetch := func(_ context.Context, symbols []string) ([]Quote, error) {
        if rounds.Add(1) >= 3 { cancel() }
        return []Quote{{Symbol: "will-it-rain", Value: 0.65}}, nil
    }

    ch := PollQuotes(ctx, []string{"will-it-rain"}, PollConfig{Interval: time.Millisecond}, fetch)
    got := collect(ch)
    if len(got) != 3 {
        t.Fatalf("want 3 emissions with dedup off, got %d", len(got))
    }
}

func TestPollQuotes_EmptySymbolsClosesImmediately(t *testing.T) {
    fetch := func(_ context.Context, symbols []string) ([]Quote, error) {
        t.Fatal("fetch must not be called for empty symbols")
        return nil, nil
    }
    ch := PollQuotes(t.Context(), nil, PollConfig{Interval: time.Millisecond}, fetch)
    select {
    case q, ok := <-ch:
        if ok { t.Fatalf("unexpected quote: %+v", q) }
    case <-time.After(time.Second):
        t.Fatal("channel not closed for empty symbols")
    }
}

func TestPollQuotes_FetchErrorSkipsRoundAndContinues(t *testing.T) {
    ctx, cancel := context.WithCancel(t.Context())
    defer cancel()

    var rounds atomic.Int32
    fetch := func(_ context.Context, symbols []string) ([]Quote, error) {
        switch rounds.Add(1) {
        case 1:
            return nil, errors.New("upstream hiccup")
        case 2:
            return []Quote{{Symbol: "ethereum", Value: 3000}}, nil
        default:
            cancel()
            return nil, nil
        }
    }

    ch := PollQuotes(ctx, []string{"ethereum"}, PollConfig{Interval: time.Millisecond, DedupByValue: true}, fetch)
    got := collect(ch)
    if len(got) != 1 || got[0].Value != 3000 {
        t.Fatalf("want quote from round after error, got %+v", got)
    }
}

// Two concurrent sessions against the same fetch function: stopping one
// must not stop the other.
func TestPollQuotes_SessionsAreIndependent(t *testing.T) {
    fetch := func(_ context.Context, symbols []string) ([]Quote, error) {
        return []Quote{{Symbol: symbols[0], Value: float64(time.Now().UnixNano())}}, nil
    }

    ctxA, cancelA := context.WithCancel(t.Context())
    ctxB, cancelB := context.WithCancel(t.Context())
    defer cancelB()

    chA := PollQuotes(ctxA, []string{"a"}, PollConfig{Interval: time.Millisecond}, fetch)
    chB := PollQuotes(ctxB, []string{"b"}, PollConfig{Interval: time.Millisecond}, fetch)

    <-chA
    <-chB
    cancelA()

    // A drains and closes.
    deadline := time.After(2 * time.Second)
    for {
        select {
        case _, ok := <-chA:
            if !ok { goto aClosed }
        case <-deadline:
            t.Fatal("session A did not close after cancel")
        }
    }
aClosed:
    // B is still live after A stopped.
    select {
    case q, ok := <-chB:
        if !ok { t.Fatal("session B closed when only A was cancelled") }
        if q.Symbol != "b" { t.Fatalf("unexpected symbol: %q", q.Symbol) }
    case <-time.After(2 * time.Second):
        t.Fatal("session B stalled after cancelling A")
    }
}
