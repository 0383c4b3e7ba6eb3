package polymarket

import (
    "strconv"
    "time"

    "github.com/tidwall/gjson"
)

// tick is one price observation decoded from the CLOB market channel.
type tick struct {
    TokenID   string
    Price     float64
    Timestamp time.Time
}

func parseMillis(s string) time.Time {
    ms, err := strconv.ParseInt(s, 10, 64)
    if err != nil || ms <= 0 { return time.Now().UTC() }
    return time.UnixMilli(ms).UTC()
}

func parsePrice(s string) (float64, bool) {
    f, err := strconv.ParseFloat(s, 64)
    if err != nil || f <= 0 { return 0, false }
    return f, true
}

// parseEvents decodes a CLOB market-channel frame into ticks. Frames may
// carry a single event object or an array of them. Two event types carry
// prices: last_trade_price (one asset, one price) and price_change (a
// batch of per-asset best bids). Anything else, and any change with a
// zero or absent price, is dropped.
func parseEvents(data []byte) []tick {
    v := gjson.ParseBytes(data)
    var events []gjson.Result
    if v.IsArray() {
        events = v.Array()
    } else if v.IsObject() {
        events = []gjson.Result{v}
    } else {
        return nil
    }

    var out []tick
    for _, ev := range events {
        switch ev.Get("event_type").String() {
        case "last_trade_price":
            id := ev.Get("asset_id").String()
            price, ok := parsePrice(ev.Get("price").String())
            if id == "" || !ok { continue }
            out = append(out, tick{
                TokenID:   id,
                Price:     price,
                Timestamp: parseMillis(ev.Get("timestamp").String()),
            })
        case "price_change":
            ts := parseMillis(ev.Get("timestamp").String())
            for _, ch := range ev.Get("price_changes").Array() {
                id := ch.Get("asset_id").String()
                price, ok := parsePrice(ch.Get("best_bid").String())
                if id == "" || !ok { continue }
                out = append(out, tick{TokenID: id, Price: price, Timestamp: ts})
            }
        }
    }
    return out
}
