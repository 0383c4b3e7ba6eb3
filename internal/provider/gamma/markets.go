package gamma

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Market is a market from the Gamma API. The list-valued fields
// (outcomes, outcomePrices, clobTokenIds) arrive as JSON-encoded strings
// and are parsed lazily via the accessor methods; token ids are sometimes
// comma-separated instead of a JSON array.
type Market struct {
	Question    string `json:"question"`
	Slug        string `json:"slug"`
	ConditionID string `json:"conditionId"`

	Outcomes      json.RawMessage `json:"outcomes"`
	OutcomePrices json.RawMessage `json:"outcomePrices"`
	ClobTokenIDs  json.RawMessage `json:"clobTokenIds"`

	Volume    json.RawMessage `json:"volume"` // string or number
	VolumeNum *float64        `json:"volumeNum"`
	UpdatedAt string          `json:"updatedAt"`
}

// Event is an event from the Gamma API; only its markets are used.
type Event struct {
	Markets []Market `json:"markets"`
}

func parseRawList(raw json.RawMessage, allowCommaSplit bool) []string {
	if len(raw) == 0 {
		return nil
	}
	v := gjson.ParseBytes(raw)
	if v.Type == gjson.String {
		s := strings.TrimSpace(v.String())
		if s == "" {
			return nil
		}
		if !strings.HasPrefix(s, "[") {
			if !allowCommaSplit {
				return nil
			}
			var out []string
			for _, part := range strings.Split(s, ",") {
				if p := strings.TrimSpace(part); p != "" {
					out = append(out, p)
				}
			}
			return out
		}
		v = gjson.Parse(s)
	}
	if !v.IsArray() {
		return nil
	}
	var out []string
	for _, e := range v.Array() {
		out = append(out, e.String())
	}
	return out
}

// OutcomeLabels parses the outcome labels (e.g. ["Yes","No"]).
func (m *Market) OutcomeLabels() []string {
	return parseRawList(m.Outcomes, false)
}

// OutcomePriceList parses the per-outcome probabilities.
func (m *Market) OutcomePriceList() []float64 {
	raw := parseRawList(m.OutcomePrices, false)
	out := make([]float64, 0, len(raw))
	for _, s := range raw {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	return out
}

// TokenIDs parses the per-outcome CLOB token ids.
func (m *Market) TokenIDs() []string {
	return parseRawList(m.ClobTokenIDs, true)
}

// TopOutcomeIndex is the index of the maximum-probability outcome.
func (m *Market) TopOutcomeIndex() int {
	prices := m.OutcomePriceList()
	top := 0
	for i, p := range prices {
		if p > prices[top] {
			top = i
		}
	}
	return top
}

// VolumeUSD is the total USD volume, preferring the numeric field over
// the stringly-typed one. Nil when absent or unparseable.
func (m *Market) VolumeUSD() *float64 {
	if m.VolumeNum != nil {
		return m.VolumeNum
	}
	if len(m.Volume) == 0 {
		return nil
	}
	v := gjson.ParseBytes(m.Volume)
	switch v.Type {
	case gjson.Number:
		f := v.Float()
		return &f
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

// UpdatedTime parses updatedAt; zero time when absent or malformed.
func (m *Market) UpdatedTime() time.Time {
	if m.UpdatedAt == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, m.UpdatedAt)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, dst any) error {
	merged := maps.Clone(c.query)
	for k, vs := range query {
		for _, v := range vs {
			merged.Add(k, v)
		}
	}
	u := fmt.Sprintf("%s%s?%s", c.baseURL, path, merged.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// MarketBySlug fetches the first market matching a slug.
// Returns nil when the catalog has no match.
func (c *Client) MarketBySlug(ctx context.Context, slug string) (*Market, error) {
	var markets []Market
	q := url.Values{"slug": {slug}, "limit": {"1"}}
	if err := c.getJSON(ctx, "/markets", q, &markets); err != nil {
		return nil, err
	}
	if len(markets) == 0 {
		return nil, nil
	}
	return &markets[0], nil
}

// MarketByConditionID fetches the first market matching a hex condition id.
// Returns nil when the catalog has no match.
func (c *Client) MarketByConditionID(ctx context.Context, conditionID string) (*Market, error) {
	var markets []Market
	q := url.Values{"condition_ids": {conditionID}, "limit": {"1"}}
	if err := c.getJSON(ctx, "/markets", q, &markets); err != nil {
		return nil, err
	}
	if len(markets) == 0 {
		return nil, nil
	}
	return &markets[0], nil
}

// EventsParams filters an event listing.
type EventsParams struct {
	Active bool
	Limit  int
	TagID  string
}

// Events lists events (each carrying its markets) from the catalog.
func (c *Client) Events(ctx context.Context, params EventsParams) ([]Event, error) {
	q := url.Values{
		"active": {strconv.FormatBool(params.Active)},
		"closed": {"false"},
		"limit":  {strconv.Itoa(params.Limit)},
	}
	if params.TagID != "" {
		q.Set("tag_id", params.TagID)
	}
	var events []Event
	if err := c.getJSON(ctx, "/events", q, &events); err != nil {
		return nil, err
	}
	return events, nil
}
