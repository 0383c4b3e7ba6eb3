package polymarket

import (
    "sync"

    "marketagg/internal/provider/gamma"
)

// tokenRef locates one market outcome from a CLOB token id.
type tokenRef struct {
    Slug         string
    OutcomeIndex int
}

// resolverCache indexes resolved markets three ways: by slug, by hex
// condition id, and by CLOB token id. It grows unbounded until Clear;
// eviction policy is deliberately absent, callers clear on a schedule.
type resolverCache struct {
    mu          sync.RWMutex
    bySlug      map[string]*gamma.Market
    byCondition map[string]string
    byToken     map[string]tokenRef
}

func newResolverCache() *resolverCache {
    c := &resolverCache{}
    c.reset()
    return c
}

func (c *resolverCache) reset() {
    c.bySlug = make(map[string]*gamma.Market)
    c.byCondition = make(map[string]string)
    c.byToken = make(map[string]tokenRef)
}

// Put indexes a market under all three keys.
func (c *resolverCache) Put(m *gamma.Market) {
    if m == nil || m.Slug == "" { return }
    c.mu.Lock()
    defer c.mu.Unlock()
    c.bySlug[m.Slug] = m
    if m.ConditionID != "" {
        c.byCondition[m.ConditionID] = m.Slug
    }
    for i, id := range m.TokenIDs() {
        c.byToken[id] = tokenRef{Slug: m.Slug, OutcomeIndex: i}
    }
}

func (c *resolverCache) GetBySlug(slug string) (*gamma.Market, bool) {
    c.mu.RLock()
    defer c.mu.RUnlock()
    m, ok := c.bySlug[slug]
    return m, ok
}

func (c *resolverCache) SlugForCondition(conditionID string) (string, bool) {
    c.mu.RLock()
    defer c.mu.RUnlock()
    slug, ok := c.byCondition[conditionID]
    return slug, ok
}

func (c *resolverCache) TokenRef(tokenID string) (tokenRef, bool) {
    c.mu.RLock()
    defer c.mu.RUnlock()
    ref, ok := c.byToken[tokenID]
    return ref, ok
}

// Clear wipes all three indexes atomically; a reader never observes a
// slug entry whose token mappings are already gone.
func (c *resolverCache) Clear() {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.reset()
}

func (c *resolverCache) Len() int {
    c.mu.RLock()
    defer c.mu.RUnlock()
    return len(c.bySlug)
}
