package cache

import (
	"strings"
	"time"

	ruledomain "github.com/smallbiznis/loyara/internal/rule/domain"
)

const defaultRuleTTL = 30 * time.Second

// RuleResolverCache stores hot-path rule resolutions for the earn/burn path.
// The TTL is short: a stale rule at most delays a policy change by seconds.
type RuleResolverCache interface {
	Get(merchantID string, kind ruledomain.RuleKind) (*ruledomain.Rule, bool)
	Set(merchantID string, kind ruledomain.RuleKind, rule *ruledomain.Rule)
	Invalidate(merchantID string, kind ruledomain.RuleKind)
}

type ruleResolverCache struct {
	rules Cache[string, *ruledomain.Rule]
	ttl   time.Duration
}

// NewRuleResolverCache returns an in-memory cache tuned for rule resolution.
func NewRuleResolverCache() RuleResolverCache {
	return &ruleResolverCache{
		rules: NewTTLCache[string, *ruledomain.Rule](),
		ttl:   defaultRuleTTL,
	}
}

func (c *ruleResolverCache) Get(merchantID string, kind ruledomain.RuleKind) (*ruledomain.Rule, bool) {
	return c.rules.Get(cacheKey(merchantID, string(kind)))
}

func (c *ruleResolverCache) Set(merchantID string, kind ruledomain.RuleKind, rule *ruledomain.Rule) {
	if rule == nil || rule.ID == 0 {
		return
	}
	c.rules.Set(cacheKey(merchantID, string(kind)), rule, c.ttl)
}

func (c *ruleResolverCache) Invalidate(merchantID string, kind ruledomain.RuleKind) {
	c.rules.Delete(cacheKey(merchantID, string(kind)))
}

func cacheKey(parts ...string) string {
	return strings.Join(parts, ":")
}
