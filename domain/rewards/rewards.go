// Package rewards defines the durable discovery record: redemption tokens
// learned from points-shop walks and claim params learned from product pages.
package rewards

// Token is an opaque capability string emitted by the storefront's client
// script when a zero-cost points purchase completes. It is never interpreted
// here, only replayed against the redemption endpoint.
type Token string

// ClaimParams is the minimal set of form fields identifying a product or
// bundle for the add-free-license call.
type ClaimParams struct {
	SubID    string `yaml:"subid"`
	BundleID string `yaml:"bundleid,omitempty"`
}

// IsZero returns true if the params carry no identifiers.
func (p ClaimParams) IsZero() bool {
	return p.SubID == "" && p.BundleID == ""
}

// PersistentConfig is the aggregate discovery record. It is owned by the
// orchestrator and shared by reference with the components that read or
// populate it; callers serialize access through the cachefile store.
//
// Tokens are a discovery record, not a consumption log: a token stays cached
// after redemption.
type PersistentConfig struct {
	PointsShopTokens map[string][]Token     `yaml:"points_shop_tokens"`
	FreeGameParams   map[string]ClaimParams `yaml:"free_game_params"`
}

// NewPersistentConfig returns an empty aggregate ready for use.
func NewPersistentConfig() *PersistentConfig {
	return &PersistentConfig{
		PointsShopTokens: make(map[string][]Token),
		FreeGameParams:   make(map[string]ClaimParams),
	}
}

// normalize ensures maps exist after deserialization of an empty file.
func (c *PersistentConfig) normalize() {
	if c.PointsShopTokens == nil {
		c.PointsShopTokens = make(map[string][]Token)
	}
	if c.FreeGameParams == nil {
		c.FreeGameParams = make(map[string]ClaimParams)
	}
}

// Tokens returns the cached token list for a discovery key. The returned
// slice is a copy; mutating it does not affect the aggregate.
func (c *PersistentConfig) Tokens(key string) []Token {
	tokens := c.PointsShopTokens[key]
	if len(tokens) == 0 {
		return nil
	}
	out := make([]Token, len(tokens))
	copy(out, tokens)
	return out
}

// AddTokens merges tokens into the entry for key, suppressing duplicates
// while preserving discovery order. Returns the number of tokens actually
// added.
func (c *PersistentConfig) AddTokens(key string, tokens []Token) int {
	c.normalize()
	existing := c.PointsShopTokens[key]
	seen := make(map[Token]struct{}, len(existing))
	for _, t := range existing {
		seen[t] = struct{}{}
	}

	added := 0
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		existing = append(existing, t)
		seen[t] = struct{}{}
		added++
	}
	if added > 0 {
		c.PointsShopTokens[key] = existing
	}
	return added
}

// Params returns the cached claim params for a discovery key and whether an
// entry exists.
func (c *PersistentConfig) Params(key string) (ClaimParams, bool) {
	p, ok := c.FreeGameParams[key]
	return p, ok
}

// SetParams records the claim params for a discovery key, replacing any
// previous entry. Returns true if the aggregate changed.
func (c *PersistentConfig) SetParams(key string, params ClaimParams) bool {
	c.normalize()
	if prev, ok := c.FreeGameParams[key]; ok && prev == params {
		return false
	}
	c.FreeGameParams[key] = params
	return true
}

// Clone creates a deep copy of the aggregate.
func (c *PersistentConfig) Clone() *PersistentConfig {
	clone := NewPersistentConfig()
	for key, tokens := range c.PointsShopTokens {
		cp := make([]Token, len(tokens))
		copy(cp, tokens)
		clone.PointsShopTokens[key] = cp
	}
	for key, params := range c.FreeGameParams {
		clone.FreeGameParams[key] = params
	}
	return clone
}
