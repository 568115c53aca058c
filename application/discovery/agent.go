// Package discovery implements the supervised points-shop walk that learns
// redemption tokens by observing the storefront client's own API traffic.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"steamclaim/domain/account"
	"steamclaim/domain/rewards"
	"steamclaim/domain/storefront"
	"steamclaim/domain/target"
	"steamclaim/infrastructure/browser"
)

// redeemEndpointSignature identifies the outbound call whose body carries a
// redemption token.
const redeemEndpointSignature = "ILoyaltyRewardsService/RedeemPoints/v1"

// tokenFieldName is the multipart field holding the token.
const tokenFieldName = "input_protobuf_encoded"

// TokenSink receives tokens learned during a page walk. Discovery is the
// only writer of the token namespace.
type TokenSink interface {
	AddTokens(key string, tokens []rewards.Token) error
}

// AgentConfig bounds the waits of a page walk.
type AgentConfig struct {
	PageLoadTimeout  time.Duration
	GridTimeout      time.Duration
	DialogTimeout    time.Duration
	PostClickTimeout time.Duration
}

// DefaultAgentConfig returns default discovery timeouts.
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		PageLoadTimeout:  60 * time.Second,
		GridTimeout:      30 * time.Second,
		DialogTimeout:    10 * time.Second,
		PostClickTimeout: 5 * time.Second,
	}
}

// Agent walks a points-shop page, activating every zero-cost item so the
// page's own script emits the redemption calls the observer harvests.
type Agent struct {
	driverFactory browser.Factory
	selectors     *storefront.Selectors
	sink          TokenSink
	config        *AgentConfig
	logger        *slog.Logger
}

// NewAgent creates a discovery agent.
func NewAgent(factory browser.Factory, selectors *storefront.Selectors, sink TokenSink, config *AgentConfig, logger *slog.Logger) *Agent {
	if config == nil {
		config = DefaultAgentConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		driverFactory: factory,
		selectors:     selectors,
		sink:          sink,
		config:        config,
		logger:        logger,
	}
}

// Discover runs one page walk and returns the deduplicated tokens learned.
// Page-level timeouts yield an empty result rather than an error: the page
// simply taught us nothing this run. Per-item faults abort only that item.
func (a *Agent) Discover(ctx context.Context, acc *account.Account, tgt target.Target) ([]rewards.Token, error) {
	log := a.logger.With("account", acc.ID, "key", tgt.DiscoveryKey())

	drv := a.driverFactory()
	if err := drv.Start(ctx); err != nil {
		return nil, fmt.Errorf("start browsing context: %w", err)
	}
	defer func() {
		if err := drv.Stop(); err != nil {
			log.Warn("Failed to stop browsing context", "error", err)
		}
	}()

	collector := newTokenCollector(log)
	// Registered before navigation so the first page load is covered.
	drv.ObserveRequests(collector.observe)

	if err := drv.SeedCookies(ctx, browser.FromAccountCookies(acc.Cookies), tgt.URL); err != nil {
		return nil, fmt.Errorf("seed cookies: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, a.config.PageLoadTimeout)
	err := drv.Navigate(navCtx, tgt.URL)
	cancel()
	if err != nil {
		log.Warn("Points shop page did not load, no tokens learned", "error", err)
		return nil, nil
	}

	gridCtx, cancel := context.WithTimeout(ctx, a.config.GridTimeout)
	err = drv.WaitVisible(gridCtx, a.selectors.PointsShop.Item)
	cancel()
	if err != nil {
		log.Warn("Item grid never rendered, no tokens learned", "error", err)
		return nil, nil
	}

	count, err := drv.Count(ctx, a.selectors.PointsShop.Item)
	if err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}
	log.Info("Walking points shop items", "count", count)

	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return collector.tokens(), err
		}
		a.visitItem(ctx, drv, i, log)
	}

	tokens := collector.tokens()
	if len(tokens) > 0 {
		if err := a.sink.AddTokens(tgt.DiscoveryKey(), tokens); err != nil {
			log.Warn("Failed to persist discovered tokens, continuing with in-memory state", "error", err)
		}
	}

	log.Info("Page walk finished", "tokens", len(tokens))
	return tokens, nil
}

// visitItem handles one grid item end to end. All faults are local.
func (a *Agent) visitItem(ctx context.Context, drv browser.Driver, index int, log *slog.Logger) {
	ps := a.selectors.PointsShop
	log = log.With("item", index)

	// The price is resolved inside this item's card. A card without a
	// price element reads as "" and is treated as not free.
	price, err := drv.TextWithin(ctx, ps.Item, index, ps.Price)
	if err != nil {
		log.Warn("Failed to read item price, skipping", "error", err)
		return
	}
	if !containsAnyLabel(price, ps.FreeLabels) {
		log.Debug("Item is not free, skipping", "price", price)
		return
	}

	if err := drv.ClickAt(ctx, ps.Item, index); err != nil {
		log.Warn("Failed to activate item", "error", err)
		a.closeAnyModal(ctx, drv, log)
		return
	}

	dialogCtx, cancel := context.WithTimeout(ctx, a.config.DialogTimeout)
	err = drv.WaitVisible(dialogCtx, ps.Dialog)
	cancel()
	if err != nil {
		log.Warn("Purchase dialog never appeared, skipping item", "error", err)
		a.closeAnyModal(ctx, drv, log)
		return
	}

	a.resolveDialog(ctx, drv, log)
}

// resolveDialog settles the purchase dialog into one of its terminal
// states: confirm the free purchase, acknowledge prior ownership, or
// dismiss whatever else is showing.
func (a *Agent) resolveDialog(ctx context.Context, drv browser.Driver, log *slog.Logger) {
	ps := a.selectors.PointsShop

	clicked, err := drv.ClickMatching(ctx, scoped(ps.Dialog, ps.Confirm.Selector), ps.Confirm.Labels)
	if err != nil {
		log.Warn("Dialog probe failed", "error", err)
		a.closeAnyModal(ctx, drv, log)
		return
	}
	if clicked {
		log.Info("Confirmed free purchase")
		a.dismissAfterPurchase(ctx, drv, log)
		return
	}

	equipped, err := drv.FindMatching(ctx, scoped(ps.Dialog, ps.Equipped.Selector), ps.Equipped.Labels)
	if err == nil && equipped {
		log.Info("Item already owned")
		a.closeAnyModal(ctx, drv, log)
		return
	}

	dismissed, err := drv.ClickMatching(ctx, scoped(ps.Dialog, ps.Dismiss.Selector), ps.Dismiss.Labels)
	if err == nil && dismissed {
		log.Info("Item already owned, dialog dismissed")
		return
	}

	log.Warn("Dialog had no recognizable control")
	a.closeAnyModal(ctx, drv, log)
}

// dismissAfterPurchase waits for the post-purchase dialog and dismisses it,
// falling back to the generic modal close when the expected control never
// shows.
func (a *Agent) dismissAfterPurchase(ctx context.Context, drv browser.Driver, log *slog.Logger) {
	ps := a.selectors.PointsShop

	waitCtx, cancel := context.WithTimeout(ctx, a.config.PostClickTimeout)
	defer cancel()

	clicked, err := drv.ClickMatching(waitCtx, ps.Dismiss.Selector, ps.Dismiss.Labels)
	if err != nil || !clicked {
		log.Debug("Post-purchase dismiss control absent, trying generic close")
		a.closeAnyModal(ctx, drv, log)
	}
}

// closeAnyModal tries the fallback close controls in priority order.
func (a *Agent) closeAnyModal(ctx context.Context, drv browser.Driver, log *slog.Logger) {
	for _, ls := range a.selectors.PointsShop.ModalClose {
		clicked, err := drv.ClickMatching(ctx, ls.Selector, ls.Labels)
		if err != nil {
			continue
		}
		if clicked {
			return
		}
	}
	log.Debug("No open modal to close")
}

// scoped narrows a control selector to matches inside the dialog.
func scoped(dialog, selector string) string {
	return dialog + " " + selector
}

func containsAnyLabel(text string, labels []string) bool {
	for _, label := range labels {
		if strings.Contains(text, label) {
			return true
		}
	}
	return false
}

// tokenCollector accumulates tokens from observed redemption calls,
// append-if-absent per page walk.
type tokenCollector struct {
	mu     sync.Mutex
	seen   map[rewards.Token]struct{}
	order  []rewards.Token
	logger *slog.Logger
}

func newTokenCollector(logger *slog.Logger) *tokenCollector {
	return &tokenCollector{
		seen:   make(map[rewards.Token]struct{}),
		logger: logger,
	}
}

// observe inspects one outbound request. It never blocks traffic.
func (c *tokenCollector) observe(req browser.ObservedRequest) {
	if req.Method != http.MethodPost || !strings.Contains(req.URL, redeemEndpointSignature) {
		return
	}
	value := multipartField(req.Body)
	if value == "" {
		c.logger.Warn("Redemption call without extractable token", "url", req.URL)
		return
	}

	token := rewards.Token(value)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[token]; ok {
		return
	}
	c.seen[token] = struct{}{}
	c.order = append(c.order, token)
	c.logger.Info("Observed redemption token")
}

// tokens returns the collected tokens in observation order.
func (c *tokenCollector) tokens() []rewards.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]rewards.Token, len(c.order))
	copy(out, c.order)
	return out
}

var tokenFieldPattern = regexp.MustCompile(`(?s)name="` + tokenFieldName + `"\r\n\r\n(.*?)\r\n(?:--|$)`)

// multipartField extracts the token field value from a raw
// multipart/form-data body. Returns "" when the field is absent.
func multipartField(body string) string {
	match := tokenFieldPattern.FindStringSubmatch(body)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}
