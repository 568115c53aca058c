// Package claim drives a product page to a free license through an
// explicit state machine.
package claim

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"steamclaim/core/state"
	"steamclaim/domain/account"
	"steamclaim/domain/rewards"
	"steamclaim/domain/storefront"
	"steamclaim/domain/target"
	"steamclaim/infrastructure/browser"
	"steamclaim/infrastructure/steamweb"
)

// Claim outcome reasons.
const (
	ReasonLicenseAdded   = "license-added"
	ReasonLibraryAdded   = "library-added"
	ReasonInstallStarted = "install-started"
	ReasonAlreadyOwned   = "already-owned"
	ReasonNotEligible    = "not-eligible"
	ReasonPageTimeout    = "page-load-timeout"
	ReasonAgeGateTimeout = "age-gate-timeout"
	ReasonNoSessionID    = "no-sessionid"
	ReasonScrapeFailed   = "param-scrape-failed"
	ReasonRejected       = "license-rejected"
)

// Age-gate submission values. Any date old enough passes every gate.
const (
	ageGateYear  = "1999"
	ageGateMonth = "January"
	ageGateDay   = "1"
)

var (
	subIDPattern    = regexp.MustCompile(`addToCart\(\s*(\d+)`)
	bundleIDPattern = regexp.MustCompile(`addBundleToCart\(\s*(\d+)`)
)

// ParamStore is the claim-param namespace of the cache.
type ParamStore interface {
	Params(key string) (rewards.ClaimParams, bool)
	SetParams(key string, params rewards.ClaimParams) error
}

// Outcome is the terminal result of one claim attempt.
type Outcome struct {
	State  state.ClaimState
	Reason string
	Err    error
}

// Succeeded reports whether the attempt ended without a failure. Skipped
// counts as success: there was nothing left to do.
func (o *Outcome) Succeeded() bool {
	return o.State == state.StateDone || o.State == state.StateSkipped
}

// MachineConfig bounds the waits of a claim attempt.
type MachineConfig struct {
	PageLoadTimeout   time.Duration
	AgeGateTimeout    time.Duration
	AgeGatePollDelay  time.Duration
	AffordanceTimeout time.Duration
}

// DefaultMachineConfig returns default claim timeouts.
func DefaultMachineConfig() *MachineConfig {
	return &MachineConfig{
		PageLoadTimeout:   60 * time.Second,
		AgeGateTimeout:    30 * time.Second,
		AgeGatePollDelay:  500 * time.Millisecond,
		AffordanceTimeout: 10 * time.Second,
	}
}

// Machine runs claim attempts. One Machine serves many product pages; each
// attempt owns a fresh browsing context.
type Machine struct {
	driverFactory browser.Factory
	selectors     *storefront.Selectors
	web           steamweb.Client
	params        ParamStore
	config        *MachineConfig
	logger        *slog.Logger
}

// NewMachine creates a claim state machine.
func NewMachine(factory browser.Factory, selectors *storefront.Selectors, web steamweb.Client, params ParamStore, config *MachineConfig, logger *slog.Logger) *Machine {
	if config == nil {
		config = DefaultMachineConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		driverFactory: factory,
		selectors:     selectors,
		web:           web,
		params:        params,
		config:        config,
		logger:        logger,
	}
}

// attempt carries the per-page mutable state of one run of the machine.
type attempt struct {
	drv     browser.Driver
	tgt     target.Target
	current state.ClaimState
	log     *slog.Logger
}

// advance moves the attempt to the next state, enforcing the transition
// table. An invalid transition is a programming error and fails the
// attempt rather than corrupting it.
func (a *attempt) advance(to state.ClaimState) error {
	if !a.current.CanTransitionTo(to) {
		return state.NewTransitionError(a.current, to, "")
	}
	a.log.Debug("Claim state transition", "from", a.current.String(), "to", to.String())
	a.current = to
	return nil
}

// Claim takes one product page to a terminal state. All faults are local
// to this URL; the caller decides what a Failed outcome means for the run.
func (m *Machine) Claim(ctx context.Context, acc *account.Account, tgt target.Target) *Outcome {
	log := m.logger.With("account", acc.ID, "key", tgt.DiscoveryKey())

	drv := m.driverFactory()
	if err := drv.Start(ctx); err != nil {
		return &Outcome{State: state.StateFailed, Reason: ReasonPageTimeout, Err: err}
	}
	defer func() {
		if err := drv.Stop(); err != nil {
			log.Warn("Failed to stop browsing context", "error", err)
		}
	}()

	a := &attempt{drv: drv, tgt: tgt, current: state.StateInit, log: log}

	if err := drv.SeedCookies(ctx, browser.FromAccountCookies(acc.Cookies), tgt.URL); err != nil {
		return m.fail(a, ReasonPageTimeout, err)
	}

	navCtx, cancel := context.WithTimeout(ctx, m.config.PageLoadTimeout)
	err := drv.Navigate(navCtx, tgt.URL)
	cancel()
	if err != nil {
		return m.fail(a, ReasonPageTimeout, err)
	}

	if outcome := m.passAgeGate(ctx, a); outcome != nil {
		return outcome
	}

	if err := a.advance(state.StateOwnershipCheck); err != nil {
		return m.fail(a, "", err)
	}
	owned, err := drv.FindMatching(ctx, m.selectors.Product.Owned.Selector, m.selectors.Product.Owned.Labels)
	if err != nil {
		return m.fail(a, "", err)
	}
	if owned {
		log.Info("Product already owned")
		return m.finish(a, state.StateSkipped, ReasonAlreadyOwned)
	}

	if err := a.advance(state.StateEligibilityCheck); err != nil {
		return m.fail(a, "", err)
	}
	hasForm, err := drv.Exists(ctx, m.selectors.Product.FreeLicenseForm)
	if err != nil {
		return m.fail(a, "", err)
	}
	if !hasForm {
		return m.claimThroughUI(ctx, a)
	}

	return m.claimThroughAPI(ctx, a)
}

// passAgeGate submits a fixed birth date when the page landed on the age
// interstitial, then waits for the redirect back to the product page.
// Returns a non-nil outcome only on failure.
func (m *Machine) passAgeGate(ctx context.Context, a *attempt) *Outcome {
	p := m.selectors.Product

	current, err := a.drv.CurrentURL(ctx)
	if err != nil {
		return m.fail(a, ReasonPageTimeout, err)
	}
	if !strings.Contains(current, p.AgeGatePath) {
		return nil
	}

	if err := a.advance(state.StateAgeGate); err != nil {
		return m.fail(a, "", err)
	}
	a.log.Info("Passing age verification")

	gateCtx, cancel := context.WithTimeout(ctx, m.config.AgeGateTimeout)
	defer cancel()

	if err := a.drv.SetValue(gateCtx, p.AgeYear, ageGateYear); err != nil {
		return m.fail(a, ReasonAgeGateTimeout, err)
	}
	if err := a.drv.SetValue(gateCtx, p.AgeMonth, ageGateMonth); err != nil {
		return m.fail(a, ReasonAgeGateTimeout, err)
	}
	if err := a.drv.SetValue(gateCtx, p.AgeDay, ageGateDay); err != nil {
		return m.fail(a, ReasonAgeGateTimeout, err)
	}
	if err := a.drv.Click(gateCtx, p.AgeSubmit); err != nil {
		return m.fail(a, ReasonAgeGateTimeout, err)
	}

	// Wait for the redirect off the interstitial.
	for {
		current, err := a.drv.CurrentURL(gateCtx)
		if err == nil && !strings.Contains(current, p.AgeGatePath) {
			return nil
		}
		select {
		case <-gateCtx.Done():
			return m.fail(a, ReasonAgeGateTimeout, gateCtx.Err())
		case <-time.After(m.config.AgeGatePollDelay):
		}
	}
}

// claimThroughAPI resolves claim params and issues the direct license
// call. Stale cached params get exactly one re-scrape.
func (m *Machine) claimThroughAPI(ctx context.Context, a *attempt) *Outcome {
	key := a.tgt.DiscoveryKey()

	if err := a.advance(state.StateParamResolution); err != nil {
		return m.fail(a, "", err)
	}

	params, cached := m.params.Params(key)
	if cached {
		a.log.Info("Using cached claim params", "subid", params.SubID)
	} else {
		var err error
		params, err = m.scrapeParams(ctx, a)
		if err != nil {
			return m.fail(a, ReasonScrapeFailed, err)
		}
	}

	outcome, submitErr := m.submit(ctx, a, params, !cached)
	if outcome != nil {
		return outcome
	}

	if !cached {
		return m.fail(a, ReasonRejected, submitErr)
	}

	// The cached params went stale. Re-scrape once and retry; a second
	// rejection is terminal for this run.
	a.log.Warn("Cached claim params rejected, re-scraping once", "error", submitErr)
	if err := a.advance(state.StateParamResolution); err != nil {
		return m.fail(a, "", err)
	}
	fresh, err := m.scrapeParams(ctx, a)
	if err != nil {
		return m.fail(a, ReasonScrapeFailed, err)
	}

	outcome, submitErr = m.submit(ctx, a, fresh, true)
	if outcome != nil {
		return outcome
	}
	return m.fail(a, ReasonRejected, submitErr)
}

// submit issues the add-free-license call with a freshly read session. The
// grant rides the browsing context's cookies so the sessionid form field
// matches the sessionid cookie. Returns the terminal outcome on success, or
// (nil, err) so the caller can decide on a retry.
func (m *Machine) submit(ctx context.Context, a *attempt, params rewards.ClaimParams, persistOnSuccess bool) (*Outcome, error) {
	sessionID, jar, err := m.liveSession(ctx, a.drv)
	if err != nil {
		return m.fail(a, ReasonNoSessionID, err), nil
	}

	if err := a.advance(state.StateSubmit); err != nil {
		return m.fail(a, "", err), nil
	}

	err = m.web.AddFreeLicense(ctx, &steamweb.AddLicenseRequest{
		SessionID: sessionID,
		SubID:     params.SubID,
		BundleID:  params.BundleID,
		Referer:   a.tgt.URL,
		Cookies:   jar,
	})
	if err != nil {
		return nil, err
	}

	if persistOnSuccess {
		if err := m.params.SetParams(a.tgt.DiscoveryKey(), params); err != nil {
			a.log.Warn("Failed to persist claim params, continuing", "error", err)
		}
	}

	a.log.Info("Free license added", "subid", params.SubID)
	return m.finish(a, state.StateDone, ReasonLicenseAdded), nil
}

// claimThroughUI handles products that expose only UI affordances instead
// of the license form: a library-add control with a follow-up dialog, or
// an install control that redirects.
func (m *Machine) claimThroughUI(ctx context.Context, a *attempt) *Outcome {
	p := m.selectors.Product

	uiCtx, cancel := context.WithTimeout(ctx, m.config.AffordanceTimeout)
	defer cancel()

	clicked, err := a.drv.ClickMatching(uiCtx, p.AddToLibrary.Selector, p.AddToLibrary.Labels)
	if err != nil {
		return m.fail(a, "", err)
	}
	if clicked {
		a.log.Info("Added to library through page UI")
		if dismissed, err := a.drv.ClickMatching(uiCtx, p.LibraryConfirm.Selector, p.LibraryConfirm.Labels); err != nil || !dismissed {
			a.log.Debug("Library confirmation dialog not dismissed", "error", err)
		}
		return m.finish(a, state.StateDone, ReasonLibraryAdded)
	}

	clicked, err = a.drv.ClickMatching(uiCtx, p.Install.Selector, p.Install.Labels)
	if err != nil {
		return m.fail(a, "", err)
	}
	if clicked {
		a.log.Info("Install started through page UI")
		return m.finish(a, state.StateDone, ReasonInstallStarted)
	}

	a.log.Info("Product offers no free license")
	return m.finish(a, state.StateSkipped, ReasonNotEligible)
}

// scrapeParams reads the cart-add identifiers out of the page.
func (m *Machine) scrapeParams(ctx context.Context, a *attempt) (rewards.ClaimParams, error) {
	p := m.selectors.Product

	scrapeCtx, cancel := context.WithTimeout(ctx, m.config.AffordanceTimeout)
	defer cancel()

	// Pages can carry several purchase buttons under the same class;
	// the label picks the add-to-account one.
	href, found, err := a.drv.AttributeOfMatching(scrapeCtx, p.AddToAccount.Selector, p.AddToAccount.Labels, "href")
	if err != nil {
		return rewards.ClaimParams{}, fmt.Errorf("read add-to-account control: %w", err)
	}
	if !found {
		return rewards.ClaimParams{}, fmt.Errorf("add-to-account control not found")
	}

	match := subIDPattern.FindStringSubmatch(href)
	if match == nil {
		return rewards.ClaimParams{}, fmt.Errorf("no cart-add identifier in %q", href)
	}
	params := rewards.ClaimParams{SubID: match[1]}

	if value, found, err := a.drv.AttributeOf(scrapeCtx, p.BundleInput, "value"); err == nil && found && value != "" {
		params.BundleID = value
	} else if bundleMatch := bundleIDPattern.FindStringSubmatch(href); bundleMatch != nil {
		params.BundleID = bundleMatch[1]
	}

	a.log.Info("Scraped claim params", "subid", params.SubID, "bundleid", params.BundleID)
	return params, nil
}

// liveSession reads the current cookie set and extracts the sessionid. The
// sessionid rotates, so it is re-read on every submit and never cached.
func (m *Machine) liveSession(ctx context.Context, drv browser.Driver) (string, []*http.Cookie, error) {
	cookies, err := drv.Cookies(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("read session cookies: %w", err)
	}
	var sessionID string
	jar := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		jar = append(jar, &http.Cookie{Name: c.Name, Value: c.Value})
		if c.Name == "sessionid" && c.Value != "" {
			sessionID = c.Value
		}
	}
	if sessionID == "" {
		return "", nil, fmt.Errorf("sessionid cookie not present")
	}
	return sessionID, jar, nil
}

func (m *Machine) finish(a *attempt, terminal state.ClaimState, reason string) *Outcome {
	if err := a.advance(terminal); err != nil {
		return &Outcome{State: state.StateFailed, Reason: reason, Err: err}
	}
	return &Outcome{State: terminal, Reason: reason}
}

func (m *Machine) fail(a *attempt, reason string, err error) *Outcome {
	if a.current.CanTransitionTo(state.StateFailed) {
		a.current = state.StateFailed
	}
	a.log.Warn("Claim attempt failed", "reason", reason, "error", err)
	return &Outcome{State: state.StateFailed, Reason: reason, Err: err}
}
