// Package application provides the application layer orchestrating a run
// over accounts and target URLs.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"steamclaim/application/claim"
	"steamclaim/application/redeem"
	"steamclaim/core/event"
	"steamclaim/core/eventbus"
	"steamclaim/domain/account"
	"steamclaim/domain/rewards"
	"steamclaim/domain/target"
)

// ErrNoTargets is returned when the run has no URLs to process.
var ErrNoTargets = errors.New("no target urls supplied")

// TokenCache is the shared durable cache, serialized internally so
// concurrent account tasks never lose updates.
type TokenCache interface {
	Tokens(key string) []rewards.Token
	AddTokens(key string, tokens []rewards.Token) error
	Params(key string) (rewards.ClaimParams, bool)
	SetParams(key string, params rewards.ClaimParams) error
}

// Discoverer runs a guided points-shop walk.
type Discoverer interface {
	Discover(ctx context.Context, acc *account.Account, tgt target.Target) ([]rewards.Token, error)
}

// Redeemer spends redemption tokens through the direct API.
type Redeemer interface {
	Redeem(ctx context.Context, accessToken, key string, tokens []rewards.Token, referer string) *redeem.Report
}

// Claimer takes a product page to a terminal claim outcome.
type Claimer interface {
	Claim(ctx context.Context, acc *account.Account, tgt target.Target) *claim.Outcome
}

// URLOutcome classifies one processed target for the run summary.
type URLOutcome struct {
	Target target.Target
	Status string
	Reason string
	Failed bool
}

// AccountReport is the per-account outcome of a run.
type AccountReport struct {
	AccountID   string
	Name        string
	NeedsReauth bool
	URLs        []URLOutcome
}

// Succeeded reports whether every URL of the account completed without
// failure and the credential held for the whole account.
func (r *AccountReport) Succeeded() bool {
	if r.NeedsReauth {
		return false
	}
	for _, u := range r.URLs {
		if u.Failed {
			return false
		}
	}
	return true
}

// RunReport summarizes a whole run.
type RunReport struct {
	Accounts []*AccountReport
}

// NeedsReauth lists the accounts whose sessions must be refreshed before
// the next run.
func (r *RunReport) NeedsReauth() []string {
	var ids []string
	for _, acc := range r.Accounts {
		if acc.NeedsReauth {
			ids = append(ids, acc.AccountID)
		}
	}
	return ids
}

// Orchestrator coordinates accounts, targets, discovery, redemption and
// claims for one run.
type Orchestrator struct {
	accounts   *account.Service
	cache      TokenCache
	discoverer Discoverer
	redeemer   Redeemer
	claimer    Claimer
	eventBus   eventbus.EventBus
	logger     *slog.Logger

	// concurrency is the number of accounts processed at once. Each
	// concurrent task owns an isolated browsing context; the cache is
	// the only shared structure.
	concurrency int
}

// OrchestratorConfig holds configuration for the Orchestrator.
type OrchestratorConfig struct {
	Accounts    *account.Service
	Cache       TokenCache
	Discoverer  Discoverer
	Redeemer    Redeemer
	Claimer     Claimer
	EventBus    eventbus.EventBus
	Logger      *slog.Logger
	Concurrency int
}

// NewOrchestrator creates a run orchestrator.
func NewOrchestrator(cfg *OrchestratorConfig) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		accounts:    cfg.Accounts,
		cache:       cfg.Cache,
		discoverer:  cfg.Discoverer,
		redeemer:    cfg.Redeemer,
		claimer:     cfg.Claimer,
		eventBus:    cfg.EventBus,
		logger:      cfg.Logger,
		concurrency: concurrency,
	}
}

// Run processes every account against every target URL, in order. A
// failure inside one account never aborts the others.
func (o *Orchestrator) Run(ctx context.Context, rawURLs []string) (*RunReport, error) {
	if len(rawURLs) == 0 {
		return nil, ErrNoTargets
	}

	targets := make([]target.Target, len(rawURLs))
	for i, raw := range rawURLs {
		targets[i] = target.Classify(raw)
	}

	accounts, err := o.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	o.logger.Info("Run starting", "accounts", len(accounts), "urls", len(targets))

	report := &RunReport{Accounts: make([]*AccountReport, len(accounts))}

	if o.concurrency == 1 {
		for i, acc := range accounts {
			report.Accounts[i] = o.processAccount(ctx, acc, targets)
		}
	} else {
		sem := make(chan struct{}, o.concurrency)
		var wg sync.WaitGroup
		for i, acc := range accounts {
			wg.Add(1)
			go func(i int, acc *account.Account) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				report.Accounts[i] = o.processAccount(ctx, acc, targets)
			}(i, acc)
		}
		wg.Wait()
	}

	o.logger.Info("Run finished",
		"accounts", len(report.Accounts),
		"needs_reauth", len(report.NeedsReauth()))
	return report, nil
}

// processAccount runs every target for one account. All faults are caught
// here and converted to the account report.
func (o *Orchestrator) processAccount(ctx context.Context, acc *account.Account, targets []target.Target) *AccountReport {
	log := o.logger.With("account", acc.Identity())
	report := &AccountReport{AccountID: acc.ID, Name: acc.Name}

	o.publish(event.NewAccountStarted(acc.ID, acc.Name, len(targets)))

	accessToken, err := account.AccessTokenFromCookies(acc.Cookies)
	if err != nil {
		log.Warn("No credential for account, skipping", "error", err)
		report.NeedsReauth = true
		o.publish(event.NewAccountAuthFailed(acc.ID, err.Error()))
		o.publish(event.NewAccountFinished(acc.ID, false))
		return report
	}

	for _, tgt := range targets {
		if err := ctx.Err(); err != nil {
			report.URLs = append(report.URLs, URLOutcome{Target: tgt, Status: "cancelled", Reason: err.Error(), Failed: true})
			continue
		}
		outcome := o.processTarget(ctx, acc, accessToken, tgt, log)
		report.URLs = append(report.URLs, outcome)
		o.publish(event.NewURLProcessed(acc.ID, tgt.URL, outcome.Status, outcome.Reason))
	}

	o.publish(event.NewAccountFinished(acc.ID, report.Succeeded()))
	return report
}

// processTarget dispatches one classified target.
func (o *Orchestrator) processTarget(ctx context.Context, acc *account.Account, accessToken string, tgt target.Target, log *slog.Logger) URLOutcome {
	switch tgt.Kind {
	case target.KindPointsShop:
		return o.processPointsShop(ctx, acc, accessToken, tgt, log)
	case target.KindProduct:
		return o.processProduct(ctx, acc, tgt)
	case target.KindUnknown:
		log.Warn("Unrecognized target url, skipping", "url", tgt.URL)
		return URLOutcome{Target: tgt, Status: "skipped", Reason: "unrecognized-url"}
	default:
		return URLOutcome{Target: tgt, Status: "skipped", Reason: "unrecognized-url"}
	}
}

// processPointsShop redeems for one shop page, discovering tokens only on
// a cache miss.
func (o *Orchestrator) processPointsShop(ctx context.Context, acc *account.Account, accessToken string, tgt target.Target, log *slog.Logger) URLOutcome {
	key := tgt.DiscoveryKey()

	tokens := o.cache.Tokens(key)
	if len(tokens) > 0 {
		log.Info("Using cached tokens, skipping discovery", "key", key, "tokens", len(tokens))
	} else {
		discovered, err := o.discoverer.Discover(ctx, acc, tgt)
		if err != nil {
			log.Warn("Discovery failed", "key", key, "error", err)
			return URLOutcome{Target: tgt, Status: "failed", Reason: "discovery-failed", Failed: true}
		}
		o.publish(event.NewTokensDiscovered(acc.ID, key, len(discovered)))
		tokens = discovered
	}

	if len(tokens) == 0 {
		log.Info("No tokens for page, nothing to redeem", "key", key)
		return URLOutcome{Target: tgt, Status: "skipped", Reason: "no-tokens"}
	}

	rep := o.redeemer.Redeem(ctx, accessToken, key, tokens, tgt.URL)
	for _, res := range rep.Results {
		o.publish(event.NewTokenRedeemed(acc.ID, key, res.Err == nil))
	}
	if rep.Failed() > 0 {
		return URLOutcome{
			Target: tgt,
			Status: "partial",
			Reason: fmt.Sprintf("%d of %d tokens rejected", rep.Failed(), len(rep.Results)),
			Failed: true,
		}
	}
	return URLOutcome{Target: tgt, Status: "done", Reason: "redeemed"}
}

// processProduct runs the claim state machine for one product page.
func (o *Orchestrator) processProduct(ctx context.Context, acc *account.Account, tgt target.Target) URLOutcome {
	outcome := o.claimer.Claim(ctx, acc, tgt)
	return URLOutcome{
		Target: tgt,
		Status: outcome.State.String(),
		Reason: outcome.Reason,
		Failed: !outcome.Succeeded(),
	}
}

func (o *Orchestrator) publish(e event.Event) {
	if o.eventBus != nil {
		o.eventBus.Publish(e)
	}
}
