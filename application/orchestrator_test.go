package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"steamclaim/application/claim"
	"steamclaim/application/redeem"
	"steamclaim/core/state"
	"steamclaim/domain/account"
	"steamclaim/domain/rewards"
	"steamclaim/domain/target"
)

type memoryRepo struct {
	accounts []*account.Account
}

func (r *memoryRepo) FindByID(ctx context.Context, id string) (*account.Account, error) {
	for _, acc := range r.accounts {
		if acc.ID == id {
			return acc, nil
		}
	}
	return nil, nil
}

func (r *memoryRepo) FindAll(ctx context.Context) ([]*account.Account, error) {
	return r.accounts, nil
}

type memoryCache struct {
	tokens map[string][]rewards.Token
	params map[string]rewards.ClaimParams
	adds   int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		tokens: map[string][]rewards.Token{},
		params: map[string]rewards.ClaimParams{},
	}
}

func (c *memoryCache) Tokens(key string) []rewards.Token { return c.tokens[key] }

func (c *memoryCache) AddTokens(key string, tokens []rewards.Token) error {
	c.adds++
	c.tokens[key] = append(c.tokens[key], tokens...)
	return nil
}

func (c *memoryCache) Params(key string) (rewards.ClaimParams, bool) {
	p, ok := c.params[key]
	return p, ok
}

func (c *memoryCache) SetParams(key string, params rewards.ClaimParams) error {
	c.params[key] = params
	return nil
}

type stubDiscoverer struct {
	tokens map[string][]rewards.Token
	err    error
	calls  []string
}

func (d *stubDiscoverer) Discover(ctx context.Context, acc *account.Account, tgt target.Target) ([]rewards.Token, error) {
	d.calls = append(d.calls, tgt.DiscoveryKey())
	if d.err != nil {
		return nil, d.err
	}
	return d.tokens[tgt.DiscoveryKey()], nil
}

type stubRedeemer struct {
	mu     sync.Mutex
	calls  []string
	tokens [][]rewards.Token
	fail   bool
}

func (r *stubRedeemer) Redeem(ctx context.Context, accessToken, key string, tokens []rewards.Token, referer string) *redeem.Report {
	r.mu.Lock()
	r.calls = append(r.calls, key)
	r.tokens = append(r.tokens, tokens)
	r.mu.Unlock()
	rep := &redeem.Report{Key: key}
	for _, tok := range tokens {
		res := redeem.TokenResult{Token: tok}
		if r.fail {
			res.Err = errors.New("status 403")
		}
		rep.Results = append(rep.Results, res)
	}
	return rep
}

type stubClaimer struct {
	calls    []string
	outcomes map[string]*claim.Outcome
}

func (c *stubClaimer) Claim(ctx context.Context, acc *account.Account, tgt target.Target) *claim.Outcome {
	c.calls = append(c.calls, tgt.DiscoveryKey())
	if out, ok := c.outcomes[tgt.DiscoveryKey()]; ok {
		return out
	}
	return &claim.Outcome{State: state.StateDone, Reason: claim.ReasonLicenseAdded}
}

func authedAccount(id string) *account.Account {
	return &account.Account{
		ID:   id,
		Name: "player_" + id,
		Cookies: []account.Cookie{
			{Name: "steamLoginSecure", Value: id + "%7C%7Cjwt_" + id},
		},
	}
}

type fixture struct {
	orch       *Orchestrator
	cache      *memoryCache
	discoverer *stubDiscoverer
	redeemer   *stubRedeemer
	claimer    *stubClaimer
}

func newFixture(accounts ...*account.Account) *fixture {
	f := &fixture{
		cache:      newMemoryCache(),
		discoverer: &stubDiscoverer{tokens: map[string][]rewards.Token{}},
		redeemer:   &stubRedeemer{},
		claimer:    &stubClaimer{outcomes: map[string]*claim.Outcome{}},
	}
	f.orch = NewOrchestrator(&OrchestratorConfig{
		Accounts:   account.NewService(&memoryRepo{accounts: accounts}),
		Cache:      f.cache,
		Discoverer: f.discoverer,
		Redeemer:   f.redeemer,
		Claimer:    f.claimer,
	})
	return f
}

const shopURL = "https://store.steampowered.com/points/shop/app/570"
const productURL = "https://store.steampowered.com/app/440/Game/"

func TestRun_NoURLs(t *testing.T) {
	f := newFixture(authedAccount("1"))
	if _, err := f.orch.Run(context.Background(), nil); !errors.Is(err, ErrNoTargets) {
		t.Errorf("Run() error = %v, want ErrNoTargets", err)
	}
}

func TestRun_NoAccounts(t *testing.T) {
	f := newFixture()
	if _, err := f.orch.Run(context.Background(), []string{shopURL}); !errors.Is(err, account.ErrNoAccounts) {
		t.Errorf("Run() error = %v, want ErrNoAccounts", err)
	}
}

func TestRun_CacheHitBypassesDiscovery(t *testing.T) {
	f := newFixture(authedAccount("1"))
	f.cache.tokens["570"] = []rewards.Token{"TOKEN1"}

	report, err := f.orch.Run(context.Background(), []string{shopURL})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(f.discoverer.calls) != 0 {
		t.Error("discovery invoked despite cache hit")
	}
	if len(f.redeemer.calls) != 1 || f.redeemer.calls[0] != "570" {
		t.Errorf("redeemer calls = %v", f.redeemer.calls)
	}
	if len(f.redeemer.tokens[0]) != 1 || f.redeemer.tokens[0][0] != "TOKEN1" {
		t.Errorf("redeemed tokens = %v", f.redeemer.tokens[0])
	}
	if !report.Accounts[0].Succeeded() {
		t.Error("account not marked succeeded")
	}
}

func TestRun_CacheMissRunsDiscovery(t *testing.T) {
	f := newFixture(authedAccount("1"))
	f.discoverer.tokens["570"] = []rewards.Token{"TOKEN_A", "TOKEN_B"}

	_, err := f.orch.Run(context.Background(), []string{shopURL})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(f.discoverer.calls) != 1 {
		t.Errorf("discovery calls = %v", f.discoverer.calls)
	}
	if len(f.redeemer.tokens) != 1 || len(f.redeemer.tokens[0]) != 2 {
		t.Errorf("redeemed tokens = %v", f.redeemer.tokens)
	}
}

func TestRun_EmptyDiscoveryRedeemsNothing(t *testing.T) {
	f := newFixture(authedAccount("1"))

	report, err := f.orch.Run(context.Background(), []string{shopURL})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(f.redeemer.calls) != 0 {
		t.Error("redeemer invoked with no tokens")
	}
	acc := report.Accounts[0]
	if !acc.Succeeded() || acc.URLs[0].Reason != "no-tokens" {
		t.Errorf("outcome = %+v", acc.URLs[0])
	}
}

func TestRun_AuthFailureSkipsAccountAndContinues(t *testing.T) {
	broken := &account.Account{ID: "1", Name: "broken"}
	f := newFixture(broken, authedAccount("2"))
	f.cache.tokens["570"] = []rewards.Token{"TOKEN1"}

	report, err := f.orch.Run(context.Background(), []string{shopURL})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if !report.Accounts[0].NeedsReauth {
		t.Error("broken account not flagged for reauth")
	}
	if len(report.Accounts[0].URLs) != 0 {
		t.Error("urls processed without a credential")
	}
	if !report.Accounts[1].Succeeded() {
		t.Error("healthy account failed")
	}
	if got := report.NeedsReauth(); len(got) != 1 || got[0] != "1" {
		t.Errorf("NeedsReauth() = %v", got)
	}
}

func TestRun_ProductDispatchedToClaimer(t *testing.T) {
	f := newFixture(authedAccount("1"))

	report, err := f.orch.Run(context.Background(), []string{productURL})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(f.claimer.calls) != 1 || f.claimer.calls[0] != "440" {
		t.Errorf("claimer calls = %v", f.claimer.calls)
	}
	if len(f.discoverer.calls) != 0 || len(f.redeemer.calls) != 0 {
		t.Error("points-shop pipeline invoked for a product url")
	}
	if report.Accounts[0].URLs[0].Status != "Done" {
		t.Errorf("status = %v", report.Accounts[0].URLs[0].Status)
	}
}

func TestRun_FailedClaimDoesNotAbortRemainingURLs(t *testing.T) {
	f := newFixture(authedAccount("1"))
	f.claimer.outcomes["440"] = &claim.Outcome{
		State:  state.StateFailed,
		Reason: claim.ReasonRejected,
		Err:    errors.New("status 400"),
	}
	f.cache.tokens["570"] = []rewards.Token{"TOKEN1"}

	report, err := f.orch.Run(context.Background(), []string{productURL, shopURL})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	acc := report.Accounts[0]
	if len(acc.URLs) != 2 {
		t.Fatalf("urls = %d, want 2", len(acc.URLs))
	}
	if !acc.URLs[0].Failed || acc.URLs[1].Failed {
		t.Errorf("outcomes = %+v", acc.URLs)
	}
	if acc.Succeeded() {
		t.Error("account with a failed url marked succeeded")
	}
	if len(f.redeemer.calls) != 1 {
		t.Error("shop url not processed after failed claim")
	}
}

func TestRun_SkippedClaimCountsAsSuccess(t *testing.T) {
	f := newFixture(authedAccount("1"))
	f.claimer.outcomes["440"] = &claim.Outcome{
		State:  state.StateSkipped,
		Reason: claim.ReasonAlreadyOwned,
	}

	report, err := f.orch.Run(context.Background(), []string{productURL})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !report.Accounts[0].Succeeded() {
		t.Error("skipped claim treated as failure")
	}
}

func TestRun_UnknownURLSkipped(t *testing.T) {
	f := newFixture(authedAccount("1"))

	report, err := f.orch.Run(context.Background(), []string{"https://store.steampowered.com/news/"})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	out := report.Accounts[0].URLs[0]
	if out.Failed || out.Reason != "unrecognized-url" {
		t.Errorf("outcome = %+v", out)
	}
	if len(f.claimer.calls)+len(f.discoverer.calls)+len(f.redeemer.calls) != 0 {
		t.Error("unknown url reached a pipeline")
	}
}

func TestRun_PartialRedemptionFailsURL(t *testing.T) {
	f := newFixture(authedAccount("1"))
	f.cache.tokens["570"] = []rewards.Token{"TOKEN1", "TOKEN2"}
	f.redeemer.fail = true

	report, err := f.orch.Run(context.Background(), []string{shopURL})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	out := report.Accounts[0].URLs[0]
	if !out.Failed || out.Status != "partial" {
		t.Errorf("outcome = %+v", out)
	}
}

func TestRun_ConcurrentAccountsIsolated(t *testing.T) {
	f := newFixture(authedAccount("1"), authedAccount("2"), authedAccount("3"))
	f.cache.tokens["570"] = []rewards.Token{"TOKEN1"}
	f.orch.concurrency = 3

	report, err := f.orch.Run(context.Background(), []string{shopURL})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(report.Accounts) != 3 {
		t.Fatalf("accounts = %d", len(report.Accounts))
	}
	for i, acc := range report.Accounts {
		if acc == nil || !acc.Succeeded() {
			t.Errorf("account %d report = %+v", i, acc)
		}
	}
}
