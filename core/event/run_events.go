package event

// AccountStarted is published when an account's processing begins.
type AccountStarted struct {
	baseAccountEvent
	Name string
	URLs int
}

// NewAccountStarted creates an AccountStarted event.
func NewAccountStarted(accountID, name string, urls int) *AccountStarted {
	return &AccountStarted{baseAccountEvent: baseAccountEvent{accountID: accountID}, Name: name, URLs: urls}
}

func (e *AccountStarted) EventName() string { return "AccountStarted" }

// AccountAuthFailed is published when no credential could be derived for an
// account; the account is skipped and queued for re-authentication.
type AccountAuthFailed struct {
	baseAccountEvent
	Reason string
}

// NewAccountAuthFailed creates an AccountAuthFailed event.
func NewAccountAuthFailed(accountID, reason string) *AccountAuthFailed {
	return &AccountAuthFailed{baseAccountEvent: baseAccountEvent{accountID: accountID}, Reason: reason}
}

func (e *AccountAuthFailed) EventName() string { return "AccountAuthFailed" }

// TokensDiscovered is published after a guided page walk learns new
// redemption tokens.
type TokensDiscovered struct {
	baseAccountEvent
	AppID string
	Count int
}

// NewTokensDiscovered creates a TokensDiscovered event.
func NewTokensDiscovered(accountID, appID string, count int) *TokensDiscovered {
	return &TokensDiscovered{baseAccountEvent: baseAccountEvent{accountID: accountID}, AppID: appID, Count: count}
}

func (e *TokensDiscovered) EventName() string { return "TokensDiscovered" }

// TokenRedeemed is published per redemption attempt.
type TokenRedeemed struct {
	baseAccountEvent
	AppID   string
	Success bool
}

// NewTokenRedeemed creates a TokenRedeemed event.
func NewTokenRedeemed(accountID, appID string, success bool) *TokenRedeemed {
	return &TokenRedeemed{baseAccountEvent: baseAccountEvent{accountID: accountID}, AppID: appID, Success: success}
}

func (e *TokenRedeemed) EventName() string { return "TokenRedeemed" }

// URLProcessed is published when one target URL reaches a terminal outcome.
type URLProcessed struct {
	baseAccountEvent
	URL    string
	Status string
	Reason string
}

// NewURLProcessed creates a URLProcessed event.
func NewURLProcessed(accountID, url, status, reason string) *URLProcessed {
	return &URLProcessed{baseAccountEvent: baseAccountEvent{accountID: accountID}, URL: url, Status: status, Reason: reason}
}

func (e *URLProcessed) EventName() string { return "URLProcessed" }

// AccountFinished is published when an account's processing completes.
type AccountFinished struct {
	baseAccountEvent
	Succeeded bool
}

// NewAccountFinished creates an AccountFinished event.
func NewAccountFinished(accountID string, succeeded bool) *AccountFinished {
	return &AccountFinished{baseAccountEvent: baseAccountEvent{accountID: accountID}, Succeeded: succeeded}
}

func (e *AccountFinished) EventName() string { return "AccountFinished" }
