// Package account defines the Account entity and related types.
package account

// Account represents a storefront account with its authenticated session
// material. Accounts are loaded once per run and treated as immutable.
type Account struct {
	// ID is the 64-bit platform user id, kept as a string.
	ID string

	// Name is the login name of the account.
	Name string

	// SharedSecret is the TOTP shared secret from the credential bundle.
	// The login handshake itself happens outside this program; the secret
	// is carried so external tooling can refresh sessions in place.
	SharedSecret string

	// Cookies is the authenticated session cookie set for the storefront
	// origin.
	Cookies []Cookie
}

// Cookie represents one session cookie as stored in a credential bundle.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	HTTPOnly bool
	Secure   bool
	SameSite string
}

// Identity returns a human-readable identifier for log lines.
func (a *Account) Identity() string {
	if a.Name == "" {
		return a.ID
	}
	return a.ID + " (" + a.Name + ")"
}

// HasCookies returns true if the account carries a session cookie set.
func (a *Account) HasCookies() bool {
	return len(a.Cookies) > 0
}

// Clone creates a deep copy of the account.
func (a *Account) Clone() *Account {
	clone := &Account{
		ID:           a.ID,
		Name:         a.Name,
		SharedSecret: a.SharedSecret,
	}
	if len(a.Cookies) > 0 {
		clone.Cookies = make([]Cookie, len(a.Cookies))
		copy(clone.Cookies, a.Cookies)
	}
	return clone
}
