package browser

import "steamclaim/domain/account"

// FromAccountCookies converts stored account cookies into browser cookies
// ready for seeding.
func FromAccountCookies(cookies []account.Cookie) []Cookie {
	out := make([]Cookie, len(cookies))
	for i, c := range cookies {
		out[i] = Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite,
		}
	}
	return out
}
