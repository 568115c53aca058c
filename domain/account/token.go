package account

import (
	"errors"
	"strings"
)

// loginCookieName is the storefront cookie carrying the web API access token.
const loginCookieName = "steamLoginSecure"

// tokenDelimiter separates the user id prefix from the access token inside
// the login cookie value. The value is URL-encoded, so the "||" separator
// appears as "%7C%7C".
const tokenDelimiter = "%7C%7C"

// ErrTokenNotFound indicates the session cookies carry no usable access token.
var ErrTokenNotFound = errors.New("access token not found in session cookies")

// AccessTokenFromCookies derives the bearer token used for direct web API
// calls from an authenticated session's cookie set. The token is the
// substring following the last delimiter in the login cookie's value.
func AccessTokenFromCookies(cookies []Cookie) (string, error) {
	for _, c := range cookies {
		if c.Name != loginCookieName {
			continue
		}
		idx := strings.LastIndex(c.Value, tokenDelimiter)
		if idx < 0 {
			return "", ErrTokenNotFound
		}
		token := c.Value[idx+len(tokenDelimiter):]
		if token == "" {
			return "", ErrTokenNotFound
		}
		return token, nil
	}
	return "", ErrTokenNotFound
}
