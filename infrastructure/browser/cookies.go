package browser

import (
	"fmt"
	"net/url"
	"strings"
)

// SeedCookie is one cookie prepared for injection into a browsing context.
// Exactly one of URL or Domain+Path is set.
type SeedCookie struct {
	Name     string
	Value    string
	URL      string
	Domain   string
	Path     string
	HTTPOnly bool
	Secure   bool
	SameSite string
}

// SeedPlan translates session cookies into injectable form.
//
// Cookies whose domain starts with a dot are applied through an origin URL
// instead of an explicit domain/path pair; strict same-site scoping rejects
// dotted domains set explicitly. Cookies without a domain fall back to the
// target page's host. A missing or unrecognized SameSite becomes Lax.
func SeedPlan(cookies []Cookie, pageURL string) ([]SeedCookie, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("seed plan needs a valid page URL: %q", pageURL)
	}

	plan := make([]SeedCookie, 0, len(cookies))
	for _, c := range cookies {
		sc := SeedCookie{
			Name:     c.Name,
			Value:    c.Value,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: normalizeSameSite(c.SameSite),
		}

		switch {
		case strings.HasPrefix(c.Domain, "."):
			host := strings.TrimPrefix(c.Domain, ".")
			path := c.Path
			if path == "" {
				path = "/"
			}
			sc.URL = "https://" + host + path
		case c.Domain != "" && c.Path != "":
			sc.Domain = c.Domain
			sc.Path = c.Path
		default:
			sc.Domain = parsed.Hostname()
			sc.Path = "/"
		}

		plan = append(plan, sc)
	}
	return plan, nil
}

func normalizeSameSite(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return "Strict"
	case "none":
		return "None"
	case "lax":
		return "Lax"
	default:
		return "Lax"
	}
}
