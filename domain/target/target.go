// Package target classifies storefront URLs into the kinds of redeemable
// surfaces this program knows how to drive.
package target

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind tags a storefront URL by the acquisition path it requires.
type Kind int

const (
	// KindUnknown is a URL this program cannot act on.
	KindUnknown Kind = iota
	// KindPointsShop is a points-shop item listing page.
	KindPointsShop
	// KindProduct is a product page that may offer a free license.
	KindProduct
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindPointsShop:
		return "PointsShop"
	case KindProduct:
		return "Product"
	case KindUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// UnknownAppID is the discovery key used when no app id can be parsed from
// the URL path.
const UnknownAppID = "unknown_app"

// Target is a classified storefront URL. Immutable once built.
type Target struct {
	URL   string
	Kind  Kind
	AppID string
}

// DiscoveryKey returns the key used to cache tokens and claim params for
// this target.
func (t Target) DiscoveryKey() string {
	return t.AppID
}

var appIDPattern = regexp.MustCompile(`/app/(\d+)`)

// Classify tags a raw URL. Points-shop pages are matched before plain
// product pages since both contain an /app/<id> segment.
func Classify(raw string) Target {
	t := Target{URL: raw, AppID: UnknownAppID}

	if m := appIDPattern.FindStringSubmatch(raw); m != nil {
		t.AppID = m[1]
	}

	switch {
	case strings.Contains(raw, "/points/shop/app/"):
		t.Kind = KindPointsShop
	case strings.Contains(raw, "/app/"):
		t.Kind = KindProduct
	default:
		t.Kind = KindUnknown
	}

	return t
}
