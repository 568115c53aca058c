// Package browser provides the guided-browser capability: an isolated,
// cookie-seeded browsing context that can navigate, query the DOM, simulate
// clicks and observe outbound network requests.
package browser

import (
	"context"
)

// Driver defines the interface for one guided browsing context.
// Queries for elements return absence as a normal result, never an error:
// a missing affordance is a branch of the caller's state machine.
type Driver interface {
	// Start launches the browsing context.
	Start(ctx context.Context) error

	// Stop tears the browsing context down and releases resources.
	// Safe to call on every exit path.
	Stop() error

	// IsRunning returns true if the browsing context is active.
	IsRunning() bool

	// SeedCookies applies session cookies to the context, using the
	// translation rules described on SeedPlan.
	SeedCookies(ctx context.Context, cookies []Cookie, pageURL string) error

	// ObserveRequests registers an observer for outbound requests. The
	// observer never blocks or modifies traffic. Must be called before
	// Navigate for the first page load to be covered.
	ObserveRequests(fn RequestObserver)

	// Navigate opens the URL and waits for the page to be ready.
	Navigate(ctx context.Context, url string) error

	// CurrentURL returns the current page URL.
	CurrentURL(ctx context.Context) (string, error)

	// WaitVisible waits for an element matching selector to become visible.
	WaitVisible(ctx context.Context, selector string) error

	// Count returns how many elements match selector.
	Count(ctx context.Context, selector string) (int, error)

	// TextAt returns the text content of the index-th element matching
	// selector ("" if out of range).
	TextAt(ctx context.Context, selector string, index int) (string, error)

	// TextWithin returns the text content of the first element matching
	// childSelector inside the index-th element matching selector ("" when
	// the container or child is absent). The child is resolved relative to
	// its own container, so containers without a child never bleed into
	// their neighbours.
	TextWithin(ctx context.Context, selector string, index int, childSelector string) (string, error)

	// ClickAt clicks the index-th element matching selector.
	ClickAt(ctx context.Context, selector string, index int) error

	// Exists reports whether any element matches selector.
	Exists(ctx context.Context, selector string) (bool, error)

	// AttributeOf returns the named attribute of the first element
	// matching selector; found is false when the element or attribute is
	// absent.
	AttributeOf(ctx context.Context, selector, name string) (value string, found bool, err error)

	// AttributeOfMatching returns the named attribute of the first element
	// matching selector whose text contains any of the labels. Empty
	// labels match the first element.
	AttributeOfMatching(ctx context.Context, selector string, labels []string, name string) (value string, found bool, err error)

	// FindMatching reports whether an element matching selector exists
	// whose text contains any of the labels. Empty labels match the first
	// element.
	FindMatching(ctx context.Context, selector string, labels []string) (bool, error)

	// ClickMatching clicks the first element matching selector whose text
	// contains any of the labels. Returns clicked=false when no such
	// element exists.
	ClickMatching(ctx context.Context, selector string, labels []string) (bool, error)

	// SetValue sets the value of a form control.
	SetValue(ctx context.Context, selector, value string) error

	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error

	// Cookies returns the context's current cookie set.
	Cookies(ctx context.Context) ([]Cookie, error)
}

// Factory creates a fresh, isolated Driver per unit of work so concurrent
// account tasks never share browser state.
type Factory func() Driver

// RequestObserver receives a copy of every outbound request.
type RequestObserver func(req ObservedRequest)

// ObservedRequest is a snapshot of one outbound network request.
type ObservedRequest struct {
	URL    string
	Method string
	Body   string
}

// Cookie represents a browser cookie.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	HTTPOnly bool
	Secure   bool
	SameSite string
}

// DriverConfig holds configuration for browser drivers.
type DriverConfig struct {
	// Headless runs the browser without a visible window.
	Headless bool

	// WindowWidth is the browser window width.
	WindowWidth int

	// WindowHeight is the browser window height.
	WindowHeight int

	// MuteAudio mutes browser audio.
	MuteAudio bool

	// HideScrollbars hides scrollbars.
	HideScrollbars bool

	// UserDataDir specifies a custom user data directory.
	UserDataDir string
}

// DefaultDriverConfig returns default browser configuration.
func DefaultDriverConfig() *DriverConfig {
	return &DriverConfig{
		Headless:       true,
		WindowWidth:    1280,
		WindowHeight:   900,
		MuteAudio:      true,
		HideScrollbars: true,
	}
}
