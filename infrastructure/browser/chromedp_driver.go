package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// ErrNotRunning indicates an operation was attempted on a stopped driver.
var ErrNotRunning = errors.New("browser not running")

// ChromeDriver implements Driver using chromedp. Each instance owns its own
// allocator and browser context; nothing is shared between instances.
type ChromeDriver struct {
	config      *DriverConfig
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.Mutex
	running     bool

	observerMu sync.Mutex
	observers  []RequestObserver
}

// NewChromeDriver creates a new chromedp-based browser driver.
func NewChromeDriver(config *DriverConfig) *ChromeDriver {
	if config == nil {
		config = DefaultDriverConfig()
	}
	return &ChromeDriver{config: config}
}

func (d *ChromeDriver) buildExecAllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.config.Headless),
		chromedp.Flag("hide-scrollbars", d.config.HideScrollbars),
		chromedp.Flag("mute-audio", d.config.MuteAudio),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(d.config.WindowWidth, d.config.WindowHeight),
	)

	if d.config.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(d.config.UserDataDir))
	}

	return opts
}

// Start launches the browsing context.
func (d *ChromeDriver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("browser already running")
	}

	// Allocator derives from context.Background() so the browser lifecycle
	// is independent of the caller's (possibly short-lived) context.
	d.allocCtx, d.allocCancel = chromedp.NewExecAllocator(
		context.Background(),
		d.buildExecAllocatorOptions()...,
	)
	d.ctx, d.cancel = chromedp.NewContext(d.allocCtx)

	// The request listener is installed before any navigation so the
	// first page load is already covered. It observes only; traffic is
	// never held up or modified.
	chromedp.ListenTarget(d.ctx, func(ev interface{}) {
		e, ok := ev.(*network.EventRequestWillBeSent)
		if !ok || e.Request == nil {
			return
		}
		req := ObservedRequest{
			URL:    e.Request.URL,
			Method: e.Request.Method,
			Body:   decodePostData(e.Request.PostDataEntries),
		}

		d.observerMu.Lock()
		observers := make([]RequestObserver, len(d.observers))
		copy(observers, d.observers)
		d.observerMu.Unlock()

		for _, fn := range observers {
			fn(req)
		}
	})

	// Spawn the browser and enable network events.
	if err := chromedp.Run(d.ctx, network.Enable()); err != nil {
		d.cleanupLocked()
		return fmt.Errorf("failed to start browser: %w", err)
	}

	d.running = true
	return nil
}

func decodePostData(entries []*network.PostDataEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var body []byte
	for _, e := range entries {
		if e == nil || e.Bytes == "" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(e.Bytes)
		if err != nil {
			continue
		}
		body = append(body, raw...)
	}
	return string(body)
}

// Stop closes the browser and releases resources.
func (d *ChromeDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	d.cleanupLocked()
	return nil
}

func (d *ChromeDriver) cleanupLocked() {
	d.running = false
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.allocCancel != nil {
		d.allocCancel()
		d.allocCancel = nil
	}
	d.ctx = nil
	d.allocCtx = nil
}

// IsRunning returns true if the browsing context is active.
func (d *ChromeDriver) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// ObserveRequests registers a request observer.
func (d *ChromeDriver) ObserveRequests(fn RequestObserver) {
	d.observerMu.Lock()
	d.observers = append(d.observers, fn)
	d.observerMu.Unlock()
}

// run executes chromedp actions against the browser context, honoring the
// caller context's deadline and cancellation.
func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	d.mu.Lock()
	browserCtx := d.ctx
	running := d.running
	d.mu.Unlock()

	if !running || browserCtx == nil {
		return ErrNotRunning
	}

	execCtx := browserCtx
	if deadline, ok := ctx.Deadline(); ok {
		timeout := time.Until(deadline)
		if timeout <= 0 {
			return context.DeadlineExceeded
		}
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(browserCtx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(execCtx, actions...)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SeedCookies applies session cookies to the browsing context.
func (d *ChromeDriver) SeedCookies(ctx context.Context, cookies []Cookie, pageURL string) error {
	plan, err := SeedPlan(cookies, pageURL)
	if err != nil {
		return err
	}

	actions := make([]chromedp.Action, len(plan))
	for i, sc := range plan {
		sc := sc
		actions[i] = chromedp.ActionFunc(func(ctx context.Context) error {
			p := network.SetCookie(sc.Name, sc.Value).
				WithHTTPOnly(sc.HTTPOnly).
				WithSecure(sc.Secure).
				WithSameSite(cookieSameSite(sc.SameSite))
			if sc.URL != "" {
				p = p.WithURL(sc.URL)
			} else {
				p = p.WithDomain(sc.Domain).WithPath(sc.Path)
			}
			return p.Do(ctx)
		})
	}

	return d.run(ctx, actions...)
}

func cookieSameSite(s string) network.CookieSameSite {
	switch s {
	case "Strict":
		return network.CookieSameSiteStrict
	case "None":
		return network.CookieSameSiteNone
	default:
		return network.CookieSameSiteLax
	}
}

// Navigate opens the URL and waits for the page to be ready.
func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// CurrentURL returns the current page URL.
func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := d.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// WaitVisible waits for an element matching selector to become visible.
func (d *ChromeDriver) WaitVisible(ctx context.Context, selector string) error {
	return d.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Count returns how many elements match selector.
func (d *ChromeDriver) Count(ctx context.Context, selector string) (int, error) {
	var n int
	expr := fmt.Sprintf(`document.querySelectorAll(%s).length`, jsArg(selector))
	if err := d.run(ctx, chromedp.Evaluate(expr, &n)); err != nil {
		return 0, err
	}
	return n, nil
}

// TextAt returns the text content of the index-th element matching selector.
func (d *ChromeDriver) TextAt(ctx context.Context, selector string, index int) (string, error) {
	var text string
	expr := fmt.Sprintf(
		`(document.querySelectorAll(%s)[%d]?.textContent ?? "").trim()`,
		jsArg(selector), index,
	)
	if err := d.run(ctx, chromedp.Evaluate(expr, &text)); err != nil {
		return "", err
	}
	return text, nil
}

// TextWithin returns the text of the first childSelector match inside the
// index-th selector match.
func (d *ChromeDriver) TextWithin(ctx context.Context, selector string, index int, childSelector string) (string, error) {
	var text string
	expr := fmt.Sprintf(
		`(document.querySelectorAll(%s)[%d]?.querySelector(%s)?.textContent ?? "").trim()`,
		jsArg(selector), index, jsArg(childSelector),
	)
	if err := d.run(ctx, chromedp.Evaluate(expr, &text)); err != nil {
		return "", err
	}
	return text, nil
}

// ClickAt clicks the index-th element matching selector with a real mouse
// event so the storefront's client script sees a user interaction.
func (d *ChromeDriver) ClickAt(ctx context.Context, selector string, index int) error {
	var nodes []*cdp.Node
	err := d.run(ctx,
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(nodes) {
		return fmt.Errorf("no element %d for selector %q (have %d)", index, selector, len(nodes))
	}
	return d.run(ctx, chromedp.MouseClickNode(nodes[index]))
}

// Exists reports whether any element matches selector.
func (d *ChromeDriver) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	expr := fmt.Sprintf(`document.querySelector(%s) !== null`, jsArg(selector))
	if err := d.run(ctx, chromedp.Evaluate(expr, &found)); err != nil {
		return false, err
	}
	return found, nil
}

// AttributeOf returns the named attribute of the first element matching
// selector.
func (d *ChromeDriver) AttributeOf(ctx context.Context, selector, name string) (string, bool, error) {
	var value *string
	expr := fmt.Sprintf(
		`(() => { const el = document.querySelector(%s); return el ? el.getAttribute(%s) : null; })()`,
		jsArg(selector), jsArg(name),
	)
	if err := d.run(ctx, chromedp.Evaluate(expr, &value)); err != nil {
		return "", false, err
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

// AttributeOfMatching returns the named attribute of the first labeled
// element matching selector.
func (d *ChromeDriver) AttributeOfMatching(ctx context.Context, selector string, labels []string, name string) (string, bool, error) {
	idx, err := d.matchIndex(ctx, selector, labels)
	if err != nil {
		return "", false, err
	}
	if idx < 0 {
		return "", false, nil
	}
	var value *string
	expr := fmt.Sprintf(
		`(() => { const el = document.querySelectorAll(%s)[%d]; return el ? el.getAttribute(%s) : null; })()`,
		jsArg(selector), idx, jsArg(name),
	)
	if err := d.run(ctx, chromedp.Evaluate(expr, &value)); err != nil {
		return "", false, err
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

// matchIndex finds the index of the first selector match whose text contains
// any of the labels; -1 when absent. Empty labels match the first element.
func (d *ChromeDriver) matchIndex(ctx context.Context, selector string, labels []string) (int, error) {
	if labels == nil {
		labels = []string{}
	}
	var idx int
	expr := fmt.Sprintf(`(() => {
		const els = document.querySelectorAll(%s);
		const labels = %s;
		for (let i = 0; i < els.length; i++) {
			if (labels.length === 0) return i;
			const t = els[i].textContent || "";
			for (const l of labels) { if (t.includes(l)) return i; }
		}
		return -1;
	})()`, jsArg(selector), jsArg(labels))
	if err := d.run(ctx, chromedp.Evaluate(expr, &idx)); err != nil {
		return -1, err
	}
	return idx, nil
}

// FindMatching reports whether a labeled element exists.
func (d *ChromeDriver) FindMatching(ctx context.Context, selector string, labels []string) (bool, error) {
	idx, err := d.matchIndex(ctx, selector, labels)
	if err != nil {
		return false, err
	}
	return idx >= 0, nil
}

// ClickMatching clicks the first labeled element if present.
func (d *ChromeDriver) ClickMatching(ctx context.Context, selector string, labels []string) (bool, error) {
	idx, err := d.matchIndex(ctx, selector, labels)
	if err != nil {
		return false, err
	}
	if idx < 0 {
		return false, nil
	}
	if err := d.ClickAt(ctx, selector, idx); err != nil {
		return false, err
	}
	return true, nil
}

// SetValue sets the value of a form control.
func (d *ChromeDriver) SetValue(ctx context.Context, selector, value string) error {
	return d.run(ctx, chromedp.SetValue(selector, value, chromedp.ByQuery))
}

// Click clicks the first element matching selector.
func (d *ChromeDriver) Click(ctx context.Context, selector string) error {
	return d.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

// Cookies returns the context's current cookie set.
func (d *ChromeDriver) Cookies(ctx context.Context) ([]Cookie, error) {
	var networkCookies []*network.Cookie
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		networkCookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to get cookies: %w", err)
	}

	cookies := make([]Cookie, len(networkCookies))
	for i, nc := range networkCookies {
		cookies[i] = Cookie{
			Name:     nc.Name,
			Value:    nc.Value,
			Domain:   nc.Domain,
			Path:     nc.Path,
			HTTPOnly: nc.HTTPOnly,
			Secure:   nc.Secure,
			SameSite: string(nc.SameSite),
		}
	}
	return cookies, nil
}

// jsArg marshals a Go value into a JavaScript literal.
func jsArg(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// Ensure ChromeDriver implements Driver
var _ Driver = (*ChromeDriver)(nil)
