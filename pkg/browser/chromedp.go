package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// Options configures a Chrome session.
type Options struct {
	Headless bool
	ExecPath string // custom Chrome binary (optional)
}

// ChromeSession drives a local Chrome via the DevTools protocol. It owns one
// allocator and a set of named pages created on demand.
type ChromeSession struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu    sync.Mutex
	pages map[string]*chromePage
}

// NewSession launches (or prepares to launch) Chrome. The browser process
// starts on first page use.
func NewSession(ctx context.Context, opts Options) (*ChromeSession, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	return &ChromeSession{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		pages:       make(map[string]*chromePage),
	}, nil
}

// Page returns the named page, creating a fresh tab on first use.
func (s *ChromeSession) Page(ctx context.Context, name string) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pages[name]; ok {
		return p, nil
	}

	tabCtx, tabCancel := chromedp.NewContext(s.allocCtx)
	// Start the tab (and the browser on the first call).
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("start page %q: %w", name, err)
	}
	p := &chromePage{ctx: tabCtx, cancel: tabCancel}
	s.pages[name] = p
	return p, nil
}

// FillForm fills each field on the page, falling back to a same-origin
// cross-frame search when the selector is not found in the main document.
func (s *ChromeSession) FillForm(ctx context.Context, page Page, fields map[string]string) error {
	for selector, value := range fields {
		n, err := page.Count(ctx, selector)
		if err != nil {
			return fmt.Errorf("fillForm %q: %w", selector, err)
		}
		if n > 0 {
			if err := page.Fill(ctx, selector, value, DefaultActionTimeout); err != nil {
				return fmt.Errorf("fillForm %q: %w", selector, err)
			}
			continue
		}
		res, err := page.Evaluate(ctx, crossFrameFillScript(selector, value))
		if err != nil {
			return fmt.Errorf("fillForm %q (cross-frame): %w", selector, err)
		}
		if res != "true" {
			return fmt.Errorf("fillForm: no element matches %q in any reachable frame", selector)
		}
	}
	return nil
}

// Close tears down all pages and the browser process.
func (s *ChromeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pages {
		p.cancel()
	}
	s.pages = make(map[string]*chromePage)
	s.allocCancel()
	return nil
}

// chromePage implements Page over one chromedp tab context.
type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func (p *chromePage) Navigate(ctx context.Context, url, waitUntil string) error {
	if err := p.run(ctx, DefaultWaitTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if waitUntil == "" {
		waitUntil = "load"
	}
	return p.WaitForLoad(ctx, waitUntil, DefaultWaitTimeout)
}

func (p *chromePage) Title(ctx context.Context) (string, error) {
	var title string
	err := p.run(ctx, DefaultActionTimeout, chromedp.Title(&title))
	return title, err
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var loc string
	err := p.run(ctx, DefaultActionTimeout, chromedp.Location(&loc))
	return loc, err
}

func (p *chromePage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	err := p.run(ctx, timeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

func (p *chromePage) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	err := p.run(ctx, timeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("fill %q: %w", selector, err)
	}
	return nil
}

func (p *chromePage) Type(ctx context.Context, selector, text string, delay time.Duration) error {
	if err := p.run(ctx, DefaultActionTimeout, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("type %q: %w", selector, err)
	}
	for _, r := range text {
		if err := p.run(ctx, DefaultActionTimeout, chromedp.SendKeys(selector, string(r), chromedp.ByQuery)); err != nil {
			return fmt.Errorf("type %q: %w", selector, err)
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func (p *chromePage) Count(ctx context.Context, selector string) (int, error) {
	res, err := p.Evaluate(ctx, fmt.Sprintf("document.querySelectorAll(%s).length", strconv.Quote(selector)))
	if err != nil {
		return 0, fmt.Errorf("count %q: %w", selector, err)
	}
	n, err := strconv.Atoi(res)
	if err != nil {
		return 0, fmt.Errorf("count %q: unexpected result %q", selector, res)
	}
	return n, nil
}

func (p *chromePage) Visible(ctx context.Context, selector string) (bool, error) {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		const style = window.getComputedStyle(el);
		if (style.display === "none" || style.visibility === "hidden") return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	})()`, strconv.Quote(selector))
	res, err := p.Evaluate(ctx, script)
	if err != nil {
		return false, fmt.Errorf("visible %q: %w", selector, err)
	}
	return res == "true", nil
}

func (p *chromePage) Text(ctx context.Context, selector string) (string, error) {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		return el ? el.textContent : "";
	})()`, strconv.Quote(selector))
	res, err := p.Evaluate(ctx, script)
	if err != nil {
		return "", fmt.Errorf("text %q: %w", selector, err)
	}
	return strings.TrimSpace(res), nil
}

func (p *chromePage) WaitForSelector(ctx context.Context, selector string, state ElementState, timeout time.Duration) error {
	if state == "" {
		state = StateVisible
	}
	check := func() (bool, error) {
		switch state {
		case StateAttached:
			n, err := p.Count(ctx, selector)
			return n > 0, err
		case StateVisible:
			return p.Visible(ctx, selector)
		case StateHidden:
			n, err := p.Count(ctx, selector)
			if err != nil {
				return false, err
			}
			if n == 0 {
				return true, nil
			}
			vis, err := p.Visible(ctx, selector)
			return !vis, err
		default:
			return false, fmt.Errorf("unknown element state %q", state)
		}
	}
	if err := p.poll(ctx, timeout, check); err != nil {
		return fmt.Errorf("wait for %q to be %s: %w", selector, state, err)
	}
	return nil
}

func (p *chromePage) WaitForLoad(ctx context.Context, state string, timeout time.Duration) error {
	want := "complete"
	if state == "domcontentloaded" {
		want = "interactive"
	}
	check := func() (bool, error) {
		res, err := p.Evaluate(ctx, "document.readyState")
		if err != nil {
			return false, err
		}
		if want == "interactive" {
			return res == "interactive" || res == "complete", nil
		}
		return res == "complete", nil
	}
	if err := p.poll(ctx, timeout, check); err != nil {
		return fmt.Errorf("wait for %s: %w", state, err)
	}
	// No CDP network-quiet signal here; a short settle approximates idle.
	if state == "networkidle" {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *chromePage) WaitForURL(ctx context.Context, match func(string) bool, timeout time.Duration) error {
	check := func() (bool, error) {
		loc, err := p.URL(ctx)
		if err != nil {
			return false, err
		}
		return match(loc), nil
	}
	if err := p.poll(ctx, timeout, check); err != nil {
		return fmt.Errorf("wait for url: %w", err)
	}
	return nil
}

func (p *chromePage) Screenshot(ctx context.Context, path string, fullPage bool) error {
	var buf []byte
	var action chromedp.Action
	if fullPage {
		action = chromedp.FullScreenshot(&buf, 90)
	} else {
		action = chromedp.CaptureScreenshot(&buf)
	}
	if err := p.run(ctx, DefaultWaitTimeout, action); err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	if err := EnsureArtifactDir(path); err != nil {
		return fmt.Errorf("screenshot dir: %w", err)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}

func (p *chromePage) Evaluate(ctx context.Context, script string) (string, error) {
	var out string
	err := p.run(ctx, DefaultWaitTimeout, chromedp.ActionFunc(func(cdpCtx context.Context) error {
		obj, exc, err := cdpruntime.Evaluate(script).
			WithReturnByValue(true).
			WithAwaitPromise(true).
			Do(cdpCtx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("script exception: %s", exc.Text)
		}
		if obj == nil || obj.Value == nil {
			out = ""
			return nil
		}
		out = renderRemoteValue(obj.Value)
		return nil
	}))
	if err != nil {
		return "", fmt.Errorf("evaluate: %w", err)
	}
	return out, nil
}

func (p *chromePage) SetViewport(ctx context.Context, width, height int) error {
	err := p.run(ctx, DefaultActionTimeout, chromedp.ActionFunc(func(cdpCtx context.Context) error {
		return emulation.SetDeviceMetricsOverride(int64(width), int64(height), 1.0, false).Do(cdpCtx)
	}))
	if err != nil {
		return fmt.Errorf("set viewport %dx%d: %w", width, height, err)
	}
	return nil
}

// run executes chromedp actions on this page under a timeout.
func (p *chromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx := p.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// poll checks a condition every 100ms until it holds or the timeout lapses.
func (p *chromePage) poll(ctx context.Context, timeout time.Duration, check func() (bool, error)) error {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		ok, err := check()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout after %s", timeout)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// renderRemoteValue renders a ReturnByValue result as a plain string:
// JSON strings are unquoted, everything else keeps its JSON form.
func renderRemoteValue(raw []byte) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// crossFrameFillScript builds the same-origin frame-walking fill used by
// FillForm when the main document has no match. Returns "true" on success.
func crossFrameFillScript(selector, value string) string {
	return fmt.Sprintf(`(() => {
		const sel = %s, val = %s;
		const fill = (doc) => {
			const el = doc.querySelector(sel);
			if (!el) return false;
			el.focus();
			el.value = val;
			el.dispatchEvent(new Event("input", {bubbles: true}));
			el.dispatchEvent(new Event("change", {bubbles: true}));
			return true;
		};
		const docs = [document];
		for (const frame of document.querySelectorAll("iframe")) {
			try {
				if (frame.contentDocument) docs.push(frame.contentDocument);
			} catch (e) { /* cross-origin */ }
		}
		return docs.some(fill);
	})()`, strconv.Quote(selector), strconv.Quote(value))
}
