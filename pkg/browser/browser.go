// Package browser defines the Browser Surface contract the scenario engine
// drives — navigation, element interaction, evaluation, screenshotting —
// and provides the chromedp-backed implementation.
package browser

import (
	"context"
	"time"
)

// ElementState names the condition WaitForSelector waits for.
type ElementState string

const (
	StateVisible  ElementState = "visible"
	StateHidden   ElementState = "hidden"
	StateAttached ElementState = "attached"
)

// Default timeouts for Surface operations. Explicit waits poll longer than
// interaction primitives.
const (
	DefaultWaitTimeout   = 10 * time.Second
	DefaultActionTimeout = 5 * time.Second
)

// Page is a handle to one browser page. Every method is a suspension point:
// the engine resumes only after the call settles. Implementations:
// chromedp session pages; test stubs live alongside the engine tests.
type Page interface {
	// Navigate loads url and waits for the given lifecycle state
	// ("load", "domcontentloaded", "networkidle"; "" means "load").
	Navigate(ctx context.Context, url, waitUntil string) error

	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)

	Click(ctx context.Context, selector string, timeout time.Duration) error
	Fill(ctx context.Context, selector, value string, timeout time.Duration) error
	// Type sends text as individual key events, pausing delay between keys.
	Type(ctx context.Context, selector, text string, delay time.Duration) error

	// Count returns the number of elements currently matching selector.
	Count(ctx context.Context, selector string) (int, error)
	// Visible reports whether the first element matching selector is visible.
	Visible(ctx context.Context, selector string) (bool, error)
	// Text returns the trimmed text content of the first element matching
	// selector.
	Text(ctx context.Context, selector string) (string, error)

	WaitForSelector(ctx context.Context, selector string, state ElementState, timeout time.Duration) error
	WaitForLoad(ctx context.Context, state string, timeout time.Duration) error
	// WaitForURL polls the current URL until match reports true.
	WaitForURL(ctx context.Context, match func(string) bool, timeout time.Duration) error

	// Screenshot captures the viewport (or full page) to path. Callers
	// resolve path through ResolveArtifactPath first.
	Screenshot(ctx context.Context, path string, fullPage bool) error

	// Evaluate runs script on the page and returns its result rendered as a
	// string ("" when the script yields no value).
	Evaluate(ctx context.Context, script string) (string, error)

	SetViewport(ctx context.Context, width, height int) error
}

// Session is the connection-level object: named-page retrieval and the smart
// cross-frame form-fill helper.
type Session interface {
	// Page returns the named page handle, creating it on first use.
	Page(ctx context.Context, name string) (Page, error)
	// FillForm fills fields (selector → value) on the page, searching
	// same-origin frames for each field.
	FillForm(ctx context.Context, page Page, fields map[string]string) error
	Close() error
}
