// Package assertions implements the post-step page checks: title, URL glob,
// element visibility and existence, text content, and match counts.
package assertions

import (
	"context"
	"fmt"
	"strings"

	"github.com/ormasoftchile/gaze/pkg/browser"
	"github.com/ormasoftchile/gaze/pkg/schema"
)

// Result captures one assertion outcome.
type Result struct {
	Kind     string `json:"kind"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message"`
}

// Run evaluates assertions in declaration order against the page. The first
// failure stops evaluation and is returned as an error; a surface error
// (selector query failed, page gone) also stops and propagates.
func Run(ctx context.Context, list []schema.Assertion, page browser.Page) error {
	for i, a := range list {
		r, err := Evaluate(ctx, a, page)
		if err != nil {
			return fmt.Errorf("assertion %d: %w", i+1, err)
		}
		if !r.Passed {
			return fmt.Errorf("assertion %d (%s) failed: %s", i+1, r.Kind, r.Message)
		}
	}
	return nil
}

// Evaluate runs a single assertion against the page.
func Evaluate(ctx context.Context, a schema.Assertion, page browser.Page) (*Result, error) {
	switch {
	case a.Title != "":
		return evalTitle(ctx, page, a.Title)
	case a.TitleContains != "":
		return evalTitleContains(ctx, page, a.TitleContains)
	case a.URL != "":
		return evalURL(ctx, page, a.URL)
	case a.Visible != "":
		return evalVisible(ctx, page, a.Visible)
	case a.Hidden != "":
		return evalHidden(ctx, page, a.Hidden)
	case a.Exists != "":
		return evalExists(ctx, page, a.Exists)
	case a.Text != nil:
		return evalText(ctx, page, a.Text)
	case a.Count != nil:
		return evalCount(ctx, page, a.Count)
	}
	return &Result{
		Kind:    "unknown",
		Passed:  false,
		Message: "no assertion field set",
	}, nil
}

func evalTitle(ctx context.Context, page browser.Page, want string) (*Result, error) {
	title, err := page.Title(ctx)
	if err != nil {
		return nil, err
	}
	passed := title == want
	msg := fmt.Sprintf("title is %q", want)
	if !passed {
		msg = fmt.Sprintf("title is %q, want %q", title, want)
	}
	return &Result{Kind: "title", Expected: want, Actual: title, Passed: passed, Message: msg}, nil
}

func evalTitleContains(ctx context.Context, page browser.Page, want string) (*Result, error) {
	title, err := page.Title(ctx)
	if err != nil {
		return nil, err
	}
	passed := strings.Contains(title, want)
	msg := fmt.Sprintf("title contains %q", want)
	if !passed {
		msg = fmt.Sprintf("title %q does not contain %q", title, want)
	}
	return &Result{Kind: "titleContains", Expected: want, Actual: title, Passed: passed, Message: msg}, nil
}

func evalURL(ctx context.Context, page browser.Page, pattern string) (*Result, error) {
	re, err := CompileGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid url pattern %q: %w", pattern, err)
	}
	url, err := page.URL(ctx)
	if err != nil {
		return nil, err
	}
	passed := re.MatchString(url)
	msg := fmt.Sprintf("url matches %q", pattern)
	if !passed {
		msg = fmt.Sprintf("url %q does not match %q", url, pattern)
	}
	return &Result{Kind: "url", Expected: pattern, Actual: url, Passed: passed, Message: msg}, nil
}

func evalVisible(ctx context.Context, page browser.Page, selector string) (*Result, error) {
	vis, err := page.Visible(ctx, selector)
	if err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("%q is visible", selector)
	if !vis {
		msg = fmt.Sprintf("%q is not visible", selector)
	}
	return &Result{Kind: "visible", Expected: selector, Passed: vis, Message: msg}, nil
}

func evalHidden(ctx context.Context, page browser.Page, selector string) (*Result, error) {
	n, err := page.Count(ctx, selector)
	if err != nil {
		return nil, err
	}
	hidden := n == 0
	if !hidden {
		vis, err := page.Visible(ctx, selector)
		if err != nil {
			return nil, err
		}
		hidden = !vis
	}
	msg := fmt.Sprintf("%q is hidden", selector)
	if !hidden {
		msg = fmt.Sprintf("%q is visible, want hidden or absent", selector)
	}
	return &Result{Kind: "hidden", Expected: selector, Passed: hidden, Message: msg}, nil
}

func evalExists(ctx context.Context, page browser.Page, selector string) (*Result, error) {
	n, err := page.Count(ctx, selector)
	if err != nil {
		return nil, err
	}
	passed := n > 0
	msg := fmt.Sprintf("%q exists (%d matches)", selector, n)
	if !passed {
		msg = fmt.Sprintf("no element matches %q", selector)
	}
	return &Result{Kind: "exists", Expected: selector, Actual: fmt.Sprintf("%d", n), Passed: passed, Message: msg}, nil
}

func evalText(ctx context.Context, page browser.Page, a *schema.TextAssertion) (*Result, error) {
	text, err := page.Text(ctx, a.Selector)
	if err != nil {
		return nil, err
	}
	if a.Equals != "" {
		passed := text == a.Equals
		msg := fmt.Sprintf("text of %q equals %q", a.Selector, a.Equals)
		if !passed {
			msg = fmt.Sprintf("text of %q is %q, want %q", a.Selector, truncate(text, 120), a.Equals)
		}
		return &Result{Kind: "text", Expected: a.Equals, Actual: text, Passed: passed, Message: msg}, nil
	}
	passed := strings.Contains(text, a.Contains)
	msg := fmt.Sprintf("text of %q contains %q", a.Selector, a.Contains)
	if !passed {
		msg = fmt.Sprintf("text of %q (%q) does not contain %q", a.Selector, truncate(text, 120), a.Contains)
	}
	return &Result{Kind: "text", Expected: a.Contains, Actual: text, Passed: passed, Message: msg}, nil
}

func evalCount(ctx context.Context, page browser.Page, a *schema.CountAssertion) (*Result, error) {
	n, err := page.Count(ctx, a.Selector)
	if err != nil {
		return nil, err
	}
	actual := fmt.Sprintf("%d", n)
	if a.Equals != nil {
		passed := n == *a.Equals
		msg := fmt.Sprintf("%q matches %d elements", a.Selector, n)
		if !passed {
			msg = fmt.Sprintf("%q matches %d elements, want %d", a.Selector, n, *a.Equals)
		}
		return &Result{Kind: "count", Expected: fmt.Sprintf("%d", *a.Equals), Actual: actual, Passed: passed, Message: msg}, nil
	}
	passed := true
	var bounds []string
	if a.Min != nil {
		bounds = append(bounds, fmt.Sprintf(">= %d", *a.Min))
		if n < *a.Min {
			passed = false
		}
	}
	if a.Max != nil {
		bounds = append(bounds, fmt.Sprintf("<= %d", *a.Max))
		if n > *a.Max {
			passed = false
		}
	}
	want := strings.Join(bounds, " and ")
	msg := fmt.Sprintf("%q matches %d elements (%s)", a.Selector, n, want)
	if !passed {
		msg = fmt.Sprintf("%q matches %d elements, want %s", a.Selector, n, want)
	}
	return &Result{Kind: "count", Expected: want, Actual: actual, Passed: passed, Message: msg}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
