package runtime

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ormasoftchile/gaze/pkg/assertions"
	"github.com/ormasoftchile/gaze/pkg/browser"
	"github.com/ormasoftchile/gaze/pkg/schema"
)

// Login selector defaults, used when the step leaves them unset.
const (
	defaultUsernameSelector = `input[name="username"]`
	defaultPasswordSelector = `input[name="password"]`
	defaultSubmitSelector   = `button[type="submit"]`
)

func (e *Engine) doGoto(ctx context.Context, s *schema.GotoStep) error {
	return e.page.Navigate(ctx, s.URL, s.WaitUntil)
}

func (e *Engine) doClick(ctx context.Context, s *schema.ClickStep, timeout time.Duration) error {
	if s.Selector != "" {
		return e.page.Click(ctx, s.Selector, timeout)
	}
	if s.Role == "" && s.Text == "" {
		return fmt.Errorf("click: one of selector, role, or text is required")
	}
	res, err := e.page.Evaluate(ctx, clickByRoleTextScript(s.Role, s.Text))
	if err != nil {
		return fmt.Errorf("click by role/text: %w", err)
	}
	if res != "true" {
		return fmt.Errorf("click: no element matches role=%q text=%q", s.Role, s.Text)
	}
	return nil
}

func (e *Engine) doFill(ctx context.Context, s *schema.FillStep, timeout time.Duration) error {
	return e.page.Fill(ctx, s.Selector, s.Value, timeout)
}

func (e *Engine) doType(ctx context.Context, s *schema.TypeStep) error {
	return e.page.Type(ctx, s.Selector, s.Text, time.Duration(s.Delay)*time.Millisecond)
}

func (e *Engine) doWait(ctx context.Context, s *schema.WaitStep, timeout time.Duration) error {
	switch {
	case s.Millis > 0:
		select {
		case <-time.After(time.Duration(s.Millis) * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case s.Load != "":
		return e.page.WaitForLoad(ctx, s.Load, timeout)
	case s.URL != "":
		re, err := assertions.CompileGlob(s.URL)
		if err != nil {
			return fmt.Errorf("wait url pattern %q: %w", s.URL, err)
		}
		return e.page.WaitForURL(ctx, re.MatchString, timeout)
	case s.Selector != "":
		state := browser.ElementState(s.State)
		if state == "" {
			state = browser.StateVisible
		}
		return e.page.WaitForSelector(ctx, s.Selector, state, timeout)
	}
	return fmt.Errorf("wait: one of ms, load, url, or selector is required")
}

func (e *Engine) doScreenshot(ctx context.Context, s *schema.ScreenshotStep) error {
	resolved := browser.ResolveArtifactPath(s.Path)
	if err := e.page.Screenshot(ctx, resolved, s.FullPage); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "  📷 %s\n", resolved)
	return nil
}

func (e *Engine) doEval(ctx context.Context, s *schema.EvalStep) error {
	res, err := e.page.Evaluate(ctx, s.Script)
	if err != nil {
		return err
	}
	if s.Store != "" {
		e.Vars.Set(s.Store, res)
	}
	return nil
}

// doLogin is the navigate/fill/fill/submit shortcut. With successUrl set it
// also waits for the post-login redirect.
func (e *Engine) doLogin(ctx context.Context, s *schema.LoginStep, timeout time.Duration) error {
	if s.URL != "" {
		if err := e.page.Navigate(ctx, s.URL, ""); err != nil {
			return fmt.Errorf("login navigate: %w", err)
		}
	}
	userSel := s.UsernameSelector
	if userSel == "" {
		userSel = defaultUsernameSelector
	}
	passSel := s.PasswordSelector
	if passSel == "" {
		passSel = defaultPasswordSelector
	}
	submitSel := s.SubmitSelector
	if submitSel == "" {
		submitSel = defaultSubmitSelector
	}

	if err := e.page.Fill(ctx, userSel, s.Username, browser.DefaultActionTimeout); err != nil {
		return fmt.Errorf("login username: %w", err)
	}
	if err := e.page.Fill(ctx, passSel, s.Password, browser.DefaultActionTimeout); err != nil {
		return fmt.Errorf("login password: %w", err)
	}
	if err := e.page.Click(ctx, submitSel, browser.DefaultActionTimeout); err != nil {
		return fmt.Errorf("login submit: %w", err)
	}

	if s.SuccessURL != "" {
		re, err := assertions.CompileGlob(s.SuccessURL)
		if err != nil {
			return fmt.Errorf("login successUrl pattern %q: %w", s.SuccessURL, err)
		}
		if err := e.page.WaitForURL(ctx, re.MatchString, timeout); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}
	return nil
}

func (e *Engine) doFillForm(ctx context.Context, s *schema.FillFormStep, timeout time.Duration) error {
	if err := e.Session.FillForm(ctx, e.page, s.Fields); err != nil {
		return err
	}
	if s.Submit != "" {
		return e.page.Click(ctx, s.Submit, timeout)
	}
	return nil
}

// doModal opens a modal, runs the nested steps inside it, and closes it.
// The close click runs even when a nested step failed, so the page is not
// left with the modal up; the nested error still wins.
func (e *Engine) doModal(ctx context.Context, s *schema.ModalStep, timeout time.Duration) error {
	if err := e.page.Click(ctx, s.Open, timeout); err != nil {
		return fmt.Errorf("modal open: %w", err)
	}
	stepsErr := e.runSteps(ctx, s.Steps)
	if s.Close != "" {
		if err := e.page.Click(ctx, s.Close, timeout); err != nil && stepsErr == nil {
			return fmt.Errorf("modal close: %w", err)
		}
	}
	return stepsErr
}

// doResponsive captures the page once per viewport, suffixing the viewport
// name onto the screenshot path.
func (e *Engine) doResponsive(ctx context.Context, s *schema.ResponsiveStep) error {
	specs := s.Viewports
	if len(specs) == 0 {
		specs = browser.DefaultViewports
	}
	resolved := browser.ResolveArtifactPath(s.Path)
	for _, spec := range specs {
		vp, err := browser.ParseViewport(spec)
		if err != nil {
			return err
		}
		if err := e.page.SetViewport(ctx, vp.Width, vp.Height); err != nil {
			return err
		}
		path := browser.SuffixPath(resolved, vp.Name)
		if err := e.page.Screenshot(ctx, path, s.FullPage); err != nil {
			return err
		}
		fmt.Fprintf(e.out, "  📷 %s (%dx%d)\n", path, vp.Width, vp.Height)
	}
	return nil
}

// doIf evaluates the condition and runs the matching branch. Nested steps go
// through the same executor; they get no top-level result entries.
func (e *Engine) doIf(ctx context.Context, s *schema.IfStep) error {
	var (
		cond bool
		err  error
	)
	switch {
	case s.Exists != "":
		var n int
		n, err = e.page.Count(ctx, s.Exists)
		cond = n > 0
	case s.URL != "":
		cond, err = e.urlMatches(ctx, s.URL)
	case s.Expr != "":
		cond, err = e.evalCondition(s.Expr)
	default:
		return fmt.Errorf("if: one of exists, url, or expr is required")
	}
	if err != nil {
		return err
	}

	if cond {
		return e.runSteps(ctx, s.Then)
	}
	if len(s.Else) > 0 {
		return e.runSteps(ctx, s.Else)
	}
	return nil
}

func (e *Engine) urlMatches(ctx context.Context, pattern string) (bool, error) {
	re, err := assertions.CompileGlob(pattern)
	if err != nil {
		return false, fmt.Errorf("if url pattern %q: %w", pattern, err)
	}
	url, err := e.page.URL(ctx)
	if err != nil {
		return false, err
	}
	return re.MatchString(url), nil
}

// doTry runs the try list; on a nested failure it runs the catch list and
// fully absorbs the original error. Deliberate try/catch semantics: the
// absorbed error does not fail the enclosing step under any policy.
func (e *Engine) doTry(ctx context.Context, try, catch []schema.Step) error {
	err := e.runSteps(ctx, try)
	if err == nil {
		return nil
	}
	if IsFatal(err) {
		return err
	}
	fmt.Fprintf(e.out, "  ⚠ try failed, recovering: %v\n", err)
	if len(catch) > 0 {
		if cerr := e.runSteps(ctx, catch); cerr != nil {
			return fmt.Errorf("catch: %w", cerr)
		}
	}
	return nil
}

// doEach runs the nested list once per element currently matching the
// selector, strictly sequentially. The count is sampled once, before the
// first iteration. The As alias is not rebound per iteration.
func (e *Engine) doEach(ctx context.Context, s *schema.EachStep) error {
	n, err := e.page.Count(ctx, s.Selector)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := e.runSteps(ctx, s.Steps); err != nil {
			return fmt.Errorf("each iteration %d/%d: %w", i+1, n, err)
		}
	}
	return nil
}

func (e *Engine) doRepeat(ctx context.Context, s *schema.RepeatStep) error {
	for i := 0; i < s.Times; i++ {
		if err := e.runSteps(ctx, s.Steps); err != nil {
			return fmt.Errorf("repeat iteration %d/%d: %w", i+1, s.Times, err)
		}
	}
	return nil
}

// clickByRoleTextScript builds the in-page fallback used when a click step
// targets by role/text instead of a selector.
func clickByRoleTextScript(role, text string) string {
	return fmt.Sprintf(`(() => {
		const role = %s, text = %s;
		const roleSelectors = {
			button: 'button, [role="button"], input[type="submit"], input[type="button"]',
			link: 'a, [role="link"]',
			checkbox: 'input[type="checkbox"], [role="checkbox"]',
			tab: '[role="tab"]',
		};
		const sel = role ? (roleSelectors[role] || '[role="' + role + '"]') : "*";
		for (const el of document.querySelectorAll(sel)) {
			if (!text || el.textContent.trim() === text) {
				el.click();
				return true;
			}
		}
		return false;
	})()`, strconv.Quote(role), strconv.Quote(text))
}
