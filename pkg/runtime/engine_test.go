package runtime

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ormasoftchile/gaze/pkg/browser"
	"github.com/ormasoftchile/gaze/pkg/schema"
)

// fakePage records every surface call and serves canned state, so tests can
// check both outcomes and the exact action sequence.
type fakePage struct {
	actions []string
	failOn  map[string]error // action key → injected error
	counts  map[string]int
	visible map[string]bool
	texts   map[string]string
	evals   map[string]string // script → result
	url     string
	title   string
}

func newFakePage() *fakePage {
	return &fakePage{
		failOn:  map[string]error{},
		counts:  map[string]int{},
		visible: map[string]bool{},
		texts:   map[string]string{},
		evals:   map[string]string{},
		url:     "https://example.com/",
		title:   "Example",
	}
}

func (p *fakePage) call(key string) error {
	p.actions = append(p.actions, key)
	return p.failOn[key]
}

func (p *fakePage) Navigate(ctx context.Context, url, waitUntil string) error {
	if err := p.call("goto:" + url); err != nil {
		return err
	}
	p.url = url
	return nil
}
func (p *fakePage) Title(ctx context.Context) (string, error) { return p.title, nil }
func (p *fakePage) URL(ctx context.Context) (string, error)   { return p.url, nil }
func (p *fakePage) Click(ctx context.Context, sel string, timeout time.Duration) error {
	return p.call("click:" + sel)
}
func (p *fakePage) Fill(ctx context.Context, sel, value string, timeout time.Duration) error {
	return p.call("fill:" + sel + "=" + value)
}
func (p *fakePage) Type(ctx context.Context, sel, text string, delay time.Duration) error {
	return p.call("type:" + sel + "=" + text)
}
func (p *fakePage) Count(ctx context.Context, sel string) (int, error) {
	return p.counts[sel], nil
}
func (p *fakePage) Visible(ctx context.Context, sel string) (bool, error) {
	return p.visible[sel], nil
}
func (p *fakePage) Text(ctx context.Context, sel string) (string, error) {
	return p.texts[sel], nil
}
func (p *fakePage) WaitForSelector(ctx context.Context, sel string, state browser.ElementState, timeout time.Duration) error {
	return p.call(fmt.Sprintf("wait:%s:%s", sel, state))
}
func (p *fakePage) WaitForLoad(ctx context.Context, state string, timeout time.Duration) error {
	return p.call("waitload:" + state)
}
func (p *fakePage) WaitForURL(ctx context.Context, match func(string) bool, timeout time.Duration) error {
	p.actions = append(p.actions, "waiturl")
	if !match(p.url) {
		return fmt.Errorf("timeout waiting for url, still at %s", p.url)
	}
	return nil
}
func (p *fakePage) Screenshot(ctx context.Context, path string, fullPage bool) error {
	return p.call("screenshot:" + path)
}
func (p *fakePage) Evaluate(ctx context.Context, script string) (string, error) {
	if err := p.call("eval"); err != nil {
		return "", err
	}
	return p.evals[script], nil
}
func (p *fakePage) SetViewport(ctx context.Context, width, height int) error {
	return p.call(fmt.Sprintf("viewport:%dx%d", width, height))
}

type fakeSession struct {
	page    *fakePage
	pageErr error
}

func (s *fakeSession) Page(ctx context.Context, name string) (browser.Page, error) {
	if s.pageErr != nil {
		return nil, s.pageErr
	}
	return s.page, nil
}
func (s *fakeSession) FillForm(ctx context.Context, page browser.Page, fields map[string]string) error {
	for sel, val := range fields {
		if err := page.Fill(ctx, sel, val, browser.DefaultActionTimeout); err != nil {
			return err
		}
	}
	return nil
}
func (s *fakeSession) Close() error { return nil }

func newTestEngine(t *testing.T, sc *schema.Scenario, page *fakePage) *Engine {
	t.Helper()
	e, err := NewEngine(sc, &fakeSession{page: page}, Options{Out: io.Discard, NoArtifacts: true})
	require.NoError(t, err)
	return e
}

func clickStep(sel string) schema.Step {
	return schema.Step{Click: &schema.ClickStep{Selector: sel}}
}

func TestRunHappyPath(t *testing.T) {
	page := newFakePage()
	sc := &schema.Scenario{
		Name: "smoke",
		Page: "main",
		Steps: []schema.Step{
			{Goto: &schema.GotoStep{URL: "https://example.com/app"}},
			clickStep("#start"),
			{Screenshot: &schema.ScreenshotStep{Path: "out.png"}},
		},
	}
	e := newTestEngine(t, sc, page)

	report, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.Empty(t, report.Error)
	require.Len(t, report.Steps, 3)
	for i, r := range report.Steps {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, StatusPassed, r.Status)
	}
	assert.Equal(t, schema.KindGoto, report.Steps[0].Kind)
	assert.Equal(t, []string{
		"goto:https://example.com/app",
		"click:#start",
		"screenshot:tmp/out.png", // relative paths land under tmp/
	}, page.actions)
}

func TestStopPolicyHaltsAtFirstFailure(t *testing.T) {
	page := newFakePage()
	page.failOn["click:#missing"] = fmt.Errorf("no element matches #missing")
	sc := &schema.Scenario{
		Name:    "halts",
		OnError: schema.PolicyStop,
		Steps: []schema.Step{
			clickStep("#ok"),
			clickStep("#missing"),
			clickStep("#never"),
		},
	}
	e := newTestEngine(t, sc, page)

	report, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Success)
	require.Len(t, report.Steps, 2, "no results past the failing index")
	assert.Equal(t, StatusPassed, report.Steps[0].Status)
	assert.Equal(t, StatusFailed, report.Steps[1].Status)
	assert.Contains(t, report.Steps[1].Error, "#missing")
	assert.NotContains(t, page.actions, "click:#never")
}

func TestContinuePolicyRecordsAndProceeds(t *testing.T) {
	page := newFakePage()
	page.failOn["click:#flaky"] = fmt.Errorf("boom")
	sc := &schema.Scenario{
		Name:    "continues",
		OnError: schema.PolicyContinue,
		Steps: []schema.Step{
			clickStep("#flaky"),
			clickStep("#after"),
		},
	}
	e := newTestEngine(t, sc, page)

	report, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Success, "a recorded failure fails the run even under continue")
	require.Len(t, report.Steps, 2)
	assert.Equal(t, StatusFailed, report.Steps[0].Status)
	assert.Equal(t, StatusPassed, report.Steps[1].Status)
	assert.Contains(t, page.actions, "click:#after")
}

func TestStepOverrideBeatsScenarioPolicy(t *testing.T) {
	page := newFakePage()
	page.failOn["click:#flaky"] = fmt.Errorf("boom")
	sc := &schema.Scenario{
		Name:    "override",
		OnError: schema.PolicyStop,
		Steps: []schema.Step{
			{Click: &schema.ClickStep{Selector: "#flaky"}, OnError: schema.PolicyContinue},
			clickStep("#after"),
		},
	}
	e := newTestEngine(t, sc, page)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Steps, 2)
	assert.Contains(t, page.actions, "click:#after")
	assert.False(t, report.Success)
}

func TestTryCatchAbsorbsFailure(t *testing.T) {
	page := newFakePage()
	page.failOn["click:#dialog-accept"] = fmt.Errorf("not found")
	sc := &schema.Scenario{
		Name:    "recovers",
		OnError: schema.PolicyStop,
		Steps: []schema.Step{
			{
				Try:   []schema.Step{clickStep("#dialog-accept")},
				Catch: []schema.Step{clickStep("#dialog-dismiss")},
			},
			clickStep("#after"),
		},
	}
	e := newTestEngine(t, sc, page)

	report, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Success, "absorbed failure must not fail the run")
	require.Len(t, report.Steps, 2)
	assert.Equal(t, StatusPassed, report.Steps[0].Status)
	assert.Contains(t, page.actions, "click:#dialog-dismiss")
	assert.Contains(t, page.actions, "click:#after")
}

func TestTryWithoutCatchStillAbsorbs(t *testing.T) {
	page := newFakePage()
	page.failOn["click:#maybe"] = fmt.Errorf("not found")
	sc := &schema.Scenario{
		Name:  "try-only",
		Steps: []schema.Step{{Try: []schema.Step{clickStep("#maybe")}}},
	}
	e := newTestEngine(t, sc, page)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Success)
}

func TestRepeatRunsExactlyNTimes(t *testing.T) {
	page := newFakePage()
	sc := &schema.Scenario{
		Name: "repeat",
		Steps: []schema.Step{
			{Repeat: &schema.RepeatStep{Times: 3, Steps: []schema.Step{clickStep("#next")}}},
			{Repeat: &schema.RepeatStep{Times: 0, Steps: []schema.Step{clickStep("#never")}}},
		},
	}
	e := newTestEngine(t, sc, page)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Success)

	clicks := 0
	for _, a := range page.actions {
		if a == "click:#next" {
			clicks++
		}
	}
	assert.Equal(t, 3, clicks)
	assert.NotContains(t, page.actions, "click:#never")
	require.Len(t, report.Steps, 2, "nested steps get no top-level results")
}

func TestEachRunsOncePerMatch(t *testing.T) {
	page := newFakePage()
	page.counts[".row"] = 2
	sc := &schema.Scenario{
		Name: "each",
		Steps: []schema.Step{
			{Each: &schema.EachStep{Selector: ".row", As: "row", Steps: []schema.Step{clickStep(".row .expand")}}},
		},
	}
	e := newTestEngine(t, sc, page)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Success)

	clicks := 0
	for _, a := range page.actions {
		if a == "click:.row .expand" {
			clicks++
		}
	}
	assert.Equal(t, 2, clicks)
}

func TestIfBranchesOnElementExistence(t *testing.T) {
	page := newFakePage()
	page.counts["#cookie-banner"] = 1
	sc := &schema.Scenario{
		Name: "branch",
		Steps: []schema.Step{
			{If: &schema.IfStep{
				Exists: "#cookie-banner",
				Then:   []schema.Step{clickStep("#accept-cookies")},
				Else:   []schema.Step{clickStep("#noop")},
			}},
			{If: &schema.IfStep{
				Exists: "#upsell",
				Then:   []schema.Step{clickStep("#dismiss-upsell")},
			}},
		},
	}
	e := newTestEngine(t, sc, page)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Contains(t, page.actions, "click:#accept-cookies")
	assert.NotContains(t, page.actions, "click:#noop")
	assert.NotContains(t, page.actions, "click:#dismiss-upsell")
}

func TestIfBranchesOnURLGlob(t *testing.T) {
	page := newFakePage()
	page.url = "https://example.com/login?next=app"
	sc := &schema.Scenario{
		Name: "url-branch",
		Steps: []schema.Step{
			{If: &schema.IfStep{
				URL:  "**/login**",
				Then: []schema.Step{clickStep("#sign-in")},
			}},
		},
	}
	e := newTestEngine(t, sc, page)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Contains(t, page.actions, "click:#sign-in")
}

func TestIfExprOverVariables(t *testing.T) {
	page := newFakePage()
	sc := &schema.Scenario{
		Name:      "expr-branch",
		Variables: schema.VarDecls{{Name: "env", Value: "staging"}},
		Steps: []schema.Step{
			{If: &schema.IfStep{
				Expr: `env == "staging"`,
				Then: []schema.Step{clickStep("#staging-banner-close")},
			}},
		},
	}
	e := newTestEngine(t, sc, page)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Contains(t, page.actions, "click:#staging-banner-close")
}

func TestEvalStoreFeedsLaterSteps(t *testing.T) {
	page := newFakePage()
	page.evals["document.querySelector('#csrf').value"] = "tok-123"
	sc := &schema.Scenario{
		Name: "eval-store",
		Steps: []schema.Step{
			{Eval: &schema.EvalStep{Script: "document.querySelector('#csrf').value", Store: "token"}},
			{Fill: &schema.FillStep{Selector: "#token-field", Value: "{{token}}"}},
		},
	}
	e := newTestEngine(t, sc, page)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Contains(t, page.actions, "fill:#token-field=tok-123")
}

func TestEvalStoreVisibleInsideRepeat(t *testing.T) {
	page := newFakePage()
	page.evals["window.next()"] = "item-a"
	sc := &schema.Scenario{
		Name: "repeat-eval",
		Steps: []schema.Step{
			{Repeat: &schema.RepeatStep{Times: 2, Steps: []schema.Step{
				{Eval: &schema.EvalStep{Script: "window.next()", Store: "item"}},
				{Fill: &schema.FillStep{Selector: "#slot", Value: "{{item}}"}},
			}}},
		},
	}
	e := newTestEngine(t, sc, page)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Success)

	fills := 0
	for _, a := range page.actions {
		if a == "fill:#slot=item-a" {
			fills++
		}
	}
	assert.Equal(t, 2, fills, "nested steps interpolate at their own dispatch")
}

func TestUndefinedVariableInterpolatesEmpty(t *testing.T) {
	page := newFakePage()
	sc := &schema.Scenario{
		Name:  "undefined-var",
		Steps: []schema.Step{{Fill: &schema.FillStep{Selector: "#q", Value: "[{{nope}}]"}}},
	}
	e := newTestEngine(t, sc, page)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Contains(t, page.actions, "fill:#q=[]")
}

func TestUnknownStepFailsUnderPolicy(t *testing.T) {
	page := newFakePage()
	sc := &schema.Scenario{
		Name:  "unknown",
		Steps: []schema.Step{{}, clickStep("#never")},
	}
	e := newTestEngine(t, sc, page)

	report, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Success)
	require.Len(t, report.Steps, 1)
	assert.Equal(t, StatusFailed, report.Steps[0].Status)
	assert.Contains(t, report.Steps[0].Error, "unknown step type")
	assert.Empty(t, page.actions)
}

func TestAssertionsRunAfterStepAndFailIt(t *testing.T) {
	page := newFakePage()
	page.title = "Dashboard"
	sc := &schema.Scenario{
		Name: "asserted",
		Steps: []schema.Step{
			{
				Goto:   &schema.GotoStep{URL: "https://example.com/app"},
				Assert: []schema.Assertion{{TitleContains: "Dashboard"}},
			},
			{
				Click:  &schema.ClickStep{Selector: "#open"},
				Assert: []schema.Assertion{{Exists: "#panel"}}, // count 0 → fails
			},
		},
	}
	e := newTestEngine(t, sc, page)

	report, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Success)
	require.Len(t, report.Steps, 2)
	assert.Equal(t, StatusPassed, report.Steps[0].Status)
	assert.Equal(t, StatusFailed, report.Steps[1].Status)
	assert.Contains(t, report.Steps[1].Error, "#panel")
}

func TestLoginShortcut(t *testing.T) {
	page := newFakePage()
	sc := &schema.Scenario{
		Name: "login",
		Variables: schema.VarDecls{
			{Name: "user", Value: "ada"},
			{Name: "pass", Value: "s3cret"},
		},
		Steps: []schema.Step{
			{Login: &schema.LoginStep{
				URL:      "https://example.com/login",
				Username: "{{user}}",
				Password: "{{pass}}",
			}},
		},
	}
	e := newTestEngine(t, sc, page)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, []string{
		"goto:https://example.com/login",
		`fill:input[name="username"]=ada`,
		`fill:input[name="password"]=s3cret`,
		`click:button[type="submit"]`,
	}, page.actions)
}

func TestResponsiveCapturesEveryViewport(t *testing.T) {
	page := newFakePage()
	sc := &schema.Scenario{
		Name: "responsive",
		Steps: []schema.Step{
			{Responsive: &schema.ResponsiveStep{Path: "home.png"}},
		},
	}
	e := newTestEngine(t, sc, page)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, []string{
		"viewport:375x667",
		"screenshot:tmp/home-mobile.png",
		"viewport:768x1024",
		"screenshot:tmp/home-tablet.png",
		"viewport:1280x800",
		"screenshot:tmp/home-desktop.png",
	}, page.actions)
}

func TestModalClosesEvenWhenNestedStepFails(t *testing.T) {
	page := newFakePage()
	page.failOn["click:#inside"] = fmt.Errorf("boom")
	sc := &schema.Scenario{
		Name: "modal",
		Steps: []schema.Step{
			{Modal: &schema.ModalStep{
				Open:  "#open-settings",
				Steps: []schema.Step{clickStep("#inside")},
				Close: "#close-settings",
			}},
		},
	}
	e := newTestEngine(t, sc, page)

	report, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Success)
	assert.Contains(t, page.actions, "click:#close-settings")
}

func TestFatalErrorSurfacesAtReportLevel(t *testing.T) {
	page := newFakePage()
	page.failOn["goto:https://example.com/"] = Fatal(fmt.Errorf("browser connection lost"))
	sc := &schema.Scenario{
		Name:    "fatal",
		OnError: schema.PolicyContinue,
		Steps: []schema.Step{
			{Goto: &schema.GotoStep{URL: "https://example.com/"}},
			clickStep("#never"),
		},
	}
	e := newTestEngine(t, sc, page)

	report, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Success)
	assert.Contains(t, report.Error, "browser connection lost")
	assert.Empty(t, report.Steps, "fatal errors are not step results")
	assert.NotContains(t, page.actions, "click:#never")
}

func TestPageAcquisitionFailureIsFatal(t *testing.T) {
	sc := &schema.Scenario{Name: "no-page", Page: "main", Steps: []schema.Step{clickStep("#x")}}
	sess := &fakeSession{pageErr: fmt.Errorf("chrome did not start")}
	e, err := NewEngine(sc, sess, Options{Out: io.Discard, NoArtifacts: true})
	require.NoError(t, err)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Success)
	assert.Contains(t, report.Error, "chrome did not start")
	assert.Empty(t, report.Steps)
}

func TestVarOverridesBeatDeclarations(t *testing.T) {
	page := newFakePage()
	sc := &schema.Scenario{
		Name:      "overrides",
		Variables: schema.VarDecls{{Name: "env", Value: "prod"}},
		Steps:     []schema.Step{{Fill: &schema.FillStep{Selector: "#env", Value: "{{env}}"}}},
	}
	e, err := NewEngine(sc, &fakeSession{page: page}, Options{
		Out:         io.Discard,
		NoArtifacts: true,
		Overrides:   map[string]string{"env": "staging"},
	})
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, page.actions, "fill:#env=staging")
}
