package runtime

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/expr-lang/expr"
	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/gaze/pkg/assertions"
	"github.com/ormasoftchile/gaze/pkg/browser"
	"github.com/ormasoftchile/gaze/pkg/schema"
	"github.com/ormasoftchile/gaze/pkg/vars"
)

// GenerateRunID creates a run ID in format YYYYMMDDTHHmmss-xxxxxxxx.
func GenerateRunID() string {
	ts := time.Now().Format("20060102T150405")
	suffix := make([]byte, 4)
	rand.Read(suffix)
	return fmt.Sprintf("%s-%x", ts, suffix)
}

// Options configures an engine run.
type Options struct {
	Out          io.Writer         // progress output (default os.Stdout)
	TraceDir     string            // run artifact base dir (default tmp/runs)
	NoArtifacts  bool              // skip trace.jsonl and run.yaml
	Overrides    map[string]string // --var flags, applied after declarations
	ScenarioPath string            // recorded in the manifest
}

// Engine walks a scenario's top-level step list, dispatching each step to an
// action or control-flow handler and recording one StepResult per top-level
// step.
type Engine struct {
	Scenario *schema.Scenario
	Session  browser.Session
	Vars     vars.Table

	out          io.Writer
	trace        *TraceWriter
	baseDir      string
	runID        string
	scenarioPath string

	page      browser.Page
	results   []StepResult
	counts    StepsSummary
	startedAt time.Time
}

// NewEngine prepares a run: resolves declared variables, applies overrides,
// and opens the run artifact directory.
func NewEngine(sc *schema.Scenario, session browser.Session, opts Options) (*Engine, error) {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	table := vars.ResolveDeclared(sc.Variables)
	for k, v := range opts.Overrides {
		table.Set(k, v)
	}

	e := &Engine{
		Scenario:     sc,
		Session:      session,
		Vars:         table,
		out:          out,
		runID:        GenerateRunID(),
		scenarioPath: opts.ScenarioPath,
	}

	if !opts.NoArtifacts {
		traceDir := opts.TraceDir
		if traceDir == "" {
			traceDir = filepath.Join(browser.ArtifactDir, "runs")
		}
		e.baseDir = filepath.Join(traceDir, e.runID)
		if err := os.MkdirAll(e.baseDir, 0755); err != nil {
			return nil, fmt.Errorf("create run directory: %w", err)
		}
		trace, err := NewTraceWriter(filepath.Join(e.baseDir, "trace.jsonl"), e.runID)
		if err != nil {
			return nil, err
		}
		e.trace = trace
	}

	return e, nil
}

// RunID returns the generated run identifier.
func (e *Engine) RunID() string { return e.runID }

// BaseDir returns the run artifact directory ("" when artifacts are off).
func (e *Engine) BaseDir() string { return e.baseDir }

// Run executes the scenario and returns the final report. The returned error
// is non-nil only for setup problems; step failures and fatal runner errors
// are reported through the ExecutionReport.
func (e *Engine) Run(ctx context.Context) (*ExecutionReport, error) {
	e.startedAt = time.Now()
	if e.trace != nil {
		defer e.trace.Close()
	}

	report := &ExecutionReport{Scenario: e.Scenario.Name}

	page, err := e.Session.Page(ctx, e.Scenario.Page)
	if err != nil {
		report.Error = fmt.Sprintf("acquire page %q: %v", e.Scenario.Page, err)
		report.DurationMs = time.Since(e.startedAt).Milliseconds()
		e.writeManifest(report)
		return report, nil
	}
	e.page = page

	fmt.Fprintf(e.out, "▶ Scenario: %s (%d steps)\n", e.Scenario.Name, len(e.Scenario.Steps))

	halted := false
	for i := range e.Scenario.Steps {
		step := e.Scenario.Steps[i]
		kind := step.Kind()
		fmt.Fprintf(e.out, "\n▶ Step %d/%d: %s\n", i+1, len(e.Scenario.Steps), kind)

		start := time.Now()
		stepErr := e.runStep(ctx, step)
		result := StepResult{
			Index:      i,
			Kind:       kind,
			Status:     StatusPassed,
			DurationMs: time.Since(start).Milliseconds(),
		}

		if stepErr != nil && IsFatal(stepErr) {
			// The session is gone: record nothing for this step, surface the
			// error once at report level, and stop.
			fmt.Fprintf(e.out, "  ✗ %v\n", stepErr)
			report.Error = stepErr.Error()
			halted = true
			break
		}

		if stepErr != nil {
			result.Status = StatusFailed
			result.Error = stepErr.Error()
		}
		e.record(result)

		if stepErr == nil {
			fmt.Fprintf(e.out, "  ✓ passed (%dms)\n", result.DurationMs)
			continue
		}

		policy := e.effectivePolicy(step)
		if policy == schema.PolicyContinue {
			fmt.Fprintf(e.out, "  ✗ failed (continuing): %v\n", stepErr)
			continue
		}
		fmt.Fprintf(e.out, "  ✗ failed: %v\n", stepErr)
		halted = true
		break
	}

	report.Steps = e.results
	report.DurationMs = time.Since(e.startedAt).Milliseconds()
	report.Success = !halted && report.Error == "" && e.counts.Failed == 0

	if report.Success {
		fmt.Fprintf(e.out, "\n✓ Scenario completed successfully (%d steps)\n", e.counts.Total)
	} else {
		fmt.Fprintf(e.out, "\n✗ Scenario failed\n")
	}
	if e.baseDir != "" {
		fmt.Fprintf(e.out, "  Artifacts: %s\n", e.baseDir)
	}

	e.writeManifest(report)
	return report, nil
}

func (e *Engine) record(r StepResult) {
	e.results = append(e.results, r)
	e.counts.Total++
	switch r.Status {
	case StatusPassed:
		e.counts.Passed++
	case StatusFailed:
		e.counts.Failed++
	case StatusSkipped:
		e.counts.Skipped++
	}
	if e.trace != nil {
		if err := e.trace.Write(&r); err != nil {
			fmt.Fprintf(e.out, "  warning: %v\n", err)
		}
	}
}

// runStep executes one step at any nesting depth: interpolate against the
// live variable table, dispatch by kind, then run attached assertions.
func (e *Engine) runStep(ctx context.Context, raw schema.Step) error {
	step := raw.Mapped(e.Vars.Interpolate)

	var err error
	switch step.Kind() {
	case schema.KindGoto:
		err = e.doGoto(ctx, step.Goto)
	case schema.KindClick:
		err = e.doClick(ctx, step.Click, e.actionTimeout(step))
	case schema.KindFill:
		err = e.doFill(ctx, step.Fill, e.actionTimeout(step))
	case schema.KindType:
		err = e.doType(ctx, step.Type)
	case schema.KindWait:
		err = e.doWait(ctx, step.Wait, e.waitTimeout(step))
	case schema.KindScreenshot:
		err = e.doScreenshot(ctx, step.Screenshot)
	case schema.KindEval:
		err = e.doEval(ctx, step.Eval)
	case schema.KindLogin:
		err = e.doLogin(ctx, step.Login, e.waitTimeout(step))
	case schema.KindFillForm:
		err = e.doFillForm(ctx, step.FillForm, e.actionTimeout(step))
	case schema.KindModal:
		err = e.doModal(ctx, step.Modal, e.actionTimeout(step))
	case schema.KindResponsive:
		err = e.doResponsive(ctx, step.Responsive)
	case schema.KindIf:
		err = e.doIf(ctx, step.If)
	case schema.KindTry:
		err = e.doTry(ctx, step.Try, step.Catch)
	case schema.KindEach:
		err = e.doEach(ctx, step.Each)
	case schema.KindRepeat:
		err = e.doRepeat(ctx, step.Repeat)
	default:
		err = ErrUnknownStep
	}
	if err != nil {
		return err
	}

	if len(step.Assert) > 0 {
		return assertions.Run(ctx, step.Assert, e.page)
	}
	return nil
}

// runSteps executes a nested step list. A failure propagates to the
// enclosing handler unless the failing step itself carries onError:
// continue; the scenario-level policy applies only at the top-level loop.
func (e *Engine) runSteps(ctx context.Context, steps []schema.Step) error {
	for i := range steps {
		if err := e.runStep(ctx, steps[i]); err != nil {
			if IsFatal(err) {
				return err
			}
			if steps[i].OnError == schema.PolicyContinue {
				fmt.Fprintf(e.out, "  ⚠ nested %s failed (continuing): %v\n", steps[i].Kind(), err)
				continue
			}
			return err
		}
	}
	return nil
}

// effectivePolicy resolves the error policy for a step: step override, else
// scenario onError, else stop.
func (e *Engine) effectivePolicy(step schema.Step) string {
	if step.OnError != "" {
		return step.OnError
	}
	if e.Scenario.OnError != "" {
		return e.Scenario.OnError
	}
	return schema.PolicyStop
}

func (e *Engine) actionTimeout(step schema.Step) time.Duration {
	return e.stepTimeout(step, browser.DefaultActionTimeout)
}

func (e *Engine) waitTimeout(step schema.Step) time.Duration {
	return e.stepTimeout(step, browser.DefaultWaitTimeout)
}

func (e *Engine) stepTimeout(step schema.Step, def time.Duration) time.Duration {
	if step.Timeout == "" {
		return def
	}
	d, err := time.ParseDuration(step.Timeout)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// evalCondition evaluates an if: expr condition over the variable table.
func (e *Engine) evalCondition(exprStr string) (bool, error) {
	env := e.Vars.Env()
	program, err := expr.Compile(exprStr, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile condition %q: %w", exprStr, err)
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("eval condition %q: %w", exprStr, err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not return bool (got %T)", exprStr, output)
	}
	return result, nil
}

// writeManifest persists run.yaml next to the trace. Best effort: a manifest
// write failure must not mask the run outcome.
func (e *Engine) writeManifest(report *ExecutionReport) {
	if e.baseDir == "" {
		return
	}
	m := RunManifest{
		RunID:        e.runID,
		Scenario:     e.Scenario.Name,
		ScenarioPath: e.scenarioPath,
		StartedAt:    e.startedAt.Format(time.RFC3339),
		EndedAt:      time.Now().Format(time.RFC3339),
		Success:      report.Success,
		Error:        report.Error,
		Vars:         e.Vars,
		StepsSummary: e.counts,
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		fmt.Fprintf(e.out, "  warning: marshal manifest: %v\n", err)
		return
	}
	if err := os.WriteFile(filepath.Join(e.baseDir, "run.yaml"), data, 0644); err != nil {
		fmt.Fprintf(e.out, "  warning: write manifest: %v\n", err)
	}
}
