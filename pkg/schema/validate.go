package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError represents a single validation error with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location (e.g., "steps[0].fill")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// ValidateFile performs the full 3-phase validation pipeline on a scenario file.
// Phase 1: Structural (strict YAML decode)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (custom Go rules)
func ValidateFile(path string) (*Scenario, []*ValidationError) {
	sc, err := LoadFile(path)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}

	var allErrors []*ValidationError
	allErrors = append(allErrors, validateSemantic(sc)...)
	allErrors = append(allErrors, ValidateDomain(sc)...)
	if len(allErrors) > 0 {
		return sc, allErrors
	}
	return sc, nil
}

// validateSemantic validates the scenario against the generated JSON Schema.
func validateSemantic(sc *Scenario) []*ValidationError {
	data, err := json.Marshal(sc)
	if err != nil {
		return semanticError(fmt.Sprintf("marshal for schema validation: %v", err))
	}

	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return semanticError(fmt.Sprintf("generate schema: %v", err))
	}

	var schemaDoc interface{}
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return semanticError(fmt.Sprintf("unmarshal schema: %v", err))
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("scenario-v0.json", schemaDoc); err != nil {
		return semanticError(fmt.Sprintf("add schema resource: %v", err))
	}
	sch, err := c.Compile("scenario-v0.json")
	if err != nil {
		return semanticError(fmt.Sprintf("compile schema: %v", err))
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return semanticError(fmt.Sprintf("unmarshal document: %v", err))
	}

	if err := sch.Validate(doc); err != nil {
		var errs []*ValidationError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, &ValidationError{
					Phase:    "semantic",
					Path:     strings.Join(cause.InstanceLocation, "/"),
					Message:  fmt.Sprintf("%v", cause.ErrorKind),
					Severity: "error",
				})
			}
		} else {
			errs = semanticError(err.Error())
		}
		return errs
	}
	return nil
}

func semanticError(msg string) []*ValidationError {
	return []*ValidationError{{Phase: "semantic", Message: msg, Severity: "error"}}
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// ValidateDomain performs Phase 3 domain-level validation.
// Returns a slice of errors; empty means valid.
func ValidateDomain(sc *Scenario) []*ValidationError {
	var errs []*ValidationError

	if sc.Name == "" {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     "name",
			Message:  "scenario requires a name",
			Severity: "error",
		})
	}

	if sc.OnError != "" && sc.OnError != PolicyStop && sc.OnError != PolicyContinue {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     "onError",
			Message:  fmt.Sprintf("invalid onError %q: must be %q or %q", sc.OnError, PolicyStop, PolicyContinue),
			Severity: "error",
		})
	}

	if len(sc.Steps) == 0 {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     "steps",
			Message:  "scenario must contain at least one step",
			Severity: "error",
		})
	}

	// Duplicate variable declarations shadow earlier ones silently; flag them.
	seen := make(map[string]int)
	for i, d := range sc.Variables {
		if prev, ok := seen[d.Name]; ok {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     fmt.Sprintf("variables.%s", d.Name),
				Message:  fmt.Sprintf("variable %q declared twice (first at position %d)", d.Name, prev),
				Severity: "warning",
			})
		}
		seen[d.Name] = i
	}

	validateStepList(sc, sc.Steps, "steps", &errs)
	return errs
}

// validateStepList walks a step list (recursing into control-flow bodies)
// and appends any domain errors found.
func validateStepList(sc *Scenario, steps []Step, path string, errs *[]*ValidationError) {
	for i := range steps {
		validateStep(sc, &steps[i], fmt.Sprintf("%s[%d]", path, i), errs)
	}
}

func validateStep(sc *Scenario, s *Step, path string, errs *[]*ValidationError) {
	add := func(p, msg, severity string) {
		*errs = append(*errs, &ValidationError{Phase: "domain", Path: p, Message: msg, Severity: severity})
	}

	kinds := s.Kinds()
	switch {
	case len(kinds) == 0 && s.Catch == nil:
		add(path, "step has no recognized kind key", "error")
	case len(kinds) > 1:
		names := make([]string, len(kinds))
		for i, k := range kinds {
			names[i] = string(k)
		}
		add(path, fmt.Sprintf("step sets multiple kind keys (%s); %q takes precedence", strings.Join(names, ", "), kinds[0]), "warning")
	}

	if s.Catch != nil && s.Try == nil {
		add(path+".catch", "catch without try", "error")
	}

	if s.OnError != "" && s.OnError != PolicyStop && s.OnError != PolicyContinue {
		add(path+".onError", fmt.Sprintf("invalid onError %q: must be %q or %q", s.OnError, PolicyStop, PolicyContinue), "error")
	}

	if s.Timeout != "" {
		if _, err := time.ParseDuration(s.Timeout); err != nil {
			add(path+".timeout", fmt.Sprintf("invalid timeout %q: %v", s.Timeout, err), "error")
		}
	}

	switch s.Kind() {
	case KindGoto:
		if s.Goto.URL == "" {
			add(path+".goto", "goto requires a url", "error")
		}
	case KindClick:
		if s.Click.Selector == "" && s.Click.Role == "" && s.Click.Text == "" {
			add(path+".click", "click requires a selector, role, or text", "error")
		}
	case KindFill:
		if s.Fill.Selector == "" {
			add(path+".fill.selector", "fill requires a selector", "error")
		}
	case KindType:
		if s.Type.Selector == "" {
			add(path+".type.selector", "type requires a selector", "error")
		}
	case KindWait:
		w := s.Wait
		if w.Selector == "" && w.URL == "" && w.Load == "" && w.Millis == 0 {
			add(path+".wait", "wait requires a selector, url, load state, or ms", "error")
		}
		if w.State != "" && w.Selector == "" {
			add(path+".wait.state", "wait state requires a selector", "error")
		}
	case KindScreenshot:
		if s.Screenshot.Path == "" {
			add(path+".screenshot.path", "screenshot requires a path", "error")
		}
	case KindEval:
		if s.Eval.Script == "" {
			add(path+".eval.script", "eval requires a script", "error")
		}
	case KindLogin:
		if s.Login.Username == "" || s.Login.Password == "" {
			add(path+".login", "login requires username and password", "error")
		}
	case KindFillForm:
		if len(s.FillForm.Fields) == 0 {
			add(path+".fillForm.fields", "fillForm requires at least one field", "error")
		}
	case KindModal:
		if s.Modal.Open == "" {
			add(path+".modal.open", "modal requires an open selector", "error")
		}
		validateStepList(sc, s.Modal.Steps, path+".modal.steps", errs)
	case KindResponsive:
		if s.Responsive.Path == "" {
			add(path+".responsive.path", "responsive requires a path", "error")
		}
	case KindIf:
		set := 0
		for _, c := range []string{s.If.Exists, s.If.URL, s.If.Expr} {
			if c != "" {
				set++
			}
		}
		if set != 1 {
			add(path+".if", fmt.Sprintf("if requires exactly one of exists, url, or expr (got %d)", set), "error")
		}
		if len(s.If.Then) == 0 {
			add(path+".if.then", "if requires a then step list", "error")
		}
		validateStepList(sc, s.If.Then, path+".if.then", errs)
		validateStepList(sc, s.If.Else, path+".if.else", errs)
	case KindTry:
		validateStepList(sc, s.Try, path+".try", errs)
		validateStepList(sc, s.Catch, path+".catch", errs)
	case KindEach:
		if s.Each.Selector == "" {
			add(path+".each.selector", "each requires a selector", "error")
		}
		validateStepList(sc, s.Each.Steps, path+".each.steps", errs)
	case KindRepeat:
		if s.Repeat.Times < 0 {
			add(path+".repeat.times", fmt.Sprintf("repeat times must be >= 0, got %d", s.Repeat.Times), "error")
		}
		validateStepList(sc, s.Repeat.Steps, path+".repeat.steps", errs)
	}

	for j := range s.Assert {
		validateAssertion(&s.Assert[j], fmt.Sprintf("%s.assert[%d]", path, j), errs)
	}
}

func validateAssertion(a *Assertion, path string, errs *[]*ValidationError) {
	add := func(p, msg string) {
		*errs = append(*errs, &ValidationError{Phase: "domain", Path: p, Message: msg, Severity: "error"})
	}

	count := countAssertionFields(a)
	if count != 1 {
		add(path, fmt.Sprintf("exactly one assertion field must be set, got %d", count))
		return
	}

	if a.Text != nil {
		if a.Text.Selector == "" {
			add(path+".text.selector", "text assertion requires a selector")
		}
		if a.Text.Contains == "" && a.Text.Equals == "" {
			add(path+".text", "text assertion requires contains or equals")
		}
		if a.Text.Contains != "" && a.Text.Equals != "" {
			add(path+".text", "text assertion takes contains or equals, not both")
		}
	}
	if a.Count != nil {
		c := a.Count
		if c.Selector == "" {
			add(path+".count.selector", "count assertion requires a selector")
		}
		if c.Equals == nil && c.Min == nil && c.Max == nil {
			add(path+".count", "count assertion requires equals, min, or max")
		}
		if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
			add(path+".count", fmt.Sprintf("count min %d exceeds max %d", *c.Min, *c.Max))
		}
	}
}

// countAssertionFields returns the number of assertion kind fields set.
func countAssertionFields(a *Assertion) int {
	count := 0
	if a.Title != "" {
		count++
	}
	if a.TitleContains != "" {
		count++
	}
	if a.URL != "" {
		count++
	}
	if a.Visible != "" {
		count++
	}
	if a.Hidden != "" {
		count++
	}
	if a.Exists != "" {
		count++
	}
	if a.Text != nil {
		count++
	}
	if a.Count != nil {
		count++
	}
	return count
}

// placeholderRe matches {{identifier}} interpolation placeholders.
var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// CheckVariableReferences scans every step payload for {{name}} placeholders
// that name neither a declared variable, an eval store target, nor an each
// alias, and returns one warning per distinct undefined name. Undefined names
// interpolate to "" at runtime, so these are warnings rather than errors.
func CheckVariableReferences(sc *Scenario) []*ValidationError {
	defined := make(map[string]bool)
	for _, d := range sc.Variables {
		defined[d.Name] = true
	}
	collectDefinedNames(sc.Steps, defined)

	warned := make(map[string]bool)
	var errs []*ValidationError
	walkPayloadStrings(sc.Steps, func(v string) {
		for _, m := range placeholderRe.FindAllStringSubmatch(v, -1) {
			name := m[1]
			if !defined[name] && !warned[name] {
				warned[name] = true
				errs = append(errs, &ValidationError{
					Phase:    "domain",
					Path:     "steps",
					Message:  fmt.Sprintf("reference to undefined variable {{%s}} (interpolates to empty string)", name),
					Severity: "warning",
				})
			}
		}
	})
	return errs
}

func collectDefinedNames(steps []Step, defined map[string]bool) {
	for i := range steps {
		s := &steps[i]
		if s.Eval != nil && s.Eval.Store != "" {
			defined[s.Eval.Store] = true
		}
		if s.Each != nil && s.Each.As != "" {
			defined[s.Each.As] = true
		}
		for _, nested := range nestedLists(s) {
			collectDefinedNames(nested, defined)
		}
	}
}

// walkPayloadStrings visits every payload string in every step, including
// nested control-flow bodies, via the same Mapped traversal the engine uses
// for interpolation.
func walkPayloadStrings(steps []Step, visit func(string)) {
	for i := range steps {
		steps[i].Mapped(func(v string) string {
			visit(v)
			return v
		})
		for _, nested := range nestedLists(&steps[i]) {
			walkPayloadStrings(nested, visit)
		}
	}
}

func nestedLists(s *Step) [][]Step {
	var out [][]Step
	if s.If != nil {
		out = append(out, s.If.Then, s.If.Else)
	}
	if s.Try != nil {
		out = append(out, s.Try, s.Catch)
	}
	if s.Each != nil {
		out = append(out, s.Each.Steps)
	}
	if s.Repeat != nil {
		out = append(out, s.Repeat.Steps)
	}
	if s.Modal != nil {
		out = append(out, s.Modal.Steps)
	}
	return out
}
