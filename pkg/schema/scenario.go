// Package schema defines the Go struct types for the scenario YAML schema
// and provides strict YAML parsing.
package schema

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is the top-level document describing a browser workflow.
type Scenario struct {
	Name        string   `yaml:"name"                  json:"name"                  jsonschema:"required"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Page        string   `yaml:"page,omitempty"        json:"page,omitempty"`
	OnError     string   `yaml:"onError,omitempty"     json:"onError,omitempty"     jsonschema:"enum=stop,enum=continue"`
	Variables   VarDecls `yaml:"variables,omitempty"   json:"variables,omitempty"`
	Steps       []Step   `yaml:"steps"                 json:"steps"                 jsonschema:"required"`
}

// DefaultPage is the page identifier used when a scenario omits page:.
const DefaultPage = "main"

// Error policies. Resolution order is step override, then scenario onError,
// then PolicyStop.
const (
	PolicyStop     = "stop"
	PolicyContinue = "continue"
)

// VarDecl is a single declared variable: a literal value or an
// ${ENV_NAME:-default} expression, resolved once at scenario start.
type VarDecl struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// VarDecls preserves the declaration order of the variables: mapping.
type VarDecls []VarDecl

// UnmarshalYAML decodes a YAML mapping into an ordered declaration list.
func (v *VarDecls) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("variables: expected a mapping, got %s", nodeKind(node))
	}
	decls := make(VarDecls, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		val := node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("variables.%s: value must be a string", key.Value)
		}
		decls = append(decls, VarDecl{Name: key.Value, Value: val.Value})
	}
	*v = decls
	return nil
}

// MarshalJSON renders the declarations as an object, matching the document form.
func (v VarDecls) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, len(v))
	for _, d := range v {
		m[d.Name] = d.Value
	}
	return json.Marshal(m)
}

// Step is a tagged variant over the closed set of step kinds. Exactly one
// kind field should be set; when a malformed document sets several, the
// first kind in kindOrder wins (see Kind).
type Step struct {
	Goto       *GotoStep       `yaml:"goto,omitempty"       json:"goto,omitempty"`
	Click      *ClickStep      `yaml:"click,omitempty"      json:"click,omitempty"`
	Fill       *FillStep       `yaml:"fill,omitempty"       json:"fill,omitempty"`
	Type       *TypeStep       `yaml:"type,omitempty"       json:"type,omitempty"`
	Wait       *WaitStep       `yaml:"wait,omitempty"       json:"wait,omitempty"`
	Screenshot *ScreenshotStep `yaml:"screenshot,omitempty" json:"screenshot,omitempty"`
	Eval       *EvalStep       `yaml:"eval,omitempty"       json:"eval,omitempty"`
	Login      *LoginStep      `yaml:"login,omitempty"      json:"login,omitempty"`
	FillForm   *FillFormStep   `yaml:"fillForm,omitempty"   json:"fillForm,omitempty"`
	Modal      *ModalStep      `yaml:"modal,omitempty"      json:"modal,omitempty"`
	Responsive *ResponsiveStep `yaml:"responsive,omitempty" json:"responsive,omitempty"`
	If         *IfStep         `yaml:"if,omitempty"         json:"if,omitempty"`
	Try        []Step          `yaml:"try,omitempty"        json:"try,omitempty"`
	Catch      []Step          `yaml:"catch,omitempty"      json:"catch,omitempty"`
	Each       *EachStep       `yaml:"each,omitempty"       json:"each,omitempty"`
	Repeat     *RepeatStep     `yaml:"repeat,omitempty"     json:"repeat,omitempty"`

	OnError string      `yaml:"onError,omitempty" json:"onError,omitempty" jsonschema:"enum=stop,enum=continue"`
	Timeout string      `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"pattern=^[0-9]+(ms|s|m)$"`
	Assert  []Assertion `yaml:"assert,omitempty"  json:"assert,omitempty"`
}

// Kind identifies one of the recognized step kinds.
type Kind string

// Step kinds, in dispatch priority order.
const (
	KindGoto       Kind = "goto"
	KindClick      Kind = "click"
	KindFill       Kind = "fill"
	KindType       Kind = "type"
	KindWait       Kind = "wait"
	KindScreenshot Kind = "screenshot"
	KindEval       Kind = "eval"
	KindLogin      Kind = "login"
	KindFillForm   Kind = "fillForm"
	KindModal      Kind = "modal"
	KindResponsive Kind = "responsive"
	KindIf         Kind = "if"
	KindTry        Kind = "try"
	KindEach       Kind = "each"
	KindRepeat     Kind = "repeat"
	KindUnknown    Kind = ""
)

// kindOrder fixes the dispatch precedence when a malformed step carries more
// than one kind key. The order is part of the engine contract and must not
// depend on map iteration order.
var kindOrder = []Kind{
	KindGoto, KindClick, KindFill, KindType, KindWait, KindScreenshot,
	KindEval, KindLogin, KindFillForm, KindModal, KindResponsive,
	KindIf, KindTry, KindEach, KindRepeat,
}

// KindOrder returns the fixed dispatch precedence of the step kinds.
func KindOrder() []Kind {
	out := make([]Kind, len(kindOrder))
	copy(out, kindOrder)
	return out
}

// Kind returns the step's kind: the first kind in kindOrder whose field is
// set, or KindUnknown when none is.
func (s *Step) Kind() Kind {
	for _, k := range kindOrder {
		if s.hasKind(k) {
			return k
		}
	}
	return KindUnknown
}

// Kinds returns every kind key set on the step. Used by validation to flag
// malformed multi-key steps.
func (s *Step) Kinds() []Kind {
	var out []Kind
	for _, k := range kindOrder {
		if s.hasKind(k) {
			out = append(out, k)
		}
	}
	return out
}

func (s *Step) hasKind(k Kind) bool {
	switch k {
	case KindGoto:
		return s.Goto != nil
	case KindClick:
		return s.Click != nil
	case KindFill:
		return s.Fill != nil
	case KindType:
		return s.Type != nil
	case KindWait:
		return s.Wait != nil
	case KindScreenshot:
		return s.Screenshot != nil
	case KindEval:
		return s.Eval != nil
	case KindLogin:
		return s.Login != nil
	case KindFillForm:
		return s.FillForm != nil
	case KindModal:
		return s.Modal != nil
	case KindResponsive:
		return s.Responsive != nil
	case KindIf:
		return s.If != nil
	case KindTry:
		return s.Try != nil
	case KindEach:
		return s.Each != nil
	case KindRepeat:
		return s.Repeat != nil
	}
	return false
}

// GotoStep navigates the page. Shorthand: a plain URL string.
type GotoStep struct {
	URL       string `yaml:"url"                 json:"url" jsonschema:"required"`
	WaitUntil string `yaml:"waitUntil,omitempty" json:"waitUntil,omitempty" jsonschema:"enum=load,enum=domcontentloaded,enum=networkidle"`
}

func (g *GotoStep) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		g.URL = node.Value
		return nil
	}
	type plain GotoStep
	return node.Decode((*plain)(g))
}

// ClickStep clicks the first element matching a selector. Shorthand: a
// plain selector string.
type ClickStep struct {
	Selector string `yaml:"selector,omitempty" json:"selector,omitempty"`
	Role     string `yaml:"role,omitempty"     json:"role,omitempty"`
	Text     string `yaml:"text,omitempty"     json:"text,omitempty"`
}

func (c *ClickStep) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.Selector = node.Value
		return nil
	}
	type plain ClickStep
	return node.Decode((*plain)(c))
}

// FillStep replaces the value of the first element matching a selector.
type FillStep struct {
	Selector string `yaml:"selector" json:"selector" jsonschema:"required"`
	Value    string `yaml:"value"    json:"value"    jsonschema:"required"`
}

// TypeStep types text into the first element matching a selector,
// one key event at a time.
type TypeStep struct {
	Selector string `yaml:"selector"        json:"selector" jsonschema:"required"`
	Text     string `yaml:"text"            json:"text"     jsonschema:"required"`
	Delay    int    `yaml:"delay,omitempty" json:"delay,omitempty"` // ms between keys
}

// WaitStep suspends until a page condition holds. Shorthand forms:
// a load state name ("load", "domcontentloaded", "networkidle"), a
// millisecond count, or any other string as a selector to wait for.
type WaitStep struct {
	Selector string `yaml:"selector,omitempty" json:"selector,omitempty"`
	State    string `yaml:"state,omitempty"    json:"state,omitempty" jsonschema:"enum=visible,enum=hidden,enum=attached"`
	URL      string `yaml:"url,omitempty"      json:"url,omitempty"` // glob pattern
	Load     string `yaml:"load,omitempty"     json:"load,omitempty" jsonschema:"enum=load,enum=domcontentloaded,enum=networkidle"`
	Millis   int    `yaml:"ms,omitempty"       json:"ms,omitempty"`
}

var loadStates = map[string]bool{"load": true, "domcontentloaded": true, "networkidle": true}

func (w *WaitStep) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var ms int
		if err := node.Decode(&ms); err == nil {
			w.Millis = ms
			return nil
		}
		if loadStates[node.Value] {
			w.Load = node.Value
			return nil
		}
		w.Selector = node.Value
		return nil
	}
	type plain WaitStep
	return node.Decode((*plain)(w))
}

// ScreenshotStep captures the page to a file. Shorthand: a plain path.
// Relative paths are placed under tmp/ by the artifact path resolver.
type ScreenshotStep struct {
	Path     string `yaml:"path"               json:"path" jsonschema:"required"`
	FullPage bool   `yaml:"fullPage,omitempty" json:"fullPage,omitempty"`
}

func (s *ScreenshotStep) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		s.Path = node.Value
		return nil
	}
	type plain ScreenshotStep
	return node.Decode((*plain)(s))
}

// EvalStep evaluates a script on the page. With store:, the stringified
// result is written into the Variable Table under that name. Shorthand:
// a plain script string.
type EvalStep struct {
	Script string `yaml:"script"          json:"script" jsonschema:"required"`
	Store  string `yaml:"store,omitempty" json:"store,omitempty"`
}

func (e *EvalStep) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.Script = node.Value
		return nil
	}
	type plain EvalStep
	return node.Decode((*plain)(e))
}

// LoginStep is the username/password/submit shortcut. Selector fields fall
// back to common defaults when omitted.
type LoginStep struct {
	URL              string `yaml:"url,omitempty"              json:"url,omitempty"`
	Username         string `yaml:"username"                   json:"username" jsonschema:"required"`
	Password         string `yaml:"password"                   json:"password" jsonschema:"required"`
	UsernameSelector string `yaml:"usernameSelector,omitempty" json:"usernameSelector,omitempty"`
	PasswordSelector string `yaml:"passwordSelector,omitempty" json:"passwordSelector,omitempty"`
	SubmitSelector   string `yaml:"submitSelector,omitempty"   json:"submitSelector,omitempty"`
	SuccessURL       string `yaml:"successUrl,omitempty"       json:"successUrl,omitempty"` // glob pattern
}

// FillFormStep fills several fields via the connection's smart cross-frame
// form-fill helper, then optionally clicks a submit selector.
type FillFormStep struct {
	Fields map[string]string `yaml:"fields"           json:"fields" jsonschema:"required"`
	Submit string            `yaml:"submit,omitempty" json:"submit,omitempty"`
}

// ModalStep opens a modal, runs nested steps inside it, and closes it.
type ModalStep struct {
	Open  string `yaml:"open"            json:"open" jsonschema:"required"`
	Steps []Step `yaml:"steps,omitempty" json:"steps,omitempty"`
	Close string `yaml:"close,omitempty" json:"close,omitempty"`
}

// ResponsiveStep captures the page at multiple viewports. Viewports are
// preset names (mobile, tablet, desktop) or WIDTHxHEIGHT strings; the
// viewport name is suffixed onto the screenshot path.
type ResponsiveStep struct {
	Path      string   `yaml:"path"                json:"path" jsonschema:"required"`
	Viewports []string `yaml:"viewports,omitempty" json:"viewports,omitempty"`
	FullPage  bool     `yaml:"fullPage,omitempty"  json:"fullPage,omitempty"`
}

// IfStep branches on a page condition. Exactly one of Exists, URL, or Expr
// must be set.
type IfStep struct {
	Exists string `yaml:"exists,omitempty" json:"exists,omitempty"` // selector match count > 0
	URL    string `yaml:"url,omitempty"    json:"url,omitempty"`    // glob against current URL
	Expr   string `yaml:"expr,omitempty"   json:"expr,omitempty"`   // expression over the variable table
	Then   []Step `yaml:"then"             json:"then" jsonschema:"required"`
	Else   []Step `yaml:"else,omitempty"   json:"else,omitempty"`
}

// EachStep runs nested steps once per element matching the selector,
// strictly sequentially. The As alias is accepted by the schema but is not
// rebound per iteration; {{alias}} interpolates to the empty string.
type EachStep struct {
	Selector string `yaml:"selector"     json:"selector" jsonschema:"required"`
	As       string `yaml:"as,omitempty" json:"as,omitempty"`
	Steps    []Step `yaml:"steps"        json:"steps"    jsonschema:"required"`
}

// RepeatStep runs nested steps exactly Times times. Times: 0 is a no-op.
type RepeatStep struct {
	Times int    `yaml:"times" json:"times" jsonschema:"required,minimum=0"`
	Steps []Step `yaml:"steps" json:"steps" jsonschema:"required"`
}

// Assertion is a post-step check of current page state. Exactly one kind
// field must be set.
type Assertion struct {
	Title         string          `yaml:"title,omitempty"         json:"title,omitempty"`
	TitleContains string          `yaml:"titleContains,omitempty" json:"titleContains,omitempty"`
	URL           string          `yaml:"url,omitempty"           json:"url,omitempty"` // glob pattern
	Visible       string          `yaml:"visible,omitempty"       json:"visible,omitempty"`
	Hidden        string          `yaml:"hidden,omitempty"        json:"hidden,omitempty"`
	Exists        string          `yaml:"exists,omitempty"        json:"exists,omitempty"`
	Text          *TextAssertion  `yaml:"text,omitempty"          json:"text,omitempty"`
	Count         *CountAssertion `yaml:"count,omitempty"         json:"count,omitempty"`
}

// TextAssertion checks the trimmed text content of the first element
// matching Selector. One of Contains or Equals must be set.
type TextAssertion struct {
	Selector string `yaml:"selector"           json:"selector" jsonschema:"required"`
	Contains string `yaml:"contains,omitempty" json:"contains,omitempty"`
	Equals   string `yaml:"equals,omitempty"   json:"equals,omitempty"`
}

// CountAssertion checks the selector match count against exact/min/max
// bounds. At least one bound must be set.
type CountAssertion struct {
	Selector string `yaml:"selector"         json:"selector" jsonschema:"required"`
	Equals   *int   `yaml:"equals,omitempty" json:"equals,omitempty"`
	Min      *int   `yaml:"min,omitempty"    json:"min,omitempty"`
	Max      *int   `yaml:"max,omitempty"    json:"max,omitempty"`
}

// LoadFile reads and parses a scenario YAML file with strict unknown-field
// rejection. Returns the parsed Scenario or an error.
func LoadFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a scenario from an io.Reader with strict unknown-field
// rejection, applying document defaults.
func Load(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if sc.Page == "" {
		sc.Page = DefaultPage
	}
	if sc.OnError == "" {
		sc.OnError = PolicyStop
	}
	return &sc, nil
}

func nodeKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.ScalarNode:
		return "scalar"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	default:
		return "document"
	}
}
