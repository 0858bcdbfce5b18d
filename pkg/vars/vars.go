// Package vars implements the runtime Variable Table: environment-fallback
// resolution of declared scenario variables and {{name}} interpolation of
// step payloads.
package vars

import (
	"os"
	"regexp"

	"github.com/ormasoftchile/gaze/pkg/schema"
)

// Table maps variable names to resolved string values. It is built once at
// scenario start and shared by reference with every step invocation; the
// only writer after that is an eval step with store:.
type Table map[string]string

// envFallbackRe matches ${ENV_NAME:-default} declaration expressions.
var envFallbackRe = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*):-(.*)\}$`)

// placeholderRe matches {{identifier}} interpolation placeholders.
var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// ResolveDeclared builds the initial Variable Table from the ordered
// declarations. A value of the form ${ENV_NAME:-default} resolves to the
// process environment value of ENV_NAME when set and non-empty, otherwise to
// the literal default; any other value is taken literally. Resolution
// happens exactly once per run.
func ResolveDeclared(decls schema.VarDecls) Table {
	t := make(Table, len(decls))
	for _, d := range decls {
		t[d.Name] = resolveValue(d.Value)
	}
	return t
}

func resolveValue(raw string) string {
	m := envFallbackRe.FindStringSubmatch(raw)
	if m == nil {
		return raw
	}
	if v, ok := os.LookupEnv(m[1]); ok && v != "" {
		return v
	}
	return m[2]
}

// Interpolate replaces every {{name}} occurrence in s with the table's
// current value for name, or the empty string when undefined. Pure function
// of its inputs: it reads the table but never mutates it.
func (t Table) Interpolate(s string) string {
	if s == "" {
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		return t[name]
	})
}

// Set writes a value through the shared table. Used by the eval-with-store
// action handler.
func (t Table) Set(name, value string) {
	t[name] = value
}

// Env exposes the table as a generic map for condition-expression
// evaluation.
func (t Table) Env() map[string]interface{} {
	env := make(map[string]interface{}, len(t))
	for k, v := range t {
		env[k] = v
	}
	return env
}
