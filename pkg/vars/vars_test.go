package vars

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ormasoftchile/gaze/pkg/schema"
)

func TestResolveDeclaredEnvFallback(t *testing.T) {
	t.Setenv("GAZE_TEST_SET", "from-env")
	t.Setenv("GAZE_TEST_EMPTY", "")

	table := ResolveDeclared(schema.VarDecls{
		{Name: "set", Value: "${GAZE_TEST_SET:-fallback}"},
		{Name: "unset", Value: "${GAZE_TEST_UNSET:-fallback}"},
		{Name: "empty", Value: "${GAZE_TEST_EMPTY:-fallback}"},
		{Name: "literal", Value: "plain value"},
		{Name: "almost", Value: "${not closed"},
	})

	assert.Equal(t, "from-env", table["set"])
	assert.Equal(t, "fallback", table["unset"])
	assert.Equal(t, "fallback", table["empty"], "empty env values fall back to the default")
	assert.Equal(t, "plain value", table["literal"])
	assert.Equal(t, "${not closed", table["almost"], "non-matching values are literals")
}

func TestResolveDeclaredEmptyDefault(t *testing.T) {
	table := ResolveDeclared(schema.VarDecls{
		{Name: "v", Value: "${GAZE_TEST_UNSET:-}"},
	})
	assert.Equal(t, "", table["v"])
}

func TestInterpolate(t *testing.T) {
	table := Table{"user": "ada", "host": "example.com"}

	assert.Equal(t, "ada@example.com", table.Interpolate("{{user}}@{{host}}"))
	assert.Equal(t, "ada", table.Interpolate("{{ user }}"), "whitespace inside braces is allowed")
	assert.Equal(t, "", table.Interpolate("{{missing}}"), "undefined names interpolate to empty")
	assert.Equal(t, "no placeholders", table.Interpolate("no placeholders"))
	assert.Equal(t, "", table.Interpolate(""))
	assert.Equal(t, "{not-a-placeholder}", table.Interpolate("{not-a-placeholder}"))
}

func TestSetWritesThroughSharedTable(t *testing.T) {
	table := Table{}
	alias := table

	table.Set("token", "t-1")
	assert.Equal(t, "t-1", alias.Interpolate("{{token}}"), "the table is shared by reference")
}

func TestEnvExposesValuesForExpressions(t *testing.T) {
	table := Table{"env": "staging", "count": "3"}
	env := table.Env()
	assert.Equal(t, "staging", env["env"])
	assert.Equal(t, "3", env["count"], "values stay strings")
}
