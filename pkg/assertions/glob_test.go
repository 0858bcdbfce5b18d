package assertions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompileGlob(t *testing.T) {
	cases := []struct {
		pattern string
		url     string
		want    bool
	}{
		{"**/dashboard", "https://example.com/app/dashboard", true},
		{"*/dashboard", "https://example.com/app/dashboard", true}, // unanchored: matches "app/dashboard"
		{"https://*/login", "https://example.com/login", true},
		{"https://*/login", "https://example.com/auth/login", false}, // single star stops at /
		{"**?tab=*", "https://example.com/settings?tab=billing", true},
		{"v1.2", "https://example.com/v1x2", false}, // dot is literal
		{"", "anything", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MatchGlob(tc.pattern, tc.url), "pattern %q against %q", tc.pattern, tc.url)
	}
}
