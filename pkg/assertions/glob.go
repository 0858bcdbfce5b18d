package assertions

import (
	"regexp"
	"strings"
)

// CompileGlob turns a URL glob into a regular expression: `**` matches any
// run of characters, `*` matches any run without `/`, everything else is
// literal. The pattern is unanchored, so it matches anywhere in the URL.
func CompileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		if pattern[i] != '*' {
			b.WriteString(regexp.QuoteMeta(string(pattern[i])))
			continue
		}
		if i+1 < len(pattern) && pattern[i+1] == '*' {
			b.WriteString(".*")
			i++
		} else {
			b.WriteString("[^/]*")
		}
	}
	return regexp.Compile(b.String())
}

// MatchGlob reports whether url matches the glob pattern. An invalid pattern
// never matches.
func MatchGlob(pattern, url string) bool {
	re, err := CompileGlob(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(url)
}
