package browser

import (
	"fmt"
	"strconv"
	"strings"
)

// Viewport is a named page size used by responsive capture.
type Viewport struct {
	Name   string
	Width  int
	Height int
}

// Named viewport presets.
var presets = map[string]Viewport{
	"mobile":  {Name: "mobile", Width: 375, Height: 667},
	"tablet":  {Name: "tablet", Width: 768, Height: 1024},
	"desktop": {Name: "desktop", Width: 1280, Height: 800},
}

// DefaultViewports is the capture set used when a responsive step lists none.
var DefaultViewports = []string{"mobile", "tablet", "desktop"}

// ParseViewport resolves a preset name or a WIDTHxHEIGHT string.
func ParseViewport(spec string) (Viewport, error) {
	if vp, ok := presets[spec]; ok {
		return vp, nil
	}
	parts := strings.SplitN(spec, "x", 2)
	if len(parts) == 2 {
		w, werr := strconv.Atoi(parts[0])
		h, herr := strconv.Atoi(parts[1])
		if werr == nil && herr == nil && w > 0 && h > 0 {
			return Viewport{Name: spec, Width: w, Height: h}, nil
		}
	}
	return Viewport{}, fmt.Errorf("invalid viewport %q: use mobile, tablet, desktop, or WIDTHxHEIGHT", spec)
}
