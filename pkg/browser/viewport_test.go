package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseViewportPresets(t *testing.T) {
	vp, err := ParseViewport("mobile")
	require.NoError(t, err)
	assert.Equal(t, Viewport{Name: "mobile", Width: 375, Height: 667}, vp)

	vp, err = ParseViewport("desktop")
	require.NoError(t, err)
	assert.Equal(t, 1280, vp.Width)
}

func TestParseViewportDimensions(t *testing.T) {
	vp, err := ParseViewport("1440x900")
	require.NoError(t, err)
	assert.Equal(t, Viewport{Name: "1440x900", Width: 1440, Height: 900}, vp)
}

func TestParseViewportInvalid(t *testing.T) {
	for _, spec := range []string{"", "huge", "0x100", "100x", "x100", "-5x100"} {
		_, err := ParseViewport(spec)
		assert.Error(t, err, "spec %q", spec)
	}
}
