package browser

import (
	"os"
	"path/filepath"
)

// ArtifactDir is where relative screenshot paths land.
const ArtifactDir = "tmp"

// ResolveArtifactPath maps a user-supplied screenshot path to the path that
// is actually written: absolute paths pass through, anything else is placed
// under tmp/.
func ResolveArtifactPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(ArtifactDir, path)
}

// EnsureArtifactDir creates the parent directory of a resolved artifact path.
func EnsureArtifactDir(resolved string) error {
	return os.MkdirAll(filepath.Dir(resolved), 0755)
}

// SuffixPath inserts a suffix before the path's extension:
// shot.png + "mobile" → shot-mobile.png. Used by responsive capture.
func SuffixPath(path, suffix string) string {
	ext := filepath.Ext(path)
	return path[:len(path)-len(ext)] + "-" + suffix + ext
}
