package clap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ResolvedPath is the outcome of resolving a user supplied plugin path.
type ResolvedPath struct {
	// PluginPath is the absolute path handed to clap_plugin_entry.init. On
	// macOS this is the bundle root.
	PluginPath string
	// LibraryPath is the file the module loader opens.
	LibraryPath string
}

// ResolvePath anchors path to the working directory and, on platforms that
// package plugins as bundles, locates the bundle's executable.
func ResolvePath(path string) (ResolvedPath, error) {
	if path == "" {
		return ResolvedPath{}, fmt.Errorf("%w: empty path", ErrPath)
	}
	if !utf8.ValidString(path) {
		return ResolvedPath{}, fmt.Errorf("%w: %q contains invalid UTF-8", ErrPath, path)
	}
	if strings.IndexByte(path, 0) >= 0 {
		return ResolvedPath{}, fmt.Errorf("%w: %q contains null bytes", ErrPath, path)
	}

	abs := absolutePath(path)
	lib, err := bundleExecutable(abs)
	if err != nil {
		return ResolvedPath{}, err
	}
	return ResolvedPath{PluginPath: abs, LibraryPath: lib}, nil
}

// absolutePath joins relative paths with the working directory. A bare file
// name must never reach dlopen, otherwise the system search path is used.
func absolutePath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	joined := filepath.Join(cwd, path)
	if !filepath.IsAbs(joined) {
		// filepath.Join drops the leading "./"
		joined = "." + string(filepath.Separator) + joined
	}
	return joined
}
