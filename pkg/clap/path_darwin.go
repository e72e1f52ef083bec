//go:build darwin

package clap

import (
	"fmt"
	"os"
	"path/filepath"

	"howett.net/plist"
)

type bundleInfo struct {
	Executable string `plist:"CFBundleExecutable"`
}

// bundleExecutable reads Contents/Info.plist of the bundle at root and returns
// the path of the executable it names.
func bundleExecutable(root string) (string, error) {
	data, err := os.ReadFile(filepath.Join(root, "Contents", "Info.plist"))
	if err != nil {
		return "", fmt.Errorf("%w: could not open %q as a bundle: %w", ErrPath, root, err)
	}

	var info bundleInfo
	if _, err := plist.Unmarshal(data, &info); err != nil {
		return "", fmt.Errorf("%w: could not parse the Info.plist of %q: %w", ErrPath, root, err)
	}
	if info.Executable == "" {
		return "", fmt.Errorf("%w: the bundle %q has no CFBundleExecutable", ErrPath, root)
	}
	if filepath.Base(info.Executable) != info.Executable {
		return "", fmt.Errorf("%w: the bundle %q names an invalid executable %q", ErrPath, root, info.Executable)
	}

	return filepath.Join(root, "Contents", "MacOS", info.Executable), nil
}
