//go:build !windows && !(darwin || freebsd || linux || netbsd) || android

package clap

import (
	"fmt"
	"runtime"
)

// OpenModule is not available on this platform.
func OpenModule(path string) (Module, error) {
	return nil, fmt.Errorf("dynamic loading is not supported on %s/%s", runtime.GOOS, runtime.GOARCH)
}
