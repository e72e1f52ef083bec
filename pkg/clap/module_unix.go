//go:build (darwin || freebsd || linux || netbsd) && !android

package clap

import (
	"fmt"

	"github.com/ebitengine/purego"
)

type dlModule struct {
	handle uintptr
}

// OpenModule opens a shared library with dlopen(RTLD_NOW | RTLD_LOCAL). Symbols
// are resolved eagerly so missing dependencies fail here rather than inside a
// plugin call.
func OpenModule(path string) (Module, error) {
	return OpenModuleFlags(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
}

// OpenModuleFlags is OpenModule with explicit dlopen flags.
func OpenModuleFlags(path string, flags int) (Module, error) {
	handle, err := purego.Dlopen(path, flags)
	if err != nil {
		return nil, err
	}
	return &dlModule{handle: handle}, nil
}

func (m *dlModule) Lookup(symbol string) (uintptr, error) {
	addr, err := purego.Dlsym(m.handle, symbol)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", errSymbolNotFound, symbol, err)
	}
	return addr, nil
}

func (m *dlModule) Close() error {
	return purego.Dlclose(m.handle)
}
