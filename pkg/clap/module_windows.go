//go:build windows

package clap

import (
	"fmt"

	"golang.org/x/sys/windows"
)

type winModule struct {
	handle windows.Handle
}

// OpenModule loads a DLL. The DLL's own directory is searched for its
// dependencies.
func OpenModule(path string) (Module, error) {
	handle, err := windows.LoadLibraryEx(path, 0, windows.LOAD_WITH_ALTERED_SEARCH_PATH)
	if err != nil {
		return nil, err
	}
	return &winModule{handle: handle}, nil
}

func (m *winModule) Lookup(symbol string) (uintptr, error) {
	addr, err := windows.GetProcAddress(m.handle, symbol)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", errSymbolNotFound, symbol, err)
	}
	return addr, nil
}

func (m *winModule) Close() error {
	return windows.FreeLibrary(m.handle)
}
