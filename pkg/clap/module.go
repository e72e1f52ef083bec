package clap

import "errors"

// Module is a loaded shared library.
type Module interface {
	// Lookup returns the address of an exported symbol. A symbol that exists
	// but whose value is null may be reported as (0, nil).
	Lookup(symbol string) (uintptr, error)
	// Close unloads the library. It is called exactly once.
	Close() error
}

// Opener opens the shared library at an absolute path.
type Opener func(path string) (Module, error)

// errSymbolNotFound is returned by Module implementations when a symbol is not
// exported at all.
var errSymbolNotFound = errors.New("symbol not found")
