package clap

import (
	"fmt"
	"unsafe"
)

// Version is a CLAP version triple.
type Version struct {
	Major    uint32 `json:"major" yaml:"major"`
	Minor    uint32 `json:"minor" yaml:"minor"`
	Revision uint32 `json:"revision" yaml:"revision"`
}

// HostVersion is the CLAP version this host implements.
var HostVersion = Version{Major: 1, Minor: 2, Revision: 2}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Revision)
}

// IsCompatible reports whether a plugin built against v can be hosted. CLAP
// guarantees ABI compatibility for every version from 1.0.0 onwards; 0.x
// releases were pre-stable drafts.
func (v Version) IsCompatible() bool {
	return v.Major >= 1
}

func (v Version) toWire() wireVersion {
	return wireVersion{Major: v.Major, Minor: v.Minor, Revision: v.Revision}
}

func versionFromWire(w wireVersion) Version {
	return Version{Major: w.Major, Minor: w.Minor, Revision: w.Revision}
}

// entryPoint is a validated view of a module's clap_plugin_entry. It is never
// stored; callers resolve it from the module each time.
type entryPoint struct {
	table *pluginEntry
}

// resolveEntry looks up clap_entry and checks that all of its functions are
// present.
func resolveEntry(m Module) (entryPoint, error) {
	addr, err := m.Lookup(EntrySymbol)
	if err != nil {
		return entryPoint{}, fmt.Errorf("%w: the library does not expose a '%s' symbol: %w", ErrMissingEntryPoint, EntrySymbol, err)
	}
	if addr == 0 {
		return entryPoint{}, fmt.Errorf("%w: '%s' is a null pointer", ErrMissingEntryPoint, EntrySymbol)
	}

	table := (*pluginEntry)(unsafe.Pointer(addr))
	switch {
	case table.Init == 0:
		return entryPoint{}, fmt.Errorf("%w: 'clap_plugin_entry::init' is a null pointer", ErrMissingEntryPoint)
	case table.Deinit == 0:
		return entryPoint{}, fmt.Errorf("%w: 'clap_plugin_entry::deinit' is a null pointer", ErrMissingEntryPoint)
	case table.GetFactory == 0:
		return entryPoint{}, fmt.Errorf("%w: 'clap_plugin_entry::get_factory' is a null pointer", ErrMissingEntryPoint)
	}
	return entryPoint{table: table}, nil
}

func (e entryPoint) version() Version {
	return versionFromWire(e.table.Version)
}

func (e entryPoint) init(pluginPath []byte) bool {
	return callBool(e.table.Init, uintptr(unsafe.Pointer(&pluginPath[0])))
}

func (e entryPoint) deinit() {
	call(e.table.Deinit)
}

// factory returns the raw factory pointer for id, 0 when the module does not
// provide it.
func (e entryPoint) factory(id []byte) uintptr {
	return call(e.table.GetFactory, uintptr(unsafe.Pointer(&id[0])))
}
