package clap

import (
	"fmt"
	"unsafe"
)

// lookupFactory asks the module for the factory with the given ID. A zero
// result means the module does not provide it. Nothing is cached.
func (l *Library) lookupFactory(id string) (uintptr, error) {
	cid, err := cString(id)
	if err != nil {
		return 0, fmt.Errorf("invalid factory id: %w", err)
	}
	entry, err := l.entry()
	if err != nil {
		return 0, err
	}
	return entry.factory(cid), nil
}

// FactoryExists reports whether the library provides a factory with the given
// ID. Absence is not an error.
func (l *Library) FactoryExists(id string) (bool, error) {
	ptr, err := l.lookupFactory(id)
	if err != nil {
		return false, err
	}
	return ptr != 0, nil
}

// pluginFactory is a validated clap_plugin_factory.
type pluginFactory struct {
	ptr   uintptr
	table *pluginFactoryTable
}

// pluginFactory returns the library's plugin factory. Unlike the preset
// discovery factory, a library without one is unusable, so absence is an
// error.
func (l *Library) pluginFactory() (pluginFactory, error) {
	ptr, err := l.lookupFactory(PluginFactoryID)
	if err != nil {
		return pluginFactory{}, err
	}
	if ptr == 0 {
		l.log.WithField("path", l.path.PluginPath).Debugf("Library has no '%s'", PluginFactoryID)
		return pluginFactory{}, fmt.Errorf("%w: the plugin does not support the '%s' factory", ErrFactoryUnsupported, PluginFactoryID)
	}

	table := (*pluginFactoryTable)(unsafe.Pointer(ptr))
	switch {
	case table.GetPluginCount == 0:
		return pluginFactory{}, fmt.Errorf("%w: 'clap_plugin_factory::get_plugin_count' is a null pointer", ErrFactoryUnsupported)
	case table.GetPluginDescriptor == 0:
		return pluginFactory{}, fmt.Errorf("%w: 'clap_plugin_factory::get_plugin_descriptor' is a null pointer", ErrFactoryUnsupported)
	case table.CreatePlugin == 0:
		return pluginFactory{}, fmt.Errorf("%w: 'clap_plugin_factory::create_plugin' is a null pointer", ErrFactoryUnsupported)
	}
	return pluginFactory{ptr: ptr, table: table}, nil
}

func (f pluginFactory) count() uint32 {
	return uint32(call(f.table.GetPluginCount, f.ptr))
}

func (f pluginFactory) descriptor(index uint32) *pluginDescriptor {
	ptr := call(f.table.GetPluginDescriptor, f.ptr, uintptr(index))
	if ptr == 0 {
		return nil
	}
	return (*pluginDescriptor)(unsafe.Pointer(ptr))
}

// create calls create_plugin. host must point to memory that stays valid for
// the plugin's lifetime.
func (f pluginFactory) create(host unsafe.Pointer, id []byte) uintptr {
	return call(f.table.CreatePlugin, f.ptr, uintptr(host), uintptr(unsafe.Pointer(&id[0])))
}

// PresetDiscoveryFactory is a handle on a library's preset discovery factory.
// It keeps the library initialized until Release is called.
type PresetDiscoveryFactory struct {
	id       string
	ptr      uintptr
	lib      *Library
	released bool
}

// PresetDiscoveryFactory returns the library's preset discovery factory, or
// nil if it does not provide one. The CLAP 1.2 ID is tried before the draft
// ID.
func (l *Library) PresetDiscoveryFactory() (*PresetDiscoveryFactory, error) {
	for _, id := range []string{PresetDiscoveryFactoryID, PresetDiscoveryFactoryDraftID} {
		ptr, err := l.lookupFactory(id)
		if err != nil {
			return nil, err
		}
		if ptr != 0 {
			l.acquire()
			return &PresetDiscoveryFactory{id: id, ptr: ptr, lib: l}, nil
		}
	}
	return nil, nil
}

// ID returns the factory ID the library answered to.
func (f *PresetDiscoveryFactory) ID() string {
	return f.id
}

// Pointer returns the raw clap_preset_discovery_factory pointer.
func (f *PresetDiscoveryFactory) Pointer() unsafe.Pointer {
	if f.released {
		return nil
	}
	return unsafe.Pointer(f.ptr)
}

// Release drops the handle's reference on its library.
func (f *PresetDiscoveryFactory) Release() error {
	if f.released {
		return nil
	}
	f.released = true
	return f.lib.release()
}
