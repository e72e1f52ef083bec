//go:build darwin || (linux && (amd64 || arm64))

package clap

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// fakeLibrary stands in for a native CLAP module. Its entry point and factory
// tables live in Go memory and point at purego callbacks, which dispatch to
// whichever fakeLibrary is active.
type fakeLibrary struct {
	entry       pluginEntry
	factory     pluginFactoryTable
	preset      [8]uintptr
	descriptors []*pluginDescriptor

	initResult      bool
	noPluginFactory bool
	presetID        string
	missingSymbol   bool
	nullSymbol      bool
	nullDeinit      bool
	openErr         error

	openedPath         string
	initPath           string
	initCalls          int
	deinitCalls        int
	moduleCloses       int
	factoryIDs         []string
	createdHosts       []uintptr
	instances          []*pluginTable
	destroyCalls       int
	deinitAfterDestroy bool
}

var (
	active *fakeLibrary

	fakeCallbacksOnce sync.Once
	fakeCallbacks     struct {
		init, deinit, getFactory                          uintptr
		getPluginCount, getPluginDescriptor, createPlugin uintptr
		destroy                                           uintptr
	}
)

func initFakeCallbacks() {
	fakeCallbacksOnce.Do(func() {
		fakeCallbacks.init = purego.NewCallback(func(path *byte) bool {
			active.initCalls++
			active.initPath, _, _ = readCString(path)
			return active.initResult
		})
		fakeCallbacks.deinit = purego.NewCallback(func() {
			active.deinitCalls++
			active.deinitAfterDestroy = active.destroyCalls == len(active.instances)
		})
		fakeCallbacks.getFactory = purego.NewCallback(func(id *byte) uintptr {
			s, _, _ := readCString(id)
			active.factoryIDs = append(active.factoryIDs, s)
			switch {
			case s == PluginFactoryID && !active.noPluginFactory:
				return uintptr(unsafe.Pointer(&active.factory))
			case s != "" && s == active.presetID:
				return uintptr(unsafe.Pointer(&active.preset))
			}
			return 0
		})
		fakeCallbacks.getPluginCount = purego.NewCallback(func(factory unsafe.Pointer) uint32 {
			return uint32(len(active.descriptors))
		})
		fakeCallbacks.getPluginDescriptor = purego.NewCallback(func(factory unsafe.Pointer, index uint32) uintptr {
			if int(index) >= len(active.descriptors) {
				return 0
			}
			return uintptr(unsafe.Pointer(active.descriptors[index]))
		})
		fakeCallbacks.createPlugin = purego.NewCallback(func(factory unsafe.Pointer, host unsafe.Pointer, id *byte) uintptr {
			s, _, _ := readCString(id)
			for _, d := range active.descriptors {
				if d == nil {
					continue
				}
				if did, _, _ := readCString(d.ID); did == s {
					p := &pluginTable{Desc: d, Destroy: fakeCallbacks.destroy}
					active.instances = append(active.instances, p)
					active.createdHosts = append(active.createdHosts, uintptr(host))
					return uintptr(unsafe.Pointer(p))
				}
			}
			return 0
		})
		fakeCallbacks.destroy = purego.NewCallback(func(plugin unsafe.Pointer) {
			active.destroyCalls++
		})
	})
}

// newFakeLibrary installs a fake module exposing the given descriptors.
func newFakeLibrary(descriptors ...*pluginDescriptor) *fakeLibrary {
	initFakeCallbacks()
	f := &fakeLibrary{
		descriptors: descriptors,
		initResult:  true,
	}
	f.entry = pluginEntry{
		Version:    HostVersion.toWire(),
		Init:       fakeCallbacks.init,
		Deinit:     fakeCallbacks.deinit,
		GetFactory: fakeCallbacks.getFactory,
	}
	f.factory = pluginFactoryTable{
		GetPluginCount:      fakeCallbacks.getPluginCount,
		GetPluginDescriptor: fakeCallbacks.getPluginDescriptor,
		CreatePlugin:        fakeCallbacks.createPlugin,
	}
	active = f
	return f
}

func (f *fakeLibrary) open(path string) (Module, error) {
	f.openedPath = path
	if f.openErr != nil {
		return nil, f.openErr
	}
	if f.nullDeinit {
		f.entry.Deinit = 0
	}
	return &fakeModule{lib: f}, nil
}

type fakeModule struct {
	lib *fakeLibrary
}

func (m *fakeModule) Lookup(symbol string) (uintptr, error) {
	if symbol != EntrySymbol || m.lib.missingSymbol {
		return 0, errors.New("undefined symbol: " + symbol)
	}
	if m.lib.nullSymbol {
		return 0, nil
	}
	return uintptr(unsafe.Pointer(&m.lib.entry)), nil
}

func (m *fakeModule) Close() error {
	m.lib.moduleCloses++
	return nil
}
