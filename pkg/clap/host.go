package clap

import (
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
)

// HostInfo identifies the host application to plugins.
type HostInfo struct {
	Name    string
	Vendor  string
	URL     string
	Version string
}

// Host is a minimal clap_host. It exposes no extensions and only counts the
// requests plugins make, which is enough to create and destroy plugins for
// inspection.
type Host struct {
	info   HostInfo
	table  *hostTable
	pinner runtime.Pinner
	closed bool

	restarts  atomic.Int64
	processes atomic.Int64
	callbacks atomic.Int64
}

var (
	hostCallbacksOnce sync.Once
	hostCallbacks     struct {
		getExtension    uintptr
		requestRestart  uintptr
		requestProcess  uintptr
		requestCallback uintptr
	}
	// hosts maps clap_host addresses back to their Host.
	hosts sync.Map
)

// purego limits the number of callbacks per process, so the trampolines are
// shared by every Host.
func initHostCallbacks() {
	hostCallbacksOnce.Do(func() {
		hostCallbacks.getExtension = purego.NewCallback(func(host unsafe.Pointer, id *byte) uintptr {
			return 0
		})
		hostCallbacks.requestRestart = purego.NewCallback(func(host unsafe.Pointer) {
			if h := lookupHost(host); h != nil {
				h.restarts.Add(1)
			}
		})
		hostCallbacks.requestProcess = purego.NewCallback(func(host unsafe.Pointer) {
			if h := lookupHost(host); h != nil {
				h.processes.Add(1)
			}
		})
		hostCallbacks.requestCallback = purego.NewCallback(func(host unsafe.Pointer) {
			if h := lookupHost(host); h != nil {
				h.callbacks.Add(1)
			}
		})
	})
}

func lookupHost(p unsafe.Pointer) *Host {
	if v, ok := hosts.Load(uintptr(p)); ok {
		return v.(*Host)
	}
	return nil
}

// NewHost builds a clap_host for info. Strings containing NUL bytes are
// rejected. Close must be called once no plugin uses the host anymore.
func NewHost(info HostInfo) (*Host, error) {
	fields := []string{info.Name, info.Vendor, info.URL, info.Version}
	cstrs := make([][]byte, len(fields))
	for i, f := range fields {
		b, err := cString(f)
		if err != nil {
			return nil, err
		}
		cstrs[i] = b
	}

	initHostCallbacks()
	h := &Host{info: info}
	h.table = &hostTable{
		ClapVersion:     HostVersion.toWire(),
		Name:            &cstrs[0][0],
		Vendor:          &cstrs[1][0],
		URL:             &cstrs[2][0],
		Version:         &cstrs[3][0],
		GetExtension:    hostCallbacks.getExtension,
		RequestRestart:  hostCallbacks.requestRestart,
		RequestProcess:  hostCallbacks.requestProcess,
		RequestCallback: hostCallbacks.requestCallback,
	}
	h.pinner.Pin(h.table)
	for _, b := range cstrs {
		h.pinner.Pin(&b[0])
	}
	hosts.Store(uintptr(unsafe.Pointer(h.table)), h)
	return h, nil
}

// ClapHost implements HostContext.
func (h *Host) ClapHost() unsafe.Pointer {
	if h.closed {
		return nil
	}
	return unsafe.Pointer(h.table)
}

// Info returns the host identification.
func (h *Host) Info() HostInfo {
	return h.info
}

// Requests returns how often plugins called request_restart, request_process
// and request_callback.
func (h *Host) Requests() (restart, process, callback int64) {
	return h.restarts.Load(), h.processes.Load(), h.callbacks.Load()
}

// Close unpins the host's memory.
func (h *Host) Close() {
	if h.closed {
		return
	}
	h.closed = true
	hosts.Delete(uintptr(unsafe.Pointer(h.table)))
	h.pinner.Unpin()
}
