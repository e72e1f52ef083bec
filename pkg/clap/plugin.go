package clap

import (
	"context"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// HostContext provides the clap_host a plugin is created with. The pointed to
// memory must stay valid until the plugin is destroyed.
type HostContext interface {
	ClapHost() unsafe.Pointer
}

// Plugin is a plugin instance created by a library's plugin factory. It is
// returned uninitialized. Destroy must be called to free it; the library stays
// initialized until then.
type Plugin struct {
	id        string
	ptr       uintptr
	host      HostContext
	lib       *Library
	destroyed bool
}

// CreatePlugin instantiates the plugin with the given ID.
//
// CLAP marks create_plugin and clap_plugin::destroy as main-thread calls.
// Callers that keep instances around should call CreatePlugin and Destroy
// from a goroutine locked to the process's main thread (runtime.LockOSThread
// in an init function).
func (l *Library) CreatePlugin(ctx context.Context, id string, host HostContext) (*Plugin, error) {
	_, span := l.tracer.Start(ctx, "clap.CreatePlugin", trace.WithAttributes(attribute.String("clap.plugin_id", id)))
	defer span.End()

	p, err := l.createPlugin(id, host)
	if l.metrics != nil {
		status := "success"
		if err != nil {
			status = ErrorKind(err)
		}
		l.metrics.PluginInstancesTotal.WithLabelValues(status).Inc()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"path":      l.path.PluginPath,
		"plugin_id": id,
	}).Debug("Created plugin instance")
	if l.metrics != nil {
		l.metrics.PluginsLive.Inc()
	}
	return p, nil
}

func (l *Library) createPlugin(id string, host HostContext) (*Plugin, error) {
	cid, err := cString(id)
	if err != nil {
		return nil, fmt.Errorf("invalid plugin id: %w", err)
	}
	if host == nil {
		return nil, fmt.Errorf("%w: no host was provided for plugin %q", ErrInstantiationFailed, id)
	}
	hostPtr := host.ClapHost()
	if hostPtr == nil {
		return nil, fmt.Errorf("%w: the host for plugin %q is a null pointer", ErrInstantiationFailed, id)
	}

	factory, err := l.pluginFactory()
	if err != nil {
		return nil, err
	}

	ptr := factory.create(hostPtr, cid)
	runtime.KeepAlive(host)
	if ptr == 0 {
		return nil, fmt.Errorf("%w: 'clap_plugin_factory::create_plugin' returned a null pointer for plugin ID %q", ErrInstantiationFailed, id)
	}
	if (*pluginTable)(unsafe.Pointer(ptr)).Destroy == 0 {
		l.log.WithField("plugin_id", id).Error("Plugin instance has no destroy function, leaking it")
		return nil, fmt.Errorf("%w: 'clap_plugin::destroy' is a null pointer for plugin ID %q", ErrInstantiationFailed, id)
	}

	l.acquire()
	return &Plugin{id: id, ptr: ptr, host: host, lib: l}, nil
}

// ID returns the ID the plugin was created with.
func (p *Plugin) ID() string {
	return p.id
}

// Pointer returns the raw clap_plugin pointer, or nil after Destroy.
func (p *Plugin) Pointer() unsafe.Pointer {
	if p.destroyed {
		return nil
	}
	return unsafe.Pointer(p.ptr)
}

// Descriptor returns the metadata of the instance's own descriptor.
func (p *Plugin) Descriptor() (PluginMetadata, error) {
	if p.destroyed {
		return PluginMetadata{}, fmt.Errorf("plugin %q has been destroyed", p.id)
	}
	desc := (*pluginTable)(unsafe.Pointer(p.ptr)).Desc
	if desc == nil {
		return PluginMetadata{}, fmt.Errorf("%w: plugin %q has a null descriptor", ErrMalformedDescriptor, p.id)
	}
	return metadataFromDescriptor(desc)
}

// Destroy calls clap_plugin::destroy and releases the plugin's reference on
// its library. It is safe to call more than once. Like CreatePlugin it
// belongs on the main thread.
func (p *Plugin) Destroy() error {
	if p.destroyed {
		return nil
	}
	p.destroyed = true

	table := (*pluginTable)(unsafe.Pointer(p.ptr))
	call(table.Destroy, p.ptr)
	runtime.KeepAlive(p.host)

	p.lib.log.WithField("plugin_id", p.id).Debug("Destroyed plugin instance")
	if p.lib.metrics != nil {
		p.lib.metrics.PluginsLive.Dec()
	}
	return p.lib.release()
}
