// Package clap loads CLAP plugin libraries and talks to them through the C ABI.
//
// # Overview
//
// A CLAP plugin library is a shared library (a bundle directory on macOS)
// exporting a single clap_entry symbol. The host calls its init function once
// with the plugin path, queries factories by string ID, and calls deinit once
// before unloading. This package wraps that protocol:
//
//	Path resolution  ResolvePath anchors relative paths and resolves macOS bundles
//	Module loading   OpenModule (dlopen via purego, LoadLibraryEx on Windows)
//	Entry point      clap_entry is looked up and validated on every use
//	Lifecycle        Library exists only between a successful init and deinit
//	Factories        FactoryExists, PresetDiscoveryFactory, the plugin factory
//	Metadata         Library.Metadata enumerates the plugin descriptors
//	Instantiation    Library.CreatePlugin creates an uninitialized plugin
//
// # Ownership
//
// Plugins and preset discovery factory handles hold a reference on the
// Library that created them. Library.Close gives up the caller's reference;
// deinit runs and the module is unloaded when the last reference goes away, so
// a plugin can never outlive the code that implements it.
//
// None of the types in this package are safe for concurrent use.
//
// # Usage Example
//
//	lib, err := clap.Load(ctx, "/usr/lib/clap/Surge XT.clap", clap.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	defer lib.Close()
//
//	md, err := lib.Metadata(ctx)
//	if err != nil {
//		return err
//	}
//	for _, p := range md.Plugins {
//		fmt.Println(p.ID, p.Name)
//	}
//
//	host, _ := clap.NewHost(clap.HostInfo{Name: "claphost", Version: "1.0.0"})
//	defer host.Close()
//	plugin, err := lib.CreatePlugin(ctx, md.Plugins[0].ID, host)
//	if err != nil {
//		return err
//	}
//	defer plugin.Destroy()
//
// # Related Packages
//
//   - pkg/discovery: Finding .clap files in the standard search paths
//   - pkg/index: Caching and storing extracted metadata
package clap
