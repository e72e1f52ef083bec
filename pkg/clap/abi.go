package clap

import "unsafe"

// Factory identifiers passed to clap_plugin_entry.get_factory.
const (
	PluginFactoryID = "clap.plugin-factory"

	PresetDiscoveryFactoryID = "clap.preset-discovery-factory/2"
	// PresetDiscoveryFactoryDraftID is the identifier used before CLAP 1.2.
	PresetDiscoveryFactoryDraftID = "clap.preset-discovery-factory/draft-2"
)

// EntrySymbol is the only symbol a CLAP module is required to export.
const EntrySymbol = "clap_entry"

// The structs below mirror the C layouts from the CLAP headers. Function
// pointers are kept as uintptr and invoked through call().

type wireVersion struct {
	Major    uint32
	Minor    uint32
	Revision uint32
}

// clap_plugin_entry
type pluginEntry struct {
	Version    wireVersion
	Init       uintptr // bool (*)(const char *plugin_path)
	Deinit     uintptr // void (*)(void)
	GetFactory uintptr // const void *(*)(const char *factory_id)
}

// clap_plugin_factory
type pluginFactoryTable struct {
	GetPluginCount      uintptr // uint32_t (*)(const clap_plugin_factory *)
	GetPluginDescriptor uintptr // const clap_plugin_descriptor *(*)(const clap_plugin_factory *, uint32_t)
	CreatePlugin        uintptr // const clap_plugin *(*)(const clap_plugin_factory *, const clap_host *, const char *)
}

// clap_plugin_descriptor
type pluginDescriptor struct {
	ClapVersion wireVersion
	ID          *byte
	Name        *byte
	Vendor      *byte
	URL         *byte
	ManualURL   *byte
	SupportURL  *byte
	Version     *byte
	Description *byte
	Features    **byte
}

// clap_plugin
type pluginTable struct {
	Desc            *pluginDescriptor
	PluginData      unsafe.Pointer
	Init            uintptr
	Destroy         uintptr
	Activate        uintptr
	Deactivate      uintptr
	StartProcessing uintptr
	StopProcessing  uintptr
	Reset           uintptr
	Process         uintptr
	GetExtension    uintptr
	OnMainThread    uintptr
}

// clap_host
type hostTable struct {
	ClapVersion     wireVersion
	HostData        unsafe.Pointer
	Name            *byte
	Vendor          *byte
	URL             *byte
	Version         *byte
	GetExtension    uintptr // const void *(*)(const clap_host *, const char *)
	RequestRestart  uintptr // void (*)(const clap_host *)
	RequestProcess  uintptr // void (*)(const clap_host *)
	RequestCallback uintptr // void (*)(const clap_host *)
}
