package clap

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// LibraryMetadata describes the plugins contained in a library.
type LibraryMetadata struct {
	Version Version          `json:"version" yaml:"version"`
	Plugins []PluginMetadata `json:"plugins" yaml:"plugins"`
}

// PluginMetadata is the content of a plugin descriptor. ID and Name are always
// set. The other string fields are empty when the plugin left them out.
type PluginMetadata struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Version     string   `json:"version,omitempty" yaml:"version,omitempty"`
	Vendor      string   `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	URL         string   `json:"url,omitempty" yaml:"url,omitempty"`
	ManualURL   string   `json:"manual_url,omitempty" yaml:"manual_url,omitempty"`
	SupportURL  string   `json:"support_url,omitempty" yaml:"support_url,omitempty"`
	Features    []string `json:"features" yaml:"features"`
}

// Plugin returns the metadata for the plugin with the given ID.
func (m *LibraryMetadata) Plugin(id string) (PluginMetadata, bool) {
	for _, p := range m.Plugins {
		if p.ID == id {
			return p, true
		}
	}
	return PluginMetadata{}, false
}

// Metadata enumerates the library's plugin factory. The result is built fresh
// on every call.
func (l *Library) Metadata(ctx context.Context) (*LibraryMetadata, error) {
	_, span := l.tracer.Start(ctx, "clap.Metadata")
	defer span.End()

	md, err := l.metadata()
	if l.metrics != nil {
		status := "success"
		if err != nil {
			status = ErrorKind(err)
		}
		l.metrics.MetadataExtractionsTotal.WithLabelValues(status).Inc()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("clap.plugin_count", len(md.Plugins)))
	return md, nil
}

func (l *Library) metadata() (*LibraryMetadata, error) {
	factory, err := l.pluginFactory()
	if err != nil {
		return nil, err
	}

	md := &LibraryMetadata{Version: l.Version()}
	n := factory.count()
	md.Plugins = make([]PluginMetadata, 0, min(n, 64))
	for i := uint32(0); i < n; i++ {
		desc := factory.descriptor(i)
		if desc == nil {
			return nil, fmt.Errorf("%w: the plugin returned a null plugin descriptor for plugin index %d (expected %d total plugins)", ErrMalformedDescriptor, i, n)
		}
		pm, err := metadataFromDescriptor(desc)
		if err != nil {
			return nil, fmt.Errorf("plugin index %d: %w", i, err)
		}
		md.Plugins = append(md.Plugins, pm)
	}

	if err := checkUniqueIDs(md.Plugins); err != nil {
		return nil, err
	}
	return md, nil
}

func checkUniqueIDs(plugins []PluginMetadata) error {
	seen := make(map[string]struct{}, len(plugins))
	for _, p := range plugins {
		if _, ok := seen[p.ID]; ok {
			return fmt.Errorf("%w: the plugin's factory contains multiple entries for the same plugin ID", ErrDuplicatePluginID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

func metadataFromDescriptor(d *pluginDescriptor) (PluginMetadata, error) {
	var (
		pm  PluginMetadata
		err error
	)
	if pm.ID, err = mandatoryString(d.ID, "id"); err != nil {
		return PluginMetadata{}, err
	}
	if pm.Name, err = mandatoryString(d.Name, "name"); err != nil {
		return PluginMetadata{}, err
	}

	optional := []struct {
		field string
		src   *byte
		dst   *string
	}{
		{"version", d.Version, &pm.Version},
		{"vendor", d.Vendor, &pm.Vendor},
		{"description", d.Description, &pm.Description},
		{"url", d.URL, &pm.URL},
		{"manual_url", d.ManualURL, &pm.ManualURL},
		{"support_url", d.SupportURL, &pm.SupportURL},
	}
	for _, f := range optional {
		if *f.dst, err = optionalString(f.src, f.field); err != nil {
			return PluginMetadata{}, err
		}
	}

	if pm.Features, err = stringArray(d.Features, "features"); err != nil {
		return PluginMetadata{}, err
	}
	return pm, nil
}
