package observability

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitOTel_Disabled(t *testing.T) {
	logger, _ := test.NewNullLogger()
	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, logger)
	require.NoError(t, err)
	assert.Nil(t, providers)
}

func TestInitOTel_Enabled(t *testing.T) {
	prevTP := otel.GetTracerProvider()
	prevMP := otel.GetMeterProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
		otel.SetTextMapPropagator(prevProp)
	})

	logger, hook := test.NewNullLogger()
	// Exporters dial lazily, so an unused endpoint is fine.
	providers, err := InitOTel(context.Background(), OTelConfig{
		Enabled:  true,
		Endpoint: "127.0.0.1:4317",
		Insecure: true,
	}, logger)
	require.NoError(t, err)
	require.NotNil(t, providers)
	assert.NotNil(t, providers.TracerProvider)
	assert.NotNil(t, providers.MeterProvider)
	assert.NotEmpty(t, hook.Entries)

	_, ok := otel.GetTextMapPropagator().(propagation.TextMapPropagator)
	assert.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Flushing to an absent collector with a cancelled context may fail; the
	// providers must still be shut down without panicking.
	_ = ShutdownOTel(ctx, providers, logger)
}

func TestShutdownOTel_NilProviders(t *testing.T) {
	logger, _ := test.NewNullLogger()
	assert.NoError(t, ShutdownOTel(context.Background(), nil, logger))
}

func TestShutdownOTel_LocalProviders(t *testing.T) {
	logger, _ := test.NewNullLogger()
	providers := &OTelProviders{
		TracerProvider: sdktrace.NewTracerProvider(),
		MeterProvider:  sdkmetric.NewMeterProvider(),
	}
	assert.NoError(t, ShutdownOTel(context.Background(), providers, logger))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(0).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestOTelProviders_ShutdownNil(t *testing.T) {
	var providers *OTelProviders
	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestNewResource_Attributes(t *testing.T) {
	res, err := newResource(context.Background(), OTelConfig{
		ServiceName: "claphost",
		Attributes:  map[string]string{"deployment.environment": "test"},
	})
	require.NoError(t, err)

	found := false
	for _, kv := range res.Attributes() {
		if string(kv.Key) == "deployment.environment" {
			found = true
			assert.Equal(t, "test", kv.Value.AsString())
		}
	}
	assert.True(t, found)
}
