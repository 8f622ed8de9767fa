package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigReadsEnvironment(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("OTEL_RESOURCE_ENVIRONMENT", "")
	t.Setenv("NDAX_ENV", "staging")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_METRICS_ENABLED", "")

	cfg := DefaultConfig()
	require.True(t, cfg.Enabled)
	require.True(t, cfg.EnableMetrics)
	require.Equal(t, "collector:4318", cfg.OTLPEndpoint)
	require.Equal(t, serviceName, cfg.ServiceName)
	require.Equal(t, "staging", cfg.Environment)
}

func TestDisabledProviderFallsBackToGlobalMeter(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false, Environment: "Prod"})
	require.NoError(t, err)
	require.False(t, provider.Enabled())
	require.NotNil(t, provider.Meter("test"))
	require.NoError(t, provider.Shutdown(context.Background()))
	require.Equal(t, "prod", Environment())
}

func TestStripScheme(t *testing.T) {
	require.Equal(t, "localhost:4318", stripScheme("http://localhost:4318"))
	require.Equal(t, "collector:4318", stripScheme("https://collector:4318"))
	require.Equal(t, "collector:4318", stripScheme("collector:4318"))
}

func TestAttributeHelpersOmitEmptyName(t *testing.T) {
	require.Len(t, FrameAttributes("dev", "NDAX", ""), 2)
	require.Len(t, FrameAttributes("dev", "NDAX", "Level2UpdateEvent"), 3)

	attrs := BookAttributes("dev", "NDAX", 1, "bid")
	require.Len(t, attrs, 4)
	require.Equal(t, AttrInstrument, attrs[2].Key)
	require.Equal(t, int64(1), attrs[2].Value.AsInt64())
}
