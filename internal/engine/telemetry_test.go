package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupTelemetryDisabledReturnsNoopShutdown(t *testing.T) {
	shutdown, err := setupTelemetry(TelemetryConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupTelemetryEnabledInstallsAndShutsDownProviders(t *testing.T) {
	shutdown, err := setupTelemetry(TelemetryConfig{Enabled: true, TraceStdout: true, MetricStdout: true})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupTelemetryEnabledWithNeitherExporterStillReturnsShutdown(t *testing.T) {
	shutdown, err := setupTelemetry(TelemetryConfig{Enabled: true})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
