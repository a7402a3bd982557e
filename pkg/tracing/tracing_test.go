package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracer_DisabledIsNoop(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), Config{ServiceName: "storefront"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, Config{SampleRate: 1}.Sampler().Description(), "AlwaysOnSampler")
	assert.Contains(t, Config{SampleRate: 0}.Sampler().Description(), "AlwaysOffSampler")
	assert.Contains(t, Config{SampleRate: 0.5}.Sampler().Description(), "TraceIDRatioBased")
}

func TestTracer_ReturnsNamedTracer(t *testing.T) {
	_, span := Tracer("storefront").Start(context.Background(), "checkout")
	defer span.End()
	assert.NotNil(t, span)
}
