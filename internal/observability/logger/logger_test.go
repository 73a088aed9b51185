package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	obscontext "github.com/smallbiznis/loyara/internal/observability/context"
	"github.com/smallbiznis/loyara/pkg/telemetry/correlation"
)

func TestWithContext_EnrichesProvidedLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-123")
	ctx = correlation.ContextWithCorrelationID(ctx, "corr-456")

	WithContext(ctx, base).Info("points earned")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-123", fields["request_id"])
	assert.Equal(t, "corr-456", fields["correlation_id"])
}

func TestWithContext_NilContextReturnsBase(t *testing.T) {
	var ctx context.Context
	base := zap.NewNop()
	assert.Same(t, base, WithContext(ctx, base))
}
