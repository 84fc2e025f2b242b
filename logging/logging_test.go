package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContextFallsBackToGlobal(t *testing.T) {
	assert.Equal(t, zap.S(), FromContext(context.Background()))
	assert.Equal(t, zap.S(), FromContext(nil)) //nolint:staticcheck
}

func TestWithRequestIDTagsLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	undo := zap.ReplaceGlobals(zap.New(core))
	defer undo()

	ctx := WithRequestID(context.Background(), "req-1")
	FromContext(ctx).Infow("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "req-1", entries[0].ContextMap()["requestId"])
	}
}
