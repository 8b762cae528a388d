package common

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetupLogger(t *testing.T) {
	log := SetupLogger(&LoggingOpts{Debug: true, Service: "test", Version: Version})
	assert.True(t, log.Enabled(context.Background(), slog.LevelDebug))

	log = SetupLogger(&LoggingOpts{JSON: true})
	assert.False(t, log.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, log.Enabled(context.Background(), slog.LevelInfo))
}
