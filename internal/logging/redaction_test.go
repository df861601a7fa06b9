package logging_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/systmms/secretxfer/internal/logging"
)

// TestSecretRedactionAtInfoLevel verifies secrets are redacted in Info-level logs
func TestSecretRedactionAtInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, false, true)

	secretValue := "super-secret-password-12345"
	logger.Info("Retrieved secret: %s", logging.Secret(secretValue))

	output := buf.String()
	assert.Contains(t, output, "[REDACTED]", "Log should contain redaction marker")
	assert.NotContains(t, output, secretValue, "Log must not contain actual secret value")
	assert.Contains(t, output, "Retrieved secret")
	assert.Contains(t, output, "INFO")
}

// TestSecretRedactionAtDebugLevel verifies secrets are redacted in Debug-level logs
func TestSecretRedactionAtDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, true, true)

	secretValue := "debug-secret-abc"
	logger.Debug("Writing secret %#v", logging.Secret(secretValue))

	output := buf.String()
	assert.Contains(t, output, "[REDACTED]")
	assert.NotContains(t, output, secretValue)
}

func TestDebugSuppressedWithoutDebugFlag(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, false, true)

	logger.Debug("hidden %s", "detail")

	assert.Empty(t, buf.String())
}

func TestNoColorDropsEscapeSequences(t *testing.T) {
	var plain, colored bytes.Buffer
	logging.NewWithWriter(&plain, false, true).Warn("careful")
	logging.NewWithWriter(&colored, false, false).Warn("careful")

	assert.NotContains(t, plain.String(), "\x1b[")
	assert.Contains(t, colored.String(), "\x1b[")
}

func TestNewFromZapObserved(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := logging.NewFromZap(zap.New(core)).Named("transfer")

	logger.With("store", "parent").Error("fetch failed after %d attempts", 3)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "fetch failed after 3 attempts", entries[0].Message)
	assert.Equal(t, "transfer", entries[0].LoggerName)
	assert.Equal(t, "parent", entries[0].ContextMap()["store"])
}

func TestNewNopDiscards(t *testing.T) {
	logger := logging.NewNop()
	assert.NotPanics(t, func() {
		logger.Info("nothing %d", 1)
		_ = logger.Sync()
	})
}
