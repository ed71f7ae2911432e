package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNew_FileAndWriter(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "autocatch.log")

	logger, closeFn, err := New(&buf, "info", path)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("caught", "category", "Rare")
	require.NoError(t, closeFn())

	assert.Contains(t, buf.String(), "category=Rare")
	assert.NotContains(t, buf.String(), "hidden")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=caught")
}

func TestNew_NoFile(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(&buf, "debug", "")
	require.NoError(t, err)
	logger.Debug("visible")
	assert.NoError(t, closeFn())
	assert.Contains(t, buf.String(), "visible")
}
