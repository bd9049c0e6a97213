package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.log")
	logger := NewLogger(&Config{LogFormat: "json", LogLevel: "warn", LogFile: path, LogMaxSizeMB: 1})

	logger.Info("dropped below level")
	logger.Warn("signup refused", "user_id", 7)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"msg":"signup refused"`)
	assert.NotContains(t, string(raw), "dropped below level")
}
