package logging

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Formats(t *testing.T) {
	t.Parallel()

	for _, format := range []string{"", "console", "json"} {
		logger, err := New(Config{Level: "debug", Format: format})
		require.NoError(t, err, "format %q", format)
		logger.Debug("hello")
	}
}

func TestNew_RejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Level: "verbose"})
	assert.Error(t, err)

	_, err = New(Config{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestNew_FileOutput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "webpilot.log")
	logger, err := New(Config{Level: "info", Format: "json", OutputPath: path})
	require.NoError(t, err)
	logger.Info("written to file")
	require.NoError(t, logger.Sync())

	info, err := filepath.Glob(path)
	require.NoError(t, err)
	assert.Len(t, info, 1)
}
