package env

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestLoad(t *testing.T) {
	t.Setenv("ENV_PATH", "")

	t.Run("sets variables from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("LAKEFS_ACCESS_KEY=from-env-file\n"), 0o644))
		t.Setenv("LAKEFS_ACCESS_KEY", "")
		os.Unsetenv("LAKEFS_ACCESS_KEY")

		Load(path)
		assert.Equal(t, "from-env-file", os.Getenv("LAKEFS_ACCESS_KEY"))
	})

	t.Run("missing file is silent", func(t *testing.T) {
		buf := captureLogs(t)
		Load(filepath.Join(t.TempDir(), ".env"))
		assert.Empty(t, buf.String())
	})

	t.Run("malformed file warns through the installed handler", func(t *testing.T) {
		buf := captureLogs(t)
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("not a key value line\n"), 0o644))

		Load(path)
		assert.Contains(t, buf.String(), "could not load env file")
	})
}
