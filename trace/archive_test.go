package trace

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vantus-ai/webpilot/types"
)

// writeArchive writes a zip with the given members and returns its path.
func writeArchive(t *testing.T, path string, members map[string]string) string {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestOpenArchive_NotFound(t *testing.T) {
	t.Parallel()

	_, err := OpenArchive(filepath.Join(t.TempDir(), "missing.zip"))
	require.Error(t, err)
	require.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestOpenArchive_InvalidContainer(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bogus.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip at all"), 0o644))

	_, err := OpenArchive(path)
	require.Error(t, err)
	require.Equal(t, types.ErrInvalidFormat, types.GetErrorCode(err))
}

func TestOpenArchive_ReadsMembers(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, filepath.Join(t.TempDir(), "trace.zip"), map[string]string{
		"trace.trace": "hello\n",
		"other.txt":   "x",
	})

	a, err := OpenArchive(path)
	require.NoError(t, err)
	defer a.Close()

	require.ElementsMatch(t, []string{"trace.trace", "other.txt"}, a.Names())

	data, err := a.ReadMember("trace.trace")
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(data))

	_, err = a.ReadMember("absent")
	require.Equal(t, types.ErrInvalidFormat, types.GetErrorCode(err))
}

func TestResolveTracePath_NestedRecordingDirs(t *testing.T) {
	t.Parallel()

	// X/trace.zip is itself a directory of per-run archives; the reader
	// must land on the first *.zip inside without being told its name.
	root := t.TempDir()
	nested := filepath.Join(root, "trace.zip")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	inner := writeArchive(t, filepath.Join(nested, "run1.zip"), map[string]string{
		"trace.trace": `{"type":"console","text":"hi"}` + "\n",
	})

	resolved, err := ResolveTracePath(root)
	require.NoError(t, err)
	require.Equal(t, inner, resolved)

	a, err := OpenArchive(root)
	require.NoError(t, err)
	defer a.Close()
	data, err := a.ReadMember("trace.trace")
	require.NoError(t, err)
	require.Contains(t, string(data), "console")
}

func TestResolveTracePath_DirectoryWithPlainTraceZip(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := writeArchive(t, filepath.Join(root, "trace.zip"), map[string]string{"trace.trace": ""})

	resolved, err := ResolveTracePath(root)
	require.NoError(t, err)
	require.Equal(t, path, resolved)
}

func TestResolveTracePath_EmptyNestedDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "trace.zip"), 0o755))

	_, err := ResolveTracePath(root)
	require.Equal(t, types.ErrInvalidFormat, types.GetErrorCode(err))
}

func TestResolveTracePath_DirWithoutTraceZip(t *testing.T) {
	t.Parallel()

	_, err := ResolveTracePath(t.TempDir())
	require.Equal(t, types.ErrInvalidFormat, types.GetErrorCode(err))
}
