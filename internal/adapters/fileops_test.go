package adapters

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemFileOps(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	fs := NewMemFileOps(func() time.Time { return now })

	require.NoError(t, fs.WriteFile("/sdk/tools/package.xml", []byte("<repository/>")))
	assert.True(t, fs.IsDirectory("/sdk"))
	assert.True(t, fs.IsDirectory("/sdk/tools"))
	assert.False(t, fs.IsDirectory("/sdk/tools/package.xml"))
	assert.True(t, fs.Exists("/sdk/tools/package.xml"))
	assert.Equal(t, now, fs.LastModified("/sdk/tools/package.xml"))
	assert.True(t, fs.LastModified("/missing").IsZero())

	require.NoError(t, fs.MkdirAll("/sdk/emulator"))
	entries, err := fs.ListDir("/sdk")
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"/sdk/emulator", "/sdk/tools"}, entries); diff != "" {
		t.Fatalf("unexpected entries (-want +got):\n%s", diff)
	}

	stream, err := fs.Open("/sdk/tools/package.xml")
	require.NoError(t, err)
	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "<repository/>", string(data))

	later := now.Add(time.Hour)
	fs.Touch("/sdk/tools/package.xml", later)
	assert.Equal(t, later, fs.LastModified("/sdk/tools/package.xml"))

	fs.Remove("/sdk/tools")
	assert.False(t, fs.Exists("/sdk/tools"))
	assert.False(t, fs.Exists("/sdk/tools/package.xml"))

	_, err = fs.ReadFile("/sdk/tools/package.xml")
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))
	_, err = fs.ListDir("/sdk/missing")
	assert.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))
	err = fs.WriteFile("/sdk", nil)
	assert.Equal(t, errbuilder.CodeFailedPrecondition, errbuilder.CodeOf(err))
}

func TestMemFileOpsReadOnly(t *testing.T) {
	fs := NewMemFileOps(nil)
	require.NoError(t, fs.WriteFile("/sdk/a", []byte("a")))
	fs.SetReadOnly(true)

	err := fs.WriteFile("/sdk/b", []byte("b"))
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodePermissionDenied, errbuilder.CodeOf(err))
	assert.Equal(t, errbuilder.CodePermissionDenied, errbuilder.CodeOf(fs.MkdirAll("/sdk/c")))

	data, err := fs.ReadFile("/sdk/a")
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
}

func TestOSFileOps(t *testing.T) {
	root := t.TempDir()
	fs := NewOSFileOps()

	require.NoError(t, fs.MkdirAll(filepath.Join(root, "tools")))
	require.NoError(t, fs.MkdirAll(filepath.Join(root, "emulator")))
	file := filepath.Join(root, "tools", "package.xml")
	require.NoError(t, fs.WriteFile(file, []byte("descriptor")))

	assert.True(t, fs.Exists(file))
	assert.True(t, fs.IsDirectory(filepath.Join(root, "tools")))
	assert.False(t, fs.IsDirectory(file))
	assert.False(t, fs.LastModified(file).IsZero())
	assert.True(t, fs.LastModified(filepath.Join(root, "missing")).IsZero())

	entries, err := fs.ListDir(root)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{filepath.Join(root, "emulator"), filepath.Join(root, "tools")}, entries); diff != "" {
		t.Fatalf("unexpected entries (-want +got):\n%s", diff)
	}

	data, err := fs.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "descriptor", string(data))

	_, err = fs.ReadFile(filepath.Join(root, "missing"))
	assert.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))
	_, err = fs.Open(filepath.Join(root, "missing"))
	assert.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))
	err = fs.WriteFile(filepath.Join(root, "missing", "file"), nil)
	assert.Equal(t, errbuilder.CodeInternal, errbuilder.CodeOf(err))

	_, err = os.Stat(file)
	require.NoError(t, err)
}
