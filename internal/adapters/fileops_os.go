package adapters

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"pkgrepo/internal/ports"
)

// OSFileOps is the FileOps backed by the real file system.
type OSFileOps struct{}

func NewOSFileOps() OSFileOps {
	return OSFileOps{}
}

func (OSFileOps) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OSFileOps) IsDirectory(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (OSFileOps) ListDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to list " + dir).
			WithCause(err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, filepath.Join(abs, entry.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func (OSFileOps) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to read " + path).
			WithCause(err)
	}
	return data, nil
}

func (OSFileOps) WriteFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write " + path).
			WithCause(err)
	}
	return nil
}

func (OSFileOps) Open(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to open " + path).
			WithCause(err)
	}
	return file, nil
}

// LastModified returns the zero time for missing paths.
func (OSFileOps) LastModified(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func (OSFileOps) MkdirAll(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create " + dir).
			WithCause(err)
	}
	return nil
}

var _ ports.FileOps = OSFileOps{}
