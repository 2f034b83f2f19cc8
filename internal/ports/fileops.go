package ports

import (
	"io"
	"time"
)

// FileOps abstracts the file system so loaders can run against an
// in-memory tree in tests.
type FileOps interface {
	Exists(path string) bool
	IsDirectory(path string) bool
	// ListDir returns the absolute paths of the entries in dir, sorted.
	ListDir(dir string) ([]string, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	Open(path string) (io.ReadCloser, error)
	LastModified(path string) time.Time
	MkdirAll(dir string) error
}
