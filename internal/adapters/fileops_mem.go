package adapters

import (
	"bytes"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"pkgrepo/internal/ports"
)

type memEntry struct {
	dir      bool
	data     []byte
	modified time.Time
}

// MemFileOps is an in-memory FileOps. Paths are cleaned and parents are
// created implicitly on write.
type MemFileOps struct {
	mu       sync.Mutex
	now      func() time.Time
	entries  map[string]*memEntry
	readOnly bool
}

func NewMemFileOps(now func() time.Time) *MemFileOps {
	if now == nil {
		now = time.Now
	}
	return &MemFileOps{
		now:     now,
		entries: map[string]*memEntry{"/": {dir: true}},
	}
}

// SetReadOnly makes every subsequent write fail.
func (m *MemFileOps) SetReadOnly(readOnly bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readOnly = readOnly
}

// Touch sets the modification time of an existing entry.
func (m *MemFileOps) Touch(path string, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[filepath.Clean(path)]; ok {
		entry.modified = modified
	}
}

// Remove deletes path and everything below it.
func (m *MemFileOps) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clean := filepath.Clean(path)
	prefix := strings.TrimSuffix(clean, "/") + "/"
	for key := range m.entries {
		if key == clean || strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
}

func (m *MemFileOps) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[filepath.Clean(path)]
	return ok
}

func (m *MemFileOps) IsDirectory(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[filepath.Clean(path)]
	return ok && entry.dir
}

func (m *MemFileOps) ListDir(dir string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clean := filepath.Clean(dir)
	entry, ok := m.entries[clean]
	if !ok || !entry.dir {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("not a directory: " + dir)
	}
	var out []string
	for key := range m.entries {
		if key != clean && filepath.Dir(key) == clean {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemFileOps) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[filepath.Clean(path)]
	if !ok || entry.dir {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("no such file: " + path)
	}
	return bytes.Clone(entry.data), nil
}

func (m *MemFileOps) WriteFile(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readOnly {
		return errbuilder.New().
			WithCode(errbuilder.CodePermissionDenied).
			WithMsg("read-only file system: " + path)
	}
	clean := filepath.Clean(path)
	if entry, ok := m.entries[clean]; ok && entry.dir {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("is a directory: " + path)
	}
	m.mkdirLocked(filepath.Dir(clean))
	m.entries[clean] = &memEntry{data: bytes.Clone(data), modified: m.now()}
	return nil
}

func (m *MemFileOps) Open(path string) (io.ReadCloser, error) {
	data, err := m.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemFileOps) LastModified(path string) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[filepath.Clean(path)]; ok {
		return entry.modified
	}
	return time.Time{}
}

func (m *MemFileOps) MkdirAll(dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readOnly {
		return errbuilder.New().
			WithCode(errbuilder.CodePermissionDenied).
			WithMsg("read-only file system: " + dir)
	}
	m.mkdirLocked(filepath.Clean(dir))
	return nil
}

func (m *MemFileOps) mkdirLocked(dir string) {
	for current := dir; ; current = filepath.Dir(current) {
		if _, ok := m.entries[current]; !ok {
			m.entries[current] = &memEntry{dir: true, modified: m.now()}
		}
		if current == filepath.Dir(current) {
			return
		}
	}
}

var _ ports.FileOps = (*MemFileOps)(nil)
