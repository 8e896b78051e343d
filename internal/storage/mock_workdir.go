package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// MockWorkDir provides an in-memory work directory for testing.
type MockWorkDir struct {
	mu    sync.RWMutex
	files map[string][]byte
	times map[string]time.Time
	dirs  map[string]bool

	// WriteErr, when set, is returned by every Write call.
	WriteErr error
}

// NewMockWorkDir creates a mock work directory.
func NewMockWorkDir() *MockWorkDir {
	return &MockWorkDir{
		files: make(map[string][]byte),
		times: make(map[string]time.Time),
		dirs:  make(map[string]bool),
	}
}

// Write saves data to a work file.
func (m *MockWorkDir) Write(path string, data []byte, mode os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.WriteErr != nil {
		return m.WriteErr
	}

	m.files[path] = append([]byte(nil), data...)
	m.times[path] = time.Now()
	return nil
}

// WriteConflict saves data under a timestamped sibling of path.
func (m *MockWorkDir) WriteConflict(path string, data []byte) (string, error) {
	conflictPath := generateConflictPath(path)
	if err := m.Write(conflictPath, data, 0644); err != nil {
		return "", err
	}
	return conflictPath, nil
}

// Read retrieves work file contents.
func (m *MockWorkDir) Read(path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if data, ok := m.files[path]; ok {
		return append([]byte(nil), data...), nil
	}

	return nil, fmt.Errorf("file not found: %s", path)
}

// Delete removes a work file.
func (m *MockWorkDir) Delete(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.files, path)
	delete(m.times, path)
	return nil
}

// Exists checks if a work file exists.
func (m *MockWorkDir) Exists(path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.files[path]
	return exists, nil
}

// Stat returns work file information.
func (m *MockWorkDir) Stat(path string) (FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if data, ok := m.files[path]; ok {
		return FileInfo{
			Path:    path,
			Size:    int64(len(data)),
			Mode:    0644,
			ModTime: m.times[path],
		}, nil
	}

	if m.dirs[path] {
		return FileInfo{
			Path:    path,
			Mode:    0755 | os.ModeDir,
			ModTime: time.Now(),
			IsDir:   true,
		}, nil
	}

	return FileInfo{}, fmt.Errorf("file not found: %s", path)
}

// EnsureDir records a directory.
func (m *MockWorkDir) EnsureDir(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dirs[path] = true
	return nil
}

// ListDir returns the files under a directory prefix.
func (m *MockWorkDir) ListDir(path string) ([]FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var files []FileInfo
	for filePath, data := range m.files {
		if path != "" && !strings.HasPrefix(filePath, path+"/") {
			continue
		}
		files = append(files, FileInfo{
			Path:    filePath,
			Size:    int64(len(data)),
			Mode:    0644,
			ModTime: m.times[filePath],
		})
	}

	return files, nil
}

// Resolve returns a stable pseudo-absolute path.
func (m *MockWorkDir) Resolve(path string) (string, error) {
	return filepath.Join("/mock-workdir", filepath.FromSlash(path)), nil
}

// SetModTime updates work file modification time.
func (m *MockWorkDir) SetModTime(path string, modTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[path]; !ok {
		return fmt.Errorf("file not found: %s", path)
	}

	m.times[path] = modTime
	return nil
}

// Helper methods for testing

// FileExists checks if a work file exists (helper for tests).
func (m *MockWorkDir) FileExists(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.files[path]
	return exists
}

// Clear removes all files and directories.
func (m *MockWorkDir) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files = make(map[string][]byte)
	m.times = make(map[string]time.Time)
	m.dirs = make(map[string]bool)
}
