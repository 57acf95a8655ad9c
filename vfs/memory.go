package vfs

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// Memory is a map-backed FS. Parent directories exist implicitly for every
// stored file, matching how seed files are declared for engine runs.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string]struct{}
}

// NewMemory builds an in-memory filesystem from seed files. Keys are
// normalized; parent directories are created implicitly.
func NewMemory(files map[string][]byte) *Memory {
	m := &Memory{
		files: make(map[string][]byte, len(files)),
		dirs:  map[string]struct{}{"/": {}},
	}
	for p, content := range files {
		np := Normalize(p)
		m.files[np] = append([]byte(nil), content...)
		m.addParents(np)
	}
	return m
}

func (m *Memory) addParents(p string) {
	for dir := path.Dir(p); ; dir = path.Dir(dir) {
		m.dirs[dir] = struct{}{}
		if dir == "/" {
			return
		}
	}
}

// Exists reports whether the path names a file or directory.
func (m *Memory) Exists(p string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	np := Normalize(p)
	if _, ok := m.files[np]; ok {
		return true
	}
	_, ok := m.dirs[np]
	return ok
}

// IsFile reports whether the path names a file.
func (m *Memory) IsFile(p string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[Normalize(p)]
	return ok
}

// IsDir reports whether the path names a directory.
func (m *Memory) IsDir(p string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.dirs[Normalize(p)]
	return ok
}

// ReadFile returns a copy of the file content.
func (m *Memory) ReadFile(p string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	np := Normalize(p)
	content, ok := m.files[np]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", np)
	}
	return append([]byte(nil), content...), nil
}

// WriteFile stores content, creating parent directories implicitly.
func (m *Memory) WriteFile(p string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	np := Normalize(p)
	if _, ok := m.dirs[np]; ok {
		return fmt.Errorf("is a directory: %s", np)
	}
	m.files[np] = append([]byte(nil), data...)
	m.addParents(np)
	return nil
}

// Mkdir creates a directory. Without parents, the parent must exist.
func (m *Memory) Mkdir(p string, parents bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	np := Normalize(p)
	if _, ok := m.files[np]; ok {
		return fmt.Errorf("file exists: %s", np)
	}
	if !parents {
		if _, ok := m.dirs[path.Dir(np)]; !ok {
			return fmt.Errorf("no such directory: %s", path.Dir(np))
		}
	}
	m.dirs[np] = struct{}{}
	m.addParents(np)
	return nil
}

// Remove deletes a file or an empty directory.
func (m *Memory) Remove(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	np := Normalize(p)
	if _, ok := m.files[np]; ok {
		delete(m.files, np)
		return nil
	}
	if _, ok := m.dirs[np]; ok {
		for f := range m.files {
			if strings.HasPrefix(f, np+"/") {
				return fmt.Errorf("directory not empty: %s", np)
			}
		}
		delete(m.dirs, np)
		return nil
	}
	return fmt.Errorf("no such file or directory: %s", np)
}

// ReadDir lists immediate children in sorted order.
func (m *Memory) ReadDir(p string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	np := Normalize(p)
	if _, ok := m.dirs[np]; !ok {
		return nil, fmt.Errorf("no such directory: %s", np)
	}
	prefix := np
	if prefix != "/" {
		prefix += "/"
	}
	children := make(map[string]struct{})
	for f := range m.files {
		if strings.HasPrefix(f, prefix) {
			rest := strings.TrimPrefix(f, prefix)
			children[strings.SplitN(rest, "/", 2)[0]] = struct{}{}
		}
	}
	for d := range m.dirs {
		if d != np && strings.HasPrefix(d, prefix) {
			rest := strings.TrimPrefix(d, prefix)
			children[strings.SplitN(rest, "/", 2)[0]] = struct{}{}
		}
	}
	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Stat describes a path.
func (m *Memory) Stat(p string) (FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	np := Normalize(p)
	if content, ok := m.files[np]; ok {
		return FileInfo{Path: np, Size: int64(len(content))}, nil
	}
	if _, ok := m.dirs[np]; ok {
		return FileInfo{Path: np, Dir: true}, nil
	}
	return FileInfo{}, fmt.Errorf("no such file or directory: %s", np)
}

// Rename moves a file.
func (m *Memory) Rename(oldPath, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	from, to := Normalize(oldPath), Normalize(newPath)
	content, ok := m.files[from]
	if !ok {
		return fmt.Errorf("no such file: %s", from)
	}
	delete(m.files, from)
	m.files[to] = content
	m.addParents(to)
	return nil
}
