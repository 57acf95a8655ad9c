package vfs

import (
	"path"
	"sort"
	"strings"
)

type (
	// Guarded wraps a backing FS with root confinement, per-path permissions
	// and read/write hooks. The zero default is deny: paths with no
	// configured ancestor permission are inaccessible.
	Guarded struct {
		backing     FS
		root        string
		defaultPerm Permission
		perms       map[string]Permission
		readHooks   map[string]ReadHook
		writeHooks  map[string]WriteHook
	}

	// GuardOption configures a Guarded filesystem.
	GuardOption func(*Guarded)
)

// WithRoot confines all access under the given directory.
func WithRoot(root string) GuardOption {
	return func(g *Guarded) { g.root = Normalize(root) }
}

// WithDefaultPermission sets the permission applied when no configured
// ancestor matches.
func WithDefaultPermission(p Permission) GuardOption {
	return func(g *Guarded) { g.defaultPerm = p }
}

// WithPermissions sets per-path permissions. A path's effective permission is
// the one configured on its nearest ancestor (or itself).
func WithPermissions(perms map[string]Permission) GuardOption {
	return func(g *Guarded) {
		for p, perm := range perms {
			g.perms[Normalize(p)] = perm
		}
	}
}

// WithReadHook intercepts reads under the given path prefix.
func WithReadHook(prefix string, hook ReadHook) GuardOption {
	return func(g *Guarded) { g.readHooks[Normalize(prefix)] = hook }
}

// WithWriteHook intercepts writes under the given path prefix.
func WithWriteHook(prefix string, hook WriteHook) GuardOption {
	return func(g *Guarded) { g.writeHooks[Normalize(prefix)] = hook }
}

// NewGuarded wraps a backing filesystem. With no options the guard denies
// everything, which forces callers to grant access explicitly.
func NewGuarded(backing FS, opts ...GuardOption) *Guarded {
	g := &Guarded{
		backing:     backing,
		root:        "/",
		defaultPerm: Deny,
		perms:       make(map[string]Permission),
		readHooks:   make(map[string]ReadHook),
		writeHooks:  make(map[string]WriteHook),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// normalize cleans the path and rejects anything escaping the root.
func (g *Guarded) normalize(p string) (string, error) {
	np := Normalize(p)
	if np != g.root && !strings.HasPrefix(np, strings.TrimSuffix(g.root, "/")+"/") {
		return "", &AccessError{Op: "escape", Path: np}
	}
	return np, nil
}

// permissionFor walks from the path up to the root, returning the first
// configured permission found.
func (g *Guarded) permissionFor(p string) Permission {
	for current := p; ; current = path.Dir(current) {
		if perm, ok := g.perms[current]; ok {
			return perm
		}
		if current == "/" || current == path.Dir(current) {
			return g.defaultPerm
		}
	}
}

func (g *Guarded) checkRead(p string) error {
	if perm := g.permissionFor(p); perm != Read && perm != Write {
		return &AccessError{Op: "read", Path: p}
	}
	return nil
}

func (g *Guarded) checkWrite(p string) error {
	if g.permissionFor(p) != Write {
		return &AccessError{Op: "write", Path: p}
	}
	return nil
}

// readHookFor returns the hook configured on the longest matching prefix.
func (g *Guarded) readHookFor(p string) ReadHook {
	if prefix, ok := longestPrefix(p, keys(g.readHooks)); ok {
		return g.readHooks[prefix]
	}
	return nil
}

func (g *Guarded) writeHookFor(p string) WriteHook {
	if prefix, ok := longestPrefix(p, keys(g.writeHooks)); ok {
		return g.writeHooks[prefix]
	}
	return nil
}

func longestPrefix(p string, prefixes []string) (string, bool) {
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	for _, prefix := range prefixes {
		if p == prefix || strings.HasPrefix(p, strings.TrimSuffix(prefix, "/")+"/") {
			return prefix, true
		}
	}
	return "", false
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// Exists reports existence without requiring read permission, matching the
// backing filesystem's visibility semantics.
func (g *Guarded) Exists(p string) bool {
	np, err := g.normalize(p)
	if err != nil {
		return false
	}
	return g.backing.Exists(np)
}

// IsFile reports whether the path names a file.
func (g *Guarded) IsFile(p string) bool {
	np, err := g.normalize(p)
	if err != nil {
		return false
	}
	return g.backing.IsFile(np)
}

// IsDir reports whether the path names a directory.
func (g *Guarded) IsDir(p string) bool {
	np, err := g.normalize(p)
	if err != nil {
		return false
	}
	return g.backing.IsDir(np)
}

// ReadFile checks read permission, consults read hooks, then falls back to
// the backing filesystem.
func (g *Guarded) ReadFile(p string) ([]byte, error) {
	np, err := g.normalize(p)
	if err != nil {
		return nil, err
	}
	if err := g.checkRead(np); err != nil {
		return nil, err
	}
	if hook := g.readHookFor(np); hook != nil {
		return hook(np)
	}
	return g.backing.ReadFile(np)
}

// WriteFile checks write permission, consults write hooks, then falls back
// to the backing filesystem.
func (g *Guarded) WriteFile(p string, data []byte) error {
	np, err := g.normalize(p)
	if err != nil {
		return err
	}
	if err := g.checkWrite(np); err != nil {
		return err
	}
	if hook := g.writeHookFor(np); hook != nil {
		return hook(np, data)
	}
	return g.backing.WriteFile(np, data)
}

// Mkdir requires write permission on the new directory.
func (g *Guarded) Mkdir(p string, parents bool) error {
	np, err := g.normalize(p)
	if err != nil {
		return err
	}
	if err := g.checkWrite(np); err != nil {
		return err
	}
	return g.backing.Mkdir(np, parents)
}

// Remove requires write permission.
func (g *Guarded) Remove(p string) error {
	np, err := g.normalize(p)
	if err != nil {
		return err
	}
	if err := g.checkWrite(np); err != nil {
		return err
	}
	return g.backing.Remove(np)
}

// ReadDir requires read permission.
func (g *Guarded) ReadDir(p string) ([]string, error) {
	np, err := g.normalize(p)
	if err != nil {
		return nil, err
	}
	if err := g.checkRead(np); err != nil {
		return nil, err
	}
	return g.backing.ReadDir(np)
}

// Stat requires read permission.
func (g *Guarded) Stat(p string) (FileInfo, error) {
	np, err := g.normalize(p)
	if err != nil {
		return FileInfo{}, err
	}
	if err := g.checkRead(np); err != nil {
		return FileInfo{}, err
	}
	return g.backing.Stat(np)
}

// Rename requires write permission on both endpoints.
func (g *Guarded) Rename(oldPath, newPath string) error {
	from, err := g.normalize(oldPath)
	if err != nil {
		return err
	}
	to, err := g.normalize(newPath)
	if err != nil {
		return err
	}
	if err := g.checkWrite(from); err != nil {
		return err
	}
	if err := g.checkWrite(to); err != nil {
		return err
	}
	return g.backing.Rename(from, to)
}
