// Package vfs provides the guarded virtual filesystem mounted into sandboxed
// executions. A Guarded filesystem wraps any backing FS with root
// confinement, per-path permissions inherited from the nearest configured
// ancestor, and optional read/write hooks matched by longest path prefix.
package vfs

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrDenied is the sentinel wrapped by every access-control failure.
var ErrDenied = errors.New("permission denied")

type (
	// Permission is the access level granted to a path subtree.
	Permission string

	// FileInfo describes one filesystem entry.
	FileInfo struct {
		// Path is the normalized absolute path.
		Path string
		// Size is the content size in bytes (zero for directories).
		Size int64
		// Dir reports whether the entry is a directory.
		Dir bool
	}

	// FS is the filesystem surface exposed to the sandbox engine. Paths are
	// slash-separated and absolute.
	FS interface {
		Exists(path string) bool
		IsFile(path string) bool
		IsDir(path string) bool
		ReadFile(path string) ([]byte, error)
		WriteFile(path string, data []byte) error
		Mkdir(path string, parents bool) error
		Remove(path string) error
		ReadDir(path string) ([]string, error)
		Stat(path string) (FileInfo, error)
		Rename(oldPath, newPath string) error
	}

	// ReadHook intercepts reads for a path prefix and supplies the content.
	ReadHook func(path string) ([]byte, error)

	// WriteHook intercepts writes for a path prefix.
	WriteHook func(path string, data []byte) error

	// AccessError reports a denied or escaping filesystem operation.
	AccessError struct {
		// Op is the attempted operation ("read", "write", "escape").
		Op string
		// Path is the offending path.
		Path string
	}
)

const (
	// Read grants read-only access.
	Read Permission = "read"
	// Write grants read and write access.
	Write Permission = "write"
	// Deny blocks all access.
	Deny Permission = "deny"
)

// Error implements error.
func (e *AccessError) Error() string {
	switch e.Op {
	case "escape":
		return fmt.Sprintf("path escapes filesystem root: %s", e.Path)
	default:
		return fmt.Sprintf("%s denied for path: %s", e.Op, e.Path)
	}
}

// Unwrap links AccessError to ErrDenied for errors.Is checks.
func (e *AccessError) Unwrap() error { return ErrDenied }

// Normalize cleans a path into absolute slash form. The empty path
// normalizes to "/".
func Normalize(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
