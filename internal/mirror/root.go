// Package mirror resolves virtual ScriptFS paths to real paths inside the
// mirrored directory, the Go realization of the "mirror_fd atfile" design
// the original scriptfs used raw *at() syscalls for.
package mirror

import (
	"fmt"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// Root is a mirror directory that every ScriptFS path is resolved against.
// Resolution always stays inside Path, even in the presence of symlinks or
// ".." components in the requested virtual path.
type Root struct {
	path string
}

// NewRoot makes dir absolute and checks that it is a directory. Nothing is
// opened; a symlink to a directory is rejected.
func NewRoot(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed resolving mirror root: %w", err)
	}

	info, err := os.Lstat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed opening mirror root: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", errNotDirectory, abs)
	}

	return &Root{path: abs}, nil
}

// Path returns the absolute path of the mirror root on the host filesystem.
func (r *Root) Path() string {
	return r.path
}

// Resolve returns the absolute host path corresponding to relPath, a path
// relative to the mirror root using ScriptFS's own relative-path convention
// (virtual "/" becomes ".").
func (r *Root) Resolve(relPath string) (string, error) {
	abs, err := securejoin.SecureJoin(r.path, relPath)
	if err != nil {
		return "", fmt.Errorf("failed resolving %q under mirror root: %w", relPath, err)
	}

	return abs, nil
}

// Open opens the file at relPath for reading.
func (r *Root) Open(relPath string) (*os.File, error) {
	abs, err := r.Resolve(relPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("failed opening %q: %w", relPath, err)
	}

	return f, nil
}

// Relative converts an absolute virtual path (as handed to FUSE callbacks)
// into the mirror-relative path convention used throughout this package:
// "/" becomes ".", and every other path loses its leading slash.
func Relative(virtualPath string) string {
	if virtualPath == "" || virtualPath == "/" {
		return "."
	}

	if virtualPath[0] == '/' {
		return virtualPath[1:]
	}

	return virtualPath
}
