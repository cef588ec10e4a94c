// Package workdir provides the directory context threaded through a growth run.
//
// A Dir is an immutable value naming one directory of the result tree. Descending into a
// subdirectory returns a new Dir and never changes process state, so the caller's context
// is unchanged on every exit path, early returns included.
package workdir

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// StopFileName is the sentinel whose presence requests a cooperative stop.
// It is matched case-insensitively.
const StopFileName = "stop"

// Dir is a directory in the run's result tree.
type Dir struct {
	path string
}

// Open returns a Dir for path, creating it if absent.
func Open(path string) (Dir, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Dir{}, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return Dir{}, fmt.Errorf("failed to create directory %s: %w", abs, err)
	}
	return Dir{path: abs}, nil
}

// Path returns the absolute directory path.
func (d Dir) Path() string {
	return d.path
}

// String implements fmt.Stringer.
func (d Dir) String() string {
	return d.path
}

// Join returns the path of name inside d.
func (d Dir) Join(name ...string) string {
	return filepath.Join(append([]string{d.path}, name...)...)
}

// Sub returns the child directory name, creating it if absent. Repeated calls are safe.
func (d Dir) Sub(name string) (Dir, error) {
	p := filepath.Join(d.path, name)
	if err := os.MkdirAll(p, 0755); err != nil {
		return Dir{}, fmt.Errorf("failed to create directory %s: %w", p, err)
	}
	return Dir{path: p}, nil
}

// CopyFile copies src into d under name. An existing file is replaced.
func (d Dir) CopyFile(src, name string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	dst := filepath.Join(d.path, name)
	tmp, err := os.CreateTemp(d.path, "."+name+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", d.path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to move copy into %s: %w", dst, err)
	}
	return nil
}

// StopRequested reports whether a stop sentinel exists directly in d.
// It only inspects the directory; the sentinel is never created or removed here.
func (d Dir) StopRequested() bool {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if strings.EqualFold(e.Name(), StopFileName) {
			return true
		}
	}
	return false
}
