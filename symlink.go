package buildfs

import (
	"os"

	"github.com/absfs/absfs"
)

var _ absfs.SymLinker = (*absFSAdapter)(nil)

// Virtual entries are never symbolic links. Link operations on them fail
// with os.ErrInvalid, everything else goes to a delegate that supports
// links.

func symLinker(fs absfs.FileSystem) (absfs.SymLinker, bool) {
	if fs == nil {
		return nil, false
	}
	linker, ok := fs.(absfs.SymLinker)
	return linker, ok
}

// Readlink returns the destination of a symlink on the input delegate
func (h *HybridFS) Readlink(path string) (string, error) {
	path = Canonical(path)

	if _, ok := h.entries.get(path); ok {
		return "", &os.PathError{Op: "readlink", Path: path, Err: os.ErrInvalid}
	}

	in, _ := h.delegates()
	if linker, ok := symLinker(in); ok {
		return linker.Readlink(diskPath(path))
	}
	return "", &os.PathError{Op: "readlink", Path: path, Err: os.ErrInvalid}
}

// Lstat is like Stat but does not follow a symlink on the input delegate.
// Delegates without link support fall back to Stat.
func (h *HybridFS) Lstat(path string) (os.FileInfo, error) {
	path = Canonical(path)

	if e, ok := h.entries.get(path); ok {
		return e, nil
	}

	in, _ := h.delegates()
	if linker, ok := symLinker(in); ok {
		return linker.Lstat(diskPath(path))
	}
	return h.diskStat(path)
}

// Lstat implements absfs.SymLinker
func (a *absFSAdapter) Lstat(name string) (os.FileInfo, error) {
	return a.h.Lstat(name)
}

// Readlink implements absfs.SymLinker
func (a *absFSAdapter) Readlink(name string) (string, error) {
	return a.h.Readlink(name)
}

// Symlink implements absfs.SymLinker. Links are created on the output
// delegate only and never shadow a virtual file.
func (a *absFSAdapter) Symlink(oldname, newname string) error {
	path := Canonical(newname)
	if _, ok := a.h.entries.get(path); ok {
		return &os.LinkError{Op: "symlink", Old: oldname, New: path, Err: os.ErrExist}
	}

	_, out := a.h.delegates()
	linker, ok := symLinker(out)
	if !ok {
		return &os.LinkError{Op: "symlink", Old: oldname, New: path, Err: os.ErrInvalid}
	}
	return linker.Symlink(oldname, diskPath(path))
}

// Lchown implements absfs.SymLinker
func (a *absFSAdapter) Lchown(name string, uid, gid int) error {
	return a.passThrough(name, func(out absfs.FileSystem, path string) error {
		linker, ok := symLinker(out)
		if !ok {
			return &os.PathError{Op: "lchown", Path: path, Err: os.ErrInvalid}
		}
		return linker.Lchown(path, uid, gid)
	})
}
