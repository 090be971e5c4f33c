package buildfs

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/absfs/absfs"
)

// absFSAdapter exposes a HybridFS as an absfs.Filer for consumers such as a
// bundler that expect a complete filesystem.
type absFSAdapter struct {
	h *HybridFS
}

// Ensure absFSAdapter implements absfs.Filer interface at compile time
var _ absfs.Filer = (*absFSAdapter)(nil)

// FileSystem returns an absfs.FileSystem view of this HybridFS.
//
// Reads follow the cache-first precedence of the HybridFS. Files opened for
// writing are buffered and committed through Write when closed, so the
// write-to-disk flag applies to them as well.
//
// Example:
//
//	fsys := h.FileSystem()
//	fsys.Chdir("/app/www/build")
//	data, err := fsys.ReadFile("main.js")
func (h *HybridFS) FileSystem() absfs.FileSystem {
	a := &absFSAdapter{h: h}
	return &fileSystem{FileSystem: absfs.ExtendFiler(a), a: a}
}

// fileSystem resolves relative names against the working directory for the
// calls absfs hands to the filer unchanged.
type fileSystem struct {
	absfs.FileSystem
	a *absFSAdapter
}

var _ absfs.SymLinker = (*fileSystem)(nil)

func (f *fileSystem) abs(name string) string {
	name = filepath.ToSlash(name)
	if path.IsAbs(name) {
		return name
	}
	cwd, err := f.Getwd()
	if err != nil {
		return name
	}
	return path.Join(cwd, name)
}

func (f *fileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	return f.a.ReadDir(f.abs(name))
}

func (f *fileSystem) ReadFile(name string) ([]byte, error) {
	return f.a.ReadFile(f.abs(name))
}

func (f *fileSystem) Sub(dir string) (fs.FS, error) {
	return f.a.Sub(f.abs(dir))
}

func (f *fileSystem) Lstat(name string) (os.FileInfo, error) {
	return f.a.Lstat(f.abs(name))
}

func (f *fileSystem) Readlink(name string) (string, error) {
	return f.a.Readlink(f.abs(name))
}

func (f *fileSystem) Symlink(oldname, newname string) error {
	return f.a.Symlink(oldname, f.abs(newname))
}

func (f *fileSystem) Lchown(name string, uid, gid int) error {
	return f.a.Lchown(f.abs(name), uid, gid)
}

func isWriteFlag(flag int) bool {
	return flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0
}

// OpenFile implements absfs.Filer
func (a *absFSAdapter) OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error) {
	path := Canonical(name)

	if a.h.DirectoryExists(path) {
		if isWriteFlag(flag) {
			return nil, &os.PathError{Op: "open", Path: path, Err: ErrIsDirectory}
		}
		d, err := openVirtualDir(a, path)
		if err != nil {
			return nil, err
		}
		return d, nil
	}

	if isWriteFlag(flag) {
		return a.openForWrite(path, flag)
	}

	if content, ok := a.h.GetFileContent(path); ok {
		recordRead(true)
		return newVirtualFile(a.h, path, []byte(content), false), nil
	}

	in, _ := a.h.delegates()
	if in == nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	recordRead(false)
	return in.OpenFile(diskPath(path), flag, perm)
}

func (a *absFSAdapter) openForWrite(path string, flag int) (absfs.File, error) {
	exists := a.h.Exists(path)

	switch {
	case !exists && flag&os.O_CREATE == 0:
		return nil, &os.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	case exists && flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0:
		return nil, &os.PathError{Op: "open", Path: path, Err: fs.ErrExist}
	}

	var data []byte
	if exists && flag&os.O_TRUNC == 0 {
		content, err := a.h.ReadContent(path)
		if err != nil {
			return nil, err
		}
		data = []byte(content)
	}

	f := newVirtualFile(a.h, path, data, true)
	// a created or truncated file must exist after Close even without writes
	f.dirty = !exists || flag&os.O_TRUNC != 0
	if flag&os.O_APPEND != 0 {
		f.off = int64(len(data))
		f.appendOnly = true
	}
	return f, nil
}

// Mkdir implements absfs.Filer. Directories only materialize on the output
// delegate; virtual directories come into being with their files.
func (a *absFSAdapter) Mkdir(name string, perm os.FileMode) error {
	_, out := a.h.delegates()
	if out == nil {
		return ErrNoOutput
	}
	return out.Mkdir(diskPath(Canonical(name)), perm)
}

// Remove implements absfs.Filer. Without write-to-disk only virtual content
// is discarded. When a disk file of the same name shows through afterwards,
// Remove reports fs.ErrPermission.
func (a *absFSAdapter) Remove(name string) error {
	path := Canonical(name)
	_, virtual := a.h.GetFileContent(path)
	a.h.Purge([]string{path})

	if !a.h.WriteToDisk() {
		switch {
		case a.h.Exists(path) || a.h.DirectoryExists(path):
			// disk entries cannot be hidden from the virtual layer
			return &os.PathError{Op: "remove", Path: path, Err: fs.ErrPermission}
		case virtual:
			return nil
		}
		return &os.PathError{Op: "remove", Path: path, Err: fs.ErrNotExist}
	}

	_, out := a.h.delegates()
	if out == nil {
		return ErrNoOutput
	}
	err := out.Remove(diskPath(path))
	if virtual && isNotExist(err) {
		return nil
	}
	return err
}

// Rename implements absfs.Filer. The content moves inside the virtual layer.
func (a *absFSAdapter) Rename(oldpath, newpath string) error {
	oldpath, newpath = Canonical(oldpath), Canonical(newpath)

	content, err := a.h.ReadContent(oldpath)
	if err != nil {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: unwrapPathError(err)}
	}
	if err := a.h.Write(newpath, content); err != nil {
		return err
	}
	a.h.Purge([]string{oldpath})
	return nil
}

func unwrapPathError(err error) error {
	var pe *os.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}

// Stat implements absfs.Filer
func (a *absFSAdapter) Stat(name string) (os.FileInfo, error) {
	return a.h.Stat(name)
}

// metadata changes are meaningless for virtual entries and forwarded to the
// output delegate otherwise
func (a *absFSAdapter) passThrough(name string, fn func(out absfs.FileSystem, path string) error) error {
	path := Canonical(name)
	if _, ok := a.h.entries.get(path); ok {
		return nil
	}
	_, out := a.h.delegates()
	if out == nil {
		return ErrNoOutput
	}
	return fn(out, diskPath(path))
}

// Chmod implements absfs.Filer
func (a *absFSAdapter) Chmod(name string, mode os.FileMode) error {
	return a.passThrough(name, func(out absfs.FileSystem, path string) error {
		return out.Chmod(path, mode)
	})
}

// Chtimes implements absfs.Filer
func (a *absFSAdapter) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return a.passThrough(name, func(out absfs.FileSystem, path string) error {
		return out.Chtimes(path, atime, mtime)
	})
}

// Chown implements absfs.Filer
func (a *absFSAdapter) Chown(name string, uid, gid int) error {
	return a.passThrough(name, func(out absfs.FileSystem, path string) error {
		return out.Chown(path, uid, gid)
	})
}

// ReadDir implements absfs.Filer, merging the input delegate's listing with
// the virtual entries below name. Virtual entries win on name clashes.
func (a *absFSAdapter) ReadDir(name string) ([]fs.DirEntry, error) {
	infos, err := a.readDirInfos(Canonical(name))
	if err != nil {
		return nil, err
	}
	entries := make([]fs.DirEntry, len(infos))
	for i, info := range infos {
		entries[i] = fs.FileInfoToDirEntry(info)
	}
	return entries, nil
}

func (a *absFSAdapter) readDirInfos(path string) ([]os.FileInfo, error) {
	if !a.h.DirectoryExists(path) {
		return nil, &os.PathError{Op: "readdir", Path: path, Err: fs.ErrNotExist}
	}

	byName := make(map[string]os.FileInfo)
	if in, _ := a.h.delegates(); in != nil {
		if disk, err := in.ReadDir(diskPath(path)); err == nil {
			for _, e := range disk {
				info, err := e.Info()
				if err != nil {
					continue
				}
				byName[e.Name()] = info
			}
		}
	}
	for _, e := range a.h.entries.children(path, true) {
		if _, ok := byName[e.Name()]; !ok {
			byName[e.Name()] = e
		}
	}
	for _, e := range a.h.entries.children(path, false) {
		byName[e.Name()] = e
	}

	infos := make([]os.FileInfo, 0, len(byName))
	for _, info := range byName {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name() < infos[j].Name()
	})
	return infos, nil
}

// ReadFile implements absfs.Filer
func (a *absFSAdapter) ReadFile(name string) ([]byte, error) {
	content, err := a.h.ReadContent(name)
	if err != nil {
		return nil, err
	}
	return []byte(content), nil
}

// Sub implements absfs.Filer
func (a *absFSAdapter) Sub(dir string) (fs.FS, error) {
	return absfs.FilerToFS(a, filepath.ToSlash(Canonical(dir)))
}

// Separator returns the path separator (always forward slash for virtual paths)
func (a *absFSAdapter) Separator() uint8 {
	return '/'
}

// ListSeparator returns the path list separator (always colon for virtual paths)
func (a *absFSAdapter) ListSeparator() uint8 {
	return ':'
}
