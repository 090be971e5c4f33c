package buildfs

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/absfs/absfs"
)

var _ absfs.File = (*virtualDir)(nil)

// virtualDir is an open directory handle. The listing is the merge of the
// disk listing and the virtual entries below the path, taken once at open.
type virtualDir struct {
	h      *HybridFS
	path   string
	list   []os.FileInfo
	pos    int
	closed bool
}

func openVirtualDir(a *absFSAdapter, path string) (*virtualDir, error) {
	list, err := a.readDirInfos(path)
	if err != nil {
		return nil, err
	}
	return &virtualDir{h: a.h, path: path, list: list}, nil
}

func (d *virtualDir) fail(op string, err error) error {
	return &os.PathError{Op: op, Path: d.path, Err: err}
}

func (d *virtualDir) Name() string { return filepath.ToSlash(d.path) }

func (d *virtualDir) Close() error {
	if d.closed {
		return d.fail("close", os.ErrClosed)
	}
	d.closed = true
	return nil
}

func (d *virtualDir) Sync() error { return nil }

func (d *virtualDir) Read([]byte) (int, error) { return 0, d.fail("read", ErrIsDirectory) }

func (d *virtualDir) ReadAt([]byte, int64) (int, error) { return 0, d.fail("read", ErrIsDirectory) }

func (d *virtualDir) Write([]byte) (int, error) { return 0, d.fail("write", ErrIsDirectory) }

func (d *virtualDir) WriteAt([]byte, int64) (int, error) { return 0, d.fail("write", ErrIsDirectory) }

func (d *virtualDir) WriteString(string) (int, error) { return 0, d.fail("write", ErrIsDirectory) }

func (d *virtualDir) Truncate(int64) error { return d.fail("truncate", ErrIsDirectory) }

// Seek repositions the listing cursor. Only rewinding to the start is
// meaningful to most callers.
func (d *virtualDir) Seek(offset int64, whence int) (int64, error) {
	if d.closed {
		return 0, d.fail("seek", os.ErrClosed)
	}

	base := 0
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = d.pos
	case io.SeekEnd:
		base = len(d.list)
	default:
		return 0, d.fail("seek", os.ErrInvalid)
	}
	d.pos = max(0, min(len(d.list), base+int(offset)))
	return int64(d.pos), nil
}

// Readdir returns up to n entries, or all remaining ones when n <= 0.
// Like os.File it returns io.EOF only for n > 0 at the end of the listing.
func (d *virtualDir) Readdir(n int) ([]os.FileInfo, error) {
	if d.closed {
		return nil, d.fail("readdir", os.ErrClosed)
	}

	rest := d.list[d.pos:]
	if n > 0 {
		if len(rest) == 0 {
			return nil, io.EOF
		}
		rest = rest[:min(n, len(rest))]
	}
	d.pos += len(rest)
	return rest, nil
}

func (d *virtualDir) Readdirnames(n int) ([]string, error) {
	infos, err := d.Readdir(n)
	names := make([]string, len(infos))
	for i := range infos {
		names[i] = infos[i].Name()
	}
	return names, err
}

func (d *virtualDir) ReadDir(n int) ([]fs.DirEntry, error) {
	infos, err := d.Readdir(n)
	entries := make([]fs.DirEntry, len(infos))
	for i := range infos {
		entries[i] = fs.FileInfoToDirEntry(infos[i])
	}
	return entries, err
}

func (d *virtualDir) Stat() (os.FileInfo, error) {
	if d.closed {
		return nil, d.fail("stat", os.ErrClosed)
	}
	return d.h.Stat(d.path)
}
