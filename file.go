package buildfs

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/absfs/absfs"
)

var _ absfs.File = (*virtualFile)(nil)

// virtualFile implements absfs.File over an in-memory copy of a file's
// content. Writable handles commit through HybridFS.Write on Close.
type virtualFile struct {
	h          *HybridFS
	path       string
	data       []byte
	off        int64
	writable   bool
	appendOnly bool
	dirty      bool
	closed     bool
}

func newVirtualFile(h *HybridFS, path string, data []byte, writable bool) *virtualFile {
	return &virtualFile{h: h, path: path, data: data, writable: writable}
}

func (f *virtualFile) pathErr(op string, err error) error {
	return &os.PathError{Op: op, Path: f.path, Err: err}
}

// Name returns the path the file was opened with
func (f *virtualFile) Name() string {
	return filepath.ToSlash(f.path)
}

// Read reads from the current offset
func (f *virtualFile) Read(p []byte) (int, error) {
	if f.closed {
		return 0, f.pathErr("read", os.ErrClosed)
	}
	if f.off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.off:])
	f.off += int64(n)
	return n, nil
}

// ReadAt reads at off without moving the offset
func (f *virtualFile) ReadAt(p []byte, off int64) (int, error) {
	if f.closed {
		return 0, f.pathErr("read", os.ErrClosed)
	}
	if off < 0 {
		return 0, f.pathErr("readat", os.ErrInvalid)
	}
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Write writes at the current offset, or at the end for append handles
func (f *virtualFile) Write(p []byte) (int, error) {
	if f.appendOnly {
		f.off = int64(len(f.data))
	}
	n, err := f.WriteAt(p, f.off)
	f.off += int64(n)
	return n, err
}

// WriteAt writes p at off, growing the file as needed
func (f *virtualFile) WriteAt(p []byte, off int64) (int, error) {
	if f.closed {
		return 0, f.pathErr("write", os.ErrClosed)
	}
	if !f.writable {
		return 0, f.pathErr("write", fs.ErrPermission)
	}
	if off < 0 {
		return 0, f.pathErr("writeat", os.ErrInvalid)
	}

	if end := off + int64(len(p)); end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:], p)
	f.dirty = true
	return len(p), nil
}

// WriteString is like Write with a string argument
func (f *virtualFile) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

// Seek moves the offset
func (f *virtualFile) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, f.pathErr("seek", os.ErrClosed)
	}

	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = f.off + offset
	case io.SeekEnd:
		next = int64(len(f.data)) + offset
	default:
		return 0, f.pathErr("seek", os.ErrInvalid)
	}
	if next < 0 {
		return 0, f.pathErr("seek", os.ErrInvalid)
	}
	f.off = next
	return next, nil
}

// Truncate changes the size of the buffered content
func (f *virtualFile) Truncate(size int64) error {
	if f.closed {
		return f.pathErr("truncate", os.ErrClosed)
	}
	if !f.writable {
		return f.pathErr("truncate", fs.ErrPermission)
	}
	if size < 0 {
		return f.pathErr("truncate", os.ErrInvalid)
	}

	if size <= int64(len(f.data)) {
		f.data = f.data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, f.data)
		f.data = grown
	}
	f.dirty = true
	return nil
}

// Sync commits buffered content without closing the handle
func (f *virtualFile) Sync() error {
	if f.closed {
		return f.pathErr("sync", os.ErrClosed)
	}
	return f.commit()
}

func (f *virtualFile) commit() error {
	if !f.dirty {
		return nil
	}
	f.dirty = false
	return f.h.Write(f.path, string(f.data))
}

// Close commits buffered writes and releases the handle
func (f *virtualFile) Close() error {
	if f.closed {
		return f.pathErr("close", os.ErrClosed)
	}
	err := f.commit()
	f.closed = true
	return err
}

// Stat describes the handle's current content
func (f *virtualFile) Stat() (os.FileInfo, error) {
	if f.closed {
		return nil, f.pathErr("stat", os.ErrClosed)
	}
	if !f.dirty {
		if fe, ok := f.h.entries.file(f.path); ok {
			return fe, nil
		}
	}
	now := time.Now()
	return &FileEntry{
		path:      f.path,
		size:      int64(len(f.data)),
		modTime:   now,
		changed:   now,
		accessed:  now,
		birthTime: now,
		id:        Identity{Dev: syntheticDev, Mode: 0644, UID: syntheticUID, GID: syntheticGID},
	}, nil
}

// Readdir is not supported for files
func (f *virtualFile) Readdir(int) ([]os.FileInfo, error) {
	return nil, f.pathErr("readdir", ErrNotDirectory)
}

// Readdirnames is not supported for files
func (f *virtualFile) Readdirnames(int) ([]string, error) {
	return nil, f.pathErr("readdirent", ErrNotDirectory)
}

// ReadDir is not supported for files
func (f *virtualFile) ReadDir(int) ([]fs.DirEntry, error) {
	return nil, f.pathErr("readdir", ErrNotDirectory)
}
