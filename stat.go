package buildfs

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// DirectorySize is the size reported for every synthetic directory
const DirectorySize = 4096

// Placeholder identity shared by every synthetic entry in this process.
// The values only need to stay away from real device and inode numbers.
var (
	syntheticDev     = uint64(rand.Uint32()) | 1<<40
	syntheticInoBase = rand.Uint64() >> 8
	syntheticUID     = os.Getuid()
	syntheticGID     = os.Getgid()
)

// Identity holds the placeholder fields a consumer would normally find in
// the system-specific part of a stat result. Returned by Sys().
type Identity struct {
	Dev  uint64
	Ino  uint64
	Mode os.FileMode
	UID  int
	GID  int
}

// Entry is a synthetic stat stored in the virtual layer. It is either a
// *FileEntry or a *DirectoryEntry.
type Entry interface {
	os.FileInfo
	Path() string
	entry()
}

// FileEntry is the synthetic stat of a virtual file
type FileEntry struct {
	path      string
	size      int64
	modTime   time.Time
	changed   time.Time
	accessed  time.Time
	birthTime time.Time
	id        Identity
}

func (e *FileEntry) entry() {}

// Path returns the canonical path of the file
func (e *FileEntry) Path() string { return e.path }

// Name returns the base name of the file
func (e *FileEntry) Name() string { return filepath.Base(e.path) }

// Size returns the content length
func (e *FileEntry) Size() int64 { return e.size }

// Mode returns a regular file mode
func (e *FileEntry) Mode() os.FileMode { return e.id.Mode }

// ModTime returns the last content change
func (e *FileEntry) ModTime() time.Time { return e.modTime }

// ChangeTime returns the ctime of the entry
func (e *FileEntry) ChangeTime() time.Time { return e.changed }

// AccessTime returns the atime of the entry
func (e *FileEntry) AccessTime() time.Time { return e.accessed }

// BirthTime returns the time the entry was first created
func (e *FileEntry) BirthTime() time.Time { return e.birthTime }

// IsDir is always false for files
func (e *FileEntry) IsDir() bool { return false }

// Sys returns the placeholder *Identity
func (e *FileEntry) Sys() any { return &e.id }

// DirectoryEntry is the synthetic stat of a directory holding virtual files.
// It is fixed at creation.
type DirectoryEntry struct {
	path    string
	created time.Time
	id      Identity
}

func (e *DirectoryEntry) entry() {}

// Path returns the canonical path of the directory
func (e *DirectoryEntry) Path() string { return e.path }

// Name returns the base name of the directory
func (e *DirectoryEntry) Name() string { return filepath.Base(e.path) }

// Size returns DirectorySize
func (e *DirectoryEntry) Size() int64 { return DirectorySize }

// Mode returns a directory mode
func (e *DirectoryEntry) Mode() os.FileMode { return e.id.Mode }

// ModTime returns the creation time
func (e *DirectoryEntry) ModTime() time.Time { return e.created }

// IsDir is always true for directories
func (e *DirectoryEntry) IsDir() bool { return true }

// Sys returns the placeholder *Identity
func (e *DirectoryEntry) Sys() any { return &e.id }

// entryTable is the single keyed collection of synthetic entries
type entryTable struct {
	mu      sync.RWMutex
	entries map[string]Entry
	inodes  map[string]uint64
	nextIno uint64
}

func newEntryTable() *entryTable {
	return &entryTable{
		entries: make(map[string]Entry),
		inodes:  make(map[string]uint64),
	}
}

// inode returns a stable inode number for path. Must be called with mu held.
func (t *entryTable) inode(path string) uint64 {
	if ino, ok := t.inodes[path]; ok {
		return ino
	}
	t.nextIno++
	ino := syntheticInoBase + t.nextIno
	t.inodes[path] = ino
	return ino
}

// putFile creates or refreshes the file entry for path. Timestamps other
// than mtime survive a refresh.
func (t *entryTable) putFile(path string, size int64, mtime time.Time) *FileEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.entries[path].(*FileEntry); ok {
		refreshed := *existing
		refreshed.size = size
		refreshed.modTime = mtime
		refreshed.changed = mtime
		t.entries[path] = &refreshed
		return &refreshed
	}

	fe := &FileEntry{
		path:      path,
		size:      size,
		modTime:   mtime,
		changed:   mtime,
		accessed:  mtime,
		birthTime: mtime,
		id: Identity{
			Dev:  syntheticDev,
			Ino:  t.inode(path),
			Mode: 0644,
			UID:  syntheticUID,
			GID:  syntheticGID,
		},
	}
	t.entries[path] = fe
	return fe
}

// ensureDir creates a directory entry for path if none exists yet
func (t *entryTable) ensureDir(path string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[path].(*DirectoryEntry); ok {
		return
	}
	if _, ok := t.entries[path]; ok {
		// a virtual file already owns this path
		return
	}
	t.entries[path] = &DirectoryEntry{
		path:    path,
		created: now,
		id: Identity{
			Dev:  syntheticDev,
			Ino:  t.inode(path),
			Mode: os.ModeDir | 0755,
			UID:  syntheticUID,
			GID:  syntheticGID,
		},
	}
}

func (t *entryTable) get(path string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[path]
	return e, ok
}

func (t *entryTable) file(path string) (*FileEntry, bool) {
	e, _ := t.get(path)
	fe, ok := e.(*FileEntry)
	return fe, ok
}

func (t *entryTable) dir(path string) (*DirectoryEntry, bool) {
	e, _ := t.get(path)
	de, ok := e.(*DirectoryEntry)
	return de, ok
}

// removeFile drops the file entry for path. Directory entries are kept.
func (t *entryTable) removeFile(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[path].(*FileEntry); !ok {
		return false
	}
	delete(t.entries, path)
	return true
}

// children returns the entries of the given kind whose parent is dir, sorted by path
func (t *entryTable) children(dir string, dirs bool) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Entry
	for p, e := range t.entries {
		if p == dir || filepath.Dir(p) != dir || e.IsDir() != dirs {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Path() < out[j].Path()
	})
	return out
}

// files returns every file entry, sorted by path
func (t *entryTable) files() []*FileEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*FileEntry, 0, len(t.entries))
	for _, e := range t.entries {
		if fe, ok := e.(*FileEntry); ok {
			out = append(out, fe)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].path < out[j].path
	})
	return out
}
