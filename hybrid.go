package buildfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/absfs/absfs"
	"go.uber.org/zap"
)

var (
	// ErrNoOutput is returned when a disk write is required but no output
	// delegate is configured
	ErrNoOutput = errors.New("no output delegate configured")
	// ErrIsDirectory is returned when file content is requested for a directory
	ErrIsDirectory = errors.New("is a directory")
	// ErrNotDirectory is returned when a directory operation hits a file
	ErrNotDirectory = errors.New("not a directory")
)

// HybridFS presents virtual files held in a FileCache and files on a disk
// delegate as one filesystem. The cache always wins; the disk delegate is
// consulted only on a miss.
type HybridFS struct {
	cache   *FileCache
	entries *entryTable
	events  *Channel
	logger  *zap.Logger

	mu          sync.RWMutex
	input       absfs.FileSystem
	output      absfs.FileSystem
	writeToDisk bool
}

// Option is a functional option for configuring HybridFS
type Option func(*HybridFS)

// WithInput sets the delegate used for reads that miss the cache
func WithInput(fs absfs.FileSystem) Option {
	return func(h *HybridFS) {
		h.input = fs
	}
}

// WithOutput sets the delegate that receives disk writes
func WithOutput(fs absfs.FileSystem) Option {
	return func(h *HybridFS) {
		h.output = fs
	}
}

// WithWriteToDisk controls whether Write also persists to the output delegate
func WithWriteToDisk(enabled bool) Option {
	return func(h *HybridFS) {
		h.writeToDisk = enabled
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(h *HybridFS) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithEvents sets the channel that receives TopicVirtualWrite notifications
func WithEvents(ch *Channel) Option {
	return func(h *HybridFS) {
		h.events = ch
	}
}

// NewHybridFS creates a hybrid filesystem over cache. Several HybridFS
// values may share the same cache.
func NewHybridFS(cache *FileCache, opts ...Option) *HybridFS {
	h := &HybridFS{
		cache:   cache,
		entries: newEntryTable(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Cache returns the shared file cache
func (h *HybridFS) Cache() *FileCache {
	return h.cache
}

// Events returns the channel virtual writes are published on, if any
func (h *HybridFS) Events() *Channel {
	return h.events
}

// SetInput swaps the input delegate
func (h *HybridFS) SetInput(fs absfs.FileSystem) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.input = fs
}

// SetOutput swaps the output delegate
func (h *HybridFS) SetOutput(fs absfs.FileSystem) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.output = fs
}

// SetWriteToDisk changes the write-to-disk flag
func (h *HybridFS) SetWriteToDisk(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writeToDisk = enabled
}

// WriteToDisk reports whether Write persists to the output delegate
func (h *HybridFS) WriteToDisk() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.writeToDisk
}

func (h *HybridFS) delegates() (in, out absfs.FileSystem) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.input, h.output
}

// diskPath converts a canonical path to the slash form absfs expects
func diskPath(path string) string {
	return filepath.ToSlash(path)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// diskStat stats path on the input delegate. A missing delegate behaves
// like an empty disk.
func (h *HybridFS) diskStat(path string) (os.FileInfo, error) {
	in, _ := h.delegates()
	if in == nil {
		return nil, &os.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
	}
	return in.Stat(diskPath(path))
}

// Exists reports whether path names a file, either virtual or on disk
func (h *HybridFS) Exists(path string) bool {
	path = Canonical(path)

	if _, ok := h.cache.Get(path); ok {
		return true
	}

	info, err := h.diskStat(path)
	if err != nil {
		if !isNotExist(err) {
			h.logger.Debug("disk stat failed", zap.String("path", path), zap.Error(err))
		}
		return false
	}
	return !info.IsDir()
}

// GetFileContent returns cached content for path without touching disk
func (h *HybridFS) GetFileContent(path string) (string, bool) {
	r, ok := h.cache.Get(Canonical(path))
	if !ok {
		return "", false
	}
	return r.Content, true
}

// ReadContent returns the content of path from the cache or, on a miss,
// from the input delegate. Disk reads never populate the cache.
func (h *HybridFS) ReadContent(path string) (string, error) {
	path = Canonical(path)

	if r, ok := h.cache.Get(path); ok {
		recordRead(true)
		return r.Content, nil
	}
	if _, ok := h.entries.dir(path); ok {
		return "", &os.PathError{Op: "read", Path: path, Err: ErrIsDirectory}
	}

	in, _ := h.delegates()
	if in == nil {
		return "", &os.PathError{Op: "read", Path: path, Err: fs.ErrNotExist}
	}

	h.logger.Debug("cache miss, reading from disk", zap.String("path", path))
	recordRead(false)
	data, err := in.ReadFile(diskPath(path))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DirectoryExists reports whether path is a synthetic or on-disk directory
func (h *HybridFS) DirectoryExists(path string) bool {
	path = Canonical(path)

	if _, ok := h.entries.dir(path); ok {
		return true
	}

	info, err := h.diskStat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// ListSubdirectories returns the names of the directories directly below
// path, merging synthetic directories with the input delegate's listing.
// A failing disk listing is treated as empty.
func (h *HybridFS) ListSubdirectories(path string) []string {
	path = Canonical(path)

	seen := make(map[string]bool)
	var names []string

	if in, _ := h.delegates(); in != nil {
		entries, err := in.ReadDir(diskPath(path))
		if err != nil && !isNotExist(err) {
			h.logger.Debug("disk listing failed", zap.String("path", path), zap.Error(err))
		}
		for _, e := range entries {
			if e.IsDir() && !seen[e.Name()] {
				seen[e.Name()] = true
				names = append(names, e.Name())
			}
		}
	}

	for _, e := range h.entries.children(path, true) {
		if !seen[e.Name()] {
			seen[e.Name()] = true
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)
	return names
}

// Stat returns the synthetic file entry, the synthetic directory entry or
// the disk delegate's stat for path, in that order.
func (h *HybridFS) Stat(path string) (os.FileInfo, error) {
	path = Canonical(path)

	if fe, ok := h.entries.file(path); ok {
		return fe, nil
	}
	if de, ok := h.entries.dir(path); ok {
		return de, nil
	}
	return h.diskStat(path)
}

// ListFilesInDirectory returns the base names of the virtual files whose
// parent is path. Files only present on disk are not included.
func (h *HybridFS) ListFilesInDirectory(path string) []string {
	path = Canonical(path)

	children := h.entries.children(path, false)
	names := make([]string, 0, len(children))
	for _, e := range children {
		names = append(names, e.Name())
	}
	return names
}

// AddVirtualFile stores content for path in the cache, refreshes its
// synthetic file entry and makes sure its parent directory has a synthetic
// directory entry.
func (h *HybridFS) AddVirtualFile(path, content string) FileRecord {
	path = Canonical(path)

	record := h.cache.Put(path, FileRecord{Content: content})
	mtime := record.ModTime()
	h.entries.putFile(path, int64(len(content)), mtime)
	h.entries.ensureDir(filepath.Dir(path), mtime)
	virtualWrites.Inc()

	if h.events != nil {
		h.events.Publish(Event{
			Topic:     TopicVirtualWrite,
			Path:      path,
			Timestamp: record.Timestamp,
		})
	}
	return record
}

// Write adds path to the virtual layer and, when the write-to-disk flag is
// set, also writes it through the output delegate.
func (h *HybridFS) Write(path, content string) error {
	path = Canonical(path)
	h.AddVirtualFile(path, content)

	if !h.WriteToDisk() {
		return nil
	}
	return h.writeDisk(path, content)
}

func (h *HybridFS) writeDisk(path, content string) (err error) {
	defer func() { recordDiskWrite(err) }()

	_, out := h.delegates()
	if out == nil {
		return ErrNoOutput
	}

	if dir := filepath.Dir(path); dir != path {
		if err := out.MkdirAll(diskPath(dir), 0755); err != nil {
			return err
		}
	}

	f, err := out.OpenFile(diskPath(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Flush writes every virtual file to the output delegate regardless of the
// write-to-disk flag. Failures are collected and returned together.
func (h *HybridFS) Flush() error {
	start := time.Now()
	var errs []error
	written := 0

	for _, fe := range h.entries.files() {
		r, ok := h.cache.Get(fe.path)
		if !ok {
			continue
		}
		if err := h.writeDisk(fe.path, r.Content); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", fe.path, err))
			continue
		}
		written++
	}

	h.logger.Info("flushed virtual files",
		zap.Int("written", written),
		zap.Int("failed", len(errs)),
		zap.Duration("duration", time.Since(start)),
	)
	return errors.Join(errs...)
}

// Purge removes the given paths from the cache together with their
// synthetic file entries, so that Exists, Stat and ReadContent agree
// afterwards. Synthetic directory entries are left in place.
func (h *HybridFS) Purge(paths []string) {
	for _, p := range paths {
		p = Canonical(p)
		removed := h.cache.Remove(p)
		h.entries.removeFile(p)
		if removed {
			purgedPaths.Inc()
			h.logger.Debug("purged", zap.String("path", p))
		}
	}
}
