package buildfs

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// FileRecord is the cached state of a single path.
type FileRecord struct {
	Path      string
	Content   string
	Timestamp int64 // epoch milliseconds
}

// ModTime returns the record timestamp as a time.Time
func (r FileRecord) ModTime() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// FileCache is an in-memory store of file records keyed by canonical path.
//
// The cache performs no path normalization. Callers are expected to pass
// paths through Canonical (or an equivalent) before every call.
type FileCache struct {
	mu      sync.RWMutex
	records map[string]*FileRecord
	order   []string
	clock   func() time.Time
	last    int64
}

// NewFileCache creates an empty cache using the wall clock
func NewFileCache() *FileCache {
	return newFileCache(time.Now)
}

func newFileCache(clock func() time.Time) *FileCache {
	if clock == nil {
		clock = time.Now
	}
	return &FileCache{
		records: make(map[string]*FileRecord),
		clock:   clock,
	}
}

// next returns a timestamp strictly greater than every one issued before.
// Must be called with mu held for writing.
func (c *FileCache) next() int64 {
	now := c.clock().UnixMilli()
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return now
}

// Put stores record under path, replacing any existing entry, and stamps it
// with the current time. The stored copy is returned.
func (c *FileCache) Put(path string, record FileRecord) FileRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	record.Path = path
	record.Timestamp = c.next()

	if _, ok := c.records[path]; !ok {
		c.order = append(c.order, path)
	}
	stored := record
	c.records[path] = &stored

	cacheEntries.Set(float64(len(c.records)))
	return record
}

// Get returns the record for path. It never touches disk.
func (c *FileCache) Get(path string) (FileRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.records[path]
	if !ok {
		return FileRecord{}, false
	}
	return *r, true
}

// Remove deletes the entry for path and reports whether one existed
func (c *FileCache) Remove(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.records[path]; !ok {
		return false
	}
	delete(c.records, path)
	for i, p := range c.order {
		if p == path {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	cacheEntries.Set(float64(len(c.records)))
	return true
}

// GetAll returns a snapshot of every record in insertion order
func (c *FileCache) GetAll() []FileRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]FileRecord, 0, len(c.order))
	for _, p := range c.order {
		out = append(out, *c.records[p])
	}
	return out
}

// ChangedSince returns the records whose timestamp is at or after ts.
func (c *FileCache) ChangedSince(ts int64) []FileRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []FileRecord
	for _, p := range c.order {
		if r := c.records[p]; r.Timestamp >= ts {
			out = append(out, *r)
		}
	}
	return out
}

// Match returns the cached records whose path matches a doublestar glob
// pattern such as "/src/**/*.ts".
func (c *FileCache) Match(pattern string) ([]FileRecord, error) {
	pattern = filepath.ToSlash(pattern)
	if !doublestar.ValidatePattern(pattern) {
		return nil, doublestar.ErrBadPattern
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []FileRecord
	for _, p := range c.order {
		if ok, _ := doublestar.Match(pattern, filepath.ToSlash(p)); ok {
			out = append(out, *c.records[p])
		}
	}
	return out, nil
}

// Len returns the number of cached records
func (c *FileCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Tick reserves and returns a timestamp. No record is ever stamped with it:
// records put before the call are older, records put after are newer.
func (c *FileCache) Tick() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next()
}

// Canonical converts a path to the form used as a cache key: absolute,
// cleaned and using the OS separator.
func Canonical(path string) string {
	if path == "" {
		return string(filepath.Separator)
	}
	path = filepath.FromSlash(path)
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	cleaned := filepath.Clean(path)
	if !strings.HasPrefix(cleaned, string(filepath.Separator)) {
		cleaned = string(filepath.Separator) + cleaned
	}
	return cleaned
}
