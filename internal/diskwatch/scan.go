package diskwatch

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/absfs/buildfs"
)

// Scan walks the matcher's root and puts every source file into cache.
// Unreadable entries are skipped. It returns the number of files cached.
func Scan(cache *buildfs.FileCache, m *Matcher) (int, error) {
	count := 0
	err := filepath.WalkDir(m.Root(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if m.SkipDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !m.Includes(path) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		cache.Put(buildfs.Canonical(path), buildfs.FileRecord{Content: string(data)})
		count++
		return nil
	})
	return count, err
}
