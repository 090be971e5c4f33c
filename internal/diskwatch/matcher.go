package diskwatch

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/denormal/go-gitignore"
)

// skipDirs are never scanned or watched
var skipDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	"node_modules": true,
	".idea":        true,
	".vscode":      true,
	".cache":       true,
}

// Matcher decides which files below a root belong to the source tree.
// A file is a source when it matches one of the include globs and is not
// excluded by the exclude globs or the root's .gitignore.
type Matcher struct {
	root      string
	include   []string
	exclude   []string
	skip      []string
	gitIgnore gitignore.GitIgnore
}

// NewMatcher creates a matcher for root. Globs are doublestar patterns
// relative to root. Directories listed in skip (absolute paths, typically
// the build output) are never descended into.
func NewMatcher(root string, include, exclude, skip []string) *Matcher {
	m := &Matcher{
		root:    root,
		include: include,
		exclude: exclude,
		skip:    skip,
	}
	m.gitIgnore = loadIgnoreFile(filepath.Join(root, ".gitignore"), root)
	return m
}

// Root returns the directory the matcher is relative to
func (m *Matcher) Root() string {
	return m.root
}

// Globs returns the include patterns anchored at root, for matching
// absolute paths. Glob metacharacters in root are escaped.
func (m *Matcher) Globs() []string {
	root := escapeMeta(filepath.ToSlash(m.root))
	globs := make([]string, len(m.include))
	for i, pattern := range m.include {
		globs[i] = path.Join(root, pattern)
	}
	return globs
}

func escapeMeta(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`*?[]{}\`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (m *Matcher) relative(absolutePath string) (string, bool) {
	rel, err := filepath.Rel(m.root, absolutePath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Includes reports whether absolutePath is a source file
func (m *Matcher) Includes(absolutePath string) bool {
	rel, ok := m.relative(absolutePath)
	if !ok {
		return false
	}

	included := false
	for _, pattern := range m.include {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			included = true
			break
		}
	}
	if !included {
		return false
	}

	for _, pattern := range m.exclude {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return false
		}
		if matched, _ := doublestar.Match(pattern, filepath.Base(rel)); matched {
			return false
		}
	}

	if m.gitIgnore != nil {
		if match := m.gitIgnore.Relative(rel, false); match != nil && match.Ignore() {
			return false
		}
	}
	return true
}

// SkipDir reports whether a directory should not be scanned or watched
func (m *Matcher) SkipDir(absolutePath string) bool {
	if absolutePath == m.root {
		return false
	}
	if skipDirs[filepath.Base(absolutePath)] {
		return true
	}
	for _, s := range m.skip {
		if absolutePath == s || strings.HasPrefix(absolutePath, s+string(filepath.Separator)) {
			return true
		}
	}

	rel, ok := m.relative(absolutePath)
	if !ok {
		return true
	}
	if m.gitIgnore != nil {
		if match := m.gitIgnore.Relative(rel, true); match != nil && match.Ignore() {
			return true
		}
	}
	return false
}

// loadIgnoreFile reads an ignore file and creates a GitIgnore matcher from it
func loadIgnoreFile(filePath string, baseDir string) gitignore.GitIgnore {
	f, err := os.Open(filePath)
	if err != nil {
		return nil
	}
	defer f.Close()

	return gitignore.New(f, baseDir, nil)
}
