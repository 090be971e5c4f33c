package buildfs

import (
	"path/filepath"
	"strings"
	"sync"
)

// SourceFile is the source object handed to a compiler. It is rebuilt
// whenever the underlying content changes.
type SourceFile struct {
	Path    string
	Text    string
	Version int64 // cache timestamp, or 0 for content read from disk
	Lines   []int // byte offset of the start of every line
}

// LineCount returns the number of lines in the source
func (sf *SourceFile) LineCount() int {
	return len(sf.Lines)
}

func newSourceFile(path, text string, version int64) *SourceFile {
	lines := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, i+1)
		}
	}
	return &SourceFile{Path: path, Text: text, Version: version, Lines: lines}
}

// CompilerHost is the file access surface a compiler drives. Every call is
// answered by the HybridFS; emitted artifacts always land in the virtual
// layer so the next in-memory phase sees them immediately.
type CompilerHost struct {
	fs            *HybridFS
	cwd           string
	caseSensitive bool

	mu      sync.Mutex
	sources map[string]*SourceFile
}

// NewCompilerHost creates a host rooted at cwd
func NewCompilerHost(fs *HybridFS, cwd string) *CompilerHost {
	return &CompilerHost{
		fs:            fs,
		cwd:           Canonical(cwd),
		caseSensitive: filepath.Separator == '/',
		sources:       make(map[string]*SourceFile),
	}
}

func (h *CompilerHost) resolve(name string) string {
	if !filepath.IsAbs(filepath.FromSlash(name)) {
		name = filepath.Join(h.cwd, filepath.FromSlash(name))
	}
	return Canonical(name)
}

// FileExists reports whether name is a file
func (h *CompilerHost) FileExists(name string) bool {
	return h.fs.Exists(h.resolve(name))
}

// ReadFile returns the content of name
func (h *CompilerHost) ReadFile(name string) (string, error) {
	return h.fs.ReadContent(h.resolve(name))
}

// DirectoryExists reports whether name is a directory
func (h *CompilerHost) DirectoryExists(name string) bool {
	return h.fs.DirectoryExists(h.resolve(name))
}

// GetDirectories returns the subdirectory names of name
func (h *CompilerHost) GetDirectories(name string) []string {
	return h.fs.ListSubdirectories(h.resolve(name))
}

// GetSourceFile returns the source object for name. Objects for cached
// files are reused until the cache timestamp moves.
func (h *CompilerHost) GetSourceFile(name string) (*SourceFile, error) {
	path := h.resolve(name)

	if r, ok := h.fs.Cache().Get(path); ok {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sf, ok := h.sources[path]; ok && sf.Version == r.Timestamp {
			return sf, nil
		}
		sf := newSourceFile(path, r.Content, r.Timestamp)
		h.sources[path] = sf
		return sf, nil
	}

	text, err := h.fs.ReadContent(path)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	delete(h.sources, path)
	h.mu.Unlock()
	return newSourceFile(path, text, 0), nil
}

// WriteFile stores an emitted artifact in the virtual layer. The
// write-to-disk flag is ignored.
func (h *CompilerHost) WriteFile(name, content string) error {
	h.fs.AddVirtualFile(h.resolve(name), content)
	return nil
}

// GetCurrentDirectory returns the directory relative names resolve against
func (h *CompilerHost) GetCurrentDirectory() string {
	return h.cwd
}

// UseCaseSensitiveFileNames reports whether file names are case sensitive
func (h *CompilerHost) UseCaseSensitiveFileNames() bool {
	return h.caseSensitive
}

// GetCanonicalFileName returns the key the compiler should use for name
func (h *CompilerHost) GetCanonicalFileName(name string) string {
	if h.caseSensitive {
		return name
	}
	return strings.ToLower(name)
}
