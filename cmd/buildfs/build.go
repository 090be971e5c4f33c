package main

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/absfs/absfs"
	"github.com/absfs/buildfs"
	"github.com/absfs/buildfs/internal/diskwatch"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ManifestName is the file listing every artifact of the last build
const ManifestName = "manifest.yaml"

// Manifest is written next to the artifacts after every build
type Manifest struct {
	Generation int               `yaml:"generation"`
	BuiltAt    time.Time         `yaml:"builtAt"`
	Artifacts  map[string]string `yaml:"artifacts"` // artifact path relative to outDir -> source path relative to root
}

// builder stages source files from the cache into the output directory.
// Emission goes through the compiler host, so artifacts land in the
// virtual layer and reach disk on Flush.
type builder struct {
	root   string
	outDir string
	ctx    *buildfs.Context
	host   *buildfs.CompilerHost
	match  *diskwatch.Matcher
	out    absfs.FileSystem
	logger *zap.Logger

	mu         sync.Mutex
	sources    map[string]string // source -> artifact
	generation int
}

func newBuilder(ctx *buildfs.Context, match *diskwatch.Matcher, outDir string, out absfs.FileSystem) *builder {
	root := match.Root()
	return &builder{
		root:    root,
		outDir:  buildfs.Canonical(outDir),
		ctx:     ctx,
		host:    ctx.CompilerHost(root),
		match:   match,
		out:     out,
		logger:  ctx.Logger().Named("build"),
		sources: make(map[string]string),
	}
}

func (b *builder) artifactPath(src string) (string, error) {
	rel, err := filepath.Rel(b.root, src)
	if err != nil {
		return "", err
	}
	return filepath.Join(b.outDir, rel), nil
}

// sourcePaths returns every cached path that belongs to the source tree.
// Candidates come from the include globs, the matcher applies the excludes.
func (b *builder) sourcePaths() []string {
	seen := make(map[string]bool)
	var paths []string
	for _, glob := range b.match.Globs() {
		records, err := b.ctx.Cache().Match(glob)
		if err != nil {
			b.logger.Warn("invalid include pattern", zap.String("pattern", glob), zap.Error(err))
			continue
		}
		for _, r := range records {
			if seen[r.Path] || b.isArtifact(r.Path) || !b.match.Includes(r.Path) {
				continue
			}
			seen[r.Path] = true
			paths = append(paths, r.Path)
		}
	}
	sort.Strings(paths)
	return paths
}

func (b *builder) isArtifact(path string) bool {
	return path == b.outDir || strings.HasPrefix(path, b.outDir+string(filepath.Separator))
}

// watched returns the sources staged so far
func (b *builder) watched() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	paths := make([]string, 0, len(b.sources))
	for src := range b.sources {
		paths = append(paths, src)
	}
	sort.Strings(paths)
	return paths
}

// build stages paths, writes the manifest and flushes
func (b *builder) build(paths []string) error {
	start := time.Now()
	var errs []error
	staged := 0

	for _, src := range paths {
		if err := b.stage(src); err != nil {
			errs = append(errs, err)
			continue
		}
		staged++
	}

	if err := b.writeManifest(); err != nil {
		errs = append(errs, err)
	}
	if err := b.ctx.FS().Flush(); err != nil {
		errs = append(errs, err)
	}

	b.logger.Info("build finished",
		zap.Int("staged", staged),
		zap.Int("failed", len(errs)),
		zap.Duration("duration", time.Since(start)),
	)
	return errors.Join(errs...)
}

func (b *builder) stage(src string) error {
	artifact, err := b.artifactPath(src)
	if err != nil {
		return err
	}

	text, err := b.host.ReadFile(src)
	if errors.Is(err, fs.ErrNotExist) {
		b.drop(src)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}

	if err := b.host.WriteFile(artifact, text); err != nil {
		return fmt.Errorf("emit %s: %w", artifact, err)
	}

	b.mu.Lock()
	b.sources[src] = artifact
	b.mu.Unlock()

	b.logger.Debug("staged", zap.String("source", src), zap.String("artifact", artifact))
	return nil
}

// drop forgets a source whose file is gone and removes its artifact
func (b *builder) drop(src string) {
	b.mu.Lock()
	artifact, ok := b.sources[src]
	delete(b.sources, src)
	b.mu.Unlock()
	if !ok {
		return
	}

	b.ctx.FS().Purge([]string{artifact})
	if err := b.out.Remove(filepath.ToSlash(artifact)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		b.logger.Warn("failed to remove artifact", zap.String("artifact", artifact), zap.Error(err))
	}
	b.logger.Info("source removed", zap.String("source", src))
}

// prune drops every staged source that left the cache
func (b *builder) prune() int {
	n := 0
	for _, src := range b.watched() {
		if _, ok := b.ctx.Cache().Get(src); !ok {
			b.drop(src)
			n++
		}
	}
	return n
}

func (b *builder) writeManifest() error {
	b.mu.Lock()
	b.generation++
	m := Manifest{
		Generation: b.generation,
		BuiltAt:    time.Now().UTC(),
		Artifacts:  make(map[string]string, len(b.sources)),
	}
	for src, artifact := range b.sources {
		relArtifact, _ := filepath.Rel(b.outDir, artifact)
		relSrc, _ := filepath.Rel(b.root, src)
		m.Artifacts[filepath.ToSlash(relArtifact)] = filepath.ToSlash(relSrc)
	}
	b.mu.Unlock()

	data, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	// the manifest honors the write-to-disk flag
	return b.ctx.FS().Write(filepath.Join(b.outDir, ManifestName), string(data))
}

// rebuild handles one watch generation. New sources are discovered from the
// cache, since the session only knows about files staged before.
func (b *builder) rebuild(files []string) ([]string, error) {
	known := make(map[string]bool)
	for _, src := range b.watched() {
		known[src] = true
	}

	changed := append([]string(nil), files...)
	for _, src := range b.sourcePaths() {
		if !known[src] {
			changed = append(changed, src)
		}
	}
	if len(changed) == 0 {
		return b.watched(), nil
	}

	err := b.build(changed)
	return b.watched(), err
}
