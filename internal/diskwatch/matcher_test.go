package diskwatch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bmatcuk/doublestar/v4"
)

func TestMatcherIncludes(t *testing.T) {
	root := t.TempDir()
	m := NewMatcher(root, []string{"src/**/*.ts"}, []string{"*.spec.ts"}, nil)

	cases := map[string]bool{
		filepath.Join(root, "src", "app.ts"):           true,
		filepath.Join(root, "src", "pages", "home.ts"): true,
		filepath.Join(root, "src", "app.spec.ts"):      false,
		filepath.Join(root, "src", "app.js"):           false,
		filepath.Join(root, "README.md"):               false,
		filepath.Join(filepath.Dir(root), "other.ts"):  false,
	}
	for path, want := range cases {
		if got := m.Includes(path); got != want {
			t.Errorf("Includes(%s) = %v, want %v", path, got, want)
		}
	}
}

func TestMatcherGitignore(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".gitignore"), []byte("src/generated/\n*.tmp.ts\n"), 0644); err != nil {
		t.Fatalf("failed to write .gitignore: %v", err)
	}
	m := NewMatcher(root, []string{"src/**/*"}, nil, nil)

	if m.Includes(filepath.Join(root, "src", "x.tmp.ts")) {
		t.Error("expected gitignored file to be excluded")
	}
	if !m.SkipDir(filepath.Join(root, "src", "generated")) {
		t.Error("expected gitignored directory to be skipped")
	}
	if !m.Includes(filepath.Join(root, "src", "main.ts")) {
		t.Error("expected regular source to be included")
	}
}

func TestMatcherSkipDir(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "www", "build")
	m := NewMatcher(root, []string{"**/*"}, nil, []string{out})

	if m.SkipDir(root) {
		t.Error("root must never be skipped")
	}
	if !m.SkipDir(filepath.Join(root, "node_modules")) {
		t.Error("expected node_modules to be skipped")
	}
	if !m.SkipDir(out) {
		t.Error("expected output dir to be skipped")
	}
	if !m.SkipDir(filepath.Join(out, "chunks")) {
		t.Error("expected dirs below output dir to be skipped")
	}
	if m.SkipDir(filepath.Join(root, "www")) {
		t.Error("parent of output dir should not be skipped")
	}
}

func TestMatcherGlobs(t *testing.T) {
	m := NewMatcher("/work/[app]", []string{"src/**/*.ts", "assets/*"}, nil, nil)

	globs := m.Globs()
	if len(globs) != 2 {
		t.Fatalf("expected 2 globs, got %v", globs)
	}
	if ok, _ := doublestar.Match(globs[0], "/work/[app]/src/lib/a.ts"); !ok {
		t.Errorf("%s should match a source below the literal root", globs[0])
	}
	if ok, _ := doublestar.Match(globs[0], "/work/a/src/lib/a.ts"); ok {
		t.Errorf("%s must not treat the root as a character class", globs[0])
	}
	if ok, _ := doublestar.Match(globs[1], "/work/[app]/assets/logo.svg"); !ok {
		t.Errorf("%s should match an asset", globs[1])
	}
}
