package diskwatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/absfs/buildfs"
)

func writeSource(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	writeSource(t, filepath.Join(root, "src", "app.ts"), "export const a = 1;")
	writeSource(t, filepath.Join(root, "src", "pages", "home.ts"), "export class Home {}")
	writeSource(t, filepath.Join(root, "src", "notes.md"), "# notes")
	writeSource(t, filepath.Join(root, "node_modules", "x", "index.ts"), "ignored")

	cache := buildfs.NewFileCache()
	m := NewMatcher(root, []string{"**/*.ts"}, nil, nil)

	n, err := Scan(cache, m)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 files, got %d", n)
	}

	r, ok := cache.Get(buildfs.Canonical(filepath.Join(root, "src", "app.ts")))
	if !ok {
		t.Fatal("expected app.ts in cache")
	}
	if r.Content != "export const a = 1;" {
		t.Errorf("unexpected content %q", r.Content)
	}
	if _, ok := cache.Get(buildfs.Canonical(filepath.Join(root, "node_modules", "x", "index.ts"))); ok {
		t.Error("node_modules must not be scanned")
	}
}

func TestWatcherReloadsEdits(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src", "app.ts")
	writeSource(t, src, "v1")

	bctx := buildfs.NewContext()
	m := NewMatcher(root, []string{"src/**/*.ts"}, nil, nil)
	if _, err := Scan(bctx.Cache(), m); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	w, err := New(bctx, m, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer w.Close()

	activity := bctx.Events().Subscribe(buildfs.TopicActivity)
	defer bctx.Events().Unsubscribe(buildfs.TopicActivity, activity)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	writeSource(t, src, "v2")

	select {
	case ev := <-activity:
		if ev.Path != buildfs.Canonical(src) {
			t.Errorf("expected activity for %s, got %s", src, ev.Path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for activity")
	}

	r, ok := bctx.Cache().Get(buildfs.Canonical(src))
	if !ok || r.Content != "v2" {
		t.Errorf("expected cache to hold v2, got %q (present=%v)", r.Content, ok)
	}
}

func TestWatcherDropsRemovedFiles(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src", "gone.ts")
	writeSource(t, src, "bye")

	bctx := buildfs.NewContext()
	m := NewMatcher(root, []string{"src/**/*.ts"}, nil, nil)
	Scan(bctx.Cache(), m)

	w, err := New(bctx, m, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer w.Close()

	activity := bctx.Events().Subscribe(buildfs.TopicActivity)
	defer bctx.Events().Unsubscribe(buildfs.TopicActivity, activity)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := os.Remove(src); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	select {
	case <-activity:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for activity")
	}

	if _, ok := bctx.Cache().Get(buildfs.Canonical(src)); ok {
		t.Error("removed file should be dropped from the cache")
	}
}
