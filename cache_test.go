package buildfs

import (
	"path/filepath"
	"testing"
	"time"
)

// fixedClock returns a clock frozen at t
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestFileCachePutGet(t *testing.T) {
	c := NewFileCache()

	if _, ok := c.Get("/a/b.src"); ok {
		t.Fatal("expected empty cache")
	}

	stored := c.Put("/a/b.src", FileRecord{Content: "x"})
	if stored.Path != "/a/b.src" {
		t.Errorf("expected path to be set, got %q", stored.Path)
	}
	if stored.Timestamp == 0 {
		t.Error("expected Put to stamp the record")
	}

	r, ok := c.Get("/a/b.src")
	if !ok {
		t.Fatal("expected record after Put")
	}
	if r.Content != "x" || r.Timestamp != stored.Timestamp {
		t.Errorf("unexpected record %+v", r)
	}
}

func TestFileCacheLastWriteWins(t *testing.T) {
	c := NewFileCache()

	first := c.Put("/a", FileRecord{Content: "one"})
	second := c.Put("/a", FileRecord{Content: "two"})

	if second.Timestamp <= first.Timestamp {
		t.Errorf("expected timestamps to increase, got %d then %d", first.Timestamp, second.Timestamp)
	}
	r, _ := c.Get("/a")
	if r.Content != "two" {
		t.Errorf("expected last write to win, got %q", r.Content)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 record, got %d", c.Len())
	}
}

func TestFileCacheTimestampsStrictlyIncrease(t *testing.T) {
	c := newFileCache(fixedClock(time.UnixMilli(1000)))

	var last int64
	for i := 0; i < 5; i++ {
		r := c.Put(filepath.Join("/f", string(rune('a'+i))), FileRecord{})
		if r.Timestamp <= last {
			t.Fatalf("timestamp %d not after %d", r.Timestamp, last)
		}
		last = r.Timestamp
	}
	if tick := c.Tick(); tick <= last {
		t.Errorf("Tick returned %d, want > %d", tick, last)
	}
}

func TestFileCacheRemove(t *testing.T) {
	c := NewFileCache()
	c.Put("/a", FileRecord{Content: "a"})

	if !c.Remove("/a") {
		t.Error("expected Remove to report a removal")
	}
	if c.Remove("/a") {
		t.Error("second Remove should report nothing removed")
	}
	if _, ok := c.Get("/a"); ok {
		t.Error("record still present after Remove")
	}
	if len(c.GetAll()) != 0 {
		t.Error("GetAll should be empty")
	}
}

func TestFileCacheGetAllOrder(t *testing.T) {
	c := NewFileCache()
	c.Put("/c", FileRecord{})
	c.Put("/a", FileRecord{})
	c.Put("/b", FileRecord{})
	c.Put("/a", FileRecord{Content: "again"})
	c.Remove("/c")
	c.Put("/c", FileRecord{})

	all := c.GetAll()
	want := []string{"/a", "/b", "/c"}
	if len(all) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(all))
	}
	for i, r := range all {
		if r.Path != want[i] {
			t.Errorf("GetAll[%d] = %s, want %s", i, r.Path, want[i])
		}
	}
}

func TestFileCacheChangedSince(t *testing.T) {
	c := NewFileCache()
	c.Put("/old", FileRecord{})
	checkpoint := c.Tick()
	c.Put("/new", FileRecord{})

	changed := c.ChangedSince(checkpoint)
	if len(changed) != 1 || changed[0].Path != "/new" {
		t.Fatalf("expected only /new, got %+v", changed)
	}

	// the boundary is inclusive
	r, _ := c.Get("/new")
	if got := c.ChangedSince(r.Timestamp); len(got) != 1 {
		t.Errorf("expected record stamped at the checkpoint to be included, got %d", len(got))
	}
	if got := c.ChangedSince(r.Timestamp + 1); len(got) != 0 {
		t.Errorf("expected nothing after the last write, got %d", len(got))
	}
}

func TestFileCacheMatch(t *testing.T) {
	c := NewFileCache()
	c.Put("/app/src/main.ts", FileRecord{})
	c.Put("/app/src/pages/home.ts", FileRecord{})
	c.Put("/app/src/styles.css", FileRecord{})
	c.Put("/app/www/build/main.js", FileRecord{})

	got, err := c.Match("/app/src/**/*.ts")
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	if got[0].Path != "/app/src/main.ts" || got[1].Path != "/app/src/pages/home.ts" {
		t.Errorf("unexpected matches %+v", got)
	}

	if _, err := c.Match("/app/[src"); err == nil {
		t.Error("expected an error for a malformed pattern")
	}
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/a/b/../c.ts", "/a/c.ts"},
		{"/a//b/", "/a/b"},
		{"", "/"},
	}
	for _, tt := range tests {
		if got := Canonical(tt.in); got != filepath.FromSlash(tt.want) {
			t.Errorf("Canonical(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if !filepath.IsAbs(Canonical("relative/x.ts")) {
		t.Error("relative paths should be made absolute")
	}
}
