package diskwatch

import (
	"sort"
	"testing"
	"time"
)

const testInterval = 50 * time.Millisecond

func receiveBatch(t *testing.T, d *Debouncer, timeout time.Duration) []Change {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(timeout):
		t.Fatal("timed out waiting for debouncer batch")
		return nil
	}
}

func TestDebouncerCollapses(t *testing.T) {
	d := NewDebouncer(testInterval)

	d.Add("/src/a.ts", OpWrite)
	d.Add("/src/a.ts", OpRemove)
	d.Add("/src/b.ts", OpWrite)

	batch := receiveBatch(t, d, 500*time.Millisecond)
	if len(batch) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(batch))
	}

	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	if batch[0].Path != "/src/a.ts" || batch[0].Op != OpRemove {
		t.Errorf("expected latest op for a.ts, got %+v", batch[0])
	}
	if batch[1].Path != "/src/b.ts" || batch[1].Op != OpWrite {
		t.Errorf("unexpected change %+v", batch[1])
	}
}

func TestDebouncerStop(t *testing.T) {
	d := NewDebouncer(testInterval)
	d.Add("/src/a.ts", OpWrite)
	d.Stop()

	select {
	case batch := <-d.Output():
		t.Fatalf("expected no batch after Stop, got %v", batch)
	case <-time.After(3 * testInterval):
	}
}
