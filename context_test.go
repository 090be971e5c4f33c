package buildfs

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextsAreIsolated(t *testing.T) {
	a := NewContext()
	b := NewContext()

	a.FS().AddVirtualFile("/shared/path.js", "a")

	if b.FS().Exists("/shared/path.js") {
		t.Error("contexts must not share a cache")
	}

	calls := 0
	b.Events().On(TopicActivity, func(Event) { calls++ })
	a.Signal("/shared/path.js")
	if calls != 0 {
		t.Error("contexts must not share a channel")
	}
}

func TestContextIgnoresForeignChannel(t *testing.T) {
	foreign := NewChannel()
	ctx := NewContext(WithEvents(foreign))

	if ctx.Events() == foreign {
		t.Fatal("context should own its channel")
	}
	if ctx.FS().Events() != ctx.Events() {
		t.Error("filesystem should publish on the context channel")
	}
}

func TestContextLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ctx := NewContext(WithLogger(zap.New(core)))

	ctx.FS().AddVirtualFile("/a.js", "a")
	ctx.FS().Purge([]string{"/a.js"})

	if logs.FilterMessage("purged").Len() != 1 {
		t.Errorf("expected a purge log entry, got %v", logs.All())
	}
}
