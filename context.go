package buildfs

import (
	"go.uber.org/zap"
)

// Context owns the state shared by every phase of one build: a file cache,
// the hybrid filesystem over it and the event channel. Independent contexts
// never observe each other.
type Context struct {
	cache  *FileCache
	events *Channel
	fs     *HybridFS
	logger *zap.Logger
}

// NewContext creates a build context. The options configure its HybridFS;
// WithEvents is ignored because the context always uses its own channel.
func NewContext(opts ...Option) *Context {
	cache := NewFileCache()
	events := NewChannel()

	all := append([]Option{}, opts...)
	all = append(all, WithEvents(events))
	h := NewHybridFS(cache, all...)

	return &Context{
		cache:  cache,
		events: events,
		fs:     h,
		logger: h.logger,
	}
}

// Cache returns the context's file cache
func (c *Context) Cache() *FileCache {
	return c.cache
}

// FS returns the context's hybrid filesystem
func (c *Context) FS() *HybridFS {
	return c.fs
}

// Events returns the context's event channel
func (c *Context) Events() *Channel {
	return c.events
}

// Logger returns the context's logger
func (c *Context) Logger() *zap.Logger {
	return c.logger
}

// CompilerHost returns a compiler host over the context's filesystem
func (c *Context) CompilerHost(cwd string) *CompilerHost {
	return NewCompilerHost(c.fs, cwd)
}

// NewAggregator returns an idle aggregator for a new watch session
func (c *Context) NewAggregator() *Aggregator {
	return NewAggregator(c.cache, c.events, c.logger.Named("watch"))
}

// Signal publishes filesystem activity for path
func (c *Context) Signal(path string) {
	c.events.Publish(Event{Topic: TopicActivity, Path: path})
}
