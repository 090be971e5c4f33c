package buildfs

import (
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrClosed is returned by Watch after Close
var ErrClosed = errors.New("aggregator closed")

// ImmediateFunc is called once per generation with one of the changed paths
// and the time of the round. It is a liveness signal only.
type ImmediateFunc func(path string, at int64)

// AggregatedFunc receives the result of one generation. fileTimes and
// dirTimes are the same table: the modification time of every watched file.
type AggregatedFunc func(err error, files, dirs, missing []string, fileTimes, dirTimes map[string]int64)

// WatchOptions describes one watch session
type WatchOptions struct {
	Files       []string
	Directories []string
	Missing     []string
	// StartTime is reported for watched files the cache has never seen.
	// Zero means the time Watch is called.
	StartTime time.Time
}

// Generation is the outcome of one aggregation round
type Generation struct {
	Checkpoint  int64 // the checkpoint the round compared against
	Changed     []string
	Files       []string
	Directories []string
	Missing     []string
	Times       map[string]int64
}

type session struct {
	files     map[string]bool
	dirs      map[string]bool
	missing   map[string]bool
	fileList  []string
	startTime int64

	immediate  ImmediateFunc
	aggregated AggregatedFunc
	cancel     func()
}

// Aggregator reports which cached paths changed since its last checkpoint
// whenever activity is signalled on its channel.
type Aggregator struct {
	cache  *FileCache
	events *Channel
	logger *zap.Logger
	now    func() time.Time

	mu         sync.Mutex
	checkpoint int64
	started    bool
	closed     bool
	session    *session
}

// NewAggregator creates an idle aggregator over cache. Activity is taken from
// events while listening.
func NewAggregator(cache *FileCache, events *Channel, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		cache:  cache,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// Watch starts (or replaces) a watch session and moves the aggregator to the
// listening state. The first call ever also advances the checkpoint, so
// records written before it are never reported.
func (a *Aggregator) Watch(opts WatchOptions, immediate ImmediateFunc, aggregated AggregatedFunc) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.session != nil {
		a.session.cancel()
		a.session = nil
	}
	if !a.started {
		a.checkpoint = a.cache.Tick()
		a.started = true
	}

	start := opts.StartTime
	if start.IsZero() {
		start = a.now()
	}

	s := &session{
		files:      toSet(opts.Files),
		dirs:       toSet(opts.Directories),
		missing:    toSet(opts.Missing),
		fileList:   canonicalAll(opts.Files),
		startTime:  start.UnixMilli(),
		immediate:  immediate,
		aggregated: aggregated,
		cancel:     func() {},
	}
	if a.events != nil {
		s.cancel = a.events.On(TopicActivity, func(Event) {
			a.Aggregate()
		})
	}
	a.session = s

	a.logger.Debug("watch session started",
		zap.Int("files", len(s.files)),
		zap.Int("directories", len(s.dirs)),
		zap.Int("missing", len(s.missing)),
	)
	return nil
}

// Listening reports whether a watch session is active
func (a *Aggregator) Listening() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session != nil
}

// Checkpoint returns the current checkpoint timestamp
func (a *Aggregator) Checkpoint() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.checkpoint
}

// Pause stops listening and discards the session. The checkpoint is kept,
// and a later Watch resumes from it.
func (a *Aggregator) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stop()
}

// Close stops listening for good
func (a *Aggregator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stop()
	a.closed = true
	return nil
}

func (a *Aggregator) stop() {
	if a.session == nil {
		return
	}
	a.session.cancel()
	a.session = nil
	a.logger.Debug("watch session stopped")
}

// Aggregate runs one aggregation round against the current session and
// invokes its callbacks. The checkpoint moves once the callbacks return.
// It returns false when the aggregator is not listening or nothing changed
// since the checkpoint.
func (a *Aggregator) Aggregate() (Generation, bool) {
	a.mu.Lock()
	s := a.session
	if s == nil {
		a.mu.Unlock()
		return Generation{}, false
	}

	gen := Generation{Checkpoint: a.checkpoint}
	for _, r := range a.cache.ChangedSince(a.checkpoint) {
		gen.Changed = append(gen.Changed, r.Path)
	}
	if len(gen.Changed) == 0 {
		a.checkpoint = a.cache.Tick()
		a.mu.Unlock()
		return gen, false
	}
	a.mu.Unlock()

	// writes made by the callbacks belong to this round
	defer a.advance()

	for _, p := range gen.Changed {
		switch {
		case s.files[p]:
			gen.Files = append(gen.Files, p)
		case s.dirs[p]:
			gen.Directories = append(gen.Directories, p)
		case s.missing[p]:
			gen.Missing = append(gen.Missing, p)
		}
	}
	sort.Strings(gen.Files)
	sort.Strings(gen.Directories)
	sort.Strings(gen.Missing)

	gen.Times = make(map[string]int64, len(s.fileList))
	for _, p := range s.fileList {
		if r, ok := a.cache.Get(p); ok {
			gen.Times[p] = r.Timestamp
		} else {
			gen.Times[p] = s.startTime
		}
	}

	generations.Inc()
	generationSize.Observe(float64(len(gen.Changed)))
	a.logger.Info("aggregated changes",
		zap.Int("changed", len(gen.Changed)),
		zap.Int("files", len(gen.Files)),
		zap.Int("directories", len(gen.Directories)),
		zap.Int("missing", len(gen.Missing)),
	)

	if s.immediate != nil {
		s.immediate(gen.Changed[0], a.now().UnixMilli())
	}
	if s.aggregated != nil {
		s.aggregated(nil, gen.Files, gen.Directories, gen.Missing, gen.Times, gen.Times)
	}
	return gen, true
}

func (a *Aggregator) advance() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.checkpoint = a.cache.Tick()
	}
}

func toSet(paths []string) map[string]bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[Canonical(p)] = true
	}
	return set
}

func canonicalAll(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = Canonical(p)
	}
	return out
}
