package diskwatch

import (
	"sync"
	"time"
)

// Op is the kind of change seen for a path
type Op int

const (
	OpWrite Op = iota
	OpRemove
)

// Change is one collapsed filesystem change
type Change struct {
	Path string
	Op   Op
}

// Debouncer collects changes and emits them as one batch after a quiet
// period. Changes to the same path inside the window collapse into the last.
type Debouncer struct {
	interval time.Duration
	changes  map[string]Change
	mu       sync.Mutex
	timer    *time.Timer
	output   chan []Change
}

// NewDebouncer creates a debouncer with the specified quiet interval
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{
		interval: interval,
		changes:  make(map[string]Change),
		output:   make(chan []Change, 16),
	}
}

// Output returns the channel that receives batches
func (d *Debouncer) Output() <-chan []Change {
	return d.output
}

// Add records a change and restarts the quiet period
func (d *Debouncer) Add(path string, op Op) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.changes[path] = Change{Path: path, Op: op}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.changes) == 0 {
		return
	}

	batch := make([]Change, 0, len(d.changes))
	for _, c := range d.changes {
		batch = append(batch, c)
	}
	d.changes = make(map[string]Change)
	d.output <- batch
}

// Stop cancels a pending flush
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}
