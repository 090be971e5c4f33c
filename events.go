package buildfs

import (
	"sync"
	"time"
)

// Topic names a class of events published on a Channel
type Topic string

const (
	// TopicActivity signals that something on the filesystem changed
	TopicActivity Topic = "activity"
	// TopicVirtualWrite is published after every write into the virtual layer
	TopicVirtualWrite Topic = "virtual-write"
)

// Event is a single notification on a Channel.
type Event struct {
	Topic     Topic
	Path      string
	Timestamp int64 // epoch milliseconds
}

// Handler receives events synchronously from Publish
type Handler func(Event)

type handlerEntry struct {
	id uint64
	fn Handler
}

// Channel is a publish/subscribe channel owned by a build context.
//
// Handlers registered with On run synchronously inside Publish, in
// registration order. Channels returned by Subscribe receive events without
// blocking the publisher; events are dropped for a full subscriber.
type Channel struct {
	mu          sync.RWMutex
	handlers    map[Topic][]handlerEntry
	subscribers map[Topic]map[chan Event]struct{}
	nextID      uint64
	buffer      int
}

// NewChannel creates an empty channel
func NewChannel() *Channel {
	return &Channel{
		handlers:    make(map[Topic][]handlerEntry),
		subscribers: make(map[Topic]map[chan Event]struct{}),
		buffer:      64,
	}
}

// On registers fn for topic. The returned function removes it again and is
// safe to call more than once.
func (c *Channel) On(topic Topic, fn Handler) (cancel func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.handlers[topic] = append(c.handlers[topic], handlerEntry{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		hs := c.handlers[topic]
		for i, h := range hs {
			if h.id == id {
				c.handlers[topic] = append(hs[:i:i], hs[i+1:]...)
				return
			}
		}
	}
}

// Subscribe returns a buffered channel receiving every event on topic.
// The caller must call Unsubscribe when done.
func (c *Channel) Subscribe(topic Topic) chan Event {
	ch := make(chan Event, c.buffer)
	c.mu.Lock()
	if c.subscribers[topic] == nil {
		c.subscribers[topic] = make(map[chan Event]struct{})
	}
	c.subscribers[topic][ch] = struct{}{}
	c.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel
func (c *Channel) Unsubscribe(topic Topic, ch chan Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subscribers[topic][ch]; !ok {
		return
	}
	delete(c.subscribers[topic], ch)
	close(ch)
}

// Publish delivers event to the handlers and subscribers of its topic.
func (c *Channel) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}

	c.mu.RLock()
	hs := make([]handlerEntry, len(c.handlers[event.Topic]))
	copy(hs, c.handlers[event.Topic])
	for ch := range c.subscribers[event.Topic] {
		select {
		case ch <- event:
		default:
			// slow consumer
		}
	}
	c.mu.RUnlock()

	eventsPublished.WithLabelValues(string(event.Topic)).Inc()

	// handlers may publish or unregister themselves
	for _, h := range hs {
		h.fn(event)
	}
}

// Count returns the number of handlers and subscribers listening on topic
func (c *Channel) Count(topic Topic) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handlers[topic]) + len(c.subscribers[topic])
}
