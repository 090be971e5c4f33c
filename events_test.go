package buildfs

import (
	"testing"
	"time"
)

func TestChannelHandlersRunInOrder(t *testing.T) {
	ch := NewChannel()

	var order []int
	ch.On(TopicActivity, func(Event) { order = append(order, 1) })
	ch.On(TopicActivity, func(Event) { order = append(order, 2) })
	ch.On(TopicVirtualWrite, func(Event) { order = append(order, 3) })

	ch.Publish(Event{Topic: TopicActivity, Path: "/a"})

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("expected [1 2], got %v", order)
	}
}

func TestChannelCancel(t *testing.T) {
	ch := NewChannel()

	calls := 0
	cancel := ch.On(TopicActivity, func(Event) { calls++ })
	ch.Publish(Event{Topic: TopicActivity})
	cancel()
	cancel()
	ch.Publish(Event{Topic: TopicActivity})

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if ch.Count(TopicActivity) != 0 {
		t.Errorf("expected no listeners, got %d", ch.Count(TopicActivity))
	}
}

func TestChannelHandlerMayUnsubscribeItself(t *testing.T) {
	ch := NewChannel()

	calls := 0
	var cancel func()
	cancel = ch.On(TopicActivity, func(Event) {
		calls++
		cancel()
	})

	ch.Publish(Event{Topic: TopicActivity})
	ch.Publish(Event{Topic: TopicActivity})
	if calls != 1 {
		t.Errorf("expected handler to run once, got %d", calls)
	}
}

func TestChannelSubscribe(t *testing.T) {
	ch := NewChannel()
	sub := ch.Subscribe(TopicVirtualWrite)

	ch.Publish(Event{Topic: TopicVirtualWrite, Path: "/a/b.out"})

	select {
	case ev := <-sub:
		if ev.Path != "/a/b.out" {
			t.Errorf("unexpected path %s", ev.Path)
		}
		if ev.Timestamp == 0 {
			t.Error("expected Publish to stamp the event")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	ch.Unsubscribe(TopicVirtualWrite, sub)
	if _, ok := <-sub; ok {
		t.Error("expected subscriber channel to be closed")
	}
	ch.Unsubscribe(TopicVirtualWrite, sub)
}

func TestChannelSlowSubscriberDoesNotBlock(t *testing.T) {
	ch := NewChannel()
	sub := ch.Subscribe(TopicActivity)
	defer ch.Unsubscribe(TopicActivity, sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			ch.Publish(Event{Topic: TopicActivity})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if len(sub) != cap(sub) {
		t.Errorf("expected subscriber buffer to be full, got %d of %d", len(sub), cap(sub))
	}
}
