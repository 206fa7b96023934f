package event_manager

import (
	"context"
	"testing"
	"time"
)

func TestPublishReachesMatchingSubscriber(t *testing.T) {
	em := NewEventManager(context.Background(), 10)
	defer em.Shutdown()

	sub := em.Subscribe([]EventType{EventTypeGameNew}, 10)
	other := em.Subscribe([]EventType{EventTypeGameRemoved}, 10)

	em.Publish(EventTypeGameNew, map[string]string{"key": "203.0.113.7:5000"})

	select {
	case e := <-sub.Channel:
		if e.Type != EventTypeGameNew {
			t.Errorf("type = %s, want game_new", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	select {
	case e := <-other.Channel:
		t.Fatalf("filtered subscriber received %s", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWildcardSubscriber(t *testing.T) {
	em := NewEventManager(context.Background(), 10)
	defer em.Shutdown()

	sub := em.Subscribe(nil, 10)
	em.Publish(EventTypeGameSummary, nil)

	select {
	case e := <-sub.Channel:
		if e.Type != EventTypeGameSummary {
			t.Errorf("type = %s", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("wildcard subscriber did not receive event")
	}
}

func TestFullSubscriberChannelDropsNotBlocks(t *testing.T) {
	em := NewEventManager(context.Background(), 100)
	defer em.Shutdown()

	em.Subscribe([]EventType{EventTypeAll}, 1) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			em.Publish(EventTypeGameUpdate, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}
