package ws

import (
	"testing"
	"time"

	"github.com/charlalabs/charla/internal/domain"
)

func TestHubDeliversToSessionSubscribers(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	ch1, cancel1 := hub.Subscribe("sess-1", "user-1")
	defer cancel1()
	ch2, cancel2 := hub.Subscribe("sess-2", "user-2")
	defer cancel2()

	msg := &domain.Message{ID: "m1", SessionID: "sess-1", Sender: domain.SenderBot, Content: "hola"}
	hub.Publish("sess-1", msg)

	select {
	case got := <-ch1:
		if got.ID != "m1" {
			t.Fatalf("unexpected message: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive message")
	}

	select {
	case got := <-ch2:
		t.Fatalf("message leaked across sessions: %+v", got)
	default:
	}
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	ch, cancel := hub.Subscribe("sess-1", "user-1")
	defer cancel()

	// Fill the buffer without draining, then publish once more.
	for i := 0; i <= subscriberBuffer; i++ {
		hub.Publish("sess-1", &domain.Message{ID: "m", SessionID: "sess-1"})
	}

	if n := hub.SubscriberCount("sess-1"); n != 0 {
		t.Fatalf("expected slow subscriber to be dropped, count=%d", n)
	}

	// The channel is closed after the drop; draining must terminate.
	for range ch {
	}
}

func TestHubCancelIsIdempotent(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	_, cancel := hub.Subscribe("sess-1", "user-1")
	cancel()
	cancel()

	if n := hub.SubscriberCount("sess-1"); n != 0 {
		t.Fatalf("expected no subscribers after cancel, count=%d", n)
	}

	// Publishing to a session with no subscribers is a no-op.
	hub.Publish("sess-1", &domain.Message{ID: "m1"})
}
