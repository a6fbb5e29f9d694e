package events

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"recast/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "recast.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordPersistsAndFansOut(t *testing.T) {
	s := openStore(t)
	hub := NewHub(s, nil)

	ch, cancel := hub.Subscribe()
	defer cancel()

	postID := int64(42)
	hub.Record(context.Background(), Event{
		Type:       TypePostViral,
		Message:    "post went viral",
		EntityType: "post",
		EntityID:   &postID,
	})

	select {
	case event := <-ch:
		if event.Type != TypePostViral || event.Message != "post went viral" {
			t.Fatalf("unexpected event: %+v", event)
		}
		if event.At.IsZero() {
			t.Fatal("event timestamp not set")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received event")
	}

	activities, err := s.RecentActivity(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent activity: %v", err)
	}
	if len(activities) != 1 || activities[0].EventType != TypePostViral {
		t.Fatalf("unexpected activity rows: %+v", activities)
	}
	if activities[0].EntityID == nil || *activities[0].EntityID != postID {
		t.Fatalf("entity id not persisted: %+v", activities[0])
	}
}

func TestRecordDropsWhenSubscriberFull(t *testing.T) {
	hub := NewHub(nil, nil)
	ch, cancel := hub.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		hub.Record(context.Background(), Event{Type: TypePublishQueued, Message: "tick"})
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			if received != subscriberBuffer {
				t.Fatalf("expected %d buffered events, got %d", subscriberBuffer, received)
			}
			return
		}
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	hub := NewHub(nil, nil)
	ch, cancel := hub.Subscribe()
	if hub.SubscriberCount() != 1 {
		t.Fatalf("subscriber count = %d", hub.SubscriberCount())
	}
	cancel()
	cancel()
	if hub.SubscriberCount() != 0 {
		t.Fatalf("subscriber count after cancel = %d", hub.SubscriberCount())
	}
	if _, open := <-ch; open {
		t.Fatal("channel should be closed")
	}

	// Recording with no store and no subscribers must not panic.
	hub.Record(context.Background(), Event{Type: TypeChannelScraped, Message: "noop"})
}
