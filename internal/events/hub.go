// Package events is the audit sink: every notable pipeline transition is
// appended to the activity log and fanned out to live subscribers.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"recast/internal/logging"
	"recast/internal/store"
)

// Event types recorded by the pipeline.
const (
	TypeChannelScraped       = "channel_scraped"
	TypePostViral            = "post_viral"
	TypePostRouted           = "post_routed"
	TypeTranslationRetry     = "translation_retry"
	TypeTranslationCompleted = "translation_completed"
	TypeTranslationFailed    = "translation_failed"
	TypeSlideFailed          = "slide_failed"
	TypeSlidesCompleted      = "slides_completed"
	TypePublishQueued        = "publish_queued"
	TypePublishAwaiting      = "publish_awaiting_approval"
	TypePublishCompleted     = "publish_completed"
	TypePublishFailed        = "publish_failed"
)

// subscriberBuffer bounds each subscriber channel. A subscriber that
// falls behind loses events; there is no replay.
const subscriberBuffer = 64

// Event is one audit record.
type Event struct {
	Type       string    `json:"type"`
	Message    string    `json:"message"`
	EntityType string    `json:"entity_type,omitempty"`
	EntityID   *int64    `json:"entity_id,omitempty"`
	Metadata   string    `json:"metadata,omitempty"`
	At         time.Time `json:"at"`
}

// Hub persists events and fans them out to subscribers.
type Hub struct {
	store  *store.Store
	logger *slog.Logger

	mu          sync.Mutex
	subscribers map[int]chan Event
	nextID      int
}

// NewHub constructs a Hub backed by the given store.
func NewHub(s *store.Store, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hub{
		store:       s,
		logger:      logger.With(logging.String(logging.FieldComponent, "events")),
		subscribers: make(map[int]chan Event),
	}
}

// Record appends an activity row and notifies subscribers. It never
// returns an error: audit persistence failures are logged and the event
// still reaches live subscribers.
func (h *Hub) Record(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	if h.store != nil {
		if _, err := h.store.AppendActivity(ctx, event.Type, event.Message, event.EntityType, event.EntityID, event.Metadata); err != nil {
			h.logger.Warn("failed to persist activity event",
				logging.String("event_type", event.Type),
				logging.Error(err))
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a live event consumer. The returned cancel func
// removes the subscription and closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	ch := make(chan Event, subscriberBuffer)
	h.subscribers[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// SubscriberCount reports the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
