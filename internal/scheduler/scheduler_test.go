package scheduler

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"recast/internal/jobs"
	"recast/internal/store"
	"recast/internal/workers"
)

type recordingQueue struct {
	mu       sync.Mutex
	payloads []workers.ScrapePayload
}

func (q *recordingQueue) Submit(_ context.Context, queue string, payload any, _ jobs.SubmitOptions) error {
	if queue != workers.QueueScrape {
		return nil
	}
	data, _ := json.Marshal(payload)
	var decoded workers.ScrapePayload
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.payloads = append(q.payloads, decoded)
	return nil
}

func (q *recordingQueue) RegisterConsumer(string, jobs.Handler, int) {}
func (q *recordingQueue) Start(context.Context) error                { return nil }
func (q *recordingQueue) Stop()                                      {}
func (q *recordingQueue) Backend() string                            { return "fake" }

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "recast.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDispatchMatchesFrequencyAndActivity(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	hourly, err := s.CreateChannel(ctx, store.NewChannelParams{Username: "hourly_channel", ScrapeFrequency: store.FrequencyHourly})
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	if _, err := s.CreateChannel(ctx, store.NewChannelParams{Username: "daily_channel", ScrapeFrequency: store.FrequencyDaily}); err != nil {
		t.Fatalf("create channel: %v", err)
	}
	inactive, err := s.CreateChannel(ctx, store.NewChannelParams{Username: "inactive_channel", ScrapeFrequency: store.FrequencyHourly})
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	if err := s.SetChannelActive(ctx, inactive.ID, false); err != nil {
		t.Fatalf("deactivate channel: %v", err)
	}

	queue := &recordingQueue{}
	scheduler := New(s, queue, nil)
	scheduler.dispatch(ctx, store.FrequencyHourly)

	if len(queue.payloads) != 1 {
		t.Fatalf("expected 1 scrape job, got %d", len(queue.payloads))
	}
	if queue.payloads[0].ChannelID != hourly.ID {
		t.Fatalf("wrong channel enqueued: %+v", queue.payloads[0])
	}
}

func TestStartRegistersAllFrequencies(t *testing.T) {
	s := openStore(t)
	scheduler := New(s, &recordingQueue{}, nil)
	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := len(scheduler.cron.Entries()); got != len(frequencySpecs) {
		t.Fatalf("expected %d cron entries, got %d", len(frequencySpecs), got)
	}
	scheduler.Stop()
}
