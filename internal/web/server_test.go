package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"recast/internal/events"
	"recast/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store, *events.Hub, string) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "recast.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	mediaDir := t.TempDir()
	hub := events.NewHub(s, nil)
	server := NewServer("127.0.0.1:0", mediaDir, s, hub, nil)
	return server, s, hub, mediaDir
}

func TestHealthEndpointReportsStats(t *testing.T) {
	server, s, _, _ := newTestServer(t)
	if _, err := s.CreateChannel(context.Background(), store.NewChannelParams{Username: "fitness_daily"}); err != nil {
		t.Fatalf("create channel: %v", err)
	}

	recorder := httptest.NewRecorder()
	server.Routes().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	var response healthResponse
	if err := json.NewDecoder(recorder.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Status != "ok" || response.Stats == nil || response.Stats.Channels != 1 {
		t.Fatalf("unexpected response: %+v", response)
	}
}

func TestMediaFilesAreServed(t *testing.T) {
	server, _, _, mediaDir := newTestServer(t)
	if err := os.MkdirAll(filepath.Join(mediaDir, "slides", "1"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(mediaDir, "slides", "1", "slide_1.png"), []byte("png-bytes"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	recorder := httptest.NewRecorder()
	server.Routes().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/media/slides/1/slide_1.png", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if recorder.Body.String() != "png-bytes" {
		t.Fatalf("body = %q", recorder.Body.String())
	}
}

func TestEventStreamDeliversHubEvents(t *testing.T) {
	server, _, hub, _ := newTestServer(t)
	httpServer := httptest.NewServer(server.Routes())
	defer httpServer.Close()

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	// Give the server a moment to register the subscription.
	deadline := time.Now().Add(time.Second)
	for hub.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	hub.Record(context.Background(), events.Event{Type: events.TypePostViral, Message: "post went viral"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received events.Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if received.Type != events.TypePostViral || received.Message != "post went viral" {
		t.Fatalf("unexpected event: %+v", received)
	}
}
