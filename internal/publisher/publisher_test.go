package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"recast/internal/services"
)

type fakePlatform struct {
	mu           sync.Mutex
	nextID       int
	pollsNeeded  int
	polls        map[string]int
	failChildren bool
	childURLs    []string
	caption      string
	children     string
	publishedID  string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{polls: make(map[string]int)}
}

func (f *fakePlatform) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		query := r.URL.Query()
		switch {
		case strings.HasSuffix(r.URL.Path, "/media") && r.Method == http.MethodPost:
			if query.Get("access_token") == "" {
				t.Error("missing access token")
			}
			if f.failChildren && query.Get("is_carousel_item") == "true" {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":"bad image"}`)
				return
			}
			f.nextID++
			id := fmt.Sprintf("c%d", f.nextID)
			if query.Get("is_carousel_item") == "true" {
				f.childURLs = append(f.childURLs, query.Get("image_url"))
			} else {
				f.caption = query.Get("caption")
				f.children = query.Get("children")
				if query.Get("media_type") != "CAROUSEL" {
					t.Errorf("parent media_type = %q", query.Get("media_type"))
				}
			}
			json.NewEncoder(w).Encode(map[string]string{"id": id})
		case strings.HasSuffix(r.URL.Path, "/media_publish") && r.Method == http.MethodPost:
			f.publishedID = "media-1"
			json.NewEncoder(w).Encode(map[string]string{"id": "media-1", "creation": query.Get("creation_id")})
		case query.Get("fields") == "status_code":
			id := strings.TrimPrefix(r.URL.Path, "/")
			f.polls[id]++
			status := StatusFinished
			if f.polls[id] <= f.pollsNeeded {
				status = StatusInProgress
			}
			json.NewEncoder(w).Encode(map[string]string{"status_code": status})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newTestClient(t *testing.T, platform *fakePlatform) *Client {
	t.Helper()
	server := httptest.NewServer(platform.handler(t))
	t.Cleanup(server.Close)
	return NewClient(Config{
		BaseURL:      server.URL,
		PollInterval: time.Millisecond,
		PollTimeout:  200 * time.Millisecond,
	})
}

func TestPublishCarouselFullFlow(t *testing.T) {
	platform := newFakePlatform()
	platform.pollsNeeded = 1
	client := newTestClient(t, platform)

	result, err := client.PublishCarousel(context.Background(), "user-1", "token",
		[]string{"http://cdn/a.png", "http://cdn/b.png", "http://cdn/c.png"}, "caption text")
	if err != nil {
		t.Fatalf("publish carousel: %v", err)
	}
	if len(result.ChildContainerIDs) != 3 {
		t.Fatalf("expected 3 children, got %v", result.ChildContainerIDs)
	}
	if result.ParentContainerID != "c4" || result.PublishedMediaID != "media-1" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if platform.children != strings.Join(result.ChildContainerIDs, ",") {
		t.Fatalf("parent children = %q", platform.children)
	}
	if platform.caption != "caption text" {
		t.Fatalf("caption = %q", platform.caption)
	}
	if len(platform.childURLs) != 3 || platform.childURLs[0] != "http://cdn/a.png" {
		t.Fatalf("child urls = %v", platform.childURLs)
	}
}

func TestPublishCarouselImageBounds(t *testing.T) {
	platform := newFakePlatform()
	client := newTestClient(t, platform)

	_, err := client.PublishCarousel(context.Background(), "u", "t", []string{"only-one"}, "c")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	eleven := make([]string, 11)
	for i := range eleven {
		eleven[i] = fmt.Sprintf("http://cdn/%d.png", i)
	}
	_, err = client.PublishCarousel(context.Background(), "u", "t", eleven, "c")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if platform.nextID != 0 {
		t.Fatalf("no platform calls expected, saw %d", platform.nextID)
	}
}

func TestPublishCarouselAbortsOnChildFailure(t *testing.T) {
	platform := newFakePlatform()
	platform.failChildren = true
	client := newTestClient(t, platform)

	_, err := client.PublishCarousel(context.Background(), "u", "t",
		[]string{"http://cdn/a.png", "http://cdn/b.png"}, "c")
	if !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
	if platform.publishedID != "" {
		t.Fatal("publish must not run after a child failure")
	}
}

func TestWaitForContainerTerminalStatuses(t *testing.T) {
	for _, status := range []string{StatusError, StatusExpired} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"status_code": status})
		}))
		client := NewClient(Config{BaseURL: server.URL, PollInterval: time.Millisecond, PollTimeout: 100 * time.Millisecond})
		err := client.WaitForContainer(context.Background(), "c1", "token")
		server.Close()
		if !errors.Is(err, services.ErrExternalService) {
			t.Fatalf("status %s: expected external service error, got %v", status, err)
		}
	}
}

func TestWaitForContainerTimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status_code": StatusInProgress})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, PollInterval: time.Millisecond, PollTimeout: 20 * time.Millisecond})
	err := client.WaitForContainer(context.Background(), "c1", "token")
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}
