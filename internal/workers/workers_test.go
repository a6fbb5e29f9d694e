package workers

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"recast/internal/events"
	"recast/internal/jobs"
	"recast/internal/matcher"
	"recast/internal/publisher"
	"recast/internal/scorer"
	"recast/internal/services/scrapeapi"
	"recast/internal/slides"
	"recast/internal/store"
	"recast/internal/translator"
)

type submission struct {
	Queue   string
	Payload []byte
}

type fakeQueue struct {
	mu          sync.Mutex
	submissions []submission
}

func (q *fakeQueue) Submit(_ context.Context, queue string, payload any, _ jobs.SubmitOptions) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.submissions = append(q.submissions, submission{Queue: queue, Payload: data})
	return nil
}

func (q *fakeQueue) RegisterConsumer(string, jobs.Handler, int) {}
func (q *fakeQueue) Start(context.Context) error                { return nil }
func (q *fakeQueue) Stop()                                      {}
func (q *fakeQueue) Backend() string                            { return "fake" }

func (q *fakeQueue) submitted(queue string) []submission {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []submission
	for _, s := range q.submissions {
		if s.Queue == queue {
			out = append(out, s)
		}
	}
	return out
}

type fakeScraper struct {
	posts []scrapeapi.ScrapedPost
	err   error
}

func (f *fakeScraper) Scrape(context.Context, string) ([]scrapeapi.ScrapedPost, error) {
	return f.posts, f.err
}

type fakeMatcher struct {
	matches []matcher.Match
	err     error
	calls   int
}

func (f *fakeMatcher) Match(context.Context, string, []*store.Destination) ([]matcher.Match, error) {
	f.calls++
	return f.matches, f.err
}

type fakeTranslator struct {
	result      *translator.Result
	err         error
	gotFeedback string
}

func (f *fakeTranslator) Translate(_ context.Context, _ string, feedback string) (*translator.Result, error) {
	f.gotFeedback = feedback
	return f.result, f.err
}

type fakeRenderer struct {
	mu     sync.Mutex
	calls  int
	failOn func(prompt string) bool
}

func (f *fakeRenderer) Render(_ context.Context, prompt string) (*slides.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failOn != nil && f.failOn(prompt) {
		return nil, context.DeadlineExceeded
	}
	return &slides.Image{Data: []byte("png"), MimeType: "image/png"}, nil
}

type fakePublisher struct {
	result   *publisher.Result
	err      error
	calls    int
	gotURLs  []string
	gotCap   string
	gotUser  string
	gotToken string
}

func (f *fakePublisher) PublishCarousel(_ context.Context, userID, accessToken string, imageURLs []string, caption string) (*publisher.Result, error) {
	f.calls++
	f.gotUser = userID
	f.gotToken = accessToken
	f.gotURLs = imageURLs
	f.gotCap = caption
	return f.result, f.err
}

type fixture struct {
	workers    *Workers
	store      *store.Store
	queue      *fakeQueue
	scraper    *fakeScraper
	matcher    *fakeMatcher
	translator *fakeTranslator
	renderer   *fakeRenderer
	publisher  *fakePublisher
	mediaDir   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "recast.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	f := &fixture{
		store:      s,
		queue:      &fakeQueue{},
		scraper:    &fakeScraper{},
		matcher:    &fakeMatcher{},
		translator: &fakeTranslator{},
		renderer:   &fakeRenderer{},
		publisher:  &fakePublisher{},
		mediaDir:   t.TempDir(),
	}
	f.workers = New(Deps{
		Store:         s,
		Queue:         f.queue,
		Hub:           events.NewHub(s, nil),
		Scorer:        scorer.New(s),
		Scraper:       f.scraper,
		Matcher:       f.matcher,
		Translator:    f.translator,
		Renderer:      f.renderer,
		Storage:       slides.NewStorage(f.mediaDir),
		Publisher:     f.publisher,
		PublicBaseURL: "http://recast.test",
	})
	return f
}

func (f *fixture) channel(t *testing.T, username string) *store.Channel {
	t.Helper()
	channel, err := f.store.CreateChannel(context.Background(), store.NewChannelParams{Username: username})
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	return channel
}

func (f *fixture) destination(t *testing.T, name string, autoPublish bool) *store.Destination {
	t.Helper()
	destination, err := f.store.CreateDestination(context.Background(), store.NewDestinationParams{
		Name:           name,
		PlatformUserID: "pu-" + name,
		Handle:         name + "_il",
		AccessToken:    "token-" + name,
		Topic:          "fitness and wellness",
		AutoPublish:    autoPublish,
	})
	if err != nil {
		t.Fatalf("create destination: %v", err)
	}
	return destination
}

func (f *fixture) post(t *testing.T, channelID int64, shortcode, caption string, likes, comments int64) *store.Post {
	t.Helper()
	post, _, err := f.store.InsertPost(context.Background(), store.NewPostParams{
		ChannelID: channelID,
		Shortcode: shortcode,
		Caption:   caption,
		Likes:     likes,
		Comments:  comments,
	})
	if err != nil {
		t.Fatalf("insert post: %v", err)
	}
	return post
}

// seedBaseline inserts enough posts that the channel baseline is usable,
// each with a combined engagement of 100.
func (f *fixture) seedBaseline(t *testing.T, channelID int64, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		f.post(t, channelID, shortcodeFor(channelID, i), "baseline", 90, 10)
	}
}

func shortcodeFor(channelID int64, i int) string {
	return string(rune('A'+channelID)) + "-" + string(rune('a'+i%26)) + string(rune('a'+i/26))
}

func decodePayload[P any](t *testing.T, raw []byte) P {
	t.Helper()
	var payload P
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return payload
}
