package store

import (
	"fmt"
	"time"
)

// ScrapeFrequency controls how often the scheduler enqueues scrapes for a
// channel.
type ScrapeFrequency string

const (
	FrequencyHalfHourly ScrapeFrequency = "30min"
	FrequencyHourly     ScrapeFrequency = "hourly"
	FrequencyDaily      ScrapeFrequency = "daily"
)

// Valid reports whether the frequency is one of the supported values.
func (f ScrapeFrequency) Valid() bool {
	switch f {
	case FrequencyHalfHourly, FrequencyHourly, FrequencyDaily:
		return true
	}
	return false
}

// Channel is a source account whose posts are scraped and scored.
type Channel struct {
	ID                 int64
	Username           string
	DisplayName        string
	ScrapeFrequency    ScrapeFrequency
	ViralityThreshold  *float64
	LastScrapedAt      *time.Time
	TotalPostsScraped  int64
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Destination is a target account that viral posts can be routed to.
type Destination struct {
	ID              int64
	Name            string
	PlatformUserID  string
	Handle          string
	AccessToken     string
	Topic           string
	BrandColorPrim  string
	BrandColorSec   string
	LogoURL         string
	CTATemplate     string
	AutoPublish     bool
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Post is a scraped post. Likes of -1 means the source hides like counts;
// scoring then falls back to comments only. EngagementRate is nil until the
// post has been analyzed.
type Post struct {
	ID             int64
	ChannelID      int64
	Shortcode      string
	Caption        string
	Likes          int64
	Comments       int64
	DisplayURL     string
	PostedAt       *time.Time
	EngagementRate *float64
	ViralScore     *float64
	IsViral        bool
	CreatedAt      time.Time
}

// RoutingStatus tracks a routing decision through review and publication.
type RoutingStatus string

const (
	RoutingPending   RoutingStatus = "pending"
	RoutingApproved  RoutingStatus = "approved"
	RoutingRejected  RoutingStatus = "rejected"
	RoutingPublished RoutingStatus = "published"
)

var routingTransitions = map[RoutingStatus][]RoutingStatus{
	RoutingPending:   {RoutingApproved, RoutingRejected, RoutingPublished},
	RoutingApproved:  {RoutingRejected, RoutingPublished},
	RoutingRejected:  {RoutingApproved},
	RoutingPublished: {},
}

// CanTransition reports whether a routing decision may move to next.
func (s RoutingStatus) CanTransition(next RoutingStatus) bool {
	for _, allowed := range routingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RoutingDecision links a viral post to a topic-matched destination.
type RoutingDecision struct {
	ID            int64
	PostID        int64
	DestinationID int64
	MatchScore    float64
	MatchReason   string
	Status        RoutingStatus
	UserOverride  bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TranslationStatus tracks caption adaptation progress.
type TranslationStatus string

const (
	TranslationPending     TranslationStatus = "pending"
	TranslationTranslating TranslationStatus = "translating"
	TranslationCompleted   TranslationStatus = "completed"
	TranslationFailed      TranslationStatus = "failed"
)

var translationTransitions = map[TranslationStatus][]TranslationStatus{
	TranslationPending:     {TranslationTranslating},
	TranslationTranslating: {TranslationTranslating, TranslationCompleted, TranslationFailed},
	TranslationCompleted:   {},
	TranslationFailed:      {TranslationTranslating},
}

func (s TranslationStatus) CanTransition(next TranslationStatus) bool {
	for _, allowed := range translationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Translation holds the adapted slide texts for a post. At most one
// translation exists per post.
type Translation struct {
	ID           int64
	PostID       int64
	SlideTexts   []string
	QualityScore *float64
	RetryCount   int64
	Status       TranslationStatus
	Error        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SlideStatus tracks rendering of a single carousel slide.
type SlideStatus string

const (
	SlidePending    SlideStatus = "pending"
	SlideGenerating SlideStatus = "generating"
	SlideCompleted  SlideStatus = "completed"
	SlideFailed     SlideStatus = "failed"
)

var slideTransitions = map[SlideStatus][]SlideStatus{
	SlidePending:    {SlideGenerating},
	SlideGenerating: {SlideGenerating, SlideCompleted, SlideFailed},
	SlideCompleted:  {},
	SlideFailed:     {SlideGenerating},
}

func (s SlideStatus) CanTransition(next SlideStatus) bool {
	for _, allowed := range slideTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CarouselSlide is one rendered image of a carousel. DestinationID nil marks
// a content slide shared by all destinations; a non-nil value marks that
// destination's call-to-action slide.
type CarouselSlide struct {
	ID            int64
	TranslationID int64
	Position      int64
	DestinationID *int64
	SlideText     string
	ImagePath     string
	Status        SlideStatus
	Attempts      int64
	Error         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PublishingStatus tracks a publishing job through the container protocol.
type PublishingStatus string

const (
	PublishingQueued            PublishingStatus = "queued"
	PublishingCreating          PublishingStatus = "creating_containers"
	PublishingPublished         PublishingStatus = "published"
	PublishingFailed            PublishingStatus = "failed"
	PublishingAwaitingApproval  PublishingStatus = "awaiting_approval"
)

// Re-entry into creating_containers covers automatic retries (from failed)
// and re-dispatch of an attempt a crashed process left in flight.
var publishingTransitions = map[PublishingStatus][]PublishingStatus{
	PublishingQueued:           {PublishingCreating, PublishingAwaitingApproval},
	PublishingCreating:         {PublishingCreating, PublishingPublished, PublishingFailed},
	PublishingAwaitingApproval: {PublishingQueued},
	PublishingFailed:           {PublishingQueued, PublishingCreating},
	PublishingPublished:        {},
}

func (s PublishingStatus) CanTransition(next PublishingStatus) bool {
	for _, allowed := range publishingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PublishingJob drives the multi-step container publication for one routing
// decision. At most one live job exists per decision.
type PublishingJob struct {
	ID                  int64
	RoutingDecisionID   int64
	Status              PublishingStatus
	Attempts            int64
	ContainerIDs        []string
	CarouselContainerID string
	PublishedMediaID    string
	Error               string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Activity is one audit event row.
type Activity struct {
	ID         int64
	EventType  string
	Message    string
	EntityType string
	EntityID   *int64
	Metadata   string
	CreatedAt  time.Time
}

// ErrInvalidTransition is returned when a status change violates an entity's
// state machine.
type ErrInvalidTransition struct {
	Entity string
	From   string
	To     string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("%s: invalid transition %s -> %s", e.Entity, e.From, e.To)
}
