package workers

// Queue names, one per pipeline stage.
const (
	QueueScrape    = "scrape"
	QueueAnalyze   = "analyze"
	QueueTranslate = "translate"
	QueueGenerate  = "generate"
	QueuePublish   = "publish"
)

// Queues lists every stage queue in pipeline order.
var Queues = []string{QueueScrape, QueueAnalyze, QueueTranslate, QueueGenerate, QueuePublish}

// ScrapePayload requests a scrape of one channel.
type ScrapePayload struct {
	ChannelID int64 `json:"channel_id"`
}

// AnalyzePayload requests virality scoring and routing of one post.
type AnalyzePayload struct {
	PostID int64 `json:"post_id"`
}

// TranslatePayload requests caption adaptation for one post. RetryCount
// and Feedback carry the quality gate's retry state across attempts.
type TranslatePayload struct {
	PostID     int64  `json:"post_id"`
	RetryCount int64  `json:"retry_count"`
	Feedback   string `json:"feedback,omitempty"`
}

// GeneratePayload requests slide rendering for one translation.
type GeneratePayload struct {
	TranslationID int64 `json:"translation_id"`
	PostID        int64 `json:"post_id"`
}

// PublishPayload requests publication of one publishing job.
type PublishPayload struct {
	PublishingJobID int64 `json:"publishing_job_id"`
}
