package logging

// Standardized attribute keys used across the pipeline.
const (
	FieldComponent     = "component"
	FieldQueue         = "queue"
	FieldJobID         = "job_id"
	FieldChannel       = "channel"
	FieldChannelID     = "channel_id"
	FieldDestination   = "destination"
	FieldDestinationID = "destination_id"
	FieldPostID        = "post_id"
	FieldDecisionID    = "decision_id"
	FieldTranslationID = "translation_id"
	FieldPublishingID  = "publishing_id"
	FieldSlideNumber   = "slide_number"
	FieldAttempt       = "attempt"
	FieldScore         = "score"
)
