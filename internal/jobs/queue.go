package jobs

import (
	"context"
	"time"
)

// Handler processes one job payload. A nil return completes the job; an
// error return is classified for retry by the backend.
type Handler func(ctx context.Context, payload []byte) error

// SubmitOptions tunes retry behavior for a single submission. Zero values
// fall back to the backend defaults.
type SubmitOptions struct {
	MaxAttempts    int
	InitialBackoff time.Duration
}

// Queue is the job execution abstraction shared by all pipeline stages.
// Workers are written against this interface only; whether a job survives a
// process restart depends on the selected backend.
type Queue interface {
	// Submit enqueues a payload on the named queue. Payloads are JSON
	// encoded.
	Submit(ctx context.Context, queue string, payload any, opts SubmitOptions) error
	// RegisterConsumer binds a handler to a queue with a worker pool of the
	// given concurrency. Must be called before Start.
	RegisterConsumer(queue string, handler Handler, concurrency int)
	// Start launches the backend's workers.
	Start(ctx context.Context) error
	// Stop shuts workers down and waits for in-flight jobs.
	Stop()
	// Backend names the active backend, "durable" or "direct".
	Backend() string
}
