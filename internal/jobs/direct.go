package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"recast/internal/logging"
)

// maxDirectDepth bounds synchronous job chaining so a submission cycle
// cannot recurse unboundedly.
const maxDirectDepth = 16

type depthKey struct{}

// Direct executes jobs synchronously in the submitter's goroutine. Handler
// errors are logged and the job is lost; there is no retry and no
// persistence.
type Direct struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewDirect constructs the synchronous backend.
func NewDirect(logger *slog.Logger) *Direct {
	return &Direct{
		handlers: make(map[string]Handler),
		logger:   logging.NewComponentLogger(logger, "jobs"),
	}
}

func (d *Direct) Submit(ctx context.Context, queue string, payload any, _ SubmitOptions) error {
	d.mu.RLock()
	handler, ok := d.handlers[queue]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no consumer registered for queue %q", queue)
	}

	depth, _ := ctx.Value(depthKey{}).(int)
	if depth >= maxDirectDepth {
		return fmt.Errorf("direct dispatch depth %d exceeded on queue %q", maxDirectDepth, queue)
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	if err := handler(context.WithValue(ctx, depthKey{}, depth+1), encoded); err != nil {
		d.logger.Error("job failed",
			logging.String(logging.FieldQueue, queue),
			logging.Error(err),
		)
	}
	return nil
}

func (d *Direct) RegisterConsumer(queue string, handler Handler, _ int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[queue] = handler
}

func (d *Direct) Start(context.Context) error { return nil }

func (d *Direct) Stop() {}

func (d *Direct) Backend() string { return "direct" }
