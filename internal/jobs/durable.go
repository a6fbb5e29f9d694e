package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"recast/internal/logging"
	"recast/internal/services"
)

const durableSchema = `
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    queue TEXT NOT NULL,
    payload TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    attempts INTEGER NOT NULL DEFAULT 0,
    max_attempts INTEGER NOT NULL,
    backoff_seconds INTEGER NOT NULL,
    next_run_at TEXT NOT NULL,
    last_error TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(queue, status, next_run_at);
`

// DurableOptions tunes the durable backend.
type DurableOptions struct {
	PollInterval       time.Duration
	ErrorRetryInterval time.Duration
	MaxAttempts        int
	InitialBackoff     time.Duration
}

func (o *DurableOptions) normalize() {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.ErrorRetryInterval <= 0 {
		o.ErrorRetryInterval = 10 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 5 * time.Second
	}
}

type consumer struct {
	handler     Handler
	concurrency int
}

// Durable persists jobs in SQLite and executes them on per-queue worker
// pools. Jobs survive a process restart: rows left running by a previous
// process return to pending at startup.
type Durable struct {
	db      *sql.DB
	opts    DurableOptions
	logger  *slog.Logger
	mu      sync.Mutex
	queues  map[string]consumer
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewDurable constructs the durable backend on an open database connection
// and ensures the jobs table exists.
func NewDurable(db *sql.DB, opts DurableOptions, logger *slog.Logger) (*Durable, error) {
	if db == nil {
		return nil, errors.New("durable backend requires a database")
	}
	opts.normalize()
	if _, err := db.Exec(durableSchema); err != nil {
		return nil, fmt.Errorf("ensure jobs table: %w", err)
	}
	return &Durable{
		db:     db,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "jobs"),
		queues: make(map[string]consumer),
	}, nil
}

func (d *Durable) Submit(ctx context.Context, queue string, payload any, opts SubmitOptions) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = d.opts.MaxAttempts
	}
	backoff := opts.InitialBackoff
	if backoff <= 0 {
		backoff = d.opts.InitialBackoff
	}

	ts := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO jobs (id, queue, payload, status, max_attempts, backoff_seconds, next_run_at, created_at, updated_at)
         VALUES (?, ?, ?, 'pending', ?, ?, ?, ?, ?)`,
		uuid.NewString(), queue, string(encoded), maxAttempts, int(backoff/time.Second), ts, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (d *Durable) RegisterConsumer(queue string, handler Handler, concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queues[queue] = consumer{handler: handler, concurrency: concurrency}
}

// Start reclaims orphaned running jobs and launches the worker pools.
func (d *Durable) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return errors.New("durable backend already started")
	}

	reclaimed, err := d.reclaimOrphans(ctx)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		d.logger.Info("reclaimed orphaned jobs", logging.Int64("count", reclaimed))
	}

	runCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	for queue, c := range d.queues {
		for i := 0; i < c.concurrency; i++ {
			d.wg.Add(1)
			go d.worker(runCtx, queue, c.handler)
		}
	}
	d.started = true
	return nil
}

func (d *Durable) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.started = false
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}

func (d *Durable) Backend() string { return "durable" }

func (d *Durable) reclaimOrphans(ctx context.Context) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'pending', updated_at = ? WHERE status = 'running'`,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim running jobs: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

func (d *Durable) worker(ctx context.Context, queue string, handler Handler) {
	defer d.wg.Done()
	for {
		job, err := d.claim(ctx, queue)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Error("claim failed",
				logging.String(logging.FieldQueue, queue),
				logging.Error(err),
			)
			if !sleepCtx(ctx, d.opts.ErrorRetryInterval) {
				return
			}
			continue
		}
		if job == nil {
			if !sleepCtx(ctx, d.opts.PollInterval) {
				return
			}
			continue
		}
		d.run(ctx, queue, handler, job)
	}
}

type claimedJob struct {
	id             string
	payload        []byte
	attempts       int
	maxAttempts    int
	backoffSeconds int
}

func (d *Durable) claim(ctx context.Context, queue string) (*claimedJob, error) {
	nowStr := time.Now().UTC().Format(time.RFC3339Nano)
	row := d.db.QueryRowContext(ctx,
		`SELECT id, payload, attempts, max_attempts, backoff_seconds FROM jobs
         WHERE queue = ? AND status = 'pending' AND next_run_at <= ?
         ORDER BY next_run_at LIMIT 1`,
		queue, nowStr,
	)
	var job claimedJob
	var payload string
	err := row.Scan(&job.id, &payload, &job.attempts, &job.maxAttempts, &job.backoffSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select pending job: %w", err)
	}
	job.payload = []byte(payload)

	res, err := d.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`,
		nowStr, job.id,
	)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Lost the race to a sibling worker.
		return nil, nil
	}
	return &job, nil
}

func (d *Durable) run(ctx context.Context, queue string, handler Handler, job *claimedJob) {
	err := handler(ctx, job.payload)
	if err == nil {
		d.finish(queue, job.id, "completed", "", nil)
		return
	}

	attempts := job.attempts + 1
	if !services.Retryable(err) || attempts >= job.maxAttempts {
		d.logger.Error("job failed permanently",
			logging.String(logging.FieldQueue, queue),
			logging.String(logging.FieldJobID, job.id),
			logging.Int(logging.FieldAttempt, attempts),
			logging.Error(err),
		)
		d.finish(queue, job.id, "failed", err.Error(), &attempts)
		return
	}

	delay := time.Duration(job.backoffSeconds) * time.Second * time.Duration(math.Pow(2, float64(attempts-1)))
	nextRun := time.Now().Add(delay)
	d.logger.Warn("job failed, retry scheduled",
		logging.String(logging.FieldQueue, queue),
		logging.String(logging.FieldJobID, job.id),
		logging.Int(logging.FieldAttempt, attempts),
		logging.Duration("backoff", delay),
		logging.Error(err),
	)
	d.reschedule(queue, job.id, attempts, err.Error(), nextRun)
}

func (d *Durable) finish(queue, id, status, lastError string, attempts *int) {
	nowStr := time.Now().UTC().Format(time.RFC3339Nano)
	var err error
	if attempts != nil {
		_, err = d.db.Exec(
			`UPDATE jobs SET status = ?, last_error = ?, attempts = ?, updated_at = ? WHERE id = ?`,
			status, lastError, *attempts, nowStr, id,
		)
	} else {
		_, err = d.db.Exec(
			`UPDATE jobs SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			status, lastError, nowStr, id,
		)
	}
	if err != nil {
		d.logger.Error("finish job",
			logging.String(logging.FieldQueue, queue),
			logging.String(logging.FieldJobID, id),
			logging.Error(err),
		)
	}
}

func (d *Durable) reschedule(queue, id string, attempts int, lastError string, nextRun time.Time) {
	_, err := d.db.Exec(
		`UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, next_run_at = ?, updated_at = ? WHERE id = ?`,
		attempts, lastError, nextRun.UTC().Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		d.logger.Error("reschedule job",
			logging.String(logging.FieldQueue, queue),
			logging.String(logging.FieldJobID, id),
			logging.Error(err),
		)
	}
}

// QueueStats counts durable jobs per status for a queue. An empty queue name
// aggregates across all queues.
func (d *Durable) QueueStats(ctx context.Context, queue string) (map[string]int64, error) {
	query := `SELECT status, COUNT(1) FROM jobs GROUP BY status`
	args := []any{}
	if queue != "" {
		query = `SELECT status, COUNT(1) FROM jobs WHERE queue = ? GROUP BY status`
		args = append(args, queue)
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int64)
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan queue stats: %w", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
