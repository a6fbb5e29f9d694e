// Package scheduler drives automatic scrapes: each channel's configured
// frequency maps to a cron entry that enqueues Scrape jobs.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"recast/internal/jobs"
	"recast/internal/logging"
	"recast/internal/store"
	"recast/internal/workers"
)

// cron specs per scrape frequency.
var frequencySpecs = map[store.ScrapeFrequency]string{
	store.FrequencyHalfHourly: "*/30 * * * *",
	store.FrequencyHourly:     "@hourly",
	store.FrequencyDaily:      "@daily",
}

// Scheduler enqueues scrape jobs on a per-channel cadence. Channels are
// re-read from the store on every tick, so frequency or activity changes
// take effect without a restart.
type Scheduler struct {
	store  *store.Store
	queue  jobs.Queue
	logger *slog.Logger
	cron   *cron.Cron
}

// New constructs a Scheduler.
func New(s *store.Store, queue jobs.Queue, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		store:  s,
		queue:  queue,
		logger: logger.With(logging.String(logging.FieldComponent, "scheduler")),
		cron:   cron.New(),
	}
}

// Start registers the frequency entries and launches the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	for frequency, spec := range frequencySpecs {
		frequency := frequency
		if _, err := s.cron.AddFunc(spec, func() {
			s.dispatch(ctx, frequency)
		}); err != nil {
			return err
		}
	}
	s.cron.Start()
	s.logger.Info("scrape scheduler started")
	return nil
}

// Stop halts the cron runner and waits for running dispatches.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("scrape scheduler stopped")
}

// dispatch enqueues a Scrape job for every active channel at the given
// frequency.
func (s *Scheduler) dispatch(ctx context.Context, frequency store.ScrapeFrequency) {
	channels, err := s.store.ListChannels(ctx, true)
	if err != nil {
		s.logger.Error("failed to list channels", logging.Error(err))
		return
	}
	for _, channel := range channels {
		if channel.ScrapeFrequency != frequency {
			continue
		}
		err := s.queue.Submit(ctx, workers.QueueScrape, workers.ScrapePayload{ChannelID: channel.ID}, jobs.SubmitOptions{})
		if err != nil {
			s.logger.Error("failed to enqueue scheduled scrape",
				logging.String(logging.FieldChannel, channel.Username),
				logging.Error(err))
			continue
		}
		s.logger.Info("scheduled scrape enqueued",
			logging.String(logging.FieldChannel, channel.Username),
			logging.String("frequency", string(frequency)))
	}
}
