package jobs

import (
	"database/sql"
	"log/slog"

	"recast/internal/logging"
)

// Select picks the queue backend. "direct" forces synchronous dispatch;
// "durable" and "auto" prefer the SQLite-backed backend, falling back to
// direct (logged once) when the durable backend cannot initialize.
func Select(backend string, db *sql.DB, opts DurableOptions, logger *slog.Logger) Queue {
	log := logging.NewComponentLogger(logger, "jobs")

	if backend == "direct" {
		log.Info("queue backend selected", logging.String("backend", "direct"))
		return NewDirect(logger)
	}

	durable, err := NewDurable(db, opts, logger)
	if err != nil {
		log.Warn("durable backend unavailable, falling back to direct dispatch",
			logging.Error(err),
		)
		return NewDirect(logger)
	}
	log.Info("queue backend selected", logging.String("backend", "durable"))
	return durable
}
