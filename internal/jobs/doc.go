// Package jobs provides the job queue abstraction for the pipeline: a
// durable SQLite-backed backend with per-queue worker pools and exponential
// retry backoff, and a synchronous direct backend for environments without
// durable storage.
package jobs
