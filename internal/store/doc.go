// Package store persists pipeline entities in SQLite: channels,
// destinations, posts, routing decisions, translations, carousel slides,
// publishing jobs, audit activity, and settings. Status fields follow
// explicit transition tables; illegal transitions are rejected.
package store
