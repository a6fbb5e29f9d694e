// Package logging provides slog construction with console and JSON
// handlers plus standardized attribute keys for pipeline components.
package logging
