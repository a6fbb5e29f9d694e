// Package config loads, validates, and normalizes Recast configuration
// from TOML files with sensible defaults for every section.
package config
