// Package config loads, normalizes, and validates shelfmind configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SHELFMIND_NTFY_TOPIC. Every engine constant (profile weighting, scorer
// weights and thresholds, checkpoint interval, decay defaults, plan bounds,
// SM-2 parameters) lives here so tests and operators tune one structure.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, canonical enum values, and clear validation errors.
package config
