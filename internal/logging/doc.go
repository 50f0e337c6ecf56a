// Package logging builds the structured slog loggers used by the CLI and the
// daemon.
//
// New selects a human console handler (colourised when the writer is a
// terminal) or a JSON handler. NewFromConfig additionally tees JSON lines to
// the configured log file through slog-multi. Components derive child
// loggers with NewComponentLogger so every record carries a component key,
// and the Field* constants keep attribute names consistent across packages.
package logging
