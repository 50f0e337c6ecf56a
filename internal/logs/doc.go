// Package logs reads the JSON log file written when logging.file is enabled.
//
// Entries are parsed from the handler's line format (ts, level, msg plus
// flat attributes) and filtered by component, minimum level and event type.
// Follow polls for appended lines and starts over when the file is
// truncated.
package logs
