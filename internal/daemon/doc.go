// Package daemon drives the periodic work of the long-running shelfmind
// process.
//
// A Daemon holds a flock-based single-instance lock and polls on a fixed
// interval. Each poll runs the readiness tick once the configured hour has
// passed, applies decay rules at their own hour and drains the notification
// outbox. Scheduling reads the injected clock so tests can step through days
// without sleeping.
package daemon
