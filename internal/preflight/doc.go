// Package preflight provides health checks for the filesystem paths, the
// database and the external services shelfmind is configured to use.
//
// `shelfmind doctor` runs them all. Each service check is gated by its config
// section; a service that is not configured is reported as skipped and
// counts as passed.
package preflight
