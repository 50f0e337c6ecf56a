// Package notifications delivers "became_ready" records from the store's
// outbox to the reader.
//
// The default transport publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when notifications are disabled. The
// Dispatcher drains the outbox on the daemon's cadence, honoring each
// target's reminder mode, and marks records delivered. Delivery failures are
// recorded on the outbox row and retried on the next pass; they never touch
// target state.
package notifications
