// Command shelfmind is the reader readiness CLI. It opens the store
// directly; the shelfmindd daemon only drives the periodic ticks.
//
// Every command prints a table by default; --output json or --output yaml
// render the same data for scripts.
package main
