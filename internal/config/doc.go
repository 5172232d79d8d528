// Package config loads the daemon configuration from a single JSON file and
// fills in sensible defaults for every subsystem: API server, identity
// provider, transaction relay, signing provider, chain access, receipt
// watcher, flow journal, watch queue, logging and alerting.
package config
