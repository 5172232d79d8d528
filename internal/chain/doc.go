// Package chain houses blockchain connectivity for the custody flows: a
// JSON-RPC client for EVM compatible networks, a registry keyed by chain
// name loaded from a YAML definitions file, and the receipt poller that
// resolves submitted transactions to a mined outcome.
package chain
