// Package custody implements the transaction orchestrator for a Safe
// custody account: guard installation and withdrawal via the relay's
// propose, sign and confirm protocol, and direct deposits resolved through
// receipt polling. Flows are journaled, gated by a per-kind state board,
// and deposits are handed to an asynchronous receipt watcher through a
// watch queue.
package custody
