// Package api exposes the REST surface of the custody console: endpoints to
// launch guard, withdrawal and deposit flows, inspect the flow journal and
// live state board, and read the wallet overview. It also serves the metrics
// exposition endpoint.
package api
