// Package api implements the HTTP REST API and WebSocket server for the
// CLAGE homeserver service.
//
// This package provides:
//   - REST endpoints to list, add and remove homeservers
//   - Read access to the latest snapshot of each device and its history
//   - The set_temperature service and an explicit refresh
//   - WebSocket hub broadcasting every stored snapshot and command result
//   - The audit trail of commands and config entry changes
//   - Middleware stack (request ID, logging, recovery, CORS, bearer tokens)
//
// # Authorisation
//
// With api.auth.jwt_secret set, every route except /health needs a bearer
// token whose role grants the route's permission: viewer reads, operator
// also sends commands, admin also adds and removes homeservers and reads the
// audit trail. Without a secret the API is open.
//
// # Architecture
//
// The API sits beside MQTT as a second front end to the same core: the
// device registry, the poll coordinator and the command dispatcher. State
// reaches WebSocket clients through a coordinator listener, never by
// polling the store.
//
// # Graceful Degradation
//
// Setup, history and audit are optional. Without them the matching endpoints
// return 503 and everything else keeps working.
package api
