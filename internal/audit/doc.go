// Package audit keeps a persistent trail of changes made to the heaters:
// every set_temperature command, accepted or rejected, and every homeserver
// entry added or removed at runtime.
//
// Entries record the surface the change came through (api or mqtt) and,
// when API auth is enabled, the token subject that made it.
package audit
