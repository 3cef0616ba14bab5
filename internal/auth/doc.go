// Package auth provides bearer-token authorisation for the HTTP API.
//
// Tokens are HS256-signed JWTs minted offline with the shared secret from
// the config file (see "clagehs token"). They carry a role, and each role
// maps to a fixed set of permissions:
//
//   - viewer:   read state, history and sensor metadata
//   - operator: viewer plus set_temperature and refresh
//   - admin:    operator plus adding and removing homeservers
//
// Validation is by signature and expiry only; there is no token store, so
// rotating the secret revokes every issued token.
package auth
