package homeserver

import (
	"errors"
	"fmt"
)

// Failure classes for device requests.
//
// Callers match them with errors.Is:
//
//	if errors.Is(err, homeserver.ErrConnection) {
//	    // device unreachable, retry on next tick
//	}
var (
	// ErrConnection is returned when the homeserver cannot be reached, the
	// request times out, or the server answers with a non-2xx status.
	ErrConnection = errors.New("homeserver: connection failed")

	// ErrMalformedResponse is returned when the response body cannot be
	// decoded. It wraps ErrConnection so both are handled alike.
	ErrMalformedResponse = fmt.Errorf("%w: malformed response", ErrConnection)

	// ErrDeviceReportedFailure is returned when the homeserver answered but
	// flagged the request as unsuccessful, or did not report the heater.
	ErrDeviceReportedFailure = errors.New("homeserver: device reported failure")
)
