package command

import "errors"

// Command errors. Neither affects the coordinator; each aborts only the
// command it was returned for.
var (
	// ErrUnknownDevice is returned when a command targets an unregistered id.
	// No device is called.
	ErrUnknownDevice = errors.New("command: unknown device")

	// ErrInvalidCommandValue is returned when the temperature input cannot
	// be resolved to a number. No device is called.
	ErrInvalidCommandValue = errors.New("command: invalid temperature value")
)
