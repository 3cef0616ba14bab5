package setup

import (
	"errors"
	"fmt"
)

// Flow error codes returned to the caller of the config-entry flow.
const (
	CodeAlreadyConfigured   = "already_configured"
	CodeCouldNotConnect     = "could_not_connect"
	CodeHomeserverNotActive = "homeserver_not_active"
	CodeInvalidIP           = "invalid_ip"
	CodeInvalidInput        = "invalid_input"
)

// ErrConfigManaged is returned when removing a device declared in the config
// file. Those devices change only with the file.
var ErrConfigManaged = errors.New("setup: device is managed by the config file")

// FlowError reports which input field failed and why.
type FlowError struct {
	Field string `json:"field"`
	Code  string `json:"code"`
	Err   error  `json:"-"`
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("setup: %s: %s: %v", e.Field, e.Code, e.Err)
	}
	return fmt.Sprintf("setup: %s: %s", e.Field, e.Code)
}

func (e *FlowError) Unwrap() error { return e.Err }

func flowError(field, code string, err error) *FlowError {
	return &FlowError{Field: field, Code: code, Err: err}
}
