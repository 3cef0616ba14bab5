package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID is not registered.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when adding a device whose ID is taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrAddressExists is returned when persisting an entry whose IP address
	// is already configured.
	ErrAddressExists = errors.New("device: address already configured")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidAddress is returned when the address is not an IP address.
	ErrInvalidAddress = errors.New("device: invalid address")

	// ErrInvalidSlug is returned when an ID is not a valid slug.
	ErrInvalidSlug = errors.New("device: invalid slug")
)
