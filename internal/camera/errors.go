package camera

import (
	"errors"
	"fmt"
)

// Error taxonomy. These are sentinels: callers use
// errors.Is against them; concrete errors returned by the package wrap one
// of these with fmt.Errorf("...: %w", ...).
var (
	// ErrDevice indicates opening, configuring, or enumerating a device
	// failed. Fatal to the worker attempt that hit it.
	ErrDevice = errors.New("camera: device error")

	// ErrRead indicates capture or encode failed mid-stream. Fatal to the
	// worker: the device is considered lost and every subscriber is closed.
	ErrRead = errors.New("camera: read error")

	// ErrUnknownPath indicates a mode change was requested for a path with
	// no running worker. A Subscribe whose device cannot be enumerated or
	// opened wraps ErrDevice instead.
	ErrUnknownPath = errors.New("camera: unknown device path")

	// ErrInvalidModeIndex indicates SetMode was called with an index
	// outside the worker's mode catalog.
	ErrInvalidModeIndex = errors.New("camera: invalid mode index")
)

// errNoModes reports that an opener enumerated zero usable modes for path.
func errNoModes(path DevicePath) error {
	return fmt.Errorf("%w: %s exposes no supported modes", ErrDevice, path)
}
