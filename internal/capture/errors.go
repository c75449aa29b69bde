package capture

import "errors"

// ErrNotSupported is returned by the non-Linux build of this package: V4L2
// capture is a Linux-only facility.
var ErrNotSupported = errors.New("capture: v4l2 capture is only supported on linux")
