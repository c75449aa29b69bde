package camera

// Reader is the capture contract: a device configured
// into one CameraMode, presenting a blocking Read that yields exactly one
// encoded unit per call.
type Reader interface {
	// Read blocks until one source frame is available, transcodes it to
	// the target codec if necessary, and returns the encoded unit.
	Read() (EncodedFrame, error)
	// Close releases device buffers and the encoder.
	Close() error
}

// MimeTyper is optionally implemented by a Reader to report the WebRTC
// mime type of the codec it produces (e.g. "video/H264" or "video/VP8").
// A Reader that natively passes through the device's H264 bitstream and one
// that decodes-then-VP8-encodes both satisfy camera.Reader identically;
// this is the only place the distinction is visible above internal/capture,
// and only internal/rtcsession needs it (to pick a matching local track
// codec).
type MimeTyper interface {
	MimeType() string
}

// Opener is the mode-discovery and device-opening factory,
// implemented by internal/capture for real V4L2 devices and by fakes in
// tests. The camera package depends only on this interface so it never
// touches device I/O directly.
type Opener interface {
	// Enumerate returns the modes path supports, ordered so that the last
	// entry is the highest-capability mode, which a new worker opens by
	// default. The V4L2 Opener sorts ascending by pixel count then frame
	// rate; it does not keep the device's own enumeration order.
	Enumerate(path DevicePath) ([]CameraMode, error)
	// Open configures path into mode and returns a blocking Reader.
	Open(path DevicePath, mode CameraMode) (Reader, error)
}
