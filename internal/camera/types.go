// Package camera implements the camera multiplexer: per-device capture
// ownership, a dedicated capture/encode worker, the dynamic set of
// subscribers to that device, and registry-level reference counting so the
// worker shuts down exactly when the last subscriber leaves.
package camera

import "fmt"

// DevicePath identifies a capture device at the host level. Two paths are
// equal iff they name the same device.
type DevicePath string

// Fraction is a rational frame interval; frames per second is
// Denominator/Numerator when Numerator == 1, which is how V4L2 reports it.
type Fraction struct {
	Numerator   uint32
	Denominator uint32
}

// FPS returns the frames-per-second value implied by the fraction.
func (f Fraction) FPS() float64 {
	if f.Numerator == 0 {
		return 0
	}
	return float64(f.Denominator) / float64(f.Numerator)
}

func (f Fraction) String() string {
	fps := f.FPS()
	if fps == float64(int64(fps)) {
		return fmt.Sprintf("%d", int64(fps))
	}
	return fmt.Sprintf("%.2f", fps)
}

// CameraMode is an immutable (width, height, frame_interval) triple
// supported by a device.
type CameraMode struct {
	Width         uint32
	Height        uint32
	FrameInterval Fraction
}

// String renders the mode as "{W}x{H} @{fps}fps".
func (m CameraMode) String() string {
	return fmt.Sprintf("%dx%d @%sfps", m.Width, m.Height, m.FrameInterval)
}

// EncodedFrame is one complete encoded video unit for the target codec.
type EncodedFrame struct {
	Data     []byte
	Duration int64 // presentation duration in nanoseconds, informational only
}
