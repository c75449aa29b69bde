//go:build !linux

// Package capture implements device capture and mode discovery. V4L2 is
// Linux-only; other platforms get an Opener that always reports
// ErrNotSupported so the rest of the module still builds and its tests
// (which inject a fake camera.Opener) still run.
package capture

import "github.com/petervdpas/goop2/internal/camera"

// Opener is the non-Linux stand-in for the V4L2-backed Opener.
type Opener struct{}

// NewOpener returns an Opener that rejects every device on this platform.
// Arguments are accepted and ignored to keep the constructor signature
// identical across build targets.
func NewOpener(bufferCount uint32, vp8BitRateBps int) *Opener { return &Opener{} }

func (o *Opener) Enumerate(path camera.DevicePath) ([]camera.CameraMode, error) {
	return nil, ErrNotSupported
}

func (o *Opener) Open(path camera.DevicePath, mode camera.CameraMode) (camera.Reader, error) {
	return nil, ErrNotSupported
}
