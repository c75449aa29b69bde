//go:build linux

package capture

import (
	"errors"
	"fmt"
	"image"

	"github.com/blackjack/webcam"
	"github.com/pion/mediadevices/pkg/codec"
	"github.com/pion/mediadevices/pkg/frame"

	"github.com/petervdpas/goop2/internal/camera"
)

// readTimeoutSec bounds a single WaitForFrame call. maxConsecutiveTimeouts
// turns a stalled device into a read error instead of a permanently
// blocked worker.
const (
	readTimeoutSec         = 2
	maxConsecutiveTimeouts = 5
)

// waitAndRead blocks for the next raw frame from cam, retrying on
// WaitForFrame timeouts up to maxConsecutiveTimeouts before giving up.
func waitAndRead(cam *webcam.Webcam, path camera.DevicePath) ([]byte, error) {
	for i := 0; i < maxConsecutiveTimeouts; i++ {
		err := cam.WaitForFrame(readTimeoutSec)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			return nil, fmt.Errorf("%s: wait for frame: %w", path, err)
		}

		buf, err := cam.ReadFrame()
		if err != nil {
			return nil, fmt.Errorf("%s: read frame: %w", path, err)
		}
		if len(buf) == 0 {
			continue
		}
		// Copy out of the mmap'd buffer: it is only valid until the next
		// ReadFrame/StopStreaming call.
		out := make([]byte, len(buf))
		copy(out, buf)
		return out, nil
	}
	return nil, fmt.Errorf("%s: %w", path, errReadTimeout)
}

var errReadTimeout = errors.New("too many consecutive read timeouts")

// nativeReader is used when the device can produce H264 directly: no
// decode or re-encode step.
type nativeReader struct {
	cam  *webcam.Webcam
	path camera.DevicePath
}

func (r *nativeReader) Read() (camera.EncodedFrame, error) {
	buf, err := waitAndRead(r.cam, r.path)
	if err != nil {
		return camera.EncodedFrame{}, err
	}
	return camera.EncodedFrame{Data: buf}, nil
}

func (r *nativeReader) Close() error {
	r.cam.StopStreaming()
	return r.cam.Close()
}

// MimeType implements camera.MimeTyper.
func (r *nativeReader) MimeType() string { return "video/H264" }

// transcodeReader is used when the device has no native H264 mode at the
// requested geometry: decode the device's raw wire format to an
// image.Image, then VP8-encode it.
type transcodeReader struct {
	cam     *webcam.Webcam
	path    camera.DevicePath
	decoder frame.Decoder
	encoder codec.ReadCloser
	width   uint32
	height  uint32
}

// readImage is the video.ReaderFunc the VP8 encoder pulls from: one raw
// device frame, decoded to an image.Image.
func (r *transcodeReader) readImage() (image.Image, func(), error) {
	buf, err := waitAndRead(r.cam, r.path)
	if err != nil {
		return nil, func() {}, err
	}
	img, release, err := r.decoder.Decode(buf, int(r.width), int(r.height))
	if err != nil {
		return nil, func() {}, fmt.Errorf("%s: decode frame: %w", r.path, err)
	}
	return img, release, nil
}

func (r *transcodeReader) Read() (camera.EncodedFrame, error) {
	data, release, err := r.encoder.Read()
	if err != nil {
		return camera.EncodedFrame{}, fmt.Errorf("%s: vp8 encode: %w", r.path, err)
	}
	out := make([]byte, len(data))
	copy(out, data)
	if release != nil {
		release()
	}
	return camera.EncodedFrame{Data: out}, nil
}

func (r *transcodeReader) Close() error {
	r.encoder.Close()
	r.cam.StopStreaming()
	return r.cam.Close()
}

// ForceKeyFrame implements camera.KeyFramer when the underlying encoder
// supports it (mediadevices' vpx encoder does).
func (r *transcodeReader) ForceKeyFrame() {
	if kf, ok := r.encoder.(interface{ ForceKeyFrame() error }); ok {
		_ = kf.ForceKeyFrame()
	}
}

// MimeType implements camera.MimeTyper.
func (r *transcodeReader) MimeType() string { return "video/VP8" }
