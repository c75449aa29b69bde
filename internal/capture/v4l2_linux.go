//go:build linux

// Package capture implements device capture and mode discovery against
// real V4L2 devices. It is the only
// package that touches device I/O; internal/camera depends on it only
// through the camera.Opener/camera.Reader interfaces.
package capture

import (
	"fmt"
	"os"
	"sort"

	"github.com/blackjack/webcam"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
	"golang.org/x/sys/unix"

	"github.com/petervdpas/goop2/internal/camera"
)

// fourcc packs four ASCII bytes into a V4L2 pixel format code the way
// videodev2.h's FourCC macros do.
func fourcc(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

var (
	pixFmtH264 = webcam.PixelFormat(fourcc('H', '2', '6', '4'))
	pixFmtYUYV = webcam.PixelFormat(fourcc('Y', 'U', 'Y', 'V'))
	pixFmtMJPG = webcam.PixelFormat(fourcc('M', 'J', 'P', 'G'))
	pixFmtI420 = webcam.PixelFormat(fourcc('Y', 'U', '1', '2'))
)

// rawFormatOrder is the fallback decode path's format preference: YUYV
// decodes cheaply and predictably, I420 needs no colorspace conversion
// before VP8 encode, MJPEG is tried last since some UVC devices emit
// malformed JPEG on their MJPEG node.
var rawFormatOrder = []struct {
	pix    webcam.PixelFormat
	format frame.Format
}{
	{pixFmtYUYV, frame.FormatYUYV},
	{pixFmtI420, frame.FormatI420},
	{pixFmtMJPG, frame.FormatMJPEG},
}

// newVP8Params builds VP8 encoder params at bitRateBps, configurable via
// internal/config rather than fixed.
func newVP8Params(bitRateBps int) (vpx.VP8Params, error) {
	p, err := vpx.NewVP8Params()
	if err != nil {
		return vpx.VP8Params{}, err
	}
	p.BitRate = bitRateBps
	return p, nil
}

// Opener is the camera.Opener implementation backed by blackjack/webcam.
type Opener struct {
	bufferCount   uint32
	vp8BitRateBps int
}

// NewOpener returns a V4L2-backed Opener. bufferCount is the number of
// V4L2 capture buffers requested per device; vp8BitRateBps is the target
// bitrate for the VP8 transcode fallback path (both from internal/config).
func NewOpener(bufferCount uint32, vp8BitRateBps int) *Opener {
	return &Opener{bufferCount: bufferCount, vp8BitRateBps: vp8BitRateBps}
}

// Enumerate reports the (width, height, frame_interval) triples the
// device's formats support, deduplicated, sorted ascending by pixel count
// then frame rate. A stepwise or continuous frame-size range contributes
// only its minimum and maximum sizes, not the sizes in between. Pixel
// format itself is not part of CameraMode:
// Open picks the best wire format for the geometry at open time,
// preferring native H264.
func (o *Opener) Enumerate(path camera.DevicePath) ([]camera.CameraMode, error) {
	cam, err := webcam.Open(string(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer cam.Close()

	// A second, query-only file descriptor for VIDIOC_ENUM_FRAMEINTERVALS,
	// which blackjack/webcam does not wrap. V4L2 explicitly supports
	// multiple concurrent opens of a device node for capability queries,
	// so this does not interfere with cam's own (unopened-for-streaming-yet)
	// handle.
	qf, err := os.OpenFile(string(path), unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s for query: %w", path, err)
	}
	defer qf.Close()
	qfd := qf.Fd()

	type key struct {
		w, h uint32
		n, d uint32
	}
	seen := make(map[key]struct{})
	var modes []camera.CameraMode

	for pixFmt := range cam.GetSupportedFormats() {
		for _, size := range cam.GetSupportedFrameSizes(pixFmt) {
			widths := []uint32{size.MaxWidth}
			heights := []uint32{size.MaxHeight}
			if size.StepWidth != 0 && size.MinWidth != size.MaxWidth {
				widths = []uint32{size.MinWidth, size.MaxWidth}
			}
			if size.StepHeight != 0 && size.MinHeight != size.MaxHeight {
				heights = []uint32{size.MinHeight, size.MaxHeight}
			}
			for _, w := range widths {
				for _, h := range heights {
					ivals, err := enumFrameIntervals(qfd, uint32(pixFmt), w, h)
					if err != nil || len(ivals) == 0 {
						continue
					}
					for _, iv := range ivals {
						k := key{w, h, iv.Numerator, iv.Denominator}
						if _, ok := seen[k]; ok {
							continue
						}
						seen[k] = struct{}{}
						modes = append(modes, camera.CameraMode{
							Width:  w,
							Height: h,
							FrameInterval: camera.Fraction{
								Numerator:   iv.Numerator,
								Denominator: iv.Denominator,
							},
						})
					}
				}
			}
		}
	}

	if len(modes) == 0 {
		return nil, fmt.Errorf("%s: no usable modes found", path)
	}

	sort.Slice(modes, func(i, j int) bool {
		pi, pj := modes[i].Width*modes[i].Height, modes[j].Width*modes[j].Height
		if pi != pj {
			return pi < pj
		}
		return modes[i].FrameInterval.FPS() < modes[j].FrameInterval.FPS()
	})
	return modes, nil
}

// Open configures path into mode and returns a Reader: a native H264
// passthrough reader if the device can produce H264 directly at this
// geometry, otherwise a decode-then-VP8-encode reader.
func (o *Opener) Open(path camera.DevicePath, mode camera.CameraMode) (camera.Reader, error) {
	cam, err := webcam.Open(string(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := cam.SetBufferCount(o.bufferCount); err != nil {
		cam.Close()
		return nil, fmt.Errorf("%s: set buffer count: %w", path, err)
	}

	if r, ok := tryNativeH264(cam, path, mode); ok {
		return r, nil
	}

	r, err := o.tryTranscode(cam, path, mode)
	if err != nil {
		cam.Close()
		return nil, err
	}
	return r, nil
}

func tryNativeH264(cam *webcam.Webcam, path camera.DevicePath, mode camera.CameraMode) (camera.Reader, bool) {
	actualPF, actualW, actualH, err := cam.SetImageFormat(pixFmtH264, mode.Width, mode.Height)
	if err != nil || actualPF != pixFmtH264 || actualW != mode.Width || actualH != mode.Height {
		return nil, false
	}
	if err := finishSetup(cam, path, mode); err != nil {
		return nil, false
	}
	return &nativeReader{cam: cam, path: path}, true
}

func (o *Opener) tryTranscode(cam *webcam.Webcam, path camera.DevicePath, mode camera.CameraMode) (camera.Reader, error) {
	for _, candidate := range rawFormatOrder {
		actualPF, actualW, actualH, err := cam.SetImageFormat(candidate.pix, mode.Width, mode.Height)
		if err != nil || actualPF != candidate.pix || actualW != mode.Width || actualH != mode.Height {
			continue
		}
		if err := finishSetup(cam, path, mode); err != nil {
			continue
		}

		decoder, err := frame.NewDecoder(candidate.format)
		if err != nil {
			return nil, fmt.Errorf("%s: new frame decoder: %w", path, err)
		}

		params, err := newVP8Params(o.vp8BitRateBps)
		if err != nil {
			return nil, fmt.Errorf("%s: new vp8 params: %w", path, err)
		}

		tr := &transcodeReader{cam: cam, path: path, decoder: decoder, width: mode.Width, height: mode.Height}
		videoSrc := video.ReaderFunc(tr.readImage)

		encoder, err := params.BuildVideoEncoder(videoSrc, prop.Media{
			Video: prop.Video{
				Width:     int(mode.Width),
				Height:    int(mode.Height),
				FrameRate: mode.FrameInterval.FPS(),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("%s: build vp8 encoder: %w", path, err)
		}
		tr.encoder = encoder
		return tr, nil
	}
	return nil, fmt.Errorf("%s: no format at %s could be opened natively or transcoded", path, mode)
}

func finishSetup(cam *webcam.Webcam, path camera.DevicePath, mode camera.CameraMode) error {
	if mode.FrameInterval.FPS() > 0 {
		if err := cam.SetFramerate(float32(mode.FrameInterval.FPS())); err != nil {
			return fmt.Errorf("%s: set framerate: %w", path, err)
		}
	}
	if err := cam.StartStreaming(); err != nil {
		return fmt.Errorf("%s: start streaming: %w", path, err)
	}
	return nil
}
