//go:build linux

package capture

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// blackjack/webcam exposes GetSupportedFormats/GetSupportedFrameSizes but
// has no equivalent for VIDIOC_ENUM_FRAMEINTERVALS, so the frame-interval
// half of the mode catalog is filled in with a direct ioctl, encoded the
// way the V4L2 userspace API itself defines the macro
// (include/uapi/asm-generic/ioctl.h): direction|type|number|size packed
// into the request word.
const (
	iocRead  = 2
	iocWrite = 1

	iocNumberBits = 8
	iocTypeBits   = 8
	iocSizeBits   = 14

	iocNumberPos = 0
	iocTypePos   = iocNumberPos + iocNumberBits
	iocSizePos   = iocTypePos + iocTypeBits
	iocDirPos    = iocSizePos + iocSizeBits

	v4l2IoctlType = 'V'

	// VIDIOC_ENUM_FRAMEINTERVALS = _IOWR('V', 75, struct v4l2_frmivalenum)
	vidiocEnumFrameIntervalsNr = 75

	frmivalTypeDiscrete   = 1
	frmivalTypeContinuous = 2
	frmivalTypeStepwise   = 3
)

// v4l2Fract mirrors struct v4l2_fract.
type v4l2Fract struct {
	Numerator   uint32
	Denominator uint32
}

// v4l2Frmivalenum mirrors struct v4l2_frmivalenum. The discrete/stepwise
// union is the widest member (three v4l2_fract, i.e. a stepwise interval),
// represented as raw bytes and reinterpreted by field type.
type v4l2Frmivalenum struct {
	Index       uint32
	PixelFormat uint32
	Width       uint32
	Height      uint32
	Type        uint32
	union       [24]byte
	reserved    [2]uint32
}

func (e *v4l2Frmivalenum) discrete() v4l2Fract {
	return *(*v4l2Fract)(unsafe.Pointer(&e.union[0]))
}

func ioctlRequest(dir, typ, nr, size uintptr) uintptr {
	return (dir << iocDirPos) | (typ << iocTypePos) | (nr << iocNumberPos) | (size << iocSizePos)
}

// enumFrameIntervals returns every discrete frame interval a device
// reports for (pixelFormat, width, height), in the order the driver
// enumerates them. Devices that only report a continuous or stepwise range
// (common on UVC-class webcams configured via controls rather than a fixed
// list) yield the driver's minimum interval as a single entry, which keeps
// the mode catalog well-defined without modelling open ranges.
func enumFrameIntervals(fd uintptr, pixelFormat uint32, width, height uint32) ([]v4l2Fract, error) {
	req := ioctlRequest(iocRead|iocWrite, v4l2IoctlType, vidiocEnumFrameIntervalsNr, unsafe.Sizeof(v4l2Frmivalenum{}))

	var out []v4l2Fract
	for index := uint32(0); ; index++ {
		ival := v4l2Frmivalenum{
			Index:       index,
			PixelFormat: pixelFormat,
			Width:       width,
			Height:      height,
		}
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(unsafe.Pointer(&ival)))
		if errno == unix.EINVAL {
			break // no more entries
		}
		if errno != 0 {
			return nil, fmt.Errorf("VIDIOC_ENUM_FRAMEINTERVALS: %w", errno)
		}

		switch ival.Type {
		case frmivalTypeDiscrete:
			out = append(out, ival.discrete())
		case frmivalTypeContinuous, frmivalTypeStepwise:
			// min is the first v4l2_fract in the stepwise struct, which
			// occupies the same leading bytes as the discrete union member.
			out = append(out, ival.discrete())
			return out, nil
		default:
			return nil, fmt.Errorf("VIDIOC_ENUM_FRAMEINTERVALS: unknown interval type %d", ival.Type)
		}
	}
	return out, nil
}
