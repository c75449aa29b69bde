//go:build linux

package capture

import "testing"

func TestFourCCMatchesV4L2Constants(t *testing.T) {
	cases := []struct {
		name     string
		got      uint32
		wantHex  uint32
	}{
		{"H264", fourcc('H', '2', '6', '4'), 0x34363248},
		{"YUYV", fourcc('Y', 'U', 'Y', 'V'), 0x56595559},
		{"MJPG", fourcc('M', 'J', 'P', 'G'), 0x47504a4d},
	}
	for _, c := range cases {
		if c.got != c.wantHex {
			t.Errorf("%s: got 0x%08x, want 0x%08x", c.name, c.got, c.wantHex)
		}
	}
}

func TestIoctlRequestEncodesDirectionTypeNumberSize(t *testing.T) {
	req := ioctlRequest(iocRead|iocWrite, v4l2IoctlType, vidiocEnumFrameIntervalsNr, 52)

	gotDir := (req >> iocDirPos) & 0x3
	gotType := (req >> iocTypePos) & 0xff
	gotNr := (req >> iocNumberPos) & 0xff
	gotSize := (req >> iocSizePos) & 0x3fff

	if gotDir != iocRead|iocWrite {
		t.Errorf("direction: got %d, want %d", gotDir, iocRead|iocWrite)
	}
	if gotType != v4l2IoctlType {
		t.Errorf("type: got %d, want %d", gotType, uintptr(v4l2IoctlType))
	}
	if gotNr != vidiocEnumFrameIntervalsNr {
		t.Errorf("number: got %d, want %d", gotNr, uintptr(vidiocEnumFrameIntervalsNr))
	}
	if gotSize != 52 {
		t.Errorf("size: got %d, want 52", gotSize)
	}
}
