package devprobe

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/petervdpas/goop2/internal/camera"
)

type fakeReader struct{}

func (fakeReader) Read() (camera.EncodedFrame, error) { return camera.EncodedFrame{}, nil }
func (fakeReader) Close() error                       { return nil }

type fakeOpener struct {
	usable map[camera.DevicePath]bool
}

func (f *fakeOpener) Enumerate(path camera.DevicePath) ([]camera.CameraMode, error) {
	if !f.usable[path] {
		return nil, errors.New("not supported")
	}
	return []camera.CameraMode{{Width: 640, Height: 480, FrameInterval: camera.Fraction{Numerator: 1, Denominator: 30}}}, nil
}

func (f *fakeOpener) Open(path camera.DevicePath, _ camera.CameraMode) (camera.Reader, error) {
	if !f.usable[path] {
		return nil, errors.New("not supported")
	}
	return fakeReader{}, nil
}

func TestRunKeepsOnlyUsableDevices(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"video0", "video1", "video2"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	opener := &fakeOpener{usable: map[camera.DevicePath]bool{
		camera.DevicePath(filepath.Join(dir, "video0")): true,
		camera.DevicePath(filepath.Join(dir, "video2")): true,
	}}

	p := Run(filepath.Join(dir, "video*"), opener)
	got := p.Available()
	if len(got) != 2 {
		t.Fatalf("expected 2 usable devices, got %d: %v", len(got), got)
	}
	if got[0] != camera.DevicePath(filepath.Join(dir, "video0")) {
		t.Fatalf("unexpected first entry: %v", got[0])
	}
	if got[1] != camera.DevicePath(filepath.Join(dir, "video2")) {
		t.Fatalf("unexpected second entry: %v", got[1])
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	path := camera.DevicePath("/dev/video0")
	if got := Decode(Encode(path)); got != path {
		t.Fatalf("round trip mismatch: %q -> %q -> %q", path, Encode(path), got)
	}
}
