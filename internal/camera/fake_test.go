package camera

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// fakeOpener hands out fakeReaders and records how many times each path was
// opened, so tests can assert at most one live reader per
// device at a time).
type fakeOpener struct {
	mu      sync.Mutex
	modes   map[DevicePath][]CameraMode
	opens   map[DevicePath]int
	readers map[DevicePath]*fakeReader // most recently opened reader per path
	failNew error                      // when set, Open always fails
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{
		modes:   make(map[DevicePath][]CameraMode),
		opens:   make(map[DevicePath]int),
		readers: make(map[DevicePath]*fakeReader),
	}
}

func (f *fakeOpener) withModes(path DevicePath, modes ...CameraMode) *fakeOpener {
	f.modes[path] = modes
	return f
}

func (f *fakeOpener) Enumerate(path DevicePath) ([]CameraMode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	modes, ok := f.modes[path]
	if !ok {
		return nil, errors.New("fake: no such device")
	}
	return modes, nil
}

func (f *fakeOpener) Open(path DevicePath, mode CameraMode) (Reader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNew != nil {
		return nil, f.failNew
	}
	f.opens[path]++
	r := &fakeReader{path: path, mode: mode}
	f.readers[path] = r
	return r, nil
}

func (f *fakeOpener) openCount(path DevicePath) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens[path]
}

// currentReader returns the most recently opened reader for path, for
// tests that need to force a read error on the live device.
func (f *fakeOpener) currentReader(path DevicePath) *fakeReader {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readers[path]
}

// fakeReader yields a frame on every Read call, one frame interval of its
// mode after the previous one like a real device, until told to fail or
// closed. Without that pacing every subscriber would be a frame behind and
// evicted by the worker's one-slot sink policy.
type fakeReader struct {
	path DevicePath
	mode CameraMode

	mu       sync.Mutex
	failNext bool
	seq      int
	closed   bool

	forcedKeyFrames atomic.Int32
}

func (r *fakeReader) Read() (EncodedFrame, error) {
	if fps := r.mode.FrameInterval.FPS(); fps > 0 {
		time.Sleep(time.Duration(float64(time.Second) / fps))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return EncodedFrame{}, errors.New("fake: read after close")
	}
	if r.failNext {
		return EncodedFrame{}, errors.New("fake: forced read error")
	}
	r.seq++
	return EncodedFrame{Data: []byte{byte(r.seq)}}, nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) ForceKeyFrame() {
	r.forcedKeyFrames.Add(1)
}

func (r *fakeReader) setFailNext(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = v
}
