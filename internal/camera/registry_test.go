package camera

import (
	"context"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func mustRecv(t *testing.T, c *SubscriberConsumer, timeout time.Duration) EncodedFrame {
	t.Helper()
	type result struct {
		f  EncodedFrame
		ok bool
	}
	done := make(chan result, 1)
	go func() {
		f, ok := c.Recv()
		done <- result{f, ok}
	}()
	select {
	case r := <-done:
		if !r.ok {
			t.Fatalf("Recv: sink closed unexpectedly")
		}
		return r.f
	case <-time.After(timeout):
		t.Fatalf("Recv: timed out")
		return EncodedFrame{}
	}
}

func smallMode() CameraMode {
	return CameraMode{Width: 640, Height: 480, FrameInterval: Fraction{Numerator: 1, Denominator: 30}}
}

func bigMode() CameraMode {
	return CameraMode{Width: 1920, Height: 1080, FrameInterval: Fraction{Numerator: 1, Denominator: 15}}
}

// A single subscriber can read a stream of frames from a known device.
func TestSubscribeDeliversFrames(t *testing.T) {
	opener := newFakeOpener().withModes("/dev/video0", smallMode())
	reg := NewRegistry(opener)

	sub, err := reg.Subscribe("/dev/video0")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	f1 := mustRecv(t, sub, time.Second)
	f2 := mustRecv(t, sub, time.Second)
	if len(f1.Data) == 0 || len(f2.Data) == 0 {
		t.Fatalf("expected non-empty frames, got %v, %v", f1, f2)
	}
}

// Subscribing to an unknown path fails without starting a worker.
func TestSubscribeUnknownDevice(t *testing.T) {
	opener := newFakeOpener()
	reg := NewRegistry(opener)

	_, err := reg.Subscribe("/dev/video9")
	if err == nil {
		t.Fatalf("expected error for unknown device")
	}
}

// Two subscribers to the same path share one worker and one open device
// (at most one live reader per device): the opener sees exactly one Open call regardless of
// subscriber count.
func TestSubscribersShareOneWorker(t *testing.T) {
	opener := newFakeOpener().withModes("/dev/video0", smallMode())
	reg := NewRegistry(opener)

	subA, err := reg.Subscribe("/dev/video0")
	if err != nil {
		t.Fatalf("Subscribe A: %v", err)
	}
	defer subA.Close()

	subB, err := reg.Subscribe("/dev/video0")
	if err != nil {
		t.Fatalf("Subscribe B: %v", err)
	}
	defer subB.Close()

	mustRecv(t, subA, time.Second)
	mustRecv(t, subB, time.Second)

	if got := opener.openCount("/dev/video0"); got != 1 {
		t.Fatalf("expected exactly one Open call, got %d", got)
	}
}

// Concurrent first-subscribers to the same unknown path still only open the
// device once (the singleflight-deduplicated start path).
func TestConcurrentFirstSubscribersOpenOnce(t *testing.T) {
	opener := newFakeOpener().withModes("/dev/video0", smallMode())
	reg := NewRegistry(opener)

	const n = 16
	subs := make([]*SubscriberConsumer, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			subs[i], errs[i] = reg.Subscribe("/dev/video0")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Subscribe %d: %v", i, err)
		}
	}
	for _, s := range subs {
		defer s.Close()
	}

	if got := opener.openCount("/dev/video0"); got != 1 {
		t.Fatalf("expected exactly one Open call across %d concurrent subscribers, got %d", n, got)
	}
}

// Dropping one subscriber does not affect another subscriber to the same
// device.
func TestDroppingOneSubscriberLeavesOthersLive(t *testing.T) {
	opener := newFakeOpener().withModes("/dev/video0", smallMode())
	reg := NewRegistry(opener)

	subA, _ := reg.Subscribe("/dev/video0")
	subB, _ := reg.Subscribe("/dev/video0")
	defer subB.Close()

	mustRecv(t, subA, time.Second)
	mustRecv(t, subB, time.Second)

	subA.Close()

	for i := 0; i < 5; i++ {
		mustRecv(t, subB, time.Second)
	}
}

// When the last subscriber drops, the worker terminates and the path is
// removed from the registry; a later subscribe starts a fresh worker.
func TestLastSubscriberLeavingTerminatesWorker(t *testing.T) {
	opener := newFakeOpener().withModes("/dev/video0", smallMode())
	reg := NewRegistry(opener)

	sub, _ := reg.Subscribe("/dev/video0")
	mustRecv(t, sub, time.Second)
	sub.Close()

	waitFor(t, time.Second, func() bool {
		_, ok := reg.Inspect("/dev/video0")
		return !ok
	})

	sub2, err := reg.Subscribe("/dev/video0")
	if err != nil {
		t.Fatalf("re-subscribe after termination: %v", err)
	}
	defer sub2.Close()
	mustRecv(t, sub2, time.Second)

	if got := opener.openCount("/dev/video0"); got != 2 {
		t.Fatalf("expected two Open calls (one per worker lifetime), got %d", got)
	}
}

// SetMode switches the worker's reported current mode.
func TestSetModeSwitchesCurrentMode(t *testing.T) {
	opener := newFakeOpener().withModes("/dev/video0", smallMode(), bigMode())
	reg := NewRegistry(opener)

	sub, _ := reg.Subscribe("/dev/video0")
	defer sub.Close()
	mustRecv(t, sub, time.Second)

	status, ok := reg.Inspect("/dev/video0")
	if !ok {
		t.Fatalf("expected worker to be running")
	}
	if status.CurrentMode != bigMode() {
		t.Fatalf("expected default mode to be the highest-capability mode %v, got %v", bigMode(), status.CurrentMode)
	}

	if err := reg.SetMode("/dev/video0", 0); err != nil {
		t.Fatalf("SetMode: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		status, ok := reg.Inspect("/dev/video0")
		return ok && status.CurrentMode == smallMode()
	})
}

// An invalid mode index is rejected without affecting the running worker.
func TestSetModeInvalidIndex(t *testing.T) {
	opener := newFakeOpener().withModes("/dev/video0", smallMode())
	reg := NewRegistry(opener)

	sub, _ := reg.Subscribe("/dev/video0")
	defer sub.Close()
	mustRecv(t, sub, time.Second)

	if err := reg.SetMode("/dev/video0", 7); err == nil {
		t.Fatalf("expected error for out-of-range mode index")
	}
}

// Shutdown stops every running worker and returns once all of them have
// exited, without waiting for ctx's deadline.
func TestShutdownStopsAllWorkers(t *testing.T) {
	opener := newFakeOpener().withModes("/dev/video0", smallMode()).withModes("/dev/video1", smallMode())
	reg := NewRegistry(opener)

	subA, _ := reg.Subscribe("/dev/video0")
	defer subA.Close()
	subB, _ := reg.Subscribe("/dev/video1")
	defer subB.Close()

	mustRecv(t, subA, time.Second)
	mustRecv(t, subB, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reg.Shutdown(ctx)

	if _, ok := reg.Inspect("/dev/video0"); ok {
		t.Fatalf("expected /dev/video0 worker gone after Shutdown")
	}
	if _, ok := reg.Inspect("/dev/video1"); ok {
		t.Fatalf("expected /dev/video1 worker gone after Shutdown")
	}
}

// A read error tears down every subscriber and frees the device path.
func TestReadErrorEvictsAllSubscribers(t *testing.T) {
	opener := newFakeOpener().withModes("/dev/video0", smallMode())
	reg := NewRegistry(opener)

	subA, _ := reg.Subscribe("/dev/video0")
	subB, _ := reg.Subscribe("/dev/video0")

	mustRecv(t, subA, time.Second)
	mustRecv(t, subB, time.Second)

	// There is exactly one reader instance since both subscribers share the
	// worker; force its next read to fail.
	r := opener.currentReader("/dev/video0")
	r.setFailNext(true)

	waitFor(t, time.Second, func() bool {
		_, okA := subA.Recv()
		_, okB := subB.Recv()
		return !okA && !okB
	})

	waitFor(t, time.Second, func() bool {
		_, ok := reg.Inspect("/dev/video0")
		return !ok
	})
}
