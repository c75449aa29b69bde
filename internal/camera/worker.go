package camera

import (
	"log"
	"sync"
	"sync/atomic"
)

// KeyFramer is optionally implemented by a Reader that can be told to
// emit a key frame at its next Read call. Forcing a key frame at mode
// change and at new-subscriber enrollment keeps a
// freshly attached peer from sitting through a long decode stall.
type KeyFramer interface {
	ForceKeyFrame()
}

// CameraWorker is the single blocking loop that drives a Reader and fans
// frames out to a live set of SubscriberSinks. Exactly one
// CameraWorker exists per DevicePath at any instant,
// enforced by Registry, which is also this worker's only collaborator:
// CameraWorker never talks to any other worker.
type CameraWorker struct {
	reg    *Registry
	path   DevicePath
	opener Opener

	// modes is immutable after construction; last entry is the default.
	modes []CameraMode

	// currentMode is mutated only by the worker goroutine, at frame
	// boundaries.
	currentMode CameraMode
	reader      Reader

	// codecMime is captured once, from the first Reader this worker opens,
	// and assumed stable across mode changes: a device that natively
	// produces H264 at one geometry does so at all its geometries in
	// practice. Empty if the Reader does not implement MimeTyper.
	codecMime string

	// live is owned exclusively by the worker goroutine.
	live []*SubscriberSink

	// pending is appended to only while holding reg.mu (Registry.Subscribe
	// enrolling into an already-running worker) and drained only by the
	// worker goroutine, also while holding reg.mu (see drainPending and
	// Registry's termination-race handling in tryTerminate).
	pending []*SubscriberSink

	// flushFlag lets the worker skip taking reg.mu on iterations where no
	// enrollment happened.
	flushFlag atomic.Bool

	shutdownFlag atomic.Bool

	// modeRequest is a one-slot, coalescing channel: a later SetMode call
	// supersedes an earlier unconsumed one rather than queueing.
	modeRequest chan int

	// startOnce ensures exactly one goroutine is ever spawned for this
	// worker, no matter how many Registry.Subscribe calls raced to create
	// it (see Registry.Subscribe). Every caller enrolls its own sink
	// before calling startOnce.Do, so by the time the goroutine actually
	// starts, at least one subscriber is already pending.
	startOnce sync.Once

	done chan struct{}
}

// newCameraWorkerForDefaultMode synchronously opens path into its default (highest
// capability) mode and enumerates its catalog. Called by Registry under
// its singleflight region, never while holding reg.mu.
func newCameraWorkerForDefaultMode(reg *Registry, path DevicePath, opener Opener) (*CameraWorker, error) {
	modes, err := opener.Enumerate(path)
	if err != nil {
		return nil, err
	}
	if len(modes) == 0 {
		return nil, errNoModes(path)
	}
	defaultMode := modes[len(modes)-1]
	reader, err := opener.Open(path, defaultMode)
	if err != nil {
		return nil, err
	}
	var codecMime string
	if mt, ok := reader.(MimeTyper); ok {
		codecMime = mt.MimeType()
	}
	return &CameraWorker{
		reg:         reg,
		path:        path,
		opener:      opener,
		modes:       modes,
		currentMode: defaultMode,
		reader:      reader,
		codecMime:   codecMime,
		modeRequest: make(chan int, 1),
		done:        make(chan struct{}),
	}, nil
}

// enrollLocked adds a new subscriber sink to the pending set and raises the
// flush flag. Must be called with reg.mu held — pushing onto pending and
// raising the flag happen in that order so the worker can never observe
// the flag without the corresponding entry already in the set.
func (w *CameraWorker) enrollLocked() *SubscriberSink {
	sink := newSink()
	w.pending = append(w.pending, sink)
	w.flushFlag.Store(true)
	return sink
}

// Modes returns the worker's immutable mode catalog.
func (w *CameraWorker) Modes() []CameraMode { return w.modes }

// CurrentMode returns a snapshot of the worker's current mode. Safe to
// call from any goroutine: reg.mu is not required since this is only ever
// read for display/inspection, and a torn read of this small value struct
// is not possible in Go (it is read and written as a whole under no
// concurrent writer other than the worker goroutine itself, and callers
// only need an approximate, eventually-consistent snapshot here).
func (w *CameraWorker) CurrentMode() CameraMode { return w.currentMode }

// CodecMime returns the WebRTC mime type this worker's frames are encoded
// as (e.g. "video/H264" or "video/VP8"), or "" if its Reader never reported
// one.
func (w *CameraWorker) CodecMime() string { return w.codecMime }

// requestShutdown asks the worker to exit at the top of its next
// iteration.
func (w *CameraWorker) requestShutdown() {
	w.shutdownFlag.Store(true)
}

// requestMode enqueues a mode-change request, coalescing with any
// unconsumed prior request.
func (w *CameraWorker) requestMode(idx int) {
	for {
		select {
		case w.modeRequest <- idx:
			return
		default:
		}
		// Slot full: drain the stale request and retry: the newest
		// request always wins.
		select {
		case <-w.modeRequest:
		default:
		}
	}
}

// run is the worker's main loop. It is started exactly once,
// via w.startOnce, by the first Registry.Subscribe call that reaches it —
// by then at least one sink is already enrolled in w.pending.
func (w *CameraWorker) run() {
	defer w.terminateCleanup()

	for {
		if w.shutdownFlag.Load() {
			return
		}

		w.drainPending()

		select {
		case idx := <-w.modeRequest:
			w.changeMode(idx)
		default:
		}

		frame, err := w.reader.Read()
		if err != nil {
			log.Printf("CAMERA [%s]: read error, closing all subscribers: %v", w.path, err)
			return
		}

		kept := w.live[:0]
		for _, s := range w.live {
			if s.send(frame) {
				kept = append(kept, s)
			} else {
				s.evict()
			}
		}
		w.live = kept

		if len(w.live) == 0 && w.tryTerminate() {
			return
		}
	}
}

// drainPending moves newly enrolled sinks into the live set. It only takes
// reg.mu when the flush flag is set, so a quiet worker with no new
// subscribers never contends with the registry.
func (w *CameraWorker) drainPending() {
	if !w.flushFlag.Load() {
		return
	}

	w.reg.mu.Lock()
	pending := w.pending
	w.pending = nil
	w.flushFlag.Store(false)
	w.reg.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	w.live = append(w.live, pending...)
	w.forceKeyFrame()
}

// forceKeyFrame asks the reader for a key frame at its next Read, if it
// supports the optional KeyFramer interface.
func (w *CameraWorker) forceKeyFrame() {
	if kf, ok := w.reader.(KeyFramer); ok {
		kf.ForceKeyFrame()
	}
}

// changeMode applies a pending mode-change request at the current frame
// boundary. A failed re-open is logged and the worker keeps
// running in its previous mode rather than tearing down subscribers over a
// transient reconfiguration failure.
func (w *CameraWorker) changeMode(idx int) {
	if idx < 0 || idx >= len(w.modes) {
		return
	}
	mode := w.modes[idx]
	if mode == w.currentMode {
		return
	}

	newReader, err := w.opener.Open(w.path, mode)
	if err != nil {
		log.Printf("CAMERA [%s]: mode change to %s failed, staying at %s: %v", w.path, mode, w.currentMode, err)
		return
	}
	w.reader.Close()
	w.reader = newReader
	w.currentMode = mode
	w.forceKeyFrame()
}

// tryTerminate performs the "empty → remove → exit" decision under the
// registry lock: Registry.Subscribe
// enrolling into this worker also holds reg.mu, so the two can never
// interleave. Either this worker observes a pending enrollment that slipped
// in and keeps running, or a concurrent Subscribe observes the worker
// already removed from the map and starts a fresh one.
func (w *CameraWorker) tryTerminate() bool {
	w.reg.mu.Lock()
	defer w.reg.mu.Unlock()

	if len(w.pending) != 0 {
		return false
	}
	if existing, ok := w.reg.workers[w.path]; !ok || existing != w {
		// Already removed (shouldn't happen without this same path, but
		// guards against a stale call).
		return true
	}
	delete(w.reg.workers, w.path)
	return true
}

// terminateCleanup runs once, regardless of why run() returned: removes
// this worker's registry entry if it still refers to this worker, evicts
// every live and still-pending subscriber, and releases the reader.
func (w *CameraWorker) terminateCleanup() {
	w.reg.mu.Lock()
	if existing, ok := w.reg.workers[w.path]; ok && existing == w {
		delete(w.reg.workers, w.path)
	}
	pending := w.pending
	w.pending = nil
	w.reg.mu.Unlock()

	for _, s := range w.live {
		s.evict()
	}
	for _, s := range pending {
		s.evict()
	}
	w.live = nil
	if w.reader != nil {
		w.reader.Close()
	}
	close(w.done)
}
