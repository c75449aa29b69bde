package camera

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry is the process-wide camera registry: a map from
// DevicePath to the single running CameraWorker for that device, plus the
// bookkeeping needed to start a worker exactly once per device even under
// concurrent first-subscribers.
type Registry struct {
	opener Opener

	// mu guards workers and doubles as the pending-sink mutex for every
	// worker it owns (see CameraWorker.enrollLocked/drainPending/
	// tryTerminate): the registry's critical sections are all O(1) pointer
	// and flag operations, never held across device I/O, so sharing one
	// mutex across devices costs nothing it doesn't already prescribe.
	mu      sync.Mutex
	workers map[DevicePath]*CameraWorker

	// starting deduplicates concurrent first-subscribers for the same
	// path: only one goroutine actually opens the device, the rest wait on
	// its result. Without this, two Subscribe calls racing on an unknown
	// path could both pass the "not in map" check and open the device
	// twice, violating the one-worker-per-device invariant.
	starting singleflight.Group
}

// NewRegistry returns a Registry that opens devices through opener.
func NewRegistry(opener Opener) *Registry {
	return &Registry{
		opener:  opener,
		workers: make(map[DevicePath]*CameraWorker),
	}
}

// Subscribe attaches a new subscriber to path, starting its worker if none
// is running. It never blocks on device I/O while holding the lock that
// protects the map.
//
// Every caller — whether it wins the race to create the worker or joins
// one already being created — enrolls its own sink after the worker exists
// and before the worker's goroutine is allowed to start (CameraWorker's
// startOnce). That ordering is what keeps a brand-new worker from ever
// observing zero subscribers on its first iteration.
func (r *Registry) Subscribe(path DevicePath) (*SubscriberConsumer, error) {
	r.mu.Lock()
	if w, ok := r.workers[path]; ok {
		sink := w.enrollLocked()
		r.mu.Unlock()
		return &SubscriberConsumer{sink: sink}, nil
	}
	r.mu.Unlock()

	v, err, _ := r.starting.Do(string(path), func() (any, error) {
		// Re-check: a previous starter for this path may have finished
		// between our fast-path miss and here.
		r.mu.Lock()
		if w, ok := r.workers[path]; ok {
			r.mu.Unlock()
			return w, nil
		}
		r.mu.Unlock()

		w, err := newCameraWorkerForDefaultMode(r, path, r.opener)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDevice, err)
		}

		r.mu.Lock()
		r.workers[path] = w
		r.mu.Unlock()
		return w, nil
	})
	if err != nil {
		return nil, err
	}

	w := v.(*CameraWorker)

	r.mu.Lock()
	sink := w.enrollLocked()
	r.mu.Unlock()

	w.startOnce.Do(func() { go w.run() })

	return &SubscriberConsumer{sink: sink}, nil
}

// SetMode asks the worker for path to switch to modes[idx] at its next
// frame boundary. Returns ErrUnknownPath if no worker is running for path,
// or ErrInvalidModeIndex if idx is out of range of that worker's catalog.
func (r *Registry) SetMode(path DevicePath, idx int) error {
	r.mu.Lock()
	w, ok := r.workers[path]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPath, path)
	}
	if idx < 0 || idx >= len(w.Modes()) {
		return fmt.Errorf("%w: %d", ErrInvalidModeIndex, idx)
	}
	w.requestMode(idx)
	return nil
}

// CameraStatus is a point-in-time snapshot of a running worker, used by
// internal/httpapi's inspection endpoints.
type CameraStatus struct {
	Path        DevicePath
	CurrentMode CameraMode
	Modes       []CameraMode
	CodecMime   string
}

// ListActive returns a snapshot of every device with a running worker.
func (r *Registry) ListActive() []CameraStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]CameraStatus, 0, len(r.workers))
	for path, w := range r.workers {
		out = append(out, CameraStatus{
			Path:        path,
			CurrentMode: w.CurrentMode(),
			Modes:       w.Modes(),
			CodecMime:   w.CodecMime(),
		})
	}
	return out
}

// Shutdown signals every currently running worker to exit at its next loop
// iteration and waits for each to finish, or until ctx is done. A worker
// blocked in its reader's Read call only observes the shutdown flag once
// that call returns, so shutdown is best-effort within ctx's deadline, not
// instantaneous.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	workers := make([]*CameraWorker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	r.mu.Unlock()

	for _, w := range workers {
		w.requestShutdown()
	}
	for _, w := range workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			return
		}
	}
}

// Inspect returns the status of a single device's worker, if running.
func (r *Registry) Inspect(path DevicePath) (CameraStatus, bool) {
	r.mu.Lock()
	w, ok := r.workers[path]
	r.mu.Unlock()
	if !ok {
		return CameraStatus{}, false
	}
	return CameraStatus{
		Path:        path,
		CurrentMode: w.CurrentMode(),
		Modes:       w.Modes(),
		CodecMime:   w.CodecMime(),
	}, true
}
