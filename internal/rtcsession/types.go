package rtcsession

import "time"

// SampleDuration is the fixed presentation duration written on every
// forwarded sample, independent of the camera's actual frame interval.
// Downstream jitter-buffer timing assumes this fixed contract, so it is
// not silently derived from current_mode.frame_interval — threading that
// through would require widening the Subscriber Sink to also report mode
// changes to the forwarder, which is out of scope here.
//
// TODO: wire SampleDuration from the active CameraMode's frame_interval
// once Registry exposes per-frame mode metadata on the consumer side
// rather than only on CameraStatus snapshots.
const SampleDuration = 20 * time.Millisecond

// iceConnectTimeout bounds how long the forwarder waits for the peer's ICE
// connection to reach Connected before giving up silently.
const iceConnectTimeout = 5 * time.Second

// SessionStatus is a point-in-time snapshot of a Session, returned by the
// debug inspection endpoint.
type SessionStatus struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	CodecMime string `json:"codec_mime"`
	PCState   string `json:"pc_state"`
	Connected bool   `json:"connected"`
	Dead      bool   `json:"dead"`
}
