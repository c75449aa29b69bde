package rtcsession

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/petervdpas/goop2/internal/camera"
)

// Session models one WebRTC client attached to one camera. Its only
// collaborators are the shared Engine and the camera Registry; it never
// talks to another Session.
type Session struct {
	id        string
	path      camera.DevicePath
	codecMime string

	pc       *webrtc.PeerConnection
	consumer *camera.SubscriberConsumer

	mu      sync.Mutex
	pcState webrtc.PeerConnectionState

	// peerDead is set once the peer connection transitions to Disconnected
	// or Failed; the forwarder observes it on its next iteration and closes
	// the peer connection.
	peerDead atomic.Bool

	// connectedCh is closed exactly once, the first time ICE reaches
	// Connected. The forwarder waits on it with a timeout before sending
	// any samples.
	connectedOnce sync.Once
	connectedCh   chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// New performs the full session setup sequence: subscribe to path's
// camera to learn its codec and obtain a sink consumer, mint a
// PeerConnection from engine, attach a matching local track, install the
// RTCP drain and connection-state observers, start the forwarder,
// negotiate the offer/answer, and wait for ICE gathering to finish before
// returning the answer SDP.
//
// Subscribing to the camera happens before the local track is created,
// because the track's codec must match whatever the camera's worker
// actually produces (native H264 or the VP8 fallback), and that is only
// known once a worker exists — Subscribe is what guarantees one does.
func New(engine *Engine, registry *camera.Registry, path camera.DevicePath, offer webrtc.SessionDescription) (answer webrtc.SessionDescription, sess *Session, err error) {
	consumer, err := registry.Subscribe(path)
	if err != nil {
		return webrtc.SessionDescription{}, nil, fmt.Errorf("%w: subscribe %s: %v", ErrSessionSetup, path, err)
	}

	status, ok := registry.Inspect(path)
	if !ok {
		consumer.Close()
		return webrtc.SessionDescription{}, nil, fmt.Errorf("%w: %s vanished immediately after subscribe", ErrSessionSetup, path)
	}

	capability, err := codecCapabilityFor(status.CodecMime)
	if err != nil {
		consumer.Close()
		return webrtc.SessionDescription{}, nil, fmt.Errorf("%w: %v", ErrSessionSetup, err)
	}

	pc, err := engine.newPeerConnection()
	if err != nil {
		consumer.Close()
		return webrtc.SessionDescription{}, nil, fmt.Errorf("%w: new peer connection: %v", ErrSessionSetup, err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(capability, "video", string(path))
	if err != nil {
		consumer.Close()
		_ = pc.Close()
		return webrtc.SessionDescription{}, nil, fmt.Errorf("%w: new local track: %v", ErrSessionSetup, err)
	}

	sender, err := pc.AddTrack(track)
	if err != nil {
		consumer.Close()
		_ = pc.Close()
		return webrtc.SessionDescription{}, nil, fmt.Errorf("%w: add track: %v", ErrSessionSetup, err)
	}

	s := &Session{
		id:          uuid.NewString(),
		path:        path,
		codecMime:   status.CodecMime,
		pc:          pc,
		consumer:    consumer,
		connectedCh: make(chan struct{}),
		done:        make(chan struct{}),
	}

	go s.drainSenderRTCP(sender)

	// The forwarder's start signal is ICE reaching Connected specifically:
	// that is the connectivity-check state in which the peer can accept
	// media, and it settles before the overall PeerConnection state machine
	// does. peerDead is read off the separate PeerConnection state instead,
	// since Disconnected/Failed there is the terminal signal.
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Printf("RTC [%s]: ICE state -> %s", s.path, state)
		if state == webrtc.ICEConnectionStateConnected {
			s.connectedOnce.Do(func() { close(s.connectedCh) })
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.mu.Lock()
		s.pcState = state
		s.mu.Unlock()
		log.Printf("RTC [%s]: PC state -> %s", s.path, state)

		switch state {
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
			s.peerDead.Store(true)
		}
	})

	go s.forward(track)

	if err := pc.SetRemoteDescription(offer); err != nil {
		s.Close()
		return webrtc.SessionDescription{}, nil, fmt.Errorf("%w: set remote description: %v", ErrSessionSetup, err)
	}

	ans, err := pc.CreateAnswer(nil)
	if err != nil {
		s.Close()
		return webrtc.SessionDescription{}, nil, fmt.Errorf("%w: create answer: %v", ErrSessionSetup, err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(ans); err != nil {
		s.Close()
		return webrtc.SessionDescription{}, nil, fmt.Errorf("%w: set local description: %v", ErrSessionSetup, err)
	}
	<-gatherComplete

	final := pc.LocalDescription()
	if final == nil {
		s.Close()
		return webrtc.SessionDescription{}, nil, fmt.Errorf("%w: no local description after gathering", ErrSessionSetup)
	}

	log.Printf("RTC [%s]: session ready, codec=%s", path, status.CodecMime)
	return *final, s, nil
}

// forward is the forwarder task: wait up to
// iceConnectTimeout for ICE Connected and exit silently on timeout, then
// pull frames from the sink consumer and write each as a sample with the
// fixed SampleDuration, until the sink closes or peer_dead is observed.
func (s *Session) forward(track *webrtc.TrackLocalStaticSample) {
	defer s.Close()

	select {
	case <-s.connectedCh:
	case <-time.After(iceConnectTimeout):
		log.Printf("RTC [%s]: ICE not connected within %s, forwarder exiting", s.path, iceConnectTimeout)
		return
	case <-s.done:
		return
	}

	for {
		if s.peerDead.Load() {
			return
		}

		frame, ok := s.consumer.Recv()
		if !ok {
			log.Printf("RTC [%s]: sink closed, forwarder exiting", s.path)
			return
		}
		if s.peerDead.Load() {
			return
		}
		if err := track.WriteSample(media.Sample{Data: frame.Data, Duration: SampleDuration}); err != nil {
			log.Printf("RTC [%s]: write sample error: %v", s.path, err)
			return
		}
	}
}

// drainSenderRTCP reads and discards RTCP feedback from sender so the
// transport stays responsive, mirroring a read-discard loop against a
// sender's RTCP reader instead of a remote track.
func (s *Session) drainSenderRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// Done returns a channel that closes once the session has torn down, so a
// caller tracking its own sessions (internal/httpapi) can prune it without
// polling Status.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Status returns a snapshot for the debug inspection endpoint.
func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	state := s.pcState
	s.mu.Unlock()
	return SessionStatus{
		ID:        s.id,
		Path:      string(s.path),
		CodecMime: s.codecMime,
		PCState:   state.String(),
		Connected: state == webrtc.PeerConnectionStateConnected,
		Dead:      s.peerDead.Load(),
	}
}

// Close tears the session down: drops the sink subscription and closes
// the peer connection. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.consumer.Close()
		_ = s.pc.Close()
	})
}
