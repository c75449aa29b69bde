package rtcsession

import (
	"fmt"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// payload types for the two codecs this module ever registers. Fixed,
// not negotiated, since the media engine is process-wide and immutable
// once built.
const (
	payloadTypeH264 webrtc.PayloadType = 102
	payloadTypeVP8  webrtc.PayloadType = 96
)

// Engine is the shared, process-wide WebRTC stack: one webrtc.API built
// with both codecs this module ever produces — native H264 passthrough
// and the VP8 transcode fallback — plus default interceptors. Every
// Session mints its PeerConnection from the same Engine; Engine itself
// holds no per-peer state and is safe for concurrent use.
type Engine struct {
	api        *webrtc.API
	iceServers []webrtc.ICEServer
}

// NewEngine builds the shared media engine: a webrtc.SettingEngine with
// generous ICE timeouts (a brief NAT/relay hiccup should not tear down a
// session) and webrtc.RegisterDefaultInterceptors for RTCP/NACK/TWCC
// handling.
func NewEngine(stunURLs []string) (*Engine, error) {
	mediaEngine := &webrtc.MediaEngine{}

	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeH264,
			ClockRate:   90000,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		},
		PayloadType: payloadTypeH264,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register H264 codec: %w", err)
	}

	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
		},
		PayloadType: payloadTypeVP8,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register VP8 codec: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("register default interceptors: %w", err)
	}

	// 30s disconnect timeout: the default 5s is too short for a relay path
	// that briefly drops during ICE re-keying.
	se := webrtc.SettingEngine{}
	se.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)

	servers := make([]webrtc.ICEServer, 0, len(stunURLs))
	for _, u := range stunURLs {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}

	return &Engine{api: api, iceServers: servers}, nil
}

// newPeerConnection mints one PeerConnection from the shared API.
func (e *Engine) newPeerConnection() (*webrtc.PeerConnection, error) {
	return e.api.NewPeerConnection(webrtc.Configuration{ICEServers: e.iceServers})
}

// codecCapabilityFor returns the RTPCodecCapability matching mime, or
// ErrUnsupportedCodec if mime is neither codec registered on this engine.
func codecCapabilityFor(mime string) (webrtc.RTPCodecCapability, error) {
	switch mime {
	case webrtc.MimeTypeH264:
		return webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeH264,
			ClockRate:   90000,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		}, nil
	case webrtc.MimeTypeVP8:
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, nil
	default:
		return webrtc.RTPCodecCapability{}, fmt.Errorf("%w: %q", ErrUnsupportedCodec, mime)
	}
}
