package rtcsession

import "errors"

// ErrSessionSetup wraps any failure during New: PC creation, local track
// attach, SDP negotiation, or ICE gathering. The caller discards the
// session on this error; nothing partial is left running.
var ErrSessionSetup = errors.New("rtcsession: session setup failed")

// ErrUnsupportedCodec is returned when a camera worker's reported codec
// mime type has no matching local-track RTPCodecCapability registered on
// the shared media engine.
var ErrUnsupportedCodec = errors.New("rtcsession: unsupported codec")
