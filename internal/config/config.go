// internal/config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/petervdpas/goop2/internal/util"
)

// Config is the process-wide configuration: the HTTP surface's listen
// address, the capture side's device discovery and encode parameters,
// and the WebRTC side's ICE server list.
type Config struct {
	HTTP    HTTP    `json:"http"`
	Capture Capture `json:"capture"`
	WebRTC  WebRTC  `json:"webrtc"`
}

type HTTP struct {
	Addr string `json:"addr"`
}

type Capture struct {
	// DevicePattern is the filepath.Glob pattern internal/devprobe uses
	// to discover candidate device nodes at startup.
	DevicePattern string `json:"device_pattern"`

	// BufferCount is the number of V4L2 capture buffers requested per
	// device. Defaults to 1 rather than a deeper ring: each subscriber
	// sink downstream holds a single frame and a subscriber that falls
	// behind is evicted, so a bigger V4L2 ring would only add another
	// layer of staleness ahead of that stage.
	BufferCount uint32 `json:"buffer_count"`

	// VP8BitRateBps is the target bitrate for the VP8 transcode fallback
	// path; devices that natively produce H264 ignore it.
	VP8BitRateBps int `json:"vp8_bitrate_bps"`
}

type WebRTC struct {
	// ICEServers is the list of STUN/TURN URLs passed to every peer
	// connection the Media Engine Factory mints.
	ICEServers []string `json:"ice_servers"`
}

func Default() Config {
	return Config{
		HTTP: HTTP{
			Addr: ":3600",
		},
		Capture: Capture{
			DevicePattern: "/dev/video*",
			BufferCount:   1,
			VP8BitRateBps: 1_500_000,
		},
		WebRTC: WebRTC{
			ICEServers: []string{"stun:stun.l.google.com:19302"},
		},
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("http.addr is required")
	}

	if strings.TrimSpace(c.Capture.DevicePattern) == "" {
		return errors.New("capture.device_pattern is required")
	}
	if c.Capture.BufferCount == 0 {
		return errors.New("capture.buffer_count must be > 0")
	}
	if c.Capture.VP8BitRateBps <= 0 {
		return errors.New("capture.vp8_bitrate_bps must be > 0")
	}

	for _, raw := range c.WebRTC.ICEServers {
		if err := validateICEServerURL(raw); err != nil {
			return fmt.Errorf("webrtc.ice_servers: %q: %w", raw, err)
		}
	}

	return nil
}

func validateICEServerURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %v", err)
	}
	switch u.Scheme {
	case "stun", "stuns", "turn", "turns":
	default:
		return errors.New("scheme must be stun, stuns, turn, or turns")
	}
	if u.Opaque == "" && u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// Start from defaults so missing JSON fields remain initialized.
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return util.WriteJSONFile(path, cfg)
}

// Ensure loads config if it exists; otherwise creates a default config file.
// Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	return cfg, true, nil
}
