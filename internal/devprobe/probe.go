// Package devprobe implements the startup device probe: computed once at
// process start by attempting to open every enumerated V4L2 node and
// keeping only the ones that succeed. The camera Registry never
// consults this list itself — it exists purely for internal/httpapi's
// GET /stream/cameras.
package devprobe

import (
	"log"
	"path/filepath"
	"sort"
	"strings"

	"github.com/petervdpas/goop2/internal/camera"
)

// Probe holds the set of device paths that passed a minimal open+close
// check at startup. Immutable after Run: this module does not implement
// hot-plug detection.
type Probe struct {
	available []camera.DevicePath
}

// Available returns the probed device paths, in discovery order.
func (p *Probe) Available() []camera.DevicePath {
	return p.available
}

// Run globs devicePattern (by convention "/dev/video*"), and for each
// match attempts opener.Enumerate + Opener.Open on its default mode
// followed by an immediate Close, discarding any device that fails
// either step. Grounded on the discover()/filepath.Glob pattern
// pion/mediadevices' own V4L2 camera driver uses to find device nodes.
func Run(devicePattern string, opener camera.Opener) *Probe {
	matches, err := filepath.Glob(devicePattern)
	if err != nil {
		log.Printf("devprobe: glob %q: %v", devicePattern, err)
		return &Probe{}
	}
	sort.Strings(matches)

	available := make([]camera.DevicePath, 0, len(matches))
	for _, m := range matches {
		path := camera.DevicePath(m)
		modes, err := opener.Enumerate(path)
		if err != nil || len(modes) == 0 {
			log.Printf("devprobe: %s not usable: %v", path, err)
			continue
		}
		reader, err := opener.Open(path, modes[len(modes)-1])
		if err != nil {
			log.Printf("devprobe: %s open failed: %v", path, err)
			continue
		}
		_ = reader.Close()
		available = append(available, path)
	}

	log.Printf("devprobe: %d of %d device nodes usable", len(available), len(matches))
	return &Probe{available: available}
}

// Encode maps a DevicePath to a URL path segment with no slashes, since
// an HTTP route's single {path} wildcard segment cannot carry one.
// "/dev/video0" -> "dev-video0". Device paths under /dev never contain a
// literal hyphen-separated ambiguity in practice (V4L2 node names are
// "videoN"), so this mapping is unambiguous for its actual input domain.
func Encode(path camera.DevicePath) string {
	return strings.TrimPrefix(strings.ReplaceAll(string(path), "/", "-"), "-")
}

// Decode reverses Encode: "dev-video0" -> "/dev/video0".
func Decode(segment string) camera.DevicePath {
	return camera.DevicePath("/" + strings.ReplaceAll(segment, "-", "/"))
}
