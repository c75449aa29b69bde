// Package httpapi exposes the camera multiplexer over HTTP: camera
// listing, session negotiation, mode inspection and switching, all
// mounted under a "/stream" prefix, plus a /healthz check, a rolling log
// tail, and a per-session debug snapshot.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/petervdpas/goop2/internal/camera"
	"github.com/petervdpas/goop2/internal/devprobe"
	"github.com/petervdpas/goop2/internal/logbuf"
	"github.com/petervdpas/goop2/internal/rtcsession"
	"github.com/petervdpas/goop2/internal/util"
)

// Server is the HTTP surface over one Registry and one rtcsession Engine:
// an addr, an *http.Server, and references to its collaborators, built
// once in New and started with Start.
type Server struct {
	addr     string
	registry *camera.Registry
	engine   *rtcsession.Engine
	probe    *devprobe.Probe
	logs     *logbuf.Buffer

	srv *http.Server

	mu       sync.Mutex
	sessions map[camera.DevicePath][]*rtcsession.Session
}

// New builds a Server listening on addr, serving cameras through
// registry, and negotiating WebRTC sessions through engine. probe
// supplies the set of device paths GET /stream/cameras reports as
// available; the registry itself tracks no such list. logs may be nil,
// in which case the /stream/logs endpoints report an empty log.
func New(addr string, registry *camera.Registry, engine *rtcsession.Engine, probe *devprobe.Probe, logs *logbuf.Buffer) *Server {
	if logs == nil {
		logs = logbuf.NewBuffer(0)
	}
	return &Server{
		addr:     addr,
		registry: registry,
		engine:   engine,
		probe:    probe,
		logs:     logs,
		sessions: make(map[camera.DevicePath][]*rtcsession.Session),
	}
}

// routes builds the mux. Split out of Start so tests can exercise the
// handlers directly with httptest.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /stream/cameras", s.handleListCameras)
	mux.HandleFunc("POST /stream/cameras/{path}/start", s.handleStart)
	mux.HandleFunc("GET /stream/cameras/{path}/modes", s.handleModes)
	mux.HandleFunc("GET /stream/cameras/{path}/modes/current", s.handleCurrentMode)
	mux.HandleFunc("PUT /stream/cameras/{path}/modes/set/{index}", s.handleSetMode)
	mux.HandleFunc("GET /stream/cameras/{path}/debug", s.handleDebug)
	mux.HandleFunc("GET /stream/logs", func(w http.ResponseWriter, r *http.Request) { s.logs.ServeJSON(w, r) })
	mux.HandleFunc("GET /stream/logs/tail", func(w http.ResponseWriter, r *http.Request) { s.logs.ServeSSE(w, r) })

	return mux
}

func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: util.DefaultFetchTimeout,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen %s: %w", s.addr, err)
	}

	go func() {
		<-ctx.Done()
		shctx, cancel := context.WithTimeout(context.Background(), util.ShortTimeout)
		defer cancel()
		_ = s.srv.Shutdown(shctx)
	}()

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("httpapi: server error: %v", err)
		}
	}()

	log.Printf("httpapi: listening on %s", s.addr)
	return nil
}

// pathParam decodes the {path} wildcard back into a DevicePath. The route
// pattern captures only the final path segment, so callers pass device
// paths encoded as one segment (e.g. "dev-video0" instead of
// "/dev/video0") — devprobe.Encode and devprobe.Decode perform that
// mapping both ways.
func pathParam(r *http.Request) camera.DevicePath {
	return devprobe.Decode(r.PathValue("path"))
}

func (s *Server) handleListCameras(w http.ResponseWriter, r *http.Request) {
	paths := s.probe.Available()
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, devprobe.Encode(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r)

	var body struct {
		SDP  string `json:"sdp"`
		Type string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid offer body", http.StatusBadRequest)
		return
	}
	if body.SDP == "" {
		http.Error(w, "missing sdp", http.StatusBadRequest)
		return
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: body.SDP}
	answer, sess, err := rtcsession.New(s.engine, s.registry, path, offer)
	if err != nil {
		log.Printf("httpapi: session setup failed for %s: %v", path, err)
		http.Error(w, "session setup failed", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	s.sessions[path] = append(s.sessions[path], sess)
	s.mu.Unlock()
	go s.pruneOnClose(path, sess)

	writeJSON(w, http.StatusOK, map[string]string{
		"sdp":  answer.SDP,
		"type": "answer",
	})
}

func (s *Server) handleModes(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r)
	status, ok := s.registry.Inspect(path)
	if !ok {
		http.Error(w, "camera not active", http.StatusBadRequest)
		return
	}
	out := make(map[string]string, len(status.Modes))
	for i, m := range status.Modes {
		out[strconv.Itoa(i)] = m.String()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCurrentMode(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r)
	status, ok := s.registry.Inspect(path)
	if !ok {
		http.Error(w, "camera not active", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, status.CurrentMode.String())
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r)
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, "invalid mode index", http.StatusBadRequest)
		return
	}
	if err := s.registry.SetMode(path, idx); err != nil {
		if errors.Is(err, camera.ErrUnknownPath) {
			http.Error(w, "camera not active", http.StatusBadRequest)
			return
		}
		if errors.Is(err, camera.ErrInvalidModeIndex) {
			http.Error(w, "invalid mode index", http.StatusBadRequest)
			return
		}
		http.Error(w, "set mode failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// pruneOnClose removes sess from s.sessions[path] once it tears down, so
// handleDebug doesn't accumulate dead sessions across repeated
// start/disconnect cycles.
func (s *Server) pruneOnClose(path camera.DevicePath, sess *rtcsession.Session) {
	<-sess.Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.sessions[path]
	for i, cur := range list {
		if cur == sess {
			s.sessions[path] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
}

// handleDebug returns a point-in-time snapshot of every active session on
// a camera, useful for manual verification without a browser.
func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r)
	s.mu.Lock()
	sessions := append([]*rtcsession.Session(nil), s.sessions[path]...)
	s.mu.Unlock()

	out := make([]rtcsession.SessionStatus, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Status())
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
