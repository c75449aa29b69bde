// Package logbuf keeps a rolling window of recent log lines in memory and
// lets HTTP clients read or tail them: the multiplexer's own operational
// log, exposed without needing an external log aggregator.
package logbuf

import (
	"bytes"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/petervdpas/goop2/internal/util"
)

// Entry is one retained log line, split into the fields the rest of the
// module's own log.Printf calls already encode by convention: a component
// tag ("CAMERA", "RTC", "httpapi", "devprobe", ...), and for the
// "COMPONENT [path]: msg" form used by internal/camera and
// internal/rtcsession, the device path the line is about. Path is empty
// for lines that don't carry one (the plain "component: msg" form used
// by internal/httpapi and internal/devprobe).
type Entry struct {
	TS        time.Time `json:"ts"`
	Component string    `json:"component,omitempty"`
	Path      string    `json:"path,omitempty"`
	Msg       string    `json:"msg"`
}

// stdLogPrefix matches the optional date/time prefix the standard log
// package writes under its default flags, so lines that reach a Buffer
// through log.SetOutput parse the same as bare ones.
const stdLogPrefix = `(?:\d{4}/\d{2}/\d{2} )?(?:\d{2}:\d{2}:\d{2}(?:\.\d+)? )?`

var (
	bracketLine = regexp.MustCompile(`^` + stdLogPrefix + `([A-Za-z][A-Za-z0-9_]*) \[(.+?)\]: (.*)$`)
	plainLine   = regexp.MustCompile(`^` + stdLogPrefix + `([A-Za-z][A-Za-z0-9_]*): (.*)$`)
)

// parseLine splits a raw log line into an Entry, recovering the component
// and device path the line was logged against whenever it follows one of
// the two conventions above. A line that matches neither is kept verbatim
// as Msg with no Component.
func parseLine(line string) Entry {
	if m := bracketLine.FindStringSubmatch(line); m != nil {
		return Entry{TS: time.Now(), Component: m[1], Path: m[2], Msg: m[3]}
	}
	if m := plainLine.FindStringSubmatch(line); m != nil {
		return Entry{TS: time.Now(), Component: m[1], Msg: m[2]}
	}
	return Entry{TS: time.Now(), Msg: line}
}

// Buffer is an io.Writer meant for log.SetOutput (directly, or via
// io.MultiWriter alongside stderr) that retains the last max lines and
// fans new ones out to any active SSE subscriber.
type Buffer struct {
	mu      sync.Mutex
	entries *util.RingBuffer[Entry]

	subs map[chan Entry]struct{}

	partial bytes.Buffer
}

func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = 500
	}
	return &Buffer{
		entries: util.NewRingBuffer[Entry](max),
		subs:    make(map[chan Entry]struct{}),
	}
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.partial.Write(p)

	for {
		data := b.partial.Bytes()
		i := bytes.IndexByte(data, '\n')
		if i == -1 {
			break
		}

		line := string(data[:i])
		b.partial.Next(i + 1)

		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		e := parseLine(line)
		b.entries.Push(e)
		b.broadcastLocked(e)
	}

	return len(p), nil
}

func (b *Buffer) broadcastLocked(e Entry) {
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *Buffer) Snapshot() []Entry {
	return b.entries.Snapshot()
}

func (b *Buffer) Subscribe() (ch chan Entry, cancel func()) {
	ch = make(chan Entry, 64)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel = func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// ServeJSON handles GET /stream/logs: a snapshot of the retained window,
// optionally narrowed with ?path= to only the lines logged against one
// device (e.g. the camera worker and RTC session lines for /dev/video0),
// since a multi-camera process otherwise interleaves every device's lines.
func (b *Buffer) ServeJSON(w http.ResponseWriter, r *http.Request) {
	snapshot := b.Snapshot()
	if path := r.URL.Query().Get("path"); path != "" {
		filtered := make([]Entry, 0, len(snapshot))
		for _, e := range snapshot {
			if e.Path == path {
				filtered = append(filtered, e)
			}
		}
		snapshot = filtered
	}
	w.Header().Set("content-type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(snapshot)
}

// ServeSSE handles GET /stream/logs/tail: new lines only, no snapshot.
func (b *Buffer) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("content-type", "text/event-stream; charset=utf-8")
	w.Header().Set("cache-control", "no-cache")
	w.Header().Set("connection", "keep-alive")

	ch, cancel := b.Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, e)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, e Entry) {
	b, _ := json.Marshal(e)
	_, _ = w.Write([]byte("event: message\n"))
	_, _ = w.Write([]byte("data: " + string(b) + "\n\n"))
}
