package logbuf

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestWriteSplitsLines(t *testing.T) {
	b := NewBuffer(10)
	_, _ = b.Write([]byte("first\nsecond\npartial"))

	snap := b.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 complete lines, got %d: %v", len(snap), snap)
	}
	if snap[0].Msg != "first" || snap[1].Msg != "second" {
		t.Fatalf("unexpected lines: %+v", snap)
	}
}

func TestRingEvictsOldest(t *testing.T) {
	b := NewBuffer(2)
	_, _ = b.Write([]byte("a\nb\nc\n"))

	snap := b.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 retained lines, got %d", len(snap))
	}
	if snap[0].Msg != "b" || snap[1].Msg != "c" {
		t.Fatalf("expected oldest evicted, got %+v", snap)
	}
}

func TestServeJSON(t *testing.T) {
	b := NewBuffer(10)
	_, _ = b.Write([]byte("hello\n"))

	req := httptest.NewRequest("GET", "/stream/logs", nil)
	rec := httptest.NewRecorder()
	b.ServeJSON(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestParseLineExtractsComponentAndPath(t *testing.T) {
	b := NewBuffer(10)
	_, _ = b.Write([]byte("CAMERA [/dev/video0]: read error, closing all subscribers: eof\n"))
	_, _ = b.Write([]byte("RTC [/dev/video1]: PC state -> connected\n"))
	_, _ = b.Write([]byte("httpapi: listening on :3600\n"))

	snap := b.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 lines, got %d: %+v", len(snap), snap)
	}

	if snap[0].Component != "CAMERA" || snap[0].Path != "/dev/video0" || snap[0].Msg != "read error, closing all subscribers: eof" {
		t.Fatalf("unexpected bracket-form entry: %+v", snap[0])
	}
	if snap[1].Component != "RTC" || snap[1].Path != "/dev/video1" {
		t.Fatalf("unexpected bracket-form entry: %+v", snap[1])
	}
	if snap[2].Component != "httpapi" || snap[2].Path != "" || snap[2].Msg != "listening on :3600" {
		t.Fatalf("unexpected plain-form entry: %+v", snap[2])
	}
}

func TestServeJSONFiltersByPath(t *testing.T) {
	b := NewBuffer(10)
	_, _ = b.Write([]byte("CAMERA [/dev/video0]: opened\n"))
	_, _ = b.Write([]byte("CAMERA [/dev/video1]: opened\n"))

	req := httptest.NewRequest("GET", "/stream/logs?path=/dev/video0", nil)
	rec := httptest.NewRecorder()
	b.ServeJSON(rec, req)

	var got []Entry
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Path != "/dev/video0" {
		t.Fatalf("expected only /dev/video0 entry, got %+v", got)
	}
}
