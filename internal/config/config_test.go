package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsEmptyAddr(t *testing.T) {
	cfg := Default()
	cfg.HTTP.Addr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty http.addr")
	}
}

func TestValidateRejectsBadICEServerScheme(t *testing.T) {
	cfg := Default()
	cfg.WebRTC.ICEServers = []string{"http://example.com"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-stun/turn scheme")
	}
}

func TestEnsureCreatesDefaultThenLoads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg, created, err := Ensure(path)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("expected created=true on first call")
	}
	if cfg.HTTP.Addr != ":3600" {
		t.Fatalf("unexpected default addr: %q", cfg.HTTP.Addr)
	}

	cfg2, created2, err := Ensure(path)
	if err != nil {
		t.Fatal(err)
	}
	if created2 {
		t.Fatal("expected created=false on second call")
	}
	if cfg2.Capture.DevicePattern != cfg.Capture.DevicePattern {
		t.Fatalf("round trip mismatch: %q vs %q", cfg2.Capture.DevicePattern, cfg.Capture.DevicePattern)
	}
}
