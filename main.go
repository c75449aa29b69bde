// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/petervdpas/goop2/internal/camera"
	"github.com/petervdpas/goop2/internal/capture"
	"github.com/petervdpas/goop2/internal/config"
	"github.com/petervdpas/goop2/internal/devprobe"
	"github.com/petervdpas/goop2/internal/httpapi"
	"github.com/petervdpas/goop2/internal/logbuf"
	"github.com/petervdpas/goop2/internal/rtcsession"
	"github.com/petervdpas/goop2/internal/util"
)

var (
	showHelp = flag.Bool("h", false, "Show help")
	version  = flag.Bool("version", false, "Show version")
	cfgFlag  = flag.String("config", "", "Path to config file (default: ./goop2.json)")
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z"
var appVersion = "dev"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("goop2 v%s\n", appVersion)
		return
	}
	if *showHelp {
		showUsage()
		return
	}

	cfgPath := *cfgFlag
	if cfgPath == "" {
		cfgPath = "goop2.json"
	}
	absCfgPath, err := filepath.Abs(cfgPath)
	if err != nil {
		log.Fatalf("invalid config path: %v", err)
	}

	cfg, created, err := config.Ensure(absCfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	printBanner(absCfgPath, created, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("goop2: %v", err)
	}
}

// run wires up the four long-lived collaborators (capture.Opener,
// camera.Registry, rtcsession.Engine, httpapi.Server) and blocks until
// ctx is cancelled.
func run(ctx context.Context, cfg config.Config) error {
	logs := logbuf.NewBuffer(500)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))

	opener := capture.NewOpener(cfg.Capture.BufferCount, cfg.Capture.VP8BitRateBps)
	registry := camera.NewRegistry(opener)
	probe := devprobe.Run(cfg.Capture.DevicePattern, opener)

	engine, err := rtcsession.NewEngine(cfg.WebRTC.ICEServers)
	if err != nil {
		return fmt.Errorf("new media engine: %w", err)
	}

	srv := httpapi.New(cfg.HTTP.Addr, registry, engine, probe, logs)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	<-ctx.Done()

	shCtx, cancel := context.WithTimeout(context.Background(), util.ShortTimeout)
	defer cancel()
	registry.Shutdown(shCtx)
	return nil
}

func showUsage() {
	fmt.Println("goop2 - camera multiplexer")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  goop2 [-config <path>]     Run the camera multiplexer")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -config <path>  Path to config file (default: ./goop2.json)")
	fmt.Println("  -h              Show this help message")
	fmt.Println("  -version        Show version information")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  goop2")
	fmt.Println("  goop2 -config /etc/goop2/config.json")
}

func printBanner(cfgPath string, created bool, cfg config.Config) {
	fmt.Println("╔════════════════════════════════════════════════════════╗")
	fmt.Println("║                 goop2 camera multiplexer                ║")
	fmt.Println("╚════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Config File:     %s\n", cfgPath)
	if created {
		fmt.Println("Config Status:   created with defaults")
	}
	fmt.Printf("Device Pattern:  %s\n", cfg.Capture.DevicePattern)
	addr := cfg.HTTP.Addr
	if addr != "" && addr[0] == ':' {
		addr = "http://127.0.0.1" + addr
	}
	fmt.Printf("HTTP Surface:    %s\n", addr)
	fmt.Println()
	fmt.Println("Starting... (Press Ctrl+C to stop)")
	fmt.Println("────────────────────────────────────────────────────────")
	fmt.Println()
}
