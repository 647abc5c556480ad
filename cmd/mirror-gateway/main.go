// ABOUTME: Entry point for the mirror-gateway signaling server
// ABOUTME: Serves the player page and brokers WebRTC sessions for mirrored video

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/mirrorcast/mirror-gateway/internal/config"
	"github.com/mirrorcast/mirror-gateway/internal/gateway"
	"github.com/mirrorcast/mirror-gateway/internal/media"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
           _
 _ __ ___ (_)_ __ _ __ ___  _ __       __ _  __ _| |_ _____      ____ _ _   _
| '_ ' _ \| | '__| '__/ _ \| '__|____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| | | | | | | |  | | | (_) | | |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
|_| |_| |_|_|_|  |_|  \___/|_|        \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                                      |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: MIRROR_CONFIG env var > XDG_CONFIG_HOME/mirrorcast/gateway.yaml > ~/.config/mirrorcast/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("MIRROR_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "mirrorcast", "gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: mirror-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the signaling gateway")
		fmt.Println("  version   Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := flags.String("config", "", "path to config file")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		*configPath = getConfigPath()
	}

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration, falling back to defaults when no file exists
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	engine, err := media.NewEngine(media.EngineConfig{
		STUNServer:   cfg.WebRTC.STUNServer,
		TURNServer:   cfg.WebRTC.TURNServer,
		TURNUsername: cfg.WebRTC.TURNUsername,
		TURNPassword: cfg.WebRTC.TURNPassword,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating media engine: %w", err)
	}
	defer engine.Close()

	gw := gateway.New(cfg, engine, &logEvents{logger: logger}, logger)
	if err := gw.Start(); err != nil {
		return fmt.Errorf("starting gateway: %w", err)
	}

	// Startup info
	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", *configPath)
	green.Print("    ▶ ")
	fmt.Printf("Listen:   %s\n", gw.Addr())
	green.Print("    ▶ ")
	fmt.Printf("Clients:  %d max\n", cfg.Server.MaxClients)
	fmt.Println()

	logger.Info("starting mirror-gateway",
		"config", *configPath,
		"listen_addr", gw.Addr().String(),
		"max_clients", cfg.Server.MaxClients,
	)

	<-ctx.Done()
	logger.Info("shutting down")
	gw.Stop()
	gw.Wait()
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// logEvents reports gateway lifecycle callbacks through the logger.
type logEvents struct {
	logger *slog.Logger
}

func (e *logEvents) ClientConnected(index int) {
	e.logger.Info("client connected", "client", index)
}

func (e *logEvents) ClientDisconnected(index int) {
	e.logger.Info("client disconnected", "client", index)
}

func (e *logEvents) Error(err error) {
	e.logger.Warn("client error", "error", err)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
