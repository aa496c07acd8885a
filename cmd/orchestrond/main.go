// Command orchestrond is the headless patch-compiler/session-runtime
// server: it exposes the HTTP/WebSocket API under internal/transport,
// persists documents through internal/persistence, and optionally runs
// the internal/monitor debug dashboard alongside it.
package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/schollz/orchestron/internal/engine"
	"github.com/schollz/orchestron/internal/monitor"
	"github.com/schollz/orchestron/internal/persistence"
	"github.com/schollz/orchestron/internal/session"
	"github.com/schollz/orchestron/internal/supercollider"
	"github.com/schollz/orchestron/internal/transport"
)

// configError marks a bad flag/env combination, reported with exit code 2
// per spec.md §6 ("2 configuration error") rather than the generic 1 used
// for other startup failures.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func main() {
	err := newServeCmd().Execute()
	if err == nil {
		return
	}
	var cfgErr *configError
	if errors.As(err, &cfgErr) {
		log.Printf("configuration error: %v", cfgErr)
		os.Exit(2)
	}
	log.Printf("fatal: %v", err)
	os.Exit(1)
}

func newServeCmd() *cobra.Command {
	var (
		host           string
		port           int
		dataDir        string
		audioMode      string
		corsOrigins    string
		logLevel       string
		debugDashboard string
		noReload       bool
		skipJackCheck  bool
	)

	cmd := &cobra.Command{
		Use:   "orchestrond",
		Short: "orchestron patch-compiler and session-runtime server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(serveOptions{
				host:           host,
				port:           port,
				dataDir:        dataDir,
				audioMode:      audioMode,
				corsOrigins:    corsOrigins,
				logLevel:       logLevel,
				debugDashboard: debugDashboard,
				noReload:       noReload,
				skipJackCheck:  skipJackCheck,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&host, "host", envOr("ORCHESTRON_HOST", "127.0.0.1"), "address to bind the HTTP/WebSocket API to")
	flags.IntVar(&port, "port", envIntOr("ORCHESTRON_PORT", 8420), "port to bind the HTTP/WebSocket API to")
	flags.StringVar(&dataDir, "data-dir", envOr("ORCHESTRON_DATA_DIR", "./data"), "directory holding persisted patches, performances, and app state")
	flags.StringVar(&audioMode, "audio-output-mode", envOr("AUDIO_OUTPUT_MODE", "local"), "default output mode for sessions that don't request one explicitly: local or streaming")
	flags.StringVar(&corsOrigins, "cors-origins", envOr("CORS_ORIGINS", ""), "comma-separated list of allowed CORS origins (empty allows all)")
	flags.StringVar(&logLevel, "log-level", envOr("ORCHESTRON_LOG_LEVEL", "info"), "log verbosity: debug, info, or quiet")
	flags.StringVar(&debugDashboard, "debug", "", "session id to monitor with the terminal dashboard instead of plain logging")
	flags.BoolVar(&noReload, "no-reload", false, "disable debounced app-state persistence batching (write through immediately)")
	flags.BoolVar(&skipJackCheck, "skip-jack-check", false, "skip the JACK/SuperCollider readiness check before serving (for tests and headless CI)")

	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fallback
	}
	return n
}

type serveOptions struct {
	host           string
	port           int
	dataDir        string
	audioMode      string
	corsOrigins    string
	logLevel       string
	debugDashboard string
	noReload       bool
	skipJackCheck  bool
}

func serve(opts serveOptions) error {
	configureLogging(opts.logLevel)

	streaming, err := parseAudioOutputMode(opts.audioMode)
	if err != nil {
		return &configError{err}
	}

	if !opts.skipJackCheck {
		if err := checkSuperColliderReady(); err != nil {
			return err
		}
	}

	gateway, err := persistence.NewGateway(opts.dataDir)
	if err != nil {
		return fmt.Errorf("open data dir: %w", err)
	}
	if opts.noReload {
		gateway.DisableAppStateDebounce()
	}

	// The native backend drives an external synthesis process over OSC, the
	// same way the teacher's collidertracker talks to SuperCollider; the
	// mock backend is a test-only construction path used by internal/session
	// and internal/transport's own test suites, never by this binary.
	newEngine := func() engine.Adapter { return engine.NewNative() }

	registry := transport.NewBridgeRegistry()
	mgr := session.NewManager(gateway, newEngine, transport.NewBridgeFactory(registry))

	srv := transport.NewServer(mgr, gateway, registry, transport.Config{
		CORSOrigins:      splitCSV(opts.corsOrigins),
		EngineBackend:    "native",
		DefaultStreaming: streaming,
	})

	setupCleanupOnExit()

	if opts.debugDashboard != "" {
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Run(fmt.Sprintf("%s:%d", opts.host, opts.port))
		}()
		if err := monitor.Run(mgr, gateway, opts.debugDashboard); err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		return <-errCh
	}

	log.Printf("orchestrond listening on %s:%d (audio-output-mode=%s, data=%s)", opts.host, opts.port, opts.audioMode, opts.dataDir)
	return srv.Run(fmt.Sprintf("%s:%d", opts.host, opts.port))
}

// checkSuperColliderReady gates the native engine on the same two
// preconditions the teacher's main.go checks before starting its tracker:
// a running JACK server and the SuperCollider extensions the compiled
// instruments depend on. The JACK dialog always ends startup with an error
// once dismissed; the install dialog does too, unless the user confirms and
// the install succeeds, in which case startup continues.
func checkSuperColliderReady() error {
	if !supercollider.IsJackEnabled() {
		p := tea.NewProgram(supercollider.NewJackDialogModel(), tea.WithAltScreen())
		_, _ = p.Run()
		return errors.New("JACK server not detected")
	}

	if !supercollider.HasRequiredExtensions() {
		p := tea.NewProgram(supercollider.NewInstallDialogModel(), tea.WithAltScreen())
		finalModel, err := p.Run()
		if err != nil {
			return fmt.Errorf("install dialog: %w", err)
		}
		result, ok := finalModel.(supercollider.InstallDialogModel)
		if !ok || !result.ShouldInstall() {
			return errors.New("required SuperCollider extensions not installed")
		}
		if result.Error() != nil {
			return fmt.Errorf("install required extensions: %w", result.Error())
		}
	}
	return nil
}

func parseAudioOutputMode(mode string) (streaming bool, err error) {
	switch mode {
	case "local", "":
		return false, nil
	case "streaming":
		return true, nil
	default:
		return false, fmt.Errorf("unknown audio output mode %q (expected local or streaming)", mode)
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func configureLogging(level string) {
	switch level {
	case "quiet":
		log.SetOutput(io.Discard)
	case "debug":
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	default:
		log.SetFlags(log.LstdFlags)
	}
}

func setupCleanupOnExit() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-c
		supercollider.Cleanup()
		os.Exit(0)
	}()
}
