package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/mirrornode/pkg/api"
	"github.com/Mindburn-Labs/mirrornode/pkg/config"
	"github.com/Mindburn-Labs/mirrornode/pkg/router"
)

func runServeCmd(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, args, stdout, stderr, nil)
}

// serve runs the bridge until ctx ends. ready, when set, receives the bound
// address once the listener is open.
func serve(ctx context.Context, args []string, stdout, stderr io.Writer, ready chan<- string) int {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	cfg := config.Load()
	var adaptersFile string
	cmd.StringVar(&cfg.Port, "port", cfg.Port, "Listen port")
	cmd.StringVar(&adaptersFile, "adapters", "", "Adapters YAML file (overrides MIRRORNODE_ADAPTERS_FILE)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	l, err := openLattice(ctx, cfg, adaptersFile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		l.close(shutdownCtx)
	}()

	r := router.New(
		router.WithHistorySize(cfg.HistorySize),
		router.WithGate(l.gate),
		router.WithObservability(l.obs),
		router.WithAvailability(l.availability),
	)
	pool, err := l.orch.Pool()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	for _, a := range pool {
		if err := r.RegisterAdapter(a); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	srv := api.NewServer(r, l.orch,
		api.WithVersion(Version),
		api.WithRateLimiter(api.NewRateLimiter(cfg.RateLimitPerMinute, 0)),
		api.WithObservability(l.obs),
		api.WithCORS(cfg.CORSOrigins),
	)
	go srv.Limiter().RunSweeper(ctx)

	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: listen: %v\n", err)
		return 1
	}
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.Serve(ln) }()

	logger.InfoContext(ctx, "mirrornode ready",
		"addr", ln.Addr().String(),
		"adapters", l.orch.Adapters(),
		"audit_sink", cfg.AuditSink,
	)
	_, _ = fmt.Fprintf(stdout, "%smirrornode%s listening on %s\n", ColorBold+ColorBlue, ColorReset, ln.Addr())
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			_, _ = fmt.Fprintf(stderr, "Error: server: %v\n", err)
			return 1
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: shutdown: %v\n", err)
		return 1
	}
	return 0
}

// readInput reads a file, or stdin for "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
