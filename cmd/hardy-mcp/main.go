// Command hardy-mcp serves the store tools (inventory, sales and customer
// ledger lookups) as a Model Context Protocol server, over stdio or
// streamable HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quilang-hardware/hardy/internal/app"
	"github.com/quilang-hardware/hardy/internal/config"
	"github.com/quilang-hardware/hardy/internal/tools/mcpserver"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (defaults apply when empty)")
	transport := flag.String("transport", "stdio", "MCP transport: stdio or http")
	addr := flag.String("addr", ":8081", "listen address for the http transport")
	flag.Parse()

	if *transport != "stdio" && *transport != "http" {
		fmt.Fprintf(os.Stderr, "hardy-mcp: unknown transport %q (want stdio or http)\n", *transport)
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg := config.Defaults()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hardy-mcp: %v\n", err)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// stdout carries the protocol on stdio; logs always go to stderr.
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Server.LogLevel)}
	if cfg.Server.LogFormat == config.LogFormatJSON {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Store + tools ─────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	app.RegisterStoreDrivers(reg)

	st, err := app.OpenStore(ctx, reg, cfg.Store, slog.Default())
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Store.Driver, "err", err)
		return 1
	}
	defer st.Close()

	d, err := app.NewDispatcher(st, cfg.Tools)
	if err != nil {
		slog.Error("failed to build tools", "err", err)
		return 1
	}
	srv := mcpserver.New(d, version)

	slog.Info("hardy-mcp starting",
		"version", version,
		"transport", *transport,
		"store", cfg.Store.Driver,
		"tools", d.Names(),
	)

	// ── Serve ─────────────────────────────────────────────────────────────────
	switch *transport {
	case "stdio":
		err = mcpserver.RunStdio(ctx, srv)
	case "http":
		err = serveHTTP(ctx, *addr, mcpserver.HTTPHandler(srv))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("serve error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// serveHTTP serves h on addr until ctx is cancelled.
func serveHTTP(ctx context.Context, addr string, h http.Handler) error {
	hs := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(shutdownCtx)
	})
	slog.Info("MCP endpoint listening", "addr", addr)
	return g.Wait()
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
