// Command hardy runs the Hardy voice and vision assistant for the store
// counter: it owns the microphone, speaker and camera, talks to the realtime
// agent, and serves the control API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quilang-hardware/hardy/internal/app"
	"github.com/quilang-hardware/hardy/internal/config"
	"github.com/quilang-hardware/hardy/internal/observe"
	"github.com/quilang-hardware/hardy/pkg/device"
	"github.com/quilang-hardware/hardy/pkg/device/gocvcam"
	"github.com/quilang-hardware/hardy/pkg/device/portaudio"
	"github.com/quilang-hardware/hardy/pkg/live"
	"github.com/quilang-hardware/hardy/pkg/live/gemini"
	"github.com/quilang-hardware/hardy/pkg/live/openai"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload log level and assistant settings when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "hardy: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "hardy: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(os.Stderr, cfg.Server.LogFormat, level))

	slog.Info("hardy starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	obs, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "hardy",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Registry ──────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltins(reg)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, reg, app.WithMetricsHandler(obs.MetricsHandler()))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	var watcher *config.Watcher
	if *watch {
		watcher, err = config.NewWatcher(*configPath, func(_, next *config.Config) {
			diff, err := application.ApplyConfig(ctx, next)
			if err != nil {
				slog.Warn("config reload failed", "err", err)
				return
			}
			if diff.LogLevelChanged {
				level.Set(slogLevel(diff.NewLogLevel))
				slog.Info("log level changed", "level", diff.NewLogLevel)
			}
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		}
	}

	slog.Info("server ready; press Ctrl+C to shut down")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if watcher != nil {
		watcher.Stop()
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// ── Wiring ───────────────────────────────────────────────────────────────────

// registerBuiltins wires every built-in transport, store driver and device
// backend into reg.
func registerBuiltins(reg *config.Registry) {
	// ── Transports ────────────────────────────────────────────────────────────
	reg.RegisterLive(config.ProviderGeminiLive, func(ac config.AssistantConfig) (live.Provider, error) {
		var opts []gemini.Option
		if ac.Model != "" {
			opts = append(opts, gemini.WithModel(ac.Model))
		}
		if ac.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(ac.BaseURL))
		}
		return gemini.New(ac.APIKey, opts...), nil
	})

	reg.RegisterLive(config.ProviderOpenAIRealtime, func(ac config.AssistantConfig) (live.Provider, error) {
		var opts []openai.Option
		if ac.Model != "" {
			opts = append(opts, openai.WithModel(ac.Model))
		}
		if ac.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(ac.BaseURL))
		}
		return openai.New(ac.APIKey, opts...), nil
	})

	app.RegisterStoreDrivers(reg)

	// ── Devices ───────────────────────────────────────────────────────────────
	// Microphone and speaker share one PortAudio host so the library is
	// initialised once.
	host := portaudio.New()
	reg.RegisterMicrophone(config.BackendPortAudio, func(config.DevicesConfig) (device.Microphone, error) {
		return host, nil
	})
	reg.RegisterSpeaker(config.BackendPortAudio, func(config.DevicesConfig) (device.Speaker, error) {
		return host, nil
	})
	reg.RegisterCamera(config.BackendGoCV, func(dc config.DevicesConfig) (device.Camera, error) {
		return gocvcam.New(dc.CameraIndex), nil
	})
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Hardy — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Assistant", string(cfg.Assistant.Provider), cfg.Assistant.Model)
	printRow("Voice", cfg.Assistant.Voice, "")
	printRow("Store", string(cfg.Store.Driver), "")
	printRow("Microphone", string(cfg.Devices.Microphone), "")
	printRow("Speaker", string(cfg.Devices.Speaker), "")
	printRow("Camera", string(cfg.Devices.Camera), "")
	if cfg.Assistant.APIKey == "" {
		printRow("API key", "(missing)", "")
	} else {
		printRow("API key", "set", "")
	}
	printRow("Listen addr", cfg.Server.ListenAddr, "")
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(kind, name, detail string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if detail != "" {
		value = name + " / " + detail
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(w io.Writer, format config.LogFormat, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
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
