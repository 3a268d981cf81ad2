package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/quilang-hardware/hardy/internal/config"
	"github.com/quilang-hardware/hardy/internal/store"
	"github.com/quilang-hardware/hardy/internal/store/memstore"
	"github.com/quilang-hardware/hardy/pkg/device"
	devmock "github.com/quilang-hardware/hardy/pkg/device/mock"
	"github.com/quilang-hardware/hardy/pkg/live"
	livemock "github.com/quilang-hardware/hardy/pkg/live/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  log_format: json

assistant:
  provider: openai-realtime
  api_key: sk-test
  model: gpt-4o-realtime-preview
  voice: alloy
  instructions: You are a terse clerk.

store:
  driver: sqlite
  dsn: /var/lib/hardy/store.db
  seed_file: seed.yaml
  migrate: true

devices:
  microphone: portaudio
  speaker: portaudio
  camera: none
  camera_index: 1

video:
  interval: 2s
  quality: 70
  max_width: 320
  max_height: 240

tools:
  low_stock_threshold: 20
  recent_transactions: 3
  revenue_target: 5000
  timeout: 2s
  timezone: Asia/Manila
`

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

// ── YAML loading ─────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg := mustLoad(t, sampleYAML)

	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug || cfg.Server.LogFormat != config.LogFormatJSON {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Assistant.Provider != config.ProviderOpenAIRealtime || cfg.Assistant.Voice != "alloy" {
		t.Errorf("assistant = %+v", cfg.Assistant)
	}
	if cfg.Assistant.Instructions != "You are a terse clerk." {
		t.Errorf("instructions = %q", cfg.Assistant.Instructions)
	}
	if cfg.Store.Driver != config.StoreSQLite || !cfg.Store.Migrate || cfg.Store.SeedFile != "seed.yaml" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Devices.Camera != config.BackendNone || cfg.Devices.CameraIndex != 1 {
		t.Errorf("devices = %+v", cfg.Devices)
	}
	if cfg.Video.Interval != 2*time.Second || cfg.Video.Quality != 70 {
		t.Errorf("video = %+v", cfg.Video)
	}
	if cfg.Tools.LowStockThreshold != 20 || cfg.Tools.Timeout != 2*time.Second {
		t.Errorf("tools = %+v", cfg.Tools)
	}
	if loc := cfg.Tools.Location(); loc.String() != "Asia/Manila" {
		t.Errorf("Location() = %v", loc)
	}
}

func TestLoadFromReader_EmptyYieldsDefaults(t *testing.T) {
	t.Parallel()

	cfg := mustLoad(t, "")
	want := config.Defaults()
	// The key may come from the environment.
	cfg.Assistant.APIKey = ""

	if cfg.Server != want.Server {
		t.Errorf("server = %+v, want %+v", cfg.Server, want.Server)
	}
	if cfg.Assistant != want.Assistant {
		t.Errorf("assistant defaults differ")
	}
	if cfg.Assistant.Voice != "Charon" || cfg.Assistant.Provider != config.ProviderGeminiLive {
		t.Errorf("assistant = %s/%s", cfg.Assistant.Provider, cfg.Assistant.Voice)
	}
	if !strings.Contains(cfg.Assistant.Instructions, `You are "Hardy"`) {
		t.Error("default instructions are not the Hardy persona")
	}
	if cfg.Store.Driver != config.StoreMemory {
		t.Errorf("store.driver = %q", cfg.Store.Driver)
	}
	if cfg.Devices.CameraWidth != 640 || cfg.Devices.CameraHeight != 480 {
		t.Errorf("camera size = %dx%d", cfg.Devices.CameraWidth, cfg.Devices.CameraHeight)
	}
	if cfg.Video != want.Video || cfg.Tools != want.Tools {
		t.Errorf("video/tools defaults differ: %+v %+v", cfg.Video, cfg.Tools)
	}
	if cfg.Tools.Location() != time.Local {
		t.Error("empty timezone should resolve to time.Local")
	}
}

func TestLoadFromReader_APIKeyFromEnv(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "env-key")

	if got := mustLoad(t, "").Assistant.APIKey; got != "env-key" {
		t.Errorf("APIKey = %q, want env-key", got)
	}
	if got := mustLoad(t, "assistant:\n  api_key: file-key\n").Assistant.APIKey; got != "file-key" {
		t.Errorf("APIKey = %q, file value should win", got)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("npcs:\n  - name: Greymantle\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := config.Load("/nonexistent/hardy.yaml"); err == nil {
		t.Fatal("expected error")
	}
}

// ── Validation ───────────────────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"log level", "server:\n  log_level: loud\n", "server.log_level"},
		{"log format", "server:\n  log_format: xml\n", "server.log_format"},
		{"tls half", "server:\n  tls:\n    cert_file: a.pem\n", "server.tls"},
		{"provider", "assistant:\n  provider: carrier-pigeon\n", "assistant.provider"},
		{"store driver", "store:\n  driver: mongo\n", "store.driver"},
		{"postgres dsn", "store:\n  driver: postgres\n", "store.dsn is required"},
		{"sqlite dsn", "store:\n  driver: sqlite\n", "store.dsn is required"},
		{"max conns", "store:\n  max_conns: -1\n", "store.max_conns"},
		{"microphone", "devices:\n  microphone: alsa\n", "devices.microphone"},
		{"camera", "devices:\n  camera: v4l2\n", "devices.camera"},
		{"camera index", "devices:\n  camera_index: -2\n", "devices.camera_index"},
		{"quality", "video:\n  quality: 150\n", "video.quality"},
		{"interval", "video:\n  interval: -1s\n", "video.interval"},
		{"threshold", "tools:\n  low_stock_threshold: -5\n", "tools.low_stock_threshold"},
		{"timeout", "tools:\n  timeout: -1s\n", "tools.timeout"},
		{"timezone", "tools:\n  timezone: Mars/Olympus\n", "tools.timezone"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.Server.LogLevel = "loud"
	cfg.Store.Driver = "mongo"
	cfg.Video.Quality = 101

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.log_level", "store.driver", "video.quality"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	t.Parallel()

	if err := config.Validate(config.Defaults()); err != nil {
		t.Fatalf("Validate(Defaults()) = %v", err)
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	cfg := config.Defaults()

	if _, err := reg.CreateLive(cfg.Assistant); !errors.Is(err, config.ErrNotRegistered) {
		t.Errorf("CreateLive error = %v", err)
	}
	if _, err := reg.CreateStore(context.Background(), cfg.Store); !errors.Is(err, config.ErrNotRegistered) {
		t.Errorf("CreateStore error = %v", err)
	}
	if _, err := reg.CreateMicrophone(cfg.Devices); !errors.Is(err, config.ErrNotRegistered) {
		t.Errorf("CreateMicrophone error = %v", err)
	}
	if _, err := reg.CreateSpeaker(cfg.Devices); !errors.Is(err, config.ErrNotRegistered) {
		t.Errorf("CreateSpeaker error = %v", err)
	}
	if _, err := reg.CreateCamera(cfg.Devices); !errors.Is(err, config.ErrNotRegistered) {
		t.Errorf("CreateCamera error = %v", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	var gotVoice string
	reg.RegisterLive(config.ProviderGeminiLive, func(a config.AssistantConfig) (live.Provider, error) {
		gotVoice = a.Voice
		return &livemock.Provider{}, nil
	})
	reg.RegisterStore(config.StoreMemory, func(context.Context, config.StoreConfig) (store.Store, error) {
		return memstore.New(nil), nil
	})
	reg.RegisterMicrophone(config.BackendPortAudio, func(config.DevicesConfig) (device.Microphone, error) {
		return devmock.NewMicrophone(), nil
	})
	reg.RegisterCamera(config.BackendGoCV, func(config.DevicesConfig) (device.Camera, error) {
		return &devmock.Camera{}, nil
	})

	cfg := config.Defaults()
	if p, err := reg.CreateLive(cfg.Assistant); err != nil || p == nil {
		t.Fatalf("CreateLive = %v, %v", p, err)
	}
	if gotVoice != "Charon" {
		t.Errorf("factory saw voice %q", gotVoice)
	}
	if s, err := reg.CreateStore(context.Background(), cfg.Store); err != nil || s == nil {
		t.Errorf("CreateStore = %v, %v", s, err)
	}
	if m, err := reg.CreateMicrophone(cfg.Devices); err != nil || m == nil {
		t.Errorf("CreateMicrophone = %v, %v", m, err)
	}

	cfg.Devices.Camera = config.BackendNone
	if c, err := reg.CreateCamera(cfg.Devices); err != nil || c != nil {
		t.Errorf("CreateCamera(none) = %v, %v; want nil, nil", c, err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	boom := errors.New("no sound card")
	reg.RegisterSpeaker(config.BackendPortAudio, func(config.DevicesConfig) (device.Speaker, error) {
		return nil, boom
	})
	if _, err := reg.CreateSpeaker(config.Defaults().Devices); !errors.Is(err, boom) {
		t.Errorf("CreateSpeaker error = %v, want %v", err, boom)
	}
}
