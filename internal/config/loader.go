package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills defaults and the
// $HARDY_API_KEY fallback, and validates the result. An empty document
// yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if cfg.Assistant.APIKey == "" {
		cfg.Assistant.APIKey = os.Getenv(EnvAPIKey)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Assistant
	if cfg.Assistant.Provider != "" && !cfg.Assistant.Provider.IsValid() {
		errs = append(errs, fmt.Errorf("assistant.provider %q is invalid; valid values: gemini-live, openai-realtime", cfg.Assistant.Provider))
	}
	if cfg.Assistant.APIKey == "" {
		slog.Warn("assistant.api_key is empty and " + EnvAPIKey + " is not set; connecting will fail")
	}

	// Store
	switch cfg.Store.Driver {
	case "", StoreMemory:
		if cfg.Store.DSN != "" {
			slog.Warn("store.dsn is ignored by the memory driver")
		}
	case StorePostgres, StoreSQLite:
		if cfg.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for driver %q", cfg.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is invalid; valid values: memory, postgres, sqlite", cfg.Store.Driver))
	}
	if cfg.Store.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("store.max_conns %d must not be negative", cfg.Store.MaxConns))
	}

	// Devices
	errs = append(errs,
		validateBackend("devices.microphone", cfg.Devices.Microphone, BackendPortAudio),
		validateBackend("devices.speaker", cfg.Devices.Speaker, BackendPortAudio),
		validateBackend("devices.camera", cfg.Devices.Camera, BackendGoCV),
	)
	if cfg.Devices.CameraIndex < 0 {
		errs = append(errs, fmt.Errorf("devices.camera_index %d must not be negative", cfg.Devices.CameraIndex))
	}
	if cfg.Devices.CameraWidth < 0 || cfg.Devices.CameraHeight < 0 {
		errs = append(errs, fmt.Errorf("devices camera size %dx%d must not be negative", cfg.Devices.CameraWidth, cfg.Devices.CameraHeight))
	}
	if cfg.Devices.Microphone == BackendNone || cfg.Devices.Speaker == BackendNone {
		slog.Warn("microphone or speaker disabled; voice sessions cannot connect")
	}

	// Video
	if cfg.Video.Interval < 0 {
		errs = append(errs, fmt.Errorf("video.interval %s must not be negative", cfg.Video.Interval))
	}
	if cfg.Video.Quality < 0 || cfg.Video.Quality > 100 {
		errs = append(errs, fmt.Errorf("video.quality %d is out of range [1, 100]", cfg.Video.Quality))
	}
	if cfg.Video.MaxWidth < 0 || cfg.Video.MaxHeight < 0 {
		errs = append(errs, fmt.Errorf("video max size %dx%d must not be negative", cfg.Video.MaxWidth, cfg.Video.MaxHeight))
	}

	// Tools
	if cfg.Tools.LowStockThreshold < 0 {
		errs = append(errs, fmt.Errorf("tools.low_stock_threshold %d must not be negative", cfg.Tools.LowStockThreshold))
	}
	if cfg.Tools.RecentTransactions < 0 {
		errs = append(errs, fmt.Errorf("tools.recent_transactions %d must not be negative", cfg.Tools.RecentTransactions))
	}
	if cfg.Tools.Timeout < 0 {
		errs = append(errs, fmt.Errorf("tools.timeout %s must not be negative", cfg.Tools.Timeout))
	}
	if cfg.Tools.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Tools.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("tools.timezone %q: %w", cfg.Tools.Timezone, err))
		}
	}

	return errors.Join(errs...)
}

// validateBackend accepts "", "none" and the single implemented backend.
func validateBackend(field string, b, want Backend) error {
	switch b {
	case "", BackendNone, want:
		return nil
	}
	return fmt.Errorf("%s %q is invalid; valid values: %s, none", field, b, want)
}

// Location returns the configured tool timezone, or time.Local.
func (c ToolsConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
