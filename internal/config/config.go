// Package config provides the configuration schema, loader, file watcher and
// factory registry for the Hardy assistant.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool { return f == LogFormatText || f == LogFormatJSON }

// ProviderName selects the realtime conversational agent.
type ProviderName string

const (
	ProviderGeminiLive     ProviderName = "gemini-live"
	ProviderOpenAIRealtime ProviderName = "openai-realtime"
)

// IsValid reports whether p is a known provider.
func (p ProviderName) IsValid() bool {
	return p == ProviderGeminiLive || p == ProviderOpenAIRealtime
}

// StoreDriver selects the store backend.
type StoreDriver string

const (
	StoreMemory   StoreDriver = "memory"
	StorePostgres StoreDriver = "postgres"
	StoreSQLite   StoreDriver = "sqlite"
)

// IsValid reports whether d is a known driver.
func (d StoreDriver) IsValid() bool {
	switch d {
	case StoreMemory, StorePostgres, StoreSQLite:
		return true
	}
	return false
}

// Backend selects a device implementation. BackendNone disables the device.
type Backend string

const (
	BackendPortAudio Backend = "portaudio"
	BackendGoCV      Backend = "gocv"
	BackendNone      Backend = "none"
)

// EnvAPIKey supplies Assistant.APIKey when the file leaves it empty.
const EnvAPIKey = "HARDY_API_KEY"

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Assistant AssistantConfig `yaml:"assistant"`
	Store     StoreConfig     `yaml:"store"`
	Devices   DevicesConfig   `yaml:"devices"`
	Video     VideoConfig     `yaml:"video"`
	Tools     ToolsConfig     `yaml:"tools"`
}

// ServerConfig holds network and logging settings for the control API.
type ServerConfig struct {
	// ListenAddr is the TCP address the control API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	LogLevel  LogLevel  `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AssistantConfig describes the remote agent and its persona.
type AssistantConfig struct {
	Provider ProviderName `yaml:"provider"`

	// APIKey authenticates against the provider. Falls back to $HARDY_API_KEY.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's WebSocket endpoint.
	BaseURL string `yaml:"base_url"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// Voice is the prebuilt voice name.
	Voice string `yaml:"voice"`

	// Instructions is the system prompt. Defaults to [DefaultInstructions].
	Instructions string `yaml:"instructions"`
}

// StoreConfig selects and configures the inventory and ledger backend.
type StoreConfig struct {
	Driver StoreDriver `yaml:"driver"`

	// DSN is the connection string (postgres) or file path (sqlite).
	DSN string `yaml:"dsn"`

	// SeedFile is a YAML dataset imported at start-up. The memory driver
	// uses the built-in inventory when empty.
	SeedFile string `yaml:"seed_file"`

	// Migrate creates the schema on start-up.
	Migrate bool `yaml:"migrate"`

	// MaxConns caps the postgres pool. Zero uses the driver default.
	MaxConns int32 `yaml:"max_conns"`
}

// DevicesConfig selects host device backends.
type DevicesConfig struct {
	Microphone Backend `yaml:"microphone"`
	Speaker    Backend `yaml:"speaker"`
	Camera     Backend `yaml:"camera"`

	CameraIndex  int `yaml:"camera_index"`
	CameraWidth  int `yaml:"camera_width"`
	CameraHeight int `yaml:"camera_height"`
}

// VideoConfig controls frame sampling and compression.
type VideoConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Quality   int           `yaml:"quality"`
	MaxWidth  int           `yaml:"max_width"`
	MaxHeight int           `yaml:"max_height"`
}

// ToolsConfig tunes the store tools.
type ToolsConfig struct {
	LowStockThreshold  int           `yaml:"low_stock_threshold"`
	RecentTransactions int           `yaml:"recent_transactions"`
	RevenueTarget      float64       `yaml:"revenue_target"`
	Timeout            time.Duration `yaml:"timeout"`

	// Timezone is an IANA zone used for transaction dates. Empty means local.
	Timezone string `yaml:"timezone"`
}

// Defaults returns a Config with every default applied.
func Defaults() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	setDefault(&c.Server.ListenAddr, ":8080")
	setDefault(&c.Server.LogLevel, LogInfo)
	setDefault(&c.Server.LogFormat, LogFormatText)

	setDefault(&c.Assistant.Provider, ProviderGeminiLive)
	setDefault(&c.Assistant.Voice, "Charon")
	setDefault(&c.Assistant.Instructions, DefaultInstructions)

	setDefault(&c.Store.Driver, StoreMemory)

	setDefault(&c.Devices.Microphone, BackendPortAudio)
	setDefault(&c.Devices.Speaker, BackendPortAudio)
	setDefault(&c.Devices.Camera, BackendGoCV)
	setDefault(&c.Devices.CameraWidth, 640)
	setDefault(&c.Devices.CameraHeight, 480)

	setDefault(&c.Video.Interval, time.Second)
	setDefault(&c.Video.Quality, 60)
	setDefault(&c.Video.MaxWidth, 640)
	setDefault(&c.Video.MaxHeight, 480)

	setDefault(&c.Tools.LowStockThreshold, 50)
	setDefault(&c.Tools.RecentTransactions, 5)
	setDefault(&c.Tools.RevenueTarget, 10000)
	setDefault(&c.Tools.Timeout, 5*time.Second)
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}
