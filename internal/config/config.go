// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for the soelive host.
package config

import (
	"log/slog"
	"time"
)

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

// SlogLevel maps l to the slog level. Unknown values map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Defaults applied by [Config.ApplyDefaults].
const (
	DefaultLogLevel         = LogInfo
	DefaultAudioProvider    = "miniaudio"
	DefaultCaptureBlockSize = 4096
	DefaultSendQueueSize    = 8
	DefaultInputSampleRate  = 16000
	DefaultOutputSampleRate = 24000
	DefaultConnectTimeout   = 15 * time.Second
	DefaultReportDir        = "reports"
	DefaultRefineTimeout    = 60 * time.Second
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Live      LiveConfig      `yaml:"live"`
	Store     StoreConfig     `yaml:"store"`
	Report    ReportConfig    `yaml:"report"`
}

// ServerConfig holds the optional HTTP server and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the health and metrics server
	// (e.g., ":9090"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig selects the implementations registered in the [Registry].
type ProvidersConfig struct {
	// S2S is the live speech-to-speech provider (e.g., "gemini-live").
	S2S ProviderEntry `yaml:"s2s"`

	// Audio is the local audio platform (e.g., "miniaudio").
	Audio ProviderEntry `yaml:"audio"`

	// Refiners lists report refinement backends in failover order. The
	// first entry is the primary.
	Refiners []ProviderEntry `yaml:"refiners"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation.
	Name string `yaml:"name"`

	// APIKey authenticates against the provider's API. May be a ${VAR}
	// reference, expanded from the environment on load.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// OptionString returns Options[key] when it is a string.
func (e ProviderEntry) OptionString(key string) (string, bool) {
	v, ok := e.Options[key].(string)
	return v, ok
}

// LiveConfig configures the live conversation session.
type LiveConfig struct {
	// Voice is the prebuilt voice name. Takes effect on the next session.
	Voice string `yaml:"voice"`

	// Instructions is the system instruction sent at session setup.
	// Takes effect on the next session.
	Instructions string `yaml:"instructions"`

	// CaptureBlockSize is the number of mono samples per outbound frame.
	// Must be a power of two between 256 and 16384.
	CaptureBlockSize int `yaml:"capture_block_size"`

	// SendQueueSize bounds the frames waiting for the transport.
	SendQueueSize int `yaml:"send_queue_size"`

	// InputSampleRate is the capture and upload rate in Hz.
	InputSampleRate int `yaml:"input_sample_rate"`

	// OutputSampleRate is the playback rate in Hz.
	OutputSampleRate int `yaml:"output_sample_rate"`

	// ConnectTimeout bounds opening the remote session.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// StoreConfig configures persistence.
type StoreConfig struct {
	// PostgresDSN is the PostgreSQL connection string. Empty disables
	// database persistence; reports are still exported to report.output_dir.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// ReportConfig configures report generation.
type ReportConfig struct {
	// OutputDir receives the exported <id>.json files.
	OutputDir string `yaml:"output_dir"`

	// RefineTimeout bounds one refinement across all backends.
	RefineTimeout time.Duration `yaml:"refine_timeout"`

	// MaxFailures opens a refiner's circuit breaker after this many
	// consecutive failures. Zero uses the breaker default.
	MaxFailures int `yaml:"max_failures"`
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = DefaultLogLevel
	}
	if c.Providers.Audio.Name == "" {
		c.Providers.Audio.Name = DefaultAudioProvider
	}
	if c.Live.CaptureBlockSize == 0 {
		c.Live.CaptureBlockSize = DefaultCaptureBlockSize
	}
	if c.Live.SendQueueSize == 0 {
		c.Live.SendQueueSize = DefaultSendQueueSize
	}
	if c.Live.InputSampleRate == 0 {
		c.Live.InputSampleRate = DefaultInputSampleRate
	}
	if c.Live.OutputSampleRate == 0 {
		c.Live.OutputSampleRate = DefaultOutputSampleRate
	}
	if c.Live.ConnectTimeout == 0 {
		c.Live.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Report.OutputDir == "" {
		c.Report.OutputDir = DefaultReportDir
	}
	if c.Report.RefineTimeout == 0 {
		c.Report.RefineTimeout = DefaultRefineTimeout
	}
}
