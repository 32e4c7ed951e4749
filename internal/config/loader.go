package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"s2s":     {"gemini-live"},
	"audio":   {"miniaudio"},
	"refiner": {"gemini", "openai"},
}

// Block size bounds for [LiveConfig.CaptureBlockSize].
const (
	MinCaptureBlockSize = 256
	MaxCaptureBlockSize = 16384
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
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

// LoadFromReader decodes a YAML config from r, expands environment
// references in secrets, applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	expandEnv(cfg)
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func expandEnv(cfg *Config) {
	expand := func(e *ProviderEntry) {
		e.APIKey = os.ExpandEnv(e.APIKey)
		e.BaseURL = os.ExpandEnv(e.BaseURL)
	}
	expand(&cfg.Providers.S2S)
	expand(&cfg.Providers.Audio)
	for i := range cfg.Providers.Refiners {
		expand(&cfg.Providers.Refiners[i])
	}
	cfg.Store.PostgresDSN = os.ExpandEnv(cfg.Store.PostgresDSN)
}

// Validate checks that cfg contains a coherent set of values.
// Zero values are accepted wherever [Config.ApplyDefaults] would fill them.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	if cfg.Providers.S2S.Name == "" {
		errs = append(errs, errors.New("providers.s2s.name is required"))
	}
	validateProviderName("s2s", cfg.Providers.S2S.Name)
	validateProviderName("audio", cfg.Providers.Audio.Name)

	seen := make(map[string]int, len(cfg.Providers.Refiners))
	for i, r := range cfg.Providers.Refiners {
		prefix := fmt.Sprintf("providers.refiners[%d]", i)
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := seen[r.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of providers.refiners[%d]", prefix, r.Name, prev))
		}
		seen[r.Name] = i
		validateProviderName("refiner", r.Name)
	}

	live := cfg.Live
	if n := live.CaptureBlockSize; n != 0 {
		if n < MinCaptureBlockSize || n > MaxCaptureBlockSize || n&(n-1) != 0 {
			errs = append(errs, fmt.Errorf("live.capture_block_size %d must be a power of two in [%d, %d]", n, MinCaptureBlockSize, MaxCaptureBlockSize))
		}
	}
	if live.SendQueueSize < 0 {
		errs = append(errs, fmt.Errorf("live.send_queue_size %d must not be negative", live.SendQueueSize))
	}
	for _, sr := range []struct {
		field string
		rate  int
	}{
		{"live.input_sample_rate", live.InputSampleRate},
		{"live.output_sample_rate", live.OutputSampleRate},
	} {
		if sr.rate != 0 && (sr.rate < 8000 || sr.rate > 48000) {
			errs = append(errs, fmt.Errorf("%s %d is out of range [8000, 48000]", sr.field, sr.rate))
		}
	}
	if live.ConnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("live.connect_timeout %s must not be negative", live.ConnectTimeout))
	}

	if cfg.Report.RefineTimeout < 0 {
		errs = append(errs, fmt.Errorf("report.refine_timeout %s must not be negative", cfg.Report.RefineTimeout))
	}
	if cfg.Report.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("report.max_failures %d must not be negative", cfg.Report.MaxFailures))
	}

	if cfg.Store.PostgresDSN == "" {
		slog.Debug("store.postgres_dsn is empty; transcripts and reports are kept in memory")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
