package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/soelive/internal/app"
	"github.com/MrWong99/soelive/internal/config"
	"github.com/MrWong99/soelive/internal/observe"
	"github.com/MrWong99/soelive/internal/report"
	geminirefiner "github.com/MrWong99/soelive/internal/report/gemini"
	openairefiner "github.com/MrWong99/soelive/internal/report/openai"
	"github.com/MrWong99/soelive/internal/resilience"
	"github.com/MrWong99/soelive/pkg/audio"
	"github.com/MrWong99/soelive/pkg/audio/miniaudio"
	"github.com/MrWong99/soelive/pkg/provider/s2s"
	geminilive "github.com/MrWong99/soelive/pkg/provider/s2s/gemini"
)

// registerBuiltinProviders wires the provider factories that ship with
// soelive into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterS2S("gemini-live", func(entry config.ProviderEntry) (s2s.Provider, error) {
		var opts []geminilive.Option
		if entry.Model != "" {
			opts = append(opts, geminilive.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(entry.BaseURL))
		}
		if voice, ok := entry.OptionString("voice"); ok {
			opts = append(opts, geminilive.WithDefaultVoice(voice))
		}
		return geminilive.New(entry.APIKey, opts...), nil
	})

	reg.RegisterAudio("miniaudio", func(config.ProviderEntry) (audio.Platform, error) {
		return miniaudio.New(), nil
	})

	reg.RegisterRefiner("gemini", func(entry config.ProviderEntry) (report.Refiner, error) {
		var opts []geminirefiner.Option
		if entry.Model != "" {
			opts = append(opts, geminirefiner.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geminirefiner.WithBaseURL(entry.BaseURL))
		}
		if d, ok := optDuration(entry, "timeout"); ok {
			opts = append(opts, geminirefiner.WithTimeout(d))
		}
		return geminirefiner.New(context.Background(), entry.APIKey, opts...)
	})

	reg.RegisterRefiner("openai", func(entry config.ProviderEntry) (report.Refiner, error) {
		var opts []openairefiner.Option
		if entry.Model != "" {
			opts = append(opts, openairefiner.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, openairefiner.WithBaseURL(entry.BaseURL))
		}
		if org, ok := entry.OptionString("organization"); ok {
			opts = append(opts, openairefiner.WithOrganization(org))
		}
		if d, ok := optDuration(entry, "timeout"); ok {
			opts = append(opts, openairefiner.WithTimeout(d))
		}
		return openairefiner.New(entry.APIKey, opts...)
	})

	for _, kind := range []string{"s2s", "audio", "refiner"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates the providers named in cfg. The refiners are
// combined into one [report.FallbackRefiner] in configuration order.
func buildProviders(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*app.Providers, error) {
	ps := &app.Providers{}

	p, err := reg.CreateS2S(cfg.Providers.S2S)
	if err != nil {
		return nil, fmt.Errorf("create s2s provider %q: %w", cfg.Providers.S2S.Name, err)
	}
	ps.S2S = p
	slog.Info("provider created", "kind", "s2s", "name", cfg.Providers.S2S.Name)

	platform, err := reg.CreateAudio(cfg.Providers.Audio)
	if err != nil {
		return nil, fmt.Errorf("create audio provider %q: %w", cfg.Providers.Audio.Name, err)
	}
	ps.Audio = platform
	slog.Info("provider created", "kind", "audio", "name", cfg.Providers.Audio.Name)

	var chain *report.FallbackRefiner
	for _, entry := range cfg.Providers.Refiners {
		r, err := reg.CreateRefiner(entry)
		if err != nil {
			return nil, fmt.Errorf("create refiner %q: %w", entry.Name, err)
		}
		if chain == nil {
			chain = report.NewFallbackRefiner(entry.Name, r, resilience.FallbackConfig{
				CircuitBreaker: resilience.CircuitBreakerConfig{MaxFailures: cfg.Report.MaxFailures},
			})
			chain.SetMetrics(metrics)
		} else {
			chain.AddFallback(entry.Name, r)
		}
		slog.Info("provider created", "kind", "refiner", "name", entry.Name)
	}
	if chain != nil {
		ps.Refiner = chain
	}

	return ps, nil
}

// optDuration reads a duration option given either as a string ("30s") or as
// a number of seconds.
func optDuration(entry config.ProviderEntry, key string) (time.Duration, bool) {
	switch v := entry.Options[key].(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("ignoring invalid duration option", "provider", entry.Name, "key", key, "value", v)
			return 0, false
		}
		return d, true
	case int:
		return time.Duration(v) * time.Second, true
	case float64:
		return time.Duration(v * float64(time.Second)), true
	}
	return 0, false
}
